package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AlertStatus is the lifecycle state of an alert. Transitions are monotonic:
// pending -> sent -> {acknowledged -> resolved} or {escalated -> acknowledged -> resolved}.
type AlertStatus string

const (
	StatusPending      AlertStatus = "pending"
	StatusSent         AlertStatus = "sent"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
	StatusEscalated    AlertStatus = "escalated"
	StatusExpired      AlertStatus = "expired"
)

// AlertType classifies what kind of health event triggered the alert.
type AlertType string

const (
	AlertAnomalyDetected  AlertType = "anomaly_detected"
	AlertActivityDrop     AlertType = "activity_drop"
	AlertSleepDisruption  AlertType = "sleep_disruption"
	AlertMedicationMissed AlertType = "medication_missed"
	AlertNoDataReceived   AlertType = "no_data_received"
	AlertPatternBreak     AlertType = "pattern_break"
	AlertFallDetected     AlertType = "fall_detected"
)

// Notification channels. Push is the default real-time channel; SMS is a
// configured-but-unused upgrade path for critical alerts.
const (
	ChannelPush = "push"
	ChannelSMS  = "sms"
)

// Caregiver roles on a relationship.
const (
	RolePrimary   = "primary"
	RoleSecondary = "secondary"
)

// Alert is the central entity: one routed, escalatable health alert for a sharer.
type Alert struct {
	ID                 uuid.UUID       `json:"id"`
	SharerEmail        string          `json:"sharer_email"`
	AlertType          AlertType       `json:"alert_type"`
	Severity           Severity        `json:"severity"`
	Title              string          `json:"title"`
	Message            string          `json:"message"`
	Recommendation     string          `json:"recommendation,omitempty"`
	Context            json.RawMessage `json:"context,omitempty"`
	RoutedToCaregivers []string        `json:"routed_to_caregivers"`
	RoutedToClinical   bool            `json:"routed_to_clinical"`
	Status             AlertStatus     `json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
	ExpiresAt          time.Time       `json:"expires_at"`
	AcknowledgedAt     *time.Time      `json:"acknowledged_at,omitempty"`
	AcknowledgedBy     *string         `json:"acknowledged_by,omitempty"`
	ResolvedAt         *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy         *string         `json:"resolved_by,omitempty"`
	ResolutionNote     *string         `json:"resolution_note,omitempty"`
	EscalatedAt        *time.Time      `json:"escalated_at,omitempty"`
}

// Terminal reports whether the alert can no longer change state.
func (a *Alert) Terminal() bool {
	return a.Status == StatusResolved || a.Status == StatusExpired
}

// AlreadyRouted reports whether the caregiver is in the alert's routing record.
func (a *Alert) AlreadyRouted(caregiverEmail string) bool {
	for _, e := range a.RoutedToCaregivers {
		if e == caregiverEmail {
			return true
		}
	}
	return false
}

// CaregiverPermissions is the per-severity receive opt-out bundle on a
// relationship. A missing flag means "receive": caregivers get alerts unless
// they explicitly opted out of that severity tier.
type CaregiverPermissions map[string]bool

var severityPermissionKeys = map[Severity]string{
	SeverityCritical: "receive_critical_alerts",
	SeverityHigh:     "receive_high_alerts",
	SeverityMedium:   "receive_medium_alerts",
	SeverityLow:      "receive_low_alerts",
	SeverityInfo:     "receive_info_alerts",
}

// Allows reports whether alerts of the given severity may be routed to the
// caregiver holding these permissions.
func (p CaregiverPermissions) Allows(severity Severity) bool {
	key, ok := severityPermissionKeys[severity]
	if !ok {
		return true
	}
	v, set := p[key]
	return !set || v
}

// Relationship links a sharer to a caregiver. Owned by an external system;
// this engine only reads it.
type Relationship struct {
	ID             uuid.UUID            `json:"id"`
	SharerEmail    string               `json:"sharer_email"`
	CaregiverEmail string               `json:"caregiver_email"`
	Role           string               `json:"role"`
	Status         string               `json:"status"`
	Permissions    CaregiverPermissions `json:"permissions"`
	CreatedAt      time.Time            `json:"created_at"`
}

// CaregiverRef identifies one routing target.
type CaregiverRef struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Escalation targets. Clinical and emergency are accepted in the rule schema
// but carry no recipient-expansion logic yet.
const (
	EscalateToSecondary = "secondary"
	EscalateToAll       = "all"
	EscalateToClinical  = "clinical"
	EscalateToEmergency = "emergency"
)

// EscalationRule widens the audience of an unacknowledged alert of the given
// severity once it has sat in "sent" longer than AfterMinutes.
type EscalationRule struct {
	Severity     Severity `json:"severity"`
	AfterMinutes int      `json:"escalate_after_minutes"`
	EscalateTo   string   `json:"escalate_to"`
	Channels     []string `json:"channels"`
}

// Cutoff returns the created-at threshold below which alerts are eligible.
func (r EscalationRule) Cutoff(now time.Time) time.Time {
	return now.Add(-time.Duration(r.AfterMinutes) * time.Minute)
}

// NotificationAttempt is one audit row per (alert, caregiver, channel)
// dispatch attempt. Insert-only, used for audit and analytics.
type NotificationAttempt struct {
	ID             uuid.UUID `json:"id"`
	AlertID        uuid.UUID `json:"alert_id"`
	CaregiverEmail string    `json:"caregiver_email"`
	Channel        string    `json:"channel"`
	Priority       Priority  `json:"priority"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ClinicalCoordination is a sharer's registered clinical-provider record.
// Owned externally; read here only to decide where clinical alerts go.
type ClinicalCoordination struct {
	ID              uuid.UUID `json:"id"`
	SharerEmail     string    `json:"sharer_email"`
	ProviderName    string    `json:"provider_name"`
	ProviderEmail   string    `json:"provider_email"`
	AlertingEnabled bool      `json:"alerting_enabled"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// ClinicalAlert is the record created for a clinical provider when an alert
// routes clinically. Creation is the whole side effect: delivery to the
// provider is a separate, future transport integration.
type ClinicalAlert struct {
	ID                  uuid.UUID       `json:"id"`
	CoordinationID      uuid.UUID       `json:"coordination_id"`
	SharerEmail         string          `json:"sharer_email"`
	AlertID             uuid.UUID       `json:"alert_id"`
	Severity            Severity        `json:"severity"`
	Title               string          `json:"title"`
	Summary             string          `json:"summary"`
	Context             json.RawMessage `json:"context,omitempty"`
	VisibleToCaregivers bool            `json:"visible_to_caregivers"`
	CreatedAt           time.Time       `json:"created_at"`
}

// DeviceToken is a deliverable address for one caregiver on one channel.
type DeviceToken struct {
	ID             uuid.UUID `json:"id"`
	CaregiverEmail string    `json:"caregiver_email"`
	Channel        string    `json:"channel"`
	Token          string    `json:"token"`
	Status         int       `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// CaregiverAccount is a login identity for the caregiver-facing API.
type CaregiverAccount struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Password    string     `json:"-"`
	Name        string     `json:"name"`
	Status      int        `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// AnomalyResult is the upstream detector's verdict about one metric.
type AnomalyResult struct {
	IsAnomaly      bool     `json:"is_anomaly"`
	Metric         string   `json:"metric"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	CurrentValue   float64  `json:"current_value"`
	BaselineValue  float64  `json:"baseline_value"`
	Deviation      float64  `json:"deviation"`
	Direction      string   `json:"direction"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// PatternBreak describes a broken behavioral routine detected upstream.
type PatternBreak struct {
	PatternType    string   `json:"pattern_type"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	DaysObserved   int      `json:"days_observed"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// AlertFilters narrows alert list queries.
type AlertFilters struct {
	Status   AlertStatus
	Severity *Severity
	Page     int
	PageSize int
}
