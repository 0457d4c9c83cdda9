package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"care-alert/internal/models"
	"care-alert/internal/repository"
	apperrors "care-alert/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertStore is the durable record of alerts. Write failures propagate to
// callers: state-changing operations must not silently fail.
type AlertStore interface {
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	Acknowledge(ctx context.Context, id uuid.UUID, by string, at time.Time) (int64, error)
	Resolve(ctx context.Context, id uuid.UUID, by string, note *string, at time.Time) (int64, error)
	MarkEscalated(ctx context.Context, id uuid.UUID, additional []string, at time.Time) (bool, error)
	ListEscalatable(ctx context.Context, severity models.Severity, cutoff time.Time) ([]models.Alert, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	ListBySharers(ctx context.Context, sharers []string, filters models.AlertFilters) ([]models.Alert, int, error)
}

// ClinicalNotifier creates clinical-alert records. Satisfied by ClinicalRouter.
type ClinicalNotifier interface {
	NotifyClinical(ctx context.Context, sharerEmail string, alert *models.Alert) error
}

// CreateAlertRequest carries everything needed to create and route one alert.
type CreateAlertRequest struct {
	SharerEmail    string           `json:"sharer_email" binding:"required,email"`
	AlertType      models.AlertType `json:"alert_type" binding:"required"`
	Severity       models.Severity  `json:"severity"`
	Title          string           `json:"title" binding:"required"`
	Message        string           `json:"message" binding:"required"`
	Recommendation string           `json:"recommendation"`
	Context        json.RawMessage  `json:"context"`
}

// AlertService is the alert lifecycle manager: creation, acknowledgement,
// resolution, and caller-scoped retrieval.
type AlertService struct {
	alerts      AlertStore
	directory   RelationshipDirectory
	router      *CaregiverRouter
	dispatcher  Dispatcher
	clinical    ClinicalNotifier
	broadcaster Broadcaster
	logger      *zap.Logger
	now         func() time.Time
}

func NewAlertService(
	alerts AlertStore,
	directory RelationshipDirectory,
	router *CaregiverRouter,
	dispatcher Dispatcher,
	clinical ClinicalNotifier,
	broadcaster Broadcaster,
	logger *zap.Logger,
) *AlertService {
	return &AlertService{
		alerts:      alerts,
		directory:   directory,
		router:      router,
		dispatcher:  dispatcher,
		clinical:    clinical,
		broadcaster: broadcaster,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateAlert routes, records, and dispatches a new alert. The alert is
// returned fully formed even when some or all dispatches failed: the
// guarantee is "durably recorded and routed", not "every recipient received
// it". Only persistence failures propagate.
func (s *AlertService) CreateAlert(ctx context.Context, req *CreateAlertRequest) (*models.Alert, error) {
	route, err := s.router.Route(ctx, req.SharerEmail, req.AlertType, req.Severity)
	if err != nil {
		return nil, err
	}

	now := s.now()
	emails := make([]string, len(route.Caregivers))
	for i, cg := range route.Caregivers {
		emails[i] = cg.Email
	}

	alert := &models.Alert{
		ID:                 uuid.New(),
		SharerEmail:        req.SharerEmail,
		AlertType:          req.AlertType,
		Severity:           req.Severity,
		Title:              req.Title,
		Message:            req.Message,
		Recommendation:     req.Recommendation,
		Context:            req.Context,
		RoutedToCaregivers: emails,
		RoutedToClinical:   route.RouteToClinical,
		Status:             models.StatusPending,
		CreatedAt:          now,
		ExpiresAt:          now.Add(models.ExpiryFor(req.Severity)),
	}

	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, err
	}

	if route.RouteToClinical {
		// Never fatal: a clinical record failure must not block caregiver
		// alerting or the create response.
		if err := s.clinical.NotifyClinical(ctx, req.SharerEmail, alert); err != nil {
			s.logger.Error("clinical notification failed",
				zap.String("alert_id", alert.ID.String()),
				zap.Error(err),
			)
		}
	}

	s.dispatcher.Notify(ctx, alert, route.Caregivers, []string{models.ChannelPush}, false)

	if err := s.alerts.MarkSent(ctx, alert.ID); err != nil {
		return nil, err
	}
	alert.Status = models.StatusSent

	s.logger.Info("alert created",
		zap.String("alert_id", alert.ID.String()),
		zap.String("sharer", alert.SharerEmail),
		zap.String("type", string(alert.AlertType)),
		zap.String("severity", alert.Severity.String()),
		zap.Int("caregivers", len(route.Caregivers)),
		zap.Bool("clinical", route.RouteToClinical),
	)

	if s.broadcaster != nil {
		s.broadcaster.SendAlertEvent(&AlertEvent{
			AlertID:     alert.ID.String(),
			SharerEmail: alert.SharerEmail,
			AlertType:   string(alert.AlertType),
			Severity:    alert.Severity.String(),
			Status:      string(alert.Status),
			Title:       alert.Title,
			Timestamp:   now,
		})
	}
	return alert, nil
}

// CreateAlertFromAnomaly turns a detector verdict into an alert, or returns
// (nil, nil) when the result is not an anomaly.
func (s *AlertService) CreateAlertFromAnomaly(ctx context.Context, sharerEmail string, anomaly *models.AnomalyResult, contextSnapshot json.RawMessage) (*models.Alert, error) {
	if anomaly == nil || !anomaly.IsAnomaly {
		return nil, nil
	}

	message := anomaly.Description
	if message == "" {
		message = fmt.Sprintf("%s is %.0f%% %s baseline (%.1f vs %.1f)",
			anomaly.Metric, anomaly.Deviation*100, directionWord(anomaly.Direction),
			anomaly.CurrentValue, anomaly.BaselineValue)
	}

	return s.CreateAlert(ctx, &CreateAlertRequest{
		SharerEmail:    sharerEmail,
		AlertType:      models.AlertAnomalyDetected,
		Severity:       anomaly.Severity,
		Title:          fmt.Sprintf("Anomaly detected: %s", anomaly.Metric),
		Message:        message,
		Recommendation: anomaly.Recommendation,
		Context:        contextSnapshot,
	})
}

// CreateAlertFromPatternBreak turns a broken-routine detection into an alert.
func (s *AlertService) CreateAlertFromPatternBreak(ctx context.Context, sharerEmail string, pb *models.PatternBreak, contextSnapshot json.RawMessage) (*models.Alert, error) {
	if pb == nil {
		return nil, nil
	}
	message := pb.Description
	if pb.DaysObserved > 0 {
		message = fmt.Sprintf("%s (pattern held for %d days)", pb.Description, pb.DaysObserved)
	}
	return s.CreateAlert(ctx, &CreateAlertRequest{
		SharerEmail:    sharerEmail,
		AlertType:      models.AlertPatternBreak,
		Severity:       pb.Severity,
		Title:          fmt.Sprintf("Pattern break: %s", pb.PatternType),
		Message:        message,
		Recommendation: pb.Recommendation,
		Context:        contextSnapshot,
	})
}

// Acknowledge marks a sent or escalated alert as seen by a caregiver.
// Acknowledging a resolved alert is rejected; re-acknowledging is a no-op.
func (s *AlertService) Acknowledge(ctx context.Context, id uuid.UUID, caregiverEmail string) (*models.Alert, error) {
	rows, err := s.alerts.Acknowledge(ctx, id, caregiverEmail, s.now())
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		alert, err := s.alerts.GetByID(ctx, id)
		if errors.Is(err, repository.ErrAlertNotFound) {
			return nil, apperrors.ErrAlertNotFound
		}
		if err != nil {
			return nil, err
		}
		switch alert.Status {
		case models.StatusAcknowledged:
			return alert, nil
		case models.StatusResolved:
			return nil, apperrors.ErrAlreadyResolved
		case models.StatusExpired:
			return nil, apperrors.ErrAlertExpired
		default:
			return nil, apperrors.ErrInvalidTransition
		}
	}

	s.logger.Info("alert acknowledged",
		zap.String("alert_id", id.String()),
		zap.String("by", caregiverEmail),
	)
	return s.alerts.GetByID(ctx, id)
}

// Resolve closes an alert from any non-terminal state. Resolving an
// already-resolved alert is a no-op; resolving an expired one is rejected.
func (s *AlertService) Resolve(ctx context.Context, id uuid.UUID, caregiverEmail string, note *string) (*models.Alert, error) {
	rows, err := s.alerts.Resolve(ctx, id, caregiverEmail, note, s.now())
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		alert, err := s.alerts.GetByID(ctx, id)
		if errors.Is(err, repository.ErrAlertNotFound) {
			return nil, apperrors.ErrAlertNotFound
		}
		if err != nil {
			return nil, err
		}
		if alert.Status == models.StatusResolved {
			return alert, nil
		}
		return nil, apperrors.ErrAlertExpired
	}

	s.logger.Info("alert resolved",
		zap.String("alert_id", id.String()),
		zap.String("by", caregiverEmail),
	)
	return s.alerts.GetByID(ctx, id)
}

// GetAlertsForCaregiver returns alerts across every sharer the caregiver is
// actively linked to. A caregiver with no relationships sees an empty list.
func (s *AlertService) GetAlertsForCaregiver(ctx context.Context, caregiverEmail string, filters models.AlertFilters) ([]models.Alert, int, error) {
	sharers, err := s.directory.SharersForCaregiver(ctx, caregiverEmail)
	if err != nil {
		return nil, 0, err
	}
	if len(sharers) == 0 {
		return []models.Alert{}, 0, nil
	}
	return s.alerts.ListBySharers(ctx, sharers, filters)
}

// GetAlertsForSharer returns a sharer's alerts to a caregiver holding an
// active relationship. Without one the result is an empty list, not an
// error, so callers cannot probe for a sharer's existence.
func (s *AlertService) GetAlertsForSharer(ctx context.Context, sharerEmail, caregiverEmail string, filters models.AlertFilters) ([]models.Alert, int, error) {
	ok, err := s.directory.ActiveExists(ctx, sharerEmail, caregiverEmail)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return []models.Alert{}, 0, nil
	}
	return s.alerts.ListBySharers(ctx, []string{sharerEmail}, filters)
}

func directionWord(direction string) string {
	switch direction {
	case "up", "above", "increase":
		return "above"
	case "down", "below", "decrease":
		return "below"
	default:
		return "off"
	}
}
