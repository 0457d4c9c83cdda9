package services

import (
	"care-alert/internal/models"
	"care-alert/internal/repository"
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Quiet-hours window for medium and lower severities: immediate dispatch only
// between 07:00 and 22:59 local time. Skipped sends are not queued; the
// escalation sweep is the recovery path for alerts nobody acknowledged.
const (
	quietHoursWakeHour  = 7
	quietHoursSleepHour = 22
)

const defaultMaxConcurrency = 8
const defaultSendTimeout = 10 * time.Second

// DeviceTokenStore resolves a caregiver's deliverable address on a channel.
// Returns repository.ErrNoDeviceToken when none exists.
type DeviceTokenStore interface {
	ActiveToken(ctx context.Context, caregiverEmail, channel string) (string, error)
}

// AttemptLog records the per-recipient dispatch audit trail.
type AttemptLog interface {
	Record(ctx context.Context, attempt *models.NotificationAttempt) error
}

// DispatchEngine fans an alert out to its recipients. Each recipient is
// independent: one missing token or transport failure never aborts the rest.
type DispatchEngine struct {
	tokens         DeviceTokenStore
	attempts       AttemptLog
	transports     map[string]Transport
	maxConcurrency int
	sendTimeout    time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

func NewDispatchEngine(tokens DeviceTokenStore, attempts AttemptLog, transports map[string]Transport, logger *zap.Logger) *DispatchEngine {
	return &DispatchEngine{
		tokens:         tokens,
		attempts:       attempts,
		transports:     transports,
		maxConcurrency: defaultMaxConcurrency,
		sendTimeout:    defaultSendTimeout,
		logger:         logger,
		now:            time.Now,
	}
}

// WithLimits overrides the fan-out cap and per-send timeout. Zero values keep
// the current setting.
func (e *DispatchEngine) WithLimits(maxConcurrency int, sendTimeout time.Duration) *DispatchEngine {
	if maxConcurrency > 0 {
		e.maxConcurrency = maxConcurrency
	}
	if sendTimeout > 0 {
		e.sendTimeout = sendTimeout
	}
	return e
}

// Notify dispatches the alert to every recipient on every requested channel,
// concurrently with a bounded fan-out, and waits for all attempts to settle.
// Failures are logged and audited, never returned: the caller's guarantee is
// "routed", not "delivered".
func (e *DispatchEngine) Notify(ctx context.Context, alert *models.Alert, recipients []models.CaregiverRef, channels []string, escalated bool) {
	if len(recipients) == 0 || len(channels) == 0 {
		return
	}

	title, body := FormatAlert(alert)
	if escalated {
		title = EscalatedTitle(title)
	}
	priority := models.PriorityFor(alert.Severity)
	data := map[string]string{
		"alert_id":     alert.ID.String(),
		"alert_type":   string(alert.AlertType),
		"severity":     alert.Severity.String(),
		"sharer_email": alert.SharerEmail,
	}

	g := &errgroup.Group{}
	g.SetLimit(e.maxConcurrency)
	for _, recipient := range recipients {
		for _, channel := range channels {
			recipient, channel := recipient, channel
			g.Go(func() error {
				e.sendOne(ctx, alert, recipient, channel, title, body, data, priority)
				return nil
			})
		}
	}
	g.Wait()
}

func (e *DispatchEngine) sendOne(ctx context.Context, alert *models.Alert, recipient models.CaregiverRef, channel, title, body string, data map[string]string, priority models.Priority) {
	if !e.sendNow(alert.Severity) {
		e.logger.Debug("outside active hours, skipping dispatch",
			zap.String("caregiver", recipient.Email),
			zap.String("severity", alert.Severity.String()),
		)
		return
	}

	transport, ok := e.transports[channel]
	if !ok {
		e.logger.Warn("no transport wired for channel",
			zap.String("channel", channel),
			zap.String("caregiver", recipient.Email),
		)
		return
	}

	token, err := e.tokens.ActiveToken(ctx, recipient.Email, channel)
	if err != nil {
		if errors.Is(err, repository.ErrNoDeviceToken) {
			e.logger.Warn("caregiver has no deliverable address",
				zap.String("caregiver", recipient.Email),
				zap.String("channel", channel),
			)
			e.record(ctx, alert, recipient, channel, priority, false, "no deliverable address")
			return
		}
		e.logger.Error("token lookup failed",
			zap.String("caregiver", recipient.Email),
			zap.String("channel", channel),
			zap.Error(err),
		)
		e.record(ctx, alert, recipient, channel, priority, false, err.Error())
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()
	if err := transport.Send(sendCtx, token, title, body, data, priority); err != nil {
		e.logger.Error("notification send failed",
			zap.String("alert_id", alert.ID.String()),
			zap.String("caregiver", recipient.Email),
			zap.String("channel", channel),
			zap.Error(err),
		)
		e.record(ctx, alert, recipient, channel, priority, false, err.Error())
		return
	}
	e.record(ctx, alert, recipient, channel, priority, true, "")
}

// sendNow applies the send-now policy: critical and high always go out
// immediately; lower tiers only inside the quiet-hours window.
func (e *DispatchEngine) sendNow(severity models.Severity) bool {
	if severity.AtLeast(models.SeverityHigh) {
		return true
	}
	hour := e.now().Hour()
	return hour >= quietHoursWakeHour && hour <= quietHoursSleepHour
}

func (e *DispatchEngine) record(ctx context.Context, alert *models.Alert, recipient models.CaregiverRef, channel string, priority models.Priority, success bool, errText string) {
	attempt := &models.NotificationAttempt{
		AlertID:        alert.ID,
		CaregiverEmail: recipient.Email,
		Channel:        channel,
		Priority:       priority,
		Success:        success,
		Error:          errText,
		CreatedAt:      e.now(),
	}
	if err := e.attempts.Record(ctx, attempt); err != nil {
		e.logger.Error("recording notification attempt failed",
			zap.String("alert_id", alert.ID.String()),
			zap.Error(err),
		)
	}
}
