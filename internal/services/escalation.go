package services

import (
	"care-alert/internal/models"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Dispatcher issues notifications for an alert. Satisfied by DispatchEngine.
type Dispatcher interface {
	Notify(ctx context.Context, alert *models.Alert, recipients []models.CaregiverRef, channels []string, escalated bool)
}

// DefaultEscalationRules is the static rule table: one active rule per
// escalatable severity. Low and info alerts age out without escalation.
// Grace periods can be tuned via escalation.<severity>_after_minutes.
func DefaultEscalationRules() []models.EscalationRule {
	rules := []models.EscalationRule{
		{Severity: models.SeverityCritical, AfterMinutes: 10, EscalateTo: models.EscalateToAll, Channels: []string{models.ChannelPush}},
		{Severity: models.SeverityHigh, AfterMinutes: 30, EscalateTo: models.EscalateToSecondary, Channels: []string{models.ChannelPush}},
		{Severity: models.SeverityMedium, AfterMinutes: 120, EscalateTo: models.EscalateToSecondary, Channels: []string{models.ChannelPush}},
	}
	for i := range rules {
		key := "escalation." + rules[i].Severity.String() + "_after_minutes"
		if v := viper.GetInt(key); v > 0 {
			rules[i].AfterMinutes = v
		}
	}
	return rules
}

// EscalationSweeper finds alerts stuck in "sent" past their severity's grace
// period and widens the notified audience. Safe to run concurrently: the
// sent -> escalated transition is a compare-and-set and already-escalated
// alerts are excluded from the eligible query.
type EscalationSweeper struct {
	alerts      AlertStore
	directory   RelationshipDirectory
	dispatcher  Dispatcher
	broadcaster Broadcaster
	rules       []models.EscalationRule
	interval    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func NewEscalationSweeper(
	alerts AlertStore,
	directory RelationshipDirectory,
	dispatcher Dispatcher,
	broadcaster Broadcaster,
	rules []models.EscalationRule,
	interval time.Duration,
	logger *zap.Logger,
) *EscalationSweeper {
	return &EscalationSweeper{
		alerts:      alerts,
		directory:   directory,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		rules:       rules,
		interval:    interval,
		logger:      logger,
		now:         time.Now,
	}
}

// Start runs the sweep on a fixed cadence until ctx is cancelled.
func (s *EscalationSweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			count, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error("escalation sweep finished with errors", zap.Error(err))
			}
			if count > 0 {
				s.logger.Info("escalation sweep complete", zap.Int("escalated", count))
			}
		}
	}
}

// Sweep processes every escalation rule once and returns how many alerts were
// escalated. Sweeping is idempotent: an alert escalated in one run is no
// longer eligible in the next.
func (s *EscalationSweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	var errs []error

	if n, err := s.alerts.ExpireOverdue(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("expiring alerts: %w", err))
	} else if n > 0 {
		s.logger.Info("expired overdue alerts", zap.Int64("count", n))
	}

	escalated := 0
	for _, rule := range s.rules {
		eligible, err := s.alerts.ListEscalatable(ctx, rule.Severity, rule.Cutoff(now))
		if err != nil {
			errs = append(errs, fmt.Errorf("listing %s alerts: %w", rule.Severity, err))
			continue
		}
		for i := range eligible {
			if s.escalateOne(ctx, rule, &eligible[i], now) {
				escalated++
			}
		}
	}
	return escalated, errors.Join(errs...)
}

func (s *EscalationSweeper) escalateOne(ctx context.Context, rule models.EscalationRule, alert *models.Alert, now time.Time) bool {
	additional, err := s.additionalRecipients(ctx, rule, alert)
	if err != nil {
		s.logger.Error("computing escalation recipients failed",
			zap.String("alert_id", alert.ID.String()),
			zap.Error(err),
		)
		return false
	}
	if len(additional) == 0 {
		s.logger.Debug("no additional recipients to escalate to",
			zap.String("alert_id", alert.ID.String()),
			zap.String("escalate_to", rule.EscalateTo),
		)
		return false
	}

	emails := make([]string, len(additional))
	for i, cg := range additional {
		emails[i] = cg.Email
	}

	ok, err := s.alerts.MarkEscalated(ctx, alert.ID, emails, now)
	if err != nil {
		s.logger.Error("escalation transition failed",
			zap.String("alert_id", alert.ID.String()),
			zap.Error(err),
		)
		return false
	}
	if !ok {
		// Another sweep or an acknowledgement won the race.
		return false
	}

	alert.Status = models.StatusEscalated
	alert.EscalatedAt = &now
	alert.RoutedToCaregivers = append(alert.RoutedToCaregivers, emails...)

	s.logger.Info("alert escalated",
		zap.String("alert_id", alert.ID.String()),
		zap.String("severity", alert.Severity.String()),
		zap.String("escalate_to", rule.EscalateTo),
		zap.Strings("additional", emails),
	)

	// Only the newly added caregivers are notified; everyone in the original
	// audience already got the first dispatch.
	s.dispatcher.Notify(ctx, alert, additional, rule.Channels, true)

	if s.broadcaster != nil {
		s.broadcaster.SendAlertEvent(&AlertEvent{
			AlertID:     alert.ID.String(),
			SharerEmail: alert.SharerEmail,
			AlertType:   string(alert.AlertType),
			Severity:    alert.Severity.String(),
			Status:      string(models.StatusEscalated),
			Title:       alert.Title,
			Timestamp:   now,
		})
	}
	return true
}

func (s *EscalationSweeper) additionalRecipients(ctx context.Context, rule models.EscalationRule, alert *models.Alert) ([]models.CaregiverRef, error) {
	var rels []models.Relationship
	var err error

	switch rule.EscalateTo {
	case models.EscalateToSecondary:
		rels, err = s.directory.ListActiveByRole(ctx, alert.SharerEmail, models.RoleSecondary)
	case models.EscalateToAll:
		rels, err = s.directory.ListActive(ctx, alert.SharerEmail)
	case models.EscalateToClinical, models.EscalateToEmergency:
		// Accepted in the rule schema but no recipient expansion is wired for
		// these tiers yet.
		s.logger.Debug("escalation tier has no recipient expansion",
			zap.String("escalate_to", rule.EscalateTo))
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown escalation target %q", rule.EscalateTo)
	}
	if err != nil {
		return nil, err
	}

	additional := []models.CaregiverRef{}
	for _, rel := range rels {
		if alert.AlreadyRouted(rel.CaregiverEmail) {
			continue
		}
		additional = append(additional, models.CaregiverRef{Email: rel.CaregiverEmail, Role: rel.Role})
	}
	return additional, nil
}
