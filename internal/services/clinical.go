package services

import (
	"care-alert/internal/models"
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ClinicalStore is the persistence boundary for clinical coordination reads
// and clinical-alert writes.
type ClinicalStore interface {
	ListCoordinations(ctx context.Context, sharerEmail string) ([]models.ClinicalCoordination, error)
	CreateClinicalAlert(ctx context.Context, ca *models.ClinicalAlert) error
}

// ClinicalRouter creates clinical-alert records for a sharer's providers.
// Record creation is the whole side effect today; delivery to the provider is
// a future transport integration.
type ClinicalRouter struct {
	store  ClinicalStore
	logger *zap.Logger
}

func NewClinicalRouter(store ClinicalStore, logger *zap.Logger) *ClinicalRouter {
	return &ClinicalRouter{store: store, logger: logger}
}

// NotifyClinical writes one clinical-alert record per coordination with
// alerting enabled. Partial failures are logged and the loop continues; the
// returned error covers only the coordination lookup, and callers treat even
// that as non-fatal to the alert itself.
func (r *ClinicalRouter) NotifyClinical(ctx context.Context, sharerEmail string, alert *models.Alert) error {
	coords, err := r.store.ListCoordinations(ctx, sharerEmail)
	if err != nil {
		return fmt.Errorf("listing clinical coordinations: %w", err)
	}

	summary := fmt.Sprintf("%s alert for %s: %s", alert.Severity, sharerEmail, alert.Title)
	for _, coord := range coords {
		ca := &models.ClinicalAlert{
			CoordinationID:      coord.ID,
			SharerEmail:         sharerEmail,
			AlertID:             alert.ID,
			Severity:            alert.Severity,
			Title:               alert.Title,
			Summary:             summary,
			Context:             alert.Context,
			VisibleToCaregivers: true,
			CreatedAt:           alert.CreatedAt,
		}
		if err := r.store.CreateClinicalAlert(ctx, ca); err != nil {
			r.logger.Error("creating clinical alert failed",
				zap.String("sharer", sharerEmail),
				zap.String("provider", coord.ProviderName),
				zap.Error(err),
			)
			continue
		}
		r.logger.Info("clinical alert recorded",
			zap.String("sharer", sharerEmail),
			zap.String("provider", coord.ProviderName),
			zap.String("alert_id", alert.ID.String()),
		)
	}
	return nil
}
