package repository

import (
	"care-alert/internal/models"
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ClinicalRepository reads clinical coordination records and writes the
// clinical-alert records that summarize routed events for providers.
type ClinicalRepository struct {
	db *Database
}

func NewClinicalRepository(db *Database) *ClinicalRepository {
	return &ClinicalRepository{db: db}
}

// ListCoordinations returns the sharer's active coordinations with alerting
// enabled.
func (r *ClinicalRepository) ListCoordinations(ctx context.Context, sharerEmail string) ([]models.ClinicalCoordination, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, sharer_email, provider_name, provider_email, alerting_enabled, status, created_at
		FROM clinical_coordinations
		WHERE sharer_email = $1 AND alerting_enabled = TRUE AND status = 'active'
	`, sharerEmail)
	if err != nil {
		return nil, fmt.Errorf("listing clinical coordinations for %s: %w", sharerEmail, err)
	}
	defer rows.Close()

	coords := []models.ClinicalCoordination{}
	for rows.Next() {
		var c models.ClinicalCoordination
		if err := rows.Scan(&c.ID, &c.SharerEmail, &c.ProviderName, &c.ProviderEmail,
			&c.AlertingEnabled, &c.Status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning clinical coordination row: %w", err)
		}
		coords = append(coords, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading clinical coordination rows: %w", err)
	}
	return coords, nil
}

func (r *ClinicalRepository) CreateClinicalAlert(ctx context.Context, ca *models.ClinicalAlert) error {
	if ca.ID == uuid.Nil {
		ca.ID = uuid.New()
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO clinical_alerts (id, coordination_id, sharer_email, alert_id, severity, title,
			summary, context, visible_to_caregivers, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, ca.ID, ca.CoordinationID, ca.SharerEmail, ca.AlertID, ca.Severity, ca.Title,
		ca.Summary, ca.Context, ca.VisibleToCaregivers, ca.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting clinical alert: %w", err)
	}
	return nil
}
