package repository

import (
	"care-alert/internal/models"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrAlertNotFound is returned when an alert id does not exist.
var ErrAlertNotFound = errors.New("alert not found")

const alertColumns = `id, sharer_email, alert_type, severity, title, message, recommendation,
	context, routed_to_caregivers, routed_to_clinical, status, created_at, expires_at,
	acknowledged_at, acknowledged_by, resolved_at, resolved_by, resolution_note, escalated_at`

type AlertRepository struct {
	db *Database
}

func NewAlertRepository(db *Database) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO alerts (id, sharer_email, alert_type, severity, title, message, recommendation,
			context, routed_to_caregivers, routed_to_clinical, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, alert.ID, alert.SharerEmail, alert.AlertType, alert.Severity, alert.Title, alert.Message,
		alert.Recommendation, alert.Context, alert.RoutedToCaregivers, alert.RoutedToClinical,
		alert.Status, alert.CreatedAt, alert.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting alert: %w", err)
	}
	return nil
}

func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	alert, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading alert %s: %w", id, err)
	}
	return alert, nil
}

// MarkSent moves a freshly created alert out of pending once its first
// dispatch pass has run. A no-op when the sweep already moved it on.
func (r *AlertRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE alerts SET status = $1 WHERE id = $2 AND status = $3`,
		models.StatusSent, id, models.StatusPending)
	if err != nil {
		return fmt.Errorf("marking alert %s sent: %w", id, err)
	}
	return nil
}

// Acknowledge transitions sent/escalated to acknowledged. Returns the number
// of rows updated so the caller can tell a lost race from success.
func (r *AlertRepository) Acknowledge(ctx context.Context, id uuid.UUID, by string, at time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE alerts SET status = $1, acknowledged_at = $2, acknowledged_by = $3
		WHERE id = $4 AND status IN ($5, $6)
	`, models.StatusAcknowledged, at, by, id, models.StatusSent, models.StatusEscalated)
	if err != nil {
		return 0, fmt.Errorf("acknowledging alert %s: %w", id, err)
	}
	return tag.RowsAffected(), nil
}

// Resolve transitions any non-terminal status to resolved.
func (r *AlertRepository) Resolve(ctx context.Context, id uuid.UUID, by string, note *string, at time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE alerts SET status = $1, resolved_at = $2, resolved_by = $3, resolution_note = $4
		WHERE id = $5 AND status NOT IN ($6, $7)
	`, models.StatusResolved, at, by, note, id, models.StatusResolved, models.StatusExpired)
	if err != nil {
		return 0, fmt.Errorf("resolving alert %s: %w", id, err)
	}
	return tag.RowsAffected(), nil
}

// MarkEscalated appends the additional caregivers and flips sent -> escalated
// in one compare-and-set so overlapping sweep runs cannot double-escalate.
func (r *AlertRepository) MarkEscalated(ctx context.Context, id uuid.UUID, additional []string, at time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE alerts
		SET status = $1, escalated_at = $2, routed_to_caregivers = routed_to_caregivers || $3
		WHERE id = $4 AND status = $5 AND escalated_at IS NULL
	`, models.StatusEscalated, at, additional, id, models.StatusSent)
	if err != nil {
		return false, fmt.Errorf("escalating alert %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListEscalatable returns sent, never-escalated alerts of the given severity
// created before cutoff.
func (r *AlertRepository) ListEscalatable(ctx context.Context, severity models.Severity, cutoff time.Time) ([]models.Alert, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE severity = $1 AND status = $2 AND created_at < $3 AND escalated_at IS NULL
		ORDER BY created_at
	`, severity, models.StatusSent, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing escalatable alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// ExpireOverdue marks pending/sent alerts past their expiry as expired.
func (r *AlertRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE alerts SET status = $1
		WHERE status IN ($2, $3) AND expires_at < $4
	`, models.StatusExpired, models.StatusPending, models.StatusSent, now)
	if err != nil {
		return 0, fmt.Errorf("expiring alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListBySharers returns alerts for the given sharer set, newest first.
func (r *AlertRepository) ListBySharers(ctx context.Context, sharers []string, filters models.AlertFilters) ([]models.Alert, int, error) {
	if len(sharers) == 0 {
		return []models.Alert{}, 0, nil
	}

	where := `WHERE sharer_email = ANY($1)`
	args := []any{sharers}
	if filters.Status != "" {
		args = append(args, filters.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filters.Severity != nil {
		args = append(args, *filters.Severity)
		where += fmt.Sprintf(" AND severity = $%d", len(args))
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting alerts: %w", err)
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	pageSize := filters.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`SELECT `+alertColumns+` FROM alerts %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing alerts: %w", err)
	}
	defer rows.Close()

	alerts, err := scanAlerts(rows)
	if err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

func scanAlert(row pgx.Row) (*models.Alert, error) {
	var a models.Alert
	err := row.Scan(&a.ID, &a.SharerEmail, &a.AlertType, &a.Severity, &a.Title, &a.Message,
		&a.Recommendation, &a.Context, &a.RoutedToCaregivers, &a.RoutedToClinical, &a.Status,
		&a.CreatedAt, &a.ExpiresAt, &a.AcknowledgedAt, &a.AcknowledgedBy, &a.ResolvedAt,
		&a.ResolvedBy, &a.ResolutionNote, &a.EscalatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAlerts(rows pgx.Rows) ([]models.Alert, error) {
	alerts := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert row: %w", err)
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading alert rows: %w", err)
	}
	return alerts, nil
}
