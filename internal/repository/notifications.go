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

// ErrNoDeviceToken is returned when a caregiver has no deliverable address on
// the requested channel. Dispatch treats it as a skip, never a failure.
var ErrNoDeviceToken = errors.New("no active device token")

type DeviceTokenRepository struct {
	db *Database
}

func NewDeviceTokenRepository(db *Database) *DeviceTokenRepository {
	return &DeviceTokenRepository{db: db}
}

func (r *DeviceTokenRepository) ActiveToken(ctx context.Context, caregiverEmail, channel string) (string, error) {
	var token string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT token FROM device_tokens
		WHERE caregiver_email = $1 AND channel = $2 AND status = 1
		ORDER BY created_at DESC LIMIT 1
	`, caregiverEmail, channel).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNoDeviceToken
	}
	if err != nil {
		return "", fmt.Errorf("resolving %s token for %s: %w", channel, caregiverEmail, err)
	}
	return token, nil
}

// NotificationAttemptRepository records the per-recipient dispatch audit log.
type NotificationAttemptRepository struct {
	db *Database
}

func NewNotificationAttemptRepository(db *Database) *NotificationAttemptRepository {
	return &NotificationAttemptRepository{db: db}
}

func (r *NotificationAttemptRepository) Record(ctx context.Context, attempt *models.NotificationAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO notification_attempts (id, alert_id, caregiver_email, channel, priority, success, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, attempt.ID, attempt.AlertID, attempt.CaregiverEmail, attempt.Channel, attempt.Priority,
		attempt.Success, attempt.Error, attempt.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording notification attempt: %w", err)
	}
	return nil
}
