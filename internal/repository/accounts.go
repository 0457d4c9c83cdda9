package repository

import (
	"care-alert/internal/models"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var ErrAccountNotFound = errors.New("caregiver account not found")

// CaregiverAccountRepository backs caregiver login. Accounts are provisioned
// by the surrounding application; this engine only authenticates against them.
type CaregiverAccountRepository struct {
	db *Database
}

func NewCaregiverAccountRepository(db *Database) *CaregiverAccountRepository {
	return &CaregiverAccountRepository{db: db}
}

func (r *CaregiverAccountRepository) GetByEmail(ctx context.Context, email string) (*models.CaregiverAccount, error) {
	var acc models.CaregiverAccount
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, email, password, name, status, created_at, last_login_at
		FROM caregiver_accounts WHERE email = $1
	`, email).Scan(&acc.ID, &acc.Email, &acc.Password, &acc.Name, &acc.Status,
		&acc.CreatedAt, &acc.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading account %s: %w", email, err)
	}
	return &acc, nil
}

func (r *CaregiverAccountRepository) UpdateLastLogin(ctx context.Context, email string, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE caregiver_accounts SET last_login_at = $1 WHERE email = $2`, at, email)
	if err != nil {
		return fmt.Errorf("updating last login for %s: %w", email, err)
	}
	return nil
}
