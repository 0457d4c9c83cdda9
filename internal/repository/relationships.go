package repository

import (
	"care-alert/internal/models"
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const relationshipActive = "active"

const relationshipColumns = `id, sharer_email, caregiver_email, role, status, permissions, created_at`

// RelationshipRepository reads the externally owned sharer-caregiver
// directory. This engine never writes relationships.
type RelationshipRepository struct {
	db *Database
}

func NewRelationshipRepository(db *Database) *RelationshipRepository {
	return &RelationshipRepository{db: db}
}

func (r *RelationshipRepository) ListActive(ctx context.Context, sharerEmail string) ([]models.Relationship, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE sharer_email = $1 AND status = $2
	`, sharerEmail, relationshipActive)
	if err != nil {
		return nil, fmt.Errorf("listing relationships for %s: %w", sharerEmail, err)
	}
	defer rows.Close()
	return scanRelationships(rows)
}

func (r *RelationshipRepository) ListActiveByRole(ctx context.Context, sharerEmail, role string) ([]models.Relationship, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE sharer_email = $1 AND status = $2 AND role = $3
	`, sharerEmail, relationshipActive, role)
	if err != nil {
		return nil, fmt.Errorf("listing %s relationships for %s: %w", role, sharerEmail, err)
	}
	defer rows.Close()
	return scanRelationships(rows)
}

// SharersForCaregiver returns every sharer the caregiver is actively linked
// to. Alert queries are always scoped through this set.
func (r *RelationshipRepository) SharersForCaregiver(ctx context.Context, caregiverEmail string) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT sharer_email FROM relationships
		WHERE caregiver_email = $1 AND status = $2
	`, caregiverEmail, relationshipActive)
	if err != nil {
		return nil, fmt.Errorf("listing sharers for %s: %w", caregiverEmail, err)
	}
	defer rows.Close()

	sharers := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning sharer email: %w", err)
		}
		sharers = append(sharers, s)
	}
	return sharers, rows.Err()
}

func (r *RelationshipRepository) ActiveExists(ctx context.Context, sharerEmail, caregiverEmail string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM relationships
			WHERE sharer_email = $1 AND caregiver_email = $2 AND status = $3
		)
	`, sharerEmail, caregiverEmail, relationshipActive).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking relationship %s/%s: %w", sharerEmail, caregiverEmail, err)
	}
	return exists, nil
}

func scanRelationships(rows pgx.Rows) ([]models.Relationship, error) {
	rels := []models.Relationship{}
	for rows.Next() {
		var rel models.Relationship
		if err := rows.Scan(&rel.ID, &rel.SharerEmail, &rel.CaregiverEmail, &rel.Role,
			&rel.Status, &rel.Permissions, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning relationship row: %w", err)
		}
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading relationship rows: %w", err)
	}
	return rels, nil
}
