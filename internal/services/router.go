package services

import (
	"care-alert/internal/models"
	"context"
	"fmt"

	"go.uber.org/zap"
)

// RelationshipDirectory answers who may receive alerts about a sharer. Backed
// by the relationship repository, optionally behind a cache.
type RelationshipDirectory interface {
	ListActive(ctx context.Context, sharerEmail string) ([]models.Relationship, error)
	ListActiveByRole(ctx context.Context, sharerEmail, role string) ([]models.Relationship, error)
	SharersForCaregiver(ctx context.Context, caregiverEmail string) ([]string, error)
	ActiveExists(ctx context.Context, sharerEmail, caregiverEmail string) (bool, error)
}

// RouteResult is the computed audience for one alert.
type RouteResult struct {
	Caregivers      []models.CaregiverRef
	RouteToClinical bool
}

// CaregiverRouter computes the eligible caregiver set for an alert and
// whether clinical routing applies.
type CaregiverRouter struct {
	directory RelationshipDirectory
	logger    *zap.Logger
}

func NewCaregiverRouter(directory RelationshipDirectory, logger *zap.Logger) *CaregiverRouter {
	return &CaregiverRouter{directory: directory, logger: logger}
}

// Route filters the sharer's active relationships by the per-severity receive
// permission (absent flag means receive). Clinical routing is decided
// independently of caregiver permissions: critical severity and detected
// falls always route clinically. The returned caregiver list is unordered.
func (r *CaregiverRouter) Route(ctx context.Context, sharerEmail string, alertType models.AlertType, severity models.Severity) (*RouteResult, error) {
	rels, err := r.directory.ListActive(ctx, sharerEmail)
	if err != nil {
		return nil, fmt.Errorf("routing alert for %s: %w", sharerEmail, err)
	}

	caregivers := []models.CaregiverRef{}
	for _, rel := range rels {
		if !rel.Permissions.Allows(severity) {
			r.logger.Debug("caregiver opted out of severity tier",
				zap.String("caregiver", rel.CaregiverEmail),
				zap.String("severity", severity.String()),
			)
			continue
		}
		caregivers = append(caregivers, models.CaregiverRef{Email: rel.CaregiverEmail, Role: rel.Role})
	}

	return &RouteResult{
		Caregivers:      caregivers,
		RouteToClinical: severity == models.SeverityCritical || alertType == models.AlertFallDetected,
	}, nil
}
