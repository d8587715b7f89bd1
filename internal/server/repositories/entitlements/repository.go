// Package entitlements persists per-user entitlement rows.
package entitlements

import (
	"context"

	"github.com/dmitrijs2005/zoneboard/internal/server/models"
)

type Repository interface {
	// ListActive returns the user's active entitlements ordered by key.
	ListActive(ctx context.Context, userID string) ([]models.Entitlement, error)

	// Apply writes a grant or a revocation.
	Apply(ctx context.Context, change models.EntitlementChange) error
}
