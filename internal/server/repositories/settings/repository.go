// Package settings persists versioned settings snapshots.
package settings

import (
	"context"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/server/models"
)

type Repository interface {
	// Latest returns the highest-version live snapshot or common.ErrorNotFound.
	Latest(ctx context.Context, userID string) (*models.SettingsSnapshot, error)

	// LatestVersion returns nil when the user has never saved settings.
	LatestVersion(ctx context.Context, userID string) (*int64, error)

	// Create inserts a snapshot. A duplicate (user, version) yields
	// common.ErrVersionConflict.
	Create(ctx context.Context, s models.SettingsSnapshot) error

	// ListActiveNewestFirst lists live snapshots by descending version.
	// Only ID, UserID, Version and CreatedAt are populated.
	ListActiveNewestFirst(ctx context.Context, userID string) ([]models.SettingsSnapshot, error)

	SoftDelete(ctx context.Context, id string, now time.Time) error
}
