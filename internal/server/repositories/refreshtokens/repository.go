// Package refreshtokens declares the server-side repository contract for
// rotating refresh tokens.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/server/models"
)

// Repository stores refresh tokens by digest and applies rotation writes.
type Repository interface {
	// Create stores a new active token row.
	Create(ctx context.Context, token models.RefreshToken) error

	// FindByHash returns the row with the given digest, including revoked and
	// soft-deleted rows so replays can be told apart from unknown tokens.
	// Implementations return common.ErrorNotFound when the digest is absent.
	FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Revoke applies upd only while the row is still active at now and
	// reports whether it did. A false result means another request revoked
	// the token first.
	Revoke(ctx context.Context, id string, upd models.RevokeUpdate, now time.Time) (bool, error)

	// MarkStale soft-deletes revoked and expired rows.
	MarkStale(ctx context.Context, now time.Time) (int64, error)
}
