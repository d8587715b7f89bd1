// Package logintokens persists magic-link login tokens. Only token digests
// are stored.
package logintokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, token models.LoginToken) error

	// FindByHash returns common.ErrorNotFound when no row has the digest.
	FindByHash(ctx context.Context, tokenHash string) (*models.LoginToken, error)

	// MarkUsed consumes the token. It reports false when the token was
	// already used, so of two concurrent exchanges only one wins.
	MarkUsed(ctx context.Context, id string, now time.Time) (bool, error)

	// DeleteExpiredBefore removes tokens that expired before cutoff.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
