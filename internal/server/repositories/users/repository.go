package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/server/models"
)

type Repository interface {
	// Upsert returns the user for a normalized email, creating it on first sight.
	Upsert(ctx context.Context, email string, now time.Time) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// LockByID takes a row lock on the user for the rest of the transaction.
	LockByID(ctx context.Context, id string) error
}
