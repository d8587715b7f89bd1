// Package purchases stores which user claimed a store purchase token.
package purchases

import (
	"context"

	"github.com/dmitrijs2005/zoneboard/internal/server/models"
)

type Repository interface {
	// FindByToken returns common.ErrorNotFound for an unclaimed token.
	FindByToken(ctx context.Context, purchaseToken string) (*models.PurchaseToken, error)

	// Create claims the token. It returns common.ErrAlreadyExists when
	// another row already holds it.
	Create(ctx context.Context, p models.PurchaseToken) error
}
