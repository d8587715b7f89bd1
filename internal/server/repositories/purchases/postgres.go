package purchases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/zoneboard/internal/common"
	"github.com/dmitrijs2005/zoneboard/internal/dbx"
	"github.com/dmitrijs2005/zoneboard/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindByToken(ctx context.Context, purchaseToken string) (*models.PurchaseToken, error) {
	query := `
		SELECT id, user_id, product_id, purchase_token, order_id, purchase_time, raw_response, created_at
		FROM purchase_tokens
		WHERE purchase_token = $1
	`
	p := &models.PurchaseToken{}
	var raw []byte
	err := r.db.QueryRowContext(ctx, query, purchaseToken).Scan(
		&p.ID, &p.UserID, &p.ProductID, &p.PurchaseToken, &p.OrderID, &p.PurchaseTime, &raw, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	p.RawResponse = raw
	return p, nil
}

func (r *PostgresRepository) Create(ctx context.Context, p models.PurchaseToken) error {
	query := `
		INSERT INTO purchase_tokens (id, user_id, product_id, purchase_token, order_id, purchase_time, raw_response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	var raw any
	if len(p.RawResponse) > 0 {
		raw = string(p.RawResponse)
	}

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.UserID, p.ProductID, p.PurchaseToken, p.OrderID, p.PurchaseTime, raw, p.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
