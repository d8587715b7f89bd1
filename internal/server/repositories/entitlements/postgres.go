package entitlements

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/zoneboard/internal/dbx"
	"github.com/dmitrijs2005/zoneboard/internal/server/models"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ListActive(ctx context.Context, userID string) ([]models.Entitlement, error) {
	query := `
		SELECT id, user_id, key, status, source, revoked_at, created_at, updated_at
		FROM entitlements
		WHERE user_id = $1 AND status = 'active' AND deleted_at IS NULL
		ORDER BY key
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Entitlement
	for rows.Next() {
		var (
			e              models.Entitlement
			status, source string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Key, &status, &source, &e.RevokedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if e.Status, err = models.ParseEntitlementStatus(status); err != nil {
			return nil, err
		}
		if e.Source, err = models.ParseEntitlementSource(source); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) Apply(ctx context.Context, change models.EntitlementChange) error {
	switch c := change.(type) {
	case models.EntitlementGrant:
		return r.grant(ctx, c)
	case models.EntitlementRevocation:
		return r.revoke(ctx, c)
	default:
		return fmt.Errorf("unsupported entitlement change %T", change)
	}
}

func (r *PostgresRepository) grant(ctx context.Context, g models.EntitlementGrant) error {
	query := `
		INSERT INTO entitlements (id, user_id, key, status, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id, key) DO UPDATE
		SET status = EXCLUDED.status, source = EXCLUDED.source,
		    revoked_at = NULL, deleted_at = NULL, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query,
		uuid.NewString(), g.UserID(), g.Key(), string(g.Status()), string(g.Source()), g.At()); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) revoke(ctx context.Context, rv models.EntitlementRevocation) error {
	query := `
		UPDATE entitlements
		SET status = $3, revoked_at = $4, updated_at = $4
		WHERE user_id = $1 AND key = $2 AND status = 'active' AND deleted_at IS NULL
	`
	if _, err := r.db.ExecContext(ctx, query,
		rv.UserID(), rv.Key(), string(rv.Status()), rv.At()); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
