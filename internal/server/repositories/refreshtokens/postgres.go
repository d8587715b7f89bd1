// Package refreshtokens provides a PostgreSQL-backed repository for the
// refresh tokens issued by the magic-link login flow.
package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/common"
	"github.com/dmitrijs2005/zoneboard/internal/dbx"
	"github.com/dmitrijs2005/zoneboard/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts t.
func (r *PostgresRepository) Create(ctx context.Context, t models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, device_id, token_hash, created_at, expires_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.DeviceID, t.TokenHash, t.CreatedAt, t.ExpiresAt, t.LastUsedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindByHash returns the token row for the given digest.
// If not found, it returns common.ErrorNotFound.
func (r *PostgresRepository) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, device_id, token_hash, created_at, expires_at, last_used_at,
		       revoked_at, replaced_by_token_id, deleted_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	t := &models.RefreshToken{}
	if err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&t.ID, &t.UserID, &t.DeviceID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.LastUsedAt,
		&t.RevokedAt, &t.ReplacedByTokenID, &t.DeletedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// Revoke conditionally revokes the token with the given id.
func (r *PostgresRepository) Revoke(ctx context.Context, id string, upd models.RevokeUpdate, now time.Time) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2, replaced_by_token_id = $3, last_used_at = $4
		WHERE id = $1
		  AND revoked_at IS NULL
		  AND deleted_at IS NULL
		  AND expires_at > $5
	`
	res, err := r.db.ExecContext(ctx, query, id, upd.RevokedAt, upd.ReplacedByTokenID, upd.LastUsedAt, now)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return dbx.SingleRow(res)
}

// MarkStale stamps deleted_at on every revoked or expired row that is not
// yet soft-deleted.
func (r *PostgresRepository) MarkStale(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET deleted_at = $1
		WHERE deleted_at IS NULL
		  AND (revoked_at IS NOT NULL OR expires_at <= $1)
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
