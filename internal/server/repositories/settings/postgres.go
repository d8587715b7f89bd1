package settings

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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Latest(ctx context.Context, userID string) (*models.SettingsSnapshot, error) {
	query := `
		SELECT id, user_id, device_id, version, settings_json, created_at, updated_at
		FROM settings_snapshots
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY version DESC
		LIMIT 1
	`
	s := &models.SettingsSnapshot{}
	var raw []byte
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&s.ID, &s.UserID, &s.DeviceID, &s.Version, &raw, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	s.SettingsJSON = raw
	return s, nil
}

func (r *PostgresRepository) LatestVersion(ctx context.Context, userID string) (*int64, error) {
	query := `
		SELECT MAX(version)
		FROM settings_snapshots
		WHERE user_id = $1
	`
	var v sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&v); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if !v.Valid {
		return nil, nil
	}
	return &v.Int64, nil
}

func (r *PostgresRepository) Create(ctx context.Context, s models.SettingsSnapshot) error {
	query := `
		INSERT INTO settings_snapshots (id, user_id, device_id, version, settings_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.DeviceID, s.Version, string(s.SettingsJSON), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, "settings_snapshots_user_version_uniq") {
			return common.ErrVersionConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListActiveNewestFirst(ctx context.Context, userID string) ([]models.SettingsSnapshot, error) {
	query := `
		SELECT id, user_id, version, created_at
		FROM settings_snapshots
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY version DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.SettingsSnapshot
	for rows.Next() {
		var s models.SettingsSnapshot
		if err := rows.Scan(&s.ID, &s.UserID, &s.Version, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE settings_snapshots
		SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`
	if _, err := r.db.ExecContext(ctx, query, id, now); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
