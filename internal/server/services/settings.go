package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/common"
	"github.com/dmitrijs2005/zoneboard/internal/dbx"
	"github.com/dmitrijs2005/zoneboard/internal/logging"
	"github.com/dmitrijs2005/zoneboard/internal/server/config"
	"github.com/dmitrijs2005/zoneboard/internal/server/models"
	"github.com/dmitrijs2005/zoneboard/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/zoneboard/internal/server/settings"
	"github.com/google/uuid"
)

// SettingsService stores versioned settings documents with optimistic
// concurrency.
type SettingsService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	maxBytes    int
	retain      int
}

func NewSettingsService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *SettingsService {
	return &SettingsService{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "settings"),
		maxBytes:    cfg.SettingsMaxBytes,
		retain:      cfg.SettingsRetainCount,
	}
}

// Latest returns the newest snapshot or common.ErrorNotFound.
func (s *SettingsService) Latest(ctx context.Context, userID string) (*models.SettingsSnapshot, error) {
	snap, err := s.repomanager.Settings(s.db).Latest(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting settings: %w", err)
	}
	return snap, nil
}

// Save accepts version when it is greater than every stored version, then
// soft-deletes snapshots beyond the retention count. Writers for the same
// user are serialized on the user row.
func (s *SettingsService) Save(ctx context.Context, userID string, deviceID *string, version int64, raw json.RawMessage, now time.Time) (*models.SettingsSnapshot, error) {
	if version < 0 {
		return nil, fmt.Errorf("%w: version must not be negative", common.ErrInvalidInput)
	}

	doc, err := settings.SerializeObject(raw, s.maxBytes)
	if err != nil {
		return nil, err
	}

	snap := models.SettingsSnapshot{
		ID:           uuid.NewString(),
		UserID:       userID,
		DeviceID:     deviceID,
		Version:      version,
		SettingsJSON: doc.JSON,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var pruned int
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).LockByID(ctx, userID); err != nil {
			return fmt.Errorf("error locking user: %w", err)
		}

		repo := s.repomanager.Settings(tx)

		latest, err := repo.LatestVersion(ctx, userID)
		if err != nil {
			return fmt.Errorf("error reading settings version: %w", err)
		}
		if !settings.IsVersionAccepted(latest, version) {
			return fmt.Errorf("%w: version %d is not newer than %d", common.ErrVersionConflict, version, *latest)
		}

		if err := repo.Create(ctx, snap); err != nil {
			return err
		}

		live, err := repo.ListActiveNewestFirst(ctx, userID)
		if err != nil {
			return fmt.Errorf("error listing settings: %w", err)
		}
		for _, id := range settings.SelectRetentionDeletes(live, s.retain) {
			if err := repo.SoftDelete(ctx, id, now); err != nil {
				return fmt.Errorf("error pruning settings %s: %w", id, err)
			}
			pruned++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "settings saved", "user_id", userID, "version", version, "bytes", doc.Size, "pruned", pruned)
	return &snap, nil
}
