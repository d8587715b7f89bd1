package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/server/purge"
	"github.com/dmitrijs2005/zoneboard/internal/server/repositories/repomanager"
)

// PurgeStore runs the purge sweep statements against the pool, one
// autocommitted statement per call.
type PurgeStore struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewPurgeStore(db *sql.DB, m repomanager.RepositoryManager) *PurgeStore {
	return &PurgeStore{db: db, repomanager: m}
}

func (p *PurgeStore) MarkStaleRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	return p.repomanager.RefreshTokens(p.db).MarkStale(ctx, now)
}

func (p *PurgeStore) DeleteExpiredLoginTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	return p.repomanager.LoginTokens(p.db).DeleteExpiredBefore(ctx, cutoff)
}

func (p *PurgeStore) PurgeSoftDeleted(ctx context.Context, entity purge.Entity, cutoff time.Time) (int64, error) {
	return p.repomanager.SoftDelete(p.db).PurgeBefore(ctx, string(entity), cutoff)
}

var _ purge.Store = (*PurgeStore)(nil)
