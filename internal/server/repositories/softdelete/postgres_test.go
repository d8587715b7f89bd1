package softdelete

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/zoneboard/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurgeBefore(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepository(db)

	cutoff := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, table := range Tables {
		mock.ExpectExec(`^DELETE\s+FROM\s+` + table + `\s+WHERE\s+ctid\s+IN\s+\(SELECT\s+ctid\s+FROM\s+` + table +
			`\s+WHERE\s+deleted_at\s+IS\s+NOT\s+NULL\s+AND\s+deleted_at\s*<\s*\$1\s+LIMIT\s+\$2\)$`).
			WithArgs(cutoff, DefaultBatchSize).
			WillReturnResult(sqlmock.NewResult(0, int64(i+1)))
	}

	for i, table := range Tables {
		n, err := repo.PurgeBefore(context.Background(), table, cutoff)
		require.NoError(t, err, table)
		assert.Equal(t, int64(i+1), n, table)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeBefore_DeletesInBatches(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepository(db)
	repo.batchSize = 2

	cutoff := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, n := range []int64{2, 2, 1} {
		mock.ExpectExec(`DELETE FROM settings_snapshots WHERE ctid IN`).
			WithArgs(cutoff, 2).
			WillReturnResult(sqlmock.NewResult(0, n))
	}

	n, err := repo.PurgeBefore(context.Background(), "settings_snapshots", cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeBefore_FullLastBatchNeedsOneMoreRound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepository(db)
	repo.batchSize = 3

	for _, n := range []int64{3, 0} {
		mock.ExpectExec(`DELETE FROM refresh_tokens WHERE ctid IN`).WillReturnResult(sqlmock.NewResult(0, n))
	}

	n, err := repo.PurgeBefore(context.Background(), "refresh_tokens", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeBefore_ErrorKeepsEarlierBatches(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepository(db)
	repo.batchSize = 2

	mock.ExpectExec(`DELETE FROM entitlements`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM entitlements`).WillReturnError(errors.New("lock timeout"))

	n, err := repo.PurgeBefore(context.Background(), "entitlements", time.Now())
	assert.ErrorContains(t, err, "db error: lock timeout")
	assert.Equal(t, int64(2), n)
}

func TestPurgeBefore_StopsWhenCancelled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := NewPostgresRepository(db).PurgeBefore(ctx, "entitlements", time.Now())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet(), "no statement issued")
}

func TestPurgeBefore_RejectsUnknownTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewPostgresRepository(db).PurgeBefore(context.Background(), "users; DROP TABLE users", time.Now())
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet(), "no statement issued")
}

func TestPurgeBefore_DBError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM entitlements`).WillReturnError(errors.New("lock timeout"))

	_, err = NewPostgresRepository(db).PurgeBefore(context.Background(), "entitlements", time.Now())
	assert.ErrorContains(t, err, "db error: lock timeout")
}
