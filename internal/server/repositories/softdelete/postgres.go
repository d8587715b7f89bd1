package softdelete

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/common"
	"github.com/dmitrijs2005/zoneboard/internal/dbx"
)

// Tables that carry a deleted_at column and may be purged.
var Tables = []string{"refresh_tokens", "entitlements", "settings_snapshots"}

// DefaultBatchSize caps the rows removed by one DELETE statement.
const DefaultBatchSize = 1000

var purgeQueries = func() map[string]string {
	m := make(map[string]string, len(Tables))
	for _, t := range Tables {
		m[t] = fmt.Sprintf(`DELETE FROM %[1]s WHERE ctid IN (SELECT ctid FROM %[1]s WHERE deleted_at IS NOT NULL AND deleted_at < $1 LIMIT $2)`, t)
	}
	return m
}()

type PostgresRepository struct {
	db        dbx.DBTX
	batchSize int
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db, batchSize: DefaultBatchSize}
}

// PurgeBefore deletes in batches of batchSize until a batch comes back
// short. On a pool handle each batch commits on its own, so an error or a
// cancelled ctx keeps the batches already removed and reports their count.
func (r *PostgresRepository) PurgeBefore(ctx context.Context, table string, cutoff time.Time) (int64, error) {
	query, ok := purgeQueries[table]
	if !ok {
		return 0, fmt.Errorf("%w: table %q is not purgeable", common.ErrInvalidInput, table)
	}

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		res, err := r.db.ExecContext(ctx, query, cutoff, r.batchSize)
		if err != nil {
			return total, fmt.Errorf("db error: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("db error: %w", err)
		}

		total += n
		if n < int64(r.batchSize) {
			return total, nil
		}
	}
}
