// Package softdelete hard-deletes rows whose soft-delete mark is older than
// a retention cutoff.
package softdelete

import (
	"context"
	"time"
)

type Repository interface {
	// PurgeBefore deletes rows of table with deleted_at < cutoff. Only the
	// tables listed in Tables are accepted.
	PurgeBefore(ctx context.Context, table string, cutoff time.Time) (int64, error)
}
