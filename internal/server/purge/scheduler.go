// Package purge runs the periodic sweep that permanently removes rows which
// have been soft-deleted for longer than the retention period.
package purge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/logging"
	"github.com/dmitrijs2005/zoneboard/internal/server/metrics"
	"github.com/dmitrijs2005/zoneboard/internal/tokens"
)

// Entity is a table the sweep purges.
type Entity string

const (
	EntityRefreshTokens     Entity = "refresh_tokens"
	EntityEntitlements      Entity = "entitlements"
	EntitySettingsSnapshots Entity = "settings_snapshots"
)

// Entities is the fixed order in which a sweep visits tables.
var Entities = []Entity{EntityRefreshTokens, EntityEntitlements, EntitySettingsSnapshots}

// Store performs the deletes. Each call is its own unit of work.
type Store interface {
	// MarkStaleRefreshTokens soft-deletes refresh tokens that are expired
	// or revoked, so they age into the purge.
	MarkStaleRefreshTokens(ctx context.Context, now time.Time) (int64, error)
	// DeleteExpiredLoginTokens removes login tokens that expired before cutoff.
	DeleteExpiredLoginTokens(ctx context.Context, cutoff time.Time) (int64, error)
	// PurgeSoftDeleted hard-deletes rows of entity with deleted_at < cutoff.
	PurgeSoftDeleted(ctx context.Context, entity Entity, cutoff time.Time) (int64, error)
}

// State of the scheduler.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

type Config struct {
	Interval      time.Duration
	RetentionDays int
}

// Result summarises one sweep.
type Result struct {
	Cutoff      time.Time
	Marked      int64
	LoginTokens int64
	Purged      map[Entity]int64
}

// Scheduler triggers a sweep every Interval. At most one sweep runs at a
// time; ticks that arrive while a sweep is running are dropped.
type Scheduler struct {
	store  Store
	cfg    Config
	logger logging.Logger
	now    func() time.Time

	running atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

const defaultInterval = time.Hour

func NewScheduler(store Store, cfg Config, logger logging.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Scheduler{
		store:  store,
		cfg:    cfg,
		logger: logger.With("module", "purge"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// State reports whether a sweep is in flight.
func (s *Scheduler) State() State {
	if s.running.Load() {
		return Running
	}
	return Idle
}

// Start launches the ticker loop. It returns immediately; the loop ends when
// ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop ends the loop and waits for an in-flight sweep. No sweep starts
// after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "purge scheduler started", "interval", s.cfg.Interval, "retention_days", s.cfg.RetentionDays)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(context.Background(), "purge scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick starts a sweep in the background unless one is already running or
// the scheduler has been stopped. It reports whether a sweep was started.
func (s *Scheduler) Tick(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || ctx.Err() != nil {
		return false
	}
	if !s.running.CompareAndSwap(false, true) {
		metrics.PurgeSweeps.WithLabelValues("skipped").Inc()
		s.logger.Warn(ctx, "purge tick skipped, previous sweep still running")
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		started := time.Now()
		res, err := s.Sweep(ctx)
		if err != nil {
			metrics.PurgeSweeps.WithLabelValues("failed").Inc()
			s.logger.Error(ctx, "purge sweep finished with errors", "error", err, "cutoff", res.Cutoff, "took", time.Since(started))
			return
		}
		metrics.PurgeSweeps.WithLabelValues("ok").Inc()
		s.logger.Info(ctx, "purge sweep finished",
			"cutoff", res.Cutoff,
			"marked_refresh_tokens", res.Marked,
			"login_tokens", res.LoginTokens,
			"purged", res.Purged,
			"took", time.Since(started),
		)
	}()
	return true
}

// Sweep runs one pass synchronously. Entities are processed in order and
// independently: a failure is recorded and the pass moves on, rows already
// removed stay removed. Cancellation is honoured between entities; a
// statement that has started runs to completion.
func (s *Scheduler) Sweep(ctx context.Context) (Result, error) {
	now := s.now()
	work := context.WithoutCancel(ctx)
	res := Result{
		Cutoff: tokens.AddDays(now, -s.cfg.RetentionDays),
		Purged: make(map[Entity]int64, len(Entities)),
	}

	var errs []error

	if n, err := s.store.MarkStaleRefreshTokens(work, now); err != nil {
		errs = append(errs, fmt.Errorf("mark stale refresh tokens: %w", err))
	} else {
		res.Marked = n
		metrics.PurgedRows.WithLabelValues("refresh_tokens_marked").Add(float64(n))
	}

	if n, err := s.store.DeleteExpiredLoginTokens(work, res.Cutoff); err != nil {
		errs = append(errs, fmt.Errorf("delete expired login tokens: %w", err))
	} else {
		res.LoginTokens = n
		metrics.PurgedRows.WithLabelValues("login_tokens").Add(float64(n))
	}

	for _, entity := range Entities {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("sweep interrupted before %s: %w", entity, err))
			break
		}

		// Batches removed before a failure are still counted.
		n, err := s.store.PurgeSoftDeleted(work, entity, res.Cutoff)
		res.Purged[entity] = n
		metrics.PurgedRows.WithLabelValues(string(entity)).Add(float64(n))
		if err != nil {
			errs = append(errs, fmt.Errorf("purge %s: %w", entity, err))
		}
	}

	return res, errors.Join(errs...)
}
