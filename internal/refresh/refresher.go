// Package refresh keeps the served snapshot current by re-running sync
// passes on a fixed interval.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aryannaik/image-search/internal/index"
	"github.com/aryannaik/image-search/internal/indexer"
	"github.com/aryannaik/image-search/internal/logging"
)

const (
	idle int32 = iota
	refreshing
)

// Runner performs one sync pass.
type Runner interface {
	Run(ctx context.Context) indexer.Outcome
}

// Reloader installs a fresh snapshot from the store.
type Reloader interface {
	Reload(ctx context.Context, table index.Table) error
}

// Status is a point-in-time view of the refresher.
type Status struct {
	Refreshing  bool             `json:"refreshing"`
	Interval    string           `json:"interval"`
	LastRun     time.Time        `json:"last_run,omitzero"`
	LastOutcome string           `json:"last_outcome,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	LastSummary *indexer.Summary `json:"last_summary,omitempty"`
}

// Refresher runs at most one sync pass at a time. A pass that cannot start
// because another is running is skipped, not queued.
type Refresher struct {
	runner   Runner
	reloader Reloader
	table    index.Table
	interval time.Duration
	logger   *slog.Logger

	state atomic.Int32
	wg    sync.WaitGroup

	mu      sync.Mutex
	last    *indexer.Outcome
	lastRun time.Time
}

func New(runner Runner, reloader Reloader, table index.Table, interval time.Duration, logger *slog.Logger) *Refresher {
	return &Refresher{
		runner:   runner,
		reloader: reloader,
		table:    table,
		interval: interval,
		logger:   logging.OrDiscard(logger),
	}
}

// Start runs a pass immediately and then on every tick until ctx is done.
func (r *Refresher) Start(ctx context.Context) error {
	r.logger.InfoContext(ctx, "background refresh started", "interval", r.interval)

	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "background refresh stopped")
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	if _, ok := r.TryRefresh(ctx); !ok {
		r.logger.DebugContext(ctx, "refresh already running, skipping tick")
	}
}

// TryRefresh runs a pass unless one is already in progress, in which case
// it returns false without waiting.
func (r *Refresher) TryRefresh(ctx context.Context) (indexer.Outcome, bool) {
	if !r.state.CompareAndSwap(idle, refreshing) {
		return indexer.Outcome{}, false
	}
	defer r.state.Store(idle)
	return r.pass(ctx), true
}

// Trigger starts a pass in the background and reports whether it started.
// The pass is not tied to ctx's cancellation.
func (r *Refresher) Trigger(ctx context.Context) bool {
	if !r.state.CompareAndSwap(idle, refreshing) {
		return false
	}
	ctx = context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.state.Store(idle)
		r.pass(ctx)
	}()
	return true
}

// Wait blocks until passes started by Trigger have finished.
func (r *Refresher) Wait() {
	r.wg.Wait()
}

func (r *Refresher) Busy() bool {
	return r.state.Load() == refreshing
}

func (r *Refresher) pass(ctx context.Context) indexer.Outcome {
	out := r.runner.Run(ctx)

	switch out.Kind {
	case indexer.OutcomeFailed:
		r.logger.ErrorContext(ctx, "background sync failed", "err", out.Err)
	case indexer.OutcomeUpdated:
		if err := r.reloader.Reload(ctx, r.table); err != nil {
			r.logger.ErrorContext(ctx, "reload snapshot", "err", err)
		} else {
			r.logger.InfoContext(ctx, "snapshot reloaded", "summary", out.Summary)
		}
	}

	r.mu.Lock()
	r.last = &out
	r.lastRun = time.Now()
	r.mu.Unlock()
	return out
}

func (r *Refresher) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		Refreshing: r.Busy(),
		Interval:   r.interval.String(),
		LastRun:    r.lastRun,
	}
	if r.last != nil {
		sum := r.last.Summary
		st.LastOutcome = r.last.Kind.String()
		st.LastSummary = &sum
		if r.last.Err != nil {
			st.LastError = r.last.Err.Error()
		}
	}
	return st
}
