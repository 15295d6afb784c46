package mirror

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sharetrack/sharetrack/internal/model"
)

// DefaultReconcileInterval is how often counters are replayed from the store.
const DefaultReconcileInterval = 5 * time.Minute

// CounterSource supplies store-derived per-file counters.
type CounterSource interface {
	CountersByFile(ctx context.Context) ([]model.FileSnapshot, error)
}

// Persister stores mirror snapshots for recovery across restarts.
type Persister interface {
	SaveFileSnapshots(ctx context.Context, snapshots []model.FileSnapshot) error
}

// Reconciler periodically replays store-side counters into the mirror and
// persists the result. This bounds mirror staleness to the interval
// instead of letting the two counter sets diverge silently.
type Reconciler struct {
	mirror    *Mirror
	source    CounterSource
	persister Persister
	interval  time.Duration
	logger    *slog.Logger

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewReconciler creates a Reconciler. persister may be nil.
func NewReconciler(m *Mirror, source CounterSource, persister Persister, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Reconciler{
		mirror:    m,
		source:    source,
		persister: persister,
		interval:  interval,
		logger:    logger.With("component", "mirror.reconciler"),
	}
}

// Run starts the reconcile loop. Blocks until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("reconciler already started")
	}
	r.started = true
	r.done = make(chan struct{})
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	defer close(r.done)

	r.logger.Info("mirror reconciler started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("mirror reconciler stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := r.ReconcileOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				r.logger.Warn("reconcile failed", "error", err)
			}
		}
	}
}

// ReconcileOnce replays store counters into the mirror and persists it.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	counters, err := r.source.CountersByFile(ctx)
	if err != nil {
		return err
	}

	r.mirror.Replace(counters)
	r.mirror.Wait()

	if r.persister != nil {
		if err := r.persister.SaveFileSnapshots(ctx, r.mirror.Snapshots()); err != nil {
			r.logger.Warn("failed to persist mirror snapshots", "error", err)
		}
	}

	r.logger.Debug("mirror reconciled", "files", len(counters))
	return nil
}

// Shutdown stops the reconcile loop.
// It implements server.ShutdownFunc for integration with graceful shutdown.
func (r *Reconciler) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
