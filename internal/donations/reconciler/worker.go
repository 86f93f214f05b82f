package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	donations "charity-server/internal/donations/processor"
	"charity-server/internal/observability"
)

// Reconciler settles donations whose checkout was abandoned
type Reconciler interface {
	ReconcileAbandoned(ctx context.Context, olderThan time.Duration, limit int) (donations.ReconcileResult, error)
}

// Config controls how often and how deep a sweep goes
type Config struct {
	Interval     time.Duration
	AbandonAfter time.Duration
	BatchLimit   int
}

// Worker runs the abandoned checkout sweep on a ticker
type Worker struct {
	reconciler Reconciler
	config     Config
	logger     *observability.Logger
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// New creates a new Worker
func New(reconciler Reconciler, config Config, logger *observability.Logger) *Worker {
	return &Worker{
		reconciler: reconciler,
		config:     config,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// Start sweeps immediately and then every interval until stopped.
func (w *Worker) Start(ctx context.Context) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "worker", Value: "donation_reconciler"})
	w.logger.Info(ctx, "Starting donation reconciler")

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			w.RunOnce(ctx)
		case <-w.stopChan:
			w.logger.Info(ctx, "Stopping donation reconciler")
			return
		case <-ctx.Done():
			w.logger.Info(ctx, "Context cancelled, stopping donation reconciler")
			return
		}
	}
}

// Stop stops the background worker
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

// RunOnce performs a single sweep.
func (w *Worker) RunOnce(ctx context.Context) donations.ReconcileResult {
	res, err := w.reconciler.ReconcileAbandoned(ctx, w.config.AbandonAfter, w.config.BatchLimit)
	if err != nil {
		w.logger.Error(ctx, "failed to reconcile abandoned donations", err)
		return res
	}

	if res.Scanned > 0 {
		w.logger.Info(ctx, fmt.Sprintf("reconciled donations: scanned=%d abandoned=%d completed=%d errors=%d",
			res.Scanned, res.Abandoned, res.Completed, res.Errors))
	}
	return res
}
