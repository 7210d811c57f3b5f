package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Maintainer is the slice of the hybrid store the worker looks after.
// It lets tests count calls without a real Badger.
type Maintainer interface {
	Reindex(ctx context.Context) (int, error)
	CollectGarbage(discardRatio float64) error
}

const discardRatio = 0.7

type Worker struct {
	store    Maintainer
	logger   *zap.Logger
	interval time.Duration
}

// NewWorker builds a worker that collects garbage every interval.
func NewWorker(store Maintainer, logger *zap.Logger, interval time.Duration) *Worker {
	return &Worker{
		store:    store,
		logger:   logger,
		interval: interval,
	}
}

// Start runs value-log GC on every tick until ctx is cancelled. Callers
// reindex before serving; Start does not.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Worker started", zap.Duration("gc_interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker shutting down")
			return
		case <-ticker.C:
			w.collect()
		}
	}
}

// Reindex rebuilds the indexes and logs the outcome.
func (w *Worker) Reindex(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := w.store.Reindex(ctx)
	if err != nil {
		return 0, err
	}
	w.logger.Info("Reindex complete",
		zap.Int("posts", n),
		zap.Duration("took", time.Since(start)))
	return n, nil
}

func (w *Worker) collect() {
	if err := w.store.CollectGarbage(discardRatio); err != nil {
		w.logger.Error("Value log GC failed", zap.Error(err))
		return
	}
	w.logger.Debug("Value log GC complete")
}
