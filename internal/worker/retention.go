package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gamescore-backend/internal/config"
	"github.com/gamescore-backend/internal/postgres"
)

// RetentionWorker prunes analytics events past the configured age. The
// analytics table is a write-only sink; without pruning it grows without
// bound. Deletes run in batches to keep row locks short.
type RetentionWorker struct {
	repo    *postgres.Repository
	config  *config.RetentionConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewRetentionWorker creates a new retention worker
func NewRetentionWorker(repo *postgres.Repository, cfg *config.RetentionConfig, logger *slog.Logger) *RetentionWorker {
	return &RetentionWorker{
		repo:   repo,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background pruning loop
func (w *RetentionWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("retention worker started",
		"interval", w.config.Interval,
		"max_age", w.config.MaxAge,
	)

	go w.run(ctx)
	return nil
}

// Stop stops the background pruning loop
func (w *RetentionWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("retention worker stopped")
	return nil
}

// run is the main worker loop
func (w *RetentionWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.prune(ctx)
		}
	}
}

// prune deletes expired events batch by batch until none remain
func (w *RetentionWorker) prune(ctx context.Context) {
	cutoff := time.Now().Add(-w.config.MaxAge)
	var total int64

	for {
		deleted, err := w.repo.DeleteEventsBefore(ctx, cutoff, w.config.BatchSize)
		if err != nil {
			w.logger.Error("failed to prune analytics events", "error", err)
			return
		}
		total += deleted
		if deleted < int64(w.config.BatchSize) {
			break
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}
	}

	if total > 0 {
		w.logger.Info("pruned analytics events", "deleted", total, "cutoff", cutoff)
	}
}
