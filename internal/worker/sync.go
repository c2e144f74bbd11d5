package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mafia-engine/internal/config"
	"github.com/mafia-engine/internal/domain"
	"github.com/mafia-engine/internal/game"
	"github.com/mafia-engine/internal/matchmaking"
	"github.com/mafia-engine/internal/postgres"
	"github.com/mafia-engine/internal/redis"
)

// Finished sessions stay queryable in memory for this long before the
// worker reaps them.
const finishedRetention = 5 * time.Minute

// SnapshotWorker periodically persists live session snapshots to
// PostgreSQL and Redis and refreshes the cached queue statistics, so
// status reads and crash recovery never depend on the in-memory engine.
type SnapshotWorker struct {
	engine   *game.Engine
	queue    *matchmaking.Queue
	repo     *postgres.Repository
	cache    *redis.Cache
	config   *config.SnapshotConfig
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewSnapshotWorker creates a new snapshot worker
func NewSnapshotWorker(
	engine *game.Engine,
	queue *matchmaking.Queue,
	repo *postgres.Repository,
	cache *redis.Cache,
	cfg *config.SnapshotConfig,
	logger *slog.Logger,
) *SnapshotWorker {
	return &SnapshotWorker{
		engine: engine,
		queue:  queue,
		repo:   repo,
		cache:  cache,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background snapshot process
func (w *SnapshotWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("snapshot worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background snapshot process
func (w *SnapshotWorker) Stop() error {
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

	w.logger.Info("snapshot worker stopped")
	return nil
}

// run is the main worker loop
func (w *SnapshotWorker) run(ctx context.Context) {
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
			w.syncAll(ctx)
		}
	}
}

// syncAll persists every live session snapshot and the queue stats
func (w *SnapshotWorker) syncAll(ctx context.Context) {
	startTime := time.Now()

	snapshots := w.engine.ActiveSnapshots()
	syncedCount := 0
	errorCount := 0

	for _, snapshot := range snapshots {
		if err := w.syncSession(ctx, snapshot); err != nil {
			w.logger.Error("failed to sync session snapshot",
				"session_id", snapshot.SessionID,
				"error", err,
			)
			errorCount++
		} else {
			syncedCount++
		}
	}

	if w.queue != nil && w.cache != nil {
		if err := w.cache.SetQueueStats(ctx, w.queue.Stats()); err != nil {
			w.logger.Warn("failed to cache queue stats", "error", err)
		}
	}

	// Finished sessions fall out of memory once cold; reads go to the
	// database from then on.
	for _, id := range w.engine.ReapFinished(finishedRetention) {
		if w.cache != nil {
			if err := w.cache.DeleteSessionSnapshot(ctx, id); err != nil {
				w.logger.Warn("failed to evict snapshot", "session_id", id, "error", err)
			}
		}
		w.logger.Info("reaped finished session", "session_id", id)
	}

	w.logger.Debug("snapshot cycle completed",
		"duration", time.Since(startTime),
		"synced", syncedCount,
		"errors", errorCount,
	)
}

// syncSession writes one snapshot to the database and the cache
func (w *SnapshotWorker) syncSession(ctx context.Context, snapshot *domain.SessionSnapshot) error {
	if w.repo != nil {
		if err := w.repo.SaveSnapshot(ctx, snapshot); err != nil {
			return err
		}
	}
	if w.cache != nil {
		if err := w.cache.SetSessionSnapshot(ctx, snapshot); err != nil {
			return err
		}
	}
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *SnapshotWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single snapshot cycle (useful for manual triggers)
func (w *SnapshotWorker) RunOnce(ctx context.Context) {
	w.syncAll(ctx)
}
