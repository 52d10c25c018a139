package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reflex-leaderboard/internal/config"
	"github.com/reflex-leaderboard/internal/domain"
	"github.com/reflex-leaderboard/internal/ranking"
)

// ScoreLister reads stored scores for a mode
type ScoreLister interface {
	ListScores(ctx context.Context, mode domain.GameMode) ([]domain.ScoreRecord, error)
}

// BoardWriter writes rendered leaderboards into the cache
type BoardWriter interface {
	SetBoard(ctx context.Context, mode domain.GameMode, limit int, entries []domain.LeaderboardEntry)
}

// Refresher periodically re-renders the top of every leaderboard into
// the cache so common reads stay warm between invalidations.
type Refresher struct {
	store   ScoreLister
	cache   BoardWriter
	config  *config.LeaderboardConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewRefresher creates a new cache refresher
func NewRefresher(
	store ScoreLister,
	cache BoardWriter,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *Refresher {
	return &Refresher{
		store:  store,
		cache:  cache,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background refresh process
func (w *Refresher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("cache refresher started",
		"interval", w.config.RefreshEvery,
		"depth", w.config.RefreshDepth,
	)

	go w.run(ctx)
	return nil
}

// Stop stops the background refresh process
func (w *Refresher) Stop() error {
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

	w.logger.Info("cache refresher stopped")
	return nil
}

// run is the main worker loop
func (w *Refresher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.RefreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.refreshAll(ctx)
		}
	}
}

// refreshAll re-renders every mode board plus the all-modes board
func (w *Refresher) refreshAll(ctx context.Context) {
	startTime := time.Now()

	refreshed := 0
	errorCount := 0

	// Empty mode renders the combined board
	modes := []domain.GameMode{""}
	for _, info := range domain.GameModes() {
		modes = append(modes, info.ID)
	}

	for _, mode := range modes {
		if err := w.refreshBoard(ctx, mode); err != nil {
			w.logger.Error("failed to refresh board",
				"game_mode", mode,
				"error", err,
			)
			errorCount++
		} else {
			refreshed++
		}
	}

	w.logger.Debug("refresh cycle completed",
		"duration", time.Since(startTime),
		"refreshed", refreshed,
		"errors", errorCount,
	)
}

// refreshBoard re-renders a single board into the cache
func (w *Refresher) refreshBoard(ctx context.Context, mode domain.GameMode) error {
	records, err := w.store.ListScores(ctx, mode)
	if err != nil {
		return err
	}

	entries := ranking.TopN(records, mode, w.config.RefreshDepth)
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}

	w.cache.SetBoard(ctx, mode, w.config.RefreshDepth, entries)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *Refresher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single refresh cycle (useful for warmup at startup)
func (w *Refresher) RunOnce(ctx context.Context) {
	w.refreshAll(ctx)
}
