package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/reflex-leaderboard/internal/config"
	"github.com/reflex-leaderboard/internal/domain"
)

// Cache holds rendered leaderboard snapshots keyed by game mode and
// limit. Postgres stays the source of truth; entries expire on a short
// TTL and are invalidated when a score lands.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewCache creates a new Redis-backed leaderboard cache
func NewCache(cfg *config.RedisConfig, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{
		client: client,
		logger: logger,
		ttl:    ttl,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client
func (c *Cache) Client() *redis.Client {
	return c.client
}

// boardKey returns the cache key for a rendered leaderboard. An empty
// mode means the unfiltered board.
func (c *Cache) boardKey(mode domain.GameMode, limit int) string {
	m := string(mode)
	if m == "" {
		m = "all"
	}
	return fmt.Sprintf("leaderboard:%s:%d:snapshot", m, limit)
}

// GetBoard returns a cached leaderboard if present.
func (c *Cache) GetBoard(ctx context.Context, mode domain.GameMode, limit int) ([]domain.LeaderboardEntry, bool) {
	data, err := c.client.Get(ctx, c.boardKey(mode, limit)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("leaderboard cache read failed", "error", err)
		}
		return nil, false
	}

	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("leaderboard cache entry corrupt, dropping", "error", err)
		c.client.Del(ctx, c.boardKey(mode, limit))
		return nil, false
	}
	return entries, true
}

// SetBoard stores a rendered leaderboard with the configured TTL.
func (c *Cache) SetBoard(ctx context.Context, mode domain.GameMode, limit int, entries []domain.LeaderboardEntry) {
	data, err := json.Marshal(entries)
	if err != nil {
		c.logger.Warn("failed to marshal leaderboard for cache", "error", err)
		return
	}
	if err := c.client.Set(ctx, c.boardKey(mode, limit), data, c.ttl).Err(); err != nil {
		c.logger.Warn("leaderboard cache write failed", "error", err)
	}
}

// Invalidate drops all cached snapshots for a mode plus the unfiltered
// board, which any submission can reorder.
func (c *Cache) Invalidate(ctx context.Context, mode domain.GameMode) {
	patterns := []string{
		fmt.Sprintf("leaderboard:%s:*", string(mode)),
		"leaderboard:all:*",
	}
	for _, pattern := range patterns {
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		pipe := c.client.Pipeline()
		for iter.Next(ctx) {
			pipe.Del(ctx, iter.Val())
		}
		if err := iter.Err(); err != nil {
			c.logger.Warn("leaderboard cache scan failed", "pattern", pattern, "error", err)
			continue
		}
		if _, err := pipe.Exec(ctx); err != nil {
			c.logger.Warn("leaderboard cache invalidation failed", "pattern", pattern, "error", err)
		}
	}
}
