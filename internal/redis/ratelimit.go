package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gamescore-backend/internal/config"
)

// RateLimiter is a fixed-window limiter backed by Redis counters, shared
// across replicas. The first request in a window creates the counter and
// sets its expiry; the counter's TTL is the retry-after hint.
type RateLimiter struct {
	client *redis.Client
	window time.Duration
	limit  int
	logger *slog.Logger
}

// NewRateLimiter connects to Redis and returns a limiter allowing limit
// requests per key per window.
func NewRateLimiter(cfg *config.RedisConfig, window time.Duration, limit int, logger *slog.Logger) (*RateLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RateLimiter{
		client: client,
		window: window,
		limit:  limit,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (l *RateLimiter) Close() error {
	return l.client.Close()
}

// limiterKey returns the Redis key for a client's counter
func (l *RateLimiter) limiterKey(key string) string {
	return fmt.Sprintf("ratelimit:%s", key)
}

// Allow implements ratelimit.Limiter
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := l.limiterKey(key)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("incrementing rate limit counter: %w", err)
	}

	if incr.Val() <= int64(l.limit) {
		return true, 0, nil
	}

	ttl, err := l.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return false, ttl, nil
}
