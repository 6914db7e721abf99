package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mops/backend/internal/domain/integration"
	"github.com/redis/go-redis/v9"
)

// RedisGuard implements RateLimitGuard on Redis fixed-window counters.
// This is suitable for distributed deployments where multiple instances
// must share the same per-integration quota.
type RedisGuard struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisGuard creates a Redis-backed rate limit guard
func NewRedisGuard(cfg RedisConfig) (*RedisGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisGuard{client: client, keyPrefix: "ratelimit:"}, nil
}

// NewRedisGuardWithClient creates a guard with an existing Redis client.
// This is useful for testing or when sharing a client across components.
func NewRedisGuardWithClient(client *redis.Client, keyPrefix string) *RedisGuard {
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	return &RedisGuard{client: client, keyPrefix: keyPrefix}
}

// Allow records one intended provider call and reports whether it may proceed.
// Each window is an INCR-with-expiry counter; the call is undone when any
// window is over its ceiling so a denied call does not consume quota.
func (g *RedisGuard) Allow(ctx context.Context, integrationID uuid.UUID, limit integration.RateLimit) (integration.RateLimitDecision, error) {
	windows := []struct {
		name     string
		duration time.Duration
		ceiling  int
	}{
		{"burst", burstWindow, limit.BurstLimit},
		{"minute", minuteWindow, limit.RequestsPerMinute},
		{"hour", hourWindow, limit.RequestsPerHour},
		{"day", dayWindow, limit.RequestsPerDay},
	}

	keys := make([]string, len(windows))
	pipe := g.client.TxPipeline()
	incrs := make([]*redis.IntCmd, len(windows))
	for i, w := range windows {
		keys[i] = fmt.Sprintf("%s%s:%s", g.keyPrefix, integrationID, w.name)
		incrs[i] = pipe.Incr(ctx, keys[i])
		pipe.ExpireNX(ctx, keys[i], w.duration)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return integration.RateLimitDecision{}, fmt.Errorf("failed to advance rate limit counters: %w", err)
	}

	for i, w := range windows {
		if int(incrs[i].Val()) > w.ceiling {
			// undo this call's increments so the quota is not burned
			undo := g.client.TxPipeline()
			for _, key := range keys {
				undo.Decr(ctx, key)
			}
			_, _ = undo.Exec(ctx)

			ttl, err := g.client.TTL(ctx, keys[i]).Result()
			if err != nil || ttl < 0 {
				ttl = w.duration
			}
			return integration.RateLimitDecision{
				Allowed:    false,
				RetryAfter: ttl,
				Window:     w.name,
			}, nil
		}
	}

	return integration.RateLimitDecision{Allowed: true}, nil
}

// Close closes the Redis client
func (g *RedisGuard) Close() error {
	return g.client.Close()
}

// Ensure RedisGuard implements RateLimitGuard
var _ integration.RateLimitGuard = (*RedisGuard)(nil)
