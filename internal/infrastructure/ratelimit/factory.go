package ratelimit

import (
	"fmt"

	"github.com/mops/backend/internal/domain/integration"
	"github.com/mops/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// GuardFactory creates rate limit guards based on configuration
type GuardFactory struct {
	redisConfig   config.RedisConfig
	logger        *zap.Logger
	allowFallback bool
}

// GuardFactoryOption is a functional option for configuring the factory
type GuardFactoryOption func(*GuardFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) GuardFactoryOption {
	return func(f *GuardFactory) {
		f.logger = logger
	}
}

// WithMemoryFallback controls whether to fall back to the in-memory guard
// when Redis is unavailable. Default is true.
func WithMemoryFallback(allow bool) GuardFactoryOption {
	return func(f *GuardFactory) {
		f.allowFallback = allow
	}
}

// NewGuardFactory creates a new factory
func NewGuardFactory(cfg config.RedisConfig, opts ...GuardFactoryOption) *GuardFactory {
	f := &GuardFactory{
		redisConfig:   cfg,
		logger:        zap.NewNop(),
		allowFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateGuard creates a guard for the configured backend. The redis backend
// falls back to in-memory when the connection fails and fallback is allowed;
// in-memory counters are per process, which matters for multi-instance setups.
func (f *GuardFactory) CreateGuard(backend string) (integration.RateLimitGuard, error) {
	if backend != config.RateLimitBackendRedis {
		return NewMemoryGuard(), nil
	}

	guard, err := NewRedisGuard(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		if !f.allowFallback {
			return nil, fmt.Errorf("failed to create Redis rate limit guard: %w", err)
		}
		f.logger.Warn("redis unavailable, falling back to in-memory rate limiting",
			zap.Error(err))
		return NewMemoryGuard(), nil
	}
	return guard, nil
}
