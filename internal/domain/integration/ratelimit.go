package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RateLimitDecision is the outcome of a rate-limit check
type RateLimitDecision struct {
	// Allowed is true when the call may proceed now
	Allowed bool
	// RetryAfter is how long to defer when not allowed
	RetryAfter time.Duration
	// Window names the exhausted window when not allowed (minute, hour, day, burst)
	Window string
}

// RateLimitGuard is the port enforcing per-integration call ceilings.
// A call over the ceiling is deferred until the window resets, never dropped.
type RateLimitGuard interface {
	// Allow records one intended provider call against the integration's
	// window counters and reports whether it may proceed.
	Allow(ctx context.Context, integrationID uuid.UUID, limit RateLimit) (RateLimitDecision, error)
}
