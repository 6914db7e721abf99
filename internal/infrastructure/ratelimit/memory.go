package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mops/backend/internal/domain/integration"
)

// Window durations for the fixed counters. Burst is the back-to-back window.
const (
	burstWindow  = time.Second
	minuteWindow = time.Minute
	hourWindow   = time.Hour
	dayWindow    = 24 * time.Hour
)

// counter is one fixed window: a count and the instant it resets
type counter struct {
	count   int
	resetAt time.Time
}

func (c *counter) tick(now time.Time, window time.Duration) {
	if !now.Before(c.resetAt) {
		c.count = 0
		c.resetAt = now.Add(window)
	}
}

// windows holds all four counters for one integration
type windows struct {
	burst  counter
	minute counter
	hour   counter
	day    counter
}

// MemoryGuard implements RateLimitGuard with in-process fixed windows.
// Suitable for single-instance deployments and tests; counters are not
// shared across processes.
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*windows
}

// NewMemoryGuard creates an in-memory rate limit guard
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{entries: make(map[uuid.UUID]*windows)}
}

// Allow records one intended provider call and reports whether it may proceed.
// A denied call does not consume quota; the first exhausted window (burst,
// minute, hour, day) names the decision.
func (g *MemoryGuard) Allow(ctx context.Context, integrationID uuid.UUID, limit integration.RateLimit) (integration.RateLimitDecision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	w, ok := g.entries[integrationID]
	if !ok {
		w = &windows{}
		g.entries[integrationID] = w
	}

	w.burst.tick(now, burstWindow)
	w.minute.tick(now, minuteWindow)
	w.hour.tick(now, hourWindow)
	w.day.tick(now, dayWindow)

	checks := []struct {
		name    string
		counter *counter
		ceiling int
	}{
		{"burst", &w.burst, limit.BurstLimit},
		{"minute", &w.minute, limit.RequestsPerMinute},
		{"hour", &w.hour, limit.RequestsPerHour},
		{"day", &w.day, limit.RequestsPerDay},
	}

	for _, c := range checks {
		if c.counter.count >= c.ceiling {
			return integration.RateLimitDecision{
				Allowed:    false,
				RetryAfter: c.counter.resetAt.Sub(now),
				Window:     c.name,
			}, nil
		}
	}

	w.burst.count++
	w.minute.count++
	w.hour.count++
	w.day.count++
	return integration.RateLimitDecision{Allowed: true}, nil
}

// Reset clears all counters for an integration, e.g. after it is deleted
func (g *MemoryGuard) Reset(integrationID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, integrationID)
}

// Ensure MemoryGuard implements RateLimitGuard
var _ integration.RateLimitGuard = (*MemoryGuard)(nil)
