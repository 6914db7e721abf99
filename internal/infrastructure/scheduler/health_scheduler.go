package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mops/backend/internal/domain/integration"
)

// IntegrationSource lists integrations eligible for health scoring and
// persists refreshed scores.
type IntegrationSource interface {
	FindActive(ctx context.Context) ([]integration.Integration, error)
	Save(ctx context.Context, integ *integration.Integration) error
}

// HealthSchedulerConfig holds configuration for background health scoring
type HealthSchedulerConfig struct {
	// Enabled indicates if the scheduler is enabled
	Enabled bool
	// CheckInterval is how often scores are recomputed
	CheckInterval time.Duration
	// Window is the trailing event window scores are computed over
	Window time.Duration
	// SlowSyncThreshold is the duration above which a sync counts as slow
	SlowSyncThreshold time.Duration
}

// DefaultHealthSchedulerConfig returns default configuration
func DefaultHealthSchedulerConfig() HealthSchedulerConfig {
	return HealthSchedulerConfig{
		Enabled:           true,
		CheckInterval:     5 * time.Minute,
		Window:            24 * time.Hour,
		SlowSyncThreshold: 2 * time.Minute,
	}
}

// Validate validates the configuration
func (c *HealthSchedulerConfig) Validate() error {
	if c.CheckInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.Window <= 0 {
		return ErrInvalidConfig
	}
	if c.SlowSyncThreshold <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// HealthScheduler recomputes integration health scores on a fixed interval
// so list views show fresh scores without paying for scoring per request.
type HealthScheduler struct {
	config HealthSchedulerConfig
	source IntegrationSource
	events integration.EventRepository
	scorer *integration.HealthScorer
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewHealthScheduler creates a new health scheduler
func NewHealthScheduler(config HealthSchedulerConfig, source IntegrationSource, events integration.EventRepository, logger *zap.Logger) (*HealthScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	scorer := integration.NewHealthScorer()
	scorer.Window = config.Window
	scorer.SlowSyncThreshold = config.SlowSyncThreshold

	return &HealthScheduler{
		config: config,
		source: source,
		events: events,
		scorer: scorer,
		logger: logger,
	}, nil
}

// Start starts the scoring loop
func (s *HealthScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Health scheduler started",
		zap.Duration("check_interval", s.config.CheckInterval),
		zap.Duration("window", s.config.Window),
	)
	return nil
}

// Stop stops the scoring loop
func (s *HealthScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Health scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *HealthScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scoreAll(ctx)
		}
	}
}

// scoreAll recomputes and persists the health score of every active
// integration. One integration failing does not stop the rest.
func (s *HealthScheduler) scoreAll(ctx context.Context) {
	active, err := s.source.FindActive(ctx)
	if err != nil {
		s.logger.Error("failed to list integrations for health scoring", zap.Error(err))
		return
	}

	updated := 0
	for i := range active {
		integ := &active[i]
		events, err := s.events.FindSince(ctx, integ.ID, time.Now().Add(-s.scorer.Window))
		if err != nil {
			s.logger.Warn("failed to load events for health scoring",
				zap.String("integration_id", integ.ID.String()),
				zap.Error(err),
			)
			continue
		}
		report := s.scorer.Score(integ, events)
		if report.OverallScore == integ.HealthScore {
			continue
		}
		if err := integ.SetHealthScore(report.OverallScore); err != nil {
			s.logger.Warn("computed health score out of range",
				zap.String("integration_id", integ.ID.String()),
				zap.Int("score", report.OverallScore),
			)
			continue
		}
		if err := s.source.Save(ctx, integ); err != nil {
			s.logger.Error("failed to persist health score",
				zap.String("integration_id", integ.ID.String()),
				zap.Error(err),
			)
			continue
		}
		updated++
	}

	if updated > 0 {
		s.logger.Debug("health scores refreshed",
			zap.Int("scored", len(active)),
			zap.Int("updated", updated),
		)
	}
}
