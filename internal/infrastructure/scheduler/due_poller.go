package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appintegration "github.com/mops/backend/internal/application/integration"
	"github.com/mops/backend/internal/domain/integration"
	"github.com/mops/backend/internal/domain/shared"
)

// DueFinder lists integrations whose sync frequency timer has elapsed
type DueFinder interface {
	FindDueForSync(ctx context.Context, now time.Time) ([]integration.Integration, error)
}

// SyncTrigger starts a sync for one integration, enforcing the same
// mutual-exclusion rules as a manual trigger.
type SyncTrigger interface {
	TriggerSync(ctx context.Context, orgID, integrationID uuid.UUID) (*appintegration.TriggerSyncResponse, error)
}

// DuePoller periodically finds integrations due per their sync frequency
// and triggers them through the application service, so scheduled and
// manual syncs share one code path and one set of locks.
type DuePoller struct {
	finder   DueFinder
	trigger  SyncTrigger
	interval time.Duration
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewDuePoller creates a new due-integration poller
func NewDuePoller(finder DueFinder, trigger SyncTrigger, interval time.Duration, logger *zap.Logger) (*DuePoller, error) {
	if interval <= 0 {
		return nil, ErrInvalidConfig
	}
	return &DuePoller{
		finder:   finder,
		trigger:  trigger,
		interval: interval,
		logger:   logger,
	}, nil
}

// Start starts the polling loop
func (p *DuePoller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = true
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.run(ctx)

	p.logger.Info("Sync due poller started", zap.Duration("interval", p.interval))
	return nil
}

// Stop stops the polling loop
func (p *DuePoller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Sync due poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *DuePoller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce triggers every integration whose timer has elapsed. A trigger
// lost to a concurrent sync or a disconnect is expected, not an error.
func (p *DuePoller) pollOnce(ctx context.Context) {
	due, err := p.finder.FindDueForSync(ctx, time.Now())
	if err != nil {
		p.logger.Error("failed to list integrations due for sync", zap.Error(err))
		return
	}
	for i := range due {
		integ := &due[i]
		if _, err := p.trigger.TriggerSync(ctx, integ.OrgID, integ.ID); err != nil {
			var domainErr *shared.DomainError
			if errors.As(err, &domainErr) {
				p.logger.Debug("scheduled sync skipped",
					zap.String("integration_id", integ.ID.String()),
					zap.String("code", domainErr.Code),
				)
				continue
			}
			p.logger.Warn("failed to trigger scheduled sync",
				zap.String("integration_id", integ.ID.String()),
				zap.Error(err),
			)
		}
	}
}
