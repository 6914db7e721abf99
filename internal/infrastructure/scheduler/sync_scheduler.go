package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	appintegration "github.com/mops/backend/internal/application/integration"
	"github.com/mops/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Sync Job
// ---------------------------------------------------------------------------

// SyncJob carries one integration, already marked as syncing, through the
// worker pool.
type SyncJob struct {
	Integration *integration.Integration
	EnqueuedAt  time.Time
	// Deferrals counts how many times rate limiting pushed this job back
	Deferrals int
}

// NewSyncJob wraps an integration for execution
func NewSyncJob(integ *integration.Integration) *SyncJob {
	return &SyncJob{
		Integration: integ,
		EnqueuedAt:  time.Now(),
	}
}

// ---------------------------------------------------------------------------
// SyncSchedulerConfig
// ---------------------------------------------------------------------------

// SyncSchedulerConfig holds configuration for the sync scheduler
type SyncSchedulerConfig struct {
	// Enabled indicates if the scheduler is enabled
	Enabled bool
	// Workers is the number of concurrent sync workers
	Workers int
	// QueueSize is the capacity of the pending job queue
	QueueSize int
	// JobTimeout is the maximum time one sync pass can run
	JobTimeout time.Duration
}

// DefaultSyncSchedulerConfig returns default configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		Enabled:    true,
		Workers:    4,
		QueueSize:  64,
		JobTimeout: 10 * time.Minute,
	}
}

// Validate validates the configuration
func (c *SyncSchedulerConfig) Validate() error {
	if c.Workers <= 0 {
		return ErrInvalidConfig
	}
	if c.QueueSize <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// SyncScheduler
// ---------------------------------------------------------------------------

// SyncScheduler executes sync jobs on a fixed worker pool. Retrying of
// transient provider failures happens inside the connector; the scheduler
// owns rate-limit deferral, conflict routing and outcome recording.
type SyncScheduler struct {
	config     SyncSchedulerConfig
	repo       integration.IntegrationRepository
	events     integration.EventRepository
	conflicts  integration.ConflictRepository
	connectors integration.ConnectorRegistry
	guard      integration.RateLimitGuard
	logger     *zap.Logger

	jobs      chan *SyncJob
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

var _ appintegration.SyncRunner = (*SyncScheduler)(nil)

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(
	config SyncSchedulerConfig,
	repo integration.IntegrationRepository,
	events integration.EventRepository,
	conflicts integration.ConflictRepository,
	connectors integration.ConnectorRegistry,
	guard integration.RateLimitGuard,
	logger *zap.Logger,
) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &SyncScheduler{
		config:     config,
		repo:       repo,
		events:     events,
		conflicts:  conflicts,
		connectors: connectors,
		guard:      guard,
		logger:     logger,
		jobs:       make(chan *SyncJob, config.QueueSize),
	}, nil
}

// Start starts the worker pool
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.runCtx = ctx
	s.cancel = cancel

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Sync scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Int("queue_size", s.config.QueueSize),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop gracefully stops the scheduler
func (s *SyncScheduler) Stop(ctx context.Context) error {
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
	close(s.jobs)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out")
		return ctx.Err()
	}
}

// Submit enqueues one sync pass for an integration already in syncing status.
// A full queue rejects the job rather than blocking the caller.
func (s *SyncScheduler) Submit(integ *integration.Integration) error {
	return s.enqueue(NewSyncJob(integ))
}

func (s *SyncScheduler) enqueue(job *SyncJob) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.mu.Unlock()

	select {
	case s.jobs <- job:
		s.logger.Debug("Sync job submitted",
			zap.String("integration_id", job.Integration.ID.String()),
			zap.Int("deferrals", job.Deferrals),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// worker processes jobs from the queue
func (s *SyncScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

func (s *SyncScheduler) processJob(ctx context.Context, job *SyncJob, workerID int) {
	integ := job.Integration
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("integration_id", integ.ID.String()),
		zap.String("provider", integ.ProviderKey),
	)

	decision, err := s.guard.Allow(ctx, integ.ID, integ.Config.RateLimit)
	if err != nil {
		// Guard backend trouble must not stall syncs; fail open.
		log.Warn("rate limit check failed, proceeding", zap.Error(err))
		decision = integration.RateLimitDecision{Allowed: true}
	}
	if !decision.Allowed {
		s.deferJob(ctx, job, decision, log)
		return
	}

	connector, err := s.connectors.For(integ.Family)
	if err != nil {
		s.recordFailure(ctx, integ, fmt.Sprintf("no connector for family %s", integ.Family), true, log)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	result, err := connector.Execute(jobCtx, integ.Config, integ.Mapping)
	cancel()
	if err != nil {
		s.recordFailure(ctx, integ, err.Error(), integration.IsPermanent(err), log)
		return
	}

	deferred := s.routeConflicts(ctx, integ, result.Conflicts, log)
	s.recordSuccess(ctx, integ, result, deferred, log)
}

// deferJob parks a rate-limited job until its window resets. The integration
// stays in syncing status; the call is deferred, never dropped.
func (s *SyncScheduler) deferJob(ctx context.Context, job *SyncJob, decision integration.RateLimitDecision, log *zap.Logger) {
	integ := job.Integration
	job.Deferrals++

	msg := fmt.Sprintf("sync deferred %s by %s rate limit", decision.RetryAfter.Round(time.Millisecond), decision.Window)
	s.appendEvent(ctx, integration.NewEvent(integ.ID, integration.EventRateLimitExceeded, integration.EventStatusInfo, msg))
	log.Info("sync deferred by rate limit",
		zap.String("window", decision.Window),
		zap.Duration("retry_after", decision.RetryAfter),
		zap.Int("deferrals", job.Deferrals),
	)

	time.AfterFunc(decision.RetryAfter, func() {
		if err := s.enqueue(job); err != nil {
			// Scheduler stopped or queue saturated: release the
			// integration so a later trigger can pick it up.
			s.recordFailure(s.requeueCtx(), integ, "rate-limited sync could not be requeued", false, log)
		}
	})
}

// requeueCtx returns the context deferred requeues run under. The run
// context when still live, background during shutdown so the final state
// write still lands.
func (s *SyncScheduler) requeueCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning && s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}

// routeConflicts applies the integration's conflict rule to each detected
// conflict and queues manual ones for review. Returns the deferred count.
func (s *SyncScheduler) routeConflicts(ctx context.Context, integ *integration.Integration, records []integration.ConflictRecord, log *zap.Logger) int {
	if len(records) == 0 {
		return 0
	}
	rule := integ.Mapping.ConflictRule
	deferred := 0
	for _, record := range records {
		resolution, err := integration.ResolveConflict(rule, record)
		if err != nil {
			log.Warn("conflict resolution failed",
				zap.String("rule", string(rule)),
				zap.String("record_key", record.RecordKey),
				zap.Error(err),
			)
			continue
		}
		if !resolution.Deferred {
			continue
		}
		pending := integration.NewPendingConflict(integ.OrgID, integ.ID, record)
		if err := s.conflicts.Save(ctx, pending); err != nil {
			log.Error("failed to queue conflict for review", zap.Error(err))
			continue
		}
		deferred++
	}
	if deferred > 0 {
		msg := fmt.Sprintf("%d conflicts queued for manual review", deferred)
		s.appendEvent(ctx, integration.NewEvent(integ.ID, integration.EventConflictDeferred, integration.EventStatusInfo, msg))
	}
	return deferred
}

func (s *SyncScheduler) recordSuccess(ctx context.Context, integ *integration.Integration, result *integration.SyncResult, deferredConflicts int, log *zap.Logger) {
	if err := integ.RecordSyncSuccess(time.Now()); err != nil {
		log.Error("failed to record sync success", zap.Error(err))
		return
	}
	if err := s.repo.Save(ctx, integ); err != nil {
		log.Error("failed to persist sync outcome", zap.Error(err))
		return
	}

	msg := fmt.Sprintf("sync completed: %d records processed", result.RecordsProcessed)
	if result.RecordsFailed > 0 {
		msg = fmt.Sprintf("sync completed: %d records processed, %d failed", result.RecordsProcessed, result.RecordsFailed)
	}
	event := integration.NewEvent(integ.ID, integration.EventSyncCompleted, integration.EventStatusSuccess, msg).
		WithSyncStats(result.Duration, result.RecordsProcessed)
	s.appendEvent(ctx, event)

	log.Info("sync completed",
		zap.Int("records_processed", result.RecordsProcessed),
		zap.Int("records_failed", result.RecordsFailed),
		zap.Int("conflicts_deferred", deferredConflicts),
		zap.Duration("duration", result.Duration),
	)
}

func (s *SyncScheduler) recordFailure(ctx context.Context, integ *integration.Integration, message string, permanent bool, log *zap.Logger) {
	if err := integ.RecordSyncFailure(message, permanent); err != nil {
		log.Error("failed to record sync failure", zap.Error(err))
		return
	}
	if err := s.repo.Save(ctx, integ); err != nil {
		log.Error("failed to persist sync outcome", zap.Error(err))
		return
	}
	s.appendEvent(ctx, integration.NewEvent(integ.ID, integration.EventSyncFailed, integration.EventStatusFailure, message))

	log.Warn("sync failed",
		zap.Bool("permanent", permanent),
		zap.String("error", message),
	)
}

// appendEvent writes to the event log without failing the sync on error.
func (s *SyncScheduler) appendEvent(ctx context.Context, event *integration.IntegrationEvent) {
	if err := s.events.Append(ctx, event); err != nil {
		s.logger.Error("failed to append integration event",
			zap.String("integration_id", event.IntegrationID.String()),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
	}
}
