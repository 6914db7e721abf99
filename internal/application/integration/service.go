package integration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mops/backend/internal/domain/integration"
	"github.com/mops/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// SyncRunner accepts integrations already marked as syncing and executes
// them asynchronously, recording the outcome when done.
type SyncRunner interface {
	Submit(integ *integration.Integration) error
}

// IntegrationService handles integration lifecycle and query operations
type IntegrationService struct {
	repo       integration.IntegrationRepository
	events     integration.EventRepository
	templates  integration.TemplateRepository
	conflicts  integration.ConflictRepository
	connectors integration.ConnectorRegistry
	providers  *integration.ProviderRegistry
	transforms *integration.TransformRegistry
	scorer     *integration.HealthScorer
	runner     SyncRunner
	logger     *zap.Logger

	// locks serializes lifecycle mutations per integration; testing tracks
	// connection tests in flight so syncs and tests exclude each other
	mu      sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
	testing map[uuid.UUID]bool
}

// NewIntegrationService creates a new IntegrationService
func NewIntegrationService(
	repo integration.IntegrationRepository,
	events integration.EventRepository,
	templates integration.TemplateRepository,
	conflicts integration.ConflictRepository,
	connectors integration.ConnectorRegistry,
	providers *integration.ProviderRegistry,
	transforms *integration.TransformRegistry,
	runner SyncRunner,
	logger *zap.Logger,
) *IntegrationService {
	return &IntegrationService{
		repo:       repo,
		events:     events,
		templates:  templates,
		conflicts:  conflicts,
		connectors: connectors,
		providers:  providers,
		transforms: transforms,
		scorer:     integration.NewHealthScorer(),
		runner:     runner,
		logger:     logger,
		locks:      make(map[uuid.UUID]*sync.Mutex),
		testing:    make(map[uuid.UUID]bool),
	}
}

// lockFor returns the mutation lock for one integration ID
func (s *IntegrationService) lockFor(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *IntegrationService) beginConnectionTest(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testing[id] = true
}

func (s *IntegrationService) endConnectionTest(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.testing, id)
}

func (s *IntegrationService) connectionTestInFlight(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.testing[id]
}

// load fetches an integration and enforces organization ownership
func (s *IntegrationService) load(ctx context.Context, orgID, id uuid.UUID) (*integration.Integration, error) {
	integ, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, integration.ErrIntegrationNotFound) || errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("NOT_FOUND", "Integration not found")
		}
		return nil, err
	}
	if integ.OrgID != orgID {
		return nil, shared.NewDomainError("NOT_FOUND", "Integration not found")
	}
	return integ, nil
}

// ---------------------------------------------------------------------------
// CRUD
// ---------------------------------------------------------------------------

// Create creates a new integration in pending status
func (s *IntegrationService) Create(ctx context.Context, orgID uuid.UUID, req CreateIntegrationRequest) (*IntegrationResponse, error) {
	family := integration.IntegrationFamily(req.Family)
	descriptor, err := s.providers.Describe(family, req.ProviderKey)
	if err != nil {
		if errors.Is(err, integration.ErrFamilyNotFound) {
			return nil, shared.NewDomainError("VALIDATION", "Unknown integration family")
		}
		return nil, shared.NewDomainError("VALIDATION", "Unknown provider for this family")
	}

	createdBy := uuid.Nil
	if req.CreatedBy != nil {
		createdBy = *req.CreatedBy
	}
	integ, err := integration.NewIntegration(orgID, req.Name, family, req.ProviderKey, createdBy)
	if err != nil {
		return nil, err
	}

	integ.Description = req.Description
	integ.Category = descriptor.Category
	integ.Tags = req.Tags
	integ.Config.RateLimit = descriptor.DefaultRateLimit
	integ.Config.RetrySettings = descriptor.DefaultRetrySettings
	applyConfigFields(integ, descriptor, req.Config)

	if req.Frequency != "" {
		freq := integration.SyncFrequency(req.Frequency)
		if !freq.IsValid() {
			return nil, shared.NewDomainError("VALIDATION", "Invalid sync frequency")
		}
		integ.Frequency = freq
	}

	if err := integ.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, integ); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, integ.ID, integration.EventConfigurationChanged, integration.EventStatusInfo, "integration created")

	s.logger.Info("integration created",
		zap.String("integration_id", integ.ID.String()),
		zap.String("provider", integ.ProviderKey))
	return toIntegrationResponse(integ), nil
}

// Update applies a partial update to an integration
func (s *IntegrationService) Update(ctx context.Context, orgID, id uuid.UUID, req UpdateIntegrationRequest) (*IntegrationResponse, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	integ, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		integ.Name = *req.Name
	}
	if req.Description != nil {
		integ.Description = *req.Description
	}
	if req.Tags != nil {
		integ.Tags = *req.Tags
	}
	if req.Frequency != nil {
		freq := integration.SyncFrequency(*req.Frequency)
		if !freq.IsValid() {
			return nil, shared.NewDomainError("VALIDATION", "Invalid sync frequency")
		}
		integ.Frequency = freq
	}
	if len(req.Config) > 0 {
		descriptor, err := s.providers.Describe(integ.Family, integ.ProviderKey)
		if err != nil {
			return nil, err
		}
		applyConfigFields(integ, descriptor, req.Config)
	}
	if req.UpdatedBy != nil {
		integ.Touch(*req.UpdatedBy)
	}

	if err := integ.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, integ); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, integ.ID, integration.EventConfigurationChanged, integration.EventStatusInfo, "integration updated")
	return toIntegrationResponse(integ), nil
}

// Delete removes an integration. Deleting mid-sync is rejected.
func (s *IntegrationService) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	integ, err := s.load(ctx, orgID, id)
	if err != nil {
		return err
	}
	if integ.Status == integration.StatusSyncing {
		return shared.NewDomainError("SYNC_IN_PROGRESS", "Cannot delete while a sync is running")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("integration deleted", zap.String("integration_id", id.String()))
	return nil
}

// Get returns one integration by ID
func (s *IntegrationService) Get(ctx context.Context, orgID, id uuid.UUID) (*IntegrationResponse, error) {
	integ, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	return toIntegrationResponse(integ), nil
}

// List returns integrations matching the filter plus the unpaginated total
func (s *IntegrationService) List(ctx context.Context, orgID uuid.UUID, filter IntegrationListFilter) ([]IntegrationListResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.SortBy == "" {
		filter.SortBy = string(integration.SortByName)
	}
	sortBy := integration.SortField(filter.SortBy)
	if !sortBy.IsValid() {
		return nil, 0, shared.NewDomainError("VALIDATION", "Invalid sort field")
	}

	domainFilter := integration.IntegrationFilter{
		Search:   filter.Search,
		SortBy:   sortBy,
		SortDesc: filter.SortDesc,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	if filter.Family != "" {
		family := integration.IntegrationFamily(filter.Family)
		if !family.IsValid() {
			return nil, 0, shared.NewDomainError("VALIDATION", "Invalid integration family")
		}
		domainFilter.Family = &family
	}
	if filter.Category != "" {
		domainFilter.Category = &filter.Category
	}
	if filter.Status != "" {
		status := integration.IntegrationStatus(filter.Status)
		if !status.IsValid() {
			return nil, 0, shared.NewDomainError("VALIDATION", "Invalid status")
		}
		domainFilter.Status = &status
	}

	items, err := s.repo.FindAll(ctx, orgID, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, orgID, domainFilter)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]IntegrationListResponse, 0, len(items))
	for i := range items {
		responses = append(responses, toIntegrationListResponse(&items[i]))
	}
	return responses, total, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Connect transitions an integration to connected
func (s *IntegrationService) Connect(ctx context.Context, orgID, id uuid.UUID) (*IntegrationResponse, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	integ, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := integ.Connect(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, integ); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, integ.ID, integration.EventConnectionEstablished, integration.EventStatusSuccess, "connection established")
	return toIntegrationResponse(integ), nil
}

// Disconnect transitions an integration to disconnected
func (s *IntegrationService) Disconnect(ctx context.Context, orgID, id uuid.UUID) (*IntegrationResponse, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	integ, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := integ.Disconnect(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, integ); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, integ.ID, integration.EventConnectionLost, integration.EventStatusInfo, "manually disconnected")
	return toIntegrationResponse(integ), nil
}

// TestConnection runs the provider connectivity test without changing status.
// A test never runs while a sync is in flight, and vice versa: the in-flight
// marker is set under the mutation lock, then held for the duration of the
// provider call so TriggerSync can see it without blocking on the lock.
func (s *IntegrationService) TestConnection(ctx context.Context, orgID, id uuid.UUID) (*TestConnectionResponse, error) {
	lock := s.lockFor(id)
	lock.Lock()
	integ, err := s.load(ctx, orgID, id)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if integ.Status == integration.StatusSyncing {
		lock.Unlock()
		return nil, shared.NewDomainError("SYNC_IN_PROGRESS", "Cannot test the connection while a sync is running")
	}
	s.beginConnectionTest(id)
	lock.Unlock()
	defer s.endConnectionTest(id)

	connector, err := s.connectors.For(integ.Family)
	if err != nil {
		return nil, err
	}
	ok, err := connector.Test(ctx, integ.Config)
	if err != nil {
		return &TestConnectionResponse{Success: false, Message: err.Error()}, nil
	}
	if !ok {
		return &TestConnectionResponse{Success: false, Message: "provider rejected the credentials"}, nil
	}
	return &TestConnectionResponse{Success: true}, nil
}

// TriggerSync starts a manual sync. Exactly one concurrent trigger per
// integration wins; the rest are rejected with SYNC_IN_PROGRESS.
func (s *IntegrationService) TriggerSync(ctx context.Context, orgID, id uuid.UUID) (*TriggerSyncResponse, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	integ, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if s.connectionTestInFlight(id) {
		return nil, shared.NewDomainError("SYNC_IN_PROGRESS", "A connection test is running for this integration")
	}
	if integ.Status == integration.StatusSyncing {
		return nil, shared.NewDomainError("SYNC_IN_PROGRESS", "A sync is already running for this integration")
	}
	if integ.Status != integration.StatusConnected {
		return nil, shared.NewDomainError("NOT_CONNECTED", "Integration must be connected to sync")
	}
	if err := integ.BeginSync(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, integ); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, integ.ID, integration.EventSyncStarted, integration.EventStatusInfo, "manual sync triggered")

	if err := s.runner.Submit(integ); err != nil {
		// Queue refused the job: roll the status back so the trigger can be retried.
		_ = integ.RecordSyncFailure("sync queue unavailable", false)
		if saveErr := s.repo.Save(ctx, integ); saveErr != nil {
			s.logger.Error("failed to roll back sync status", zap.Error(saveErr))
		}
		return nil, err
	}
	return &TriggerSyncResponse{IntegrationID: integ.ID, Status: string(integration.StatusSyncing)}, nil
}

// ---------------------------------------------------------------------------
// Mapping & Configuration
// ---------------------------------------------------------------------------

// UpdateMapping validates and, when valid, persists a replacement data mapping.
// An invalid mapping is reported back without persisting anything.
func (s *IntegrationService) UpdateMapping(ctx context.Context, orgID, id uuid.UUID, req UpdateMappingRequest) (*MappingValidationResponse, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	integ, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	direction := integration.SyncDirection(req.Direction)
	if !direction.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "Invalid sync direction")
	}
	rule := integration.ConflictResolution(req.ConflictRule)
	if !rule.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "Invalid conflict resolution rule")
	}

	mapping := integration.NewDataMapping(direction)
	mapping.ConflictRule = rule
	for _, f := range req.Fields {
		mapping.Fields = append(mapping.Fields, integration.FieldMapping{
			SourceField:    f.SourceField,
			TargetField:    f.TargetField,
			DataType:       f.DataType,
			Required:       f.Required,
			DefaultValue:   f.DefaultValue,
			Transformation: f.Transformation,
		})
	}

	result := mapping.Validate(nil, s.transforms)
	if !result.IsValid {
		return &MappingValidationResponse{IsValid: false, Errors: result.Errors, Warnings: result.Warnings}, nil
	}

	integ.Mapping = mapping
	if err := s.repo.Save(ctx, integ); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, integ.ID, integration.EventConfigurationChanged, integration.EventStatusInfo, "data mapping updated")
	return &MappingValidationResponse{IsValid: true, Warnings: result.Warnings}, nil
}

// ValidateConfiguration checks a raw configuration against a template's schema
func (s *IntegrationService) ValidateConfiguration(ctx context.Context, req ValidateConfigurationRequest) (*integration.ConfigValidationResult, error) {
	tpl, err := s.templates.FindByID(ctx, req.TemplateID)
	if err != nil {
		if errors.Is(err, integration.ErrTemplateNotFound) {
			return nil, shared.NewDomainError("NOT_FOUND", "Template not found")
		}
		return nil, err
	}
	result := integration.ValidateConfiguration(req.Config, tpl.Schema)
	return &result, nil
}

// ---------------------------------------------------------------------------
// Marketplace, Health, Events
// ---------------------------------------------------------------------------

// ListTemplates lists marketplace templates, optionally filtered by family
func (s *IntegrationService) ListTemplates(ctx context.Context, family string) ([]TemplateResponse, error) {
	var familyFilter *integration.IntegrationFamily
	if family != "" {
		f := integration.IntegrationFamily(family)
		if !f.IsValid() {
			return nil, shared.NewDomainError("VALIDATION", "Invalid integration family")
		}
		familyFilter = &f
	}
	templates, err := s.templates.FindAll(ctx, familyFilter)
	if err != nil {
		return nil, err
	}
	responses := make([]TemplateResponse, 0, len(templates))
	for i := range templates {
		responses = append(responses, toTemplateResponse(&templates[i]))
	}
	return responses, nil
}

// ListProviders lists the provider descriptors for a family
func (s *IntegrationService) ListProviders(family string) ([]integration.ProviderDescriptor, error) {
	f := integration.IntegrationFamily(family)
	if !f.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "Invalid integration family")
	}
	return s.providers.ListFamily(f), nil
}

// Health computes a fresh health report and records the overall score
func (s *IntegrationService) Health(ctx context.Context, orgID, id uuid.UUID) (*integration.IntegrationHealth, error) {
	integ, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	events, err := s.events.FindSince(ctx, id, time.Now().Add(-s.scorer.Window))
	if err != nil {
		return nil, err
	}
	report := s.scorer.Score(integ, events)
	if err := integ.SetHealthScore(report.OverallScore); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, integ); err != nil {
		return nil, err
	}
	return report, nil
}

// Events lists the most recent event-log entries for an integration
func (s *IntegrationService) Events(ctx context.Context, orgID, id uuid.UUID, limit int) ([]EventResponse, error) {
	if _, err := s.load(ctx, orgID, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	events, err := s.events.FindRecent(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	responses := make([]EventResponse, 0, len(events))
	for i := range events {
		responses = append(responses, toEventResponse(&events[i]))
	}
	return responses, nil
}

// ---------------------------------------------------------------------------
// Conflict Review
// ---------------------------------------------------------------------------

// ListConflicts lists conflicts queued for manual review, oldest first
func (s *IntegrationService) ListConflicts(ctx context.Context, orgID, id uuid.UUID) ([]ConflictResponse, error) {
	if _, err := s.load(ctx, orgID, id); err != nil {
		return nil, err
	}
	pending, err := s.conflicts.FindByIntegration(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	responses := make([]ConflictResponse, 0, len(pending))
	for i := range pending {
		responses = append(responses, toConflictResponse(&pending[i]))
	}
	return responses, nil
}

// ResolveConflict applies a reviewer's choice and removes the queue entry
func (s *IntegrationService) ResolveConflict(ctx context.Context, orgID, conflictID uuid.UUID, req ResolveConflictRequest) (*ResolvedConflictResponse, error) {
	pending, err := s.conflicts.FindByID(ctx, conflictID)
	if err != nil {
		if errors.Is(err, integration.ErrConflictNotFound) {
			return nil, shared.NewDomainError("NOT_FOUND", "Conflict not found")
		}
		return nil, err
	}
	if pending.OrgID != orgID {
		return nil, shared.NewDomainError("NOT_FOUND", "Conflict not found")
	}

	choice := integration.ConflictChoice(req.Choice)
	record, err := pending.Resolve(choice)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION", "Invalid conflict resolution choice")
	}
	if err := s.conflicts.Delete(ctx, conflictID); err != nil {
		return nil, err
	}
	s.logger.Info("conflict resolved",
		zap.String("conflict_id", conflictID.String()),
		zap.String("choice", string(choice)))
	return &ResolvedConflictResponse{ID: pending.ID, Record: record}, nil
}

// DiscardConflict drops a queued conflict without writing anything back
func (s *IntegrationService) DiscardConflict(ctx context.Context, orgID, conflictID uuid.UUID) error {
	pending, err := s.conflicts.FindByID(ctx, conflictID)
	if err != nil {
		if errors.Is(err, integration.ErrConflictNotFound) {
			return shared.NewDomainError("NOT_FOUND", "Conflict not found")
		}
		return err
	}
	if pending.OrgID != orgID {
		return shared.NewDomainError("NOT_FOUND", "Conflict not found")
	}
	return s.conflicts.Delete(ctx, conflictID)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// applyConfigFields routes raw config values into the secret or plain bag
// based on the provider's field declarations.
func applyConfigFields(integ *integration.Integration, descriptor integration.ProviderDescriptor, config map[string]string) {
	secret := make(map[string]bool, len(descriptor.Fields))
	for _, f := range descriptor.Fields {
		secret[f.Key] = f.Secret
	}
	for key, value := range config {
		integ.Config.SetField(key, value, secret[key])
	}
}

func (s *IntegrationService) appendEvent(ctx context.Context, id uuid.UUID, eventType integration.EventType, status integration.EventStatus, message string) {
	event := integration.NewEvent(id, eventType, status, message)
	if err := s.events.Append(ctx, event); err != nil {
		s.logger.Warn("failed to append integration event",
			zap.String("integration_id", id.String()),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}
