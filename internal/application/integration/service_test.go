package integration

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mops/backend/internal/domain/integration"
	"github.com/mops/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// In-Memory Fakes
// ---------------------------------------------------------------------------

type memIntegrationRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]integration.Integration
}

func newMemIntegrationRepo() *memIntegrationRepo {
	return &memIntegrationRepo{items: make(map[uuid.UUID]integration.Integration)}
}

func (r *memIntegrationRepo) FindByID(_ context.Context, id uuid.UUID) (*integration.Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.items[id]
	if !ok {
		return nil, integration.ErrIntegrationNotFound
	}
	copied := i
	return &copied, nil
}

func (r *memIntegrationRepo) matching(orgID uuid.UUID, filter integration.IntegrationFilter) []integration.Integration {
	var out []integration.Integration
	for _, i := range r.items {
		if i.OrgID != orgID {
			continue
		}
		if filter.Family != nil && i.Family != *filter.Family {
			continue
		}
		if filter.Category != nil && i.Category != *filter.Category {
			continue
		}
		if filter.Status != nil && i.Status != *filter.Status {
			continue
		}
		if filter.Search != "" && !matchesSearch(&i, filter.Search) {
			continue
		}
		out = append(out, i)
	}
	sortIntegrations(out, filter.SortBy, filter.SortDesc)
	return out
}

func matchesSearch(i *integration.Integration, search string) bool {
	needle := strings.ToLower(search)
	haystack := []string{i.Name, i.Description, i.ProviderKey}
	haystack = append(haystack, i.Tags...)
	for _, h := range haystack {
		if strings.Contains(strings.ToLower(h), needle) {
			return true
		}
	}
	return false
}

func sortIntegrations(items []integration.Integration, by integration.SortField, desc bool) {
	sort.SliceStable(items, func(a, b int) bool {
		var less bool
		switch by {
		case integration.SortByFamily:
			less = items[a].Family < items[b].Family
		case integration.SortByStatus:
			less = items[a].Status < items[b].Status
		case integration.SortByHealth:
			less = items[a].HealthScore < items[b].HealthScore
		case integration.SortByLastSync:
			at, bt := items[a].LastSync, items[b].LastSync
			switch {
			case at == nil:
				less = bt != nil
			case bt == nil:
				less = false
			default:
				less = at.Before(*bt)
			}
		default:
			less = items[a].Name < items[b].Name
		}
		if desc {
			return !less
		}
		return less
	})
}

func (r *memIntegrationRepo) FindAll(_ context.Context, orgID uuid.UUID, filter integration.IntegrationFilter) ([]integration.Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.matching(orgID, filter)
	if filter.Page > 0 && filter.PageSize > 0 {
		start := (filter.Page - 1) * filter.PageSize
		if start >= len(out) {
			return nil, nil
		}
		end := start + filter.PageSize
		if end > len(out) {
			end = len(out)
		}
		out = out[start:end]
	}
	return out, nil
}

func (r *memIntegrationRepo) Count(_ context.Context, orgID uuid.UUID, filter integration.IntegrationFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.matching(orgID, filter))), nil
}

func (r *memIntegrationRepo) FindDueForSync(_ context.Context, now time.Time) ([]integration.Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []integration.Integration
	for _, i := range r.items {
		if i.Status != integration.StatusConnected {
			continue
		}
		interval := i.Frequency.Interval()
		if interval == 0 {
			continue
		}
		if i.LastSync == nil || now.Sub(*i.LastSync) >= interval {
			out = append(out, i)
		}
	}
	return out, nil
}

func (r *memIntegrationRepo) Save(_ context.Context, i *integration.Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[i.ID] = *i
	return nil
}

func (r *memIntegrationRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return integration.ErrIntegrationNotFound
	}
	delete(r.items, id)
	return nil
}

type memEventRepo struct {
	mu     sync.Mutex
	events []integration.IntegrationEvent
}

func (r *memEventRepo) Append(_ context.Context, e *integration.IntegrationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

func (r *memEventRepo) FindRecent(_ context.Context, id uuid.UUID, limit int) ([]integration.IntegrationEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []integration.IntegrationEvent
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if r.events[i].IntegrationID == id {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

func (r *memEventRepo) FindSince(_ context.Context, id uuid.UUID, since time.Time) ([]integration.IntegrationEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []integration.IntegrationEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].IntegrationID == id && r.events[i].OccurredAt.After(since) {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

func (r *memEventRepo) FindAllRecent(_ context.Context, _ uuid.UUID, limit int) ([]integration.IntegrationEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := len(r.events) - limit
	if start < 0 {
		start = 0
	}
	return append([]integration.IntegrationEvent(nil), r.events[start:]...), nil
}

func (r *memEventRepo) typeCount(eventType integration.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type memTemplateRepo struct {
	templates map[uuid.UUID]integration.IntegrationTemplate
}

func (r *memTemplateRepo) FindByID(_ context.Context, id uuid.UUID) (*integration.IntegrationTemplate, error) {
	t, ok := r.templates[id]
	if !ok {
		return nil, integration.ErrTemplateNotFound
	}
	return &t, nil
}

func (r *memTemplateRepo) FindAll(_ context.Context, family *integration.IntegrationFamily) ([]integration.IntegrationTemplate, error) {
	var out []integration.IntegrationTemplate
	for _, t := range r.templates {
		if family != nil && t.Family != *family {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

type memConflictRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]integration.PendingConflict
}

func newMemConflictRepo() *memConflictRepo {
	return &memConflictRepo{items: make(map[uuid.UUID]integration.PendingConflict)}
}

func (r *memConflictRepo) Save(_ context.Context, c *integration.PendingConflict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[c.ID] = *c
	return nil
}

func (r *memConflictRepo) FindByID(_ context.Context, id uuid.UUID) (*integration.PendingConflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return nil, integration.ErrConflictNotFound
	}
	return &c, nil
}

func (r *memConflictRepo) FindByIntegration(_ context.Context, orgID, integrationID uuid.UUID) ([]integration.PendingConflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []integration.PendingConflict
	for _, c := range r.items {
		if c.OrgID == orgID && c.IntegrationID == integrationID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].QueuedAt.Before(out[b].QueuedAt) })
	return out, nil
}

func (r *memConflictRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

type stubConnectorRegistry struct {
	connector integration.Connector
}

func (s *stubConnectorRegistry) For(_ integration.IntegrationFamily) (integration.Connector, error) {
	return s.connector, nil
}

type stubConnector struct {
	testOK   bool
	testErr  error
	snapshot *integration.SchemaSnapshot
}

func (s *stubConnector) Test(_ context.Context, _ integration.ConnectionConfig) (bool, error) {
	return s.testOK, s.testErr
}

func (s *stubConnector) Introspect(_ context.Context, _ integration.ConnectionConfig) (*integration.SchemaSnapshot, error) {
	return s.snapshot, nil
}

func (s *stubConnector) Execute(_ context.Context, _ integration.ConnectionConfig, _ integration.DataMapping) (*integration.SyncResult, error) {
	return &integration.SyncResult{RecordsProcessed: 10}, nil
}

// blockingConnector parks Test until released, signalling when it starts
type blockingConnector struct {
	stubConnector
	started chan struct{}
	release chan struct{}
}

func newBlockingConnector() *blockingConnector {
	return &blockingConnector{
		stubConnector: stubConnector{testOK: true},
		started:       make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (b *blockingConnector) Test(_ context.Context, _ integration.ConnectionConfig) (bool, error) {
	close(b.started)
	<-b.release
	return true, nil
}

type stubRunner struct {
	mu        sync.Mutex
	submitted []uuid.UUID
	err       error
}

func (s *stubRunner) Submit(integ *integration.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.submitted = append(s.submitted, integ.ID)
	return nil
}

// ---------------------------------------------------------------------------
// Test Setup
// ---------------------------------------------------------------------------

type serviceFixture struct {
	service   *IntegrationService
	repo      *memIntegrationRepo
	events    *memEventRepo
	templates *memTemplateRepo
	conflicts *memConflictRepo
	runner    *stubRunner
	orgID     uuid.UUID
}

func newServiceFixture() *serviceFixture {
	return newServiceFixtureWithConnector(&stubConnector{testOK: true})
}

func newServiceFixtureWithConnector(c integration.Connector) *serviceFixture {
	repo := newMemIntegrationRepo()
	events := &memEventRepo{}
	templates := &memTemplateRepo{templates: make(map[uuid.UUID]integration.IntegrationTemplate)}
	conflicts := newMemConflictRepo()
	runner := &stubRunner{}
	service := NewIntegrationService(
		repo, events, templates, conflicts,
		&stubConnectorRegistry{connector: c},
		integration.NewProviderRegistry(),
		integration.NewTransformRegistry(),
		runner,
		zap.NewNop(),
	)
	return &serviceFixture{
		service:   service,
		repo:      repo,
		events:    events,
		templates: templates,
		conflicts: conflicts,
		runner:    runner,
		orgID:     uuid.New(),
	}
}

func (f *serviceFixture) create(t *testing.T, name, family, provider string) *IntegrationResponse {
	t.Helper()
	resp, err := f.service.Create(context.Background(), f.orgID, CreateIntegrationRequest{
		Name:        name,
		Family:      family,
		ProviderKey: provider,
	})
	require.NoError(t, err)
	return resp
}

func (f *serviceFixture) connect(t *testing.T, id uuid.UUID) {
	t.Helper()
	_, err := f.service.Connect(context.Background(), f.orgID, id)
	require.NoError(t, err)
}

func domainCode(t *testing.T, err error) string {
	t.Helper()
	var de *shared.DomainError
	require.True(t, errors.As(err, &de), "expected a domain error, got %v", err)
	return de.Code
}

// ---------------------------------------------------------------------------
// CRUD Tests
// ---------------------------------------------------------------------------

func TestIntegrationService_CreateAndGet(t *testing.T) {
	f := newServiceFixture()

	created, err := f.service.Create(context.Background(), f.orgID, CreateIntegrationRequest{
		Name:        "Prod HubSpot",
		Description: "primary CRM",
		Family:      "crm",
		ProviderKey: "hubspot",
		Frequency:   "hourly",
		Tags:        []string{"prod", "crm"},
		Config:      map[string]string{"api_key": "pat-secret"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "hourly", created.Frequency)

	// Secrets are routed to the credential bag and never echoed back.
	assert.Equal(t, []string{"api_key"}, created.Config.CredentialKeys)
	assert.NotContains(t, created.Config.CustomFields, "api_key")

	got, err := f.service.Get(context.Background(), f.orgID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Prod HubSpot", got.Name)
	assert.Equal(t, []string{"prod", "crm"}, got.Tags)
}

func TestIntegrationService_Create_Invalid(t *testing.T) {
	f := newServiceFixture()

	_, err := f.service.Create(context.Background(), f.orgID, CreateIntegrationRequest{
		Name: "X", Family: "crm", ProviderKey: "nonexistent",
	})
	assert.Equal(t, "VALIDATION", domainCode(t, err))

	_, err = f.service.Create(context.Background(), f.orgID, CreateIntegrationRequest{
		Name: "X", Family: "fax", ProviderKey: "hubspot",
	})
	assert.Equal(t, "VALIDATION", domainCode(t, err))
}

func TestIntegrationService_Update_PatchSemantics(t *testing.T) {
	f := newServiceFixture()
	created := f.create(t, "Old Name", "crm", "hubspot")

	desc := "now described"
	updated, err := f.service.Update(context.Background(), f.orgID, created.ID, UpdateIntegrationRequest{
		Description: &desc,
	})
	require.NoError(t, err)
	assert.Equal(t, "Old Name", updated.Name, "nil fields stay untouched")
	assert.Equal(t, "now described", updated.Description)

	bad := "every-minute"
	_, err = f.service.Update(context.Background(), f.orgID, created.ID, UpdateIntegrationRequest{
		Frequency: &bad,
	})
	assert.Equal(t, "VALIDATION", domainCode(t, err))
}

func TestIntegrationService_Get_WrongOrgIsNotFound(t *testing.T) {
	f := newServiceFixture()
	created := f.create(t, "Mine", "crm", "hubspot")

	_, err := f.service.Get(context.Background(), uuid.New(), created.ID)
	assert.Equal(t, "NOT_FOUND", domainCode(t, err))
}

func TestIntegrationService_Delete(t *testing.T) {
	f := newServiceFixture()
	created := f.create(t, "Doomed", "crm", "hubspot")

	require.NoError(t, f.service.Delete(context.Background(), f.orgID, created.ID))
	_, err := f.service.Get(context.Background(), f.orgID, created.ID)
	assert.Equal(t, "NOT_FOUND", domainCode(t, err))
}

func TestIntegrationService_Delete_RejectedMidSync(t *testing.T) {
	f := newServiceFixture()
	created := f.create(t, "Busy", "crm", "hubspot")
	f.connect(t, created.ID)
	_, err := f.service.TriggerSync(context.Background(), f.orgID, created.ID)
	require.NoError(t, err)

	err = f.service.Delete(context.Background(), f.orgID, created.ID)
	assert.Equal(t, "SYNC_IN_PROGRESS", domainCode(t, err))
}

// ---------------------------------------------------------------------------
// Query Tests
// ---------------------------------------------------------------------------

func TestIntegrationService_List(t *testing.T) {
	f := newServiceFixture()
	f.create(t, "Alpha CRM", "crm", "hubspot")
	f.create(t, "Beta CRM", "crm", "salesforce")
	f.create(t, "Campaign Mail", "email-provider", "mailchimp")
	f.create(t, "Warehouse", "data-warehouse", "snowflake")

	t.Run("Unfiltered with defaults", func(t *testing.T) {
		items, total, err := f.service.List(context.Background(), f.orgID, IntegrationListFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		require.Len(t, items, 4)
		assert.Equal(t, "Alpha CRM", items[0].Name, "default sort is name ascending")
	})

	t.Run("Family filter", func(t *testing.T) {
		items, total, err := f.service.List(context.Background(), f.orgID, IntegrationListFilter{Family: "crm"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, items, 2)
	})

	t.Run("Filters compose as an intersection", func(t *testing.T) {
		// family ∩ search must equal search ∩ family: both are the same
		// single-filter query, so compare against the manual intersection.
		byFamily, _, err := f.service.List(context.Background(), f.orgID, IntegrationListFilter{Family: "crm"})
		require.NoError(t, err)
		bySearch, _, err := f.service.List(context.Background(), f.orgID, IntegrationListFilter{Search: "beta"})
		require.NoError(t, err)
		combined, _, err := f.service.List(context.Background(), f.orgID, IntegrationListFilter{Family: "crm", Search: "beta"})
		require.NoError(t, err)

		expected := intersect(byFamily, bySearch)
		require.Len(t, combined, len(expected))
		for i := range combined {
			assert.Equal(t, expected[i].ID, combined[i].ID)
		}
	})

	t.Run("Sort descending", func(t *testing.T) {
		items, _, err := f.service.List(context.Background(), f.orgID, IntegrationListFilter{SortBy: "name", SortDesc: true})
		require.NoError(t, err)
		assert.Equal(t, "Warehouse", items[0].Name)
	})

	t.Run("Pagination", func(t *testing.T) {
		page1, total, err := f.service.List(context.Background(), f.orgID, IntegrationListFilter{Page: 1, PageSize: 3})
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		assert.Len(t, page1, 3)

		page2, _, err := f.service.List(context.Background(), f.orgID, IntegrationListFilter{Page: 2, PageSize: 3})
		require.NoError(t, err)
		assert.Len(t, page2, 1)
	})

	t.Run("Invalid sort field", func(t *testing.T) {
		_, _, err := f.service.List(context.Background(), f.orgID, IntegrationListFilter{SortBy: "created_at"})
		assert.Equal(t, "VALIDATION", domainCode(t, err))
	})
}

func intersect(a, b []IntegrationListResponse) []IntegrationListResponse {
	inB := make(map[uuid.UUID]bool, len(b))
	for _, item := range b {
		inB[item.ID] = true
	}
	var out []IntegrationListResponse
	for _, item := range a {
		if inB[item.ID] {
			out = append(out, item)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Sync Trigger Tests
// ---------------------------------------------------------------------------

func TestIntegrationService_TriggerSync(t *testing.T) {
	t.Run("Rejected when not connected", func(t *testing.T) {
		f := newServiceFixture()
		created := f.create(t, "Pending", "crm", "hubspot")

		_, err := f.service.TriggerSync(context.Background(), f.orgID, created.ID)
		assert.Equal(t, "NOT_CONNECTED", domainCode(t, err))
	})

	t.Run("Accepted when connected", func(t *testing.T) {
		f := newServiceFixture()
		created := f.create(t, "Live", "crm", "hubspot")
		f.connect(t, created.ID)

		resp, err := f.service.TriggerSync(context.Background(), f.orgID, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "syncing", resp.Status)
		assert.Equal(t, []uuid.UUID{created.ID}, f.runner.submitted)
		assert.Equal(t, 1, f.events.typeCount(integration.EventSyncStarted))
	})

	t.Run("Second trigger rejected while syncing", func(t *testing.T) {
		f := newServiceFixture()
		created := f.create(t, "Live", "crm", "hubspot")
		f.connect(t, created.ID)

		_, err := f.service.TriggerSync(context.Background(), f.orgID, created.ID)
		require.NoError(t, err)
		_, err = f.service.TriggerSync(context.Background(), f.orgID, created.ID)
		assert.Equal(t, "SYNC_IN_PROGRESS", domainCode(t, err))
	})

	t.Run("Exactly one concurrent trigger wins", func(t *testing.T) {
		f := newServiceFixture()
		created := f.create(t, "Contended", "crm", "hubspot")
		f.connect(t, created.ID)

		const attempts = 8
		var wg sync.WaitGroup
		errs := make([]error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, errs[n] = f.service.TriggerSync(context.Background(), f.orgID, created.ID)
			}(i)
		}
		wg.Wait()

		var accepted, rejected int
		for _, err := range errs {
			if err == nil {
				accepted++
			} else {
				assert.Equal(t, "SYNC_IN_PROGRESS", domainCode(t, err))
				rejected++
			}
		}
		assert.Equal(t, 1, accepted)
		assert.Equal(t, attempts-1, rejected)
		assert.Len(t, f.runner.submitted, 1)
	})

	t.Run("Queue failure rolls the status back", func(t *testing.T) {
		f := newServiceFixture()
		f.runner.err = errors.New("queue full")
		created := f.create(t, "Unlucky", "crm", "hubspot")
		f.connect(t, created.ID)

		_, err := f.service.TriggerSync(context.Background(), f.orgID, created.ID)
		require.Error(t, err)

		got, err := f.service.Get(context.Background(), f.orgID, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "connected", got.Status, "trigger stays retryable")
	})
}

// ---------------------------------------------------------------------------
// Connection Test Tests
// ---------------------------------------------------------------------------

func TestIntegrationService_TestConnection(t *testing.T) {
	t.Run("Reports success without changing status", func(t *testing.T) {
		f := newServiceFixture()
		created := f.create(t, "Fresh", "crm", "hubspot")

		resp, err := f.service.TestConnection(context.Background(), f.orgID, created.ID)
		require.NoError(t, err)
		assert.True(t, resp.Success)

		got, err := f.service.Get(context.Background(), f.orgID, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "pending", got.Status)
	})

	t.Run("Rejected while a sync is running", func(t *testing.T) {
		f := newServiceFixture()
		created := f.create(t, "Busy", "crm", "hubspot")
		f.connect(t, created.ID)
		_, err := f.service.TriggerSync(context.Background(), f.orgID, created.ID)
		require.NoError(t, err)

		_, err = f.service.TestConnection(context.Background(), f.orgID, created.ID)
		assert.Equal(t, "SYNC_IN_PROGRESS", domainCode(t, err))
	})

	t.Run("Sync trigger rejected while a test is in flight", func(t *testing.T) {
		conn := newBlockingConnector()
		f := newServiceFixtureWithConnector(conn)
		created := f.create(t, "Probing", "crm", "hubspot")
		f.connect(t, created.ID)

		var (
			testResp *TestConnectionResponse
			testErr  error
		)
		done := make(chan struct{})
		go func() {
			defer close(done)
			testResp, testErr = f.service.TestConnection(context.Background(), f.orgID, created.ID)
		}()
		<-conn.started

		_, err := f.service.TriggerSync(context.Background(), f.orgID, created.ID)
		assert.Equal(t, "SYNC_IN_PROGRESS", domainCode(t, err))
		assert.Empty(t, f.runner.submitted, "no sync job may be queued during a test")

		close(conn.release)
		<-done
		require.NoError(t, testErr)
		assert.True(t, testResp.Success)

		// once the test finishes the trigger goes through
		_, err = f.service.TriggerSync(context.Background(), f.orgID, created.ID)
		require.NoError(t, err)
		assert.Len(t, f.runner.submitted, 1)
	})
}

// ---------------------------------------------------------------------------
// Mapping & Configuration Tests
// ---------------------------------------------------------------------------

func TestIntegrationService_UpdateMapping(t *testing.T) {
	f := newServiceFixture()
	created := f.create(t, "Mapped", "crm", "hubspot")

	t.Run("Invalid mapping reported without persisting", func(t *testing.T) {
		result, err := f.service.UpdateMapping(context.Background(), f.orgID, created.ID, UpdateMappingRequest{
			Direction:    "inbound",
			ConflictRule: "source-wins",
			Fields: []FieldMappingPayload{
				{SourceField: "A", TargetField: "email"},
				{SourceField: "B", TargetField: "email"},
			},
		})
		require.NoError(t, err)
		assert.False(t, result.IsValid)
		require.NotEmpty(t, result.Errors)

		got, err := f.service.Get(context.Background(), f.orgID, created.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Mapping.Fields)
	})

	t.Run("Valid mapping persisted", func(t *testing.T) {
		result, err := f.service.UpdateMapping(context.Background(), f.orgID, created.ID, UpdateMappingRequest{
			Direction:    "bidirectional",
			ConflictRule: "most-recent",
			Fields: []FieldMappingPayload{
				{SourceField: "Email", TargetField: "email", Required: true, Transformation: "lowercase"},
			},
		})
		require.NoError(t, err)
		assert.True(t, result.IsValid)

		got, err := f.service.Get(context.Background(), f.orgID, created.ID)
		require.NoError(t, err)
		require.Len(t, got.Mapping.Fields, 1)
		assert.Equal(t, "most-recent", got.Mapping.ConflictRule)
	})

	t.Run("Unknown direction rejected", func(t *testing.T) {
		_, err := f.service.UpdateMapping(context.Background(), f.orgID, created.ID, UpdateMappingRequest{
			Direction:    "sideways",
			ConflictRule: "source-wins",
		})
		assert.Equal(t, "VALIDATION", domainCode(t, err))
	})
}

func TestIntegrationService_ValidateConfiguration(t *testing.T) {
	f := newServiceFixture()
	tpl := integration.IntegrationTemplate{
		ID:     uuid.New(),
		Name:   "HubSpot",
		Family: integration.FamilyCRM,
		Schema: integration.ConfigSchema{
			Required:   []string{"apiKey"},
			Properties: map[string]integration.ConfigProperty{"apiKey": {Type: "string", Secret: true}},
		},
	}
	f.templates.templates[tpl.ID] = tpl

	result, err := f.service.ValidateConfiguration(context.Background(), ValidateConfigurationRequest{
		TemplateID: tpl.ID,
		Config:     map[string]string{},
	})
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, []string{"apiKey is required"}, result.Errors)

	_, err = f.service.ValidateConfiguration(context.Background(), ValidateConfigurationRequest{
		TemplateID: uuid.New(),
	})
	assert.Equal(t, "NOT_FOUND", domainCode(t, err))
}

// ---------------------------------------------------------------------------
// Health & Events Tests
// ---------------------------------------------------------------------------

func TestIntegrationService_Health(t *testing.T) {
	f := newServiceFixture()
	created := f.create(t, "Healthy", "crm", "hubspot")
	f.connect(t, created.ID)

	report, err := f.service.Health(context.Background(), f.orgID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, report.OverallScore)

	got, err := f.service.Get(context.Background(), f.orgID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.HealthScore, "overall score is persisted on the aggregate")
}

func TestIntegrationService_Events(t *testing.T) {
	f := newServiceFixture()
	created := f.create(t, "Logged", "crm", "hubspot")
	f.connect(t, created.ID)

	events, err := f.service.Events(context.Background(), f.orgID, created.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, string(integration.EventConnectionEstablished), events[0].Type, "newest first")
}

// ---------------------------------------------------------------------------
// Conflict Review Tests
// ---------------------------------------------------------------------------

func TestIntegrationService_ConflictReview(t *testing.T) {
	f := newServiceFixture()
	created := f.create(t, "Conflicted", "crm", "hubspot")

	pending := integration.NewPendingConflict(f.orgID, created.ID, integration.ConflictRecord{
		RecordKey: "contact:1",
		Source:    map[string]any{"email": "src@example.com"},
		Target:    map[string]any{"email": "dst@example.com"},
	})
	require.NoError(t, f.conflicts.Save(context.Background(), pending))

	listed, err := f.service.ListConflicts(context.Background(), f.orgID, created.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	resolved, err := f.service.ResolveConflict(context.Background(), f.orgID, pending.ID, ResolveConflictRequest{Choice: "source"})
	require.NoError(t, err)
	assert.Equal(t, "src@example.com", resolved.Record["email"])

	listed, err = f.service.ListConflicts(context.Background(), f.orgID, created.ID)
	require.NoError(t, err)
	assert.Empty(t, listed, "resolved conflicts leave the queue")

	_, err = f.service.ResolveConflict(context.Background(), f.orgID, pending.ID, ResolveConflictRequest{Choice: "source"})
	assert.Equal(t, "NOT_FOUND", domainCode(t, err))
}
