package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appintegration "github.com/mops/backend/internal/application/integration"
	"github.com/mops/backend/internal/domain/integration"
	"github.com/mops/backend/internal/interfaces/http/dto"
	"github.com/mops/backend/internal/interfaces/http/router"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type memRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*integration.Integration
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[uuid.UUID]*integration.Integration)}
}

func (r *memRepo) FindByID(_ context.Context, id uuid.UUID) (*integration.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	integ, ok := r.items[id]
	if !ok {
		return nil, integration.ErrIntegrationNotFound
	}
	cp := *integ
	return &cp, nil
}

func (r *memRepo) FindAll(_ context.Context, orgID uuid.UUID, _ integration.IntegrationFilter) ([]integration.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []integration.Integration
	for _, integ := range r.items {
		if integ.OrgID == orgID {
			out = append(out, *integ)
		}
	}
	return out, nil
}

func (r *memRepo) Count(_ context.Context, orgID uuid.UUID, _ integration.IntegrationFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, integ := range r.items {
		if integ.OrgID == orgID {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) FindDueForSync(_ context.Context, _ time.Time) ([]integration.Integration, error) {
	return nil, nil
}

func (r *memRepo) Save(_ context.Context, integ *integration.Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *integ
	r.items[integ.ID] = &cp
	return nil
}

func (r *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

type memEvents struct {
	mu     sync.Mutex
	events []*integration.IntegrationEvent
}

func (e *memEvents) Append(_ context.Context, event *integration.IntegrationEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *memEvents) FindRecent(_ context.Context, integrationID uuid.UUID, _ int) ([]integration.IntegrationEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []integration.IntegrationEvent
	for _, ev := range e.events {
		if ev.IntegrationID == integrationID {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (e *memEvents) FindSince(_ context.Context, integrationID uuid.UUID, _ time.Time) ([]integration.IntegrationEvent, error) {
	return e.FindRecent(context.Background(), integrationID, 0)
}

func (e *memEvents) FindAllRecent(_ context.Context, _ uuid.UUID, _ int) ([]integration.IntegrationEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []integration.IntegrationEvent
	for _, ev := range e.events {
		out = append(out, *ev)
	}
	return out, nil
}

type okConnector struct{}

func (okConnector) Test(_ context.Context, _ integration.ConnectionConfig) (bool, error) {
	return true, nil
}

func (okConnector) Introspect(_ context.Context, _ integration.ConnectionConfig) (*integration.SchemaSnapshot, error) {
	return &integration.SchemaSnapshot{
		Schemas: []integration.SchemaDescriptor{
			{
				Name: "crm",
				Tables: []integration.TableDescriptor{
					{
						Name: "contacts",
						Fields: []integration.FieldDescriptor{
							{Name: "email", Type: "string"},
							{Name: "first_name", Type: "string"},
						},
						RowCount: 120,
					},
					{Name: "companies", RowCount: 14},
				},
			},
		},
		TakenAt: time.Now(),
	}, nil
}

func (okConnector) Execute(_ context.Context, _ integration.ConnectionConfig, _ integration.DataMapping) (*integration.SyncResult, error) {
	return &integration.SyncResult{}, nil
}

type singleRegistry struct{ c integration.Connector }

func (r singleRegistry) For(_ integration.IntegrationFamily) (integration.Connector, error) {
	return r.c, nil
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type wizardFixture struct {
	engine *gin.Engine
	repo   *memRepo
	events *memEvents
}

func newWizardFixture(t *testing.T) *wizardFixture {
	t.Helper()
	repo := newMemRepo()
	events := &memEvents{}
	service := appintegration.NewWizardService(
		repo,
		events,
		singleRegistry{c: okConnector{}},
		integration.NewProviderRegistry(),
		integration.NewTransformRegistry(),
		zap.NewNop(),
	)

	engine := gin.New()
	router.NewRouter(engine).Register(NewWizardHandler(service)).Setup()
	return &wizardFixture{engine: engine, repo: repo, events: events}
}

func (f *wizardFixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var resp dto.Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func wizardState(t *testing.T, resp dto.Response) map[string]any {
	t.Helper()
	state, ok := resp.Data.(map[string]any)
	require.True(t, ok, "expected wizard state payload")
	return state
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestWizardHandler_FullConnectFlow(t *testing.T) {
	f := newWizardFixture(t)

	// Start a session for HubSpot.
	w, resp := f.do(t, "POST", "/api/v1/wizard/start", gin.H{
		"family":       "crm",
		"provider_key": "hubspot",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	state := wizardState(t, resp)
	assert.Equal(t, "config", state["step"])
	assert.Contains(t, state["missing_fields"], "api_key")
	sessionID := state["session_id"].(string)

	// Fill in credentials and settings.
	w, resp = f.do(t, "PUT", "/api/v1/wizard/"+sessionID+"/field", gin.H{
		"key": "api_key", "value": "pat-secret",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, wizardState(t, resp), "missing_fields")

	w, _ = f.do(t, "PUT", "/api/v1/wizard/"+sessionID+"/name", gin.H{"name": "Production HubSpot"})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(t, "PUT", "/api/v1/wizard/"+sessionID+"/frequency", gin.H{"frequency": "hourly"})
	require.Equal(t, http.StatusOK, w.Code)

	// Test the connection; the schema snapshot drives object selection.
	w, resp = f.do(t, "POST", "/api/v1/wizard/"+sessionID+"/test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	state = wizardState(t, resp)
	assert.Equal(t, "schema-selection", state["step"])
	assert.Contains(t, state["available_objects"], "contacts")

	w, _ = f.do(t, "PUT", "/api/v1/wizard/"+sessionID+"/objects", gin.H{"objects": []string{"contacts"}})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = f.do(t, "POST", "/api/v1/wizard/"+sessionID+"/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "confirm", wizardState(t, resp)["step"])

	// Confirm persists the integration.
	w, resp = f.do(t, "POST", "/api/v1/wizard/"+sessionID+"/confirm", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	created, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Production HubSpot", created["name"])
	assert.Equal(t, "connected", created["status"])

	integID, err := uuid.Parse(created["id"].(string))
	require.NoError(t, err)
	persisted, err := f.repo.FindByID(context.Background(), integID)
	require.NoError(t, err)
	assert.Equal(t, integration.StatusConnected, persisted.Status)
	assert.Equal(t, []string{"contacts"}, persisted.SelectedObjects)

	// The session is gone once committed.
	w, _ = f.do(t, "GET", "/api/v1/wizard/"+sessionID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWizardHandler_StartUnknownProvider(t *testing.T) {
	f := newWizardFixture(t)

	w, resp := f.do(t, "POST", "/api/v1/wizard/start", gin.H{
		"family":       "crm",
		"provider_key": "does-not-exist",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
}

func TestWizardHandler_TestWithMissingFields(t *testing.T) {
	f := newWizardFixture(t)

	_, resp := f.do(t, "POST", "/api/v1/wizard/start", gin.H{
		"family":       "crm",
		"provider_key": "hubspot",
	})
	sessionID := wizardState(t, resp)["session_id"].(string)

	w, resp := f.do(t, "POST", "/api/v1/wizard/"+sessionID+"/test", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeWizardStep, resp.Error.Code)
}

func TestWizardHandler_InvalidFrequency(t *testing.T) {
	f := newWizardFixture(t)

	_, resp := f.do(t, "POST", "/api/v1/wizard/start", gin.H{
		"family":       "crm",
		"provider_key": "hubspot",
	})
	sessionID := wizardState(t, resp)["session_id"].(string)

	w, resp := f.do(t, "PUT", "/api/v1/wizard/"+sessionID+"/frequency", gin.H{"frequency": "yearly"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeInvalidInput, resp.Error.Code)
}

func TestWizardHandler_UnknownSession(t *testing.T) {
	f := newWizardFixture(t)

	w, resp := f.do(t, "GET", "/api/v1/wizard/"+uuid.NewString(), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
}

func TestWizardHandler_AbandonRemovesSession(t *testing.T) {
	f := newWizardFixture(t)

	_, resp := f.do(t, "POST", "/api/v1/wizard/start", gin.H{
		"family":       "crm",
		"provider_key": "hubspot",
	})
	sessionID := wizardState(t, resp)["session_id"].(string)

	w, _ := f.do(t, "DELETE", "/api/v1/wizard/"+sessionID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w, _ = f.do(t, "GET", "/api/v1/wizard/"+sessionID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWizardHandler_MalformedBody(t *testing.T) {
	f := newWizardFixture(t)

	req := httptest.NewRequest("POST", "/api/v1/wizard/start", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeInvalidJSON, resp.Error.Code)
}
