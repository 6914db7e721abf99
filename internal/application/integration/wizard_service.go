package integration

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mops/backend/internal/domain/integration"
	"github.com/mops/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// sessionTTL is how long an untouched wizard session stays alive
const sessionTTL = time.Hour

type wizardSession struct {
	wizard    *integration.ConnectionWizard
	orgID     uuid.UUID
	touchedAt time.Time
}

// WizardService manages in-memory connection wizard sessions. Sessions hold
// credentials entered mid-flow and are therefore never persisted; a restart
// simply drops them and the user starts over.
type WizardService struct {
	repo       integration.IntegrationRepository
	events     integration.EventRepository
	connectors integration.ConnectorRegistry
	providers  *integration.ProviderRegistry
	transforms *integration.TransformRegistry
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*wizardSession
}

// NewWizardService creates a new WizardService
func NewWizardService(
	repo integration.IntegrationRepository,
	events integration.EventRepository,
	connectors integration.ConnectorRegistry,
	providers *integration.ProviderRegistry,
	transforms *integration.TransformRegistry,
	logger *zap.Logger,
) *WizardService {
	return &WizardService{
		repo:       repo,
		events:     events,
		connectors: connectors,
		providers:  providers,
		transforms: transforms,
		logger:     logger,
		sessions:   make(map[uuid.UUID]*wizardSession),
	}
}

// ---------------------------------------------------------------------------
// Session Lifecycle
// ---------------------------------------------------------------------------

// Start opens a wizard session for connecting a new provider
func (s *WizardService) Start(orgID, userID uuid.UUID, family, providerKey string) (*WizardStateResponse, error) {
	descriptor, err := s.providers.Describe(integration.IntegrationFamily(family), providerKey)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION", "Unknown provider")
	}
	w := integration.NewConnectionWizard(orgID, userID, descriptor, s.transforms)
	s.put(orgID, w)
	return toWizardState(w), nil
}

// StartEdit opens a wizard session seeded from an existing integration
func (s *WizardService) StartEdit(ctx context.Context, orgID, userID, integrationID uuid.UUID) (*WizardStateResponse, error) {
	existing, err := s.repo.FindByID(ctx, integrationID)
	if err != nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Integration not found")
	}
	if existing.OrgID != orgID {
		return nil, shared.NewDomainError("NOT_FOUND", "Integration not found")
	}
	descriptor, err := s.providers.Describe(existing.Family, existing.ProviderKey)
	if err != nil {
		return nil, err
	}
	w := integration.NewEditWizard(existing, descriptor, userID, s.transforms)
	s.put(orgID, w)
	return toWizardState(w), nil
}

// Abandon drops a session without committing anything
func (s *WizardService) Abandon(orgID, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.orgID != orgID {
		return integration.ErrWizardSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// State returns the current session state
func (s *WizardService) State(orgID, sessionID uuid.UUID) (*WizardStateResponse, error) {
	w, err := s.session(orgID, sessionID)
	if err != nil {
		return nil, err
	}
	return toWizardState(w), nil
}

// ---------------------------------------------------------------------------
// Step Operations
// ---------------------------------------------------------------------------

// SetField records one connection field value
func (s *WizardService) SetField(orgID, sessionID uuid.UUID, key, value string) (*WizardStateResponse, error) {
	w, err := s.session(orgID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := w.SetField(key, value); err != nil {
		return nil, err
	}
	return toWizardState(w), nil
}

// SetName sets the integration display name
func (s *WizardService) SetName(orgID, sessionID uuid.UUID, name string) (*WizardStateResponse, error) {
	w, err := s.session(orgID, sessionID)
	if err != nil {
		return nil, err
	}
	w.SetName(name)
	return toWizardState(w), nil
}

// SetFrequency sets the sync cadence
func (s *WizardService) SetFrequency(orgID, sessionID uuid.UUID, frequency string) (*WizardStateResponse, error) {
	w, err := s.session(orgID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := w.SetFrequency(integration.SyncFrequency(frequency)); err != nil {
		return nil, err
	}
	return toWizardState(w), nil
}

// Test runs the connection test and schema introspection for the session
func (s *WizardService) Test(ctx context.Context, orgID, sessionID uuid.UUID) (*WizardStateResponse, error) {
	w, err := s.session(orgID, sessionID)
	if err != nil {
		return nil, err
	}
	connector, err := s.connectors.For(w.Descriptor.Family)
	if err != nil {
		return nil, err
	}
	if err := w.Test(ctx, connector); err != nil {
		// The session stays usable: state carries the failure for the UI.
		return toWizardState(w), err
	}
	return toWizardState(w), nil
}

// SelectObjects records the schemas/objects chosen for sync
func (s *WizardService) SelectObjects(orgID, sessionID uuid.UUID, names []string) (*WizardStateResponse, error) {
	w, err := s.session(orgID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := w.SelectObjects(names); err != nil {
		return nil, err
	}
	return toWizardState(w), nil
}

// SetMapping replaces the session's data mapping
func (s *WizardService) SetMapping(orgID, sessionID uuid.UUID, req UpdateMappingRequest) (*WizardStateResponse, error) {
	w, err := s.session(orgID, sessionID)
	if err != nil {
		return nil, err
	}
	mapping := integration.NewDataMapping(integration.SyncDirection(req.Direction))
	mapping.ConflictRule = integration.ConflictResolution(req.ConflictRule)
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
	if err := w.SetMapping(mapping); err != nil {
		return nil, err
	}
	return toWizardState(w), nil
}

// Next advances the session to the next step
func (s *WizardService) Next(orgID, sessionID uuid.UUID) (*WizardStateResponse, error) {
	w, err := s.session(orgID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := w.Next(); err != nil {
		return toWizardState(w), err
	}
	return toWizardState(w), nil
}

// Back returns the session to the previous step, keeping entered data
func (s *WizardService) Back(orgID, sessionID uuid.UUID) (*WizardStateResponse, error) {
	w, err := s.session(orgID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := w.Back(); err != nil {
		return nil, err
	}
	return toWizardState(w), nil
}

// Confirm commits the session: the assembled integration is persisted and
// the session is removed.
func (s *WizardService) Confirm(ctx context.Context, orgID, sessionID uuid.UUID) (*IntegrationResponse, error) {
	w, err := s.session(orgID, sessionID)
	if err != nil {
		return nil, err
	}
	integ, err := w.Confirm()
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, integ); err != nil {
		return nil, err
	}

	event := integration.NewEvent(integ.ID, integration.EventConnectionEstablished, integration.EventStatusSuccess, "connection wizard completed")
	if err := s.events.Append(ctx, event); err != nil {
		s.logger.Warn("failed to append wizard event", zap.Error(err))
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	s.logger.Info("wizard committed",
		zap.String("integration_id", integ.ID.String()),
		zap.String("provider", integ.ProviderKey))
	return toIntegrationResponse(integ), nil
}

// ---------------------------------------------------------------------------
// Session Store
// ---------------------------------------------------------------------------

func (s *WizardService) put(orgID uuid.UUID, w *integration.ConnectionWizard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.sessions[w.SessionID] = &wizardSession{wizard: w, orgID: orgID, touchedAt: time.Now()}
}

func (s *WizardService) session(orgID, sessionID uuid.UUID) (*integration.ConnectionWizard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.orgID != orgID {
		return nil, integration.ErrWizardSessionNotFound
	}
	if time.Since(sess.touchedAt) > sessionTTL {
		delete(s.sessions, sessionID)
		return nil, integration.ErrWizardSessionNotFound
	}
	sess.touchedAt = time.Now()
	return sess.wizard, nil
}

// sweepLocked drops expired sessions. Caller holds s.mu.
func (s *WizardService) sweepLocked() {
	for id, sess := range s.sessions {
		if time.Since(sess.touchedAt) > sessionTTL {
			delete(s.sessions, id)
		}
	}
}

// ---------------------------------------------------------------------------
// Wizard State DTO
// ---------------------------------------------------------------------------

// WizardStateResponse is the session state returned after every wizard operation
type WizardStateResponse struct {
	SessionID        uuid.UUID           `json:"session_id"`
	Step             string              `json:"step"`
	Provider         string              `json:"provider"`
	Family           string              `json:"family"`
	Name             string              `json:"name"`
	Frequency        string              `json:"frequency"`
	MissingFields    []string            `json:"missing_fields,omitempty"`
	AvailableObjects []string            `json:"available_objects,omitempty"`
	SelectedObjects  []string            `json:"selected_objects,omitempty"`
	Mapping          DataMappingResponse `json:"mapping"`
	LastError        string              `json:"last_error,omitempty"`
	Committed        bool                `json:"committed"`
}

func toWizardState(w *integration.ConnectionWizard) *WizardStateResponse {
	state := &WizardStateResponse{
		SessionID:       w.SessionID,
		Step:            string(w.Step),
		Provider:        w.Descriptor.Key,
		Family:          string(w.Descriptor.Family),
		Name:            w.Name,
		Frequency:       string(w.Frequency),
		MissingFields:   w.MissingFields(),
		SelectedObjects: w.SelectedObjects,
		Mapping:         toMappingResponse(w.Mapping),
		LastError:       w.LastError,
		Committed:       w.Committed(),
	}
	if w.Snapshot != nil {
		state.AvailableObjects = w.Snapshot.ObjectNames()
	}
	return state
}
