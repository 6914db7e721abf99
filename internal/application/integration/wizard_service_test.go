package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mops/backend/internal/domain/integration"
)

func crmTestSnapshot() *integration.SchemaSnapshot {
	return &integration.SchemaSnapshot{
		Schemas: []integration.SchemaDescriptor{{
			Name: "default",
			Tables: []integration.TableDescriptor{{
				Name: "contacts",
				Fields: []integration.FieldDescriptor{
					{Name: "email", Type: "string"},
				},
			}},
		}},
	}
}

func newWizardFixture(connector integration.Connector) (*WizardService, *memIntegrationRepo, *memEventRepo) {
	repo := newMemIntegrationRepo()
	events := &memEventRepo{}
	service := NewWizardService(
		repo, events,
		&stubConnectorRegistry{connector: connector},
		integration.NewProviderRegistry(),
		integration.NewTransformRegistry(),
		zap.NewNop(),
	)
	return service, repo, events
}

func TestWizardService_FullFlow(t *testing.T) {
	service, repo, events := newWizardFixture(&stubConnector{testOK: true, snapshot: crmTestSnapshot()})
	orgID, userID := uuid.New(), uuid.New()

	state, err := service.Start(orgID, userID, "crm", "hubspot")
	require.NoError(t, err)
	assert.Equal(t, "config", state.Step)
	assert.Equal(t, []string{"api_key"}, state.MissingFields)

	state, err = service.SetField(orgID, state.SessionID, "api_key", "pat")
	require.NoError(t, err)
	assert.Empty(t, state.MissingFields)

	state, err = service.Test(context.Background(), orgID, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "field-mapping", state.Step)
	assert.Equal(t, []string{"contacts"}, state.AvailableObjects)

	state, err = service.SelectObjects(orgID, state.SessionID, []string{"contacts"})
	require.NoError(t, err)

	state, err = service.SetMapping(orgID, state.SessionID, UpdateMappingRequest{
		Direction:    "inbound",
		ConflictRule: "source-wins",
		Fields:       []FieldMappingPayload{{SourceField: "Email", TargetField: "email", Required: true}},
	})
	require.NoError(t, err)

	state, err = service.Next(orgID, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "confirm", state.Step)

	resp, err := service.Confirm(context.Background(), orgID, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "connected", resp.Status)

	// The commit is durable and the session is gone.
	saved, err := repo.FindByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, integration.StatusConnected, saved.Status)
	assert.Equal(t, 1, events.typeCount(integration.EventConnectionEstablished))

	_, err = service.State(orgID, state.SessionID)
	assert.ErrorIs(t, err, integration.ErrWizardSessionNotFound)
}

func TestWizardService_TestFailureKeepsSession(t *testing.T) {
	service, _, _ := newWizardFixture(&stubConnector{testOK: false})
	orgID, userID := uuid.New(), uuid.New()

	state, err := service.Start(orgID, userID, "crm", "hubspot")
	require.NoError(t, err)
	_, err = service.SetField(orgID, state.SessionID, "api_key", "bad")
	require.NoError(t, err)

	state, err = service.Test(context.Background(), orgID, state.SessionID)
	require.Error(t, err)
	require.NotNil(t, state, "state travels with the failure for the UI")
	assert.Equal(t, "config", state.Step)
	assert.NotEmpty(t, state.LastError)
}

func TestWizardService_SessionIsolation(t *testing.T) {
	service, _, _ := newWizardFixture(&stubConnector{testOK: true, snapshot: crmTestSnapshot()})
	orgA, orgB := uuid.New(), uuid.New()

	state, err := service.Start(orgA, uuid.New(), "crm", "hubspot")
	require.NoError(t, err)

	_, err = service.State(orgB, state.SessionID)
	assert.ErrorIs(t, err, integration.ErrWizardSessionNotFound, "sessions are org-scoped")

	require.NoError(t, service.Abandon(orgA, state.SessionID))
	_, err = service.State(orgA, state.SessionID)
	assert.ErrorIs(t, err, integration.ErrWizardSessionNotFound)
}

func TestWizardService_StartEdit(t *testing.T) {
	service, repo, _ := newWizardFixture(&stubConnector{testOK: true, snapshot: crmTestSnapshot()})
	orgID := uuid.New()

	existing, err := integration.NewIntegration(orgID, "Prod HubSpot", integration.FamilyCRM, "hubspot", uuid.New())
	require.NoError(t, err)
	existing.Config.SetField("api_key", "old", true)
	require.NoError(t, existing.Connect())
	require.NoError(t, repo.Save(context.Background(), existing))

	state, err := service.StartEdit(context.Background(), orgID, uuid.New(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Prod HubSpot", state.Name)
	assert.Empty(t, state.MissingFields, "existing credentials carry over")

	_, err = service.StartEdit(context.Background(), uuid.New(), uuid.New(), existing.ID)
	require.Error(t, err)
}
