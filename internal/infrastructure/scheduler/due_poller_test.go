package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appintegration "github.com/mops/backend/internal/application/integration"
	"github.com/mops/backend/internal/domain/integration"
	"github.com/mops/backend/internal/domain/shared"
)

type recordingTrigger struct {
	mu        sync.Mutex
	triggered []uuid.UUID
	errFor    map[uuid.UUID]error
}

func (t *recordingTrigger) TriggerSync(_ context.Context, _, integrationID uuid.UUID) (*appintegration.TriggerSyncResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.triggered = append(t.triggered, integrationID)
	if err, ok := t.errFor[integrationID]; ok {
		return nil, err
	}
	return &appintegration.TriggerSyncResponse{IntegrationID: integrationID}, nil
}

func (t *recordingTrigger) count(id uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, got := range t.triggered {
		if got == id {
			n++
		}
	}
	return n
}

func dueIntegration(t *testing.T, name string) integration.Integration {
	t.Helper()

	i, err := integration.NewIntegration(uuid.New(), name, integration.FamilyCRM, "salesforce", uuid.New())
	require.NoError(t, err)
	i.Frequency = integration.FrequencyHourly
	require.NoError(t, i.Connect())
	return *i
}

func TestNewDuePoller_RejectsInvalidInterval(t *testing.T) {
	_, err := NewDuePoller(newMemIntegrationRepo(), &recordingTrigger{}, 0, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDuePoller_TriggersDueIntegrations(t *testing.T) {
	first := dueIntegration(t, "Salesforce Contacts")
	second := dueIntegration(t, "Salesforce Leads")

	repo := newMemIntegrationRepo()
	repo.due = []integration.Integration{first, second}
	trigger := &recordingTrigger{}

	poller, err := NewDuePoller(repo, trigger, 10*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, poller.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = poller.Stop(ctx)
	})

	require.Eventually(t, func() bool {
		return trigger.count(first.ID) > 0 && trigger.count(second.ID) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDuePoller_ConcurrentSyncSkipIsNotFatal(t *testing.T) {
	busy := dueIntegration(t, "Busy Integration")
	idle := dueIntegration(t, "Idle Integration")

	repo := newMemIntegrationRepo()
	repo.due = []integration.Integration{busy, idle}
	trigger := &recordingTrigger{
		errFor: map[uuid.UUID]error{
			busy.ID: shared.NewDomainError("SYNC_IN_PROGRESS", "A sync is already running for this integration"),
		},
	}

	poller, err := NewDuePoller(repo, trigger, 10*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, poller.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = poller.Stop(ctx)
	})

	// The busy one keeps being skipped while the idle one keeps triggering.
	require.Eventually(t, func() bool {
		return trigger.count(busy.ID) >= 2 && trigger.count(idle.ID) >= 2
	}, 2*time.Second, 10*time.Millisecond)
}
