package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// IntegrationEvent
// ---------------------------------------------------------------------------

// EventType classifies an integration event
type EventType string

const (
	EventSyncStarted           EventType = "sync-started"
	EventSyncCompleted         EventType = "sync-completed"
	EventSyncFailed            EventType = "sync-failed"
	EventConnectionEstablished EventType = "connection-established"
	EventConnectionLost        EventType = "connection-lost"
	EventRateLimitExceeded     EventType = "rate-limit-exceeded"
	EventConfigurationChanged  EventType = "configuration-changed"
	EventConflictDeferred      EventType = "conflict-deferred"
)

// IsValid returns true if the event type is valid
func (t EventType) IsValid() bool {
	switch t {
	case EventSyncStarted, EventSyncCompleted, EventSyncFailed,
		EventConnectionEstablished, EventConnectionLost,
		EventRateLimitExceeded, EventConfigurationChanged, EventConflictDeferred:
		return true
	default:
		return false
	}
}

// EventStatus is the terminal status recorded with the event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusInfo    EventStatus = "info"
)

// IntegrationEvent is an append-only log entry. Immutable once written.
type IntegrationEvent struct {
	// ID is the unique identifier of this event
	ID uuid.UUID
	// IntegrationID is the integration the event belongs to
	IntegrationID uuid.UUID
	// Type classifies the event
	Type EventType
	// Status is the outcome status
	Status EventStatus
	// Message is an optional human-readable detail
	Message string
	// Duration is how long the operation took, when applicable
	Duration time.Duration
	// RecordsProcessed is the record count, when applicable
	RecordsProcessed int
	// OccurredAt is when the event happened
	OccurredAt time.Time
}

// NewEvent creates an integration event stamped with the current time
func NewEvent(integrationID uuid.UUID, eventType EventType, status EventStatus, message string) *IntegrationEvent {
	return &IntegrationEvent{
		ID:            uuid.New(),
		IntegrationID: integrationID,
		Type:          eventType,
		Status:        status,
		Message:       message,
		OccurredAt:    time.Now(),
	}
}

// WithSyncStats attaches duration and record count to the event
func (e *IntegrationEvent) WithSyncStats(duration time.Duration, records int) *IntegrationEvent {
	e.Duration = duration
	e.RecordsProcessed = records
	return e
}

// ---------------------------------------------------------------------------
// EventRepository
// ---------------------------------------------------------------------------

// EventRepository persists the append-only event log
type EventRepository interface {
	// Append writes one event. Events are never updated or deleted by the engine.
	Append(ctx context.Context, event *IntegrationEvent) error

	// FindRecent lists the most recent events for an integration, newest first
	FindRecent(ctx context.Context, integrationID uuid.UUID, limit int) ([]IntegrationEvent, error)

	// FindSince lists events for an integration after a point in time, newest first
	FindSince(ctx context.Context, integrationID uuid.UUID, since time.Time) ([]IntegrationEvent, error)

	// FindAllRecent lists recent events across all integrations, newest first
	FindAllRecent(ctx context.Context, orgID uuid.UUID, limit int) ([]IntegrationEvent, error)
}
