package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mops/backend/internal/domain/integration"
)

// IntegrationEventModel is the persistence model for the append-only event log.
type IntegrationEventModel struct {
	ID               uuid.UUID               `gorm:"type:uuid;primary_key"`
	IntegrationID    uuid.UUID               `gorm:"type:uuid;not null;index:idx_integration_events_stream,priority:1"`
	Type             integration.EventType   `gorm:"type:varchar(30);not null"`
	Status           integration.EventStatus `gorm:"type:varchar(10);not null"`
	Message          string                  `gorm:"type:text"`
	DurationNanos    int64                   `gorm:"not null;default:0;column:duration_nanos"`
	RecordsProcessed int                     `gorm:"not null;default:0"`
	OccurredAt       time.Time               `gorm:"not null;index:idx_integration_events_stream,priority:2"`
}

// TableName returns the table name for GORM
func (IntegrationEventModel) TableName() string {
	return "integration_events"
}

// ToDomain converts the persistence model to a domain IntegrationEvent.
func (m *IntegrationEventModel) ToDomain() *integration.IntegrationEvent {
	return &integration.IntegrationEvent{
		ID:               m.ID,
		IntegrationID:    m.IntegrationID,
		Type:             m.Type,
		Status:           m.Status,
		Message:          m.Message,
		Duration:         time.Duration(m.DurationNanos),
		RecordsProcessed: m.RecordsProcessed,
		OccurredAt:       m.OccurredAt,
	}
}

// FromDomain populates the persistence model from a domain IntegrationEvent.
func (m *IntegrationEventModel) FromDomain(e *integration.IntegrationEvent) {
	m.ID = e.ID
	m.IntegrationID = e.IntegrationID
	m.Type = e.Type
	m.Status = e.Status
	m.Message = e.Message
	m.DurationNanos = int64(e.Duration)
	m.RecordsProcessed = e.RecordsProcessed
	m.OccurredAt = e.OccurredAt
}

// IntegrationEventModelFromDomain creates a new persistence model from a domain event.
func IntegrationEventModelFromDomain(e *integration.IntegrationEvent) *IntegrationEventModel {
	m := &IntegrationEventModel{}
	m.FromDomain(e)
	return m
}
