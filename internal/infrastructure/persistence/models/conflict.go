package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mops/backend/internal/domain/integration"
)

// PendingConflictModel is the persistence model for the conflict review queue.
type PendingConflictModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	OrgID         uuid.UUID `gorm:"type:uuid;not null;index:idx_pending_conflicts_org,priority:1"`
	IntegrationID uuid.UUID `gorm:"type:uuid;not null;index:idx_pending_conflicts_org,priority:2"`
	RecordJSON    string    `gorm:"type:jsonb;column:record"`
	QueuedAt      time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (PendingConflictModel) TableName() string {
	return "pending_conflicts"
}

// ToDomain converts the persistence model to a domain PendingConflict.
func (m *PendingConflictModel) ToDomain() *integration.PendingConflict {
	p := &integration.PendingConflict{
		ID:            m.ID,
		OrgID:         m.OrgID,
		IntegrationID: m.IntegrationID,
		QueuedAt:      m.QueuedAt,
	}
	if m.RecordJSON != "" {
		var record integration.ConflictRecord
		if err := json.Unmarshal([]byte(m.RecordJSON), &record); err == nil {
			p.Record = record
		}
	}
	return p
}

// FromDomain populates the persistence model from a domain PendingConflict.
func (m *PendingConflictModel) FromDomain(p *integration.PendingConflict) {
	m.ID = p.ID
	m.OrgID = p.OrgID
	m.IntegrationID = p.IntegrationID
	m.QueuedAt = p.QueuedAt
	m.RecordJSON = marshalOrEmptyObject(p.Record)
}

// PendingConflictModelFromDomain creates a new persistence model from a domain conflict.
func PendingConflictModelFromDomain(p *integration.PendingConflict) *PendingConflictModel {
	m := &PendingConflictModel{}
	m.FromDomain(p)
	return m
}
