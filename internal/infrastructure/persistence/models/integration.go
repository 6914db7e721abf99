package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mops/backend/internal/domain/integration"
)

// IntegrationModel is the persistence model for the Integration aggregate.
// Connection config, selected objects, field mapping and tags are stored as
// JSON blobs; everything the list endpoint filters or sorts on is a column.
type IntegrationModel struct {
	ID                  uuid.UUID                     `gorm:"type:uuid;primary_key"`
	OrgID               uuid.UUID                     `gorm:"type:uuid;not null;index:idx_integrations_org,priority:1"`
	Name                string                        `gorm:"type:varchar(255);not null;index:idx_integrations_org,priority:2"`
	Description         string                        `gorm:"type:text"`
	Family              integration.IntegrationFamily `gorm:"type:varchar(30);not null;index"`
	Category            string                        `gorm:"type:varchar(50);index"`
	ProviderKey         string                        `gorm:"type:varchar(50);not null"`
	Status              integration.IntegrationStatus `gorm:"type:varchar(20);not null;index"`
	ConfigJSON          string                        `gorm:"type:jsonb;column:config"`
	SelectedObjectsJSON string                        `gorm:"type:jsonb;column:selected_objects"`
	MappingJSON         string                        `gorm:"type:jsonb;column:mapping"`
	Frequency           integration.SyncFrequency     `gorm:"type:varchar(20);not null"`
	LastSync            *time.Time                    `gorm:"index"`
	HealthScore         int                           `gorm:"not null;default:100"`
	ErrorCount          int                           `gorm:"not null;default:0"`
	LastError           string                        `gorm:"type:text"`
	TagsJSON            string                        `gorm:"type:jsonb;column:tags"`
	CreatedAt           time.Time                     `gorm:"not null"`
	UpdatedAt           time.Time                     `gorm:"not null"`
	CreatedBy           uuid.UUID                     `gorm:"type:uuid"`
	UpdatedBy           uuid.UUID                     `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (IntegrationModel) TableName() string {
	return "integrations"
}

// ToDomain converts the persistence model to a domain Integration aggregate.
func (m *IntegrationModel) ToDomain() *integration.Integration {
	i := &integration.Integration{
		ID:          m.ID,
		OrgID:       m.OrgID,
		Name:        m.Name,
		Description: m.Description,
		Family:      m.Family,
		Category:    m.Category,
		ProviderKey: m.ProviderKey,
		Status:      m.Status,
		Frequency:   m.Frequency,
		LastSync:    m.LastSync,
		HealthScore: m.HealthScore,
		ErrorCount:  m.ErrorCount,
		LastError:   m.LastError,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		CreatedBy:   m.CreatedBy,
		UpdatedBy:   m.UpdatedBy,
	}

	if m.ConfigJSON != "" {
		var cfg integration.ConnectionConfig
		if err := json.Unmarshal([]byte(m.ConfigJSON), &cfg); err == nil {
			i.Config = cfg
		}
	}
	if m.SelectedObjectsJSON != "" {
		var objects []string
		if err := json.Unmarshal([]byte(m.SelectedObjectsJSON), &objects); err == nil {
			i.SelectedObjects = objects
		}
	}
	if m.MappingJSON != "" {
		var mapping integration.DataMapping
		if err := json.Unmarshal([]byte(m.MappingJSON), &mapping); err == nil {
			i.Mapping = mapping
		}
	}
	if m.TagsJSON != "" {
		var tags []string
		if err := json.Unmarshal([]byte(m.TagsJSON), &tags); err == nil {
			i.Tags = tags
		}
	}

	return i
}

// FromDomain populates the persistence model from a domain Integration aggregate.
func (m *IntegrationModel) FromDomain(i *integration.Integration) {
	m.ID = i.ID
	m.OrgID = i.OrgID
	m.Name = i.Name
	m.Description = i.Description
	m.Family = i.Family
	m.Category = i.Category
	m.ProviderKey = i.ProviderKey
	m.Status = i.Status
	m.Frequency = i.Frequency
	m.LastSync = i.LastSync
	m.HealthScore = i.HealthScore
	m.ErrorCount = i.ErrorCount
	m.LastError = i.LastError
	m.CreatedAt = i.CreatedAt
	m.UpdatedAt = i.UpdatedAt
	m.CreatedBy = i.CreatedBy
	m.UpdatedBy = i.UpdatedBy

	m.ConfigJSON = marshalOrEmptyObject(i.Config)
	m.SelectedObjectsJSON = marshalOrEmptyArray(i.SelectedObjects)
	m.MappingJSON = marshalOrEmptyObject(i.Mapping)
	m.TagsJSON = marshalOrEmptyArray(i.Tags)
}

// IntegrationModelFromDomain creates a new persistence model from a domain Integration.
func IntegrationModelFromDomain(i *integration.Integration) *IntegrationModel {
	m := &IntegrationModel{}
	m.FromDomain(i)
	return m
}

func marshalOrEmptyObject(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func marshalOrEmptyArray[T any](v []T) string {
	if len(v) == 0 {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
