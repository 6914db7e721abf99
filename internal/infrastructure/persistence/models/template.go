package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mops/backend/internal/domain/integration"
)

// IntegrationTemplateModel is the persistence model for marketplace templates.
type IntegrationTemplateModel struct {
	ID           uuid.UUID                     `gorm:"type:uuid;primary_key"`
	Name         string                        `gorm:"type:varchar(255);not null"`
	Description  string                        `gorm:"type:text"`
	Family       integration.IntegrationFamily `gorm:"type:varchar(30);not null;index"`
	Category     string                        `gorm:"type:varchar(50)"`
	ProviderKey  string                        `gorm:"type:varchar(50);not null;uniqueIndex:idx_templates_provider"`
	SchemaJSON   string                        `gorm:"type:jsonb;column:schema"`
	Rating       float64                       `gorm:"not null;default:0"`
	InstallCount int                           `gorm:"not null;default:0"`
	Support      integration.SupportLevel      `gorm:"type:varchar(20);not null"`
	CreatedAt    time.Time                     `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IntegrationTemplateModel) TableName() string {
	return "integration_templates"
}

// ToDomain converts the persistence model to a domain IntegrationTemplate.
func (m *IntegrationTemplateModel) ToDomain() *integration.IntegrationTemplate {
	t := &integration.IntegrationTemplate{
		ID:           m.ID,
		Name:         m.Name,
		Description:  m.Description,
		Family:       m.Family,
		Category:     m.Category,
		ProviderKey:  m.ProviderKey,
		Rating:       m.Rating,
		InstallCount: m.InstallCount,
		Support:      m.Support,
		CreatedAt:    m.CreatedAt,
	}
	if m.SchemaJSON != "" {
		var schema integration.ConfigSchema
		if err := json.Unmarshal([]byte(m.SchemaJSON), &schema); err == nil {
			t.Schema = schema
		}
	}
	return t
}

// FromDomain populates the persistence model from a domain IntegrationTemplate.
func (m *IntegrationTemplateModel) FromDomain(t *integration.IntegrationTemplate) {
	m.ID = t.ID
	m.Name = t.Name
	m.Description = t.Description
	m.Family = t.Family
	m.Category = t.Category
	m.ProviderKey = t.ProviderKey
	m.Rating = t.Rating
	m.InstallCount = t.InstallCount
	m.Support = t.Support
	m.CreatedAt = t.CreatedAt
	m.SchemaJSON = marshalOrEmptyObject(t.Schema)
}

// IntegrationTemplateModelFromDomain creates a new persistence model from a domain template.
func IntegrationTemplateModelFromDomain(t *integration.IntegrationTemplate) *IntegrationTemplateModel {
	m := &IntegrationTemplateModel{}
	m.FromDomain(t)
	return m
}
