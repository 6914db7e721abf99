package integration

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mops/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Request DTOs
// ---------------------------------------------------------------------------

// CreateIntegrationRequest represents a request to create a new integration
type CreateIntegrationRequest struct {
	Name        string            `json:"name" binding:"required,min=1,max=200"`
	Description string            `json:"description" binding:"max=2000"`
	Family      string            `json:"family" binding:"required"`
	ProviderKey string            `json:"provider_key" binding:"required"`
	Frequency   string            `json:"frequency" binding:"omitempty,syncfrequency"`
	Tags        []string          `json:"tags"`
	Config      map[string]string `json:"config"`
	CreatedBy   *uuid.UUID        `json:"-"`
}

// UpdateIntegrationRequest represents a partial update; nil fields are untouched
type UpdateIntegrationRequest struct {
	Name        *string           `json:"name" binding:"omitempty,min=1,max=200"`
	Description *string           `json:"description" binding:"omitempty,max=2000"`
	Frequency   *string           `json:"frequency" binding:"omitempty,syncfrequency"`
	Tags        *[]string         `json:"tags"`
	Config      map[string]string `json:"config"`
	UpdatedBy   *uuid.UUID        `json:"-"`
}

// FieldMappingPayload is one mapping row in requests and responses
type FieldMappingPayload struct {
	SourceField    string `json:"source_field"`
	TargetField    string `json:"target_field"`
	DataType       string `json:"data_type"`
	Required       bool   `json:"required"`
	DefaultValue   any    `json:"default_value,omitempty"`
	Transformation string `json:"transformation,omitempty"`
}

// UpdateMappingRequest replaces an integration's data mapping
type UpdateMappingRequest struct {
	Direction    string                `json:"direction" binding:"required"`
	ConflictRule string                `json:"conflict_rule" binding:"required"`
	Fields       []FieldMappingPayload `json:"fields"`
}

// ValidateConfigurationRequest checks a raw configuration against a template schema
type ValidateConfigurationRequest struct {
	TemplateID uuid.UUID         `json:"template_id" binding:"required"`
	Config     map[string]string `json:"config"`
}

// ResolveConflictRequest applies a reviewer's choice to a queued conflict
type ResolveConflictRequest struct {
	Choice string `json:"choice" binding:"required"`
}

// IntegrationListFilter represents filter options for listing integrations
type IntegrationListFilter struct {
	Search   string `form:"search"`
	Family   string `form:"family"`
	Category string `form:"category"`
	Status   string `form:"status"`
	SortBy   string `form:"sort_by"`
	SortDesc bool   `form:"sort_desc"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// ---------------------------------------------------------------------------
// Response DTOs
// ---------------------------------------------------------------------------

// ConfigResponse is the connection configuration with credentials redacted.
// Credential values never leave the service; only their keys are reported.
type ConfigResponse struct {
	BaseURL        string                    `json:"base_url,omitempty"`
	CredentialKeys []string                  `json:"credential_keys"`
	CustomFields   map[string]string         `json:"custom_fields,omitempty"`
	RateLimit      integration.RateLimit     `json:"rate_limit"`
	RetrySettings  integration.RetrySettings `json:"retry_settings"`
}

// DataMappingResponse represents a data mapping in API responses
type DataMappingResponse struct {
	Direction    string                `json:"direction"`
	ConflictRule string                `json:"conflict_rule"`
	Fields       []FieldMappingPayload `json:"fields"`
}

// IntegrationResponse represents an integration in API responses
type IntegrationResponse struct {
	ID              uuid.UUID           `json:"id"`
	OrgID           uuid.UUID           `json:"org_id"`
	Name            string              `json:"name"`
	Description     string              `json:"description,omitempty"`
	Family          string              `json:"family"`
	Category        string              `json:"category,omitempty"`
	ProviderKey     string              `json:"provider_key"`
	Status          string              `json:"status"`
	Config          ConfigResponse      `json:"config"`
	SelectedObjects []string            `json:"selected_objects,omitempty"`
	Mapping         DataMappingResponse `json:"mapping"`
	Frequency       string              `json:"frequency"`
	LastSync        *time.Time          `json:"last_sync,omitempty"`
	HealthScore     int                 `json:"health_score"`
	ErrorCount      int                 `json:"error_count"`
	LastError       string              `json:"last_error,omitempty"`
	Tags            []string            `json:"tags,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// IntegrationListResponse represents an integration in list responses (lighter)
type IntegrationListResponse struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Family      string     `json:"family"`
	Category    string     `json:"category,omitempty"`
	ProviderKey string     `json:"provider_key"`
	Status      string     `json:"status"`
	Frequency   string     `json:"frequency"`
	LastSync    *time.Time `json:"last_sync,omitempty"`
	HealthScore int        `json:"health_score"`
	ErrorCount  int        `json:"error_count"`
	Tags        []string   `json:"tags,omitempty"`
}

// TestConnectionResponse is the outcome of an on-demand connection test
type TestConnectionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// TriggerSyncResponse acknowledges an accepted manual sync
type TriggerSyncResponse struct {
	IntegrationID uuid.UUID `json:"integration_id"`
	Status        string    `json:"status"`
}

// MappingValidationResponse is the outcome of a mapping update
type MappingValidationResponse struct {
	IsValid  bool                       `json:"is_valid"`
	Errors   []integration.MappingIssue `json:"errors,omitempty"`
	Warnings []integration.MappingIssue `json:"warnings,omitempty"`
}

// EventResponse represents one event-log entry
type EventResponse struct {
	ID               uuid.UUID `json:"id"`
	IntegrationID    uuid.UUID `json:"integration_id"`
	Type             string    `json:"type"`
	Status           string    `json:"status"`
	Message          string    `json:"message,omitempty"`
	DurationMillis   int64     `json:"duration_ms,omitempty"`
	RecordsProcessed int       `json:"records_processed,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// TemplateResponse represents a marketplace template
type TemplateResponse struct {
	ID           uuid.UUID                `json:"id"`
	Name         string                   `json:"name"`
	Description  string                   `json:"description"`
	Family       string                   `json:"family"`
	Category     string                   `json:"category"`
	ProviderKey  string                   `json:"provider_key"`
	Schema       integration.ConfigSchema `json:"config_schema"`
	Rating       float64                  `json:"rating"`
	InstallCount int                      `json:"install_count"`
	Support      string                   `json:"support"`
}

// ConflictResponse represents a conflict awaiting manual review
type ConflictResponse struct {
	ID            uuid.UUID                  `json:"id"`
	IntegrationID uuid.UUID                  `json:"integration_id"`
	Record        integration.ConflictRecord `json:"record"`
	QueuedAt      time.Time                  `json:"queued_at"`
}

// ResolvedConflictResponse carries the record chosen by the reviewer
type ResolvedConflictResponse struct {
	ID     uuid.UUID      `json:"id"`
	Record map[string]any `json:"record"`
}

// ---------------------------------------------------------------------------
// Mapping Helpers
// ---------------------------------------------------------------------------

func toConfigResponse(c integration.ConnectionConfig) ConfigResponse {
	keys := make([]string, 0, len(c.Credentials))
	for k := range c.Credentials {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return ConfigResponse{
		BaseURL:        c.BaseURL,
		CredentialKeys: keys,
		CustomFields:   c.CustomFields,
		RateLimit:      c.RateLimit,
		RetrySettings:  c.RetrySettings,
	}
}

func toMappingResponse(m integration.DataMapping) DataMappingResponse {
	fields := make([]FieldMappingPayload, 0, len(m.Fields))
	for _, f := range m.Fields {
		fields = append(fields, FieldMappingPayload{
			SourceField:    f.SourceField,
			TargetField:    f.TargetField,
			DataType:       f.DataType,
			Required:       f.Required,
			DefaultValue:   f.DefaultValue,
			Transformation: f.Transformation,
		})
	}
	return DataMappingResponse{
		Direction:    string(m.Direction),
		ConflictRule: string(m.ConflictRule),
		Fields:       fields,
	}
}

func toIntegrationResponse(i *integration.Integration) *IntegrationResponse {
	return &IntegrationResponse{
		ID:              i.ID,
		OrgID:           i.OrgID,
		Name:            i.Name,
		Description:     i.Description,
		Family:          string(i.Family),
		Category:        i.Category,
		ProviderKey:     i.ProviderKey,
		Status:          string(i.Status),
		Config:          toConfigResponse(i.Config),
		SelectedObjects: i.SelectedObjects,
		Mapping:         toMappingResponse(i.Mapping),
		Frequency:       string(i.Frequency),
		LastSync:        i.LastSync,
		HealthScore:     i.HealthScore,
		ErrorCount:      i.ErrorCount,
		LastError:       i.LastError,
		Tags:            i.Tags,
		CreatedAt:       i.CreatedAt,
		UpdatedAt:       i.UpdatedAt,
	}
}

func toIntegrationListResponse(i *integration.Integration) IntegrationListResponse {
	return IntegrationListResponse{
		ID:          i.ID,
		Name:        i.Name,
		Family:      string(i.Family),
		Category:    i.Category,
		ProviderKey: i.ProviderKey,
		Status:      string(i.Status),
		Frequency:   string(i.Frequency),
		LastSync:    i.LastSync,
		HealthScore: i.HealthScore,
		ErrorCount:  i.ErrorCount,
		Tags:        i.Tags,
	}
}

func toEventResponse(e *integration.IntegrationEvent) EventResponse {
	return EventResponse{
		ID:               e.ID,
		IntegrationID:    e.IntegrationID,
		Type:             string(e.Type),
		Status:           string(e.Status),
		Message:          e.Message,
		DurationMillis:   e.Duration.Milliseconds(),
		RecordsProcessed: e.RecordsProcessed,
		OccurredAt:       e.OccurredAt,
	}
}

func toTemplateResponse(t *integration.IntegrationTemplate) TemplateResponse {
	return TemplateResponse{
		ID:           t.ID,
		Name:         t.Name,
		Description:  t.Description,
		Family:       string(t.Family),
		Category:     t.Category,
		ProviderKey:  t.ProviderKey,
		Schema:       t.Schema,
		Rating:       t.Rating,
		InstallCount: t.InstallCount,
		Support:      string(t.Support),
	}
}

func toConflictResponse(c *integration.PendingConflict) ConflictResponse {
	return ConflictResponse{
		ID:            c.ID,
		IntegrationID: c.IntegrationID,
		Record:        c.Record,
		QueuedAt:      c.QueuedAt,
	}
}
