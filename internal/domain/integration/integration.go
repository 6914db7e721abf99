package integration

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// IntegrationFamily
// ---------------------------------------------------------------------------

// IntegrationFamily groups providers by the kind of external system they connect.
type IntegrationFamily string

const (
	// FamilyCRM represents CRM systems (Salesforce, HubSpot, ...)
	FamilyCRM IntegrationFamily = "crm"
	// FamilyEmailProvider represents email marketing platforms
	FamilyEmailProvider IntegrationFamily = "email-provider"
	// FamilyDataWarehouse represents data warehouses (Snowflake, BigQuery, ...)
	FamilyDataWarehouse IntegrationFamily = "data-warehouse"
	// FamilyAnalytics represents analytics platforms
	FamilyAnalytics IntegrationFamily = "analytics"
	// FamilyAutomation represents workflow automation platforms
	FamilyAutomation IntegrationFamily = "automation"
)

// IsValid returns true if the family is valid
func (f IntegrationFamily) IsValid() bool {
	switch f {
	case FamilyCRM, FamilyEmailProvider, FamilyDataWarehouse, FamilyAnalytics, FamilyAutomation:
		return true
	default:
		return false
	}
}

// String returns the string representation of IntegrationFamily
func (f IntegrationFamily) String() string {
	return string(f)
}

// UsesSchemaSelection returns true if the connection wizard should offer
// schema/table selection after a successful test instead of field mapping.
func (f IntegrationFamily) UsesSchemaSelection() bool {
	return f == FamilyDataWarehouse
}

// ---------------------------------------------------------------------------
// IntegrationStatus
// ---------------------------------------------------------------------------

// IntegrationStatus represents the lifecycle status of an integration
type IntegrationStatus string

const (
	// StatusPending indicates the integration was created but never connected
	StatusPending IntegrationStatus = "pending"
	// StatusConnected indicates the integration is live and eligible to sync
	StatusConnected IntegrationStatus = "connected"
	// StatusDisconnected indicates the integration was turned off by a user
	StatusDisconnected IntegrationStatus = "disconnected"
	// StatusSyncing indicates a sync is currently in flight
	StatusSyncing IntegrationStatus = "syncing"
	// StatusError indicates the last connection or sync attempt failed permanently
	StatusError IntegrationStatus = "error"
)

// IsValid returns true if the status is valid
func (s IntegrationStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusConnected, StatusDisconnected, StatusSyncing, StatusError:
		return true
	default:
		return false
	}
}

// String returns the string representation of IntegrationStatus
func (s IntegrationStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether the status machine permits moving to next.
func (s IntegrationStatus) CanTransitionTo(next IntegrationStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusConnected || next == StatusError
	case StatusConnected:
		return next == StatusDisconnected || next == StatusSyncing || next == StatusError
	case StatusSyncing:
		return next == StatusConnected || next == StatusError
	case StatusDisconnected:
		return next == StatusConnected
	case StatusError:
		return next == StatusConnected || next == StatusDisconnected
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// SyncFrequency
// ---------------------------------------------------------------------------

// SyncFrequency represents how often an integration synchronizes
type SyncFrequency string

const (
	FrequencyRealTime SyncFrequency = "real-time"
	FrequencyHourly   SyncFrequency = "hourly"
	FrequencyDaily    SyncFrequency = "daily"
	FrequencyWeekly   SyncFrequency = "weekly"
	FrequencyManual   SyncFrequency = "manual"
)

// IsValid returns true if the frequency is valid
func (f SyncFrequency) IsValid() bool {
	switch f {
	case FrequencyRealTime, FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyManual:
		return true
	default:
		return false
	}
}

// Interval returns the scheduling interval for the frequency.
// Manual and real-time frequencies have no timer interval.
func (f SyncFrequency) Interval() time.Duration {
	switch f {
	case FrequencyHourly:
		return time.Hour
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// ---------------------------------------------------------------------------
// RateLimit / RetrySettings
// ---------------------------------------------------------------------------

// RateLimit holds per-integration call volume ceilings
type RateLimit struct {
	// RequestsPerMinute is the ceiling for the one-minute window
	RequestsPerMinute int `json:"requests_per_minute"`
	// RequestsPerHour is the ceiling for the one-hour window
	RequestsPerHour int `json:"requests_per_hour"`
	// RequestsPerDay is the ceiling for the one-day window
	RequestsPerDay int `json:"requests_per_day"`
	// BurstLimit is the maximum number of calls issued back to back
	BurstLimit int `json:"burst_limit"`
}

// Validate validates the rate limit settings
func (r RateLimit) Validate() error {
	if r.RequestsPerMinute <= 0 || r.RequestsPerHour <= 0 || r.RequestsPerDay <= 0 || r.BurstLimit <= 0 {
		return ErrInvalidRateLimit
	}
	return nil
}

// DefaultRateLimit returns a conservative default rate limit
func DefaultRateLimit() RateLimit {
	return RateLimit{
		RequestsPerMinute: 60,
		RequestsPerHour:   1000,
		RequestsPerDay:    10000,
		BurstLimit:        10,
	}
}

// RetrySettings holds the backoff policy for transient sync failures
type RetrySettings struct {
	// MaxRetries is the number of retries after the initial attempt
	MaxRetries int `json:"max_retries"`
	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration `json:"initial_delay"`
	// MaxDelay caps the computed backoff delay
	MaxDelay time.Duration `json:"max_delay"`
	// BackoffMultiplier is the exponential growth factor, must be > 1
	BackoffMultiplier float64 `json:"backoff_multiplier"`
}

// Validate validates the retry settings
func (r RetrySettings) Validate() error {
	if r.MaxRetries < 0 {
		return ErrInvalidRetrySettings
	}
	if r.InitialDelay <= 0 || r.MaxDelay < r.InitialDelay {
		return ErrInvalidRetrySettings
	}
	if r.BackoffMultiplier <= 1 {
		return ErrInvalidRetrySettings
	}
	return nil
}

// DelayFor returns the backoff delay before retry number attempt (0-indexed):
// min(initialDelay * multiplier^attempt, maxDelay).
func (r RetrySettings) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := time.Duration(float64(r.InitialDelay) * math.Pow(r.BackoffMultiplier, float64(attempt)))
	if delay > r.MaxDelay || delay <= 0 {
		return r.MaxDelay
	}
	return delay
}

// DefaultRetrySettings returns the default retry policy
func DefaultRetrySettings() RetrySettings {
	return RetrySettings{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
	}
}

// ---------------------------------------------------------------------------
// ConnectionConfig
// ---------------------------------------------------------------------------

// ConnectionConfig holds the provider connection parameters for an integration.
// Credentials hold secret fields (API keys, passwords); CustomFields hold the rest.
type ConnectionConfig struct {
	// BaseURL is the provider endpoint base URL, when applicable
	BaseURL string `json:"base_url,omitempty"`
	// Credentials contains secret connection fields keyed by field key
	Credentials map[string]string `json:"credentials,omitempty"`
	// CustomFields contains non-secret connection fields keyed by field key
	CustomFields map[string]string `json:"custom_fields,omitempty"`
	// RateLimit holds this integration's call ceilings
	RateLimit RateLimit `json:"rate_limit"`
	// RetrySettings holds this integration's backoff policy
	RetrySettings RetrySettings `json:"retry_settings"`
}

// Field returns the value for a connection field key, secret or not.
func (c ConnectionConfig) Field(key string) (string, bool) {
	if v, ok := c.Credentials[key]; ok {
		return v, true
	}
	v, ok := c.CustomFields[key]
	return v, ok
}

// SetField stores a field value in the secret or plain bag based on the flag.
func (c *ConnectionConfig) SetField(key, value string, secret bool) {
	if secret {
		if c.Credentials == nil {
			c.Credentials = make(map[string]string)
		}
		c.Credentials[key] = value
		return
	}
	if c.CustomFields == nil {
		c.CustomFields = make(map[string]string)
	}
	c.CustomFields[key] = value
}

// ---------------------------------------------------------------------------
// Integration Aggregate
// ---------------------------------------------------------------------------

// Integration represents a configured, persisted connection to one external system.
type Integration struct {
	// ID is the unique identifier of this integration
	ID uuid.UUID
	// OrgID is the owning organization
	OrgID uuid.UUID
	// Name is the display name
	Name string
	// Description is an optional free-text description
	Description string
	// Family is the integration family (crm, email-provider, ...)
	Family IntegrationFamily
	// Category is the marketplace category label
	Category string
	// ProviderKey identifies the provider within the family
	ProviderKey string
	// Status is the current lifecycle status
	Status IntegrationStatus
	// Config holds the connection parameters
	Config ConnectionConfig
	// SelectedObjects are the remote objects/schemas chosen for sync
	SelectedObjects []string
	// Mapping is the field mapping applied during sync
	Mapping DataMapping
	// Frequency is the sync cadence
	Frequency SyncFrequency
	// LastSync is when the last successful sync completed
	LastSync *time.Time
	// HealthScore is the most recent overall health score, 0-100
	HealthScore int
	// ErrorCount is the number of failed syncs since creation
	ErrorCount int
	// LastError is the most recent connection or sync error message
	LastError string
	// Tags are free-text labels used by search
	Tags []string
	// CreatedAt is when the integration was created
	CreatedAt time.Time
	// UpdatedAt is when the integration was last modified
	UpdatedAt time.Time
	// CreatedBy is the user who created the integration
	CreatedBy uuid.UUID
	// UpdatedBy is the user who last modified the integration
	UpdatedBy uuid.UUID
}

// NewIntegration creates a pending integration for the given provider.
func NewIntegration(orgID uuid.UUID, name string, family IntegrationFamily, providerKey string, createdBy uuid.UUID) (*Integration, error) {
	if orgID == uuid.Nil {
		return nil, ErrInvalidOrgID
	}
	if name == "" {
		return nil, ErrInvalidName
	}
	if !family.IsValid() {
		return nil, ErrInvalidFamily
	}
	if providerKey == "" {
		return nil, ErrInvalidProviderKey
	}

	now := time.Now()
	return &Integration{
		ID:          uuid.New(),
		OrgID:       orgID,
		Name:        name,
		Family:      family,
		ProviderKey: providerKey,
		Status:      StatusPending,
		Config: ConnectionConfig{
			RateLimit:     DefaultRateLimit(),
			RetrySettings: DefaultRetrySettings(),
		},
		Frequency:   FrequencyManual,
		Mapping:     NewDataMapping(DirectionInbound),
		HealthScore: 100,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   createdBy,
		UpdatedBy:   createdBy,
	}, nil
}

// Validate checks the aggregate invariants.
func (i *Integration) Validate() error {
	if i.OrgID == uuid.Nil {
		return ErrInvalidOrgID
	}
	if i.Name == "" {
		return ErrInvalidName
	}
	if !i.Family.IsValid() {
		return ErrInvalidFamily
	}
	if i.ProviderKey == "" {
		return ErrInvalidProviderKey
	}
	if !i.Status.IsValid() {
		return ErrInvalidStatus
	}
	if !i.Frequency.IsValid() {
		return ErrInvalidSyncFrequency
	}
	if i.HealthScore < 0 || i.HealthScore > 100 {
		return ErrInvalidHealthScore
	}
	if i.ErrorCount < 0 {
		return ErrInvalidStatus
	}
	if err := i.Config.RateLimit.Validate(); err != nil {
		return err
	}
	if err := i.Config.RetrySettings.Validate(); err != nil {
		return err
	}
	return nil
}

// transition applies a status change, enforcing the state machine.
func (i *Integration) transition(next IntegrationStatus) error {
	if !i.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	i.Status = next
	i.UpdatedAt = time.Now()
	return nil
}

// Connect moves the integration into connected state. A required mapping row
// with an empty source field blocks the transition.
func (i *Integration) Connect() error {
	for _, fm := range i.Mapping.Fields {
		if fm.Required && fm.SourceField == "" {
			return ErrWizardMissingFields
		}
	}
	return i.transition(StatusConnected)
}

// Disconnect moves the integration into disconnected state
func (i *Integration) Disconnect() error {
	return i.transition(StatusDisconnected)
}

// BeginSync marks a sync as in flight. Only connected integrations are eligible.
func (i *Integration) BeginSync() error {
	return i.transition(StatusSyncing)
}

// RecordSyncSuccess records a completed sync and returns to connected state.
func (i *Integration) RecordSyncSuccess(at time.Time) error {
	if err := i.transition(StatusConnected); err != nil {
		return err
	}
	i.LastSync = &at
	i.LastError = ""
	return nil
}

// RecordSyncFailure records a failed sync. Permanent failures move the
// integration to error status; transient ones return it to connected.
// LastSync is never touched on failure.
func (i *Integration) RecordSyncFailure(message string, permanent bool) error {
	next := StatusConnected
	if permanent {
		next = StatusError
	}
	if err := i.transition(next); err != nil {
		return err
	}
	i.ErrorCount++
	i.LastError = message
	return nil
}

// MarkError records a permanent failure outside of a sync (e.g. connection lost).
func (i *Integration) MarkError(message string) error {
	if err := i.transition(StatusError); err != nil {
		return err
	}
	i.LastError = message
	return nil
}

// SetHealthScore stores a freshly computed health score.
func (i *Integration) SetHealthScore(score int) error {
	if score < 0 || score > 100 {
		return ErrInvalidHealthScore
	}
	i.HealthScore = score
	i.UpdatedAt = time.Now()
	return nil
}

// Touch updates the audit fields after a user edit.
func (i *Integration) Touch(by uuid.UUID) {
	i.UpdatedBy = by
	i.UpdatedAt = time.Now()
}

// ---------------------------------------------------------------------------
// Repository Interfaces
// ---------------------------------------------------------------------------

// SortField names a sortable integration attribute
type SortField string

const (
	SortByName     SortField = "name"
	SortByFamily   SortField = "type"
	SortByStatus   SortField = "status"
	SortByLastSync SortField = "last_sync"
	SortByHealth   SortField = "health"
)

// IsValid returns true if the sort field is valid
func (s SortField) IsValid() bool {
	switch s {
	case SortByName, SortByFamily, SortByStatus, SortByLastSync, SortByHealth:
		return true
	default:
		return false
	}
}

// IntegrationFilter defines query criteria for listing integrations.
// All filters are optional and compose with free-text search.
type IntegrationFilter struct {
	// Search matches against name, description, provider key and tags
	Search string
	// Family filters by integration family (optional)
	Family *IntegrationFamily
	// Category filters by category (optional)
	Category *string
	// Status filters by status (optional)
	Status *IntegrationStatus
	// SortBy selects the sort attribute, default name
	SortBy SortField
	// SortDesc sorts descending when true
	SortDesc bool
	// Page number (1-indexed)
	Page int
	// PageSize is the number of items per page
	PageSize int
}

// IntegrationReader defines the interface for reading integrations
type IntegrationReader interface {
	// FindByID finds an integration by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Integration, error)
}

// IntegrationFinder defines the interface for querying integrations
type IntegrationFinder interface {
	// FindAll finds integrations for an organization matching the filter
	FindAll(ctx context.Context, orgID uuid.UUID, filter IntegrationFilter) ([]Integration, error)

	// Count counts integrations matching the filter
	Count(ctx context.Context, orgID uuid.UUID, filter IntegrationFilter) (int64, error)

	// FindDueForSync finds connected integrations whose frequency interval has elapsed
	FindDueForSync(ctx context.Context, now time.Time) ([]Integration, error)
}

// IntegrationWriter defines the interface for persisting integrations
type IntegrationWriter interface {
	// Save creates or updates an integration
	Save(ctx context.Context, integration *Integration) error

	// Delete deletes an integration
	Delete(ctx context.Context, id uuid.UUID) error
}

// IntegrationRepository defines the full persistence interface for integrations
type IntegrationRepository interface {
	IntegrationReader
	IntegrationFinder
	IntegrationWriter
}
