package integration

import "time"

// ---------------------------------------------------------------------------
// Provider Descriptors
// ---------------------------------------------------------------------------

// FieldType describes how a connection field should be rendered and validated
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypePassword FieldType = "password"
	FieldTypeURL      FieldType = "url"
	FieldTypeEmail    FieldType = "email"
	FieldTypeNumber   FieldType = "number"
)

// ConnectionField describes one connection parameter a provider requires
type ConnectionField struct {
	// Key is the field key used in ConnectionConfig
	Key string `json:"key"`
	// Label is the human-readable field label
	Label string `json:"label"`
	// Type drives rendering and the universal format checks
	Type FieldType `json:"type"`
	// Required marks the field as mandatory before testing
	Required bool `json:"required"`
	// Secret marks the field as a credential
	Secret bool `json:"secret"`
	// Placeholder is an optional example value
	Placeholder string `json:"placeholder,omitempty"`
}

// Capability names a query or sync capability a provider supports
type Capability string

const (
	CapabilityContacts   Capability = "contacts"
	CapabilityCompanies  Capability = "companies"
	CapabilityDeals      Capability = "deals"
	CapabilityLists      Capability = "lists"
	CapabilityCampaigns  Capability = "campaigns"
	CapabilityTemplates  Capability = "templates"
	CapabilityTables     Capability = "tables"
	CapabilityBulkExport Capability = "bulk-export"
	CapabilityWebhooks   Capability = "webhooks"
	CapabilityEvents     Capability = "events"
)

// ProviderDescriptor enumerates what the wizard needs to know about a provider:
// its connection fields in display order, its capability set and default limits.
type ProviderDescriptor struct {
	// Key identifies the provider within its family
	Key string `json:"key"`
	// Name is the display name
	Name string `json:"name"`
	// Family is the integration family this provider belongs to
	Family IntegrationFamily `json:"family"`
	// Category is the marketplace category label
	Category string `json:"category"`
	// Fields are the connection fields in display order
	Fields []ConnectionField `json:"fields"`
	// Capabilities is the set of objects/operations the provider supports
	Capabilities []Capability `json:"capabilities"`
	// DefaultRateLimit is the rate limit applied unless overridden
	DefaultRateLimit RateLimit `json:"default_rate_limit"`
	// DefaultRetrySettings is the retry policy applied unless overridden
	DefaultRetrySettings RetrySettings `json:"default_retry_settings"`
}

// RequiredFields returns the keys of all required connection fields
func (d ProviderDescriptor) RequiredFields() []string {
	keys := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		if f.Required {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// HasCapability returns true if the provider supports the capability
func (d ProviderDescriptor) HasCapability(c Capability) bool {
	for _, cap := range d.Capabilities {
		if cap == c {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// ProviderRegistry
// ---------------------------------------------------------------------------

// ProviderRegistry is a static catalog of supported providers per family.
// Pure lookup, no side effects.
type ProviderRegistry struct {
	families map[IntegrationFamily]map[string]ProviderDescriptor
}

// NewProviderRegistry builds a registry from the built-in catalog
func NewProviderRegistry() *ProviderRegistry {
	r := &ProviderRegistry{families: make(map[IntegrationFamily]map[string]ProviderDescriptor)}
	for _, d := range builtinProviders {
		if r.families[d.Family] == nil {
			r.families[d.Family] = make(map[string]ProviderDescriptor)
		}
		r.families[d.Family][d.Key] = d
	}
	return r
}

// Describe returns the descriptor for a provider, or ErrProviderNotFound
func (r *ProviderRegistry) Describe(family IntegrationFamily, providerKey string) (ProviderDescriptor, error) {
	byKey, ok := r.families[family]
	if !ok {
		return ProviderDescriptor{}, ErrFamilyNotFound
	}
	d, ok := byKey[providerKey]
	if !ok {
		return ProviderDescriptor{}, ErrProviderNotFound
	}
	return d, nil
}

// ListFamily returns all descriptors for a family
func (r *ProviderRegistry) ListFamily(family IntegrationFamily) []ProviderDescriptor {
	byKey := r.families[family]
	out := make([]ProviderDescriptor, 0, len(byKey))
	for _, d := range byKey {
		out = append(out, d)
	}
	return out
}

// builtinProviders is the source of truth for supported providers.
var builtinProviders = []ProviderDescriptor{
	{
		Key:      "salesforce",
		Name:     "Salesforce",
		Family:   FamilyCRM,
		Category: "Sales",
		Fields: []ConnectionField{
			{Key: "instance_url", Label: "Instance URL", Type: FieldTypeURL, Required: true, Placeholder: "https://yourorg.my.salesforce.com"},
			{Key: "client_id", Label: "Consumer Key", Type: FieldTypeText, Required: true},
			{Key: "client_secret", Label: "Consumer Secret", Type: FieldTypePassword, Required: true, Secret: true},
		},
		Capabilities:         []Capability{CapabilityContacts, CapabilityCompanies, CapabilityDeals, CapabilityWebhooks},
		DefaultRateLimit:     RateLimit{RequestsPerMinute: 100, RequestsPerHour: 5000, RequestsPerDay: 100000, BurstLimit: 25},
		DefaultRetrySettings: DefaultRetrySettings(),
	},
	{
		Key:      "hubspot",
		Name:     "HubSpot",
		Family:   FamilyCRM,
		Category: "Sales",
		Fields: []ConnectionField{
			{Key: "api_key", Label: "Private App Token", Type: FieldTypePassword, Required: true, Secret: true},
		},
		Capabilities:         []Capability{CapabilityContacts, CapabilityCompanies, CapabilityDeals, CapabilityLists},
		DefaultRateLimit:     RateLimit{RequestsPerMinute: 100, RequestsPerHour: 2500, RequestsPerDay: 50000, BurstLimit: 10},
		DefaultRetrySettings: DefaultRetrySettings(),
	},
	{
		Key:      "mailchimp",
		Name:     "Mailchimp",
		Family:   FamilyEmailProvider,
		Category: "Email Marketing",
		Fields: []ConnectionField{
			{Key: "api_key", Label: "API Key", Type: FieldTypePassword, Required: true, Secret: true},
			{Key: "server_prefix", Label: "Server Prefix", Type: FieldTypeText, Required: true, Placeholder: "us21"},
		},
		Capabilities:         []Capability{CapabilityLists, CapabilityCampaigns, CapabilityTemplates},
		DefaultRateLimit:     RateLimit{RequestsPerMinute: 10, RequestsPerHour: 500, RequestsPerDay: 5000, BurstLimit: 5},
		DefaultRetrySettings: DefaultRetrySettings(),
	},
	{
		Key:      "sendgrid",
		Name:     "SendGrid",
		Family:   FamilyEmailProvider,
		Category: "Email Marketing",
		Fields: []ConnectionField{
			{Key: "api_key", Label: "API Key", Type: FieldTypePassword, Required: true, Secret: true},
			{Key: "from_email", Label: "Default Sender", Type: FieldTypeEmail, Required: false},
		},
		Capabilities:         []Capability{CapabilityLists, CapabilityCampaigns, CapabilityTemplates, CapabilityEvents},
		DefaultRateLimit:     RateLimit{RequestsPerMinute: 60, RequestsPerHour: 1200, RequestsPerDay: 10000, BurstLimit: 10},
		DefaultRetrySettings: DefaultRetrySettings(),
	},
	{
		Key:      "snowflake",
		Name:     "Snowflake",
		Family:   FamilyDataWarehouse,
		Category: "Data Warehouse",
		Fields: []ConnectionField{
			{Key: "account", Label: "Account Identifier", Type: FieldTypeText, Required: true},
			{Key: "username", Label: "Username", Type: FieldTypeText, Required: true},
			{Key: "password", Label: "Password", Type: FieldTypePassword, Required: true, Secret: true},
			{Key: "warehouse", Label: "Warehouse", Type: FieldTypeText, Required: true},
			{Key: "database", Label: "Database", Type: FieldTypeText, Required: false},
		},
		Capabilities:         []Capability{CapabilityTables, CapabilityBulkExport},
		DefaultRateLimit:     RateLimit{RequestsPerMinute: 30, RequestsPerHour: 600, RequestsPerDay: 8000, BurstLimit: 5},
		DefaultRetrySettings: RetrySettings{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: 60 * time.Second, BackoffMultiplier: 2},
	},
	{
		Key:      "bigquery",
		Name:     "BigQuery",
		Family:   FamilyDataWarehouse,
		Category: "Data Warehouse",
		Fields: []ConnectionField{
			{Key: "project_id", Label: "Project ID", Type: FieldTypeText, Required: true},
			{Key: "service_account_json", Label: "Service Account Key", Type: FieldTypePassword, Required: true, Secret: true},
			{Key: "dataset", Label: "Default Dataset", Type: FieldTypeText, Required: false},
		},
		Capabilities:         []Capability{CapabilityTables, CapabilityBulkExport},
		DefaultRateLimit:     RateLimit{RequestsPerMinute: 50, RequestsPerHour: 1000, RequestsPerDay: 20000, BurstLimit: 10},
		DefaultRetrySettings: DefaultRetrySettings(),
	},
	{
		Key:      "ga4",
		Name:     "Google Analytics 4",
		Family:   FamilyAnalytics,
		Category: "Analytics",
		Fields: []ConnectionField{
			{Key: "property_id", Label: "Property ID", Type: FieldTypeText, Required: true},
			{Key: "service_account_json", Label: "Service Account Key", Type: FieldTypePassword, Required: true, Secret: true},
		},
		Capabilities:         []Capability{CapabilityEvents, CapabilityBulkExport},
		DefaultRateLimit:     RateLimit{RequestsPerMinute: 60, RequestsPerHour: 1500, RequestsPerDay: 25000, BurstLimit: 10},
		DefaultRetrySettings: DefaultRetrySettings(),
	},
}
