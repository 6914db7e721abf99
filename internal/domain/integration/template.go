package integration

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// IntegrationTemplate
// ---------------------------------------------------------------------------

// SupportLevel describes who maintains a marketplace template
type SupportLevel string

const (
	SupportCommunity SupportLevel = "community"
	SupportPartner   SupportLevel = "partner"
	SupportOfficial  SupportLevel = "official"
)

// IsValid returns true if the support level is valid
func (s SupportLevel) IsValid() bool {
	return s == SupportCommunity || s == SupportPartner || s == SupportOfficial
}

// ConfigProperty is the UI metadata for one configuration field
type ConfigProperty struct {
	// Type is the declared field type (string, number, ...)
	Type string `json:"type"`
	// Title is the human-readable field label
	Title string `json:"title"`
	// Secret marks the field as a credential
	Secret bool `json:"secret,omitempty"`
}

// ConfigSchema is the configuration contract an IntegrationTemplate exposes
type ConfigSchema struct {
	// Required lists the field keys that must be present
	Required []string `json:"required"`
	// Properties maps field keys to their UI metadata
	Properties map[string]ConfigProperty `json:"properties"`
}

// IntegrationTemplate is a marketplace description of a provider offering.
// Immutable once fetched; the wizard only reads it.
type IntegrationTemplate struct {
	// ID is the unique identifier of the template
	ID uuid.UUID
	// Name is the display name
	Name string
	// Description is the marketplace description
	Description string
	// Family is the integration family the template instantiates
	Family IntegrationFamily
	// Category is the marketplace category label
	Category string
	// ProviderKey is the provider this template configures
	ProviderKey string
	// Schema is the configuration contract
	Schema ConfigSchema
	// Rating is the marketplace rating, 0-5
	Rating float64
	// InstallCount is how many organizations installed the template
	InstallCount int
	// Support is who maintains the template
	Support SupportLevel
	// CreatedAt is when the template was published
	CreatedAt time.Time
}

// TemplateRepository provides read access to the template marketplace
type TemplateRepository interface {
	// FindByID finds a template by ID
	FindByID(ctx context.Context, id uuid.UUID) (*IntegrationTemplate, error)

	// FindAll lists all templates, optionally filtered by family
	FindAll(ctx context.Context, family *IntegrationFamily) ([]IntegrationTemplate, error)
}

// ---------------------------------------------------------------------------
// Configuration Validation
// ---------------------------------------------------------------------------

// ConfigValidationResult is the outcome of validating a configuration
type ConfigValidationResult struct {
	// IsValid is true when no errors were found
	IsValid bool `json:"isValid"`
	// Errors are human-readable validation messages
	Errors []string `json:"errors,omitempty"`
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateConfiguration checks a raw configuration against a template schema:
// presence of every required key, plus the two universal format checks
// (email pattern and URL scheme). Provider-specific validation belongs to
// the connector, not here.
func ValidateConfiguration(config map[string]string, schema ConfigSchema) ConfigValidationResult {
	result := ConfigValidationResult{IsValid: true}

	for _, key := range schema.Required {
		if config[key] == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("%s is required", key))
		}
	}

	for key, prop := range schema.Properties {
		value := config[key]
		if value == "" {
			continue
		}
		switch prop.Type {
		case "email":
			if !emailPattern.MatchString(value) {
				result.Errors = append(result.Errors, fmt.Sprintf("%s must be a valid email address", key))
			}
		case "url":
			u, err := url.Parse(value)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				result.Errors = append(result.Errors, fmt.Sprintf("%s must be a valid http(s) URL", key))
			}
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}
