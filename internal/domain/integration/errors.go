package integration

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Sentinel Errors
// ---------------------------------------------------------------------------

var (
	// Provider / template errors
	ErrProviderNotFound = errors.New("integration: unknown provider")
	ErrFamilyNotFound   = errors.New("integration: unknown integration family")
	ErrTemplateNotFound = errors.New("integration: template not found")

	// Integration errors
	ErrIntegrationNotFound  = errors.New("integration: integration not found")
	ErrInvalidOrgID         = errors.New("integration: invalid organization ID")
	ErrInvalidName          = errors.New("integration: name is required")
	ErrInvalidFamily        = errors.New("integration: invalid integration family")
	ErrInvalidProviderKey   = errors.New("integration: provider key is required")
	ErrInvalidStatus        = errors.New("integration: invalid status")
	ErrInvalidTransition    = errors.New("integration: status transition not allowed")
	ErrInvalidSyncFrequency = errors.New("integration: invalid sync frequency")
	ErrInvalidHealthScore   = errors.New("integration: health score out of range")
	ErrInvalidRateLimit     = errors.New("integration: invalid rate limit settings")
	ErrInvalidRetrySettings = errors.New("integration: invalid retry settings")
	ErrIntegrationNotOwned  = errors.New("integration: integration belongs to another organization")

	// Mapping errors
	ErrMappingIndexOutOfRange = errors.New("integration: mapping index out of range")
	ErrDuplicateTargetField   = errors.New("integration: duplicate target field")
	ErrMissingRequiredField   = errors.New("integration: required source field missing from record")
	ErrUnknownTransformation  = errors.New("integration: unknown transformation")
	ErrInvalidSyncDirection   = errors.New("integration: invalid sync direction")
	ErrInvalidConflictRule    = errors.New("integration: invalid conflict resolution rule")

	// Wizard errors
	ErrWizardInvalidStep      = errors.New("integration: operation not allowed in current wizard step")
	ErrWizardMissingFields    = errors.New("integration: required connection fields missing")
	ErrWizardNotTested        = errors.New("integration: connection has not been tested successfully")
	ErrWizardNoSelection      = errors.New("integration: at least one schema or object must be selected")
	ErrWizardSessionNotFound  = errors.New("integration: wizard session not found")
	ErrWizardAlreadyCommitted = errors.New("integration: wizard session already committed")

	// Schema errors
	ErrEmptySchema = errors.New("integration: introspection returned no schemas")

	// Conflict review errors
	ErrConflictNotFound      = errors.New("integration: pending conflict not found")
	ErrConflictNotManual     = errors.New("integration: conflict rule does not defer to manual review")
	ErrInvalidConflictChoice = errors.New("integration: invalid conflict resolution choice")
)

// ---------------------------------------------------------------------------
// Error Kinds
// ---------------------------------------------------------------------------

// ErrorKind classifies a failure so callers can branch without string matching.
type ErrorKind string

const (
	// ErrorKindConfiguration covers missing or malformed required fields,
	// always caught before any network call.
	ErrorKindConfiguration ErrorKind = "CONFIGURATION"
	// ErrorKindConnection covers auth rejections, timeouts and unreachable hosts.
	ErrorKindConnection ErrorKind = "CONNECTION"
	// ErrorKindSchema covers empty or unsupported introspection results.
	ErrorKindSchema ErrorKind = "SCHEMA"
	// ErrorKindMapping covers field-mapping validation failures.
	ErrorKindMapping ErrorKind = "MAPPING_VALIDATION"
	// ErrorKindRateLimited marks a sync call deferred by rate limiting. Not fatal.
	ErrorKindRateLimited ErrorKind = "RATE_LIMIT_EXCEEDED"
	// ErrorKindTransient marks a sync failure that is retried per policy.
	ErrorKindTransient ErrorKind = "TRANSIENT_FAILURE"
	// ErrorKindPermanent marks a sync failure that moves the integration to error status.
	ErrorKindPermanent ErrorKind = "PERMANENT_FAILURE"
)

// IsValid returns true if the error kind is valid
func (k ErrorKind) IsValid() bool {
	switch k {
	case ErrorKindConfiguration, ErrorKindConnection, ErrorKindSchema,
		ErrorKindMapping, ErrorKindRateLimited, ErrorKindTransient, ErrorKindPermanent:
		return true
	default:
		return false
	}
}

// Retryable returns true if a failure of this kind may be retried automatically.
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindTransient || k == ErrorKindRateLimited
}

// SyncError carries a machine-checkable kind plus a human-readable message.
type SyncError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("integration: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("integration: %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// NewSyncError creates a SyncError with the given kind and message
func NewSyncError(kind ErrorKind, message string, cause error) *SyncError {
	return &SyncError{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the ErrorKind from err. Unclassified errors are treated
// as transient so they stay on the retry path rather than killing the integration.
func KindOf(err error) ErrorKind {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Kind
	}
	return ErrorKindTransient
}

// IsPermanent returns true if err is a permanent sync failure
func IsPermanent(err error) bool {
	return KindOf(err) == ErrorKindPermanent
}
