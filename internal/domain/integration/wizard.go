package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Wizard Steps
// ---------------------------------------------------------------------------

// WizardStep is one state of the connection wizard
type WizardStep string

const (
	// StepConfig collects connection fields
	StepConfig WizardStep = "config"
	// StepTesting runs the connector test; transient, never a resting state
	StepTesting WizardStep = "testing"
	// StepSchemaSelection selects schemas/tables (data-warehouse family)
	StepSchemaSelection WizardStep = "schema-selection"
	// StepFieldMapping selects objects and builds mappings (CRM/email family)
	StepFieldMapping WizardStep = "field-mapping"
	// StepConfirm reviews the assembled integration
	StepConfirm WizardStep = "confirm"
	// StepCommitted is terminal: the integration has been handed to the store
	StepCommitted WizardStep = "committed"
)

// ---------------------------------------------------------------------------
// ConnectionWizard
// ---------------------------------------------------------------------------

// ConnectionWizard drives a user from raw configuration through test, object
// selection and mapping into a persisted Integration. All state is
// client-local: nothing persists until Confirm succeeds, so an abandoned
// session leaves no trace.
type ConnectionWizard struct {
	// SessionID identifies the wizard session
	SessionID uuid.UUID
	// OrgID is the organization the integration will belong to
	OrgID uuid.UUID
	// UserID is the user driving the wizard
	UserID uuid.UUID
	// Descriptor is the provider being connected
	Descriptor ProviderDescriptor
	// Existing is set when the wizard edits an integration instead of creating one
	Existing *Integration

	// Step is the current wizard step
	Step WizardStep
	// Name is the integration display name entered so far
	Name string
	// Config holds the connection fields entered so far
	Config ConnectionConfig
	// Frequency is the chosen sync cadence
	Frequency SyncFrequency
	// Snapshot caches the introspection result from the successful test
	Snapshot *SchemaSnapshot
	// SelectedObjects are the chosen schemas/objects
	SelectedObjects []string
	// Mapping holds the field mappings built so far
	Mapping DataMapping
	// LastError is the most recent test failure message, surfaced for retry
	LastError string

	tested    bool
	registry  *TransformRegistry
	startedAt time.Time
}

// NewConnectionWizard starts a session for creating a new integration.
func NewConnectionWizard(orgID, userID uuid.UUID, descriptor ProviderDescriptor, registry *TransformRegistry) *ConnectionWizard {
	direction := DirectionInbound
	if descriptor.Family == FamilyDataWarehouse {
		direction = DirectionOutbound
	}
	return &ConnectionWizard{
		SessionID:  uuid.New(),
		OrgID:      orgID,
		UserID:     userID,
		Descriptor: descriptor,
		Step:       StepConfig,
		Name:       descriptor.Name,
		Config: ConnectionConfig{
			RateLimit:     descriptor.DefaultRateLimit,
			RetrySettings: descriptor.DefaultRetrySettings,
		},
		Frequency: FrequencyManual,
		Mapping:   NewDataMapping(direction),
		registry:  registry,
		startedAt: time.Now(),
	}
}

// NewEditWizard starts a session for reconfiguring an existing integration.
// The session is seeded with the integration's current values.
func NewEditWizard(existing *Integration, descriptor ProviderDescriptor, userID uuid.UUID, registry *TransformRegistry) *ConnectionWizard {
	w := NewConnectionWizard(existing.OrgID, userID, descriptor, registry)
	w.Existing = existing
	w.Name = existing.Name
	w.Config = existing.Config
	w.Frequency = existing.Frequency
	w.SelectedObjects = append([]string(nil), existing.SelectedObjects...)
	w.Mapping = existing.Mapping
	return w
}

// SetField records a connection field value. Allowed only before testing
// succeeds; changing config after a successful test invalidates it.
func (w *ConnectionWizard) SetField(key, value string) error {
	if w.Step != StepConfig {
		return ErrWizardInvalidStep
	}
	secret := false
	for _, f := range w.Descriptor.Fields {
		if f.Key == key {
			secret = f.Secret
			break
		}
	}
	w.Config.SetField(key, value, secret)
	return nil
}

// SetName records the integration display name
func (w *ConnectionWizard) SetName(name string) {
	if name != "" {
		w.Name = name
	}
}

// SetFrequency records the sync cadence
func (w *ConnectionWizard) SetFrequency(f SyncFrequency) error {
	if !f.IsValid() {
		return ErrInvalidSyncFrequency
	}
	w.Frequency = f
	return nil
}

// MissingFields returns the required connection fields with no value yet
func (w *ConnectionWizard) MissingFields() []string {
	var missing []string
	for _, f := range w.Descriptor.Fields {
		if !f.Required {
			continue
		}
		if v, ok := w.Config.Field(f.Key); !ok || v == "" {
			missing = append(missing, f.Key)
		}
	}
	return missing
}

// Test runs the connector test and, on success, introspects and caches the
// schema snapshot so the selection step needs no second network call.
// The transition into testing is refused while required fields are missing.
// Failures return the wizard to the config step; the user may retry any
// number of times, always user-triggered.
func (w *ConnectionWizard) Test(ctx context.Context, connector Connector) error {
	if w.Step != StepConfig {
		return ErrWizardInvalidStep
	}
	if len(w.MissingFields()) > 0 {
		return ErrWizardMissingFields
	}

	w.Step = StepTesting
	ok, err := connector.Test(ctx, w.Config)
	if err != nil {
		w.failTest(err.Error())
		return NewSyncError(ErrorKindConnection, "connection test failed", err)
	}
	if !ok {
		w.failTest("provider rejected the connection parameters")
		return NewSyncError(ErrorKindConnection, "provider rejected the connection parameters", nil)
	}

	snapshot, err := connector.Introspect(ctx, w.Config)
	if err != nil {
		w.failTest(err.Error())
		return NewSyncError(ErrorKindConnection, "schema introspection failed", err)
	}
	if snapshot == nil || snapshot.IsEmpty() {
		w.failTest(ErrEmptySchema.Error())
		return NewSyncError(ErrorKindSchema, "introspection returned no schemas", ErrEmptySchema)
	}

	w.tested = true
	w.LastError = ""
	w.Snapshot = snapshot
	if w.Descriptor.Family.UsesSchemaSelection() {
		w.Step = StepSchemaSelection
	} else {
		w.Step = StepFieldMapping
	}
	return nil
}

func (w *ConnectionWizard) failTest(message string) {
	w.Step = StepConfig
	w.LastError = message
}

// SelectObjects records the chosen schemas/objects for sync
func (w *ConnectionWizard) SelectObjects(names []string) error {
	if w.Step != StepSchemaSelection && w.Step != StepFieldMapping {
		return ErrWizardInvalidStep
	}
	w.SelectedObjects = append(w.SelectedObjects[:0], names...)
	return nil
}

// SetMapping replaces the mapping built in the field-mapping step
func (w *ConnectionWizard) SetMapping(mapping DataMapping) error {
	if w.Step != StepFieldMapping {
		return ErrWizardInvalidStep
	}
	if !mapping.Direction.IsValid() {
		return ErrInvalidSyncDirection
	}
	if !mapping.ConflictRule.IsValid() {
		return ErrInvalidConflictRule
	}
	w.Mapping = mapping
	return nil
}

// Next advances from the selection step to confirm. Schema selection requires
// at least one selected schema/object; field mapping requires at least one
// selected object and a valid mapping set (mapping rows themselves optional).
func (w *ConnectionWizard) Next() error {
	switch w.Step {
	case StepSchemaSelection:
		if len(w.SelectedObjects) == 0 {
			return ErrWizardNoSelection
		}
	case StepFieldMapping:
		if len(w.SelectedObjects) == 0 {
			return ErrWizardNoSelection
		}
		var targetSchema *TableDescriptor
		if w.Snapshot != nil && len(w.SelectedObjects) > 0 {
			if t, ok := w.Snapshot.Table(w.SelectedObjects[0]); ok {
				targetSchema = t
			}
		}
		if result := w.Mapping.Validate(targetSchema, w.registry); !result.IsValid {
			return NewSyncError(ErrorKindMapping, result.Errors[0].Message, nil)
		}
	default:
		return ErrWizardInvalidStep
	}
	w.Step = StepConfirm
	return nil
}

// Back navigates to the immediately preceding step without discarding any
// entered data. The initial and terminal steps have no previous step.
func (w *ConnectionWizard) Back() error {
	switch w.Step {
	case StepSchemaSelection, StepFieldMapping:
		w.Step = StepConfig
	case StepConfirm:
		if w.Descriptor.Family.UsesSchemaSelection() {
			w.Step = StepSchemaSelection
		} else {
			w.Step = StepFieldMapping
		}
	default:
		return ErrWizardInvalidStep
	}
	return nil
}

// Confirm assembles the final Integration and moves the session to its
// terminal step. The wizard never reaches committed without a successful
// test in the current session. Persisting the result is the caller's job;
// this is the only transition that produces anything durable.
func (w *ConnectionWizard) Confirm() (*Integration, error) {
	if w.Step == StepCommitted {
		return nil, ErrWizardAlreadyCommitted
	}
	if w.Step != StepConfirm {
		return nil, ErrWizardInvalidStep
	}
	if !w.tested {
		return nil, ErrWizardNotTested
	}

	integ := w.Existing
	if integ == nil {
		created, err := NewIntegration(w.OrgID, w.Name, w.Descriptor.Family, w.Descriptor.Key, w.UserID)
		if err != nil {
			return nil, err
		}
		integ = created
	} else {
		integ.Name = w.Name
	}

	integ.Category = w.Descriptor.Category
	integ.Config = w.Config
	integ.SelectedObjects = append([]string(nil), w.SelectedObjects...)
	integ.Mapping = w.Mapping
	integ.Frequency = w.Frequency
	integ.Touch(w.UserID)

	if integ.Status == StatusPending || integ.Status == StatusError || integ.Status == StatusDisconnected {
		if err := integ.Connect(); err != nil {
			return nil, err
		}
	}
	if err := integ.Validate(); err != nil {
		return nil, err
	}

	w.Step = StepCommitted
	return integ, nil
}

// Committed returns true once the session has produced an integration
func (w *ConnectionWizard) Committed() bool {
	return w.Step == StepCommitted
}
