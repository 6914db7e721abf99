package integration

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// Schema Snapshot Value Objects
// ---------------------------------------------------------------------------

// FieldDescriptor describes one column/field of a remote object
type FieldDescriptor struct {
	// Name is the field name
	Name string `json:"name"`
	// Type is the provider-declared data type
	Type string `json:"type"`
	// Nullable indicates whether the field may be null
	Nullable bool `json:"nullable"`
	// PrimaryKey marks the field as part of the primary key
	PrimaryKey bool `json:"primary_key"`
	// ForeignKey marks the field as a reference to another object
	ForeignKey bool `json:"foreign_key"`
}

// TableDescriptor describes one remote table or object
type TableDescriptor struct {
	// Name is the table/object name
	Name string `json:"name"`
	// Fields are the column/field descriptors
	Fields []FieldDescriptor `json:"fields"`
	// RowCount is the reported record count, -1 when unknown
	RowCount int64 `json:"row_count"`
}

// SchemaDescriptor describes one remote schema/namespace
type SchemaDescriptor struct {
	// Name is the schema name
	Name string `json:"name"`
	// Tables are the objects within the schema
	Tables []TableDescriptor `json:"tables"`
}

// SchemaSnapshot is the full remote catalog at introspection time
type SchemaSnapshot struct {
	// Schemas are the discovered schemas/namespaces
	Schemas []SchemaDescriptor `json:"schemas"`
	// TakenAt is when the introspection completed
	TakenAt time.Time `json:"taken_at"`
}

// IsEmpty returns true if the snapshot contains no tables at all
func (s SchemaSnapshot) IsEmpty() bool {
	for _, schema := range s.Schemas {
		if len(schema.Tables) > 0 {
			return false
		}
	}
	return true
}

// Table finds a table by name across all schemas
func (s SchemaSnapshot) Table(name string) (*TableDescriptor, bool) {
	for si := range s.Schemas {
		for ti := range s.Schemas[si].Tables {
			if s.Schemas[si].Tables[ti].Name == name {
				return &s.Schemas[si].Tables[ti], true
			}
		}
	}
	return nil, false
}

// ObjectNames returns every table/object name in the snapshot
func (s SchemaSnapshot) ObjectNames() []string {
	var names []string
	for _, schema := range s.Schemas {
		for _, table := range schema.Tables {
			names = append(names, table.Name)
		}
	}
	return names
}

// ---------------------------------------------------------------------------
// Sync Results
// ---------------------------------------------------------------------------

// SyncResult is the outcome of one sync execution reported by a connector
type SyncResult struct {
	// RecordsProcessed is the total number of records handled
	RecordsProcessed int `json:"records_processed"`
	// RecordsFailed is the number of records that could not be written
	RecordsFailed int `json:"records_failed"`
	// Conflicts are bidirectional records modified on both sides since last sync
	Conflicts []ConflictRecord `json:"conflicts,omitempty"`
	// Duration is how long the execution took
	Duration time.Duration `json:"duration"`
}

// ---------------------------------------------------------------------------
// Connector Port
// ---------------------------------------------------------------------------

// Connector is the capability the engine requires per provider family.
// This is a port in the ports-and-adapters sense: the engine never assumes
// a concrete transport, and all three operations suspend on network I/O.
type Connector interface {
	// Test verifies the connection parameters against the provider.
	// A false return with nil error means the provider rejected the credentials.
	Test(ctx context.Context, config ConnectionConfig) (bool, error)

	// Introspect retrieves the remote object/table catalog. Read-only:
	// nothing is persisted until the wizard confirms.
	Introspect(ctx context.Context, config ConnectionConfig) (*SchemaSnapshot, error)

	// Execute runs one synchronization pass for the given mapping and
	// returns the outcome, including any bidirectional conflicts detected.
	Execute(ctx context.Context, config ConnectionConfig, mapping DataMapping) (*SyncResult, error)
}

// ConnectorRegistry selects the connector for an integration family,
// once per family rather than per call site.
type ConnectorRegistry interface {
	// For returns the connector handling the family
	For(family IntegrationFamily) (Connector, error)
}
