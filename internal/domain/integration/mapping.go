package integration

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// SyncDirection / ConflictResolution
// ---------------------------------------------------------------------------

// SyncDirection describes which way data flows between source and target
type SyncDirection string

const (
	DirectionBidirectional SyncDirection = "bidirectional"
	DirectionInbound       SyncDirection = "inbound"
	DirectionOutbound      SyncDirection = "outbound"
)

// IsValid returns true if the direction is valid
func (d SyncDirection) IsValid() bool {
	switch d {
	case DirectionBidirectional, DirectionInbound, DirectionOutbound:
		return true
	default:
		return false
	}
}

// ConflictResolution is the rule deciding which side wins when both changed.
// Only meaningful for bidirectional mappings; stored regardless for UI symmetry.
type ConflictResolution string

const (
	ConflictSourceWins ConflictResolution = "source-wins"
	ConflictTargetWins ConflictResolution = "target-wins"
	ConflictMostRecent ConflictResolution = "most-recent"
	ConflictManual     ConflictResolution = "manual"
	ConflictMerge      ConflictResolution = "merge"
)

// IsValid returns true if the rule is valid
func (c ConflictResolution) IsValid() bool {
	switch c {
	case ConflictSourceWins, ConflictTargetWins, ConflictMostRecent, ConflictManual, ConflictMerge:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// FieldMapping
// ---------------------------------------------------------------------------

// FieldMapping is one source-to-target field correspondence
type FieldMapping struct {
	// SourceField is the field name on the source record
	SourceField string `json:"source_field"`
	// TargetField is the field name written on the target
	TargetField string `json:"target_field"`
	// DataType is the declared type of the mapped value
	DataType string `json:"data_type"`
	// Required marks the mapping as mandatory for every record
	Required bool `json:"required"`
	// DefaultValue is used when the source field is absent (optional)
	DefaultValue any `json:"default_value,omitempty"`
	// Transformation names a registered pure function applied to the value (optional)
	Transformation string `json:"transformation,omitempty"`
}

// NewFieldMapping returns an empty mapping row ready for editing
func NewFieldMapping() FieldMapping {
	return FieldMapping{DataType: "string"}
}

// ---------------------------------------------------------------------------
// DataMapping
// ---------------------------------------------------------------------------

// DataMapping is the ordered set of field mappings plus sync semantics
type DataMapping struct {
	// Fields are the mapping rows in evaluation order
	Fields []FieldMapping `json:"fields"`
	// Direction is the sync direction
	Direction SyncDirection `json:"sync_direction"`
	// ConflictRule decides bidirectional conflicts
	ConflictRule ConflictResolution `json:"conflict_resolution"`
}

// NewDataMapping returns an empty mapping with the given direction
func NewDataMapping(direction SyncDirection) DataMapping {
	return DataMapping{
		Fields:       make([]FieldMapping, 0),
		Direction:    direction,
		ConflictRule: ConflictSourceWins,
	}
}

// Add appends an empty mapping row and returns its index
func (m *DataMapping) Add() int {
	m.Fields = append(m.Fields, NewFieldMapping())
	return len(m.Fields) - 1
}

// Update replaces the row at index
func (m *DataMapping) Update(index int, row FieldMapping) error {
	if index < 0 || index >= len(m.Fields) {
		return ErrMappingIndexOutOfRange
	}
	m.Fields[index] = row
	return nil
}

// Remove deletes the row at index, preserving order
func (m *DataMapping) Remove(index int) error {
	if index < 0 || index >= len(m.Fields) {
		return ErrMappingIndexOutOfRange
	}
	m.Fields = append(m.Fields[:index], m.Fields[index+1:]...)
	return nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// MappingIssue is one validation finding for a mapping row
type MappingIssue struct {
	// Index is the offending row index, -1 for set-level issues
	Index int `json:"index"`
	// Field is the field name involved
	Field string `json:"field"`
	// Message is the human-readable description
	Message string `json:"message"`
}

// ValidationResult is the outcome of validating a DataMapping
type ValidationResult struct {
	// IsValid is true when no errors were found (warnings do not count)
	IsValid bool `json:"is_valid"`
	// Errors are fatal findings that block the mapping
	Errors []MappingIssue `json:"errors,omitempty"`
	// Warnings are advisory findings (e.g. type conflicts coerced at sync time)
	Warnings []MappingIssue `json:"warnings,omitempty"`
}

// Validate checks the mapping set, in order: required rows have non-empty
// source and target, target fields are unique, declared types match the
// target schema. Type conflicts are warnings, not errors: coercion is
// attempted at sync time rather than blocked at design time.
// targetSchema may be nil when no schema is known; registry may be nil to
// skip transformation checks.
func (m *DataMapping) Validate(targetSchema *TableDescriptor, registry *TransformRegistry) ValidationResult {
	result := ValidationResult{IsValid: true}

	for i, row := range m.Fields {
		if row.Required {
			if row.SourceField == "" {
				result.Errors = append(result.Errors, MappingIssue{
					Index: i, Field: row.TargetField,
					Message: "required mapping must have a source field",
				})
			}
			if row.TargetField == "" {
				result.Errors = append(result.Errors, MappingIssue{
					Index: i, Field: row.SourceField,
					Message: "required mapping must have a target field",
				})
			}
		}
		if row.Transformation != "" && registry != nil && !registry.Has(row.Transformation) {
			result.Errors = append(result.Errors, MappingIssue{
				Index: i, Field: row.TargetField,
				Message: fmt.Sprintf("unknown transformation %q", row.Transformation),
			})
		}
	}

	seen := make(map[string]int, len(m.Fields))
	for i, row := range m.Fields {
		if row.TargetField == "" {
			continue
		}
		if first, dup := seen[row.TargetField]; dup {
			result.Errors = append(result.Errors, MappingIssue{
				Index: i, Field: row.TargetField,
				Message: fmt.Sprintf("target field already mapped at row %d", first),
			})
			continue
		}
		seen[row.TargetField] = i
	}

	if targetSchema != nil {
		declared := make(map[string]string, len(targetSchema.Fields))
		for _, f := range targetSchema.Fields {
			declared[f.Name] = f.Type
		}
		for i, row := range m.Fields {
			want, known := declared[row.TargetField]
			if !known || row.DataType == "" {
				continue
			}
			if !strings.EqualFold(want, row.DataType) {
				result.Warnings = append(result.Warnings, MappingIssue{
					Index: i, Field: row.TargetField,
					Message: fmt.Sprintf("declared type %q differs from target schema type %q, will coerce at sync time", row.DataType, want),
				})
			}
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// ---------------------------------------------------------------------------
// Evaluation
// ---------------------------------------------------------------------------

// Evaluate resolves the mapped value for one row against a source record:
// source lookup, then default, then the named transformation. A required row
// with no source value and no default fails with ErrMissingRequiredField.
func Evaluate(row FieldMapping, record map[string]any, registry *TransformRegistry) (any, error) {
	value, present := record[row.SourceField]
	if !present || value == nil {
		if row.DefaultValue != nil {
			value = row.DefaultValue
		} else if row.Required {
			return nil, fmt.Errorf("%w: %q", ErrMissingRequiredField, row.SourceField)
		} else {
			return nil, nil
		}
	}

	if row.Transformation == "" {
		return value, nil
	}
	fn, err := registry.Resolve(row.Transformation)
	if err != nil {
		return nil, err
	}
	return fn(value)
}

// Apply evaluates every row of the mapping against a source record and
// returns the target record.
func (m *DataMapping) Apply(record map[string]any, registry *TransformRegistry) (map[string]any, error) {
	out := make(map[string]any, len(m.Fields))
	for _, row := range m.Fields {
		if row.TargetField == "" {
			continue
		}
		value, err := Evaluate(row, record, registry)
		if err != nil {
			return nil, err
		}
		if value != nil {
			out[row.TargetField] = value
		}
	}
	return out, nil
}
