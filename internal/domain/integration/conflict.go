package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Conflict Records
// ---------------------------------------------------------------------------

// ConflictRecord is one logical record modified on both sides since last sync
type ConflictRecord struct {
	// RecordKey identifies the logical record across both systems
	RecordKey string `json:"record_key"`
	// Source is the record as modified on the source side
	Source map[string]any `json:"source"`
	// Target is the record as modified on the target side
	Target map[string]any `json:"target"`
	// SourceModifiedAt is when the source side last changed
	SourceModifiedAt time.Time `json:"source_modified_at"`
	// TargetModifiedAt is when the target side last changed
	TargetModifiedAt time.Time `json:"target_modified_at"`
}

// Resolution is the outcome of applying a conflict rule to one record
type Resolution struct {
	// Winner is the record to write to both sides; nil when deferred
	Winner map[string]any
	// Deferred is true when the rule is manual and the record went to review
	Deferred bool
}

// ResolveConflict applies the rule to a conflict record.
// source-wins discards target edits; target-wins discards source edits;
// most-recent keeps the later modification; manual defers to the review
// queue; merge unions fields preferring non-null values, source winning ties.
func ResolveConflict(rule ConflictResolution, c ConflictRecord) (Resolution, error) {
	switch rule {
	case ConflictSourceWins:
		return Resolution{Winner: c.Source}, nil
	case ConflictTargetWins:
		return Resolution{Winner: c.Target}, nil
	case ConflictMostRecent:
		if c.TargetModifiedAt.After(c.SourceModifiedAt) {
			return Resolution{Winner: c.Target}, nil
		}
		return Resolution{Winner: c.Source}, nil
	case ConflictManual:
		return Resolution{Deferred: true}, nil
	case ConflictMerge:
		return Resolution{Winner: mergeRecords(c.Source, c.Target)}, nil
	default:
		return Resolution{}, ErrInvalidConflictRule
	}
}

// mergeRecords performs a field-level union favoring non-null values,
// with source precedence when both sides carry a value.
func mergeRecords(source, target map[string]any) map[string]any {
	merged := make(map[string]any, len(source)+len(target))
	for k, v := range target {
		if v != nil {
			merged[k] = v
		}
	}
	for k, v := range source {
		if v != nil {
			merged[k] = v
		}
	}
	return merged
}

// ---------------------------------------------------------------------------
// Pending Review Queue
// ---------------------------------------------------------------------------

// ConflictChoice selects which side a reviewer keeps
type ConflictChoice string

const (
	ChoiceKeepSource ConflictChoice = "source"
	ChoiceKeepTarget ConflictChoice = "target"
	ChoiceMerge      ConflictChoice = "merge"
)

// IsValid returns true if the choice is valid
func (c ConflictChoice) IsValid() bool {
	return c == ChoiceKeepSource || c == ChoiceKeepTarget || c == ChoiceMerge
}

// PendingConflict is a conflict deferred to human review by the manual rule
type PendingConflict struct {
	// ID is the unique identifier of the queue entry
	ID uuid.UUID
	// OrgID is the owning organization
	OrgID uuid.UUID
	// IntegrationID is the integration the conflict belongs to
	IntegrationID uuid.UUID
	// Record is the conflicting record pair
	Record ConflictRecord
	// QueuedAt is when the conflict entered the queue
	QueuedAt time.Time
}

// NewPendingConflict creates a review-queue entry for a deferred conflict
func NewPendingConflict(orgID, integrationID uuid.UUID, record ConflictRecord) *PendingConflict {
	return &PendingConflict{
		ID:            uuid.New(),
		OrgID:         orgID,
		IntegrationID: integrationID,
		Record:        record,
		QueuedAt:      time.Now(),
	}
}

// Resolve applies the reviewer's choice and returns the record to write back.
func (p *PendingConflict) Resolve(choice ConflictChoice) (map[string]any, error) {
	switch choice {
	case ChoiceKeepSource:
		return p.Record.Source, nil
	case ChoiceKeepTarget:
		return p.Record.Target, nil
	case ChoiceMerge:
		return mergeRecords(p.Record.Source, p.Record.Target), nil
	default:
		return nil, ErrInvalidConflictChoice
	}
}

// ConflictRepository persists the pending-review queue
type ConflictRepository interface {
	// Save appends a pending conflict to the queue
	Save(ctx context.Context, conflict *PendingConflict) error

	// FindByID finds a queue entry by ID
	FindByID(ctx context.Context, id uuid.UUID) (*PendingConflict, error)

	// FindByIntegration lists queued conflicts for an integration, oldest first
	FindByIntegration(ctx context.Context, orgID, integrationID uuid.UUID) ([]PendingConflict, error)

	// Delete removes a resolved or discarded entry
	Delete(ctx context.Context, id uuid.UUID) error
}
