package integration

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConflict() ConflictRecord {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return ConflictRecord{
		RecordKey: "contact:42",
		Source: map[string]any{
			"email": "new@example.com",
			"phone": "555-0100",
			"notes": nil,
		},
		Target: map[string]any{
			"email": "old@example.com",
			"notes": "met at conference",
			"owner": "alice",
		},
		SourceModifiedAt: base,
		TargetModifiedAt: base.Add(-time.Hour),
	}
}

func TestResolveConflict(t *testing.T) {
	t.Run("Source wins", func(t *testing.T) {
		c := sampleConflict()
		res, err := ResolveConflict(ConflictSourceWins, c)
		require.NoError(t, err)
		assert.False(t, res.Deferred)
		assert.Equal(t, c.Source, res.Winner)
	})

	t.Run("Target wins", func(t *testing.T) {
		c := sampleConflict()
		res, err := ResolveConflict(ConflictTargetWins, c)
		require.NoError(t, err)
		assert.Equal(t, c.Target, res.Winner)
	})

	t.Run("Most recent keeps the later side", func(t *testing.T) {
		c := sampleConflict()
		res, err := ResolveConflict(ConflictMostRecent, c)
		require.NoError(t, err)
		assert.Equal(t, c.Source, res.Winner, "source modified after target")

		c.TargetModifiedAt = c.SourceModifiedAt.Add(time.Minute)
		res, err = ResolveConflict(ConflictMostRecent, c)
		require.NoError(t, err)
		assert.Equal(t, c.Target, res.Winner)
	})

	t.Run("Most recent ties go to the source", func(t *testing.T) {
		c := sampleConflict()
		c.TargetModifiedAt = c.SourceModifiedAt
		res, err := ResolveConflict(ConflictMostRecent, c)
		require.NoError(t, err)
		assert.Equal(t, c.Source, res.Winner)
	})

	t.Run("Manual defers without a winner", func(t *testing.T) {
		res, err := ResolveConflict(ConflictManual, sampleConflict())
		require.NoError(t, err)
		assert.True(t, res.Deferred)
		assert.Nil(t, res.Winner)
	})

	t.Run("Merge unions fields preferring non-null, source ahead", func(t *testing.T) {
		res, err := ResolveConflict(ConflictMerge, sampleConflict())
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"email": "new@example.com",   // both sides set, source wins
			"phone": "555-0100",          // source only
			"notes": "met at conference", // source null, target value survives
			"owner": "alice",             // target only
		}, res.Winner)
	})

	t.Run("Unknown rule", func(t *testing.T) {
		_, err := ResolveConflict(ConflictResolution("vote"), sampleConflict())
		assert.ErrorIs(t, err, ErrInvalidConflictRule)
	})
}

func TestPendingConflict_Resolve(t *testing.T) {
	p := NewPendingConflict(uuid.New(), uuid.New(), sampleConflict())
	require.False(t, p.QueuedAt.IsZero())

	record, err := p.Resolve(ChoiceKeepSource)
	require.NoError(t, err)
	assert.Equal(t, p.Record.Source, record)

	record, err = p.Resolve(ChoiceKeepTarget)
	require.NoError(t, err)
	assert.Equal(t, p.Record.Target, record)

	record, err = p.Resolve(ChoiceMerge)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", record["email"])
	assert.Equal(t, "alice", record["owner"])

	_, err = p.Resolve(ConflictChoice("coin-flip"))
	assert.ErrorIs(t, err, ErrInvalidConflictChoice)
}
