package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestBatch(t *testing.T) *Batch {
	t.Helper()
	b, err := NewBatch("batch-1", "B-1", []Order{
		{OrderID: "O-1", Priority: PriorityStandard, Status: OrderStatusPending},
		{OrderID: "O-2", Priority: PriorityRush, Status: OrderStatusPending},
	}, "mgr-1", testNow)
	require.NoError(t, err)
	b.ClearDomainEvents()
	return b
}

// TestNewBatch tests batch creation
func TestNewBatch(t *testing.T) {
	b, err := NewBatch("batch-1", "B-1", []Order{
		{OrderID: "O-1", Priority: PriorityStandard},
		{OrderID: "O-2", Priority: PriorityExpedite},
		{OrderID: "O-3", Priority: PriorityRush},
	}, "mgr-1", testNow)

	require.NoError(t, err)
	assert.Equal(t, StageIntake, b.CurrentStage)
	assert.Equal(t, QualityGood, b.QualityStatus)
	assert.Equal(t, PriorityExpedite, b.Priority)
	assert.Equal(t, []string{"O-1", "O-2", "O-3"}, b.OrderIDs)
	assert.Equal(t, BatchStatusActive, b.Status)
	require.Len(t, b.GetDomainEvents(), 1)
	assert.Equal(t, "production.batch.created", b.GetDomainEvents()[0].EventType())
}

func TestNewBatch_Invalid(t *testing.T) {
	_, err := NewBatch("b", "B-1", nil, "mgr-1", testNow)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = NewBatch("b", "B-1", []Order{{OrderID: "O-1"}, {OrderID: "O-1"}}, "mgr-1", testNow)
	assert.ErrorIs(t, err, ErrDuplicateOrder)

	_, err = NewBatch("b", "B-1", []Order{{OrderID: "O-1", Status: OrderStatusShipped}}, "mgr-1", testNow)
	assert.ErrorIs(t, err, ErrOrderNotPending)
}

// TestBatchTransition tests every (current, target) pair against the forward-only rule
func TestBatchTransition(t *testing.T) {
	for i, current := range Catalog {
		for j, target := range Catalog {
			b := newTestBatch(t)
			b.CurrentStage = current

			err := b.Transition(target, QualityGood, "mgr-1", testNow)
			if j > i {
				require.NoError(t, err, "%s -> %s", current, target)
				assert.Equal(t, target, b.CurrentStage)
				require.Len(t, b.GetDomainEvents(), 1)
			} else {
				require.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", current, target)
				assert.Equal(t, current, b.CurrentStage)
				assert.Empty(t, b.GetDomainEvents())
			}
		}
	}
}

// TestBatchTransition_QualityBlocked tests that blocking statuses stop every forward move
func TestBatchTransition_QualityBlocked(t *testing.T) {
	for _, status := range []QualityStatus{QualityCritical, QualityHold} {
		for _, target := range LegalNextStages(StageIntake) {
			b := newTestBatch(t)
			b.QualityStatus = status

			err := b.Transition(target, QualityGood, "mgr-1", testNow)
			require.ErrorIs(t, err, ErrQualityBlocked, "%s -> %s", status, target)
			assert.Equal(t, StageIntake, b.CurrentStage)
		}
	}

	b := newTestBatch(t)
	b.QualityStatus = QualityWarning
	require.NoError(t, b.Transition(StageSanding, QualityGood, "mgr-1", testNow))
}

func TestBatchTransition_ReplacesQuality(t *testing.T) {
	b := newTestBatch(t)
	b.QualityStatus = QualityWarning

	require.NoError(t, b.Transition(StageSanding, QualityCritical, "mgr-1", testNow))
	assert.Equal(t, QualityCritical, b.QualityStatus)

	err := b.Transition(StageFinishing, QualityGood, "mgr-1", testNow)
	assert.ErrorIs(t, err, ErrQualityBlocked)
}

func TestBatchRework(t *testing.T) {
	b := newTestBatch(t)
	b.CurrentStage = StageFinalAssembly
	b.QualityStatus = QualityHold

	require.NoError(t, b.Rework(StageSanding, "grain tear-out", QualityGood, "sup-1", testNow))
	assert.Equal(t, StageSanding, b.CurrentStage)
	assert.Equal(t, QualityGood, b.QualityStatus)
	require.Len(t, b.GetDomainEvents(), 1)
	event := b.GetDomainEvents()[0].(*BatchReworkedEvent)
	assert.Equal(t, "final_assembly", event.FromStage)
	assert.Equal(t, "grain tear-out", event.Reason)

	assert.ErrorIs(t, b.Rework(StageSanding, "", QualityGood, "sup-1", testNow), ErrInvalidRework)
	assert.ErrorIs(t, b.Rework(StageShipping, "", QualityGood, "sup-1", testNow), ErrInvalidRework)
}

func TestBatchRecordQuality(t *testing.T) {
	b := newTestBatch(t)

	changed, err := b.RecordQuality(StageIntake, QualityWarning, "qc-1", testNow)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, QualityWarning, b.QualityStatus)

	changed, err = b.RecordQuality(StageIntake, QualityGood, "qc-1", testNow)
	require.NoError(t, err)
	assert.False(t, changed, "a better report never clears a worse status")
	assert.Equal(t, QualityWarning, b.QualityStatus)

	_, err = b.RecordQuality(StageSanding, QualityCritical, "qc-1", testNow)
	assert.ErrorIs(t, err, ErrStageNotCurrent)

	changed, err = b.RecordQuality(StageIntake, QualityCritical, "qc-1", testNow)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, b.GetDomainEvents(), 2)
}

func TestBatchArchive(t *testing.T) {
	b := newTestBatch(t)
	assert.ErrorIs(t, b.Archive("mgr-1", testNow), ErrNotTerminal)

	require.NoError(t, b.Transition(StageShipping, QualityGood, "mgr-1", testNow))
	require.NoError(t, b.Archive("mgr-1", testNow))
	assert.False(t, b.IsActive())
	require.NotNil(t, b.ArchivedAt)

	assert.ErrorIs(t, b.Archive("mgr-1", testNow), ErrBatchArchived)
	assert.ErrorIs(t, b.Transition(StageShipping, QualityGood, "mgr-1", testNow), ErrBatchArchived)
}

// TestBatch_JSONRoundTrip tests that a decoded batch makes the same transition decisions
func TestBatch_JSONRoundTrip(t *testing.T) {
	original := newTestBatch(t)
	original.CurrentStage = StageSanding
	original.QualityStatus = QualityCritical

	data, err := json.Marshal(original)
	require.NoError(t, err)
	var decoded Batch
	require.NoError(t, json.Unmarshal(data, &decoded))

	for _, target := range Catalog {
		assert.Equal(t, original.CanTransition(target), decoded.CanTransition(target), string(target))
	}

	again, err := json.Marshal(&decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}
