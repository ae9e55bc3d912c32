package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cartops/cartguard/internal/audit"
	"github.com/cartops/cartguard/internal/models"
	"github.com/cartops/cartguard/internal/mutation"
)

// memRecorder captures appended events; optionally fails every append.
type memRecorder struct {
	mu     sync.Mutex
	events []models.CartEvent
	fail   bool
}

func (m *memRecorder) AppendEvent(ctx context.Context, ev models.CartEvent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", errors.New("store unreachable")
	}
	m.events = append(m.events, ev)
	return ev.ID, nil
}

func (m *memRecorder) byKind(kind models.EventKind) []models.CartEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CartEvent
	for _, ev := range m.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// failingTier always errors, pushing the chain toward simulation.
type failingTier struct{ name models.Tier }

func (f failingTier) Name() models.Tier { return f.name }

func (f failingTier) Attempt(ctx context.Context, snap models.CartSnapshot, plan models.ReductionPlan) (*models.AdjustmentOutcome, error) {
	return nil, &mutation.Error{Tier: f.name, Kind: mutation.KindNetwork}
}

func snapshot(quantities ...int) models.CartSnapshot {
	snap := models.CartSnapshot{
		Shop:  "example.myshopify.com",
		ID:    42,
		Token: "tok-42",
	}
	for i, q := range quantities {
		snap.LineItems = append(snap.LineItems, models.LineItem{
			VariantID: int64(1000 + i),
			Title:     "item",
			Quantity:  q,
			Price:     decimal.RequireFromString("2.00"),
		})
	}
	return snap
}

func newProcessor(rec *memRecorder, cap int) *Processor {
	log := zap.NewNop()
	chain := mutation.NewOrchestrator(log,
		failingTier{models.TierAdmin},
		failingTier{models.TierStorefront},
		mutation.NewSimulationTier(),
	)
	return NewProcessor(rec, chain, audit.NewLogger(rec, log), cap, log)
}

func TestProcess_WithinCapRecordsOnlyUpdatedEvent(t *testing.T) {
	rec := &memRecorder{}
	proc := newProcessor(rec, 5)

	result := proc.Process(context.Background(), snapshot(1, 1, 1), []byte(`{}`))

	assert.False(t, result.Adjusted)
	assert.Nil(t, result.Outcome)
	assert.Len(t, rec.byKind(models.EventUpdated), 1)
	assert.Empty(t, rec.byKind(models.EventSystemAdjusted))
}

func TestProcess_OverCapFailingRemotesProduceSimulatedAudit(t *testing.T) {
	rec := &memRecorder{}
	proc := newProcessor(rec, 5)

	result := proc.Process(context.Background(), snapshot(8), []byte(`{}`))

	require.True(t, result.Adjusted)
	require.NotNil(t, result.Outcome)
	assert.True(t, result.Outcome.Simulated)
	assert.Equal(t, models.TierSimulation, result.Outcome.Tier)
	assert.Equal(t, 5, result.Outcome.ItemsAfter)

	adjusted := rec.byKind(models.EventSystemAdjusted)
	require.Len(t, adjusted, 1)
	info := adjusted[0].MutationInfo
	require.NotNil(t, info)
	assert.True(t, info.Simulated)
	assert.Equal(t, audit.AdjustmentReason, info.Reason)
	assert.Equal(t, 8, info.ItemsBefore)
	assert.Equal(t, 5, info.ItemsAfter)
	require.Len(t, info.AdjustmentDetails, 1)
	assert.Equal(t, 3, info.AdjustmentDetails[0].Reduction)
}

func TestProcess_UpdatedEventCarriesRawBody(t *testing.T) {
	rec := &memRecorder{}
	proc := newProcessor(rec, 5)

	raw := []byte(`{"id":42,"line_items":[{"quantity":1}]}`)
	proc.Process(context.Background(), snapshot(1), raw)

	updated := rec.byKind(models.EventUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, raw, []byte(updated[0].RawData))
}

func TestProcess_StoreFailureIsAbsorbed(t *testing.T) {
	rec := &memRecorder{fail: true}
	proc := newProcessor(rec, 5)

	// Must not panic or error even when every append fails; the sender
	// still gets its acknowledgement.
	result := proc.Process(context.Background(), snapshot(8), []byte(`{}`))

	assert.True(t, result.Adjusted)
	assert.NotNil(t, result.Outcome)
}

func TestProcess_BestEffortPlanIsStillAudited(t *testing.T) {
	rec := &memRecorder{}
	proc := newProcessor(rec, 2)

	// Three lines of one item each: nothing reducible, cart stays at 3.
	result := proc.Process(context.Background(), snapshot(1, 1, 1), []byte(`{}`))

	require.True(t, result.Adjusted)
	assert.Equal(t, 3, result.Outcome.ItemsAfter)

	adjusted := rec.byKind(models.EventSystemAdjusted)
	require.Len(t, adjusted, 1)
	assert.Equal(t, 3, adjusted[0].MutationInfo.ItemsAfter)
	assert.Empty(t, adjusted[0].MutationInfo.AdjustmentDetails)
}
