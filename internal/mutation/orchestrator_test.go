package mutation

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cartops/cartguard/internal/models"
)

// stubTier records whether it was attempted and returns a fixed result.
type stubTier struct {
	name      models.Tier
	outcome   *models.AdjustmentOutcome
	err       error
	attempted bool
}

func (s *stubTier) Name() models.Tier { return s.name }

func (s *stubTier) Attempt(ctx context.Context, snap models.CartSnapshot, plan models.ReductionPlan) (*models.AdjustmentOutcome, error) {
	s.attempted = true
	return s.outcome, s.err
}

func testSnapshot() models.CartSnapshot {
	return models.CartSnapshot{
		Shop:  "example.myshopify.com",
		ID:    42,
		Token: "tok-42",
		LineItems: []models.LineItem{
			{VariantID: 1, Title: "widget", Quantity: 6, Price: decimal.RequireFromString("4.50")},
			{VariantID: 2, Title: "gadget", Quantity: 2, Price: decimal.RequireFromString("10.00")},
		},
	}
}

func testPlan() models.ReductionPlan {
	return models.ReductionPlan{
		Adjustments: []models.LineAdjustment{
			{LineIndex: 0, VariantID: 1, Title: "widget", OriginalQuantity: 6, NewQuantity: 3, Reduction: 3},
		},
		ItemsBefore: 8,
		ItemsAfter:  5,
	}
}

func TestApply_FirstTierSuccessStopsChain(t *testing.T) {
	want := &models.AdjustmentOutcome{Tier: models.TierAdmin, ItemsAfter: 5}
	a := &stubTier{name: models.TierAdmin, outcome: want}
	b := &stubTier{name: models.TierStorefront, outcome: &models.AdjustmentOutcome{Tier: models.TierStorefront}}

	o := NewOrchestrator(zap.NewNop(), a, b, NewSimulationTier())
	got := o.Apply(context.Background(), testSnapshot(), testPlan())

	assert.Equal(t, models.TierAdmin, got.Tier)
	assert.False(t, got.Simulated)
	assert.False(t, b.attempted, "second tier must not run after a success")
}

func TestApply_FallsThroughToSecondTier(t *testing.T) {
	a := &stubTier{name: models.TierAdmin, err: newError(models.TierAdmin, KindNoCredentials, nil)}
	want := &models.AdjustmentOutcome{Tier: models.TierStorefront, ItemsAfter: 5}
	b := &stubTier{name: models.TierStorefront, outcome: want}

	o := NewOrchestrator(zap.NewNop(), a, b, NewSimulationTier())
	got := o.Apply(context.Background(), testSnapshot(), testPlan())

	assert.True(t, a.attempted)
	assert.Equal(t, models.TierStorefront, got.Tier)
	assert.False(t, got.Simulated)
}

func TestApply_BothRemoteTiersFailEndsInSimulation(t *testing.T) {
	a := &stubTier{name: models.TierAdmin, err: newError(models.TierAdmin, KindTimeout, nil)}
	b := &stubTier{name: models.TierStorefront, err: newError(models.TierStorefront, KindRemoteRejected, nil)}

	o := NewOrchestrator(zap.NewNop(), a, b, NewSimulationTier())
	got := o.Apply(context.Background(), testSnapshot(), testPlan())

	assert.True(t, a.attempted)
	assert.True(t, b.attempted)
	assert.Equal(t, models.TierSimulation, got.Tier)
	assert.True(t, got.Simulated)
	assert.Equal(t, 5, got.ItemsAfter)
}

func TestApply_EmptyChainStillProducesOutcome(t *testing.T) {
	o := NewOrchestrator(zap.NewNop())
	got := o.Apply(context.Background(), testSnapshot(), testPlan())

	assert.Equal(t, models.TierSimulation, got.Tier)
	assert.True(t, got.Simulated)
}

func TestSimulate_RecomputesTotalsFromUnitPrices(t *testing.T) {
	out := Simulate(testSnapshot(), testPlan())

	// widget 3 × 4.50 + gadget 2 × 10.00 = 33.50
	assert.True(t, out.TotalPrice.Equal(decimal.RequireFromString("33.50")),
		"got %s", out.TotalPrice)
	assert.Equal(t, 5, out.ItemsAfter)
	assert.True(t, out.Simulated)

	require.Len(t, out.LineItems, 2)
	assert.Equal(t, 3, out.LineItems[0].Quantity)
	assert.Equal(t, 2, out.LineItems[1].Quantity)
}

func TestSimulate_EmptyPlanLeavesCartUnchanged(t *testing.T) {
	snap := testSnapshot()
	out := Simulate(snap, models.ReductionPlan{ItemsBefore: 8, ItemsAfter: 8})

	assert.Equal(t, snap.TotalItems(), out.ItemsAfter)
	assert.True(t, out.Simulated)
}
