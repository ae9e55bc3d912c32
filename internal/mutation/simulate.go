package mutation

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/cartops/cartguard/internal/models"
)

// SimulationTier is the terminal fallback. It applies the plan to the
// snapshot locally and never fails, so the chain always produces an outcome.
// No remote state changes; the result exists only in the audit trail.
type SimulationTier struct{}

func NewSimulationTier() *SimulationTier { return &SimulationTier{} }

func (t *SimulationTier) Name() models.Tier { return models.TierSimulation }

func (t *SimulationTier) Attempt(ctx context.Context, snap models.CartSnapshot, plan models.ReductionPlan) (*models.AdjustmentOutcome, error) {
	out := Simulate(snap, plan)
	return &out, nil
}

// Simulate applies the plan's target quantities to the snapshot and
// recomputes totals as the sum of unit price times new quantity. Total
// function: defined for every snapshot/plan pair.
func Simulate(snap models.CartSnapshot, plan models.ReductionPlan) models.AdjustmentOutcome {
	itemsAfter := 0
	total := decimal.Zero
	lines := make([]models.LineItem, 0, len(snap.LineItems))

	for i, li := range snap.LineItems {
		qty := plan.NewQuantityFor(i, li.Quantity)
		itemsAfter += qty
		total = total.Add(li.Price.Mul(decimal.NewFromInt(int64(qty))))
		lines = append(lines, models.LineItem{
			VariantID: li.VariantID,
			ProductID: li.ProductID,
			Title:     li.Title,
			Quantity:  qty,
			Price:     li.Price,
		})
	}

	return models.AdjustmentOutcome{
		Tier:          models.TierSimulation,
		LineItems:     lines,
		TotalPrice:    total,
		SubtotalPrice: total,
		ItemsAfter:    itemsAfter,
		Adjustments:   plan.Adjustments,
		Simulated:     true,
	}
}
