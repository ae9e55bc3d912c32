// Package policy computes reduction plans for carts that exceed the
// configured item cap. The computation is a pure function of the line items
// and the cap: no clock, no randomness, no I/O.
package policy

import (
	"sort"

	"github.com/cartops/cartguard/internal/models"
)

// ComputeReductionPlan returns the per-line quantity decreases needed to
// bring the cart's total item count down to limit. A cart at or below the
// limit yields nil (no plan, not an empty one).
//
// Lines are reduced highest-quantity first; ties keep their original order
// so the same input always produces the same plan. No line is ever reduced
// below quantity 1. When every line is already at 1 and the cart is still
// over the limit, the plan is returned best-effort with ItemsAfter above
// the limit.
func ComputeReductionPlan(items []models.LineItem, limit int) *models.ReductionPlan {
	total := 0
	for _, li := range items {
		total += li.Quantity
	}
	if total <= limit {
		return nil
	}

	// Sort indices, not the caller's slice; the snapshot is immutable.
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return items[order[a]].Quantity > items[order[b]].Quantity
	})

	remaining := total - limit
	var adjustments []models.LineAdjustment

	for _, idx := range order {
		if remaining <= 0 {
			break
		}
		li := items[idx]

		// Keep at least one of every line that was in the cart.
		maxReducible := li.Quantity - 1
		if maxReducible <= 0 {
			continue
		}
		reduction := maxReducible
		if remaining < reduction {
			reduction = remaining
		}
		remaining -= reduction

		adjustments = append(adjustments, models.LineAdjustment{
			LineIndex:        idx,
			VariantID:        li.VariantID,
			Title:            li.Title,
			OriginalQuantity: li.Quantity,
			NewQuantity:      li.Quantity - reduction,
			Reduction:        reduction,
		})
	}

	reduced := 0
	for _, adj := range adjustments {
		reduced += adj.Reduction
	}

	return &models.ReductionPlan{
		Adjustments: adjustments,
		ItemsBefore: total,
		ItemsAfter:  total - reduced,
	}
}
