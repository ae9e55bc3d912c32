package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one line of a cart as delivered by the carts/update webhook.
// Price is the unit price; Shopify sends it as a decimal string.
type LineItem struct {
	VariantID int64           `json:"variant_id"`
	ProductID int64           `json:"product_id,omitempty"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Customer is the optional customer descriptor attached to a cart payload.
type Customer struct {
	ID        int64  `json:"id,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// CartSnapshot is the point-in-time cart state carried by one webhook
// delivery. It binds directly from the JSON body; Shop and ReceivedAt are
// filled in from the delivery headers. Immutable once received.
type CartSnapshot struct {
	Shop          string          `json:"-"`
	ID            int64           `json:"id"`
	Token         string          `json:"token"`
	LineItems     []LineItem      `json:"line_items"`
	Customer      *Customer       `json:"customer,omitempty"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	SubtotalPrice decimal.Decimal `json:"subtotal_price"`
	ReceivedAt    time.Time       `json:"-"`
}

// TotalItems is the summed quantity across all lines.
func (s CartSnapshot) TotalItems() int {
	total := 0
	for _, li := range s.LineItems {
		total += li.Quantity
	}
	return total
}

// LineAdjustment is one per-line quantity decrease in a reduction plan.
// LineIndex refers back to the snapshot's line_items order.
type LineAdjustment struct {
	LineIndex        int    `json:"line_index"`
	VariantID        int64  `json:"variant_id"`
	Title            string `json:"title"`
	OriginalQuantity int    `json:"original_quantity"`
	NewQuantity      int    `json:"new_quantity"`
	Reduction        int    `json:"reduction"`
}

// ReductionPlan is the set of per-line decreases needed to bring a cart's
// item count down to the cap, or as close as the keep-at-least-one policy
// allows. A nil *ReductionPlan means the cart is within the cap; that is
// distinct from a best-effort plan, which may carry zero adjustments when
// every line is already at quantity 1.
type ReductionPlan struct {
	Adjustments []LineAdjustment `json:"adjustments"`
	ItemsBefore int              `json:"items_before"`
	ItemsAfter  int              `json:"items_after"`
}

// NewQuantityFor returns the target quantity for the given snapshot line.
// Lines without an adjustment keep their original quantity.
func (p *ReductionPlan) NewQuantityFor(lineIndex, originalQuantity int) int {
	for _, adj := range p.Adjustments {
		if adj.LineIndex == lineIndex {
			return adj.NewQuantity
		}
	}
	return originalQuantity
}

// Tier identifies which mutation strategy produced an adjustment outcome.
type Tier string

const (
	TierAdmin      Tier = "admin"
	TierStorefront Tier = "storefront"
	TierSimulation Tier = "simulation"
)

// AdjustmentOutcome is the result of applying a reduction plan through the
// mutation chain. Simulated is true only when no remote state changed.
type AdjustmentOutcome struct {
	Tier          Tier             `json:"tier"`
	LineItems     []LineItem       `json:"line_items"`
	TotalPrice    decimal.Decimal  `json:"total_price"`
	SubtotalPrice decimal.Decimal  `json:"subtotal_price"`
	ItemsAfter    int              `json:"items_after"`
	Adjustments   []LineAdjustment `json:"adjustments"`
	Simulated     bool             `json:"simulated"`
	Raw           []byte           `json:"-"`
}
