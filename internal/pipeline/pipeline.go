// Package pipeline runs one webhook delivery end to end: record the
// snapshot, compute a reduction plan, apply it through the mutation chain,
// and audit the outcome.
//
// Deliveries are independent units of work; nothing is shared between
// concurrent deliveries except the event store, whose append is safe under
// concurrent writers. Deliveries for the same cart are not serialized
// against each other: each derives its plan from its own snapshot and the
// last audit event appended stands as history (last-applied-wins).
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cartops/cartguard/internal/audit"
	"github.com/cartops/cartguard/internal/models"
	"github.com/cartops/cartguard/internal/policy"
)

// Recorder is the slice of the event store the pipeline needs.
type Recorder interface {
	AppendEvent(ctx context.Context, ev models.CartEvent) (string, error)
}

// Applier runs a reduction plan through the mutation tier chain. It cannot
// fail; the chain's terminal simulation tier is total.
type Applier interface {
	Apply(ctx context.Context, snap models.CartSnapshot, plan models.ReductionPlan) models.AdjustmentOutcome
}

// Result reports what one delivery did, for the acknowledgement body and
// for tests. It carries no error: by the time Process returns, every
// downstream failure has been absorbed and logged.
type Result struct {
	Adjusted bool
	Outcome  *models.AdjustmentOutcome
}

// Processor executes the post-authentication part of a delivery.
type Processor struct {
	recorder Recorder
	applier  Applier
	auditor  *audit.Logger
	itemCap  int
	log      *zap.Logger
	now      func() time.Time
}

func NewProcessor(recorder Recorder, applier Applier, auditor *audit.Logger, itemCap int, log *zap.Logger) *Processor {
	return &Processor{
		recorder: recorder,
		applier:  applier,
		auditor:  auditor,
		itemCap:  itemCap,
		log:      log,
		now:      time.Now,
	}
}

// Process records the snapshot, evaluates the cap policy, and applies and
// audits any resulting plan. It never returns an error: authentication is
// the only rejection point and it happens before Process is called.
func (p *Processor) Process(ctx context.Context, snap models.CartSnapshot, rawBody []byte) Result {
	p.appendUpdated(ctx, snap, rawBody)

	plan := policy.ComputeReductionPlan(snap.LineItems, p.itemCap)
	if plan == nil {
		return Result{}
	}

	p.log.Info("cart exceeds item cap, applying reduction plan",
		zap.String("shop", snap.Shop),
		zap.Int64("cart_id", snap.ID),
		zap.Int("items_before", plan.ItemsBefore),
		zap.Int("items_after", plan.ItemsAfter),
		zap.Int("cap", p.itemCap))

	outcome := p.applier.Apply(ctx, snap, *plan)

	// Audit append failures are logged inside the auditor; the delivery is
	// still acknowledged.
	_, _ = p.auditor.Record(ctx, snap, outcome)

	return Result{Adjusted: true, Outcome: &outcome}
}

// appendUpdated writes the `updated` event for the raw snapshot. A store
// failure here risks a gap in the audit trail, so it is logged at error
// level, but it does not stop policy evaluation.
func (p *Processor) appendUpdated(ctx context.Context, snap models.CartSnapshot, rawBody []byte) {
	ev := models.CartEvent{
		ID:            uuid.NewString(),
		Shop:          snap.Shop,
		CartToken:     snap.Token,
		CartID:        snap.ID,
		Kind:          models.EventUpdated,
		LineItems:     snap.LineItems,
		Customer:      snap.Customer,
		TotalPrice:    snap.TotalPrice,
		SubtotalPrice: snap.SubtotalPrice,
		RawData:       rawBody,
		CreatedAt:     p.now().UTC(),
	}

	if _, err := p.recorder.AppendEvent(ctx, ev); err != nil {
		p.log.Error("failed to append updated event",
			zap.String("shop", snap.Shop),
			zap.Int64("cart_id", snap.ID),
			zap.Error(err))
	}
}
