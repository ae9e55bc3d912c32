package mutation

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/cartops/cartguard/internal/models"
)

// Orchestrator walks the tier chain strictly in order, never in parallel:
// concurrent attempts against the same cart are not safe to race against
// the remote system. A tier's error is logged and swallowed, never
// propagated past the chain.
type Orchestrator struct {
	tiers []Tier
	log   *zap.Logger
}

// NewOrchestrator builds the chain in the order given. The last tier should
// be the simulation tier; even if it is not, Apply falls back to a local
// simulation so it always returns an outcome.
func NewOrchestrator(log *zap.Logger, tiers ...Tier) *Orchestrator {
	return &Orchestrator{tiers: tiers, log: log}
}

// Apply runs the plan through the chain and returns the first successful
// outcome. It cannot fail.
func (o *Orchestrator) Apply(ctx context.Context, snap models.CartSnapshot, plan models.ReductionPlan) models.AdjustmentOutcome {
	for _, tier := range o.tiers {
		out, err := tier.Attempt(ctx, snap, plan)
		if err == nil {
			return *out
		}

		fields := []zap.Field{
			zap.String("shop", snap.Shop),
			zap.Int64("cart_id", snap.ID),
			zap.String("tier", string(tier.Name())),
			zap.Error(err),
		}
		var me *Error
		if errors.As(err, &me) {
			fields = append(fields, zap.String("kind", string(me.Kind)))
		}
		o.log.Warn("mutation tier failed, falling through", fields...)
	}

	// Reached only when the chain was built without the simulation tier.
	return Simulate(snap, plan)
}
