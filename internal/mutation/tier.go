// Package mutation applies reduction plans against the remote commerce
// backend through an ordered chain of fallback tiers: the admin API first,
// the storefront cart API second, and a local simulation that cannot fail
// as the terminal entry.
package mutation

import (
	"context"

	"github.com/cartops/cartguard/internal/models"
)

// Tier is one strategy for applying a reduction plan. Attempt returns the
// resulting cart state on success and a *Error on failure; the chain treats
// any error as a signal to fall through to the next tier.
type Tier interface {
	Name() models.Tier
	Attempt(ctx context.Context, snap models.CartSnapshot, plan models.ReductionPlan) (*models.AdjustmentOutcome, error)
}

// TokenSource supplies the per-shop admin access token. The session store
// (populated by the OAuth flow, outside this service) implements it.
type TokenSource interface {
	AccessToken(ctx context.Context, shop string) (string, error)
}
