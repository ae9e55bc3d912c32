package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cartops/cartguard/internal/models"
)

type captureRecorder struct {
	last *models.CartEvent
	err  error
}

func (c *captureRecorder) AppendEvent(ctx context.Context, ev models.CartEvent) (string, error) {
	c.last = &ev
	return ev.ID, c.err
}

func sampleSnapshot() models.CartSnapshot {
	return models.CartSnapshot{
		Shop:     "example.myshopify.com",
		ID:       7,
		Token:    "tok-7",
		Customer: &models.Customer{Email: "a@example.com"},
		LineItems: []models.LineItem{
			{VariantID: 1, Title: "widget", Quantity: 8, Price: decimal.RequireFromString("1.00")},
		},
	}
}

func sampleOutcome(simulated bool) models.AdjustmentOutcome {
	return models.AdjustmentOutcome{
		Tier:          models.TierSimulation,
		ItemsAfter:    5,
		TotalPrice:    decimal.RequireFromString("5.00"),
		SubtotalPrice: decimal.RequireFromString("5.00"),
		Adjustments: []models.LineAdjustment{
			{LineIndex: 0, VariantID: 1, Title: "widget", OriginalQuantity: 8, NewQuantity: 5, Reduction: 3},
		},
		Simulated: simulated,
		LineItems: []models.LineItem{
			{VariantID: 1, Title: "widget", Quantity: 5, Price: decimal.RequireFromString("1.00")},
		},
	}
}

func TestRecord_BuildsSystemAdjustedEvent(t *testing.T) {
	rec := &captureRecorder{}
	l := NewLogger(rec, zap.NewNop())
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	ev, err := l.Record(context.Background(), sampleSnapshot(), sampleOutcome(true))
	require.NoError(t, err)
	require.NotNil(t, rec.last)

	assert.Equal(t, models.EventSystemAdjusted, ev.Kind)
	assert.Equal(t, "example.myshopify.com", ev.Shop)
	assert.Equal(t, int64(7), ev.CartID)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, fixed, ev.CreatedAt)

	info := ev.MutationInfo
	require.NotNil(t, info)
	assert.Equal(t, AdjustmentReason, info.Reason)
	assert.Equal(t, 8, info.ItemsBefore)
	assert.Equal(t, 5, info.ItemsAfter)
	assert.True(t, info.Simulated)
	assert.Equal(t, fixed, info.Timestamp)
	require.Len(t, info.AdjustmentDetails, 1)
	assert.Equal(t, 3, info.AdjustmentDetails[0].Reduction)

	// Customer context carries over from the snapshot.
	require.NotNil(t, ev.Customer)
	assert.Equal(t, "a@example.com", ev.Customer.Email)
}

func TestRecord_AppendFailureReturnsEventAndError(t *testing.T) {
	rec := &captureRecorder{err: errors.New("store unreachable")}
	l := NewLogger(rec, zap.NewNop())

	ev, err := l.Record(context.Background(), sampleSnapshot(), sampleOutcome(false))
	assert.Error(t, err)
	assert.Equal(t, models.EventSystemAdjusted, ev.Kind)
}
