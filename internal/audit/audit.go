// Package audit turns mutation outcomes into system_adjusted events on the
// cart event trail.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cartops/cartguard/internal/models"
)

// AdjustmentReason is the fixed reason recorded on every system adjustment.
const AdjustmentReason = "exceeded_item_limit"

// Recorder is the slice of the event store the audit logger needs.
type Recorder interface {
	AppendEvent(ctx context.Context, ev models.CartEvent) (string, error)
}

// Logger persists the audit record for an applied (or simulated) adjustment.
type Logger struct {
	recorder Recorder
	log      *zap.Logger
	now      func() time.Time
}

func NewLogger(recorder Recorder, log *zap.Logger) *Logger {
	return &Logger{recorder: recorder, log: log, now: time.Now}
}

// Record builds the system_adjusted event from the outcome and appends it.
// Called whenever a plan existed, regardless of which tier produced the
// outcome. The returned event is what was handed to the store, even when
// the append failed; the error is for operational alerting only.
func (l *Logger) Record(ctx context.Context, snap models.CartSnapshot, outcome models.AdjustmentOutcome) (models.CartEvent, error) {
	now := l.now().UTC()

	ev := models.CartEvent{
		ID:            uuid.NewString(),
		Shop:          snap.Shop,
		CartToken:     snap.Token,
		CartID:        snap.ID,
		Kind:          models.EventSystemAdjusted,
		LineItems:     outcome.LineItems,
		Customer:      snap.Customer,
		TotalPrice:    outcome.TotalPrice,
		SubtotalPrice: outcome.SubtotalPrice,
		MutationInfo: &models.MutationInfo{
			Reason:            AdjustmentReason,
			ItemsBefore:       snap.TotalItems(),
			ItemsAfter:        outcome.ItemsAfter,
			AdjustmentDetails: outcome.Adjustments,
			Simulated:         outcome.Simulated,
			Timestamp:         now,
		},
		RawData:   outcome.Raw,
		CreatedAt: now,
	}

	if _, err := l.recorder.AppendEvent(ctx, ev); err != nil {
		// Losing audit history is an alert condition, but it never changes
		// the webhook acknowledgement.
		l.log.Error("failed to append system_adjusted event",
			zap.String("shop", snap.Shop),
			zap.Int64("cart_id", snap.ID),
			zap.Error(err))
		return ev, err
	}
	return ev, nil
}
