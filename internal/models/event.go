package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind classifies audit records in the cart event trail.
type EventKind string

const (
	EventUpdated        EventKind = "updated"
	EventSystemAdjusted EventKind = "system_adjusted"
)

// MutationInfo records why and how a cart was adjusted by the system.
type MutationInfo struct {
	Reason            string           `json:"reason"`
	ItemsBefore       int              `json:"items_before"`
	ItemsAfter        int              `json:"items_after"`
	AdjustmentDetails []LineAdjustment `json:"adjustment_details"`
	Simulated         bool             `json:"simulated"`
	Timestamp         time.Time        `json:"timestamp"`
}

// CartEvent is one immutable audit record. Exactly one `updated` event is
// written per webhook delivery, and at most one `system_adjusted` event on
// top of it. Events are never mutated or deleted by this service.
//
// RawData holds the payload as received (or the remote mutation response for
// adjustments) and is omitted from list queries.
type CartEvent struct {
	ID            string          `json:"id"`
	Shop          string          `json:"shop"`
	CartToken     string          `json:"cart_token"`
	CartID        int64           `json:"cart_id"`
	Kind          EventKind       `json:"event"`
	LineItems     []LineItem      `json:"line_items"`
	Customer      *Customer       `json:"customer,omitempty"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	SubtotalPrice decimal.Decimal `json:"subtotal_price"`
	MutationInfo  *MutationInfo   `json:"mutation_info,omitempty"`
	RawData       json.RawMessage `json:"raw_data,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// WebhookRegistration tracks a webhook subscription created on the remote
// admin API so registration stays idempotent per (shop, topic).
type WebhookRegistration struct {
	ID        string    `json:"id"`
	Shop      string    `json:"shop"`
	Topic     string    `json:"topic"`
	WebhookID int64     `json:"webhook_id"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}
