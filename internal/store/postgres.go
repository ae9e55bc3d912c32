package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cartops/cartguard/internal/models"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// ErrEventNotFound is returned by GetEvent when no row matches.
var ErrEventNotFound = errors.New("cart event not found")

// PostgresStore is the durable, append-only persistence layer for the cart
// event trail. Events are only ever inserted; there is no update path, so
// concurrent deliveries cannot overwrite each other's history.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema() error {
	_, err := p.pool.Exec(context.Background(), schemaSQL)
	return err
}

// Ping is used by the readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// AppendEvent persists one audit event and returns its ID. The write is
// durable before this returns; the caller decides what a failure means
// (for the webhook pipeline it is logged, never surfaced to the sender).
func (p *PostgresStore) AppendEvent(ctx context.Context, ev models.CartEvent) (string, error) {
	lineItems, err := json.Marshal(ev.LineItems)
	if err != nil {
		return "", err
	}

	var customer []byte
	if ev.Customer != nil {
		if customer, err = json.Marshal(ev.Customer); err != nil {
			return "", err
		}
	}

	var mutationInfo []byte
	if ev.MutationInfo != nil {
		if mutationInfo, err = json.Marshal(ev.MutationInfo); err != nil {
			return "", err
		}
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO cart_events(
			id, shop, cart_token, cart_id, kind, line_items, customer,
			total_price, subtotal_price, mutation_info, raw_data, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, ev.ID, ev.Shop, ev.CartToken, ev.CartID, string(ev.Kind), lineItems, customer,
		ev.TotalPrice.String(), ev.SubtotalPrice.String(), mutationInfo, []byte(ev.RawData), ev.CreatedAt)
	if err != nil {
		return "", err
	}
	return ev.ID, nil
}

// EventFilter narrows QueryEvents. Shop is required; Kind is optional.
type EventFilter struct {
	Shop string
	Kind models.EventKind
}

// QueryEvents returns one page of events for a shop, newest first with the
// event ID as a stable secondary sort. raw_data is intentionally excluded
// from the list path; use GetEvent for the full record.
func (p *PostgresStore) QueryEvents(ctx context.Context, f EventFilter, page, limit int) ([]models.CartEvent, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	offset := (page - 1) * limit

	query := `
		SELECT id, shop, cart_token, cart_id, kind, line_items, customer,
		       total_price::text, subtotal_price::text, mutation_info, created_at
		FROM cart_events
		WHERE shop = $1 AND ($2 = '' OR kind = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := p.pool.Query(ctx, query, f.Shop, string(f.Kind), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := []models.CartEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	err = p.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM cart_events
		WHERE shop = $1 AND ($2 = '' OR kind = $2)
	`, f.Shop, string(f.Kind)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// GetEvent returns one event including its raw payload.
func (p *PostgresStore) GetEvent(ctx context.Context, shop, id string) (models.CartEvent, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, shop, cart_token, cart_id, kind, line_items, customer,
		       total_price::text, subtotal_price::text, mutation_info, raw_data, created_at
		FROM cart_events
		WHERE shop = $1 AND id = $2
	`, shop, id)

	var ev models.CartEvent
	var kind string
	var lineItems, customer, mutationInfo, rawData []byte
	var totalPrice, subtotalPrice string

	err := row.Scan(&ev.ID, &ev.Shop, &ev.CartToken, &ev.CartID, &kind, &lineItems,
		&customer, &totalPrice, &subtotalPrice, &mutationInfo, &rawData, &ev.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.CartEvent{}, ErrEventNotFound
	}
	if err != nil {
		return models.CartEvent{}, err
	}

	if err := hydrateEvent(&ev, kind, lineItems, customer, mutationInfo, totalPrice, subtotalPrice); err != nil {
		return models.CartEvent{}, err
	}
	ev.RawData = rawData
	return ev, nil
}

// AdjustmentSummary aggregates system_adjusted events since the given time:
// how many carts were touched, how many items were removed, and which
// titles were reduced most often.
type AdjustmentSummary struct {
	TotalAdjustments        int                  `json:"total_adjustments"`
	TotalItemsRemoved       int                  `json:"total_items_removed"`
	AverageReductionPerCart float64              `json:"average_reduction_per_cart"`
	MostCommonlyAdjusted    []AdjustedTitleStats `json:"most_commonly_adjusted_items"`
	SimulatedAdjustments    int                  `json:"simulated_adjustments"`
	RecentAdjustments       []models.CartEvent   `json:"recent_adjustments"`
}

type AdjustedTitleStats struct {
	Title          string `json:"title"`
	Count          int    `json:"count"`
	TotalReduction int    `json:"total_reduction"`
}

// Summarize computes the adjustment summary for a shop in Go after a single
// newest-first query, mirroring the list path's ordering.
func (p *PostgresStore) Summarize(ctx context.Context, shop string, since time.Time) (AdjustmentSummary, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, shop, cart_token, cart_id, kind, line_items, customer,
		       total_price::text, subtotal_price::text, mutation_info, created_at
		FROM cart_events
		WHERE shop = $1 AND kind = $2 AND created_at >= $3
		ORDER BY created_at DESC, id DESC
	`, shop, string(models.EventSystemAdjusted), since)
	if err != nil {
		return AdjustmentSummary{}, err
	}
	defer rows.Close()

	summary := AdjustmentSummary{MostCommonlyAdjusted: []AdjustedTitleStats{}}
	byTitle := map[string]*AdjustedTitleStats{}
	var adjustments []models.CartEvent

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return AdjustmentSummary{}, err
		}
		adjustments = append(adjustments, ev)

		if ev.MutationInfo == nil {
			continue
		}
		summary.TotalItemsRemoved += ev.MutationInfo.ItemsBefore - ev.MutationInfo.ItemsAfter
		if ev.MutationInfo.Simulated {
			summary.SimulatedAdjustments++
		}
		for _, detail := range ev.MutationInfo.AdjustmentDetails {
			st, ok := byTitle[detail.Title]
			if !ok {
				st = &AdjustedTitleStats{Title: detail.Title}
				byTitle[detail.Title] = st
			}
			st.Count++
			st.TotalReduction += detail.Reduction
		}
	}
	if err := rows.Err(); err != nil {
		return AdjustmentSummary{}, err
	}

	summary.TotalAdjustments = len(adjustments)
	if len(adjustments) > 0 {
		summary.AverageReductionPerCart = float64(summary.TotalItemsRemoved) / float64(len(adjustments))
	}

	for _, st := range byTitle {
		summary.MostCommonlyAdjusted = append(summary.MostCommonlyAdjusted, *st)
	}
	sort.Slice(summary.MostCommonlyAdjusted, func(a, b int) bool {
		return summary.MostCommonlyAdjusted[a].Count > summary.MostCommonlyAdjusted[b].Count
	})
	if len(summary.MostCommonlyAdjusted) > 5 {
		summary.MostCommonlyAdjusted = summary.MostCommonlyAdjusted[:5]
	}

	if len(adjustments) > 5 {
		adjustments = adjustments[:5]
	}
	summary.RecentAdjustments = adjustments
	return summary, nil
}

// UpsertRegistration stores a webhook registration, replacing any previous
// one for the same (shop, topic).
func (p *PostgresStore) UpsertRegistration(ctx context.Context, reg models.WebhookRegistration) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO webhook_registrations(id, shop, topic, webhook_id, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (shop, topic)
		DO UPDATE SET webhook_id = EXCLUDED.webhook_id, address = EXCLUDED.address
	`, reg.ID, reg.Shop, reg.Topic, reg.WebhookID, reg.Address, reg.CreatedAt)
	return err
}

// FindRegistration returns the registration for (shop, topic), or nil.
func (p *PostgresStore) FindRegistration(ctx context.Context, shop, topic string) (*models.WebhookRegistration, error) {
	var reg models.WebhookRegistration
	err := p.pool.QueryRow(ctx, `
		SELECT id, shop, topic, webhook_id, address, created_at
		FROM webhook_registrations WHERE shop = $1 AND topic = $2
	`, shop, topic).Scan(&reg.ID, &reg.Shop, &reg.Topic, &reg.WebhookID, &reg.Address, &reg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// ListRegistrations returns all registrations for a shop.
func (p *PostgresStore) ListRegistrations(ctx context.Context, shop string) ([]models.WebhookRegistration, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, shop, topic, webhook_id, address, created_at
		FROM webhook_registrations WHERE shop = $1 ORDER BY created_at DESC
	`, shop)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	regs := []models.WebhookRegistration{}
	for rows.Next() {
		var reg models.WebhookRegistration
		if err := rows.Scan(&reg.ID, &reg.Shop, &reg.Topic, &reg.WebhookID, &reg.Address, &reg.CreatedAt); err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// DeleteRegistration removes a stored registration by its remote webhook ID.
func (p *PostgresStore) DeleteRegistration(ctx context.Context, shop string, webhookID int64) error {
	_, err := p.pool.Exec(ctx, `
		DELETE FROM webhook_registrations WHERE shop = $1 AND webhook_id = $2
	`, shop, webhookID)
	return err
}

// scanEvent reads one row from the list/summary projection (no raw_data).
func scanEvent(rows pgx.Rows) (models.CartEvent, error) {
	var ev models.CartEvent
	var kind string
	var lineItems, customer, mutationInfo []byte
	var totalPrice, subtotalPrice string

	err := rows.Scan(&ev.ID, &ev.Shop, &ev.CartToken, &ev.CartID, &kind, &lineItems,
		&customer, &totalPrice, &subtotalPrice, &mutationInfo, &ev.CreatedAt)
	if err != nil {
		return models.CartEvent{}, err
	}
	if err := hydrateEvent(&ev, kind, lineItems, customer, mutationInfo, totalPrice, subtotalPrice); err != nil {
		return models.CartEvent{}, err
	}
	return ev, nil
}

func hydrateEvent(ev *models.CartEvent, kind string, lineItems, customer, mutationInfo []byte, totalPrice, subtotalPrice string) error {
	ev.Kind = models.EventKind(kind)

	if err := json.Unmarshal(lineItems, &ev.LineItems); err != nil {
		return err
	}
	if len(customer) > 0 {
		ev.Customer = &models.Customer{}
		if err := json.Unmarshal(customer, ev.Customer); err != nil {
			return err
		}
	}
	if len(mutationInfo) > 0 {
		ev.MutationInfo = &models.MutationInfo{}
		if err := json.Unmarshal(mutationInfo, ev.MutationInfo); err != nil {
			return err
		}
	}

	var err error
	if ev.TotalPrice, err = decimal.NewFromString(totalPrice); err != nil {
		return err
	}
	if ev.SubtotalPrice, err = decimal.NewFromString(subtotalPrice); err != nil {
		return err
	}
	return nil
}
