package mutation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/cartops/cartguard/internal/models"
)

// StorefrontTier applies a plan through the storefront cart API
// (POST /cart/update.js). It addresses the cart by its token, so it works
// without an admin access token and covers shops whose session is missing
// or whose admin call was rejected.
type StorefrontTier struct {
	client *http.Client
}

func NewStorefrontTier(client *http.Client) *StorefrontTier {
	return &StorefrontTier{client: client}
}

func (t *StorefrontTier) Name() models.Tier { return models.TierStorefront }

// storefrontCart is the cart resource returned by /cart/update.js.
// Storefront prices are integer cents.
type storefrontCart struct {
	Token string `json:"token"`
	Items []struct {
		VariantID int64  `json:"variant_id"`
		ProductID int64  `json:"product_id"`
		Title     string `json:"title"`
		Quantity  int    `json:"quantity"`
		Price     int64  `json:"price"`
	} `json:"items"`
	TotalPrice         int64 `json:"total_price"`
	ItemsSubtotalPrice int64 `json:"items_subtotal_price"`
}

func (t *StorefrontTier) Attempt(ctx context.Context, snap models.CartSnapshot, plan models.ReductionPlan) (*models.AdjustmentOutcome, error) {
	updates := make(map[string]int, len(snap.LineItems))
	for i, li := range snap.LineItems {
		updates[strconv.FormatInt(li.VariantID, 10)] = plan.NewQuantityFor(i, li.Quantity)
	}

	reqBody, err := json.Marshal(map[string]any{"updates": updates})
	if err != nil {
		return nil, newError(models.TierStorefront, KindBadResponse, err)
	}

	url := fmt.Sprintf("https://%s/cart/update.js", snap.Shop)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, newError(models.TierStorefront, KindNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	// The storefront API resolves the cart from the cart cookie.
	req.AddCookie(&http.Cookie{Name: "cart", Value: snap.Token})

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(models.TierStorefront, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(models.TierStorefront, KindBadResponse, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(models.TierStorefront, KindRemoteRejected, fmt.Errorf("status %d", resp.StatusCode))
	}

	var cart storefrontCart
	if err := json.Unmarshal(raw, &cart); err != nil {
		return nil, newError(models.TierStorefront, KindBadResponse, err)
	}

	itemsAfter := 0
	resultLines := make([]models.LineItem, 0, len(cart.Items))
	for _, it := range cart.Items {
		itemsAfter += it.Quantity
		resultLines = append(resultLines, models.LineItem{
			VariantID: it.VariantID,
			ProductID: it.ProductID,
			Title:     it.Title,
			Quantity:  it.Quantity,
			Price:     decimal.New(it.Price, -2),
		})
	}

	return &models.AdjustmentOutcome{
		Tier:          models.TierStorefront,
		LineItems:     resultLines,
		TotalPrice:    decimal.New(cart.TotalPrice, -2),
		SubtotalPrice: decimal.New(cart.ItemsSubtotalPrice, -2),
		ItemsAfter:    itemsAfter,
		Adjustments:   plan.Adjustments,
		Simulated:     false,
		Raw:           raw,
	}, nil
}
