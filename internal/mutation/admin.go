package mutation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cartops/cartguard/internal/models"
)

const draftOrderUpdateMutation = `
mutation draftOrderUpdate($id: ID!, $input: DraftOrderInput!) {
  draftOrderUpdate(id: $id, input: $input) {
    draftOrder {
      id
      name
      totalPrice
      subtotalPrice
      lineItems(first: 20) {
        edges {
          node {
            id
            title
            quantity
            variant {
              id
              price
            }
          }
        }
      }
    }
    userErrors {
      field
      message
    }
  }
}`

// AdminTier applies a plan through the admin GraphQL API (draftOrderUpdate).
// It needs a per-shop access token; when none exists the attempt fails with
// KindNoCredentials before any network call.
type AdminTier struct {
	client     *http.Client
	tokens     TokenSource
	apiVersion string
}

func NewAdminTier(client *http.Client, tokens TokenSource, apiVersion string) *AdminTier {
	return &AdminTier{client: client, tokens: tokens, apiVersion: apiVersion}
}

func (t *AdminTier) Name() models.Tier { return models.TierAdmin }

// graphQLRequest is the envelope for admin GraphQL calls.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type draftOrderResponse struct {
	Data struct {
		DraftOrderUpdate struct {
			DraftOrder *struct {
				ID            string `json:"id"`
				Name          string `json:"name"`
				TotalPrice    string `json:"totalPrice"`
				SubtotalPrice string `json:"subtotalPrice"`
				LineItems     struct {
					Edges []struct {
						Node struct {
							ID       string `json:"id"`
							Title    string `json:"title"`
							Quantity int    `json:"quantity"`
							Variant  *struct {
								ID    string `json:"id"`
								Price string `json:"price"`
							} `json:"variant"`
						} `json:"node"`
					} `json:"edges"`
				} `json:"lineItems"`
			} `json:"draftOrder"`
			UserErrors []struct {
				Field   []string `json:"field"`
				Message string   `json:"message"`
			} `json:"userErrors"`
		} `json:"draftOrderUpdate"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (t *AdminTier) Attempt(ctx context.Context, snap models.CartSnapshot, plan models.ReductionPlan) (*models.AdjustmentOutcome, error) {
	token, err := t.tokens.AccessToken(ctx, snap.Shop)
	if err != nil {
		return nil, newError(models.TierAdmin, KindNoCredentials, err)
	}

	// The mutation carries every line at its target quantity, reduced or not.
	lineItems := make([]map[string]any, 0, len(snap.LineItems))
	for i, li := range snap.LineItems {
		lineItems = append(lineItems, map[string]any{
			"variantId": variantGID(li.VariantID),
			"quantity":  plan.NewQuantityFor(i, li.Quantity),
		})
	}

	reqBody, err := json.Marshal(graphQLRequest{
		Query: draftOrderUpdateMutation,
		Variables: map[string]any{
			"id":    draftOrderGID(snap.ID),
			"input": map[string]any{"lineItems": lineItems},
		},
	})
	if err != nil {
		return nil, newError(models.TierAdmin, KindBadResponse, err)
	}

	url := fmt.Sprintf("https://%s/admin/api/%s/graphql.json", snap.Shop, t.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, newError(models.TierAdmin, KindNetwork, err)
	}
	req.Header.Set("X-Shopify-Access-Token", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(models.TierAdmin, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(models.TierAdmin, KindBadResponse, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(models.TierAdmin, KindRemoteRejected, fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed draftOrderResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, newError(models.TierAdmin, KindBadResponse, err)
	}
	if len(parsed.Errors) > 0 {
		return nil, newError(models.TierAdmin, KindRemoteRejected, fmt.Errorf("graphql: %s", parsed.Errors[0].Message))
	}
	if ue := parsed.Data.DraftOrderUpdate.UserErrors; len(ue) > 0 {
		return nil, newError(models.TierAdmin, KindRemoteRejected, fmt.Errorf("userErrors: %s", ue[0].Message))
	}
	order := parsed.Data.DraftOrderUpdate.DraftOrder
	if order == nil {
		return nil, newError(models.TierAdmin, KindBadResponse, fmt.Errorf("draftOrder missing from response"))
	}

	itemsAfter := 0
	resultLines := make([]models.LineItem, 0, len(order.LineItems.Edges))
	for _, edge := range order.LineItems.Edges {
		node := edge.Node
		itemsAfter += node.Quantity
		li := models.LineItem{
			Title:    node.Title,
			Quantity: node.Quantity,
		}
		if node.Variant != nil {
			li.VariantID = parseGID(node.Variant.ID)
			li.Price, _ = decimal.NewFromString(node.Variant.Price)
		}
		resultLines = append(resultLines, li)
	}

	total, _ := decimal.NewFromString(order.TotalPrice)
	subtotal, _ := decimal.NewFromString(order.SubtotalPrice)

	return &models.AdjustmentOutcome{
		Tier:          models.TierAdmin,
		LineItems:     resultLines,
		TotalPrice:    total,
		SubtotalPrice: subtotal,
		ItemsAfter:    itemsAfter,
		Adjustments:   plan.Adjustments,
		Simulated:     false,
		Raw:           raw,
	}, nil
}

func variantGID(id int64) string {
	return fmt.Sprintf("gid://shopify/ProductVariant/%d", id)
}

func draftOrderGID(id int64) string {
	return fmt.Sprintf("gid://shopify/DraftOrder/%d", id)
}

// parseGID extracts the numeric ID from a gid://shopify/... identifier.
func parseGID(gid string) int64 {
	idx := strings.LastIndex(gid, "/")
	if idx < 0 {
		return 0
	}
	n, _ := strconv.ParseInt(gid[idx+1:], 10, 64)
	return n
}
