package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cartops/cartguard/internal/models"
	"github.com/cartops/cartguard/internal/mutation"
	"github.com/cartops/cartguard/internal/session"
	"github.com/cartops/cartguard/internal/store"
)

// CartsUpdateTopic is the only topic this service subscribes to.
const CartsUpdateTopic = "carts/update"

// WebhookAdmin manages webhook subscriptions on the remote admin API and
// mirrors them into the local registration table.
type WebhookAdmin struct {
	store      *store.PostgresStore
	tokens     mutation.TokenSource
	client     *http.Client
	apiVersion string
	appURL     string
	log        *zap.Logger
}

func NewWebhookAdmin(st *store.PostgresStore, tokens mutation.TokenSource, client *http.Client, apiVersion, appURL string, log *zap.Logger) *WebhookAdmin {
	return &WebhookAdmin{
		store:      st,
		tokens:     tokens,
		client:     client,
		apiVersion: apiVersion,
		appURL:     appURL,
		log:        log,
	}
}

// RegisterWebhookAdminRoutes registers subscription management endpoints.
//
// POST   /api/webhooks/register?shop=...   idempotent per (shop, topic)
// GET    /api/webhooks?shop=...
// DELETE /api/webhooks/:id?shop=...
func RegisterWebhookAdminRoutes(r gin.IRoutes, wa *WebhookAdmin) {
	r.POST("/api/webhooks/register", wa.register)
	r.GET("/api/webhooks", wa.list)
	r.DELETE("/api/webhooks/:id", wa.delete)
}

type remoteWebhook struct {
	ID      int64  `json:"id"`
	Topic   string `json:"topic"`
	Address string `json:"address"`
}

func (wa *WebhookAdmin) register(c *gin.Context) {
	shop := c.Query("shop")
	if shop == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shop parameter required"})
		return
	}

	token, err := wa.tokens.AccessToken(c.Request.Context(), shop)
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "shop not authenticated"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
		return
	}

	// Idempotent: a stored registration for the topic means nothing to do.
	existing, err := wa.store.FindRegistration(c.Request.Context(), shop, CartsUpdateTopic)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusOK, gin.H{
			"topic":      CartsUpdateTopic,
			"status":     "already_registered",
			"webhook_id": existing.WebhookID,
		})
		return
	}

	address := wa.appURL + "/webhooks/carts-update"
	created, err := wa.createRemote(c, shop, token, address)
	if err != nil {
		wa.log.Error("remote webhook registration failed",
			zap.String("shop", shop), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "webhook registration failed"})
		return
	}

	reg := models.WebhookRegistration{
		ID:        uuid.NewString(),
		Shop:      shop,
		Topic:     created.Topic,
		WebhookID: created.ID,
		Address:   created.Address,
		CreatedAt: time.Now().UTC(),
	}
	if err := wa.store.UpsertRegistration(c.Request.Context(), reg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db write failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"topic":      created.Topic,
		"status":     "registered",
		"webhook_id": created.ID,
	})
}

func (wa *WebhookAdmin) list(c *gin.Context) {
	shop := c.Query("shop")
	if shop == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shop parameter required"})
		return
	}

	regs, err := wa.store.ListRegistrations(c.Request.Context(), shop)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": regs})
}

func (wa *WebhookAdmin) delete(c *gin.Context) {
	shop := c.Query("shop")
	webhookID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if shop == "" || err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shop and numeric id required"})
		return
	}

	token, err := wa.tokens.AccessToken(c.Request.Context(), shop)
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "shop not authenticated"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
		return
	}

	if err := wa.deleteRemote(c, shop, token, webhookID); err != nil {
		wa.log.Error("remote webhook deletion failed",
			zap.String("shop", shop), zap.Int64("webhook_id", webhookID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "webhook deletion failed"})
		return
	}
	if err := wa.store.DeleteRegistration(c.Request.Context(), shop, webhookID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db write failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "webhook_id": webhookID})
}

func (wa *WebhookAdmin) createRemote(c *gin.Context, shop, token, address string) (*remoteWebhook, error) {
	body, err := json.Marshal(gin.H{
		"webhook": gin.H{
			"topic":   CartsUpdateTopic,
			"address": address,
			"format":  "json",
		},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("https://%s/admin/api/%s/webhooks.json", shop, wa.apiVersion)
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Shopify-Access-Token", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := wa.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var parsed struct {
		Webhook *remoteWebhook `json:"webhook"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	if parsed.Webhook == nil {
		return nil, fmt.Errorf("webhook missing from response")
	}
	return parsed.Webhook, nil
}

func (wa *WebhookAdmin) deleteRemote(c *gin.Context, shop, token string, webhookID int64) error {
	url := fmt.Sprintf("https://%s/admin/api/%s/webhooks/%d.json", shop, wa.apiVersion, webhookID)
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Shopify-Access-Token", token)

	resp, err := wa.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
