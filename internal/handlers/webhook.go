package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cartops/cartguard/internal/models"
	"github.com/cartops/cartguard/internal/pipeline"
	"github.com/cartops/cartguard/internal/webhook"
)

// RegisterWebhookRoutes registers the delivery endpoint.
//
// POST /webhooks/carts-update
//   - Authenticated by HMAC-SHA256 over the raw body; missing headers or a
//     signature mismatch return 401 and nothing is recorded.
//   - Every authenticated delivery is acknowledged with 200, even when
//     downstream processing fails. The sender must never see a failure
//     status for processing errors, or it will redeliver in a storm.
func RegisterWebhookRoutes(r gin.IRoutes, secret []byte, proc *pipeline.Processor, log *zap.Logger) {
	r.POST("/webhooks/carts-update", func(c *gin.Context) {
		// The signature covers the body bytes exactly as sent; read them
		// before any parsing.
		rawBody, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		delivery, ok := webhook.DeliveryHeaders(c.Request.Header)
		if !ok {
			log.Warn("webhook delivery missing required headers")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if !webhook.Verify(rawBody, secret, delivery.Signature) {
			log.Warn("webhook signature mismatch",
				zap.String("shop", delivery.Shop),
				zap.String("topic", delivery.Topic))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "signature verification failed"})
			return
		}

		var snap models.CartSnapshot
		if err := json.Unmarshal(rawBody, &snap); err != nil {
			// Authenticated but malformed: acknowledge so the sender does
			// not retry, and keep the failure in the logs.
			log.Warn("webhook body is not a cart payload",
				zap.String("shop", delivery.Shop),
				zap.Error(err))
			c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
			return
		}
		if len(snap.LineItems) == 0 {
			log.Warn("cart payload has no line items",
				zap.String("shop", delivery.Shop),
				zap.Int64("cart_id", snap.ID))
			c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
			return
		}
		snap.Shop = delivery.Shop
		snap.ReceivedAt = time.Now().UTC()

		result := proc.Process(c.Request.Context(), snap, rawBody)

		resp := gin.H{"status": "ok", "adjusted": result.Adjusted}
		if result.Outcome != nil {
			resp["simulated"] = result.Outcome.Simulated
		}
		c.JSON(http.StatusOK, resp)
	})
}
