package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cartops/cartguard/internal/auth"
	"github.com/cartops/cartguard/internal/config"
	"github.com/cartops/cartguard/internal/handlers"
	"github.com/cartops/cartguard/internal/pipeline"
	"github.com/cartops/cartguard/internal/session"
	"github.com/cartops/cartguard/internal/store"
)

// NewRouter wires public endpoints, the webhook delivery endpoint, and the
// authenticated query/admin API.
//
// Public: /health, /ready, /webhooks/carts-update (HMAC-authenticated).
// X-API-Key: /api/cart-events*, /api/webhooks*.
func NewRouter(cfg config.Config, log *zap.Logger, st *store.PostgresStore, sessions *session.Store, proc *pipeline.Processor, wa *handlers.WebhookAdmin) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms both stores are reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		if err := sessions.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// The delivery endpoint authenticates itself via the HMAC signature.
	handlers.RegisterWebhookRoutes(r, []byte(cfg.WebhookSecret), proc, log)

	// Query/admin API behind the static key.
	apiGroup := r.Group("/")
	apiGroup.Use(auth.APIKeyMiddleware(cfg.AdminAPIKey))

	handlers.RegisterCartEventRoutes(apiGroup, st)
	handlers.RegisterWebhookAdminRoutes(apiGroup, wa)

	return r
}
