package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cartops/cartguard/internal/models"
	"github.com/cartops/cartguard/internal/store"
)

// RegisterCartEventRoutes registers the read path over the audit trail.
//
// GET /api/cart-events?shop=...&event=...&page=...&limit=...
// GET /api/cart-events/summary?shop=...
// GET /api/cart-events/:id?shop=...
//
// Lists are newest first with a stable secondary sort, and omit raw payloads;
// the detail endpoint includes them.
func RegisterCartEventRoutes(r gin.IRoutes, st *store.PostgresStore) {
	r.GET("/api/cart-events", func(c *gin.Context) {
		shop := c.Query("shop")
		if shop == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "shop parameter required"})
			return
		}

		page := intQuery(c, "page", 1)
		limit := intQuery(c, "limit", 10)
		if limit > 100 {
			limit = 100
		}

		filter := store.EventFilter{
			Shop: shop,
			Kind: models.EventKind(c.Query("event")),
		}

		events, total, err := st.QueryEvents(c.Request.Context(), filter, page, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}

		pages := total / int64(limit)
		if total%int64(limit) != 0 {
			pages++
		}

		c.JSON(http.StatusOK, gin.H{
			"events": events,
			"pagination": gin.H{
				"page":  page,
				"limit": limit,
				"total": total,
				"pages": pages,
			},
		})
	})

	r.GET("/api/cart-events/summary", func(c *gin.Context) {
		shop := c.Query("shop")
		if shop == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "shop parameter required"})
			return
		}

		since := time.Now().UTC().AddDate(0, 0, -30)
		summary, err := st.Summarize(c.Request.Context(), shop, since)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"stats": summary})
	})

	r.GET("/api/cart-events/:id", func(c *gin.Context) {
		shop := c.Query("shop")
		id := c.Param("id")
		if shop == "" || id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "shop and id parameters required"})
			return
		}

		event, err := st.GetEvent(c.Request.Context(), shop, id)
		if errors.Is(err, store.ErrEventNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "cart event not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"event": event})
	})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
