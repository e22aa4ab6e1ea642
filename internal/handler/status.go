package handler

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bellvik/transport-planner/internal/middleware"
)

// Status handles GET /api/v1/status
//
// Response 200: call counts for the last hour and day, per-provider
// statistics, cache counters and the provider serving each concern.
func (h *Handler) Status(c *gin.Context) {
	st, err := h.status.Status(c.Request.Context())
	if err != nil {
		log.Printf("handler: status: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "failed to collect status"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// CacheStats handles GET /api/v1/admin/cache/stats
//
// Response 200:
//
//	{"total":12,"active":10,"expired":2,"top_origins":[{"cell":"v0v2q8h","lat":56.83,"lon":60.6,"count":4}]}
func (h *Handler) CacheStats(c *gin.Context) {
	st, err := h.status.CacheStats(c.Request.Context())
	if err != nil {
		log.Printf("handler: cache stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read cache statistics"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// PurgeCache handles POST /api/v1/admin/cache/purge
//
// Query params:
//   - all (optional) true removes every entry, otherwise only expired ones
//
// Response 200:
//
//	{"deleted":3,"all":false}
func (h *Handler) PurgeCache(c *gin.Context) {
	all := false
	if raw := c.Query("all"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "all must be a boolean"})
			return
		}
		all = v
	}

	n, err := h.status.PurgeCache(c.Request.Context(), all)
	if err != nil {
		log.Printf("handler: purge cache: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to purge cache"})
		return
	}
	log.Printf("handler: purge cache: all=%t deleted=%d by=%s", all, n, c.GetString(middleware.ContextKeyUsername))
	c.JSON(http.StatusOK, gin.H{"deleted": n, "all": all})
}
