// Package adminapi exposes a read-only operator HTTP API: client/pair
// introspection, health, and a Prometheus scrape endpoint. Grounded
// directly on the gin engine wiring (gin.Default, otelgin.Middleware,
// promhttp.Handler via gin.WrapH) and an AuthMiddleware shape adapted
// from tenant CRUD to a read-only snapshot of the registry and pairing
// table — operators get visibility, not a mutation surface.
package adminapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/modelgate/modelgate/internal/pairing"
	"github.com/modelgate/modelgate/internal/registry"
	"github.com/modelgate/modelgate/internal/wire"
)

// Handler serves /admin/* and the ambient /healthz and /metrics
// endpoints.
type Handler struct {
	registry *registry.Registry
	pairing  *pairing.Table
	apiKey   string
}

func NewHandler(reg *registry.Registry, pt *pairing.Table, apiKey string) *Handler {
	return &Handler{registry: reg, pairing: pt, apiKey: apiKey}
}

// authMiddleware mirrors llm-gateway's admin.AuthMiddleware: a static
// shared-secret header check, since the admin surface is operator-only
// and never exposed to tunnel clients.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.apiKey == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-Admin-Key") != h.apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false, "data": nil, "message": "Invalid API key",
				"timestamp": time.Now().Format(time.RFC3339),
			})
			return
		}
		c.Next()
	}
}

// Engine builds the gin.Engine serving the admin API, following
// llm-gateway's middleware stacking order in cmd/server/main.go
// (telemetry first, then the route-specific auth).
func (h *Handler) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("modelgate-admin"))

	r.GET("/healthz", h.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := r.Group("/admin")
	admin.Use(h.authMiddleware())
	admin.GET("/clients", h.listClients)
	admin.GET("/clients/:id", h.getClient)
	admin.GET("/pairs", h.listPairs)

	return r
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// clientView is the wire shape for a single client snapshot, keeping
// registry.Snapshot (an internal type whose layout may change) out of
// the public API response.
type clientView struct {
	ClientID      string            `json:"client_id"`
	UserID        string            `json:"user_id"`
	ConnectedAt   string            `json:"connected_at"`
	Models        []wire.Model      `json:"models"`
	Metrics       *registry.Metrics `json:"metrics,omitempty"`
	LastHeartbeat string            `json:"last_heartbeat,omitempty"`
}

func toClientView(s registry.Snapshot) clientView {
	v := clientView{
		ClientID:    s.ClientID,
		UserID:      s.UserID,
		ConnectedAt: s.ConnectedAt.Format("2006-01-02T15:04:05Z07:00"),
		Models:      s.Models,
		Metrics:     s.Metrics,
	}
	if !s.LastHeartbeat.IsZero() {
		v.LastHeartbeat = s.LastHeartbeat.Format("2006-01-02T15:04:05Z07:00")
	}
	return v
}

func (h *Handler) listClients(c *gin.Context) {
	snaps := h.registry.Snapshots()
	views := make([]clientView, 0, len(snaps))
	for _, s := range snaps {
		views = append(views, toClientView(s))
	}
	c.JSON(http.StatusOK, gin.H{"clients": views, "count": len(views)})
}

func (h *Handler) getClient(c *gin.Context) {
	id := c.Param("id")
	rec := h.registry.Get(id)
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false, "data": nil, "message": "Client not found",
			"timestamp": time.Now().Format(time.RFC3339),
		})
		return
	}
	c.JSON(http.StatusOK, toClientView(rec.Snapshot()))
}

func (h *Handler) listPairs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pending_pairs": h.pairing.Len()})
}
