package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PratikDhanave/access-status-service/internal/auth"
	"github.com/PratikDhanave/access-status-service/internal/config"
	"github.com/PratikDhanave/access-status-service/internal/extract"
	"github.com/PratikDhanave/access-status-service/internal/handlers"
	"github.com/PratikDhanave/access-status-service/internal/ingest"
	"github.com/PratikDhanave/access-status-service/internal/reconcile"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Store     Pinger
	Engine    *reconcile.Engine
	Ingest    *ingest.Service
	Extractor *extract.Extractor
	Log       *zap.Logger
	// Now is used for relative "updated" times; defaults to time.Now.
	Now func() time.Time
}

// NewRouter wires public endpoints and authenticated APIs.
// Public: /health, /ready, status reads
// Token: /email_webhook
// Operator (X-API-Key): ticket association
func NewRouter(cfg config.Config, d Deps) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(d.Log))

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the store is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := d.Store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	handlers.RegisterStatusRoutes(r, d.Engine, d.Now)

	hook := r.Group("/")
	hook.Use(auth.WebhookToken(cfg.WebhookCredential))
	handlers.RegisterWebhookRoutes(hook, d.Ingest, d.Log)

	// Operator group enforces operator context via X-API-Key.
	op := r.Group("/")
	op.Use(auth.APIKeyMiddleware(cfg.APIKeys))
	handlers.RegisterTicketRoutes(op, d.Engine, d.Extractor, d.Log)

	return r
}
