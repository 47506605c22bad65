package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dossierlabs/dossier-messaging/internal/api/middleware"
	"github.com/dossierlabs/dossier-messaging/internal/config"
	"github.com/dossierlabs/dossier-messaging/internal/dispatcher"
	"github.com/dossierlabs/dossier-messaging/internal/metrics"
	"github.com/dossierlabs/dossier-messaging/internal/usecase/messaging"
	"github.com/dossierlabs/dossier-messaging/internal/usecase/webhook"
)

type Router struct {
	engine       *gin.Engine
	server       *http.Server
	cfg          *config.Config
	messagingSvc *messaging.Service
	webhookSvc   *webhook.Service
	disp         *dispatcher.Dispatcher
	collector    *metrics.Collector
	logger       *zap.Logger
}

func NewRouter(
	cfg *config.Config,
	messagingSvc *messaging.Service,
	webhookSvc *webhook.Service,
	disp *dispatcher.Dispatcher,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Router {
	// Disable GIN default logger
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics(collector.Registry()))
	r.Use(middleware.Logger(logger))

	api := &Router{
		engine:       r,
		cfg:          cfg,
		messagingSvc: messagingSvc,
		webhookSvc:   webhookSvc,
		disp:         disp,
		collector:    collector,
		logger:       logger,
	}

	api.RegisterRoutes()
	return api
}

func (r *Router) RegisterRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Prometheus metrics endpoint
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.collector.Registry(), promhttp.HandlerOpts{})))

	api := r.engine.Group("/api")
	{
		api.POST("/messages", r.CreateMessage)
		api.GET("/messages/:id", r.GetMessage)
		api.GET("/messages/:id/attempts", r.ListMessageAttempts)
	}

	// Provider callbacks
	webhooks := r.engine.Group("/webhooks")
	{
		webhooks.POST("/receipt", r.ReceiptWebhook)
		webhooks.POST("/inbound", r.InboundWebhook)
	}

	// Admin Routes (Protected by ADMIN_API_TOKEN)
	admin := r.engine.Group("/admin")
	admin.Use(r.adminAuth())
	{
		admin.POST("/channels/:channel/pause", r.PauseChannel)
		admin.POST("/channels/:channel/resume", r.ResumeChannel)
	}
}

func (r *Router) Run() error {
	r.server = &http.Server{
		Addr:         ":" + r.cfg.Port,
		Handler:      r.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return r.server.ListenAndServe()
}

func (r *Router) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(r.cfg.AdminAPIToken)
		if expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin_token_not_configured"})
			return
		}

		provided := strings.TrimSpace(c.GetHeader("X-Admin-Token"))
		if provided == "" {
			authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				provided = strings.TrimSpace(authHeader[7:])
			}
		}

		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// Shutdown gracefully shuts down the HTTP server
func (r *Router) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}
