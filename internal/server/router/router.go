package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/flockbook/internal/server/handlers"
)

// RequestObserver records per-request metrics.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// Pinger checks that a backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

const readinessTimeout = 2 * time.Second

// Dependencies groups what the router exposes. Webhook, Metrics, Observer
// and Readiness are optional.
type Dependencies struct {
	Forms    *handlers.FormHandler
	Entries  *handlers.EntryHandler
	Webhook  *handlers.WebhookHandler
	Metrics  http.Handler
	Observer RequestObserver
	// Readiness maps a store name to its check; /healthz fails when one does.
	Readiness map[string]Pinger
}

// New wires the Gin engine with required routes and middlewares.
func New(deps Dependencies, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))
	if deps.Observer != nil {
		r.Use(metricsMiddleware(deps.Observer))
	}

	forms := r.Group("/forms")
	forms.POST("", deps.Forms.Create)
	forms.GET("/:id", deps.Forms.Get)
	forms.PUT("/:id/date", deps.Forms.SwitchDate)
	forms.POST("/:id/reload", deps.Forms.Reload)
	forms.PUT("/:id/draft", deps.Forms.EditDraft)
	forms.POST("/:id/submit", deps.Forms.Submit)
	forms.DELETE("/:id", deps.Forms.Close)

	r.GET("/lots/:id/daily-entry/:date", deps.Entries.DailyEntry)
	r.GET("/lots/:id/submissions", deps.Entries.Submissions)
	r.GET("/stock/sufficiency", deps.Entries.StockSufficiency)

	if deps.Webhook != nil {
		r.GET("/webhook", deps.Webhook.Verify)
		r.POST("/webhook", deps.Webhook.Receive)
		r.POST("/send-message", deps.Webhook.SendMessage)
	}

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	r.GET("/healthz", healthHandler(deps.Readiness, logger))

	if logger != nil {
		logger.Info("router initialized", zap.Bool("whatsapp", deps.Webhook != nil))
	}

	return r
}

func healthHandler(checks map[string]Pinger, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if len(checks) == 0 {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		status, code := "ok", http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				logger.Warn("readiness check failed", zap.String("store", name), zap.Error(err))
				results[name] = "unavailable"
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		c.JSON(code, gin.H{"status": status, "checks": results})
	}
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// metricsMiddleware labels requests by route template so form ids do not
// explode label cardinality.
func metricsMiddleware(observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		observer.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
