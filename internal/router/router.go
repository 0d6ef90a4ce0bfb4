package router

import (
	"net/http"
	"strings"

	"github.com/paypro-bridge/internal/cache"
	"github.com/paypro-bridge/internal/config"
	publichandlers "github.com/paypro-bridge/internal/http/handlers/public"
	"github.com/paypro-bridge/internal/logger"
	"github.com/paypro-bridge/internal/metrics"
	"github.com/paypro-bridge/internal/provider"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// SetupRouter builds the HTTP engine.
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "ppb"
	}
	createRule := NewCreateRateLimitRule(redisPrefix, cfg.Security.CreateRateLimit)

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(metrics.Middleware())
	r.Use(CORSMiddleware(cfg.CORS))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	api := r.Group("/api/paypro")
	{
		api.POST("/create", RateLimitMiddleware(cache.Client(), createRule, KeyByCreateRequest), publicHandler.CreatePayment)
		api.POST("/callback", publicHandler.PayProCallback)
		api.POST("/callback/invoices", publicHandler.PayProInvoiceCallback)
		api.POST("/verify", publicHandler.VerifyPayment)
		api.GET("/orders/:order_id", publicHandler.GetOrder)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	return r
}
