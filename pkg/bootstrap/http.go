package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"artspire/pkg/health"
	"artspire/pkg/metrics"
	"artspire/pkg/middleware"
	"artspire/pkg/ratelimit"
	"artspire/pkg/tracing"
)

// NewRouter builds the gin engine shared by the HTTP-facing services:
// tracing, recovery, access logs, request ids, optional rate limiting, and
// the /health and /metrics endpoints. The rate limiter's cleanup stops with
// ctx.
func (b *Base) NewRouter(ctx context.Context, serviceName string, registry *health.CheckerRegistry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if b.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName))
	}

	router.Use(middleware.RecoveryMiddleware(b.Logger))
	router.Use(middleware.LoggerMiddleware(b.Logger))
	router.Use(middleware.RequestIDMiddleware())

	if b.Config.RateLimit.Enabled {
		metrics.RegisterGatewayMetrics()
		rateLimitConfig := ratelimit.FromConfig(b.Config.RateLimit)
		router.Use(ratelimit.RateLimitMiddleware(ctx, rateLimitConfig))
		b.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	router.GET("/health", gin.WrapF(health.Handler(registry)))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

func (b *Base) NewHTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", b.Config.Server.Port),
		Handler:      handler,
		ReadTimeout:  b.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: b.Config.Server.WriteTimeoutSeconds,
	}
}
