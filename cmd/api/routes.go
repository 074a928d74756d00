package main

import (
	"github.com/labstack/echo/v4"

	httphandler "github.com/lllypuk/claimservice/internal/handler/http"
	"github.com/lllypuk/claimservice/internal/infrastructure/httpserver"
	"github.com/lllypuk/claimservice/internal/middleware"
)

// SetupRoutes configures all routes and middleware chains on e.
func SetupRoutes(e *echo.Echo, c *Container) *httpserver.Router {
	authConfig := middleware.DefaultAuthConfig()
	authConfig.Logger = c.Logger
	authConfig.TokenValidator = c.TokenValidator

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.Logger = c.Logger

	recoveryConfig := middleware.DefaultRecoveryConfig()
	recoveryConfig.Logger = c.Logger

	corsConfig := middleware.DefaultCORSConfig()
	if len(c.Config.CORS.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = c.Config.CORS.AllowedOrigins
	}

	routerConfig := httpserver.DefaultRouterConfig()
	routerConfig.Logger = c.Logger
	routerConfig.AuthMiddleware = middleware.Auth(authConfig)
	routerConfig.CORSConfig = corsConfig
	routerConfig.LoggingConfig = loggingConfig
	routerConfig.RecoveryConfig = recoveryConfig
	routerConfig.RateLimitMiddleware = rateLimitMiddleware(c)

	router := httpserver.NewRouter(e, routerConfig)

	router.RegisterHealthEndpoints(c.Health, httpserver.WithServiceName(c.Config.App.Name))
	router.RegisterMetricsEndpoint(c.MetricsRegistry)
	router.RegisterAll(httphandler.NewEntityHandlers(c.Registry, c.Catalog)...)

	if c.Config.IsDevelopment() {
		router.PrintRoutes()
	}

	return router
}

// rateLimitMiddleware returns nil when rate limiting is disabled.
func rateLimitMiddleware(c *Container) echo.MiddlewareFunc {
	if c.RateLimitStore == nil {
		return nil
	}

	rl := middleware.DefaultRateLimitConfig()
	rl.Logger = c.Logger
	rl.Store = c.RateLimitStore
	rl.Limit = c.Config.RateLimit.Limit
	rl.Window = c.Config.RateLimit.Window
	rl.BurstSize = c.Config.RateLimit.Burst
	return middleware.RateLimit(rl)
}
