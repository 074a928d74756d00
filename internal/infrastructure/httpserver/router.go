package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lllypuk/claimservice/internal/middleware"
)

// DefaultAPIPrefix prefixes every resource route.
const DefaultAPIPrefix = "/api"

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	// Logger is the structured logger for router events.
	Logger *slog.Logger

	// AuthMiddleware authenticates requests on protected routes.
	AuthMiddleware echo.MiddlewareFunc

	// RequiredRole is checked after authentication on protected routes.
	// Empty means any authenticated caller.
	RequiredRole string

	// RateLimitMiddleware is the rate limiting middleware.
	RateLimitMiddleware echo.MiddlewareFunc

	// CORSConfig is the CORS configuration.
	CORSConfig middleware.CORSConfig

	// LoggingConfig is the logging middleware configuration.
	LoggingConfig middleware.LoggingConfig

	// RecoveryConfig is the recovery middleware configuration.
	RecoveryConfig middleware.RecoveryConfig

	// APIPrefix is the prefix for all API routes. Default is "/api".
	APIPrefix string
}

// DefaultRouterConfig returns a RouterConfig with sensible defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Logger:         slog.Default(),
		RequiredRole:   middleware.RoleUser,
		CORSConfig:     middleware.DefaultCORSConfig(),
		LoggingConfig:  middleware.DefaultLoggingConfig(),
		RecoveryConfig: middleware.DefaultRecoveryConfig(),
		APIPrefix:      DefaultAPIPrefix,
	}
}

// Router manages HTTP route groups and middleware chains.
type Router struct {
	echo   *echo.Echo
	config RouterConfig
	logger *slog.Logger

	public    *echo.Group
	protected *echo.Group
}

// RouteRegistrar registers a set of routes on the router.
type RouteRegistrar interface {
	RegisterRoutes(r *Router)
}

// NewRouter creates a new router with the given configuration.
func NewRouter(e *echo.Echo, config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.APIPrefix == "" {
		config.APIPrefix = DefaultAPIPrefix
	}

	r := &Router{
		echo:   e,
		config: config,
		logger: config.Logger,
	}

	r.setupGlobalMiddleware()
	r.setupRouteGroups()

	return r
}

func (r *Router) setupGlobalMiddleware() {
	// Recovery first so it sees panics from every other middleware.
	r.echo.Use(middleware.RecoveryWithConfig(r.config.RecoveryConfig))
	r.echo.Use(middleware.CORS(r.config.CORSConfig))
	r.echo.Use(middleware.Logging(r.config.LoggingConfig))

	if r.config.RateLimitMiddleware != nil {
		r.echo.Use(r.config.RateLimitMiddleware)
	}
}

func (r *Router) setupRouteGroups() {
	r.public = r.echo.Group(r.config.APIPrefix)

	if r.config.AuthMiddleware == nil {
		r.protected = r.public
		r.logger.Warn("no auth middleware configured, protected routes are public")
		return
	}

	chain := []echo.MiddlewareFunc{r.config.AuthMiddleware}
	if r.config.RequiredRole != "" {
		chain = append(chain, middleware.RequireRole(r.config.RequiredRole))
	}
	r.protected = r.public.Group("", chain...)
}

// Echo returns the underlying Echo instance.
func (r *Router) Echo() *echo.Echo {
	return r.echo
}

// Public returns the unauthenticated API group.
func (r *Router) Public() *echo.Group {
	return r.public
}

// Protected returns the API group behind authentication and the required role.
func (r *Router) Protected() *echo.Group {
	return r.protected
}

// RegisterAll lets each registrar add its routes.
func (r *Router) RegisterAll(registrars ...RouteRegistrar) {
	for _, registrar := range registrars {
		registrar.RegisterRoutes(r)
	}
}

// PrintRoutes logs all registered routes at debug level.
func (r *Router) PrintRoutes() {
	for _, route := range r.echo.Routes() {
		r.logger.Debug("registered route",
			slog.String("method", route.Method),
			slog.String("path", route.Path),
			slog.String("name", route.Name),
		)
	}
}

// RegisterMetricsEndpoint exposes gatherer on GET /metrics. A nil gatherer
// serves the default registry.
func (r *Router) RegisterMetricsEndpoint(gatherer prometheus.Gatherer) {
	handler := promhttp.Handler()
	if gatherer != nil {
		handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	r.echo.GET("/metrics", echo.WrapHandler(handler))
}
