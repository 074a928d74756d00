// Package httpserver wires the echo server, route groups, health probes and
// the JSON response envelope.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Component and overall health states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// ComponentStatus is the state of one backing component, e.g. mongodb.
type ComponentStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body of every probe.
type HealthResponse struct {
	Service    string            `json:"service,omitempty"`
	Status     string            `json:"status"`
	CheckedAt  *time.Time        `json:"checked_at,omitempty"`
	Components []ComponentStatus `json:"components,omitempty"`
}

// HealthChecker reports per-component health. A component reported unhealthy
// takes the service out of rotation; degraded ones do not.
type HealthChecker interface {
	GetHealthStatus(ctx context.Context) []ComponentStatus
}

// Summarize folds component states into one: any unhealthy component wins,
// then any degraded one.
func Summarize(components []ComponentStatus) string {
	overall := StatusHealthy
	for _, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// HealthEndpoints serves the liveness, readiness and details probes.
type HealthEndpoints struct {
	checker HealthChecker
	service string
	now     func() time.Time
}

// HealthOption configures HealthEndpoints.
type HealthOption func(*HealthEndpoints)

// WithServiceName labels every probe response, e.g. "claimservice-worker".
func WithServiceName(name string) HealthOption {
	return func(h *HealthEndpoints) {
		h.service = name
	}
}

// NewHealthEndpoints creates the probes. A nil checker is always ready.
func NewHealthEndpoints(checker HealthChecker, opts ...HealthOption) *HealthEndpoints {
	h := &HealthEndpoints{
		checker: checker,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts GET /health, GET /ready and GET /health/details.
func (h *HealthEndpoints) Register(e *echo.Echo) {
	e.GET("/health", h.live)
	e.GET("/ready", h.ready)
	e.GET("/health/details", h.details)
}

// live answers 200 as long as the process serves requests; it runs no checks.
func (h *HealthEndpoints) live(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Service: h.service,
		Status:  StatusHealthy,
	})
}

func (h *HealthEndpoints) ready(c echo.Context) error {
	resp := h.probe(c.Request().Context())
	if resp.Status == StatusUnhealthy {
		resp.Status = StatusNotReady
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	resp.Status = StatusReady
	return c.JSON(http.StatusOK, resp)
}

func (h *HealthEndpoints) details(c echo.Context) error {
	resp := h.probe(c.Request().Context())
	code := http.StatusOK
	if resp.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

// probe runs the checks once per request.
func (h *HealthEndpoints) probe(ctx context.Context) HealthResponse {
	resp := HealthResponse{Service: h.service, Status: StatusHealthy}
	if h.checker == nil {
		return resp
	}
	at := h.now().UTC()
	resp.CheckedAt = &at
	resp.Components = h.checker.GetHealthStatus(ctx)
	resp.Status = Summarize(resp.Components)
	return resp
}

// RegisterHealthEndpoints mounts the probes on the router's echo instance.
func (r *Router) RegisterHealthEndpoints(checker HealthChecker, opts ...HealthOption) {
	NewHealthEndpoints(checker, opts...).Register(r.echo)
}
