package httpserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/claimservice/internal/infrastructure/httpserver"
	"github.com/lllypuk/claimservice/internal/middleware"
)

type stubValidator struct {
	roles []string
}

func (s stubValidator) ValidateToken(_ context.Context, token string) (*middleware.TokenClaims, error) {
	if token != "good" {
		return nil, middleware.ErrInvalidToken
	}
	return &middleware.TokenClaims{UserID: "u1", Roles: s.roles}, nil
}

func newTestRouter(roles []string) (*echo.Echo, *httpserver.Router) {
	e := echo.New()
	config := httpserver.DefaultRouterConfig()
	config.AuthMiddleware = middleware.Auth(middleware.AuthConfig{TokenValidator: stubValidator{roles: roles}})
	router := httpserver.NewRouter(e, config)

	router.Public().GET("/claims/meta", func(c echo.Context) error {
		return c.String(http.StatusOK, "meta")
	})
	router.Protected().GET("/claims", func(c echo.Context) error {
		return c.String(http.StatusOK, middleware.GetUserID(c))
	})
	return e, router
}

func serve(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestDefaultRouterConfig(t *testing.T) {
	config := httpserver.DefaultRouterConfig()

	assert.NotNil(t, config.Logger)
	assert.Equal(t, httpserver.DefaultAPIPrefix, config.APIPrefix)
	assert.Equal(t, middleware.RoleUser, config.RequiredRole)
	assert.NotNil(t, config.RecoveryConfig.Logger)
}

func TestRouter_Groups(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		token      string
		roles      []string
		wantStatus int
		wantBody   string
	}{
		{name: "public without token", path: "/api/claims/meta", wantStatus: http.StatusOK, wantBody: "meta"},
		{name: "protected without token", path: "/api/claims", wantStatus: http.StatusUnauthorized},
		{name: "protected with bad token", path: "/api/claims", token: "bad", roles: []string{"user"}, wantStatus: http.StatusUnauthorized},
		{name: "protected without role", path: "/api/claims", token: "good", roles: []string{"auditor"}, wantStatus: http.StatusForbidden},
		{name: "protected with role", path: "/api/claims", token: "good", roles: []string{"user"}, wantStatus: http.StatusOK, wantBody: "u1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestRouter(tt.roles)

			rec := serve(e, http.MethodGet, tt.path, tt.token)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestRouter_NoAuthMiddleware(t *testing.T) {
	e := echo.New()
	config := httpserver.DefaultRouterConfig()
	config.APIPrefix = ""
	router := httpserver.NewRouter(e, config)
	router.Protected().GET("/claims", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	rec := serve(e, http.MethodGet, "/api/claims", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_GlobalMiddleware(t *testing.T) {
	e, router := newTestRouter([]string{"user"})
	router.Public().GET("/boom", func(echo.Context) error {
		panic("boom")
	})

	t.Run("recovers panics", func(t *testing.T) {
		rec := serve(e, http.MethodGet, "/api/boom", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
	})

	t.Run("sets request id", func(t *testing.T) {
		rec := serve(e, http.MethodGet, "/api/claims/meta", "")

		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})
}

func TestRouter_RateLimitMiddleware(t *testing.T) {
	e := echo.New()
	config := httpserver.DefaultRouterConfig()
	config.RateLimitMiddleware = middleware.RateLimit(middleware.RateLimitConfig{
		Store: middleware.NewMemoryRateLimitStore(),
		Limit: 1,
	})
	router := httpserver.NewRouter(e, config)
	router.Public().GET("/ping", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	first := serve(e, http.MethodGet, "/api/ping", "")
	second := serve(e, http.MethodGet, "/api/ping", "")

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

type testRegistrar struct {
	path string
}

func (r testRegistrar) RegisterRoutes(router *httpserver.Router) {
	router.Public().GET(r.path, func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
}

func TestRouter_RegisterAll(t *testing.T) {
	e := echo.New()
	router := httpserver.NewRouter(e, httpserver.DefaultRouterConfig())

	router.RegisterAll(testRegistrar{path: "/a"}, testRegistrar{path: "/b"})
	router.PrintRoutes()

	assert.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/api/a", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/api/b", "").Code)
}

func TestRouter_RegisterMetricsEndpoint(t *testing.T) {
	e := echo.New()
	router := httpserver.NewRouter(e, httpserver.DefaultRouterConfig())
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "router_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	router.RegisterMetricsEndpoint(registry)
	rec := serve(e, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "router_test_total 1")
}

type stubHealthChecker struct {
	components []httpserver.ComponentStatus
}

func (s stubHealthChecker) GetHealthStatus(context.Context) []httpserver.ComponentStatus {
	return s.components
}

func TestRouter_RegisterHealthEndpoints(t *testing.T) {
	healthy := []httpserver.ComponentStatus{{Name: "mongodb", Status: httpserver.StatusHealthy}}
	degraded := []httpserver.ComponentStatus{
		{Name: "mongodb", Status: httpserver.StatusHealthy},
		{Name: "redis", Status: httpserver.StatusDegraded},
	}
	down := []httpserver.ComponentStatus{
		{Name: "mongodb", Status: httpserver.StatusUnhealthy, Message: "ping failed"},
		{Name: "redis", Status: httpserver.StatusDegraded},
	}

	tests := []struct {
		name       string
		checker    httpserver.HealthChecker
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "liveness", checker: stubHealthChecker{}, path: "/health", wantStatus: http.StatusOK, wantBody: httpserver.StatusHealthy},
		{name: "ready", checker: stubHealthChecker{components: healthy}, path: "/ready", wantStatus: http.StatusOK, wantBody: httpserver.StatusReady},
		{name: "not ready", checker: stubHealthChecker{components: down}, path: "/ready", wantStatus: http.StatusServiceUnavailable, wantBody: httpserver.StatusNotReady},
		{name: "nil checker is ready", checker: nil, path: "/ready", wantStatus: http.StatusOK, wantBody: httpserver.StatusReady},
		{name: "details degraded", checker: stubHealthChecker{components: degraded}, path: "/health/details", wantStatus: http.StatusOK, wantBody: httpserver.StatusDegraded},
		{name: "ready while degraded", checker: stubHealthChecker{components: degraded}, path: "/ready", wantStatus: http.StatusOK, wantBody: httpserver.StatusReady},
		{name: "details unhealthy", checker: stubHealthChecker{components: down}, path: "/health/details", wantStatus: http.StatusServiceUnavailable, wantBody: "ping failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			router := httpserver.NewRouter(e, httpserver.DefaultRouterConfig())
			router.RegisterHealthEndpoints(tt.checker)

			rec := serve(e, http.MethodGet, tt.path, "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name       string
		components []httpserver.ComponentStatus
		want       string
	}{
		{name: "no components", want: httpserver.StatusHealthy},
		{name: "all healthy", components: []httpserver.ComponentStatus{{Status: httpserver.StatusHealthy}}, want: httpserver.StatusHealthy},
		{
			name:       "degraded",
			components: []httpserver.ComponentStatus{{Status: httpserver.StatusHealthy}, {Status: httpserver.StatusDegraded}},
			want:       httpserver.StatusDegraded,
		},
		{
			name:       "unhealthy wins",
			components: []httpserver.ComponentStatus{{Status: httpserver.StatusDegraded}, {Status: httpserver.StatusUnhealthy}},
			want:       httpserver.StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, httpserver.Summarize(tt.components))
		})
	}
}

func TestHealthEndpoints_ServiceName(t *testing.T) {
	e := echo.New()
	checker := stubHealthChecker{components: []httpserver.ComponentStatus{{Name: "mongodb", Status: httpserver.StatusHealthy}}}
	httpserver.NewHealthEndpoints(checker, httpserver.WithServiceName("claimservice")).Register(e)

	rec := serve(e, http.MethodGet, "/health/details", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"service":"claimservice"`)
	assert.Contains(t, rec.Body.String(), `"checked_at"`)
	assert.Contains(t, rec.Body.String(), `"name":"mongodb"`)
}
