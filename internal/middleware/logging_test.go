package middleware_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/claimservice/internal/application/appcore"
	"github.com/lllypuk/claimservice/internal/middleware"
)

func newLoggedEcho(buf *bytes.Buffer) *echo.Echo {
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	e := echo.New()
	e.Use(middleware.Logging(middleware.LoggingConfig{
		Logger:    logger,
		SkipPaths: []string{"/health"},
	}))
	return e
}

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	return entry
}

func TestDefaultLoggingConfig(t *testing.T) {
	config := middleware.DefaultLoggingConfig()

	assert.NotNil(t, config.Logger)
	assert.Contains(t, config.SkipPaths, "/health")
	assert.Contains(t, config.SkipPaths, "/metrics")
}

func TestLogging_LevelByStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{name: "success", status: http.StatusOK, wantLevel: "INFO"},
		{name: "client error", status: http.StatusNotFound, wantLevel: "WARN"},
		{name: "server error", status: http.StatusInternalServerError, wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			e := newLoggedEcho(&buf)
			e.GET("/api/claims", func(c echo.Context) error {
				return c.NoContent(tt.status)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/claims?take=5", nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			entry := decodeLogLine(t, &buf)
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, "HTTP request", entry["msg"])
			assert.Equal(t, "/api/claims", entry["path"])
			assert.Equal(t, "take=5", entry["query"])
			assert.InDelta(t, float64(tt.status), entry["status"], 0)
		})
	}
}

func TestLogging_SkipPaths(t *testing.T) {
	var buf bytes.Buffer
	e := newLoggedEcho(&buf)
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, buf.String())
	assert.Empty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestLogging_RequestID(t *testing.T) {
	t.Run("generated", func(t *testing.T) {
		var buf bytes.Buffer
		e := newLoggedEcho(&buf)
		var fromEcho, fromCtx string
		e.GET("/x", func(c echo.Context) error {
			fromEcho = middleware.GetRequestID(c)
			fromCtx, _ = appcore.GetCorrelationID(c.Request().Context())
			return c.NoContent(http.StatusOK)
		})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

		header := rec.Header().Get(middleware.RequestIDHeader)
		assert.NotEmpty(t, header)
		assert.Equal(t, header, fromEcho)
		assert.Equal(t, header, fromCtx)
	})

	t.Run("propagated", func(t *testing.T) {
		var buf bytes.Buffer
		e := newLoggedEcho(&buf)
		e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(middleware.RequestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, "req-123", rec.Header().Get(middleware.RequestIDHeader))
		assert.Equal(t, "req-123", decodeLogLine(t, &buf)["request_id"])
	})
}

func TestLogging_HTTPErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	e := newLoggedEcho(&buf)
	e.GET("/x", func(echo.Context) error {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	entry := decodeLogLine(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.InDelta(t, float64(http.StatusBadGateway), entry["status"], 0)
	assert.Contains(t, entry["error"], "upstream")
}
