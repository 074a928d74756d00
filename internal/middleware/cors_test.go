package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/lllypuk/claimservice/internal/middleware"
)

func TestDefaultCORSConfig(t *testing.T) {
	config := middleware.DefaultCORSConfig()

	assert.Equal(t, []string{"*"}, config.AllowOrigins)
	assert.Contains(t, config.AllowMethods, echo.PATCH)
	assert.Contains(t, config.AllowMethods, echo.DELETE)
	assert.Contains(t, config.AllowHeaders, echo.HeaderAuthorization)
	assert.Contains(t, config.ExposeHeaders, middleware.RequestIDHeader)
	assert.False(t, config.AllowCredentials)
	assert.Equal(t, middleware.DefaultCORSMaxAge, config.MaxAge)
}

func TestCORSWithOrigins(t *testing.T) {
	t.Run("empty keeps defaults", func(t *testing.T) {
		config := middleware.CORSWithOrigins()

		assert.Equal(t, []string{"*"}, config.AllowOrigins)
		assert.False(t, config.AllowCredentials)
	})

	t.Run("explicit origins allow credentials", func(t *testing.T) {
		config := middleware.CORSWithOrigins("https://claims.example.com")

		assert.Equal(t, []string{"https://claims.example.com"}, config.AllowOrigins)
		assert.True(t, config.AllowCredentials)
	})

	t.Run("wildcard never allows credentials", func(t *testing.T) {
		config := middleware.CORSWithOrigins("https://a.example.com", "*")

		assert.False(t, config.AllowCredentials)
	})
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name           string
		config         middleware.CORSConfig
		origin         string
		wantOrigin     string
		wantCredential string
	}{
		{
			name:       "default allows any origin",
			config:     middleware.DefaultCORSConfig(),
			origin:     "http://example.com",
			wantOrigin: "*",
		},
		{
			name:           "listed origin",
			config:         middleware.CORSWithOrigins("http://allowed.com"),
			origin:         "http://allowed.com",
			wantOrigin:     "http://allowed.com",
			wantCredential: "true",
		},
		{
			name:       "unlisted origin",
			config:     middleware.CORSWithOrigins("http://allowed.com"),
			origin:     "http://evil.com",
			wantOrigin: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Use(middleware.CORS(tt.config))
			e.GET("/api/claims", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/api/claims", nil)
			req.Header.Set(echo.HeaderOrigin, tt.origin)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantOrigin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
			assert.Equal(t, tt.wantCredential, rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	e := echo.New()
	e.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	e.PATCH("/api/claims/:id", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/claims/1", nil)
	req.Header.Set(echo.HeaderOrigin, "http://example.com")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPatch)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods), http.MethodPatch)
}
