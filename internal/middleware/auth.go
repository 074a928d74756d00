package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/claimservice/internal/application/appcore"
)

// Context keys for authentication data.
type contextKey string

const (
	// ContextKeyUserID is the context key for user ID.
	ContextKeyUserID contextKey = "user_id"

	// ContextKeyUsername is the context key for username.
	ContextKeyUsername contextKey = "username"

	// ContextKeyRoles is the context key for user roles.
	ContextKeyRoles contextKey = "roles"
)

// RoleUser is the role required by the record endpoints.
const RoleUser = "user"

// Auth errors.
var (
	ErrMissingAuthHeader       = errors.New("missing authorization header")
	ErrInvalidAuthHeader       = errors.New("invalid authorization header format")
	ErrInvalidToken            = errors.New("invalid token")
	ErrTokenExpired            = errors.New("token expired")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
)

// TokenClaims represents the claims extracted from a bearer token.
type TokenClaims struct {
	UserID    string
	Username  string
	Roles     []string
	ExpiresAt time.Time
}

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*TokenClaims, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger         *slog.Logger
	TokenValidator TokenValidator
	// SkipPaths are request paths that pass through unauthenticated.
	SkipPaths []string
}

// DefaultAuthConfig returns an AuthConfig with sensible defaults.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Logger:    slog.Default(),
		SkipPaths: []string{"/health", "/ready", "/metrics"},
	}
}

// Auth returns an authentication middleware. On success the user is stored
// both in the echo context and in the request context.
func Auth(config AuthConfig) echo.MiddlewareFunc {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	skipPaths := make(map[string]struct{}, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if _, ok := skipPaths[path]; ok {
				return next(c)
			}

			token, err := extractBearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return respondAuthError(c, err)
			}

			if config.TokenValidator == nil {
				config.Logger.Error("token validator not configured")
				return respondAuthError(c, ErrInvalidToken)
			}

			claims, err := config.TokenValidator.ValidateToken(c.Request().Context(), token)
			if err != nil {
				config.Logger.Warn("token validation failed",
					slog.String("error", err.Error()),
					slog.String("path", path),
					slog.String("remote_ip", c.RealIP()),
				)
				return respondAuthError(c, err)
			}

			enrichContext(c, claims)

			config.Logger.Debug("user authenticated",
				slog.String("user_id", claims.UserID),
				slog.String("username", claims.Username),
				slog.String("path", path),
			)

			return next(c)
		}
	}
}

func extractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", ErrInvalidAuthHeader
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
	if token == "" {
		return "", ErrInvalidAuthHeader
	}

	return token, nil
}

func enrichContext(c echo.Context, claims *TokenClaims) {
	c.Set(string(ContextKeyUserID), claims.UserID)
	c.Set(string(ContextKeyUsername), claims.Username)
	c.Set(string(ContextKeyRoles), claims.Roles)

	ctx := appcore.WithUserID(c.Request().Context(), claims.UserID)
	c.SetRequest(c.Request().WithContext(ctx))
}

func respondAuthError(c echo.Context, err error) error {
	code := "UNAUTHORIZED"
	message := "Authentication required"
	status := http.StatusUnauthorized

	switch {
	case errors.Is(err, ErrMissingAuthHeader):
		message = "Missing authorization header"
	case errors.Is(err, ErrInvalidAuthHeader):
		message = "Invalid authorization header format"
	case errors.Is(err, ErrTokenExpired):
		message = "Token has expired"
		code = "TOKEN_EXPIRED"
	case errors.Is(err, ErrInvalidToken):
		message = "Invalid token"
	case errors.Is(err, ErrInsufficientPermissions):
		message = "Insufficient permissions"
		code = "FORBIDDEN"
		status = http.StatusForbidden
	}

	return c.JSON(status, map[string]any{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// GetUserID extracts the user ID from the echo context.
func GetUserID(c echo.Context) string {
	if id, ok := c.Get(string(ContextKeyUserID)).(string); ok {
		return id
	}
	return ""
}

// GetUsername extracts the username from the echo context.
func GetUsername(c echo.Context) string {
	if username, ok := c.Get(string(ContextKeyUsername)).(string); ok {
		return username
	}
	return ""
}

// GetRoles extracts the user roles from the echo context.
func GetRoles(c echo.Context) []string {
	if roles, ok := c.Get(string(ContextKeyRoles)).([]string); ok {
		return roles
	}
	return nil
}

// HasRole checks if the current user has the specified role.
func HasRole(c echo.Context, role string) bool {
	return slices.Contains(GetRoles(c), role)
}

// RequireRole returns a middleware that requires the user to have a specific role.
// It must run after Auth.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !HasRole(c, role) {
				return respondAuthError(c, ErrInsufficientPermissions)
			}
			return next(c)
		}
	}
}

// StaticTokenValidator accepts development tokens of the form
// "dev-token-<user>" or "dev-token-<user>:<role>,<role>".
// DO NOT USE IN PRODUCTION.
type StaticTokenValidator struct {
	ttl time.Duration
}

// NewStaticTokenValidator creates a development token validator.
func NewStaticTokenValidator() *StaticTokenValidator {
	const devTokenTTL = 24 * time.Hour
	return &StaticTokenValidator{ttl: devTokenTTL}
}

// ValidateToken implements TokenValidator.
func (v *StaticTokenValidator) ValidateToken(_ context.Context, token string) (*TokenClaims, error) {
	const prefix = "dev-token-"
	rest, ok := strings.CutPrefix(token, prefix)
	if !ok || rest == "" {
		return nil, ErrInvalidToken
	}

	user, roleList, hasRoles := strings.Cut(rest, ":")
	if user == "" {
		return nil, ErrInvalidToken
	}

	roles := []string{RoleUser}
	if hasRoles {
		roles = nil
		for role := range strings.SplitSeq(roleList, ",") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
	}

	return &TokenClaims{
		UserID:    user,
		Username:  "dev-user-" + user,
		Roles:     roles,
		ExpiresAt: time.Now().Add(v.ttl),
	}, nil
}
