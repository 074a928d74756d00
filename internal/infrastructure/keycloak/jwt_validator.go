// Package keycloak validates bearer tokens laid out the way Keycloak issues them.
package keycloak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWT validation errors.
var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidClaims   = errors.New("invalid claims")
	ErrMissingSubject  = errors.New("missing subject claim")
	ErrTokenExpired    = errors.New("token expired")
	ErrInvalidIssuer   = errors.New("invalid issuer")
	ErrInvalidAudience = errors.New("invalid audience")
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")
	ErrMissingSecret   = errors.New("missing signing secret")
)

// TokenClaims represents validated token claims.
type TokenClaims struct {
	UserID     string
	Username   string
	Email      string
	RealmRoles []string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// JWTValidator validates signed tokens.
type JWTValidator interface {
	Validate(ctx context.Context, tokenString string) (*TokenClaims, error)
	// Close stops background key refresh, if any.
	Close() error
}

// JWTValidatorConfig contains configuration for the JWKS validator.
type JWTValidatorConfig struct {
	KeycloakURL     string
	Realm           string
	ClientID        string        // expected audience
	Leeway          time.Duration // clock skew tolerance
	RefreshInterval time.Duration // JWKS refresh interval
	Logger          *slog.Logger
}

// Default configuration values.
const (
	DefaultLeeway          = 30 * time.Second
	DefaultRefreshInterval = 1 * time.Hour
)

// parser holds what both validators share: parser options and claim extraction.
type parser struct {
	keyfunc jwt.Keyfunc
	options []jwt.ParserOption
}

func newParser(keyfunc jwt.Keyfunc, leeway time.Duration, issuer, audience string, methods ...string) parser {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	if len(methods) > 0 {
		opts = append(opts, jwt.WithValidMethods(methods))
	}
	return parser{keyfunc: keyfunc, options: opts}
}

func (p parser) parse(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, p.keyfunc, p.options...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, fmt.Errorf("%w: %w", ErrInvalidIssuer, err)
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, fmt.Errorf("%w: %w", ErrInvalidAudience, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidClaims
	}
	return extractClaims(claims)
}

// extractClaims reads sub, preferred_username, email and realm_access.roles.
func extractClaims(claims jwt.MapClaims) (*TokenClaims, error) {
	tc := &TokenClaims{}

	tc.UserID, _ = claims["sub"].(string)
	if tc.UserID == "" {
		return nil, ErrMissingSubject
	}
	tc.Username, _ = claims["preferred_username"].(string)
	tc.Email, _ = claims["email"].(string)

	if realmAccess, ok := claims["realm_access"].(map[string]any); ok {
		tc.RealmRoles = stringList(realmAccess["roles"])
	}

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		tc.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tc.ExpiresAt = exp.Time
	}

	return tc, nil
}

func stringList(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, isString := item.(string); isString {
			out = append(out, s)
		}
	}
	return out
}

// jwksValidator validates RS256 tokens against the realm's JWKS, cached and
// refreshed in the background.
type jwksValidator struct {
	parser
	logger *slog.Logger
	cancel context.CancelFunc
}

// NewJWTValidator creates a JWKS backed validator for a Keycloak realm.
func NewJWTValidator(config JWTValidatorConfig) (JWTValidator, error) {
	if config.KeycloakURL == "" {
		return nil, fmt.Errorf("%w: KeycloakURL is required", ErrJWKSFetchFailed)
	}
	if config.Realm == "" {
		return nil, fmt.Errorf("%w: Realm is required", ErrJWKSFetchFailed)
	}
	if config.Leeway == 0 {
		config.Leeway = DefaultLeeway
	}
	if config.RefreshInterval == 0 {
		config.RefreshInterval = DefaultRefreshInterval
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	issuerURL := fmt.Sprintf("%s/realms/%s", config.KeycloakURL, config.Realm)
	jwksURL := issuerURL + "/protocol/openid-connect/certs"

	logger.Info("initializing JWT validator",
		slog.String("jwks_url", jwksURL),
		slog.Duration("refresh_interval", config.RefreshInterval),
	)

	ctx, cancel := context.WithCancel(context.Background())

	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Ctx:             ctx,
		RefreshInterval: config.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, refreshErr error) {
			logger.Error("failed to refresh JWKS", slog.Any("error", refreshErr))
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrJWKSFetchFailed, err)
	}

	jwks, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrJWKSFetchFailed, err)
	}

	return &jwksValidator{
		parser: newParser(jwks.Keyfunc, config.Leeway, issuerURL, config.ClientID),
		logger: logger,
		cancel: cancel,
	}, nil
}

func (v *jwksValidator) Validate(_ context.Context, tokenString string) (*TokenClaims, error) {
	return v.parse(tokenString)
}

func (v *jwksValidator) Close() error {
	v.logger.Info("closing JWT validator")
	v.cancel()
	return nil
}

// HMACValidatorConfig configures a validator for HS256 tokens signed with a
// shared secret.
type HMACValidatorConfig struct {
	Secret   string
	Issuer   string // optional
	Audience string // optional
	Leeway   time.Duration
}

type hmacValidator struct {
	parser
}

// NewHMACValidator creates a validator for HS256 tokens carrying the same
// claims a Keycloak realm would issue.
func NewHMACValidator(config HMACValidatorConfig) (JWTValidator, error) {
	if config.Secret == "" {
		return nil, ErrMissingSecret
	}
	if config.Leeway == 0 {
		config.Leeway = DefaultLeeway
	}

	secret := []byte(config.Secret)
	keyfunc := func(*jwt.Token) (any, error) { return secret, nil }

	return &hmacValidator{
		parser: newParser(keyfunc, config.Leeway, config.Issuer, config.Audience, jwt.SigningMethodHS256.Alg()),
	}, nil
}

func (v *hmacValidator) Validate(_ context.Context, tokenString string) (*TokenClaims, error) {
	return v.parse(tokenString)
}

func (v *hmacValidator) Close() error { return nil }
