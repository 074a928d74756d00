package middleware

import (
	"context"
	"errors"

	"github.com/lllypuk/claimservice/internal/infrastructure/keycloak"
)

// KeycloakValidatorAdapter adapts keycloak.JWTValidator to TokenValidator.
// Both the JWKS and the HMAC validators go through it.
type KeycloakValidatorAdapter struct {
	validator keycloak.JWTValidator
	// aliases maps a realm role onto the service role it grants.
	aliases map[string]string
}

// AdapterOption configures KeycloakValidatorAdapter.
type AdapterOption func(*KeycloakValidatorAdapter)

// WithRoleAlias grants role to tokens carrying realmRole.
func WithRoleAlias(realmRole, role string) AdapterOption {
	return func(a *KeycloakValidatorAdapter) {
		a.aliases[realmRole] = role
	}
}

// NewKeycloakValidatorAdapter wraps validator.
func NewKeycloakValidatorAdapter(validator keycloak.JWTValidator, opts ...AdapterOption) *KeycloakValidatorAdapter {
	if validator == nil {
		panic("keycloak validator is required")
	}

	adapter := &KeycloakValidatorAdapter{
		validator: validator,
		aliases:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter
}

// ValidateToken implements TokenValidator.
func (a *KeycloakValidatorAdapter) ValidateToken(ctx context.Context, token string) (*TokenClaims, error) {
	kc, err := a.validator.Validate(ctx, token)
	if err != nil {
		return nil, mapKeycloakError(err)
	}

	username := kc.Username
	if username == "" {
		username = kc.Email
	}

	return &TokenClaims{
		UserID:    kc.UserID,
		Username:  username,
		Roles:     a.roles(kc.RealmRoles),
		ExpiresAt: kc.ExpiresAt,
	}, nil
}

func (a *KeycloakValidatorAdapter) roles(realmRoles []string) []string {
	roles := make([]string, 0, len(realmRoles))
	seen := make(map[string]struct{}, len(realmRoles))
	add := func(role string) {
		if _, dup := seen[role]; !dup {
			seen[role] = struct{}{}
			roles = append(roles, role)
		}
	}
	for _, realmRole := range realmRoles {
		add(realmRole)
		if alias, ok := a.aliases[realmRole]; ok {
			add(alias)
		}
	}
	return roles
}

func mapKeycloakError(err error) error {
	if errors.Is(err, keycloak.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return errors.Join(ErrInvalidToken, err)
}

// Close closes the underlying validator.
func (a *KeycloakValidatorAdapter) Close() error {
	return a.validator.Close()
}
