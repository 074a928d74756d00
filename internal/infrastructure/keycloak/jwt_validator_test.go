package keycloak_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/claimservice/internal/infrastructure/keycloak"
)

const (
	testKeyID  = "test-key-id"
	testRealm  = "claims"
	testClient = "claimservice"
	testSecret = "0123456789abcdef0123456789abcdef"
)

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func setupMockKeycloak(t *testing.T, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": testKeyID,
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/realms/"+testRealm+"/protocol/openid-connect/certs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func signRS256(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func realmClaims(issuer string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":                issuer,
		"sub":                "user-123",
		"aud":                testClient,
		"exp":                now.Add(time.Hour).Unix(),
		"iat":                now.Unix(),
		"email":              "adjuster@example.com",
		"preferred_username": "adjuster",
		"realm_access": map[string]any{
			"roles": []any{"user", "offline_access"},
		},
	}
}

func TestNewJWTValidator(t *testing.T) {
	key := generateTestKey(t)
	server := setupMockKeycloak(t, key)

	t.Run("success", func(t *testing.T) {
		validator, err := keycloak.NewJWTValidator(keycloak.JWTValidatorConfig{
			KeycloakURL: server.URL,
			Realm:       testRealm,
		})
		require.NoError(t, err)
		require.NoError(t, validator.Close())
	})

	t.Run("missing keycloak url", func(t *testing.T) {
		_, err := keycloak.NewJWTValidator(keycloak.JWTValidatorConfig{Realm: testRealm})
		require.ErrorIs(t, err, keycloak.ErrJWKSFetchFailed)
	})

	t.Run("missing realm", func(t *testing.T) {
		_, err := keycloak.NewJWTValidator(keycloak.JWTValidatorConfig{KeycloakURL: server.URL})
		require.ErrorIs(t, err, keycloak.ErrJWKSFetchFailed)
	})
}

func TestJWTValidator_Validate(t *testing.T) {
	key := generateTestKey(t)
	server := setupMockKeycloak(t, key)
	issuer := server.URL + "/realms/" + testRealm

	validator, err := keycloak.NewJWTValidator(keycloak.JWTValidatorConfig{
		KeycloakURL: server.URL,
		Realm:       testRealm,
		ClientID:    testClient,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = validator.Close() })
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		result, validateErr := validator.Validate(ctx, signRS256(t, key, realmClaims(issuer)))

		require.NoError(t, validateErr)
		assert.Equal(t, "user-123", result.UserID)
		assert.Equal(t, "adjuster", result.Username)
		assert.Equal(t, "adjuster@example.com", result.Email)
		assert.Equal(t, []string{"user", "offline_access"}, result.RealmRoles)
		assert.False(t, result.ExpiresAt.IsZero())
	})

	tests := []struct {
		name    string
		mutate  func(jwt.MapClaims)
		signKey *rsa.PrivateKey
		wantErr error
	}{
		{name: "expired", mutate: func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }, wantErr: keycloak.ErrTokenExpired},
		{name: "wrong issuer", mutate: func(c jwt.MapClaims) { c["iss"] = "https://elsewhere/realms/x" }, wantErr: keycloak.ErrInvalidIssuer},
		{name: "wrong audience", mutate: func(c jwt.MapClaims) { c["aud"] = "other" }, wantErr: keycloak.ErrInvalidAudience},
		{name: "missing subject", mutate: func(c jwt.MapClaims) { delete(c, "sub") }, wantErr: keycloak.ErrMissingSubject},
		{name: "missing exp", mutate: func(c jwt.MapClaims) { delete(c, "exp") }, wantErr: keycloak.ErrInvalidToken},
		{name: "foreign key", mutate: func(jwt.MapClaims) {}, signKey: generateTestKey(t), wantErr: keycloak.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := realmClaims(issuer)
			tt.mutate(claims)
			signKey := key
			if tt.signKey != nil {
				signKey = tt.signKey
			}

			result, validateErr := validator.Validate(ctx, signRS256(t, signKey, claims))

			require.ErrorIs(t, validateErr, tt.wantErr)
			assert.Nil(t, result)
		})
	}

	t.Run("empty and malformed", func(t *testing.T) {
		for _, token := range []string{"", "not-a-jwt"} {
			_, validateErr := validator.Validate(ctx, token)
			require.ErrorIs(t, validateErr, keycloak.ErrInvalidToken)
		}
	})
}

func TestNewHMACValidator(t *testing.T) {
	_, err := keycloak.NewHMACValidator(keycloak.HMACValidatorConfig{})

	require.ErrorIs(t, err, keycloak.ErrMissingSecret)
}

func TestHMACValidator_Validate(t *testing.T) {
	validator, err := keycloak.NewHMACValidator(keycloak.HMACValidatorConfig{
		Secret: testSecret,
		Issuer: "claimservice-dev",
	})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		result, validateErr := validator.Validate(ctx, signHS256(t, testSecret, realmClaims("claimservice-dev")))

		require.NoError(t, validateErr)
		assert.Equal(t, "user-123", result.UserID)
		assert.Contains(t, result.RealmRoles, "user")
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, validateErr := validator.Validate(ctx, signHS256(t, "another-secret", realmClaims("claimservice-dev")))

		require.ErrorIs(t, validateErr, keycloak.ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		_, validateErr := validator.Validate(ctx, signHS256(t, testSecret, realmClaims("other")))

		require.ErrorIs(t, validateErr, keycloak.ErrInvalidIssuer)
	})

	t.Run("rejects other algorithms", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, realmClaims("claimservice-dev"))
		signed, signErr := token.SignedString([]byte(testSecret))
		require.NoError(t, signErr)

		_, validateErr := validator.Validate(ctx, signed)

		require.ErrorIs(t, validateErr, keycloak.ErrInvalidToken)
	})

	require.NoError(t, validator.Close())
}
