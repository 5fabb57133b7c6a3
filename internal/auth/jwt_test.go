package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqforecast/aqforecast/internal/auth"
)

const testKey = "test-secret-key-for-testing-only"

func TestJWTService_GenerateAndValidateAccessToken(t *testing.T) {
	svc := auth.NewJWTService(auth.JWTConfig{SigningKey: testKey})

	token, expiresAt, err := svc.GenerateAccessToken("oncall")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "oncall", claims.Subject)
	assert.Equal(t, auth.RoleOperator, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := auth.NewJWTService(auth.JWTConfig{SigningKey: testKey})

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateAccessToken(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
		})
	}
}

func TestJWTService_WrongSigningKey(t *testing.T) {
	issuer := auth.NewJWTService(auth.JWTConfig{SigningKey: "key-one"})
	token, _, err := issuer.GenerateAccessToken("oncall")
	require.NoError(t, err)

	verifier := auth.NewJWTService(auth.JWTConfig{SigningKey: "key-two"})
	_, err = verifier.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}

func TestJWTService_WrongAudience(t *testing.T) {
	issuer := auth.NewJWTService(auth.JWTConfig{SigningKey: testKey, Audience: "someone-else"})
	token, _, err := issuer.GenerateAccessToken("oncall")
	require.NoError(t, err)

	verifier := auth.NewJWTService(auth.JWTConfig{SigningKey: testKey})
	_, err = verifier.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}

func TestJWTService_Expired(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := auth.NewJWTService(auth.JWTConfig{SigningKey: testKey, Expiry: time.Hour, Clock: clock})

	token, expiresAt, err := svc.GenerateAccessToken("oncall")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Hour), expiresAt)

	clock.Advance(59 * time.Minute)
	_, err = svc.ValidateAccessToken(token)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrAccessTokenExpired)
}

func TestJWTService_RejectsOtherRoles(t *testing.T) {
	now := time.Now()
	claims := auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "aqforecast",
			Subject:   "viewer",
			Audience:  jwt.ClaimStrings{"aqforecast-ops"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Role: "viewer",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testKey))
	require.NoError(t, err)

	svc := auth.NewJWTService(auth.JWTConfig{SigningKey: testKey})
	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}

func TestJWTService_NoSigningKey(t *testing.T) {
	svc := auth.NewJWTService(auth.JWTConfig{})

	_, _, err := svc.GenerateAccessToken("oncall")
	assert.ErrorIs(t, err, auth.ErrMissingSigningKey)

	_, err = svc.ValidateAccessToken("anything")
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}
