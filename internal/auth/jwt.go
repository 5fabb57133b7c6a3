// Package auth issues and validates the bearer tokens that guard the
// operator endpoints.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultAccessTokenExpiry is how long operator tokens are valid.
	DefaultAccessTokenExpiry = 12 * time.Hour

	// RoleOperator grants access to operational endpoints.
	RoleOperator = "operator"

	defaultIssuer   = "aqforecast"
	defaultAudience = "aqforecast-ops"
)

// Predefined JWT errors.
var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token has expired")
	ErrMissingSigningKey  = errors.New("signing key is not configured")
)

// JWTClaims represents the claims in operator access tokens.
type JWTClaims struct {
	jwt.RegisteredClaims

	// Role is the granted role.
	Role string `json:"role"`
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey is the HS256 secret. An empty key disables issuing and
	// rejects every token.
	SigningKey string

	Issuer   string
	Audience string

	// Expiry is the token lifetime (default: DefaultAccessTokenExpiry).
	Expiry time.Duration

	// Clock stamps issue and expiry times (default: real clock).
	Clock clockwork.Clock
}

// JWTService handles JWT creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	expiry     time.Duration
	clock      clockwork.Clock
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) *JWTService {
	s := &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		expiry:     cfg.Expiry,
		clock:      cfg.Clock,
	}
	if s.issuer == "" {
		s.issuer = defaultIssuer
	}
	if s.audience == "" {
		s.audience = defaultAudience
	}
	if s.expiry == 0 {
		s.expiry = DefaultAccessTokenExpiry
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	return s
}

// GenerateAccessToken creates an operator token for subject.
func (s *JWTService) GenerateAccessToken(subject string) (string, time.Time, error) {
	if len(s.signingKey) == 0 {
		return "", time.Time{}, ErrMissingSigningKey
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.expiry)

	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Role: RoleOperator,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateAccessToken validates an operator token and returns its claims.
func (s *JWTService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	if len(s.signingKey) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccessToken, ErrMissingSigningKey)
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccessToken, err.Error())
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidAccessToken
	}
	if claims.Role != RoleOperator {
		return nil, fmt.Errorf("%w: role %q", ErrInvalidAccessToken, claims.Role)
	}

	return claims, nil
}
