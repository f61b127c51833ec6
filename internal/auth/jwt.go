package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/config"
)

// TokenType distinguishes access tokens from refresh tokens
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims is the payload of every token issued by the server
type Claims struct {
	UserID    int64     `json:"uid"`
	TokenType TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// TokenManager signs and parses HS256 tokens
type TokenManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
	now        func() time.Time
}

// NewTokenManager creates a token manager from the auth configuration
func NewTokenManager(cfg config.AuthConfig) (*TokenManager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &TokenManager{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		leeway:     cfg.Leeway,
		now:        time.Now,
	}, nil
}

// RefreshTTL is how long a refresh token stays valid
func (m *TokenManager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// Issue signs a token of the given type for userID and returns it together
// with its unique id
func (m *TokenManager) Issue(userID int64, typ TokenType) (token string, jti string, err error) {
	ttl := m.accessTTL
	if typ == TokenRefresh {
		ttl = m.refreshTTL
	}

	now := m.now()
	jti = uuid.NewString()
	claims := Claims{
		UserID:    userID,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, jti, nil
}

// Parse validates the signature, lifetime and issuer of token and checks it
// is of the expected type
func (m *TokenManager) Parse(token string, want TokenType) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	}
	if m.leeway > 0 {
		options = append(options, jwt.WithLeeway(m.leeway))
	}
	if m.issuer != "" {
		options = append(options, jwt.WithIssuer(m.issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != want {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, want, claims.TokenType)
	}
	if claims.ID == "" || claims.UserID == 0 {
		return nil, fmt.Errorf("%w: missing token id or subject", ErrInvalidToken)
	}

	return claims, nil
}
