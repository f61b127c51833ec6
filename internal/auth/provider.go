// Package auth provides credential verification and bearer token handling
// for the dashboard API.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/config"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/database"
)

var (
	// ErrInvalidCredentials is returned when an email/password pair does not
	// match an active account
	ErrInvalidCredentials = database.ErrInvalidCredentials
	// ErrInvalidToken is returned for malformed, expired, revoked or
	// wrongly typed tokens, and for tokens whose account is gone or disabled
	ErrInvalidToken = errors.New("invalid or expired token")
)

// TokenPair is the access/refresh pair handed out on login and refresh
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Authenticator verifies identities and issues session tokens
type Authenticator interface {
	VerifyCredentials(ctx context.Context, identifier, secret string) (*database.User, error)
	VerifyToken(ctx context.Context, token string) (*database.User, error)
	IssueTokenPair(ctx context.Context, user *database.User) (TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, *database.User, error)
	Revoke(ctx context.Context, refreshToken string) error
}

// NewProvider builds the database backed authenticator from configuration
func NewProvider(cfg config.AuthConfig, users database.UserDirectory, refresh TokenStore) (Authenticator, error) {
	if users == nil {
		return nil, fmt.Errorf("auth provider requires a user directory")
	}
	if refresh == nil {
		return nil, fmt.Errorf("auth provider requires a refresh token store")
	}

	tokens, err := NewTokenManager(cfg)
	if err != nil {
		return nil, err
	}

	return NewDatabaseProvider(users, tokens, refresh), nil
}
