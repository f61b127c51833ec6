package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/database"
)

// DatabaseProvider authenticates accounts stored in the user directory and
// issues JWT session tokens for them
type DatabaseProvider struct {
	users   database.UserDirectory
	tokens  *TokenManager
	refresh TokenStore
}

var _ Authenticator = (*DatabaseProvider)(nil)

// NewDatabaseProvider creates a new database-based authentication provider
func NewDatabaseProvider(users database.UserDirectory, tokens *TokenManager, refresh TokenStore) *DatabaseProvider {
	return &DatabaseProvider{
		users:   users,
		tokens:  tokens,
		refresh: refresh,
	}
}

// VerifyCredentials checks an email/password pair. Unknown emails, wrong
// passwords and disabled accounts are indistinguishable to the caller.
func (p *DatabaseProvider) VerifyCredentials(ctx context.Context, identifier, secret string) (*database.User, error) {
	return database.Authenticate(ctx, p.users, identifier, secret)
}

// VerifyToken validates an access token and returns its current, active
// account
func (p *DatabaseProvider) VerifyToken(ctx context.Context, token string) (*database.User, error) {
	claims, err := p.tokens.Parse(token, TokenAccess)
	if err != nil {
		return nil, err
	}
	return p.activeUser(ctx, claims.UserID)
}

// IssueTokenPair signs a fresh access/refresh pair and records the refresh
// token so it can be exchanged once
func (p *DatabaseProvider) IssueTokenPair(ctx context.Context, user *database.User) (TokenPair, error) {
	access, _, err := p.tokens.Issue(user.ID, TokenAccess)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, jti, err := p.tokens.Issue(user.ID, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}

	if err := p.refresh.Save(ctx, jti, user.ID, p.tokens.RefreshTTL()); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a refresh token for a new pair. The presented refresh
// token is consumed, so replaying it fails.
func (p *DatabaseProvider) Refresh(ctx context.Context, refreshToken string) (TokenPair, *database.User, error) {
	claims, err := p.tokens.Parse(refreshToken, TokenRefresh)
	if err != nil {
		return TokenPair{}, nil, err
	}

	owner, err := p.refresh.Consume(ctx, claims.ID)
	if errors.Is(err, ErrTokenNotFound) {
		logrus.WithField("user_id", claims.UserID).Warn("Refresh token reused or revoked")
		return TokenPair{}, nil, ErrInvalidToken
	}
	if err != nil {
		return TokenPair{}, nil, err
	}
	if owner != claims.UserID {
		return TokenPair{}, nil, ErrInvalidToken
	}

	user, err := p.activeUser(ctx, claims.UserID)
	if err != nil {
		return TokenPair{}, nil, err
	}

	pair, err := p.IssueTokenPair(ctx, user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Revoke invalidates a refresh token. Revoking an already revoked token
// succeeds.
func (p *DatabaseProvider) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := p.tokens.Parse(refreshToken, TokenRefresh)
	if err != nil {
		return err
	}
	return p.refresh.Delete(ctx, claims.ID)
}

func (p *DatabaseProvider) activeUser(ctx context.Context, id int64) (*database.User, error) {
	user, err := p.users.FindByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token owner: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInvalidToken
	}
	return user, nil
}
