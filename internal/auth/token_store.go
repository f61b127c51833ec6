package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/config"
)

// ErrTokenNotFound is returned when a refresh token id is unknown, already
// used or revoked
var ErrTokenNotFound = errors.New("refresh token not found")

// TokenStore tracks the refresh tokens that may still be exchanged. A token
// id can be consumed at most once.
type TokenStore interface {
	Save(ctx context.Context, jti string, userID int64, ttl time.Duration) error
	Consume(ctx context.Context, jti string) (int64, error)
	Delete(ctx context.Context, jti string) error
}

// NewTokenStore returns a Redis backed store when Redis is enabled and an
// in-process store otherwise
func NewTokenStore(ctx context.Context, cfg config.RedisConfig) (TokenStore, error) {
	if !cfg.Enabled {
		logrus.Info("Redis disabled, tracking refresh tokens in memory")
		return NewMemoryTokenStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	logrus.WithField("addr", cfg.Addr).Info("Tracking refresh tokens in Redis")
	return NewRedisTokenStore(client, cfg.KeyPrefix), nil
}

// RedisTokenStore keeps refresh token ids as expiring Redis keys
type RedisTokenStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisTokenStore wraps an existing Redis client
func NewRedisTokenStore(client redis.UniversalClient, prefix string) *RedisTokenStore {
	return &RedisTokenStore{client: client, prefix: prefix}
}

// key namespaces a token id under the configured prefix
func (s *RedisTokenStore) key(jti string) string {
	return s.prefix + jti
}

// Save records a refresh token id for userID that expires after ttl
func (s *RedisTokenStore) Save(ctx context.Context, jti string, userID int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(jti), userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// Consume atomically reads and deletes the token id
func (s *RedisTokenStore) Consume(ctx context.Context, jti string) (int64, error) {
	val, err := s.client.GetDel(ctx, s.key(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrTokenNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to consume refresh token: %w", err)
	}

	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt refresh token entry: %w", err)
	}
	return userID, nil
}

// Delete revokes a token id. Unknown ids are not an error.
func (s *RedisTokenStore) Delete(ctx context.Context, jti string) error {
	if err := s.client.Del(ctx, s.key(jti)).Err(); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client
func (s *RedisTokenStore) Close() error {
	return s.client.Close()
}

type memoryToken struct {
	userID  int64
	expires time.Time
}

// MemoryTokenStore is an in-process TokenStore for single instance
// deployments and tests
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
	now    func() time.Time
}

// NewMemoryTokenStore creates an empty in-memory token store
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		tokens: make(map[string]memoryToken),
		now:    time.Now,
	}
}

// Save records a refresh token id for userID that expires after ttl
func (s *MemoryTokenStore) Save(_ context.Context, jti string, userID int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	// Drop expired entries so the map stays bounded by live tokens
	for k, v := range s.tokens {
		if now.After(v.expires) {
			delete(s.tokens, k)
		}
	}

	s.tokens[jti] = memoryToken{userID: userID, expires: now.Add(ttl)}
	return nil
}

// Consume removes the token id and returns its owner. Expired ids yield
// ErrTokenNotFound.
func (s *MemoryTokenStore) Consume(_ context.Context, jti string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[jti]
	if !ok {
		return 0, ErrTokenNotFound
	}
	delete(s.tokens, jti)

	if s.now().After(tok.expires) {
		return 0, ErrTokenNotFound
	}
	return tok.userID, nil
}

// Delete revokes a token id
func (s *MemoryTokenStore) Delete(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, jti)
	return nil
}
