package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/config"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestTokenStores(t *testing.T) {
	stores := []struct {
		name  string
		store func(t *testing.T) TokenStore
	}{
		{
			name:  "memory",
			store: func(*testing.T) TokenStore { return NewMemoryTokenStore() },
		},
		{
			name: "redis",
			store: func(t *testing.T) TokenStore {
				_, client := newTestRedis(t)
				return NewRedisTokenStore(client, "test:refresh:")
			},
		},
	}

	for _, tt := range stores {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := tt.store(t)

			require.NoError(t, store.Save(ctx, "jti-1", 7, time.Hour))

			userID, err := store.Consume(ctx, "jti-1")
			require.NoError(t, err)
			assert.Equal(t, int64(7), userID)

			_, err = store.Consume(ctx, "jti-1")
			assert.ErrorIs(t, err, ErrTokenNotFound)

			require.NoError(t, store.Save(ctx, "jti-2", 7, time.Hour))
			require.NoError(t, store.Delete(ctx, "jti-2"))
			require.NoError(t, store.Delete(ctx, "jti-2"))
			_, err = store.Consume(ctx, "jti-2")
			assert.ErrorIs(t, err, ErrTokenNotFound)

			_, err = store.Consume(ctx, "never-saved")
			assert.ErrorIs(t, err, ErrTokenNotFound)
		})
	}
}

func TestRedisTokenStore_Expiry(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	store := NewRedisTokenStore(client, "test:refresh:")

	require.NoError(t, store.Save(ctx, "jti", 1, time.Minute))
	assert.True(t, mr.Exists("test:refresh:jti"))

	mr.FastForward(2 * time.Minute)

	_, err := store.Consume(ctx, "jti")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestMemoryTokenStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, "jti", 1, time.Minute))

	now = now.Add(2 * time.Minute)
	_, err := store.Consume(ctx, "jti")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	// expired entries are pruned on the next save
	require.NoError(t, store.Save(ctx, "old", 1, time.Minute))
	now = now.Add(2 * time.Minute)
	require.NoError(t, store.Save(ctx, "new", 1, time.Minute))
	assert.Len(t, store.tokens, 1)
}

func TestNewTokenStore(t *testing.T) {
	ctx := context.Background()

	store, err := NewTokenStore(ctx, config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, &MemoryTokenStore{}, store)

	mr, err := miniredis.Run()
	require.NoError(t, err)

	store, err = NewTokenStore(ctx, config.RedisConfig{Enabled: true, Addr: mr.Addr(), KeyPrefix: "x:"})
	require.NoError(t, err)
	assert.IsType(t, &RedisTokenStore{}, store)
	_ = store.(*RedisTokenStore).Close()

	addr := mr.Addr()
	mr.Close()
	_, err = NewTokenStore(ctx, config.RedisConfig{Enabled: true, Addr: addr})
	assert.Error(t, err)
}
