package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisHashStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisHashStore(client), mr
}

func hashStores(t *testing.T) map[string]HashStore {
	redisStore, _ := newRedisStore(t)
	return map[string]HashStore{
		"memory": NewMemoryHashStore(),
		"redis":  redisStore,
	}
}

func TestHashStoreContract(t *testing.T) {
	for name, store := range hashStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "owners", "g1")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Set(ctx, "owners", "g1", "u1"))
			value, err := store.Get(ctx, "owners", "g1")
			require.NoError(t, err)
			assert.Equal(t, "u1", value)

			require.NoError(t, store.SetMany(ctx, "owners", map[string]string{"g1": "u9", "g2": "u2"}))
			require.NoError(t, store.SetMany(ctx, "owners", nil))
			all, err := store.GetAll(ctx, "owners")
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"g1": "u9", "g2": "u2"}, all)

			deleted, err := store.Delete(ctx, "owners", "g1")
			require.NoError(t, err)
			assert.True(t, deleted)

			deleted, err = store.Delete(ctx, "owners", "g1")
			require.NoError(t, err)
			assert.False(t, deleted)

			empty, err := store.GetAll(ctx, "sessions")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestRedisHashStoreUsesHashes(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, store.Set(context.Background(), NamespaceOwners, "g1", "u1"))
	assert.Equal(t, "u1", mr.HGet(NamespaceOwners, "g1"))
}

func TestRedisHashStoreSurvivesNewClient(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	require.NoError(t, store.Set(ctx, NamespaceSessions, "tok", "{}"))

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	value, err := NewRedisHashStore(client).Get(ctx, NamespaceSessions, "tok")
	require.NoError(t, err)
	assert.Equal(t, "{}", value)
}

func TestConnect(t *testing.T) {
	ctx := context.Background()

	_, err := Connect(ctx, "")
	require.Error(t, err)

	_, err = Connect(ctx, "not a url")
	require.ErrorContains(t, err, "failed to parse REDIS_URL")

	mr := miniredis.RunT(t)
	client, err := Connect(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())
}
