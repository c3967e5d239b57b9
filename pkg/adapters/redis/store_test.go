package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewFromClient(client)
	ports.RunPathStateStoreContract(t, store)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()
	key := "navtree-ttl"

	err := store.Save(ctx, key, []domain.PathStateEntry{{Key: "root~a", State: domain.PathState{Open: true}}})
	assert.NoError(t, err)

	keys, err := store.List(ctx)
	assert.NoError(t, err)
	assert.Contains(t, keys, key)

	// Key expiration happens on miniredis time.
	mr.FastForward(2 * time.Second)
	_, err = store.Load(ctx, key)
	assert.ErrorIs(t, err, domain.ErrStateNotFound)

	// Index pruning compares against the wall clock.
	time.Sleep(1200 * time.Millisecond)
	keys, err = store.List(ctx)
	assert.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	err := store.Save(ctx, "navtree", nil)
	assert.NoError(t, err)

	assert.True(t, mr.Exists("custom:app:navtree"), "Expected key with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix to exist")

	raw, err := mr.Get("custom:app:navtree")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, raw)
}

func TestRedisStore_WireFormat(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)

	err := store.Save(context.Background(), "navtree", []domain.PathStateEntry{
		{Key: "root~space", State: domain.PathState{Open: true}},
	})
	require.NoError(t, err)

	raw, err := mr.Get("arbor:state:navtree")
	require.NoError(t, err)
	assert.JSONEq(t, `[["root~space",{"open":true,"current":false,"alternateTree":false}]]`, raw)
}

func TestRedisStore_CorruptSnapshot(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)

	require.NoError(t, mr.Set("arbor:state:broken", "{not json"))
	_, err := store.Load(context.Background(), "broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrStateNotFound)
}
