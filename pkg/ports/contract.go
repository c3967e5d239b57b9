package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunPathStateStoreContract runs a suite of tests to verify that a PathStateStore
// implementation adheres to the defined interface contract.
func RunPathStateStoreContract(t *testing.T, store PathStateStore) {
	ctx := context.Background()
	key := "contract-test-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		entries := []domain.PathStateEntry{
			{Key: "root~space-1", State: domain.PathState{Open: true}},
			{Key: "root~space-1~doc-1", State: domain.PathState{Current: true}},
			{Key: "root~space-2~doc-1", State: domain.PathState{AlternateTree: true}},
		}
		require.NoError(t, store.Save(ctx, key, entries), "Save should not return error")

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, entries, loaded, "entries and their order must survive a round trip")
	})

	t.Run("Save Replaces", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, key, []domain.PathStateEntry{{Key: "root~a", State: domain.PathState{Open: true}}}))
		require.NoError(t, store.Save(ctx, key, []domain.PathStateEntry{{Key: "root~b"}}))

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []domain.PathStateEntry{{Key: "root~b"}}, loaded)
	})

	t.Run("Save Empty", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, key+"-empty", nil))
		defer func() { _ = store.Delete(ctx, key+"-empty") }()

		loaded, err := store.Load(ctx, key+"-empty")
		require.NoError(t, err)
		assert.Empty(t, loaded)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+key)
		assert.ErrorIs(t, err, domain.ErrStateNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, key, []domain.PathStateEntry{{Key: "root"}}))
		require.NoError(t, store.Delete(ctx, key), "Delete should not return error")

		_, err := store.Load(ctx, key)
		assert.ErrorIs(t, err, domain.ErrStateNotFound, "Load after Delete should return ErrStateNotFound")

		assert.NoError(t, store.Delete(ctx, "non-existent-"+key), "Delete is idempotent")
	})

	t.Run("List", func(t *testing.T) {
		k1 := key + "-1"
		k2 := key + "-2"
		require.NoError(t, store.Save(ctx, k1, nil))
		require.NoError(t, store.Save(ctx, k2, nil))
		defer func() {
			_ = store.Delete(ctx, k1)
			_ = store.Delete(ctx, k2)
		}()

		keys, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, keys, k1)
		assert.Contains(t, keys, k2)
	})
}
