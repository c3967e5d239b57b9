package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, next ports.PathStateStore, active []byte, fallback ...[]byte) ports.PathStateStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
	require.NoError(t, err)
	return mw(next)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunPathStateStoreContract(t, encrypted(t, memory.NewStore(), generateKey(t)))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	store := encrypted(t, underlying, generateKey(t))

	entries := []domain.PathStateEntry{{Key: "root~secret-space", State: domain.PathState{Open: true}}}
	require.NoError(t, store.Save(ctx, "tree", entries))

	raw, err := underlying.Load(ctx, "tree")
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.True(t, strings.HasPrefix(raw[0].Key, middleware.EnvelopePrefix))
	assert.NotContains(t, raw[0].Key, "secret-space")

	loaded, err := store.Load(ctx, "tree")
	require.NoError(t, err)
	assert.Equal(t, entries, loaded)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)

	old := encrypted(t, underlying, oldKey)
	require.NoError(t, old.Save(ctx, "tree", []domain.PathStateEntry{{Key: "root~a", State: domain.PathState{Open: true}}}))

	rotated := encrypted(t, underlying, newKey, oldKey)
	loaded, err := rotated.Load(ctx, "tree")
	require.NoError(t, err)
	assert.Equal(t, "root~a", loaded[0].Key)

	require.NoError(t, rotated.Save(ctx, "tree", loaded))
	_, err = old.Load(ctx, "tree")
	assert.Error(t, err, "the old key alone cannot read the new envelope")
}

func TestEncryptionMiddleware_PlainSnapshot(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	require.NoError(t, underlying.Save(ctx, "tree", []domain.PathStateEntry{{Key: "root~a"}}))

	_, err := encrypted(t, underlying, generateKey(t)).Load(ctx, "tree")
	assert.ErrorIs(t, err, middleware.ErrNotEncrypted)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.Error(t, err)
}
