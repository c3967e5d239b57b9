package middleware_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
)

func TestCompactionMiddleware(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	store := middleware.NewCompactionMiddleware()(underlying)

	require.NoError(t, store.Save(ctx, "tree", []domain.PathStateEntry{
		{Key: "root~a"},
		{Key: "root~b", State: domain.PathState{Current: true}},
	}))

	loaded, err := underlying.Load(ctx, "tree")
	require.NoError(t, err)
	assert.Equal(t, []domain.PathStateEntry{{Key: "root~b", State: domain.PathState{Current: true}}}, loaded)
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	store := middleware.Chain(underlying, middleware.NewCompactionMiddleware(), enc)

	require.NoError(t, store.Save(ctx, "tree", []domain.PathStateEntry{
		{Key: "root~a"},
		{Key: "root~b", State: domain.PathState{Open: true}},
	}))

	loaded, err := store.Load(ctx, "tree")
	require.NoError(t, err)
	assert.Equal(t, []domain.PathStateEntry{{Key: "root~b", State: domain.PathState{Open: true}}}, loaded)

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tree"}, keys)
}
