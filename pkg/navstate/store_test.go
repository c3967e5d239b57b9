package navstate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/navstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	docInA = []string{domain.RootID, "space-a", "doc"}
	docInB = []string{domain.RootID, "space-b", "doc"}
)

// failingStore rejects every write.
type failingStore struct {
	*memory.Store
	mu     sync.Mutex
	writes int
}

func (f *failingStore) Save(context.Context, string, []domain.PathStateEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	return errors.New("disk full")
}

// finder serves paths from a mutable table.
type finder struct {
	mu    sync.Mutex
	paths map[string][][]string
}

func (f *finder) Paths(id string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paths[id]
}

func (f *finder) add(path []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paths == nil {
		f.paths = make(map[string][][]string)
	}
	id := domain.LastID(path)
	f.paths[id] = append(f.paths[id], path)
}

func persisted(t *testing.T, store *memory.Store, key string) map[string]domain.PathState {
	t.Helper()
	entries, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	out := make(map[string]domain.PathState, len(entries))
	for _, e := range entries {
		out[e.Key] = e.State
	}
	return out
}

func TestStore_ItemDefaults(t *testing.T) {
	s := navstate.New(nil)
	assert.Equal(t, domain.PathState{}, s.Item(docInA))
	assert.False(t, s.IsOpen(docInA))
	assert.False(t, s.IsCurrent(docInA))
	assert.False(t, s.IsAlternateTree(docInA))
	assert.Len(t, s.Entries(), 1, "first access creates the entry")
}

func TestStore_SetItemPersists(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	s := navstate.New(backend, navstate.WithKey("tree"))

	require.NoError(t, s.SetItem(ctx, docInA, domain.StateOpen, true))
	assert.True(t, s.IsOpen(docInA))
	assert.Equal(t, domain.PathState{Open: true}, persisted(t, backend, "tree")["root~space-a~doc"])

	assert.Error(t, s.SetItem(ctx, docInA, "bogus", true))
}

func TestStore_PathsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := navstate.New(nil)

	require.NoError(t, s.SetItem(ctx, docInA, domain.StateOpen, true))
	assert.True(t, s.IsOpen(docInA))
	assert.False(t, s.IsOpen(docInB), "the same node at another path keeps its own state")
}

func TestStore_Toggle(t *testing.T) {
	ctx := context.Background()
	s := navstate.New(nil)

	open, err := s.Toggle(ctx, docInA, domain.StateOpen)
	require.NoError(t, err)
	assert.True(t, open)
	open, err = s.Toggle(ctx, docInA, domain.StateOpen)
	require.NoError(t, err)
	assert.False(t, open)

	_, err = s.Toggle(ctx, docInA, "bogus")
	assert.Error(t, err)
}

func TestStore_PersistenceFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	backend := &failingStore{Store: memory.NewStore()}
	s := navstate.New(backend)

	require.NoError(t, s.SetItem(ctx, docInA, domain.StateAlternateTree, true))
	assert.True(t, s.IsAlternateTree(docInA))
	assert.Equal(t, 1, backend.writes)
}

func TestStore_Load(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	require.NoError(t, backend.Save(ctx, navstate.DefaultKey, []domain.PathStateEntry{
		{Key: "root~space-a~doc", State: domain.PathState{Open: true}},
	}))

	s := navstate.New(backend)
	require.NoError(t, s.Load(ctx))
	assert.True(t, s.IsOpen(docInA))

	empty := navstate.New(memory.NewStore())
	require.NoError(t, empty.Load(ctx), "a missing snapshot is not an error")
	assert.Empty(t, empty.Entries())
}

func TestStore_Compact(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	s := navstate.New(backend)

	s.Item(docInB)
	require.NoError(t, s.SetItem(ctx, docInA, domain.StateOpen, true))
	assert.Equal(t, 1, s.Compact(ctx))
	assert.Equal(t, []domain.PathStateEntry{{Key: "root~space-a~doc", State: domain.PathState{Open: true}}}, s.Entries())
	assert.Len(t, persisted(t, backend, navstate.DefaultKey), 1)
	assert.Equal(t, 0, s.Compact(ctx))
}

func TestStore_SetActive_AllPaths(t *testing.T) {
	ctx := context.Background()
	g := graph.New(graph.WithNodes(
		domain.NodeArg{ID: "space-a", Nodes: []domain.NodeArg{{ID: "doc"}}},
		domain.NodeArg{ID: "space-b"},
	))
	require.NoError(t, g.AddEdge(domain.Edge{Source: "space-b", Target: "doc"}, ""))

	backend := memory.NewStore()
	s := navstate.New(backend, navstate.WithPathFinder(g), navstate.WithDebounce(time.Hour))
	defer s.Close()

	s.SetActive(ctx, []string{"doc"})
	assert.True(t, s.IsCurrent(docInA))
	assert.True(t, s.IsCurrent(docInB))
	assert.True(t, persisted(t, backend, navstate.DefaultKey)["root~space-b~doc"].Current)

	s.SetActive(ctx, []string{"space-a"})
	assert.False(t, s.IsCurrent(docInA))
	assert.False(t, s.IsCurrent(docInB))
	assert.True(t, s.IsCurrent([]string{domain.RootID, "space-a"}))
}

func TestStore_SetActive_KnownEntriesWithoutFinder(t *testing.T) {
	ctx := context.Background()
	s := navstate.New(nil, navstate.WithDebounce(time.Hour))
	defer s.Close()

	s.Item(docInA)
	s.Item(docInB)
	s.SetActive(ctx, []string{"doc"})
	assert.True(t, s.IsCurrent(docInA))
	assert.True(t, s.IsCurrent(docInB))
}

func TestStore_SetActive_DebouncedPassFindsLatePaths(t *testing.T) {
	ctx := context.Background()
	f := &finder{}
	f.add(docInA)
	s := navstate.New(nil, navstate.WithPathFinder(f), navstate.WithDebounce(10*time.Millisecond))
	defer s.Close()

	s.SetActive(ctx, []string{"doc"})
	assert.True(t, s.IsCurrent(docInA))

	// The second path only appears after an expansion that raced the update.
	f.add(docInB)
	assert.Eventually(t, func() bool {
		return containsCurrent(s.Entries(), "root~space-b~doc")
	}, time.Second, 5*time.Millisecond)
}

func TestStore_Settle(t *testing.T) {
	ctx := context.Background()
	f := &finder{}
	s := navstate.New(nil, navstate.WithPathFinder(f), navstate.WithDebounce(time.Hour))
	defer s.Close()

	s.SetActive(ctx, []string{"doc"})
	f.add(docInA)
	s.Settle(ctx)
	assert.True(t, s.IsCurrent(docInA))
}

func TestStore_CloseStopsSettling(t *testing.T) {
	ctx := context.Background()
	f := &finder{}
	s := navstate.New(nil, navstate.WithPathFinder(f), navstate.WithDebounce(10*time.Millisecond))

	s.SetActive(ctx, []string{"doc"})
	require.NoError(t, s.Close())
	f.add(docInA)

	time.Sleep(30 * time.Millisecond)
	assert.False(t, containsCurrent(s.Entries(), "root~space-a~doc"))
}

func TestStore_WithLocker(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	s := navstate.New(backend, navstate.WithLocker(memory.NewLocker(), time.Second))

	require.NoError(t, s.SetItem(ctx, docInA, domain.StateOpen, true))
	require.NoError(t, s.SetItem(ctx, docInB, domain.StateOpen, true))
	assert.Len(t, persisted(t, backend, navstate.DefaultKey), 2)
}

func containsCurrent(entries []domain.PathStateEntry, key string) bool {
	for _, e := range entries {
		if e.Key == key {
			return e.State.Current
		}
	}
	return false
}
