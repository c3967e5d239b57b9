package workspace_test

import (
	"context"
	"testing"

	"github.com/aretw0/arbor/internal/workspace"
	"github.com/aretw0/arbor/pkg/builder"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `
spaces:
  - id: home
    name: Home
    collections:
      - id: inbox
        name: Inbox
        objects:
          - {id: milk, name: Milk, type: note}
          - {id: eggs, name: Eggs, type: note, meta: {tags: [food]}}
          - {id: tea, name: Tea, type: note}
      - id: later
        name: Later
  - id: work
    name: Work
    collections:
      - id: board
        name: Board
`

func setup(t *testing.T) (*workspace.Workspace, *builder.Builder, *graph.Graph) {
	t.Helper()
	f, err := workspace.Parse([]byte(fixture))
	require.NoError(t, err)
	w := workspace.New(f)
	b := builder.New(builder.WithExtensions(w.Extensions()...))
	t.Cleanup(func() { b.Close() })

	ctx := context.Background()
	g := b.Graph()
	for _, id := range []string{domain.RootID, "home", "work", "inbox", "later", "board"} {
		g.Expand(ctx, id, domain.Outbound)
	}
	return w, b, g
}

func children(g *graph.Graph, id string) []string {
	var out []string
	for _, n := range g.Connections(id, domain.Outbound) {
		out = append(out, n.ID)
	}
	return out
}

func TestParse(t *testing.T) {
	f, err := workspace.Parse([]byte(workspace.Demo))
	require.NoError(t, err)
	require.Len(t, f.Spaces, 2)
	inbox := f.Spaces[0].Collections[0]
	assert.Equal(t, "cart", inbox.Objects[0].Meta.Icon)
	assert.True(t, inbox.Objects[1].Meta.Pinned)
	assert.NotEmpty(t, inbox.Objects[0].ID)

	again, err := workspace.Parse([]byte(workspace.Demo))
	require.NoError(t, err)
	assert.Equal(t, inbox.Objects[0].ID, again.Spaces[0].Collections[0].Objects[0].ID, "derived ids are stable")
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown key":    "spaces: [{id: a, colour: red}]",
		"missing id":     "spaces: [{name: a}]",
		"duplicate id":   "spaces: [{id: a, collections: [{id: a}]}]",
		"malformed yaml": "spaces: [",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := workspace.Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestExtensions_BuildTree(t *testing.T) {
	_, _, g := setup(t)

	assert.Equal(t, []string{"home", "work"}, children(g, domain.RootID))
	assert.Equal(t, []string{"inbox", "later"}, children(g, "home"))
	assert.Equal(t, []string{"milk", "eggs", "tea"}, children(g, "inbox"))

	eggs, ok := g.Node("eggs")
	require.True(t, ok)
	assert.Equal(t, "Eggs", eggs.Label())
	assert.Equal(t, workspace.ClassObject, eggs.Persistence.Class)
	assert.Equal(t, "home", eggs.Persistence.Key)
	assert.Equal(t, []string{"food"}, eggs.Properties["tags"])

	actions := g.Actions("inbox")
	require.Len(t, actions, 1)
	assert.Equal(t, "inbox/create", actions[0].ID)
}

func TestRearrange(t *testing.T) {
	ctx := context.Background()
	w, b, g := setup(t)
	r := migration.New(g)

	res := r.Drop(ctx, domain.Instruction{
		Type:       domain.ReorderBelow,
		SourcePath: []string{domain.RootID, "home", "inbox", "milk"},
		TargetPath: []string{domain.RootID, "home", "inbox", "tea"},
	})
	require.NoError(t, res.Err)
	require.Equal(t, domain.OpRearrange, res.Plan.Operation)
	require.NoError(t, b.Flush(ctx))

	assert.Equal(t, []string{"eggs", "tea", "milk"}, w.Items("inbox"))
	assert.Equal(t, []string{"eggs", "tea", "milk"}, children(g, "inbox"))
}

func TestTransferWithinSpace(t *testing.T) {
	ctx := context.Background()
	w, b, g := setup(t)
	r := migration.New(g)

	res := r.Drop(ctx, domain.Instruction{
		Type:       domain.MakeChild,
		SourcePath: []string{domain.RootID, "home", "inbox", "eggs"},
		TargetPath: []string{domain.RootID, "home", "later"},
	})
	require.NoError(t, res.Err)
	require.Equal(t, domain.OpTransfer, res.Plan.Operation)
	require.NoError(t, b.Flush(ctx))

	assert.Equal(t, []string{"milk", "tea"}, w.Items("inbox"))
	assert.Equal(t, []string{"eggs"}, w.Items("later"))
	assert.Equal(t, []string{"milk", "tea"}, children(g, "inbox"))
	assert.Equal(t, []string{"eggs"}, children(g, "later"))
}

func TestCopyAcrossSpaces(t *testing.T) {
	ctx := context.Background()
	w, b, g := setup(t)
	r := migration.New(g)

	res := r.Drop(ctx, domain.Instruction{
		Type:       domain.MakeChild,
		SourcePath: []string{domain.RootID, "home", "inbox", "tea"},
		TargetPath: []string{domain.RootID, "work", "board"},
	})
	require.NoError(t, res.Err)
	require.Equal(t, domain.OpCopy, res.Plan.Operation)
	require.NoError(t, b.Flush(ctx))

	assert.Equal(t, []string{"milk", "eggs", "tea"}, w.Items("inbox"), "the source stays")
	board := w.Items("board")
	require.Len(t, board, 1)
	assert.NotEqual(t, "tea", board[0])

	clone, ok := w.Object(board[0])
	require.True(t, ok)
	assert.Equal(t, "Tea", clone.Name)
	assert.Equal(t, "work", clone.Space)
	assert.Equal(t, board, children(g, "board"))
}

func TestCreateAction(t *testing.T) {
	ctx := context.Background()
	w, b, g := setup(t)

	action := g.Actions("later")[0]
	require.NoError(t, action.Invoke(ctx, map[string]any{"name": "Bread", "type": "note"}))
	require.NoError(t, b.Flush(ctx))

	items := w.Items("later")
	require.Len(t, items, 1)
	node, ok := g.Node(items[0])
	require.True(t, ok)
	assert.Equal(t, "Bread", node.Label())
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	w, b, g := setup(t)

	before, _ := g.Node("milk")
	require.NoError(t, w.Rename("milk", "Oat milk"))
	require.NoError(t, b.Flush(ctx))

	after, ok := g.Node("milk")
	require.True(t, ok)
	assert.Equal(t, "Oat milk", after.Label())
	assert.NotSame(t, before, after)

	assert.ErrorIs(t, w.Rename("nope", "x"), domain.ErrNodeNotFound)
}

func TestResolveDeepLink(t *testing.T) {
	ctx := context.Background()
	f, err := workspace.Parse([]byte(fixture))
	require.NoError(t, err)
	w := workspace.New(f)
	b := builder.New(builder.WithExtensions(w.Extensions()...))
	defer b.Close()

	node, err := b.Graph().Resolve(ctx, "eggs")
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, "Eggs", node.Label())

	_, err = b.Graph().Resolve(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestFixtureExport(t *testing.T) {
	w, _, _ := setup(t)
	_, err := w.Create("board", "task", "Ship it")
	require.NoError(t, err)

	data, err := workspace.Marshal(w.Fixture())
	require.NoError(t, err)
	f, err := workspace.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "Ship it", f.Spaces[1].Collections[0].Objects[0].Name)
}
