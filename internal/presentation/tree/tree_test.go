package tree_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/internal/presentation/tree"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
)

func label(s string) domain.Properties {
	return domain.Properties{domain.PropLabel: s}
}

func sample() graph.TreeNode {
	milk := graph.TreeNode{ID: "milk", Type: "note", Kind: domain.KindPlain, Properties: label("Milk")}
	return graph.TreeNode{
		ID:   domain.RootID,
		Kind: domain.KindPlain,
		Nodes: []graph.TreeNode{
			{
				ID: "home", Kind: domain.KindPlain,
				Properties: domain.Properties{domain.PropLabel: "Home", domain.PropRole: domain.RoleBranch},
				Nodes: []graph.TreeNode{
					{
						ID: "inbox", Kind: domain.KindPlain, Properties: label("Inbox"),
						Nodes: []graph.TreeNode{
							milk,
							{ID: "inbox/add", Kind: domain.KindAction, Properties: label("Add")},
						},
					},
					{ID: "later", Kind: domain.KindPlain, Properties: label("Later")},
				},
			},
			{ID: "shared", Kind: domain.KindPlain, Properties: label("Shared"), Nodes: []graph.TreeNode{milk}},
		},
	}
}

func overlay() tree.Overlay {
	return tree.NewOverlay([]domain.PathStateEntry{
		{Key: "root~home", State: domain.PathState{Open: true}},
		{Key: "root~home~inbox", State: domain.PathState{Open: true}},
		{Key: "root~home~inbox~milk", State: domain.PathState{Current: true}},
	})
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, tree.Text(&buf, sample(), tree.Options{Overlay: overlay(), Profile: termenv.Ascii}))

	want := strings.Join([]string{
		"root",
		"├── ▾ Home",
		"│   ├── ▾ Inbox",
		"│   │   └── ● Milk",
		"│   └── Later",
		"└── ▸ Shared",
		"    └── Milk",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestText_CollapseAndActions(t *testing.T) {
	var buf bytes.Buffer
	opts := tree.Options{Overlay: overlay(), Profile: termenv.Ascii, Collapse: true, Actions: true}
	require.NoError(t, tree.Text(&buf, sample(), opts))

	out := buf.String()
	assert.Contains(t, out, "└── + Add")
	assert.Contains(t, out, "└── ▸ Shared\n")
	assert.NotContains(t, out, "    └── Milk", "closed paths hide their children")
}

func TestMarkdown(t *testing.T) {
	out := tree.Markdown(sample(), overlay())
	assert.True(t, strings.HasPrefix(out, "# root\n\n"))
	assert.Contains(t, out, "- Home\n  - Inbox\n    - **Milk** `note`\n  - Later\n")
	assert.NotContains(t, out, "Add")
}

func TestMermaid(t *testing.T) {
	out := tree.Mermaid(sample(), overlay())

	for _, want := range []string{
		"graph TD\n",
		`root(("root"))`,
		`home[["Home"]]`,
		`inbox["Inbox"]`,
		`inbox_add{{"Add"}}`,
		"inbox --> milk",
		"shared -.-> milk",
		"class home open;",
		"class milk current;",
	} {
		assert.Contains(t, out, want)
	}
	assert.Equal(t, 1, strings.Count(out, `milk["Milk"]`), "shared nodes are drawn once")
}

func TestMermaid_NoOverlay(t *testing.T) {
	out := tree.Mermaid(graph.TreeNode{ID: "a-b.c", Properties: label(`say "hi"`)}, nil)
	assert.Equal(t, "graph TD\n    a_b_c[\"say 'hi'\"]\n", out)
}
