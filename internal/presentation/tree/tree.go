// Package tree renders a materialized navigation tree as text, markdown or
// a Mermaid flowchart, optionally overlaid with path state.
package tree

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
)

// Overlay is the path state shown on top of the tree, keyed by path key.
type Overlay map[string]domain.PathState

// NewOverlay indexes state entries by path key.
func NewOverlay(entries []domain.PathStateEntry) Overlay {
	o := make(Overlay, len(entries))
	for _, e := range entries {
		o[e.Key] = e.State
	}
	return o
}

func (o Overlay) at(path []string) domain.PathState {
	if o == nil {
		return domain.PathState{}
	}
	return o[domain.PathKey(path)]
}

// Options tune the text renderer.
type Options struct {
	Overlay Overlay
	// Profile colors markers. The zero value is termenv.TrueColor; use
	// termenv.Ascii for plain output.
	Profile termenv.Profile
	// Actions includes action and action-group nodes.
	Actions bool
	// Collapse hides the children of paths that are not open. The root is
	// always expanded.
	Collapse bool
}

// Label returns the display label of a tree node, falling back to its id.
func Label(n graph.TreeNode) string {
	if l := n.Properties.String(domain.PropLabel); l != "" {
		return l
	}
	return n.ID
}

// Text writes an indented tree with box-drawing guides.
//
//	Home
//	├── ▾ Inbox
//	│   └── ● Milk
//	└── ▸ Later
func Text(w io.Writer, root graph.TreeNode, opts Options) error {
	if _, err := fmt.Fprintln(w, Label(root)); err != nil {
		return err
	}
	return writeChildren(w, root, []string{root.ID}, "", opts)
}

func writeChildren(w io.Writer, n graph.TreeNode, path []string, prefix string, opts Options) error {
	children := visible(n.Nodes, opts.Actions)
	for i, child := range children {
		last := i == len(children)-1
		branch, indent := "├── ", "│   "
		if last {
			branch, indent = "└── ", "    "
		}
		childPath := append(path[:len(path):len(path)], child.ID)
		state := opts.Overlay.at(childPath)

		line := prefix + branch + marker(child, state, opts) + Label(child)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		if opts.Collapse && !state.Open {
			continue
		}
		if err := writeChildren(w, child, childPath, prefix+indent, opts); err != nil {
			return err
		}
	}
	return nil
}

func marker(n graph.TreeNode, st domain.PathState, opts Options) string {
	p := opts.Profile
	var m string
	switch {
	case n.Kind.IsAction():
		m = p.String("+ ").Foreground(p.Color("#a78bfa")).String()
	case st.Current:
		m = p.String("● ").Foreground(p.Color("#fbc02d")).Bold().String()
	case len(n.Nodes) > 0 && st.Open:
		m = "▾ "
	case len(n.Nodes) > 0:
		m = "▸ "
	}
	if st.AlternateTree {
		m += p.String("⇄ ").Foreground(p.Color("#818cf8")).String()
	}
	return m
}

func visible(nodes []graph.TreeNode, actions bool) []graph.TreeNode {
	if actions {
		return nodes
	}
	out := make([]graph.TreeNode, 0, len(nodes))
	for _, n := range nodes {
		if !n.Kind.IsAction() {
			out = append(out, n)
		}
	}
	return out
}

// Markdown renders the tree as a nested list. Current paths are bold.
func Markdown(root graph.TreeNode, overlay Overlay) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", Label(root))
	writeMarkdown(&sb, root, []string{root.ID}, 0, overlay)
	return sb.String()
}

func writeMarkdown(sb *strings.Builder, n graph.TreeNode, path []string, depth int, overlay Overlay) {
	for _, child := range visible(n.Nodes, false) {
		childPath := append(path[:len(path):len(path)], child.ID)
		label := escapeMarkdown(Label(child))
		if overlay.at(childPath).Current {
			label = "**" + label + "**"
		}
		if child.Type != "" && !strings.HasPrefix(child.Type, "arbor/") {
			label += " `" + child.Type + "`"
		}
		fmt.Fprintf(sb, "%s- %s\n", strings.Repeat("  ", depth), label)
		writeMarkdown(sb, child, childPath, depth+1, overlay)
	}
}

func escapeMarkdown(s string) string {
	r := strings.NewReplacer("*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`)
	return r.Replace(s)
}
