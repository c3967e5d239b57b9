package tree

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
)

// Mermaid produces a Mermaid flowchart from a tree.
// It applies semantic styling:
// - Root: ((Circle))
// - Branch: [[Subroutine]]
// - Action: {{Hexagon}}
// - Default: [Rectangle]
// A node reached a second time, through another parent, is linked with a
// dotted arrow instead of being drawn again.
func Mermaid(root graph.TreeNode, overlay Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	drawn := make(map[string]bool)
	var open, current []string
	var walk func(n graph.TreeNode, path []string)
	walk = func(n graph.TreeNode, path []string) {
		safeID := sanitizeMermaidID(n.ID)
		if drawn[n.ID] {
			return
		}
		drawn[n.ID] = true

		opener, closer := "[", "]"
		switch {
		case n.ID == domain.RootID:
			opener, closer = "((", "))"
		case n.Kind.IsAction():
			opener, closer = "{{", "}}"
		case n.Properties.String(domain.PropRole) == domain.RoleBranch:
			opener, closer = "[[", "]]"
		}
		// Escape double quotes in labels for Mermaid
		label := strings.ReplaceAll(Label(n), "\"", "'")
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))

		st := overlay.at(path)
		if st.Open {
			open = append(open, safeID)
		}
		if st.Current {
			current = append(current, safeID)
		}

		for _, child := range n.Nodes {
			arrow := "-->"
			if drawn[child.ID] {
				arrow = "-.->"
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, sanitizeMermaidID(child.ID)))
			walk(child, append(path[:len(path):len(path)], child.ID))
		}
	}
	walk(root, []string{root.ID})

	if len(open)+len(current) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef open fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		for _, id := range dedupe(open) {
			sb.WriteString(fmt.Sprintf("    class %s open;\n", id))
		}
		for _, id := range dedupe(current) {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", id))
		}
	}
	return sb.String()
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
