package graph

import (
	"context"
	"sort"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

// Visitor is called for every node reached by Traverse with the path from
// the source to the node (inclusive). Returning false skips its descendants.
type Visitor func(node *domain.Node, path []string) bool

// TraverseOptions configures Traverse.
type TraverseOptions struct {
	Visitor Visitor
	// Source defaults to the root.
	Source string
	// Relation defaults to Outbound.
	Relation domain.Relation
}

// Traverse walks the already materialized graph depth first. It never
// re-enters an id that is already on the current path, so cycles terminate.
// Traverse does not trigger expansion.
func (g *Graph) Traverse(opts TraverseOptions) {
	if opts.Visitor == nil {
		return
	}
	if opts.Source == "" {
		opts.Source = domain.RootID
	}
	if opts.Relation == "" {
		opts.Relation = domain.Outbound
	}
	g.traverse(opts, opts.Source, nil)
}

func (g *Graph) traverse(opts TraverseOptions, id string, path []string) {
	if domain.ContainsID(path, id) {
		return
	}
	node, ok := g.Node(id)
	if !ok {
		return
	}
	current := make([]string, len(path)+1)
	copy(current, path)
	current[len(path)] = id
	if !opts.Visitor(node, current) {
		return
	}
	for _, child := range g.Connections(id, opts.Relation) {
		g.traverse(opts, child.ID, current)
	}
}

// Path returns the first outbound path from source to target found depth first.
func (g *Graph) Path(source, target string) ([]string, bool) {
	var found []string
	g.Traverse(TraverseOptions{
		Source: source,
		Visitor: func(node *domain.Node, path []string) bool {
			if found != nil {
				return false
			}
			if node.ID == target {
				found = path
				return false
			}
			return true
		},
	})
	return found, found != nil
}

// WaitForPath polls Path until it succeeds or ctx is done. Useful when the
// path only appears after asynchronous expansions.
func (g *Graph) WaitForPath(ctx context.Context, source, target string, interval time.Duration) ([]string, error) {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if path, ok := g.Path(source, target); ok {
			return path, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Paths returns every cycle-free outbound path from the root to target.
func (g *Graph) Paths(target string) [][]string {
	var out [][]string
	g.Traverse(TraverseOptions{
		Visitor: func(node *domain.Node, path []string) bool {
			if node.ID == target {
				out = append(out, path)
			}
			return true
		},
	})
	return out
}

// TreeNode is a serializable, cycle-free view of the graph.
type TreeNode struct {
	ID         string            `json:"id" yaml:"id"`
	Type       string            `json:"type,omitempty" yaml:"type,omitempty"`
	Kind       domain.Kind       `json:"kind" yaml:"kind"`
	Properties domain.Properties `json:"properties,omitempty" yaml:"properties,omitempty"`
	Nodes      []TreeNode        `json:"nodes,omitempty" yaml:"nodes,omitempty"`
}

// Tree dumps the outbound subtree under id. Nodes already on the current
// path are emitted without children.
func (g *Graph) Tree(id string) TreeNode {
	if id == "" {
		id = domain.RootID
	}
	return g.tree(id, nil)
}

func (g *Graph) tree(id string, path []string) TreeNode {
	node, ok := g.Node(id)
	if !ok {
		return TreeNode{ID: id}
	}
	out := TreeNode{ID: node.ID, Type: node.Type, Kind: node.Kind, Properties: node.Properties}
	if domain.ContainsID(path, id) {
		return out
	}
	path = append(path[:len(path):len(path)], id)
	for _, child := range g.Connections(id, domain.Outbound) {
		out.Nodes = append(out.Nodes, g.tree(child.ID, path))
	}
	return out
}

// Collect removes every node that is no longer connected, in either
// direction, to the root or to a resolved node. It returns the removed ids
// and fires the remove hook for each one.
func (g *Graph) Collect() []string {
	g.mu.Lock()
	reachable := make(map[string]bool, len(g.nodes))
	stack := []string{domain.RootID}
	for id := range g.resolved {
		stack = append(stack, id)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[id] {
			continue
		}
		reachable[id] = true
		if adj := g.edges[id]; adj != nil {
			stack = append(stack, adj.outbound...)
			stack = append(stack, adj.inbound...)
		}
	}

	var removed []string
	for id := range g.nodes {
		if !reachable[id] {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		g.removeNodeLocked(id)
	}
	g.metrics.SetNodes(len(g.nodes))
	g.mu.Unlock()

	if len(removed) > 0 {
		g.logger.Debug("Collected unreachable nodes", "count", len(removed))
	}
	g.afterRemoval(removed)
	return removed
}
