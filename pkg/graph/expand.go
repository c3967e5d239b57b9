package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
)

// Ticket identifies one expansion attempt. Only the newest ticket for a given
// node and relation can be committed.
type Ticket struct {
	ID         string
	Relation   domain.Relation
	Generation uint64
	started    time.Time
}

// Expand asks the expander to materialize the connections of id. Calling it
// repeatedly is safe; results are reconciled by CommitExpansion.
func (g *Graph) Expand(ctx context.Context, id string, rel domain.Relation) {
	if rel == "" {
		rel = domain.Outbound
	}
	g.mu.Lock()
	if _, ok := g.nodes[id]; !ok {
		g.mu.Unlock()
		g.logger.Debug("Skipping expansion of unknown node", "id", id)
		return
	}
	g.expanded[expansionKey{id: id, rel: rel}] = true
	fn := g.expand
	g.mu.Unlock()

	if fn != nil {
		fn(ctx, id, rel)
	}
}

// IsExpanded reports whether Expand was called for id and rel since the node was added.
func (g *Graph) IsExpanded(id string, rel domain.Relation) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.expanded[expansionKey{id: id, rel: rel}]
}

// BeginExpansion starts a new expansion generation, invalidating older tickets.
func (g *Graph) BeginExpansion(id string, rel domain.Relation) Ticket {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := expansionKey{id: id, rel: rel}
	g.generations[key]++
	return Ticket{ID: id, Relation: rel, Generation: g.generations[key], started: time.Now()}
}

// CommitExpansion applies the merged connector output of an expansion.
// Children that disappeared since the previous commit lose their edge; kept
// children are updated in place, keeping their snapshot when unchanged. It
// returns false when the ticket is stale or the node is gone.
func (g *Graph) CommitExpansion(t Ticket, args []domain.NodeArg) bool {
	var changes []domain.NodeChange
	key := expansionKey{id: t.ID, rel: t.Relation}

	g.mu.Lock()
	if g.generations[key] != t.Generation {
		g.mu.Unlock()
		g.logger.Debug("Discarding stale expansion", "id", t.ID, "relation", t.Relation, "generation", t.Generation)
		g.metrics.Expansion(observability.ExpansionStale, time.Since(t.started))
		return false
	}
	if _, ok := g.nodes[t.ID]; !ok {
		g.mu.Unlock()
		return false
	}

	next := make([]string, 0, len(args))
	seen := make(map[string]bool, len(args))
	edgesChanged := false
	for _, arg := range args {
		if err := validateArg(arg); err != nil {
			g.logger.Warn("Dropping connector output", "id", t.ID, "child", arg.ID, "err", err)
			continue
		}
		g.addNodeLocked(arg, &changes)
		edge := edgeFor(t.ID, t.Relation, arg.ID)
		// Inbound edges belong to the parent's sibling list; keep its keys.
		order := arg.Order
		if t.Relation == domain.Inbound {
			order = ""
		}
		if prev, ok := g.order[edge]; !ok || (order != "" && prev != order) {
			edgesChanged = true
		}
		g.addEdgeLocked(edge, order)
		if !seen[arg.ID] {
			seen[arg.ID] = true
			next = append(next, arg.ID)
		}
	}

	for _, id := range g.contributed[key] {
		if !seen[id] {
			g.removeEdgeLocked(edgeFor(t.ID, t.Relation, id))
			edgesChanged = true
		}
	}
	g.contributed[key] = next
	g.metrics.SetNodes(len(g.nodes))
	g.mu.Unlock()

	result := observability.ExpansionUnchanged
	if edgesChanged || len(changes) > 0 {
		result = observability.ExpansionApplied
	}
	g.metrics.Expansion(result, time.Since(t.started))
	g.emit(changes)
	return true
}

// Contributed returns the ids the last committed expansion produced.
func (g *Graph) Contributed(id string, rel domain.Relation) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string{}, g.contributed[expansionKey{id: id, rel: rel}]...)
}

// Resolve returns the node for id, asking the resolver when it is not stored yet.
// Resolved nodes are kept by Collect even when unreachable from the root.
func (g *Graph) Resolve(ctx context.Context, id string) (*domain.Node, error) {
	if n, ok := g.Node(id); ok {
		return n, nil
	}
	return g.resolveNode(ctx, id)
}

// Initialize runs the resolver for id at most once, refreshing a stored node
// with whatever the resolver knows about it.
func (g *Graph) Initialize(ctx context.Context, id string) (*domain.Node, error) {
	g.mu.RLock()
	done := g.resolved[id]
	g.mu.RUnlock()
	if done {
		return g.NodeOrErr(id)
	}
	return g.resolveNode(ctx, id)
}

func (g *Graph) resolveNode(ctx context.Context, id string) (*domain.Node, error) {
	if g.resolve == nil {
		return g.NodeOrErr(id)
	}
	arg, err := g.resolve(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", id, err)
	}
	if arg == nil {
		return g.NodeOrErr(id)
	}
	if arg.ID == "" {
		arg.ID = id
	}
	if _, err := g.AddNode(*arg); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.resolved[arg.ID] = true
	g.mu.Unlock()
	return g.NodeOrErr(arg.ID)
}
