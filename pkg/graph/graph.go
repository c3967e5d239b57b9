// Package graph implements the navigation graph store: nodes, ordered
// bidirectional edges, lazy expansion and cycle-safe traversal.
//
// The graph exclusively owns node and edge storage. Callers refer to nodes by
// id and receive immutable *domain.Node snapshots; a snapshot pointer only
// changes when its content does, so it can be used for memoization.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/orderkey"
)

// ExpandFunc materializes the connections of a node. The extension registry
// provides it and reports results back through BeginExpansion/CommitExpansion.
type ExpandFunc func(ctx context.Context, id string, rel domain.Relation)

// ResolveFunc looks up a node that was never reached through expansion.
// It returns nil when no contributor knows the id.
type ResolveFunc func(ctx context.Context, id string) (*domain.NodeArg, error)

type adjacency struct {
	inbound  []string
	outbound []string
}

type expansionKey struct {
	id  string
	rel domain.Relation
}

// Graph stores nodes and edges. Safe for concurrent use.
type Graph struct {
	mu          sync.RWMutex
	nodes       map[string]*domain.Node
	edges       map[string]*adjacency
	order       map[domain.Edge]string
	expanded    map[expansionKey]bool
	generations map[expansionKey]uint64
	contributed map[expansionKey][]string
	resolved    map[string]bool

	watchMu     sync.Mutex
	watchers    map[int]func(domain.NodeChange)
	nextWatcher int

	expand   ExpandFunc
	resolve  ResolveFunc
	onRemove func(id string)
	logger   *slog.Logger
	metrics  *observability.Metrics
	seeds    []domain.NodeArg
}

// Option configures the Graph.
type Option func(*Graph)

// WithExpander sets the function invoked by Expand.
func WithExpander(fn ExpandFunc) Option {
	return func(g *Graph) {
		g.expand = fn
	}
}

// WithResolver sets the function invoked by Resolve for unknown ids.
func WithResolver(fn ResolveFunc) Option {
	return func(g *Graph) {
		g.resolve = fn
	}
}

// WithRemoveHook registers a callback fired after a node leaves the graph.
func WithRemoveHook(fn func(id string)) Option {
	return func(g *Graph) {
		g.onRemove = fn
	}
}

// WithLogger configures a logger for the Graph.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		g.logger = logger
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Graph) {
		g.metrics = m
	}
}

// WithNodes seeds the graph. Nodes without an explicit parent hang off the root.
func WithNodes(args ...domain.NodeArg) Option {
	return func(g *Graph) {
		g.seeds = append(g.seeds, args...)
	}
}

// New creates a graph containing only the root node.
func New(opts ...Option) *Graph {
	g := &Graph{
		nodes:       make(map[string]*domain.Node),
		edges:       make(map[string]*adjacency),
		order:       make(map[domain.Edge]string),
		expanded:    make(map[expansionKey]bool),
		generations: make(map[expansionKey]uint64),
		contributed: make(map[expansionKey][]string),
		resolved:    make(map[string]bool),
		watchers:    make(map[int]func(domain.NodeChange)),
		logger:      logging.NewNop(),
	}
	g.nodes[domain.RootID] = domain.NodeArg{ID: domain.RootID, Type: domain.RootType}.Node()
	g.edges[domain.RootID] = &adjacency{}

	for _, opt := range opts {
		opt(g)
	}
	seeds := g.seeds
	g.seeds = nil
	for _, arg := range seeds {
		if _, err := g.AddNode(arg, WithParent(domain.RootID)); err != nil {
			g.logger.Warn("Failed to seed node", "id", arg.ID, "err", err)
		}
	}
	g.metrics.SetNodes(len(g.nodes))
	return g
}

// AddOption configures AddNode.
type AddOption func(*addConfig)

type addConfig struct {
	parent   string
	order    string
	relation domain.Relation
}

// WithParent connects the node to parent.
func WithParent(id string) AddOption {
	return func(c *addConfig) {
		c.parent = id
	}
}

// WithOrder sets the order key of the parent edge. Without it the node is
// appended after its last sibling (or keeps its current position).
func WithOrder(key string) AddOption {
	return func(c *addConfig) {
		c.order = key
	}
}

// WithRelation makes the parent option describe an inbound connection:
// the new node becomes a parent of the given id instead of a child.
func WithRelation(rel domain.Relation) AddOption {
	return func(c *addConfig) {
		c.relation = rel
	}
}

// AddNode inserts or updates a node and, optionally, its parent edge.
// Nested arg.Nodes are added as ordered children.
func (g *Graph) AddNode(arg domain.NodeArg, opts ...AddOption) (string, error) {
	cfg := addConfig{relation: domain.Outbound}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validateArg(arg); err != nil {
		return "", err
	}

	var changes []domain.NodeChange
	g.mu.Lock()
	if cfg.parent != "" {
		if _, ok := g.nodes[cfg.parent]; !ok {
			g.mu.Unlock()
			return "", fmt.Errorf("parent %q: %w", cfg.parent, domain.ErrNodeNotFound)
		}
	}
	g.addNodeLocked(arg, &changes)
	if cfg.parent != "" {
		g.addEdgeLocked(edgeFor(cfg.parent, cfg.relation, arg.ID), cfg.order)
	}
	g.metrics.SetNodes(len(g.nodes))
	g.mu.Unlock()

	g.emit(changes)
	return arg.ID, nil
}

// AddNodes adds several nodes without parents.
func (g *Graph) AddNodes(args ...domain.NodeArg) error {
	for _, arg := range args {
		if _, err := g.AddNode(arg); err != nil {
			return err
		}
	}
	return nil
}

// RemoveNode deletes a node together with every edge touching it.
func (g *Graph) RemoveNode(id string) error {
	if id == domain.RootID {
		return fmt.Errorf("%w: the root node cannot be removed", domain.ErrInvalidID)
	}
	g.mu.Lock()
	if _, ok := g.nodes[id]; !ok {
		g.mu.Unlock()
		return fmt.Errorf("%q: %w", id, domain.ErrNodeNotFound)
	}
	g.removeNodeLocked(id)
	g.metrics.SetNodes(len(g.nodes))
	g.mu.Unlock()

	g.emit([]domain.NodeChange{{Type: domain.NodeRemoved, ID: id}})
	if g.onRemove != nil {
		g.onRemove(id)
	}
	return nil
}

// AddEdge connects two existing nodes. An empty order appends.
func (g *Graph) AddEdge(edge domain.Edge, order string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range []string{edge.Source, edge.Target} {
		if _, ok := g.nodes[id]; !ok {
			return fmt.Errorf("edge endpoint %q: %w", id, domain.ErrNodeNotFound)
		}
	}
	g.addEdgeLocked(edge, order)
	return nil
}

// RemoveEdge disconnects two nodes. With removeOrphans, an endpoint left
// without any edge is removed as well (never the root).
func (g *Graph) RemoveEdge(edge domain.Edge, removeOrphans bool) {
	var removed []string
	g.mu.Lock()
	g.removeEdgeLocked(edge)
	if removeOrphans {
		for _, id := range []string{edge.Source, edge.Target} {
			adj := g.edges[id]
			if id == domain.RootID || adj == nil {
				continue
			}
			if len(adj.inbound) == 0 && len(adj.outbound) == 0 {
				g.removeNodeLocked(id)
				removed = append(removed, id)
			}
		}
	}
	g.metrics.SetNodes(len(g.nodes))
	g.mu.Unlock()

	g.afterRemoval(removed)
}

// Node returns the stored snapshot for id.
func (g *Graph) Node(id string) (*domain.Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// NodeOrErr returns the stored snapshot or ErrNodeNotFound.
func (g *Graph) NodeOrErr(id string) (*domain.Node, error) {
	if n, ok := g.Node(id); ok {
		return n, nil
	}
	return nil, fmt.Errorf("%q: %w", id, domain.ErrNodeNotFound)
}

// Root returns the root node.
func (g *Graph) Root() *domain.Node {
	n, _ := g.Node(domain.RootID)
	return n
}

// Len returns the number of stored nodes, including unreachable ones not yet collected.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Edges returns a copy of the adjacency of id.
func (g *Graph) Edges(id string) domain.Edges {
	g.mu.RLock()
	defer g.mu.RUnlock()
	adj, ok := g.edges[id]
	if !ok {
		return domain.Edges{Inbound: []string{}, Outbound: []string{}}
	}
	return domain.Edges{
		Inbound:  append([]string{}, adj.inbound...),
		Outbound: append([]string{}, adj.outbound...),
	}
}

// Order returns the order key of an edge.
func (g *Graph) Order(edge domain.Edge) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	k, ok := g.order[edge]
	return k, ok
}

// Connections returns the nodes connected to id. Outbound connections are
// sorted by order key; inbound ones keep insertion order.
func (g *Graph) Connections(id string, rel domain.Relation) []*domain.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	adj, ok := g.edges[id]
	if !ok {
		return nil
	}
	ids := adj.outbound
	if rel == domain.Inbound {
		ids = adj.inbound
	}
	out := make([]*domain.Node, 0, len(ids))
	for _, cid := range ids {
		if n, ok := g.nodes[cid]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Actions returns the actions and action groups attached to id.
func (g *Graph) Actions(id string) []*domain.Node {
	var out []*domain.Node
	for _, n := range g.Connections(id, domain.Outbound) {
		if n.Kind.IsAction() {
			out = append(out, n)
		}
	}
	return out
}

// ActionGroup returns the actions inside an action group.
func (g *Graph) ActionGroup(id string) []*domain.Node {
	var out []*domain.Node
	for _, n := range g.Connections(id, domain.Outbound) {
		if n.Kind == domain.KindAction {
			out = append(out, n)
		}
	}
	return out
}

// SortEdges reorders the connections of id. Ids in order come first, in that
// order; the rest keep their relative order after them.
func (g *Graph) SortEdges(id string, rel domain.Relation, order []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	adj, ok := g.edges[id]
	if !ok {
		return fmt.Errorf("%q: %w", id, domain.ErrNodeNotFound)
	}

	if rel == domain.Inbound {
		keys, err := orderkey.Assign(adj.inbound, order)
		if err != nil {
			return err
		}
		sort.SliceStable(adj.inbound, func(i, j int) bool {
			return keys[adj.inbound[i]] < keys[adj.inbound[j]]
		})
		return nil
	}

	keys, err := orderkey.Assign(adj.outbound, order)
	if err != nil {
		return err
	}
	for child, key := range keys {
		g.order[domain.Edge{Source: id, Target: child}] = key
	}
	g.sortOutboundLocked(id)
	return nil
}

// Watch registers fn for node changes. The returned function unregisters it.
func (g *Graph) Watch(fn func(domain.NodeChange)) (cancel func()) {
	g.watchMu.Lock()
	defer g.watchMu.Unlock()
	id := g.nextWatcher
	g.nextWatcher++
	g.watchers[id] = fn
	return func() {
		g.watchMu.Lock()
		defer g.watchMu.Unlock()
		delete(g.watchers, id)
	}
}

func (g *Graph) emit(changes []domain.NodeChange) {
	if len(changes) == 0 {
		return
	}
	g.watchMu.Lock()
	fns := make([]func(domain.NodeChange), 0, len(g.watchers))
	for _, fn := range g.watchers {
		fns = append(fns, fn)
	}
	g.watchMu.Unlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

func (g *Graph) afterRemoval(ids []string) {
	if len(ids) == 0 {
		return
	}
	changes := make([]domain.NodeChange, 0, len(ids))
	for _, id := range ids {
		changes = append(changes, domain.NodeChange{Type: domain.NodeRemoved, ID: id})
	}
	g.emit(changes)
	if g.onRemove != nil {
		for _, id := range ids {
			g.onRemove(id)
		}
	}
}

func validateArg(arg domain.NodeArg) error {
	if err := domain.ValidateID(arg.ID); err != nil {
		return err
	}
	for _, child := range arg.Nodes {
		if err := validateArg(child); err != nil {
			return err
		}
	}
	return nil
}

func edgeFor(id string, rel domain.Relation, other string) domain.Edge {
	if rel == domain.Inbound {
		return domain.Edge{Source: other, Target: id}
	}
	return domain.Edge{Source: id, Target: other}
}

func (g *Graph) addNodeLocked(arg domain.NodeArg, changes *[]domain.NodeChange) {
	existing, ok := g.nodes[arg.ID]
	if ok {
		next := existing.Merge(arg)
		if !next.Equal(existing) {
			g.logger.Debug("Updating node", "id", arg.ID)
			g.nodes[arg.ID] = next
			*changes = append(*changes, domain.NodeChange{Type: domain.NodeUpdated, ID: arg.ID, Node: next})
		}
	} else {
		g.logger.Debug("Adding node", "id", arg.ID)
		n := arg.Node()
		g.nodes[arg.ID] = n
		if _, ok := g.edges[arg.ID]; !ok {
			g.edges[arg.ID] = &adjacency{}
		}
		*changes = append(*changes, domain.NodeChange{Type: domain.NodeAdded, ID: arg.ID, Node: n})
	}

	for _, child := range arg.Nodes {
		g.addNodeLocked(child, changes)
		g.addEdgeLocked(domain.Edge{Source: arg.ID, Target: child.ID}, child.Order)
	}
}

func (g *Graph) removeNodeLocked(id string) {
	adj := g.edges[id]
	if adj != nil {
		for _, src := range append([]string{}, adj.inbound...) {
			g.removeEdgeLocked(domain.Edge{Source: src, Target: id})
		}
		for _, dst := range append([]string{}, adj.outbound...) {
			g.removeEdgeLocked(domain.Edge{Source: id, Target: dst})
		}
	}
	delete(g.edges, id)
	delete(g.nodes, id)
	delete(g.resolved, id)
	for _, rel := range []domain.Relation{domain.Outbound, domain.Inbound} {
		key := expansionKey{id: id, rel: rel}
		delete(g.expanded, key)
		delete(g.contributed, key)
		// The generation is bumped rather than deleted so in-flight expansions are discarded.
		g.generations[key]++
	}
	g.logger.Debug("Removed node", "id", id)
}

func (g *Graph) addEdgeLocked(edge domain.Edge, order string) {
	src := g.edges[edge.Source]
	dst := g.edges[edge.Target]
	if src == nil || dst == nil {
		return
	}

	if order == "" {
		if _, ok := g.order[edge]; !ok {
			order = g.appendKeyLocked(edge.Source)
		}
	} else if err := orderkey.Validate(order); err != nil {
		g.logger.Warn("Malformed order key, sorting last", "source", edge.Source, "target", edge.Target, "err", err)
	}
	if order != "" {
		g.order[edge] = order
	}

	if !domain.ContainsID(src.outbound, edge.Target) {
		src.outbound = append(src.outbound, edge.Target)
	}
	g.sortOutboundLocked(edge.Source)
	if !domain.ContainsID(dst.inbound, edge.Source) {
		dst.inbound = append(dst.inbound, edge.Source)
	}
}

func (g *Graph) removeEdgeLocked(edge domain.Edge) {
	if src := g.edges[edge.Source]; src != nil {
		src.outbound = without(src.outbound, edge.Target)
	}
	if dst := g.edges[edge.Target]; dst != nil {
		dst.inbound = without(dst.inbound, edge.Source)
	}
	delete(g.order, edge)
}

// appendKeyLocked returns a key after the last well-formed key among the
// outbound edges of id.
func (g *Graph) appendKeyLocked(id string) string {
	last := ""
	for _, child := range g.edges[id].outbound {
		k := g.order[domain.Edge{Source: id, Target: child}]
		if orderkey.Validate(k) == nil && k > last {
			last = k
		}
	}
	key, err := orderkey.Between(last, "")
	if err != nil {
		g.logger.Warn("Failed to generate order key", "id", id, "err", err)
		return ""
	}
	return key
}

func (g *Graph) sortOutboundLocked(id string) {
	out := g.edges[id].outbound
	sort.SliceStable(out, func(i, j int) bool {
		ki := g.order[domain.Edge{Source: id, Target: out[i]}]
		kj := g.order[domain.Edge{Source: id, Target: out[j]}]
		if c := orderkey.Compare(ki, kj); c != 0 {
			return c < 0
		}
		return out[i] < out[j]
	})
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
