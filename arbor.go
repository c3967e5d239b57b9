package arbor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/builder"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/migration"
	"github.com/aretw0/arbor/pkg/navstate"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/ports"
)

// Session wires the extension registry, its graph, the navigation state
// store and the migration resolver into one navigable tree.
type Session struct {
	builder  *builder.Builder
	state    *navstate.Store
	resolver *migration.Resolver
	logger   *slog.Logger

	extensions []builder.Extension
	persist    ports.PathStateStore
	stateOpts  []navstate.Option
	metrics    *observability.Metrics
	async      bool
	workers    int
}

// Option defines a functional option for configuring the Session.
type Option func(*Session)

// WithLogger sets a custom structured logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithMetrics enables Prometheus metrics on every component.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithExtensions registers the extensions populating the graph.
func WithExtensions(exts ...builder.Extension) Option {
	return func(s *Session) {
		s.extensions = append(s.extensions, exts...)
	}
}

// WithStateStore persists navigation state in store.
func WithStateStore(store ports.PathStateStore) Option {
	return func(s *Session) {
		s.persist = store
	}
}

// WithStateKey sets the key the navigation state is stored under.
func WithStateKey(key string) Option {
	return func(s *Session) {
		s.stateOpts = append(s.stateOpts, navstate.WithKey(key))
	}
}

// WithDebounce sets the delay of the second active-path pass.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) {
		s.stateOpts = append(s.stateOpts, navstate.WithDebounce(d))
	}
}

// WithLocker serializes state writes across processes sharing a backend.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(s *Session) {
		s.stateOpts = append(s.stateOpts, navstate.WithLocker(locker, ttl))
	}
}

// WithConcurrency bounds the contributors run in parallel per expansion.
func WithConcurrency(n int) Option {
	return func(s *Session) {
		s.workers = n
	}
}

// WithAsyncDispatch runs drop callbacks in the background.
func WithAsyncDispatch() Option {
	return func(s *Session) {
		s.async = true
	}
}

// New creates a Session. The graph starts with the root only; call Open to
// restore the persisted state.
func New(opts ...Option) *Session {
	s := &Session{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	bopts := []builder.Option{
		builder.WithLogger(s.logger),
		builder.WithMetrics(s.metrics),
		builder.WithExtensions(s.extensions...),
	}
	if s.workers > 0 {
		bopts = append(bopts, builder.WithConcurrency(s.workers))
	}
	s.builder = builder.New(bopts...)

	g := s.builder.Graph()
	s.state = navstate.New(s.persist, append([]navstate.Option{
		navstate.WithPathFinder(g),
		navstate.WithLogger(s.logger),
		navstate.WithMetrics(s.metrics),
	}, s.stateOpts...)...)

	ropts := []migration.Option{
		migration.WithLogger(s.logger),
		migration.WithMetrics(s.metrics),
	}
	if s.async {
		ropts = append(ropts, migration.WithAsyncDispatch())
	}
	s.resolver = migration.New(g, ropts...)
	return s
}

// Open loads the persisted navigation state and expands the root and every
// node along an open path.
func (s *Session) Open(ctx context.Context) error {
	if err := s.state.Load(ctx); err != nil {
		return err
	}
	s.Expand(ctx, domain.RootID, domain.Outbound)
	return s.Restore(ctx)
}

// Restore expands the nodes of every open path, shortest paths first, so the
// tree looks the way it was left.
func (s *Session) Restore(ctx context.Context) error {
	for _, e := range s.state.Entries() {
		if !e.State.Open {
			continue
		}
		for _, id := range domain.SplitPathKey(e.Key) {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.Expand(ctx, id, domain.Outbound)
		}
	}
	return s.settle(ctx)
}

// ExpandDepth expands the outbound subtree under id, depth levels deep.
func (s *Session) ExpandDepth(ctx context.Context, id string, depth int) error {
	level := []string{id}
	for d := 0; d < depth && len(level) > 0; d++ {
		var next []string
		for _, cur := range level {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.Expand(ctx, cur, domain.Outbound)
			for _, child := range s.Connections(cur, domain.Outbound) {
				next = append(next, child.ID)
			}
		}
		level = next
	}
	return s.settle(ctx)
}

// Graph returns the navigation graph.
func (s *Session) Graph() *graph.Graph { return s.builder.Graph() }

// Builder returns the extension registry.
func (s *Session) Builder() *builder.Builder { return s.builder }

// State returns the navigation state store.
func (s *Session) State() *navstate.Store { return s.state }

// Resolver returns the migration resolver.
func (s *Session) Resolver() *migration.Resolver { return s.resolver }

// Node returns the current snapshot of a node.
func (s *Session) Node(id string) (*domain.Node, bool) { return s.Graph().Node(id) }

// Connections returns the ordered neighbours of id.
func (s *Session) Connections(id string, rel domain.Relation) []*domain.Node {
	return s.Graph().Connections(id, rel)
}

// Expand requests the contributions of id in direction rel.
func (s *Session) Expand(ctx context.Context, id string, rel domain.Relation) {
	s.Graph().Expand(ctx, id, rel)
}

// Tree dumps the outbound subtree under id.
func (s *Session) Tree(id string) graph.TreeNode { return s.Graph().Tree(id) }

// Paths returns every path from the root to id.
func (s *Session) Paths(id string) [][]string { return s.Graph().Paths(id) }

// Watch subscribes to graph changes.
func (s *Session) Watch(fn func(domain.NodeChange)) (cancel func()) { return s.Graph().Watch(fn) }

// Entries returns the navigation state entries.
func (s *Session) Entries() []domain.PathStateEntry { return s.state.Entries() }

// Toggle flips a state key of path. Opening a path expands its last node.
func (s *Session) Toggle(ctx context.Context, path []string, key domain.StateKey) (bool, error) {
	v, err := s.state.Toggle(ctx, path, key)
	if err != nil {
		return v, err
	}
	if key == domain.StateOpen && v && len(path) > 0 {
		s.Expand(ctx, path[len(path)-1], domain.Outbound)
	}
	return v, nil
}

// SetActive marks the paths ending in ids as current.
func (s *Session) SetActive(ctx context.Context, ids []string) { s.state.SetActive(ctx, ids) }

// Drop classifies and executes a drag-and-drop instruction.
func (s *Session) Drop(ctx context.Context, instr domain.Instruction) migration.Result {
	return s.resolver.Drop(ctx, instr)
}

// StartDrag begins a drag of the node at sourcePath.
func (s *Session) StartDrag(sourcePath []string) *migration.Drag {
	return s.resolver.StartDrag(sourcePath)
}

// Flush waits for pending re-expansions and drop callbacks, then collects
// the nodes they left unreachable.
func (s *Session) Flush(ctx context.Context) error {
	s.resolver.Wait()
	return s.settle(ctx)
}

// Collect removes the nodes no longer connected to the root and ends their
// extension subscriptions. It returns the removed ids.
func (s *Session) Collect() []string {
	return s.Graph().Collect()
}

func (s *Session) settle(ctx context.Context) error {
	if err := s.builder.Flush(ctx); err != nil {
		return err
	}
	s.Collect()
	return nil
}

// Close stops background work. The state store passed to WithStateStore is
// left open.
func (s *Session) Close() error {
	s.resolver.Wait()
	return errors.Join(s.state.Close(), s.builder.Close())
}
