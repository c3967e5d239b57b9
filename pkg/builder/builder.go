// Package builder implements the extension registry that populates a
// navigation graph on demand.
//
// Extensions contribute connectors, actions and resolvers. When the graph
// expands a node, every matching extension runs concurrently and the outputs
// are merged in registration order. Connectors return a Notifier; a change
// re-expands the node, and the subscription is dropped when the node leaves
// the graph, the extension is removed or the Builder is closed.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/orderkey"
)

// ConnectorFunc computes the nodes connected to node. The returned Notifier,
// when non-nil, signals that the output may have changed.
type ConnectorFunc func(ctx context.Context, node *domain.Node) ([]domain.NodeArg, Notifier, error)

// ResolverFunc looks up a node by id. It returns nil when the id is unknown.
type ResolverFunc func(ctx context.Context, id string) (*domain.NodeArg, error)

// FilterFunc restricts an extension to the nodes it accepts.
type FilterFunc func(node *domain.Node) bool

// OrderFunc returns the preferred order of the connector output by id.
type OrderFunc func(ctx context.Context, node *domain.Node) []string

// Extension is a bundle of contributions registered under a unique id.
// Every function field is optional.
type Extension struct {
	ID string
	// Relation the connector contributes to. Defaults to Outbound.
	Relation     domain.Relation
	Filter       FilterFunc
	Connector    ConnectorFunc
	Actions      ConnectorFunc
	ActionGroups ConnectorFunc
	Resolver     ResolverFunc
	Order        OrderFunc
}

type slot string

const (
	slotConnector    slot = "connector"
	slotActions      slot = "actions"
	slotActionGroups slot = "action-groups"
)

type contribution struct {
	extension string
	node      string
	relation  domain.Relation
	slot      slot
}

// memoEntry is the last good output of a contribution and the expansion
// generation that committed it.
type memoEntry struct {
	generation uint64
	args       []domain.NodeArg
}

type nodeKey struct {
	id       string
	relation domain.Relation
}

// Builder owns a graph and the extensions that feed it.
type Builder struct {
	graph *graph.Graph

	mu          sync.Mutex
	extensions  []Extension
	memo        map[contribution]memoEntry
	subs        map[contribution]func()
	expanded    map[nodeKey]bool
	closed      bool
	concurrency int
	inflight    int
	idle        chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	logger    *slog.Logger
	metrics   *observability.Metrics
	graphOpts []graph.Option
}

// Option configures the Builder.
type Option func(*Builder)

// WithLogger configures a logger for the Builder and its graph.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithMetrics enables Prometheus metrics for the Builder and its graph.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

// WithConcurrency bounds how many contributors run at once for a single expansion.
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithExtensions registers extensions at construction time.
func WithExtensions(exts ...Extension) Option {
	return func(b *Builder) {
		b.extensions = append(b.extensions, exts...)
	}
}

// WithGraphOptions passes extra options to the owned graph.
func WithGraphOptions(opts ...graph.Option) Option {
	return func(b *Builder) {
		b.graphOpts = append(b.graphOpts, opts...)
	}
}

// New creates a Builder and its graph.
func New(opts ...Option) *Builder {
	b := &Builder{
		memo:        make(map[contribution]memoEntry),
		subs:        make(map[contribution]func()),
		expanded:    make(map[nodeKey]bool),
		concurrency: 4,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())

	seen := make(map[string]bool, len(b.extensions))
	exts := b.extensions[:0]
	for _, ext := range b.extensions {
		if seen[ext.ID] {
			b.logger.Warn("Ignoring duplicate extension", "extension", ext.ID)
			continue
		}
		seen[ext.ID] = true
		exts = append(exts, normalize(ext))
	}
	b.extensions = exts

	gopts := []graph.Option{
		graph.WithLogger(b.logger),
		graph.WithMetrics(b.metrics),
		graph.WithExpander(b.expand),
		graph.WithResolver(b.resolve),
		graph.WithRemoveHook(b.forget),
	}
	b.graph = graph.New(append(gopts, b.graphOpts...)...)
	return b
}

// Graph returns the owned graph.
func (b *Builder) Graph() *graph.Graph {
	return b.graph
}

// Extensions returns the registered extensions in registration order.
func (b *Builder) Extensions() []Extension {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Extension{}, b.extensions...)
}

// AddExtension registers extensions and re-expands every node expanded so far.
func (b *Builder) AddExtension(ctx context.Context, exts ...Extension) error {
	b.mu.Lock()
	for _, ext := range exts {
		if err := domain.ValidateID(ext.ID); err != nil {
			b.mu.Unlock()
			return fmt.Errorf("extension: %w", err)
		}
		for _, existing := range b.extensions {
			if existing.ID == ext.ID {
				b.mu.Unlock()
				return fmt.Errorf("%q: %w", ext.ID, domain.ErrDuplicateExtension)
			}
		}
	}
	for _, ext := range exts {
		b.extensions = append(b.extensions, normalize(ext))
	}
	keys := make([]nodeKey, 0, len(b.expanded))
	for k := range b.expanded {
		keys = append(keys, k)
	}
	b.mu.Unlock()

	for _, k := range keys {
		b.graph.Expand(ctx, k.id, k.relation)
	}
	return nil
}

// RemoveExtension unregisters an extension, drops its subscriptions and
// re-expands the nodes it contributed to.
func (b *Builder) RemoveExtension(ctx context.Context, id string) error {
	b.mu.Lock()
	idx := -1
	for i, ext := range b.extensions {
		if ext.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return fmt.Errorf("%q: %w", id, domain.ErrExtensionNotFound)
	}
	b.extensions = append(b.extensions[:idx:idx], b.extensions[idx+1:]...)

	var unsubs []func()
	touched := make(map[nodeKey]bool)
	for c, unsub := range b.subs {
		if c.extension == id {
			if unsub != nil {
				unsubs = append(unsubs, unsub)
			}
			delete(b.subs, c)
		}
	}
	for c := range b.memo {
		if c.extension == id {
			touched[nodeKey{id: c.node, relation: c.relation}] = true
			delete(b.memo, c)
		}
	}
	b.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	b.logger.Debug("Removed extension", "extension", id, "nodes", len(touched))
	for k := range touched {
		b.graph.Expand(ctx, k.id, k.relation)
	}
	return nil
}

// Flush waits for re-expansions triggered by notifications, including the
// ones they trigger in turn.
func (b *Builder) Flush(ctx context.Context) error {
	for {
		b.mu.Lock()
		if b.inflight == 0 {
			b.mu.Unlock()
			return nil
		}
		idle := b.idle
		b.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close drops every subscription and stops pending re-expansions.
func (b *Builder) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	unsubs := make([]func(), 0, len(b.subs))
	for c, unsub := range b.subs {
		if unsub != nil {
			unsubs = append(unsubs, unsub)
		}
		delete(b.subs, c)
	}
	b.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	b.cancel()
	return b.Flush(context.Background())
}

// Subscriptions returns the number of live notifier subscriptions.
func (b *Builder) Subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func normalize(ext Extension) Extension {
	if ext.Relation == "" {
		ext.Relation = domain.Outbound
	}
	return ext
}

type job struct {
	ext  Extension
	slot slot
	fn   ConnectorFunc
}

func (b *Builder) jobs(node *domain.Node, rel domain.Relation) []job {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []job
	for _, ext := range b.extensions {
		if ext.Filter != nil && !accepts(ext, node) {
			continue
		}
		if ext.Connector != nil && ext.Relation == rel {
			out = append(out, job{ext: ext, slot: slotConnector, fn: ext.Connector})
		}
		if rel != domain.Outbound {
			continue
		}
		if ext.Actions != nil {
			out = append(out, job{ext: ext, slot: slotActions, fn: ext.Actions})
		}
		if ext.ActionGroups != nil {
			out = append(out, job{ext: ext, slot: slotActionGroups, fn: ext.ActionGroups})
		}
	}
	return out
}

func accepts(ext Extension, node *domain.Node) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return ext.Filter(node)
}

// expand is the graph's ExpandFunc.
func (b *Builder) expand(ctx context.Context, id string, rel domain.Relation) {
	node, ok := b.graph.Node(id)
	if !ok {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.expanded[nodeKey{id: id, relation: rel}] = true
	b.mu.Unlock()

	ticket := b.graph.BeginExpansion(id, rel)
	jobs := b.jobs(node, rel)
	results := make([][]domain.NodeArg, len(jobs))
	fresh := make([]bool, len(jobs))

	var eg errgroup.Group
	eg.SetLimit(b.concurrency)
	for i, j := range jobs {
		eg.Go(func() error {
			results[i], fresh[i] = b.run(ctx, j, node, rel)
			return nil
		})
	}
	_ = eg.Wait()

	var merged []domain.NodeArg
	seen := make(map[string]bool)
	for _, args := range results {
		for _, arg := range args {
			if seen[arg.ID] {
				b.logger.Debug("Duplicate contribution", "node", id, "child", arg.ID)
				continue
			}
			seen[arg.ID] = true
			merged = append(merged, arg)
		}
	}
	if err := assignOrder(merged); err != nil {
		b.logger.Warn("Failed to assign order keys", "node", id, "err", err)
	}
	if !b.graph.CommitExpansion(ticket, merged) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, j := range jobs {
		if !fresh[i] {
			continue
		}
		key := contribution{extension: j.ext.ID, node: id, relation: rel, slot: j.slot}
		if prev, ok := b.memo[key]; ok && prev.generation > ticket.Generation {
			continue
		}
		b.memo[key] = memoEntry{generation: ticket.Generation, args: results[i]}
	}
}

// run executes one contributor and returns its output, or its last good
// output when it fails. fresh reports whether the contributor succeeded.
func (b *Builder) run(ctx context.Context, j job, node *domain.Node, rel domain.Relation) (args []domain.NodeArg, fresh bool) {
	key := contribution{extension: j.ext.ID, node: node.ID, relation: rel, slot: j.slot}
	args, notifier, err := call(ctx, j, node)
	if err != nil {
		b.logger.Error("Contributor failed, keeping previous output", "extension", j.ext.ID, "node", node.ID, "op", string(j.slot), "err", err)
		b.metrics.ContributorFailure(j.ext.ID, string(j.slot))
		b.mu.Lock()
		prev := b.memo[key]
		b.mu.Unlock()
		return prev.args, false
	}

	switch j.slot {
	case slotActions:
		args = withKind(args, domain.KindAction)
	case slotActionGroups:
		args = withKind(args, domain.KindActionGroup)
	case slotConnector:
		if j.ext.Order != nil {
			args = reorder(ctx, j.ext, node, args, b.logger)
		}
	}

	if notifier != nil {
		b.subscribe(key, notifier)
	}
	return args, true
}

func call(ctx context.Context, j job, node *domain.Node) (args []domain.NodeArg, n Notifier, err error) {
	defer domain.Recover(j.ext.ID, node.ID, string(j.slot), &err)
	args, n, err = j.fn(ctx, node)
	if err != nil {
		return nil, nil, &domain.ContributorError{ExtensionID: j.ext.ID, NodeID: node.ID, Op: string(j.slot), Err: err}
	}
	return args, n, nil
}

func withKind(args []domain.NodeArg, kind domain.Kind) []domain.NodeArg {
	out := make([]domain.NodeArg, len(args))
	for i, a := range args {
		if a.Kind == "" || a.Kind == domain.KindPlain {
			a.Kind = kind
		}
		out[i] = a
	}
	return out
}

func reorder(ctx context.Context, ext Extension, node *domain.Node, args []domain.NodeArg, logger *slog.Logger) (out []domain.NodeArg) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Order function panicked", "extension", ext.ID, "node", node.ID, "panic", r)
			out = args
		}
	}()
	ids := make([]string, len(args))
	for i, a := range args {
		ids[i] = a.ID
	}
	keys, err := orderkey.Assign(ids, ext.Order(ctx, node))
	if err != nil {
		return args
	}
	out = append([]domain.NodeArg{}, args...)
	sort.SliceStable(out, func(i, j int) bool {
		return keys[out[i].ID] < keys[out[j].ID]
	})
	return out
}

// assignOrder gives dense ascending keys to the merged output. Items that
// already carry a key keep it.
func assignOrder(args []domain.NodeArg) error {
	keys, err := orderkey.N(len(args))
	if err != nil {
		return err
	}
	for i := range args {
		if args[i].Order == "" {
			args[i].Order = keys[i]
		}
	}
	return nil
}

func (b *Builder) subscribe(key contribution, n Notifier) {
	b.mu.Lock()
	if _, ok := b.subs[key]; ok || b.closed {
		b.mu.Unlock()
		return
	}
	// Reserve the slot so concurrent expansions subscribe only once.
	b.subs[key] = nil
	b.mu.Unlock()

	unsub := n.Subscribe(func() { b.notify(key.node, key.relation) })

	b.mu.Lock()
	if reserved, ok := b.subs[key]; ok && reserved == nil && !b.closed {
		b.subs[key] = unsub
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	unsub()
}

func (b *Builder) notify(id string, rel domain.Relation) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.inflight++
	if b.inflight == 1 {
		b.idle = make(chan struct{})
	}
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			b.inflight--
			if b.inflight == 0 {
				close(b.idle)
			}
			b.mu.Unlock()
		}()
		b.graph.Expand(b.ctx, id, rel)
	}()
}

// forget is the graph's remove hook.
func (b *Builder) forget(id string) {
	var unsubs []func()
	b.mu.Lock()
	for c, unsub := range b.subs {
		if c.node == id {
			if unsub != nil {
				unsubs = append(unsubs, unsub)
			}
			delete(b.subs, c)
		}
	}
	for c := range b.memo {
		if c.node == id {
			delete(b.memo, c)
		}
	}
	delete(b.expanded, nodeKey{id: id, relation: domain.Outbound})
	delete(b.expanded, nodeKey{id: id, relation: domain.Inbound})
	b.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

// resolve is the graph's ResolveFunc. Resolvers run in registration order and
// the first non-nil result wins.
func (b *Builder) resolve(ctx context.Context, id string) (*domain.NodeArg, error) {
	for _, ext := range b.Extensions() {
		if ext.Resolver == nil {
			continue
		}
		arg, err := resolveWith(ctx, ext, id)
		if err != nil {
			b.logger.Error("Resolver failed", "extension", ext.ID, "node", id, "err", err)
			b.metrics.ContributorFailure(ext.ID, "resolver")
			continue
		}
		if arg != nil {
			return arg, nil
		}
	}
	return nil, nil
}

func resolveWith(ctx context.Context, ext Extension, id string) (arg *domain.NodeArg, err error) {
	defer domain.Recover(ext.ID, id, "resolver", &err)
	return ext.Resolver(ctx, id)
}
