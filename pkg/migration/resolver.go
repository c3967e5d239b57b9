// Package migration classifies and executes drag-and-drop operations on the
// navigation graph.
//
// A drop is a capability negotiation: nodes declare which persistence
// classes and keys they accept and which callbacks they implement, and the
// resolver walks up the target's path to find a compatible container. Only
// Rearrange touches the graph directly; Copy and Transfer mutate the external
// store through callbacks and the graph follows through expansion.
package migration

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
)

// GraphReader is the part of the graph the resolver needs.
type GraphReader interface {
	Node(id string) (*domain.Node, bool)
	Connections(id string, rel domain.Relation) []*domain.Node
	SortEdges(id string, rel domain.Relation, order []string) error
}

// Plan is the outcome of classifying an instruction.
type Plan struct {
	Operation   domain.Operation
	Instruction domain.Instruction

	Source       *domain.Node
	SourceParent *domain.Node
	// Destination receives the drop: the persistence parent for Copy and
	// Transfer, the shared parent for Rearrange.
	Destination *domain.Node
	// Index is the insertion index among the destination's children.
	Index int
	// Order is the new sibling order of a Rearrange, by id.
	Order []string
	// Reason explains a Reject.
	Reason string
}

// Result reports the execution of a plan.
type Result struct {
	Plan Plan
	Err  error
}

// Resolver classifies and dispatches drops.
type Resolver struct {
	graph   GraphReader
	async   bool
	pending sync.WaitGroup
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithLogger configures a logger for the Resolver.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithAsyncDispatch makes Execute return immediately and run callbacks in
// the background. Failures are logged.
func WithAsyncDispatch() Option {
	return func(r *Resolver) {
		r.async = true
	}
}

// New creates a Resolver over g.
func New(g GraphReader, opts ...Option) *Resolver {
	r := &Resolver{
		graph:  g,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Drop classifies and executes an instruction.
func (r *Resolver) Drop(ctx context.Context, instr domain.Instruction) Result {
	return r.Execute(ctx, r.Classify(instr))
}

// Wait blocks until asynchronous dispatches have finished.
func (r *Resolver) Wait() {
	r.pending.Wait()
}

// Execute runs the callbacks of a plan. Callback errors and panics are
// returned in the Result, never raised.
func (r *Resolver) Execute(ctx context.Context, plan Plan) Result {
	r.metrics.Migration(string(plan.Operation))
	if plan.Operation == domain.OpReject || plan.Operation == "" {
		return Result{Plan: plan}
	}
	if !r.async {
		return Result{Plan: plan, Err: r.dispatch(ctx, plan)}
	}

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		_ = r.dispatch(context.WithoutCancel(ctx), plan)
	}()
	return Result{Plan: plan}
}

func (r *Resolver) dispatch(ctx context.Context, plan Plan) error {
	var err error
	switch plan.Operation {
	case domain.OpRearrange:
		err = r.rearrange(ctx, plan)
	case domain.OpCopy:
		err = invoke(plan.Destination.ID, "copy", func() error {
			return plan.Destination.Handlers.OnCopy(ctx, plan.Source, plan.Index)
		})
	case domain.OpTransfer:
		err = invoke(plan.Destination.ID, "transfer-start", func() error {
			return plan.Destination.Handlers.OnTransferStart(ctx, plan.Source, plan.Index)
		})
		// The source is only released once the destination accepted it.
		if err == nil {
			err = invoke(plan.SourceParent.ID, "transfer-end", func() error {
				return plan.SourceParent.Handlers.OnTransferEnd(ctx, plan.Source, plan.Destination)
			})
		}
	}
	if err != nil {
		r.logger.Error("Drop failed", "operation", plan.Operation, "source", plan.Source.ID, "err", err)
	}
	return err
}

func (r *Resolver) rearrange(ctx context.Context, plan Plan) error {
	parent := plan.SourceParent
	if err := r.graph.SortEdges(parent.ID, domain.Outbound, plan.Order); err != nil {
		r.logger.Warn("Failed to reorder siblings", "parent", parent.ID, "err", err)
		return err
	}
	if parent.Handlers.OnRearrangeChildren == nil {
		return nil
	}

	next := make([]any, 0, len(plan.Order))
	for _, id := range plan.Order {
		if n, ok := r.graph.Node(id); ok {
			next = append(next, n.Data)
		}
	}
	return invoke(parent.ID, "rearrange", func() error {
		return parent.Handlers.OnRearrangeChildren(ctx, next)
	})
}

func invoke(nodeID, op string, fn func() error) (err error) {
	defer domain.Recover("", nodeID, op, &err)
	if err := fn(); err != nil {
		return &domain.ContributorError{NodeID: nodeID, Op: op, Err: err}
	}
	return nil
}
