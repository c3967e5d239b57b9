/*
Package arbor is a reactive navigation tree for applications whose hierarchy
is contributed by independent extensions and backed by external stores.

The tree is a graph of immutable node snapshots. Nodes are never created by
hand: registered extensions compute the children of a node on demand, and a
change signalled by an extension re-expands the node and diffs the result
into the graph. On top of the graph, arbor keeps per-path UI state (open,
current, alternate tree) in a pluggable store and resolves drag-and-drop
gestures into rearrange, copy or transfer operations negotiated through the
persistence capabilities each node declares.

# Architecture

  - pkg/graph: nodes, ordered edges, traversal and change notifications.
  - pkg/builder: the extension registry and observable values.
  - pkg/navstate: path state with debounced persistence.
  - pkg/migration: drop classification and dispatch.
  - pkg/orderkey: fractional keys ordering siblings.
  - pkg/adapters: state backends (memory, file, redis, sqlite) and the HTTP API.

# Usage

	items := builder.NewValue([]string{"a", "b"})

	s := arbor.New(
		arbor.WithExtensions(builder.Extension{
			ID:     "items",
			Filter: func(n *domain.Node) bool { return n.ID == domain.RootID },
			Connector: func(ctx context.Context, _ *domain.Node) ([]domain.NodeArg, builder.Notifier, error) {
				var args []domain.NodeArg
				for _, id := range items.Get() {
					args = append(args, domain.NodeArg{ID: id})
				}
				return args, items, nil
			},
		}),
		arbor.WithStateStore(memory.NewStore()),
	)
	defer s.Close()

	if err := s.Open(ctx); err != nil {
		log.Fatal(err)
	}

	items.Set([]string{"b", "a", "c"})
	_ = s.Flush(ctx)

The root node always exists and is identified by domain.RootID.
*/
package arbor
