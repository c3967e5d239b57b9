package workspace

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/aretw0/arbor/pkg/builder"
	"github.com/aretw0/arbor/pkg/domain"
)

// Extensions returns the builder extensions contributing the workspace to a
// navigation graph: spaces under the root, collections under spaces, objects
// and actions under collections, and a resolver for deep links to objects.
func (w *Workspace) Extensions() []builder.Extension {
	return []builder.Extension{
		{
			ID:        "workspace/spaces",
			Filter:    func(n *domain.Node) bool { return n.ID == domain.RootID },
			Connector: w.connectSpaces,
		},
		{
			ID:        "workspace/collections",
			Filter:    ofType(TypeSpace),
			Connector: w.connectCollections,
		},
		{
			ID:        "workspace/objects",
			Filter:    ofType(TypeCollection),
			Connector: w.connectObjects,
			Actions:   w.collectionActions,
		},
		{
			ID:       "workspace/resolver",
			Resolver: w.resolve,
		},
	}
}

func ofType(t string) builder.FilterFunc {
	return func(n *domain.Node) bool { return n.Type == t }
}

func (w *Workspace) connectSpaces(_ context.Context, _ *domain.Node) ([]domain.NodeArg, builder.Notifier, error) {
	ids := w.order.Get()
	args := make([]domain.NodeArg, 0, len(ids))
	for _, id := range ids {
		w.mu.RLock()
		s, ok := w.spaces[id]
		w.mu.RUnlock()
		if ok {
			args = append(args, w.spaceArg(s))
		}
	}
	return args, w.order, nil
}

func (w *Workspace) connectCollections(_ context.Context, node *domain.Node) ([]domain.NodeArg, builder.Notifier, error) {
	w.mu.RLock()
	s, ok := w.spaces[node.ID]
	w.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("space %q: %w", node.ID, domain.ErrNodeNotFound)
	}
	ids := s.collections.Get()
	args := make([]domain.NodeArg, 0, len(ids))
	for _, id := range ids {
		if c, ok := w.collection(id); ok {
			args = append(args, w.collectionArg(c))
		}
	}
	return args, s.collections, nil
}

func (w *Workspace) connectObjects(_ context.Context, node *domain.Node) ([]domain.NodeArg, builder.Notifier, error) {
	c, ok := w.collection(node.ID)
	if !ok {
		return nil, nil, fmt.Errorf("collection %q: %w", node.ID, domain.ErrNodeNotFound)
	}
	ids := c.items.Get()
	args := make([]domain.NodeArg, 0, len(ids))
	for _, id := range ids {
		if o, ok := w.Object(id); ok {
			args = append(args, objectArg(o))
		}
	}
	return args, c.items, nil
}

func (w *Workspace) collectionActions(_ context.Context, node *domain.Node) ([]domain.NodeArg, builder.Notifier, error) {
	id := node.ID
	return []domain.NodeArg{{
		ID:         id + "/create",
		Type:       TypeAction,
		Kind:       domain.KindAction,
		Properties: domain.Properties{domain.PropLabel: "New object", domain.PropIcon: "plus"},
		Invoke: func(_ context.Context, params map[string]any) error {
			name, _ := params["name"].(string)
			if name == "" {
				name = "Untitled"
			}
			typ, _ := params["type"].(string)
			_, err := w.Create(id, typ, name)
			return err
		},
	}}, nil, nil
}

func (w *Workspace) resolve(_ context.Context, id string) (*domain.NodeArg, error) {
	if o, ok := w.Object(id); ok {
		arg := objectArg(o)
		return &arg, nil
	}
	if c, ok := w.collection(id); ok {
		arg := w.collectionArg(c)
		return &arg, nil
	}
	return nil, nil
}

func (w *Workspace) spaceArg(s *space) domain.NodeArg {
	return domain.NodeArg{
		ID:   s.id,
		Type: TypeSpace,
		Data: s.id,
		Properties: domain.Properties{
			domain.PropLabel: s.name,
			domain.PropRole:  domain.RoleBranch,
		},
		Persistence: domain.Persistence{Key: s.id},
		Handlers: domain.Handlers{
			OnRearrangeChildren: func(_ context.Context, next []any) error {
				ids := make([]string, 0, len(next))
				for _, v := range next {
					if id, ok := v.(string); ok {
						ids = append(ids, id)
					}
				}
				s.collections.Update(func(cur []string) []string { return reorder(cur, ids) })
				return nil
			},
		},
	}
}

func (w *Workspace) collectionArg(c *collection) domain.NodeArg {
	return domain.NodeArg{
		ID:   c.id,
		Type: TypeCollection,
		Data: c.id,
		Properties: domain.Properties{
			domain.PropLabel: c.name,
			domain.PropRole:  domain.RoleBranch,
		},
		Persistence: domain.Persistence{
			Class:       ClassCollection,
			Key:         c.space,
			AcceptClass: domain.NewSet(ClassObject),
			AcceptKey:   domain.NewSet(c.space),
		},
		Handlers: w.collectionHandlers(c),
	}
}

func (w *Workspace) collectionHandlers(c *collection) domain.Handlers {
	return domain.Handlers{
		OnRearrangeChildren: func(_ context.Context, next []any) error {
			ids := make([]string, 0, len(next))
			for _, v := range next {
				if o, ok := v.(*Object); ok {
					ids = append(ids, o.ID)
				}
			}
			c.items.Update(func(cur []string) []string { return reorder(cur, ids) })
			return nil
		},
		OnTransferStart: func(_ context.Context, source *domain.Node, index int) error {
			o, err := w.objectFor(source)
			if err != nil {
				return err
			}
			c.items.Update(func(cur []string) []string { return insert(cur, o.ID, index) })
			w.logger.Debug("Transferred object in", "id", o.ID, "collection", c.id, "index", index)
			return nil
		},
		OnTransferEnd: func(_ context.Context, source *domain.Node, destination *domain.Node) error {
			if destination.ID == c.id {
				return nil
			}
			c.items.Update(func(cur []string) []string { return remove(cur, source.ID) })
			return nil
		},
		OnCopy: func(_ context.Context, source *domain.Node, index int) error {
			o, err := w.objectFor(source)
			if err != nil {
				return err
			}
			clone := *o
			clone.ID = uuid.NewString()
			clone.Space = c.space
			clone.Meta.Tags = slices.Clone(o.Meta.Tags)
			w.mu.Lock()
			w.objects[clone.ID] = &clone
			w.mu.Unlock()
			c.items.Update(func(cur []string) []string { return insert(cur, clone.ID, index) })
			w.logger.Debug("Copied object", "source", o.ID, "id", clone.ID, "collection", c.id)
			return nil
		},
	}
}

func objectArg(o *Object) domain.NodeArg {
	props := domain.Properties{
		domain.PropLabel:       o.Name,
		domain.PropDisposition: domain.DispositionItem,
	}
	if o.Meta.Icon != "" {
		props[domain.PropIcon] = o.Meta.Icon
	}
	if o.Meta.Pinned {
		props["pinned"] = true
	}
	if len(o.Meta.Tags) > 0 {
		props["tags"] = slices.Clone(o.Meta.Tags)
	}
	return domain.NodeArg{
		ID:          o.ID,
		Type:        o.Type,
		Data:        o,
		Properties:  props,
		Persistence: domain.Persistence{Class: ClassObject, Key: o.Space},
	}
}
