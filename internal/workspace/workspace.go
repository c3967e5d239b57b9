// Package workspace is a small in-memory domain store of spaces, collections
// and objects, exposed to the navigation graph through builder extensions.
//
// Collections accept objects of the same space. Moving an object inside its
// space transfers it; dropping it into another space copies it under a fresh
// id. The graph is never edited directly: every mutation updates an
// observable value and the builder re-expands the affected nodes.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/builder"
	"github.com/aretw0/arbor/pkg/domain"
)

// Node types contributed by the workspace.
const (
	TypeSpace      = "arbor/space"
	TypeCollection = "arbor/collection"
	TypeAction     = "arbor/action"

	// ClassObject is the persistence class of objects; collections accept it.
	ClassObject = "echo"
	// ClassCollection is the persistence class of collections.
	ClassCollection = "collection"
)

// Object is an immutable snapshot of a domain object. Updates store a new
// pointer so the graph sees the change.
type Object struct {
	ID    string
	Type  string
	Name  string
	Space string
	Meta  ObjectMeta
}

type space struct {
	id          string
	name        string
	collections *builder.Value[[]string]
}

type collection struct {
	id    string
	name  string
	space string
	items *builder.Value[[]string]
}

// Workspace holds the domain data.
type Workspace struct {
	mu          sync.RWMutex
	spaces      map[string]*space
	collections map[string]*collection
	objects     map[string]*Object
	order       *builder.Value[[]string]

	logger *slog.Logger
}

// Option configures the Workspace.
type Option func(*Workspace)

// WithLogger configures a logger for the Workspace.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workspace) {
		w.logger = logger
	}
}

// New builds a workspace from a fixture.
func New(f *Fixture, opts ...Option) *Workspace {
	w := &Workspace{
		spaces:      make(map[string]*space),
		collections: make(map[string]*collection),
		objects:     make(map[string]*Object),
		order:       builder.NewValue[[]string](nil),
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	var spaceIDs []string
	for _, sf := range f.Spaces {
		s := &space{id: sf.ID, name: sf.Name}
		var collIDs []string
		for _, cf := range sf.Collections {
			c := &collection{id: cf.ID, name: cf.Name, space: sf.ID}
			var objIDs []string
			for _, of := range cf.Objects {
				w.objects[of.ID] = &Object{ID: of.ID, Type: of.Type, Name: of.Name, Space: sf.ID, Meta: of.Meta}
				objIDs = append(objIDs, of.ID)
			}
			c.items = builder.NewValue(objIDs)
			w.collections[cf.ID] = c
			collIDs = append(collIDs, cf.ID)
		}
		s.collections = builder.NewValue(collIDs)
		w.spaces[sf.ID] = s
		spaceIDs = append(spaceIDs, sf.ID)
	}
	w.order.Set(spaceIDs)
	return w
}

// Load reads a fixture file. An empty path loads the built-in demo.
func Load(path string, opts ...Option) (*Workspace, error) {
	data := []byte(Demo)
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read workspace: %w", err)
		}
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return New(f, opts...), nil
}

// Object returns the current snapshot of an object.
func (w *Workspace) Object(id string) (*Object, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	o, ok := w.objects[id]
	return o, ok
}

// Items returns the object ids of a collection in order.
func (w *Workspace) Items(collectionID string) []string {
	c, ok := w.collection(collectionID)
	if !ok {
		return nil
	}
	return slices.Clone(c.items.Get())
}

// Collections returns the collection ids of a space in order.
func (w *Workspace) Collections(spaceID string) []string {
	w.mu.RLock()
	s, ok := w.spaces[spaceID]
	w.mu.RUnlock()
	if !ok {
		return nil
	}
	return slices.Clone(s.collections.Get())
}

// Fixture exports the current content.
func (w *Workspace) Fixture() *Fixture {
	f := &Fixture{}
	for _, sid := range w.order.Get() {
		w.mu.RLock()
		s := w.spaces[sid]
		w.mu.RUnlock()
		sf := SpaceFixture{ID: s.id, Name: s.name}
		for _, cid := range s.collections.Get() {
			c, _ := w.collection(cid)
			cf := CollectionFixture{ID: c.id, Name: c.name}
			for _, oid := range c.items.Get() {
				if o, ok := w.Object(oid); ok {
					cf.Objects = append(cf.Objects, ObjectFixture{ID: o.ID, Type: o.Type, Name: o.Name, Meta: o.Meta})
				}
			}
			sf.Collections = append(sf.Collections, cf)
		}
		f.Spaces = append(f.Spaces, sf)
	}
	return f
}

// Create adds a new object at the end of a collection.
func (w *Workspace) Create(collectionID, typ, name string) (*Object, error) {
	c, ok := w.collection(collectionID)
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collectionID, domain.ErrNodeNotFound)
	}
	o := &Object{ID: uuid.NewString(), Type: typ, Name: name, Space: c.space}
	w.mu.Lock()
	w.objects[o.ID] = o
	w.mu.Unlock()
	c.items.Update(func(ids []string) []string {
		return append(slices.Clone(ids), o.ID)
	})
	w.logger.Debug("Created object", "id", o.ID, "collection", collectionID)
	return o, nil
}

// Rename replaces the name of an object.
func (w *Workspace) Rename(id, name string) error {
	w.mu.Lock()
	o, ok := w.objects[id]
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("object %q: %w", id, domain.ErrNodeNotFound)
	}
	next := *o
	next.Name = name
	w.objects[id] = &next
	owners := w.ownersLocked(id)
	w.mu.Unlock()

	for _, c := range owners {
		c.items.Update(func(ids []string) []string { return slices.Clone(ids) })
	}
	return nil
}

func (w *Workspace) collection(id string) (*collection, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, ok := w.collections[id]
	return c, ok
}

func (w *Workspace) ownersLocked(objectID string) []*collection {
	var out []*collection
	for _, c := range w.collections {
		if slices.Contains(c.items.Get(), objectID) {
			out = append(out, c)
		}
	}
	return out
}

// insert places id at index, moving it when already present.
func insert(ids []string, id string, index int) []string {
	out := make([]string, 0, len(ids)+1)
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	if index < 0 || index > len(out) {
		index = len(out)
	}
	return slices.Insert(out, index, id)
}

func remove(ids []string, id string) []string {
	return slices.DeleteFunc(slices.Clone(ids), func(v string) bool { return v == id })
}

// reorder puts ids listed in next first and keeps the rest after them.
func reorder(ids, next []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range next {
		if slices.Contains(ids, id) && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// objectFor recovers the object carried by a dragged node.
func (w *Workspace) objectFor(n *domain.Node) (*Object, error) {
	if o, ok := n.Data.(*Object); ok {
		return o, nil
	}
	if o, ok := w.Object(n.ID); ok {
		return o, nil
	}
	return nil, fmt.Errorf("%q is not a workspace object: %w", n.ID, domain.ErrNodeNotFound)
}
