package domain

import (
	"context"
	"reflect"
)

// Kind distinguishes plain navigation nodes from actions.
type Kind string

const (
	KindPlain       Kind = "plain"
	KindAction      Kind = "action"
	KindActionGroup Kind = "action-group"
)

// IsAction reports whether the kind is an action or an action group.
func (k Kind) IsAction() bool {
	return k == KindAction || k == KindActionGroup
}

// Properties is the open, extensible property bag of a node.
type Properties map[string]any

// String returns the property as a string, or "" if absent or not a string.
func (p Properties) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// ActionFunc is invoked when the UI triggers an action node.
type ActionFunc func(ctx context.Context, params map[string]any) error

// Handlers are the optional drag-and-drop callbacks a contributor can attach.
// Each one mutates the external domain store; the graph follows through expansion.
type Handlers struct {
	// OnRearrangeChildren receives the Data of the children in their new order.
	OnRearrangeChildren func(ctx context.Context, next []any) error
	// OnCopy inserts a copy of source at index among the receiver's children.
	OnCopy func(ctx context.Context, source *Node, index int) error
	// OnTransferStart inserts source at index among the receiver's children.
	OnTransferStart func(ctx context.Context, source *Node, index int) error
	// OnTransferEnd removes source from the receiver after it moved to destination.
	OnTransferEnd func(ctx context.Context, source *Node, destination *Node) error
}

func (h Handlers) mask() uint8 {
	var m uint8
	if h.OnRearrangeChildren != nil {
		m |= 1
	}
	if h.OnCopy != nil {
		m |= 2
	}
	if h.OnTransferStart != nil {
		m |= 4
	}
	if h.OnTransferEnd != nil {
		m |= 8
	}
	return m
}

// Persistence declares the storage domain a node belongs to and which domains it accepts as children.
type Persistence struct {
	Class       string `json:"class,omitempty" yaml:"class,omitempty"`
	Key         string `json:"key,omitempty" yaml:"key,omitempty"`
	AcceptClass Set    `json:"accept_class,omitempty" yaml:"accept_class,omitempty"`
	AcceptKey   Set    `json:"accept_key,omitempty" yaml:"accept_key,omitempty"`
}

// Accepts reports whether a node with persistence p can hold an item of the given class.
func (p Persistence) Accepts(class string) bool {
	return class != "" && p.AcceptClass.Has(class)
}

// Equal compares two persistence declarations by value.
func (p Persistence) Equal(o Persistence) bool {
	return p.Class == o.Class && p.Key == o.Key && p.AcceptClass.Equal(o.AcceptClass) && p.AcceptKey.Equal(o.AcceptKey)
}

// Node is an immutable snapshot of a vertex in the navigation graph.
// Updates replace the snapshot; the graph keeps the old pointer when content is unchanged.
type Node struct {
	ID          string      `json:"id" yaml:"id"`
	Type        string      `json:"type,omitempty" yaml:"type,omitempty"`
	Kind        Kind        `json:"kind" yaml:"kind"`
	Data        any         `json:"data,omitempty" yaml:"data,omitempty"`
	Properties  Properties  `json:"properties,omitempty" yaml:"properties,omitempty"`
	Persistence Persistence `json:"persistence,omitempty" yaml:"persistence,omitempty"`
	Handlers    Handlers    `json:"-" yaml:"-"`
	Invoke      ActionFunc  `json:"-" yaml:"-"`
}

// Label returns the label property.
func (n *Node) Label() string { return n.Properties.String(PropLabel) }

// Role returns the role property.
func (n *Node) Role() string { return n.Properties.String(PropRole) }

// Disposition returns the disposition property.
func (n *Node) Disposition() string { return n.Properties.String(PropDisposition) }

// Equal reports whether two snapshots carry the same content.
// Callback identity is not comparable in Go, so only callback presence is considered.
func (n *Node) Equal(o *Node) bool {
	if n == o {
		return true
	}
	if n == nil || o == nil {
		return false
	}
	return n.ID == o.ID &&
		n.Type == o.Type &&
		n.Kind == o.Kind &&
		SameData(n.Data, o.Data) &&
		propertiesEqual(n.Properties, o.Properties) &&
		n.Persistence.Equal(o.Persistence) &&
		n.Handlers.mask() == o.Handlers.mask() &&
		(n.Invoke == nil) == (o.Invoke == nil)
}

// Merge returns a new snapshot with arg applied on top of n.
// Properties are merged key by key; every other field is replaced.
func (n *Node) Merge(arg NodeArg) *Node {
	next := arg.Node()
	if n == nil {
		return next
	}
	props := make(Properties, len(n.Properties)+len(next.Properties))
	for k, v := range n.Properties {
		props[k] = v
	}
	for k, v := range next.Properties {
		props[k] = v
	}
	next.Properties = props
	return next
}

// NodeArg is the unmaterialized descriptor a connector or resolver hands to the graph.
type NodeArg struct {
	ID          string
	Type        string
	Kind        Kind
	Data        any
	Properties  Properties
	Persistence Persistence
	Handlers    Handlers
	Invoke      ActionFunc

	// Order is an optional explicit order key among the parent's children.
	Order string
	// Nodes are children added together with this node.
	Nodes []NodeArg
}

// Node materializes the descriptor into a snapshot.
func (a NodeArg) Node() *Node {
	kind := a.Kind
	if kind == "" {
		kind = KindPlain
	}
	props := make(Properties, len(a.Properties))
	for k, v := range a.Properties {
		props[k] = v
	}
	return &Node{
		ID:          a.ID,
		Type:        a.Type,
		Kind:        kind,
		Data:        a.Data,
		Properties:  props,
		Persistence: a.Persistence,
		Handlers:    a.Handlers,
		Invoke:      a.Invoke,
	}
}

// SameData compares domain references. Pointers, channels and funcs compare by
// identity; other values are compared deeply.
func SameData(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Func:
		return va.Pointer() == vb.Pointer()
	}
	return reflect.DeepEqual(a, b)
}

func propertiesEqual(a, b Properties) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !SameData(va, vb) {
			return false
		}
	}
	return true
}
