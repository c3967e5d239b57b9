package domain

const (
	// RootID is the id of the synthetic root node every graph starts with.
	RootID = "root"
	// RootType is the type of the root node.
	RootType = "arbor/root"

	// PathSeparator joins node ids into a path key. Ids must not contain it.
	PathSeparator = "~"
)

// Relation is the direction of an edge relative to a node.
type Relation string

const (
	Outbound Relation = "outbound"
	Inbound  Relation = "inbound"
)

// Opposite returns the reverse direction.
func (r Relation) Opposite() Relation {
	if r == Inbound {
		return Outbound
	}
	return Inbound
}

// Property keys understood by the core.
const (
	PropLabel       = "label"
	PropIcon        = "icon"
	PropRole        = "role"
	PropDisposition = "disposition"
)

// Well-known property values.
const (
	RoleBranch = "branch"

	DispositionItem          = "item"
	DispositionHidden        = "hidden"
	DispositionAlternateTree = "alternate-tree"
)
