package domain

// ChangeType identifies what happened to a node.
type ChangeType string

const (
	NodeAdded   ChangeType = "added"
	NodeUpdated ChangeType = "updated"
	NodeRemoved ChangeType = "removed"
)

// NodeChange is emitted by the graph whenever a stored snapshot changes.
// Node is nil for removals.
type NodeChange struct {
	Type ChangeType `json:"type"`
	ID   string     `json:"id"`
	Node *Node      `json:"node,omitempty"`
}
