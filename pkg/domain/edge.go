package domain

// Edge is a directed relation from Source to Target.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Edges is the adjacency of one node. Outbound is kept sorted by order key.
type Edges struct {
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
}

// Get returns the ids for one direction.
func (e Edges) Get(rel Relation) []string {
	if rel == Inbound {
		return e.Inbound
	}
	return e.Outbound
}
