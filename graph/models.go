package graph

import "fmt"

// Position is a coordinate in canvas space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a typed business node on one canvas.
type Node struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Label       string         `json:"label"`
	Position    Position       `json:"position"`
	Attributes  map[string]any `json:"attributes,omitempty"` // absent key = unset, use default
	TemplateRef string         `json:"template_ref,omitempty"`
}

// Attr returns the attribute stored under key.
func (n Node) Attr(key string) (any, bool) {
	v, ok := n.Attributes[key]
	return v, ok
}

// StringAttr returns the attribute under key formatted as a string, or "" if unset.
func (n Node) StringAttr(key string) string {
	v, ok := n.Attributes[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	n.Attributes = copyAttributes(n.Attributes)
	return n
}

// Edge is a directed connection between two nodes of the same canvas.
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Kind   string   `json:"kind,omitempty"`
	Amount *float64 `json:"amount,omitempty"`
}

// Clone returns a deep copy of e.
func (e Edge) Clone() Edge {
	if e.Amount != nil {
		amount := *e.Amount
		e.Amount = &amount
	}
	return e
}

// Touches reports whether nodeID is either endpoint of e.
func (e Edge) Touches(nodeID string) bool {
	return e.Source == nodeID || e.Target == nodeID
}

// EdgeID derives the deterministic id for a (source, target, kind) triple.
func EdgeID(source, target, kind string) string {
	if kind == "" {
		return "e-" + source + "-" + target
	}
	return "e-" + source + "-" + target + "-" + kind
}

// MutationType names what changed in a Mutation.
type MutationType string

const (
	NodeAdded   MutationType = "node_added"
	NodeUpdated MutationType = "node_updated"
	NodeMoved   MutationType = "node_moved"
	NodeDeleted MutationType = "node_deleted"
	EdgeAdded   MutationType = "edge_added"
	EdgeUpdated MutationType = "edge_updated"
	EdgeDeleted MutationType = "edge_deleted"
)

// Mutation is delivered to observers after every successful change.
type Mutation struct {
	Type    MutationType `json:"type"`
	NodeID  string       `json:"node_id,omitempty"`
	EdgeID  string       `json:"edge_id,omitempty"`
	Removed []string     `json:"removed_edges,omitempty"` // edges cascaded by a node delete
	Version uint64       `json:"version"`
}

// Observer receives mutations synchronously on the mutating goroutine.
type Observer func(Mutation)
