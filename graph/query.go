package graph

// Nodes returns copies of every node in insertion order.
func (g *Graph) Nodes() []Node {
	return g.Query(nil)
}

// Query returns copies of the nodes matching pred, in insertion order.
// A nil predicate matches every node.
func (g *Graph) Query(pred func(Node) bool) []Node {
	out := make([]Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		n := g.nodes[id].Clone()
		if pred == nil || pred(n) {
			out = append(out, n)
		}
	}
	return out
}

// Edges returns copies of every edge in insertion order.
func (g *Graph) Edges() []Edge {
	return g.QueryEdges(nil)
}

// QueryEdges returns copies of the edges matching pred, in insertion order.
func (g *Graph) QueryEdges(pred func(Edge) bool) []Edge {
	out := make([]Edge, 0, len(g.edgeOrder))
	for _, id := range g.edgeOrder {
		e := g.edges[id].Clone()
		if pred == nil || pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// EdgesOf returns copies of the edges touching nodeID.
func (g *Graph) EdgesOf(nodeID string) []Edge {
	return g.QueryEdges(func(e Edge) bool { return e.Touches(nodeID) })
}

// ByKind is a Query predicate matching nodes of kind.
func ByKind(kind string) func(Node) bool {
	return func(n Node) bool { return n.Kind == kind }
}

// ByLabel is a Query predicate matching nodes with an exact label.
func ByLabel(label string) func(Node) bool {
	return func(n Node) bool { return n.Label == label }
}
