// Package graph is the node/edge container for a single canvas.
//
// A Graph never branches on node or edge kind. It enforces the structural
// invariants only: unique node ids, no self-loops, no identical parallel
// edges, no dangling edges, and cascade removal of edges when a node goes.
// All reads copy out; mutating a returned Node or Edge never touches the graph.
//
// A Graph is owned by one interaction goroutine. The only cross-goroutine
// entry point is MarkSaved, which persistence calls after a write lands.
package graph

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
)

type edgeKey struct {
	source, target, kind string
}

// Graph holds the nodes and edges of one canvas.
type Graph struct {
	nodes     map[string]*Node
	nodeOrder []string
	edges     map[string]*Edge
	edgeOrder []string
	triples   map[edgeKey]string

	observers []*observerEntry

	version atomic.Uint64
	saved   atomic.Uint64

	newID  func() string
	logger *zap.SugaredLogger
}

type observerEntry struct {
	fn Observer
}

// Option configures a Graph.
type Option func(*Graph)

// WithIDFunc overrides node id generation. The graph still guarantees
// uniqueness by retrying on collision.
func WithIDFunc(fn func() string) Option {
	return func(g *Graph) {
		if fn != nil {
			g.newID = fn
		}
	}
}

// WithLogger sets the logger used for precondition violations.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(g *Graph) {
		g.logger = logger.OrNop(l)
	}
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string]*Edge),
		triples: make(map[edgeKey]string),
		newID:   defaultNodeID,
		logger:  logger.ComponentLogger("graph"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func defaultNodeID() string {
	return "n" + uuid.NewString()[:8]
}

// Observe registers fn for every subsequent mutation. The returned func
// removes the registration.
func (g *Graph) Observe(fn Observer) (cancel func()) {
	entry := &observerEntry{fn: fn}
	g.observers = append(g.observers, entry)
	return func() {
		for i, o := range g.observers {
			if o == entry {
				g.observers = append(g.observers[:i], g.observers[i+1:]...)
				return
			}
		}
	}
}

func (g *Graph) notify(m Mutation) {
	m.Version = g.version.Add(1)
	for _, o := range append([]*observerEntry(nil), g.observers...) {
		o.fn(m)
	}
}

// Version increases by one for every successful mutation.
func (g *Graph) Version() uint64 {
	return g.version.Load()
}

// MarkSaved records that the state at version has been persisted.
// Older acknowledgements arriving late never move the mark backwards.
func (g *Graph) MarkSaved(version uint64) {
	for {
		cur := g.saved.Load()
		if version <= cur {
			return
		}
		if g.saved.CompareAndSwap(cur, version) {
			return
		}
	}
}

// Dirty reports whether there are mutations newer than the last persisted version.
func (g *Graph) Dirty() bool {
	return g.version.Load() != g.saved.Load()
}

// === Nodes ===

// AddNode creates a node of kind at pos and returns its fresh id.
// The label defaults to empty; callers that know a display name use Insert.
func (g *Graph) AddNode(kind string, pos Position, attrs map[string]any) string {
	id, _ := g.Insert(Node{Kind: kind, Position: pos, Attributes: attrs})
	return id
}

// Insert adds a fully specified node. An empty ID is replaced by a fresh one;
// an ID already on the canvas is rejected with ErrDuplicateNode.
func (g *Graph) Insert(n Node) (string, error) {
	if n.ID == "" {
		n.ID = g.freshID()
	} else if _, exists := g.nodes[n.ID]; exists {
		return "", errors.Wrapf(errors.ErrDuplicateNode, "insert node %s", n.ID)
	}

	stored := n.Clone()
	g.nodes[stored.ID] = &stored
	g.nodeOrder = append(g.nodeOrder, stored.ID)

	g.notify(Mutation{Type: NodeAdded, NodeID: stored.ID})
	return stored.ID, nil
}

func (g *Graph) freshID() string {
	for {
		id := g.newID()
		if _, taken := g.nodes[id]; !taken && id != "" {
			return id
		}
	}
}

// UpdateNode merges attrs into the node's attributes. A nil value unsets the key.
// Unknown ids return false and are logged as a precondition violation.
func (g *Graph) UpdateNode(id string, attrs map[string]any) bool {
	n, ok := g.lookup(id, "update")
	if !ok {
		return false
	}
	if n.Attributes == nil && len(attrs) > 0 {
		n.Attributes = make(map[string]any, len(attrs))
	}
	for k, v := range attrs {
		if v == nil {
			delete(n.Attributes, k)
			continue
		}
		n.Attributes[k] = copyValue(v)
	}
	g.notify(Mutation{Type: NodeUpdated, NodeID: id})
	return true
}

// Relabel changes a node's display name.
func (g *Graph) Relabel(id, label string) bool {
	n, ok := g.lookup(id, "relabel")
	if !ok {
		return false
	}
	n.Label = label
	g.notify(Mutation{Type: NodeUpdated, NodeID: id})
	return true
}

// SetTemplateRef records which catalog entry seeded the node.
func (g *Graph) SetTemplateRef(id, ref string) bool {
	n, ok := g.lookup(id, "set template")
	if !ok {
		return false
	}
	n.TemplateRef = ref
	g.notify(Mutation{Type: NodeUpdated, NodeID: id})
	return true
}

// MoveNode sets a node's position.
func (g *Graph) MoveNode(id string, pos Position) bool {
	n, ok := g.lookup(id, "move")
	if !ok {
		return false
	}
	n.Position = pos
	g.notify(Mutation{Type: NodeMoved, NodeID: id})
	return true
}

// DeleteNode removes the node and every edge touching it.
// Deleting an absent id is a no-op returning false.
func (g *Graph) DeleteNode(id string) bool {
	if _, ok := g.nodes[id]; !ok {
		return false
	}

	var removed []string
	for _, eid := range append([]string(nil), g.edgeOrder...) {
		if g.edges[eid].Touches(id) {
			g.removeEdge(eid)
			removed = append(removed, eid)
		}
	}

	delete(g.nodes, id)
	g.nodeOrder = removeString(g.nodeOrder, id)

	g.notify(Mutation{Type: NodeDeleted, NodeID: id, Removed: removed})
	return true
}

func (g *Graph) lookup(id, op string) (*Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		g.logger.Warnw("Precondition violation: unknown node",
			logger.FieldOperation, op,
			logger.FieldNodeID, id,
		)
	}
	return n, ok
}

// Node returns a copy of the node with id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.Clone(), true
}

// HasNode reports whether id is on the canvas.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// === Edges ===

// Connect inserts an edge from source to target and returns its id.
// It fails with ErrSelfLoop, ErrNodeNotFound, or ErrDuplicateEdge when an
// edge with the same source, target and kind already exists.
func (g *Graph) Connect(source, target, kind string) (string, error) {
	return g.InsertEdge(Edge{Source: source, Target: target, Kind: kind})
}

// InsertEdge adds a fully specified edge under the same rules as Connect.
// An empty ID is derived from the triple.
func (g *Graph) InsertEdge(e Edge) (string, error) {
	if e.Source == e.Target {
		return "", errors.Wrapf(errors.ErrSelfLoop, "connect %s", e.Source)
	}
	if _, ok := g.nodes[e.Source]; !ok {
		return "", errors.Wrapf(errors.ErrNodeNotFound, "connect source %s", e.Source)
	}
	if _, ok := g.nodes[e.Target]; !ok {
		return "", errors.Wrapf(errors.ErrNodeNotFound, "connect target %s", e.Target)
	}
	key := edgeKey{e.Source, e.Target, e.Kind}
	if existing, dup := g.triples[key]; dup {
		return "", errors.Wrapf(errors.ErrDuplicateEdge, "edge %s already connects %s -> %s", existing, e.Source, e.Target)
	}

	if e.ID == "" {
		e.ID = g.freeEdgeID(EdgeID(e.Source, e.Target, e.Kind))
	} else if _, taken := g.edges[e.ID]; taken {
		return "", errors.Wrapf(errors.ErrDuplicateEdge, "edge id %s already in use", e.ID)
	}

	stored := e.Clone()
	g.edges[stored.ID] = &stored
	g.edgeOrder = append(g.edgeOrder, stored.ID)
	g.triples[key] = stored.ID

	g.notify(Mutation{Type: EdgeAdded, EdgeID: stored.ID})
	return stored.ID, nil
}

// freeEdgeID disambiguates derived ids whose node ids contain the separator.
func (g *Graph) freeEdgeID(base string) string {
	if _, taken := g.edges[base]; !taken {
		return base
	}
	for i := 2; ; i++ {
		id := base + "~" + strconv.Itoa(i)
		if _, taken := g.edges[id]; !taken {
			return id
		}
	}
}

// DeleteEdge removes a single edge. Absent ids return false.
func (g *Graph) DeleteEdge(id string) bool {
	if _, ok := g.edges[id]; !ok {
		return false
	}
	g.removeEdge(id)
	g.notify(Mutation{Type: EdgeDeleted, EdgeID: id})
	return true
}

// SetEdgeAmount annotates a payment edge. A nil amount clears it.
func (g *Graph) SetEdgeAmount(id string, amount *float64) bool {
	e, ok := g.edges[id]
	if !ok {
		g.logger.Warnw("Precondition violation: unknown edge",
			logger.FieldOperation, "set amount",
			logger.FieldEdgeID, id,
		)
		return false
	}
	if amount == nil {
		e.Amount = nil
	} else {
		v := *amount
		e.Amount = &v
	}
	g.notify(Mutation{Type: EdgeUpdated, EdgeID: id})
	return true
}

func (g *Graph) removeEdge(id string) {
	e := g.edges[id]
	delete(g.triples, edgeKey{e.Source, e.Target, e.Kind})
	delete(g.edges, id)
	g.edgeOrder = removeString(g.edgeOrder, id)
}

// Edge returns a copy of the edge with id.
func (g *Graph) Edge(id string) (Edge, bool) {
	e, ok := g.edges[id]
	if !ok {
		return Edge{}, false
	}
	return e.Clone(), true
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}
