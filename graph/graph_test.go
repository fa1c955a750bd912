package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/strata/errors"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("n%d", n)
	}
}

func newTestGraph(t *testing.T) (*Graph, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	g := New(WithIDFunc(sequentialIDs()), WithLogger(zap.New(core).Sugar()))
	return g, logs
}

func TestGraph_AddNode(t *testing.T) {
	g, _ := newTestGraph(t)

	a := g.AddNode("payment", Position{X: 100, Y: 100}, map[string]any{"amount": 250.0})
	b := g.AddNode("contract", Position{X: 300, Y: 100}, nil)

	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, g.NodeCount())

	n, ok := g.Node(a)
	require.True(t, ok)
	assert.Equal(t, "payment", n.Kind)
	assert.Equal(t, Position{X: 100, Y: 100}, n.Position)
	assert.Equal(t, 250.0, n.Attributes["amount"])
}

func TestGraph_AddNode_RetriesOnIDCollision(t *testing.T) {
	ids := []string{"dup", "dup", "fresh"}
	i := 0
	g := New(WithIDFunc(func() string { id := ids[i]; i++; return id }))

	first := g.AddNode("task", Position{}, nil)
	second := g.AddNode("task", Position{}, nil)

	assert.Equal(t, "dup", first)
	assert.Equal(t, "fresh", second)
}

func TestGraph_Insert_DuplicateID(t *testing.T) {
	g, _ := newTestGraph(t)

	_, err := g.Insert(Node{ID: "a", Kind: "wallet"})
	require.NoError(t, err)

	_, err = g.Insert(Node{ID: "a", Kind: "wallet"})
	assert.True(t, errors.Is(err, errors.ErrDuplicateNode))
	assert.Equal(t, 1, g.NodeCount())
}

func TestGraph_UpdateNode(t *testing.T) {
	t.Run("merges and unsets", func(t *testing.T) {
		g, _ := newTestGraph(t)
		id := g.AddNode("wallet", Position{}, map[string]any{"threshold": 2, "type": "multisig"})

		ok := g.UpdateNode(id, map[string]any{"threshold": 3, "type": nil, "chain": "base"})
		require.True(t, ok)

		n, _ := g.Node(id)
		assert.Equal(t, map[string]any{"threshold": 3, "chain": "base"}, n.Attributes)
	})

	t.Run("unknown id fails and is logged", func(t *testing.T) {
		g, logs := newTestGraph(t)
		before := g.Version()

		assert.False(t, g.UpdateNode("ghost", map[string]any{"x": 1}))
		assert.Equal(t, before, g.Version(), "failed update must not count as a mutation")

		entries := logs.FilterMessage("Precondition violation: unknown node").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "ghost", entries[0].ContextMap()["node_id"])
	})

	t.Run("nil attribute map is allocated", func(t *testing.T) {
		g, _ := newTestGraph(t)
		id := g.AddNode("task", Position{}, nil)
		require.True(t, g.UpdateNode(id, map[string]any{"assignees": []any{"ana", "bo"}}))
		n, _ := g.Node(id)
		assert.Equal(t, []any{"ana", "bo"}, n.Attributes["assignees"])
	})
}

func TestGraph_DeleteNode_Cascade(t *testing.T) {
	g, _ := newTestGraph(t)
	a := g.AddNode("payment", Position{}, nil)
	b := g.AddNode("contract", Position{}, nil)
	c := g.AddNode("wallet", Position{}, nil)

	_, err := g.Connect(a, b, "")
	require.NoError(t, err)
	_, err = g.Connect(c, a, "payment")
	require.NoError(t, err)
	bc, err := g.Connect(b, c, "")
	require.NoError(t, err)

	var got Mutation
	g.Observe(func(m Mutation) { got = m })

	require.True(t, g.DeleteNode(a))

	for _, e := range g.Edges() {
		assert.False(t, e.Touches(a), "edge %s still references deleted node", e.ID)
	}
	assert.Equal(t, []string{bc}, edgeIDs(g.Edges()))
	assert.Equal(t, NodeDeleted, got.Type)
	assert.Len(t, got.Removed, 2)

	t.Run("idempotent", func(t *testing.T) {
		v := g.Version()
		assert.False(t, g.DeleteNode(a))
		assert.Equal(t, v, g.Version())
	})
}

func TestGraph_Connect(t *testing.T) {
	g, _ := newTestGraph(t)
	a := g.AddNode("payment", Position{}, nil)
	b := g.AddNode("contract", Position{}, nil)

	t.Run("self-loop rejected", func(t *testing.T) {
		before := g.Edges()
		_, err := g.Connect(a, a, "")
		assert.True(t, errors.Is(err, errors.ErrSelfLoop))
		assert.Equal(t, before, g.Edges())
	})

	t.Run("duplicate pair and kind rejected", func(t *testing.T) {
		first, err := g.Connect(a, b, "payment")
		require.NoError(t, err)
		assert.Equal(t, EdgeID(a, b, "payment"), first)

		_, err = g.Connect(a, b, "payment")
		assert.True(t, errors.Is(err, errors.ErrDuplicateEdge))

		matching := g.QueryEdges(func(e Edge) bool { return e.Source == a && e.Target == b && e.Kind == "payment" })
		assert.Len(t, matching, 1)
	})

	t.Run("different kind between same pair allowed", func(t *testing.T) {
		_, err := g.Connect(a, b, "conditional")
		require.NoError(t, err)
	})

	t.Run("reverse direction allowed", func(t *testing.T) {
		_, err := g.Connect(b, a, "payment")
		require.NoError(t, err)
	})

	t.Run("dangling endpoint rejected", func(t *testing.T) {
		_, err := g.Connect(a, "ghost", "")
		assert.True(t, errors.Is(err, errors.ErrNodeNotFound))
	})
}

func TestGraph_Connect_DisambiguatesDerivedIDs(t *testing.T) {
	g := New()
	for _, id := range []string{"a-b", "c", "a", "b-c"} {
		_, err := g.Insert(Node{ID: id})
		require.NoError(t, err)
	}

	first, err := g.Connect("a-b", "c", "")
	require.NoError(t, err)
	second, err := g.Connect("a", "b-c", "")
	require.NoError(t, err)

	assert.Equal(t, "e-a-b-c", first)
	assert.Equal(t, "e-a-b-c~2", second)
}

func TestGraph_InsertEdge_ExplicitID(t *testing.T) {
	g, _ := newTestGraph(t)
	a := g.AddNode("decision", Position{}, nil)
	b := g.AddNode("task", Position{}, nil)
	c := g.AddNode("task", Position{}, nil)

	id, err := g.InsertEdge(Edge{ID: "yes", Source: a, Target: b, Kind: "success"})
	require.NoError(t, err)
	assert.Equal(t, "yes", id)

	_, err = g.InsertEdge(Edge{ID: "yes", Source: a, Target: c, Kind: "failure"})
	assert.True(t, errors.Is(err, errors.ErrDuplicateEdge))
}

func TestGraph_DeleteEdge(t *testing.T) {
	g, _ := newTestGraph(t)
	a := g.AddNode("payment", Position{}, nil)
	b := g.AddNode("contract", Position{}, nil)
	id, err := g.Connect(a, b, "")
	require.NoError(t, err)

	assert.True(t, g.DeleteEdge(id))
	assert.False(t, g.DeleteEdge(id))

	// Triple index is released so the pair can be reconnected
	_, err = g.Connect(a, b, "")
	assert.NoError(t, err)
}

func TestGraph_SetEdgeAmount(t *testing.T) {
	g, logs := newTestGraph(t)
	a := g.AddNode("wallet", Position{}, nil)
	b := g.AddNode("wallet", Position{}, nil)
	id, _ := g.Connect(a, b, "payment")

	amount := 42.5
	require.True(t, g.SetEdgeAmount(id, &amount))
	amount = 0

	e, _ := g.Edge(id)
	require.NotNil(t, e.Amount)
	assert.Equal(t, 42.5, *e.Amount)

	require.True(t, g.SetEdgeAmount(id, nil))
	e, _ = g.Edge(id)
	assert.Nil(t, e.Amount)

	assert.False(t, g.SetEdgeAmount("ghost", &amount))
	assert.Equal(t, 1, logs.Len())
}

func TestGraph_Query_CopyOut(t *testing.T) {
	g, _ := newTestGraph(t)
	id := g.AddNode("task", Position{X: 1}, map[string]any{
		"assignees": []any{"ana"},
		"meta":      map[string]any{"priority": "high"},
	})

	nodes := g.Query(ByKind("task"))
	require.Len(t, nodes, 1)
	nodes[0].Label = "mutated"
	nodes[0].Position.X = 999
	nodes[0].Attributes["assignees"].([]any)[0] = "mallory"
	nodes[0].Attributes["meta"].(map[string]any)["priority"] = "low"
	delete(nodes[0].Attributes, "meta")

	n, _ := g.Node(id)
	assert.Equal(t, "", n.Label)
	assert.Equal(t, 1.0, n.Position.X)
	assert.Equal(t, []any{"ana"}, n.Attributes["assignees"])
	assert.Equal(t, "high", n.Attributes["meta"].(map[string]any)["priority"])

	assert.Empty(t, g.Query(ByKind("wallet")))
}

func TestGraph_Query_InsertionOrder(t *testing.T) {
	g, _ := newTestGraph(t)
	for _, k := range []string{"a", "b", "c", "d"} {
		g.AddNode(k, Position{}, nil)
	}
	g.DeleteNode("n2")

	var kinds []string
	for _, n := range g.Nodes() {
		kinds = append(kinds, n.Kind)
	}
	assert.Equal(t, []string{"a", "c", "d"}, kinds)
}

func TestGraph_DirtyTracking(t *testing.T) {
	g, _ := newTestGraph(t)
	assert.False(t, g.Dirty())

	id := g.AddNode("payment", Position{}, nil)
	assert.True(t, g.Dirty())

	g.MarkSaved(g.Version())
	assert.False(t, g.Dirty())

	g.MoveNode(id, Position{X: 5})
	stale := g.Version()
	g.Relabel(id, "Rent")
	g.MarkSaved(g.Version())
	g.MarkSaved(stale)
	assert.False(t, g.Dirty(), "late acknowledgement must not regress the saved mark")
}

func TestGraph_Observe(t *testing.T) {
	g, _ := newTestGraph(t)

	var seen []MutationType
	cancel := g.Observe(func(m Mutation) { seen = append(seen, m.Type) })

	a := g.AddNode("payment", Position{}, nil)
	b := g.AddNode("contract", Position{}, nil)
	g.MoveNode(a, Position{X: 10})
	g.Relabel(a, "Rent")
	eid, _ := g.Connect(a, b, "")
	g.DeleteEdge(eid)
	g.SetTemplateRef(b, "contract")

	assert.Equal(t, []MutationType{NodeAdded, NodeAdded, NodeMoved, NodeUpdated, EdgeAdded, EdgeDeleted, NodeUpdated}, seen)

	cancel()
	g.AddNode("wallet", Position{}, nil)
	assert.Len(t, seen, 7)
}

func TestNode_StringAttr(t *testing.T) {
	n := Node{Attributes: map[string]any{"amount": 12.5, "currency": "EUR", "none": nil}}
	assert.Equal(t, "12.5", n.StringAttr("amount"))
	assert.Equal(t, "EUR", n.StringAttr("currency"))
	assert.Equal(t, "", n.StringAttr("none"))
	assert.Equal(t, "", n.StringAttr("missing"))
}

func edgeIDs(edges []Edge) []string {
	ids := make([]string, len(edges))
	for i, e := range edges {
		ids[i] = e.ID
	}
	return ids
}
