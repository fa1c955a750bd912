package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/strata/canvas"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/graph"
	"github.com/teranos/strata/internal/util"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T, kv KV) *Store {
	t.Helper()
	return NewStore(kv,
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(zaptest.NewLogger(t).Sugar()),
	)
}

func sampleCanvas(t *testing.T) *canvas.Canvas {
	t.Helper()
	c := canvas.NewRoot("Main Canvas")
	_, err := c.Graph.Insert(graph.Node{
		ID:          "pay",
		Kind:        "payment",
		Label:       "Rent",
		Position:    graph.Position{X: 120, Y: 80},
		Attributes:  map[string]any{"amount": 1200.0, "currency": "EUR", "tags": []any{"monthly"}},
		TemplateRef: "payment",
	})
	require.NoError(t, err)
	_, err = c.Graph.Insert(graph.Node{ID: "deal", Kind: "contract", Label: "Lease", Position: graph.Position{X: 300, Y: 80}})
	require.NoError(t, err)
	_, err = c.Graph.InsertEdge(graph.Edge{Source: "pay", Target: "deal", Kind: "payment", Amount: util.Ptr(1200.0)})
	require.NoError(t, err)
	return c
}

func TestKey(t *testing.T) {
	assert.Equal(t, "canvas_Main_Canvas", Key("Main Canvas"))
	assert.Equal(t, "canvas_Q3_Budget__draft_", Key("Q3 Budget (draft)"))
	assert.Equal(t, "canvas_caf_", Key("café"))
	assert.Equal(t, Key("A/B"), Key("A B"), "punctuation-only differences collide")
}

func TestStore_SaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t, kv)
			original := sampleCanvas(t)

			require.NoError(t, s.Save(ctx, original))
			assert.False(t, original.Graph.Dirty(), "save acknowledges the version")

			loaded, ok := s.Load(ctx, "Main Canvas")
			require.True(t, ok)

			assert.Equal(t, original.ID, loaded.ID)
			assert.Equal(t, original.Title, loaded.Title)
			assert.Equal(t, original.Graph.Nodes(), loaded.Graph.Nodes())
			assert.Equal(t, original.Graph.Edges(), loaded.Graph.Edges())
			assert.False(t, loaded.Graph.Dirty())
		})
	}
}

func TestStore_SnapshotShape(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := newTestStore(t, kv)
	require.NoError(t, s.Save(ctx, sampleCanvas(t)))

	raw, ok, err := kv.Get(ctx, "canvas_Main_Canvas")
	require.NoError(t, err)
	require.True(t, ok)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	assert.Equal(t, FormatVersion, doc["version"])
	assert.Equal(t, "root", doc["canvasId"])
	assert.Equal(t, "Main Canvas", doc["canvasName"])
	assert.Equal(t, "2026-03-14T09:30:00Z", doc["timestamp"])

	nodes := doc["nodes"].([]any)
	require.Len(t, nodes, 2)
	first := nodes[0].(map[string]any)
	assert.Equal(t, "pay", first["id"])
	assert.Equal(t, 120.0, first["x"])
	data := first["data"].(map[string]any)
	assert.Equal(t, "payment", data["kind"])
	assert.Equal(t, "Rent", data["label"])

	edges := doc["edges"].([]any)
	require.Len(t, edges, 1)
	edge := edges[0].(map[string]any)
	assert.Equal(t, "payment", edge["type"])
	assert.Equal(t, 1200.0, edge["amount"])
}

func TestStore_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		s := newTestStore(t, NewMemoryKV())
		c, ok := s.Load(ctx, "Nope")
		assert.False(t, ok)
		assert.Nil(t, c)
	})

	t.Run("malformed", func(t *testing.T) {
		kv := NewMemoryKV()
		require.NoError(t, kv.Set(ctx, Key("Main Canvas"), "{not json"))
		_, ok := newTestStore(t, kv).Load(ctx, "Main Canvas")
		assert.False(t, ok)
	})

	t.Run("incompatible version", func(t *testing.T) {
		kv := NewMemoryKV()
		require.NoError(t, kv.Set(ctx, Key("Main Canvas"), `{"version":"2.0.0","canvasId":"root","nodes":[],"edges":[]}`))
		_, ok := newTestStore(t, kv).Load(ctx, "Main Canvas")
		assert.False(t, ok)

		_, err := ParseSnapshot([]byte(`{"version":"banana"}`))
		assert.True(t, errors.Is(err, errors.ErrIncompatibleSnapshot))
	})

	t.Run("dangling edges dropped", func(t *testing.T) {
		kv := NewMemoryKV()
		doc := `{"version":"1.2.0","canvasId":"canvas-n1","canvasName":"Rent","originNode":"n1",
			"nodes":[{"id":"a","x":0,"y":0,"data":{"kind":"task","label":"A"}},
			         {"id":"b","x":0,"y":0,"data":{"kind":"task","label":"B"}}],
			"edges":[{"id":"e1","source":"a","target":"b"},
			         {"id":"e2","source":"a","target":"ghost"},
			         {"id":"e3","source":"b","target":"b"}]}`
		require.NoError(t, kv.Set(ctx, Key("Rent"), doc))

		c, ok := newTestStore(t, kv).Load(ctx, "Rent")
		require.True(t, ok)
		assert.Equal(t, "canvas-n1", c.ID)
		assert.Equal(t, "n1", c.OriginNode)
		assert.Equal(t, 2, c.Graph.NodeCount())
		require.Equal(t, 1, c.Graph.EdgeCount())
		_, ok = c.Graph.Edge("e1")
		assert.True(t, ok)
	})

	t.Run("backend error", func(t *testing.T) {
		fake := newFakeDynamo()
		fake.err = errors.New("timeout")
		_, ok := newTestStore(t, NewDynamoKV(fake, "t")).Load(ctx, "Main Canvas")
		assert.False(t, ok)
	})
}

func TestStore_TitleCollisionOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryKV())

	first := canvas.New("canvas-a", "Q3/Plan", "a")
	first.Graph.AddNode("task", graph.Position{}, nil)
	second := canvas.New("canvas-b", "Q3 Plan", "b")

	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	loaded, ok := s.Load(ctx, "Q3/Plan")
	require.True(t, ok)
	assert.Equal(t, "canvas-b", loaded.ID)
	assert.Equal(t, 0, loaded.Graph.NodeCount())
}

func TestStore_ListAndRemove(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := newTestStore(t, kv)

	require.NoError(t, s.Save(ctx, sampleCanvas(t)))
	require.NoError(t, s.Save(ctx, canvas.New("canvas-pay", "Rent", "pay")))
	require.NoError(t, kv.Set(ctx, "canvas_Broken", "garbage"))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)

	byKey := map[string]Summary{}
	for _, sum := range list {
		byKey[sum.Key] = sum
	}
	assert.Equal(t, 2, byKey["canvas_Main_Canvas"].Nodes)
	assert.Equal(t, 1, byKey["canvas_Main_Canvas"].Edges)
	assert.Equal(t, "pay", byKey["canvas_Rent"].OriginNode)
	assert.False(t, byKey["canvas_Broken"].Readable)

	assert.True(t, s.Exists(ctx, "Rent"))
	require.NoError(t, s.Remove(ctx, "Rent"))
	assert.False(t, s.Exists(ctx, "Rent"))

	require.NoError(t, s.RemoveKey(ctx, "canvas_Broken"))
	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_SaveFailure(t *testing.T) {
	fake := newFakeDynamo()
	fake.err = errors.New("throttled")
	s := newTestStore(t, NewDynamoKV(fake, "t"))

	c := sampleCanvas(t)
	err := s.Save(context.Background(), c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStorageUnavailable))
	assert.True(t, c.Graph.Dirty(), "failed save leaves the graph dirty")
	assert.Equal(t, 2, c.Graph.NodeCount(), "failed save never rolls back")
}
