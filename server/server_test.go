package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/strata/canvas"
	"github.com/teranos/strata/catalog"
	"github.com/teranos/strata/graph"
	"github.com/teranos/strata/interact"
	"github.com/teranos/strata/session"
	"github.com/teranos/strata/storage"
)

var testViewport = interact.Viewport{Zoom: 1, Width: 800, Height: 600}

type fixture struct {
	srv  *Server
	http *httptest.Server
	sess *session.Session
	reg  *prometheus.Registry
}

func newFixture(t *testing.T, withStore bool) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()

	opts := []session.Option{
		session.WithCatalog(catalog.Builtin()),
		session.WithIdentity(session.StaticIdentity("Ana")),
		session.WithLogger(log),
		session.WithControllerOptions(interact.WithRand(rand.New(rand.NewPCG(1, 2)))),
	}
	if withStore {
		opts = append(opts, session.WithStore(storage.NewStore(storage.NewMemoryKV(), storage.WithLogger(log))))
	}
	sess := session.New(context.Background(), opts...)

	reg := prometheus.NewRegistry()
	srv := New(sess, WithRegistry(reg), WithLogger(log))
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		require.NoError(t, srv.Shutdown(context.Background()))
		sess.Close()
	})
	return &fixture{srv: srv, http: ts, sess: sess, reg: reg}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.http.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (f *fixture) gesture(t *testing.T, method, path string, body interface{}) GestureResponse {
	t.Helper()
	resp, data := f.do(t, method, path, body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var out GestureResponse
	require.NoError(t, json.Unmarshal(data, &out))
	require.NotNil(t, out.Canvas)
	return out
}

func (f *fixture) place(t *testing.T, kind string) string {
	t.Helper()
	out := f.gesture(t, http.MethodPost, "/api/nodes", placeRequest{Kind: kind, Viewport: testViewport})
	require.True(t, out.OK)
	require.NotEmpty(t, out.NodeID)
	return out.NodeID
}

func TestCanvasView(t *testing.T) {
	f := newFixture(t, false)

	resp, data := f.do(t, http.MethodGet, "/api/canvas", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var v CanvasView
	require.NoError(t, json.Unmarshal(data, &v))
	assert.Equal(t, "root", v.ID)
	assert.Equal(t, "Main Canvas", v.Title)
	assert.Empty(t, v.Nodes)
	require.Len(t, v.Breadcrumb, 1)
}

func TestPlace(t *testing.T) {
	f := newFixture(t, false)

	t.Run("payment carries template fields", func(t *testing.T) {
		out := f.gesture(t, http.MethodPost, "/api/nodes", placeRequest{Kind: "payment", Viewport: testViewport})
		require.True(t, out.OK)
		require.Len(t, out.Canvas.Nodes, 1)

		n := out.Canvas.Nodes[0]
		assert.Equal(t, "Payment", n.Label)
		assert.Equal(t, "payment", n.TemplateRef)
		assert.True(t, n.Drillable)
		assert.Equal(t, out.NodeID, out.Canvas.Selected)
		require.NotEmpty(t, n.Fields)
		assert.Equal(t, FieldView{Label: "Amount", Value: "0"}, n.Fields[0])
	})

	t.Run("wallet label uses identity", func(t *testing.T) {
		out := f.gesture(t, http.MethodPost, "/api/nodes", placeRequest{Kind: "wallet", Viewport: testViewport})
		for _, n := range out.Canvas.Nodes {
			if n.ID == out.NodeID {
				assert.Equal(t, "Ana's Wallet", n.Label)
			}
		}
	})

	t.Run("kind is required", func(t *testing.T) {
		resp, data := f.do(t, http.MethodPost, "/api/nodes", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, string(data), "error")
	})

	t.Run("malformed body", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, f.http.URL+"/api/nodes", strings.NewReader("{"))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestConnect(t *testing.T) {
	f := newFixture(t, false)
	a := f.place(t, "organization")
	b := f.place(t, "payment")

	first := f.gesture(t, http.MethodPost, "/api/nodes/"+a+"/connect", nil)
	assert.False(t, first.OK)
	assert.Equal(t, a, first.Canvas.ConnectingFrom)

	second := f.gesture(t, http.MethodPost, "/api/nodes/"+b+"/connect", nil)
	require.True(t, second.OK)
	assert.NotEmpty(t, second.EdgeID)
	require.Len(t, second.Canvas.Edges, 1)
	assert.Empty(t, second.Canvas.ConnectingFrom)

	t.Run("duplicate is rejected without error", func(t *testing.T) {
		f.gesture(t, http.MethodPost, "/api/nodes/"+a+"/connect", nil)
		dup := f.gesture(t, http.MethodPost, "/api/nodes/"+b+"/connect", nil)
		assert.False(t, dup.OK)
		assert.Len(t, dup.Canvas.Edges, 1)
	})

	t.Run("amount and disconnect", func(t *testing.T) {
		amount := 1200.0
		out := f.gesture(t, http.MethodPatch, "/api/edges/"+second.EdgeID, amountRequest{Amount: &amount})
		require.True(t, out.OK)
		require.NotNil(t, out.Canvas.Edges[0].Amount)
		assert.Equal(t, 1200.0, *out.Canvas.Edges[0].Amount)

		out = f.gesture(t, http.MethodDelete, "/api/edges/"+second.EdgeID, nil)
		assert.True(t, out.OK)
		assert.Empty(t, out.Canvas.Edges)

		resp, _ := f.do(t, http.MethodDelete, "/api/edges/"+second.EdgeID, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestEditAndDelete(t *testing.T) {
	f := newFixture(t, false)
	a := f.place(t, "payment")
	b := f.place(t, "person")
	f.gesture(t, http.MethodPost, "/api/nodes/"+a+"/connect", nil)
	f.gesture(t, http.MethodPost, "/api/nodes/"+b+"/connect", nil)

	out := f.gesture(t, http.MethodPatch, "/api/nodes/"+a, editRequest{
		Label:      "Invoice 42",
		Attributes: map[string]any{"amount": 99.5},
	})
	require.True(t, out.OK)
	for _, n := range out.Canvas.Nodes {
		if n.ID == a {
			assert.Equal(t, "Invoice 42", n.Label)
			assert.Equal(t, FieldView{Label: "Amount", Value: "99.5"}, n.Fields[0])
		}
	}

	out = f.gesture(t, http.MethodDelete, "/api/nodes/"+a, nil)
	assert.True(t, out.OK)
	assert.Len(t, out.Canvas.Nodes, 1)
	assert.Empty(t, out.Canvas.Edges, "edges cascade with the node")

	resp, data := f.do(t, http.MethodDelete, "/api/nodes/"+a, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(data), "node not found")
}

func TestDrag(t *testing.T) {
	f := newFixture(t, false)
	id := f.place(t, "task")

	out := f.gesture(t, http.MethodPost, "/api/pointer/down", pointerRequest{NodeID: id, X: 0, Y: 0})
	require.True(t, out.OK)
	assert.Equal(t, id, out.Canvas.Dragging)
	start := out.Canvas.Nodes[0].Position

	out = f.gesture(t, http.MethodPost, "/api/pointer/move", pointerRequest{X: 25, Y: -10})
	require.True(t, out.OK)
	assert.InDelta(t, start.X+25, out.Canvas.Nodes[0].Position.X, 1e-9)
	assert.InDelta(t, start.Y-10, out.Canvas.Nodes[0].Position.Y, 1e-9)

	out = f.gesture(t, http.MethodPost, "/api/pointer/up", nil)
	assert.True(t, out.OK)
	assert.Empty(t, out.Canvas.Dragging)

	out = f.gesture(t, http.MethodPost, "/api/pointer/move", pointerRequest{X: 500, Y: 500})
	assert.False(t, out.OK)
}

func TestNavigation(t *testing.T) {
	f := newFixture(t, false)
	pay := f.place(t, "payment")
	person := f.place(t, "person")

	t.Run("activating a plain node only selects it", func(t *testing.T) {
		out := f.gesture(t, http.MethodPost, "/api/nodes/"+person+"/activate", nil)
		assert.False(t, out.OK)
		assert.Equal(t, "root", out.Canvas.ID)
		assert.Equal(t, person, out.Canvas.Selected)
	})

	t.Run("activating a template node drills in", func(t *testing.T) {
		out := f.gesture(t, http.MethodPost, "/api/nodes/"+pay+"/activate", nil)
		require.True(t, out.OK)
		assert.Equal(t, "canvas-"+pay, out.Canvas.ID)
		assert.Equal(t, "Payment", out.Canvas.Title)
		assert.Len(t, out.Canvas.Nodes, 3)
		assert.Len(t, out.Canvas.Edges, 2)
		require.Len(t, out.Canvas.Breadcrumb, 2)
	})

	t.Run("back and forward", func(t *testing.T) {
		out := f.gesture(t, http.MethodPost, "/api/nav/back", nil)
		require.True(t, out.OK)
		assert.Equal(t, "root", out.Canvas.ID)
		assert.True(t, out.Canvas.CanGoForward)

		out = f.gesture(t, http.MethodPost, "/api/nav/forward", nil)
		require.True(t, out.OK)
		assert.Equal(t, "canvas-"+pay, out.Canvas.ID)

		idx := 0
		out = f.gesture(t, http.MethodPost, "/api/nav/goto", gotoRequest{Index: &idx})
		assert.True(t, out.OK)
		assert.Equal(t, "root", out.Canvas.ID)
	})

	t.Run("goto requires an index", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/api/nav/goto", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("open always navigates", func(t *testing.T) {
		out := f.gesture(t, http.MethodPost, "/api/nodes/"+person+"/open", nil)
		require.True(t, out.OK)
		require.Len(t, out.Canvas.Nodes, 1)
		assert.Equal(t, catalog.PlaceholderLabel, out.Canvas.Nodes[0].Label)
	})
}

func TestEdgeKind(t *testing.T) {
	f := newFixture(t, false)

	out := f.gesture(t, http.MethodPut, "/api/edge-kind", edgeKindRequest{Kind: "payment"})
	assert.Equal(t, "payment", out.Canvas.EdgeKind)

	resp, _ := f.do(t, http.MethodPut, "/api/edge-kind", edgeKindRequest{Kind: "teleport"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdvanceStatus(t *testing.T) {
	f := newFixture(t, false)
	id := f.place(t, "payment")

	out := f.gesture(t, http.MethodPost, "/api/nodes/"+id+"/status", nil)
	require.True(t, out.OK)
	assert.Equal(t, "draft", out.Status)

	out = f.gesture(t, http.MethodPost, "/api/nodes/"+id+"/status", nil)
	assert.Equal(t, "pending", out.Status)

	person := f.place(t, "person")
	out = f.gesture(t, http.MethodPost, "/api/nodes/"+person+"/status", nil)
	assert.False(t, out.OK)
}

func TestSaveAndList(t *testing.T) {
	t.Run("without store", func(t *testing.T) {
		f := newFixture(t, false)
		resp, data := f.do(t, http.MethodPost, "/api/canvas/save", nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Contains(t, string(data), "storage.backend")

		resp, _ = f.do(t, http.MethodGet, "/api/canvases", nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("with store", func(t *testing.T) {
		f := newFixture(t, true)
		f.place(t, "organization")

		out := f.gesture(t, http.MethodPost, "/api/canvas/save", nil)
		assert.True(t, out.OK)
		assert.False(t, out.Canvas.Dirty)

		out = f.gesture(t, http.MethodPut, "/api/canvas/title", titleRequest{Title: "Acme Board"})
		assert.True(t, out.OK)
		assert.Equal(t, "Acme Board", out.Canvas.Title)
		f.gesture(t, http.MethodPost, "/api/canvas/save", nil)

		resp, data := f.do(t, http.MethodGet, "/api/canvases", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var list []storage.Summary
		require.NoError(t, json.Unmarshal(data, &list))
		require.Len(t, list, 2, "rename leaves the old snapshot")

		titles := []string{list[0].Title, list[1].Title}
		assert.ElementsMatch(t, []string{"Main Canvas", "Acme Board"}, titles)
	})

	t.Run("empty title rejected", func(t *testing.T) {
		f := newFixture(t, false)
		resp, _ := f.do(t, http.MethodPut, "/api/canvas/title", titleRequest{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCatalogAndPalette(t *testing.T) {
	f := newFixture(t, false)

	resp, data := f.do(t, http.MethodGet, "/api/catalog", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var items []CatalogItem
	require.NoError(t, json.Unmarshal(data, &items))
	assert.Len(t, items, len(catalog.BuiltinEntries()))

	resp, data = f.do(t, http.MethodGet, "/api/catalog/payment", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entry catalog.Entry
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "Payment Flow", entry.Name)

	resp, _ = f.do(t, http.MethodGet, "/api/catalog/organization", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, data = f.do(t, http.MethodGet, "/api/palette", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var palette []PaletteItem
	require.NoError(t, json.Unmarshal(data, &palette))
	require.NotEmpty(t, palette)
	assert.Equal(t, "organization", palette[0].Kind)
	assert.False(t, palette[0].Template)
}

func TestExport(t *testing.T) {
	f := newFixture(t, false)
	a := f.place(t, "payment")
	b := f.place(t, "person")
	f.gesture(t, http.MethodPatch, "/api/nodes/"+b, editRequest{Label: "<Bob>"})
	f.gesture(t, http.MethodPost, "/api/nodes/"+a+"/connect", nil)
	f.gesture(t, http.MethodPost, "/api/nodes/"+b+"/connect", nil)

	resp, data := f.do(t, http.MethodGet, "/api/canvas/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Main_Canvas.html"`, resp.Header.Get("Content-Disposition"))

	page := string(data)
	assert.Contains(t, page, "<title>Main Canvas</title>")
	assert.Contains(t, page, `data-node-id="`+a+`"`)
	assert.Contains(t, page, "&lt;Bob&gt;")
	assert.NotContains(t, page, "<Bob>")
	assert.Contains(t, page, "<line data-edge-id=")
}

func TestRenderCanvas(t *testing.T) {
	c := canvas.NewRoot("Q3 Plan")
	id := c.Graph.AddNode("payment", graph.Position{X: 10, Y: 20}, map[string]any{"amount": 50.0})

	page := RenderCanvas(c, catalog.Builtin())
	assert.Contains(t, page, "<title>Q3 Plan</title>")
	assert.Contains(t, page, `data-node-id="`+id+`"`)
	assert.Equal(t, "Q3_Plan.html", ExportFilename(c.Title))

	assert.Contains(t, RenderCanvas(c, nil), `data-node-id="`+id+`"`, "renders without a catalog")
}

func TestMetricsAndHealth(t *testing.T) {
	f := newFixture(t, false)
	f.place(t, "task")

	resp, data := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "healthy")

	resp, data = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "strata_http_requests_total")
	assert.Contains(t, string(data), `route="/api/nodes`)
}

func TestWebSocket(t *testing.T) {
	f := newFixture(t, false)

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first Message
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, MessageCanvas, first.Type)
	require.NotNil(t, first.Canvas)
	assert.Equal(t, "root", first.Canvas.ID)

	id := f.place(t, "payment")

	var raw map[string]any
	require.NoError(t, conn.ReadJSON(&raw))
	assert.Equal(t, MessageEvent, raw["type"])
	event := raw["event"].(map[string]any)
	assert.Equal(t, "mutation", event["type"])
	mutation := event["mutation"].(map[string]any)
	assert.Equal(t, "node_added", mutation["type"])
	assert.Equal(t, id, mutation["node_id"])

	t.Run("sync returns the canvas", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "sync"}))
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, MessageCanvas, msg.Type)
		require.NotNil(t, msg.Canvas)
		assert.Len(t, msg.Canvas.Nodes, 1)
	})

	t.Run("unknown message type", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "teleport"}))
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, MessageError, msg.Type)
	})

	assert.Eventually(t, func() bool { return f.srv.Hub().ClientCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	f := newFixture(t, false)

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed []string
		want    bool
	}{
		{"no origin", "", nil, true},
		{"localhost default", "http://localhost:5173", nil, true},
		{"foreign default", "https://example.com", nil, false},
		{"configured prefix", "https://app.example.com:8443", []string{"https://app.example.com"}, true},
		{"configured mismatch", "http://localhost:3000", []string{"https://app.example.com"}, false},
		{"wildcard", "https://anything", []string{"*"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkOrigin(tt.origin, tt.allowed))
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(errNoStore))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
