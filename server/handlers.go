package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/graph"
	"github.com/teranos/strata/interact"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/sym"
)

// GestureResponse reports the outcome of a gesture and the canvas after it.
// OK false means the gesture did not apply; that is not an error.
type GestureResponse struct {
	OK     bool        `json:"ok"`
	NodeID string      `json:"node_id,omitempty"`
	EdgeID string      `json:"edge_id,omitempty"`
	Status string      `json:"status,omitempty"`
	Canvas *CanvasView `json:"canvas"`
}

type placeRequest struct {
	Kind     string            `json:"kind" validate:"required"`
	Viewport interact.Viewport `json:"viewport"`
}

type editRequest struct {
	Label      string         `json:"label"`
	Attributes map[string]any `json:"attributes"`
}

type amountRequest struct {
	Amount *float64 `json:"amount"`
}

type pointerRequest struct {
	NodeID string  `json:"node_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type titleRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

type edgeKindRequest struct {
	Kind string `json:"kind"`
}

type gotoRequest struct {
	Index *int `json:"index" validate:"required,min=0"`
}

// gesture runs fn on the active controller and replies with the result.
func (s *Server) gesture(w http.ResponseWriter, fn func(ctl *interact.Controller) (GestureResponse, error)) {
	var (
		resp GestureResponse
		err  error
	)
	s.session.Do(func(ctl *interact.Controller) { resp, err = fn(ctl) })
	if err != nil {
		writeErr(w, err)
		return
	}
	resp.Canvas = s.view()
	writeJSON(w, http.StatusOK, resp)
}

// nodeGesture is gesture for routes naming a node: an unknown id is a 404.
func (s *Server) nodeGesture(w http.ResponseWriter, r *http.Request, fn func(ctl *interact.Controller, id string) GestureResponse) {
	id := chi.URLParam(r, "nodeID")
	s.gesture(w, func(ctl *interact.Controller) (GestureResponse, error) {
		if !ctl.Canvas().Graph.HasNode(id) {
			return GestureResponse{}, errors.Wrapf(errors.ErrNodeNotFound, "node %s", id)
		}
		resp := fn(ctl, id)
		resp.NodeID = id
		return resp, nil
	})
}

func (s *Server) edgeGesture(w http.ResponseWriter, r *http.Request, fn func(ctl *interact.Controller, id string) GestureResponse) {
	id := chi.URLParam(r, "edgeID")
	s.gesture(w, func(ctl *interact.Controller) (GestureResponse, error) {
		if _, ok := ctl.Canvas().Graph.Edge(id); !ok {
			return GestureResponse{}, errors.Wrapf(errors.ErrEdgeNotFound, "edge %s", id)
		}
		resp := fn(ctl, id)
		resp.EdgeID = id
		return resp, nil
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleCanvas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view())
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	ok := s.session.RenameCanvas(req.Title)
	writeJSON(w, http.StatusOK, GestureResponse{OK: ok, Canvas: s.view()})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if s.session.Store() == nil {
		writeErr(w, errNoStore)
		return
	}
	if err := s.session.Save(r.Context()); err != nil {
		logger.LoggerFromContext(r.Context()).Warnw("Manual save failed", logger.FieldError, err)
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GestureResponse{OK: true, Canvas: s.view()})
}

func (s *Server) handleListCanvases(w http.ResponseWriter, r *http.Request) {
	store := s.session.Store()
	if store == nil {
		writeErr(w, errNoStore)
		return
	}
	list, err := store.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	s.gesture(w, func(ctl *interact.Controller) (GestureResponse, error) {
		id, ok := ctl.Place(req.Kind, req.Viewport)
		return GestureResponse{OK: ok, NodeID: id}, nil
	})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	s.nodeGesture(w, r, func(ctl *interact.Controller, id string) GestureResponse {
		return GestureResponse{OK: ctl.Edit(id, req.Label, req.Attributes)}
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.nodeGesture(w, r, func(ctl *interact.Controller, id string) GestureResponse {
		return GestureResponse{OK: ctl.Delete(id)}
	})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	s.nodeGesture(w, r, func(ctl *interact.Controller, id string) GestureResponse {
		return GestureResponse{OK: ctl.Select(id)}
	})
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	s.gesture(w, func(ctl *interact.Controller) (GestureResponse, error) {
		ctl.ClearSelection()
		return GestureResponse{OK: true}, nil
	})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	s.nodeGesture(w, r, func(ctl *interact.Controller, id string) GestureResponse {
		return GestureResponse{OK: ctl.Activate(id)}
	})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	s.nodeGesture(w, r, func(ctl *interact.Controller, id string) GestureResponse {
		return GestureResponse{OK: ctl.Open(id)}
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	s.nodeGesture(w, r, func(ctl *interact.Controller, id string) GestureResponse {
		edgeID, ok := ctl.ConnectGesture(id)
		return GestureResponse{OK: ok, EdgeID: edgeID}
	})
}

func (s *Server) handleCancelConnection(w http.ResponseWriter, r *http.Request) {
	s.gesture(w, func(ctl *interact.Controller) (GestureResponse, error) {
		return GestureResponse{OK: ctl.CancelConnection()}, nil
	})
}

func (s *Server) handleAdvanceStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "nodeID")
	status, ok := s.session.AdvanceStatus(id)
	writeJSON(w, http.StatusOK, GestureResponse{OK: ok, NodeID: id, Status: status, Canvas: s.view()})
}

func (s *Server) handlePointerDown(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	s.gesture(w, func(ctl *interact.Controller) (GestureResponse, error) {
		ok := ctl.PointerDown(req.NodeID, graph.Position{X: req.X, Y: req.Y})
		return GestureResponse{OK: ok, NodeID: req.NodeID}, nil
	})
}

func (s *Server) handlePointerMove(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	s.gesture(w, func(ctl *interact.Controller) (GestureResponse, error) {
		return GestureResponse{OK: ctl.PointerMove(graph.Position{X: req.X, Y: req.Y})}, nil
	})
}

func (s *Server) handlePointerUp(w http.ResponseWriter, r *http.Request) {
	s.gesture(w, func(ctl *interact.Controller) (GestureResponse, error) {
		return GestureResponse{OK: ctl.PointerUp()}, nil
	})
}

func (s *Server) handleSetAmount(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	s.edgeGesture(w, r, func(ctl *interact.Controller, id string) GestureResponse {
		return GestureResponse{OK: ctl.SetAmount(id, req.Amount)}
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.edgeGesture(w, r, func(ctl *interact.Controller, id string) GestureResponse {
		return GestureResponse{OK: ctl.Disconnect(id)}
	})
}

func (s *Server) handleEdgeKind(w http.ResponseWriter, r *http.Request) {
	var req edgeKindRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if !sym.IsKnownEdgeKind(req.Kind) {
		writeErr(w, errors.NewInvalidRequestError("unknown edge kind %q", req.Kind))
		return
	}
	s.gesture(w, func(ctl *interact.Controller) (GestureResponse, error) {
		ctl.SetEdgeKind(req.Kind)
		return GestureResponse{OK: true}, nil
	})
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, GestureResponse{OK: s.session.GoBack(), Canvas: s.view()})
}

func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, GestureResponse{OK: s.session.GoForward(), Canvas: s.view()})
}

func (s *Server) handleGoTo(w http.ResponseWriter, r *http.Request) {
	var req gotoRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	writeJSON(w, http.StatusOK, GestureResponse{OK: s.session.GoTo(*req.Index), Canvas: s.view()})
}

// CatalogItem is the summary of one template entry.
type CatalogItem struct {
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Glyph       string `json:"glyph"`
	SeedNodes   int    `json:"seed_nodes"`
	SeedEdges   int    `json:"seed_edges"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	entries := s.session.Catalog().Entries()
	out := make([]CatalogItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, CatalogItem{
			Kind:        e.Kind,
			Name:        e.Name,
			Description: e.Description,
			Glyph:       sym.Glyph(e.Kind),
			SeedNodes:   len(e.SeedNodes),
			SeedEdges:   len(e.SeedEdges),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCatalogEntry(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	e, ok := s.session.Catalog().Resolve(kind)
	if !ok {
		writeErr(w, errors.NewNotFoundError("no template for kind %q", kind))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// PaletteItem is one placeable kind.
type PaletteItem struct {
	Kind        string `json:"kind"`
	Glyph       string `json:"glyph"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Template    bool   `json:"template"`
}

func (s *Server) handlePalette(w http.ResponseWriter, r *http.Request) {
	cat := s.session.Catalog()
	out := make([]PaletteItem, 0, len(sym.PaletteOrder))
	for _, k := range sym.PaletteOrder {
		def := sym.Resolve(string(k))
		out = append(out, PaletteItem{
			Kind:        string(k),
			Glyph:       def.Glyph,
			Label:       def.Label,
			Description: def.Description,
			Category:    def.Category.String(),
			Template:    cat.Has(string(k)),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		s.logger.Warnw("WebSocket upgrade failed", logger.FieldError, err)
		return
	}

	c := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan interface{}, sendBuffer),
		id:   uuid.NewString(),
	}
	select {
	case s.hub.register <- c:
	case <-s.ctx.Done():
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
