package server

import (
	"github.com/teranos/strata/canvas"
	"github.com/teranos/strata/catalog"
	"github.com/teranos/strata/graph"
	"github.com/teranos/strata/interact"
	"github.com/teranos/strata/sym"
)

// FieldView is one template display field resolved against a node.
type FieldView struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// NodeView is a node plus what a renderer needs to draw it.
type NodeView struct {
	graph.Node
	Glyph     string      `json:"glyph"`
	KindLabel string      `json:"kind_label"`
	Drillable bool        `json:"drillable"`
	Fields    []FieldView `json:"fields,omitempty"`
}

// EdgeView is an edge plus its drawing style.
type EdgeView struct {
	graph.Edge
	Stroke   string `json:"stroke"`
	Dashed   bool   `json:"dashed,omitempty"`
	Animated bool   `json:"animated,omitempty"`
}

// CanvasView is the active canvas and the gesture state around it.
type CanvasView struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	OriginNode     string         `json:"origin_node,omitempty"`
	Version        uint64         `json:"version"`
	Dirty          bool           `json:"dirty"`
	Nodes          []NodeView     `json:"nodes"`
	Edges          []EdgeView     `json:"edges"`
	Breadcrumb     []canvas.Crumb `json:"breadcrumb"`
	Index          int            `json:"index"`
	CanGoForward   bool           `json:"can_go_forward"`
	Selected       string         `json:"selected,omitempty"`
	ConnectingFrom string         `json:"connecting_from,omitempty"`
	Dragging       string         `json:"dragging,omitempty"`
	EdgeKind       string         `json:"edge_kind,omitempty"`
}

// buildView must run inside Session.View or Session.Do.
func buildView(ctl *interact.Controller, stack *canvas.Stack, cat *catalog.Catalog) *CanvasView {
	c := ctl.Canvas()
	g := c.Graph

	v := &CanvasView{
		ID:             c.ID,
		Title:          c.Title,
		OriginNode:     c.OriginNode,
		Version:        g.Version(),
		Dirty:          g.Dirty(),
		Nodes:          make([]NodeView, 0, g.NodeCount()),
		Edges:          make([]EdgeView, 0, g.EdgeCount()),
		Breadcrumb:     stack.Breadcrumb(),
		Index:          stack.Index(),
		CanGoForward:   stack.Index() < stack.Len()-1,
		Selected:       ctl.Selected(),
		ConnectingFrom: ctl.ConnectingFrom(),
		Dragging:       ctl.Dragging(),
		EdgeKind:       ctl.EdgeKind(),
	}

	for _, n := range g.Nodes() {
		def := sym.Resolve(n.Kind)
		nv := NodeView{
			Node:      n,
			Glyph:     def.Glyph,
			KindLabel: def.Label,
			Drillable: ctl.Drillable(n.ID),
		}
		if entry, ok := cat.Resolve(n.Kind); ok {
			for _, f := range entry.DisplayFields {
				nv.Fields = append(nv.Fields, FieldView{Label: f.Label, Value: f.Value(n)})
			}
		}
		v.Nodes = append(v.Nodes, nv)
	}
	for _, e := range g.Edges() {
		style := sym.StyleFor(e.Kind)
		v.Edges = append(v.Edges, EdgeView{
			Edge:     e,
			Stroke:   style.Stroke,
			Dashed:   style.Dashed,
			Animated: style.Animated,
		})
	}
	return v
}
