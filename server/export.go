package server

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/teranos/strata/canvas"
	"github.com/teranos/strata/catalog"
	"github.com/teranos/strata/interact"
	"github.com/teranos/strata/storage"
)

const (
	exportNodeWidth  = 160
	exportNodeHeight = 64
	exportMargin     = 40
)

// handleExport renders the active canvas as a self-contained static HTML page.
// GET /api/canvas/export returns text/html with Content-Disposition attachment.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	v := s.view()
	filename := ExportFilename(v.Title)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	fmt.Fprint(w, renderStaticCanvas(v))
}

// ExportFilename is the download name for the static page of a canvas titled title.
func ExportFilename(title string) string {
	return strings.TrimPrefix(storage.Key(title), storage.KeyPrefix) + ".html"
}

// RenderCanvas renders c outside any session, with no selection or gesture state.
func RenderCanvas(c *canvas.Canvas, cat *catalog.Catalog) string {
	ctl := interact.New(c, interact.WithTemplates(cat))
	return renderStaticCanvas(buildView(ctl, canvas.NewStack(c), cat))
}

// renderStaticCanvas produces a self-contained HTML document from a canvas view.
// Nodes are absolutely positioned; edges are SVG lines between node centres.
func renderStaticCanvas(v *CanvasView) string {
	minX, minY := 0.0, 0.0
	maxX, maxY := 0.0, 0.0
	for i, n := range v.Nodes {
		if i == 0 || n.Position.X < minX {
			minX = n.Position.X
		}
		if i == 0 || n.Position.Y < minY {
			minY = n.Position.Y
		}
		if i == 0 || n.Position.X > maxX {
			maxX = n.Position.X
		}
		if i == 0 || n.Position.Y > maxY {
			maxY = n.Position.Y
		}
	}
	offX := exportMargin - minX
	offY := exportMargin - minY
	width := maxX - minX + exportNodeWidth + 2*exportMargin
	height := maxY - minY + exportNodeHeight + 2*exportMargin

	centres := make(map[string][2]float64, len(v.Nodes))
	var nodesHTML strings.Builder
	for _, n := range v.Nodes {
		x, y := n.Position.X+offX, n.Position.Y+offY
		centres[n.ID] = [2]float64{x + exportNodeWidth/2, y + exportNodeHeight/2}
		nodesHTML.WriteString(renderNode(n, x, y))
	}

	var edgesSVG strings.Builder
	for _, e := range v.Edges {
		from, ok1 := centres[e.Source]
		to, ok2 := centres[e.Target]
		if !ok1 || !ok2 {
			continue
		}
		dash := ""
		if e.Dashed {
			dash = ` stroke-dasharray="6 4"`
		}
		fmt.Fprintf(&edgesSVG, `<line data-edge-id="%s" x1="%.0f" y1="%.0f" x2="%.0f" y2="%.0f" stroke="%s" stroke-width="2"%s marker-end="url(#arrow)"/>
`, html.EscapeString(e.ID), from[0], from[1], to[0], to[1], html.EscapeString(e.Stroke), dash)
		if e.Amount != nil {
			fmt.Fprintf(&edgesSVG, `<text x="%.0f" y="%.0f" class="edge-amount">%g</text>
`, (from[0]+to[0])/2, (from[1]+to[1])/2-6, *e.Amount)
		}
	}

	var crumbs []string
	for _, c := range v.Breadcrumb {
		crumbs = append(crumbs, html.EscapeString(c.Title))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>
%s
</style>
</head>
<body>
<nav class="breadcrumb">%s</nav>
<div class="canvas-workspace" style="width:%.0fpx;height:%.0fpx;">
<svg class="canvas-edges" width="%.0f" height="%.0f">
<defs><marker id="arrow" viewBox="0 0 10 10" refX="10" refY="5" markerWidth="6" markerHeight="6" orient="auto-start-reverse"><path d="M 0 0 L 10 5 L 0 10 z" fill="#8a8f98"/></marker></defs>
%s</svg>
%s</div>
</body>
</html>`, html.EscapeString(v.Title), staticCSS, strings.Join(crumbs, " / "),
		width, height, width, height, edgesSVG.String(), nodesHTML.String())
}

// renderNode renders one node card at (x, y).
func renderNode(n NodeView, x, y float64) string {
	var fields strings.Builder
	for _, f := range n.Fields {
		fmt.Fprintf(&fields, `<div class="node-field"><span>%s</span> %s</div>`,
			html.EscapeString(f.Label), html.EscapeString(f.Value))
	}

	class := "canvas-node"
	if n.Drillable {
		class += " drillable"
	}
	return fmt.Sprintf(`<div class="%s" data-node-id="%s" data-kind="%s" style="left:%.0fpx;top:%.0fpx;">
<div class="node-title"><span class="glyph">%s</span> %s</div>
%s</div>
`, class, html.EscapeString(n.ID), html.EscapeString(n.Kind), x, y,
		html.EscapeString(n.Glyph), html.EscapeString(n.Label), fields.String())
}

const staticCSS = `body { margin: 0; font-family: system-ui, sans-serif; background: #1a1b1e; color: #e9ecef; }
.breadcrumb { padding: 8px 16px; font-size: 13px; color: #adb5bd; }
.canvas-workspace { position: relative; }
.canvas-edges { position: absolute; left: 0; top: 0; }
.edge-amount { fill: #e9ecef; font-size: 11px; text-anchor: middle; }
.canvas-node { position: absolute; width: 160px; min-height: 64px; box-sizing: border-box;
  background: #25262b; border: 1px solid #373a40; border-radius: 6px; padding: 6px 8px; font-size: 12px; }
.canvas-node.drillable { border-color: #1c7ed6; }
.node-title { font-weight: 600; margin-bottom: 4px; }
.node-field span { color: #868e96; }`
