// Package interact turns pointer gestures on one canvas into graph mutations.
//
// Every method is total: a gesture that does not apply in the current state
// (unknown node, nothing being dragged, connecting a node to itself) is a
// no-op reported through the return value. Nothing here panics or returns an
// error to the caller.
package interact

import (
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/teranos/strata/canvas"
	"github.com/teranos/strata/catalog"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/graph"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/sym"
)

// DefaultJitter is the maximum placement offset from the viewport centre.
const DefaultJitter = 40.0

// Viewport is the visible window onto canvas space.
type Viewport struct {
	X      float64 `json:"x"` // pan offset in screen pixels
	Y      float64 `json:"y"`
	Zoom   float64 `json:"zoom"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the canvas-space point under the middle of the viewport.
func (v Viewport) Center() graph.Position {
	zoom := v.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	return graph.Position{
		X: (-v.X + v.Width/2) / zoom,
		Y: (-v.Y + v.Height/2) / zoom,
	}
}

// Templates is the part of the catalog the controller reads.
type Templates interface {
	Resolve(kind string) (catalog.Entry, bool)
	DefaultLabel(kind, user string) string
}

// Opener navigates into the sub-canvas of a node.
type Opener interface {
	OpenNode(from *canvas.Canvas, nodeID string) bool
}

// Controller holds the gesture state of one canvas.
type Controller struct {
	canvas    *canvas.Canvas
	templates Templates
	opener    Opener
	persisted func(title string) bool
	user      func() string
	rng       *rand.Rand
	jitter    float64
	edgeKind  string
	logger    *zap.SugaredLogger

	selected       string
	connectingFrom string
	drag           *dragState
}

type dragState struct {
	nodeID string
	offset graph.Position // pointer minus node position at pointer down
}

// Option configures a Controller.
type Option func(*Controller)

// WithTemplates sets the catalog used for default labels and drill checks.
func WithTemplates(t Templates) Option {
	return func(c *Controller) { c.templates = t }
}

// WithOpener sets where drill-down requests go.
func WithOpener(o Opener) Option {
	return func(c *Controller) { c.opener = o }
}

// WithPersisted reports whether a sub-canvas has been saved under a title.
func WithPersisted(fn func(title string) bool) Option {
	return func(c *Controller) { c.persisted = fn }
}

// WithUser supplies the display name substituted into default labels.
func WithUser(fn func() string) Option {
	return func(c *Controller) { c.user = fn }
}

// WithRand makes placement jitter deterministic.
func WithRand(r *rand.Rand) Option {
	return func(c *Controller) { c.rng = r }
}

// WithJitter sets the maximum placement offset. Zero places exactly at the centre.
func WithJitter(j float64) Option {
	return func(c *Controller) { c.jitter = j }
}

// WithLogger sets the controller logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Controller) { c.logger = logger.OrNop(l) }
}

// New creates a controller for cv.
func New(cv *canvas.Canvas, opts ...Option) *Controller {
	c := &Controller{
		canvas: cv,
		jitter: DefaultJitter,
		logger: logger.ComponentLogger("interact"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	c.logger = c.logger.With(logger.FieldCanvasID, cv.ID)
	return c
}

// Canvas returns the canvas this controller drives.
func (c *Controller) Canvas() *canvas.Canvas { return c.canvas }

// Selected returns the selected node id, or "".
func (c *Controller) Selected() string { return c.selected }

// ConnectingFrom returns the source of a pending connection, or "".
func (c *Controller) ConnectingFrom() string { return c.connectingFrom }

// Dragging returns the node being dragged, or "".
func (c *Controller) Dragging() string {
	if c.drag == nil {
		return ""
	}
	return c.drag.nodeID
}

// SetEdgeKind sets the kind given to edges created by ConnectGesture.
func (c *Controller) SetEdgeKind(kind string) {
	c.edgeKind = kind
}

// EdgeKind returns the kind used for new connections.
func (c *Controller) EdgeKind() string { return c.edgeKind }

func (c *Controller) graph() *graph.Graph { return c.canvas.Graph }

func (c *Controller) userName() string {
	if c.user == nil {
		return ""
	}
	return c.user()
}

// Select marks id as selected. Unknown ids clear nothing and return false.
func (c *Controller) Select(id string) bool {
	c.CancelConnection()
	if !c.graph().HasNode(id) {
		return false
	}
	c.selected = id
	return true
}

// ClearSelection deselects.
func (c *Controller) ClearSelection() {
	c.CancelConnection()
	c.selected = ""
}

// Place adds a node of kind near the viewport centre and selects it.
func (c *Controller) Place(kind string, vp Viewport) (string, bool) {
	c.CancelConnection()
	k := sym.Normalize(kind)
	if k == "" {
		return "", false
	}

	pos := vp.Center()
	if c.jitter > 0 {
		pos.X += (c.rng.Float64()*2 - 1) * c.jitter
		pos.Y += (c.rng.Float64()*2 - 1) * c.jitter
	}

	node := graph.Node{
		Kind:     string(k),
		Label:    sym.Label(string(k)),
		Position: pos,
	}
	if c.templates != nil {
		node.Label = c.templates.DefaultLabel(string(k), c.userName())
		if _, ok := c.templates.Resolve(string(k)); ok {
			node.TemplateRef = string(k)
		}
	}

	id, err := c.graph().Insert(node)
	if err != nil {
		c.logger.Warnw("Place failed", logger.FieldKind, k, logger.FieldError, err)
		return "", false
	}
	c.selected = id
	return id, true
}

// ConnectGesture advances the connect gesture on id: the first call starts a
// connection, a call on a different node completes it, and a call on the same
// node cancels it. It returns the new edge id when one was created.
func (c *Controller) ConnectGesture(id string) (string, bool) {
	if !c.graph().HasNode(id) {
		return "", false
	}
	switch c.connectingFrom {
	case "":
		c.connectingFrom = id
		return "", false
	case id:
		c.connectingFrom = ""
		return "", false
	}

	source := c.connectingFrom
	c.connectingFrom = ""
	edgeID, err := c.graph().Connect(source, id, c.edgeKind)
	if err != nil {
		if !errors.IsPreconditionError(err) {
			c.logger.Warnw("Connect failed", logger.FieldNodeID, id, logger.FieldError, err)
		} else {
			c.logger.Debugw("Connect rejected", "source", source, "target", id, logger.FieldError, err)
		}
		return "", false
	}
	return edgeID, true
}

// CancelConnection drops a pending connection. It reports whether one was pending.
func (c *Controller) CancelConnection() bool {
	if c.connectingFrom == "" {
		return false
	}
	c.connectingFrom = ""
	return true
}

// PointerDown starts dragging id from pointer position pos.
func (c *Controller) PointerDown(id string, pos graph.Position) bool {
	c.CancelConnection()
	n, ok := c.graph().Node(id)
	if !ok {
		return false
	}
	c.selected = id
	c.drag = &dragState{
		nodeID: id,
		offset: graph.Position{X: pos.X - n.Position.X, Y: pos.Y - n.Position.Y},
	}
	return true
}

// PointerMove moves the dragged node so it stays under the pointer.
func (c *Controller) PointerMove(pos graph.Position) bool {
	if c.drag == nil {
		return false
	}
	target := graph.Position{X: pos.X - c.drag.offset.X, Y: pos.Y - c.drag.offset.Y}
	if !c.graph().HasNode(c.drag.nodeID) {
		c.drag = nil
		return false
	}
	return c.graph().MoveNode(c.drag.nodeID, target)
}

// PointerUp ends a drag.
func (c *Controller) PointerUp() bool {
	if c.drag == nil {
		return false
	}
	c.drag = nil
	return true
}

// Drillable reports whether activating id opens a sub-canvas: its kind has a
// template, a sub-canvas was saved under its label, or the kind is marked drillable.
func (c *Controller) Drillable(id string) bool {
	n, ok := c.graph().Node(id)
	if !ok {
		return false
	}
	if c.templates != nil {
		if _, ok := c.templates.Resolve(n.Kind); ok {
			return true
		}
	}
	if c.persisted != nil && n.Label != "" && c.persisted(n.Label) {
		return true
	}
	return sym.Resolve(n.Kind).Drillable
}

// Activate is a single activation: it selects id and opens it when drillable.
// It reports whether navigation happened.
func (c *Controller) Activate(id string) bool {
	if !c.Select(id) {
		return false
	}
	if !c.Drillable(id) {
		return false
	}
	return c.navigate(id)
}

// Open always navigates into id's sub-canvas; kinds without a template get a
// placeholder canvas from the opener.
func (c *Controller) Open(id string) bool {
	c.CancelConnection()
	if !c.graph().HasNode(id) {
		return false
	}
	return c.navigate(id)
}

func (c *Controller) navigate(id string) bool {
	if c.opener == nil {
		return false
	}
	c.drag = nil
	return c.opener.OpenNode(c.canvas, id)
}

// Edit commits the node editor: an empty label keeps the current one and a
// nil attribute value unsets that key.
func (c *Controller) Edit(id, label string, attrs map[string]any) bool {
	c.CancelConnection()
	if !c.graph().HasNode(id) {
		return false
	}
	if label != "" {
		c.graph().Relabel(id, label)
	}
	if len(attrs) > 0 {
		c.graph().UpdateNode(id, attrs)
	}
	return true
}

// Delete removes id and its edges, clearing any state that pointed at it.
func (c *Controller) Delete(id string) bool {
	c.CancelConnection()
	if !c.graph().DeleteNode(id) {
		return false
	}
	if c.selected == id {
		c.selected = ""
	}
	if c.drag != nil && c.drag.nodeID == id {
		c.drag = nil
	}
	return true
}

// Disconnect removes an edge.
func (c *Controller) Disconnect(edgeID string) bool {
	return c.graph().DeleteEdge(edgeID)
}

// SetAmount annotates an edge with an amount; nil clears it.
func (c *Controller) SetAmount(edgeID string, amount *float64) bool {
	if _, ok := c.graph().Edge(edgeID); !ok {
		return false
	}
	return c.graph().SetEdgeAmount(edgeID, amount)
}
