// Package session owns the navigation stack and routes gestures to the
// controller of the active canvas.
//
// A Session serializes every gesture behind one mutex, which is the single
// logical interaction thread: graphs are only mutated while it is held, and
// only the active canvas is mutated by gestures.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/strata/canvas"
	"github.com/teranos/strata/catalog"
	"github.com/teranos/strata/graph"
	"github.com/teranos/strata/interact"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/storage"
)

// EventType names a session event.
type EventType string

const (
	EventMutation EventType = "mutation"
	EventNavigate EventType = "navigate"
	EventRename   EventType = "rename"
)

// Event is published to subscribers after graph mutations and navigation.
type Event struct {
	Type     EventType       `json:"type"`
	CanvasID string          `json:"canvas_id"`
	Mutation *graph.Mutation `json:"mutation,omitempty"`
}

// Session is one user's editing session.
type Session struct {
	mu sync.Mutex

	catalog   *catalog.Catalog
	store     *storage.Store
	autosave  *storage.AutoSaver
	identity  Identity
	rootTitle string
	ctlOpts   []interact.Option
	graphOpts []graph.Option
	logger    *zap.SugaredLogger

	stack       *canvas.Stack
	canvases    map[string]*canvas.Canvas
	controllers map[string]*interact.Controller
	parents     map[string]string // canvas id -> id of the canvas it was opened from
	detach      map[string][]func()

	subMu       sync.RWMutex
	subscribers map[int]func(Event)
	nextSub     int
}

// Option configures a Session.
type Option func(*Session)

// WithCatalog sets the template catalog. Without one every drill-down yields
// a placeholder canvas.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Session) { s.catalog = c }
}

// WithStore enables restore on start and on drill-down, and manual saves.
func WithStore(st *storage.Store) Option {
	return func(s *Session) { s.store = st }
}

// WithAutoSaver saves every canvas after each mutation.
func WithAutoSaver(a *storage.AutoSaver) Option {
	return func(s *Session) { s.autosave = a }
}

// WithIdentity sets the current user.
func WithIdentity(id Identity) Option {
	return func(s *Session) {
		if id != nil {
			s.identity = id
		}
	}
}

// WithRootTitle sets the title the root canvas is stored and restored under.
func WithRootTitle(title string) Option {
	return func(s *Session) {
		if title != "" {
			s.rootTitle = title
		}
	}
}

// WithControllerOptions are applied to every canvas controller.
func WithControllerOptions(opts ...interact.Option) Option {
	return func(s *Session) { s.ctlOpts = append(s.ctlOpts, opts...) }
}

// WithGraphOptions are applied to every canvas the session creates.
func WithGraphOptions(opts ...graph.Option) Option {
	return func(s *Session) { s.graphOpts = append(s.graphOpts, opts...) }
}

// WithLogger sets the session logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Session) { s.logger = logger.OrNop(l) }
}

// New starts a session. The root canvas is restored from the store by title
// when a readable snapshot exists; otherwise it starts empty.
func New(ctx context.Context, opts ...Option) *Session {
	s := &Session{
		identity:    Anonymous,
		rootTitle:   canvas.DefaultRootTitle,
		logger:      logger.ComponentLogger("session"),
		canvases:    make(map[string]*canvas.Canvas),
		controllers: make(map[string]*interact.Controller),
		parents:     make(map[string]string),
		detach:      make(map[string][]func()),
		subscribers: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}

	root := s.restoreRoot(ctx)
	s.register(root, "")
	s.stack = canvas.NewStack(root)
	return s
}

func (s *Session) restoreRoot(ctx context.Context) *canvas.Canvas {
	if s.store != nil {
		if c, ok := s.store.Load(ctx, s.rootTitle); ok {
			c.ID = canvas.RootID
			c.OriginNode = ""
			s.logger.Infow("Restored root canvas",
				logger.FieldCanvasName, c.Title,
				logger.FieldCount, c.Graph.NodeCount(),
			)
			return c
		}
	}
	return canvas.NewRoot(s.rootTitle, s.graphOpts...)
}

// register wires a canvas into the session: a controller, event forwarding,
// and autosave. parent is the id of the canvas c was opened from.
func (s *Session) register(c *canvas.Canvas, parent string) {
	s.canvases[c.ID] = c
	if parent != "" {
		s.parents[c.ID] = parent
	}

	opts := []interact.Option{
		interact.WithOpener(opener{s}),
		interact.WithUser(s.User),
		interact.WithLogger(s.logger),
	}
	if s.catalog != nil {
		opts = append(opts, interact.WithTemplates(s.catalog))
	}
	if s.store != nil {
		store := s.store
		opts = append(opts, interact.WithPersisted(func(title string) bool {
			return store.Exists(context.Background(), title)
		}))
	}
	s.controllers[c.ID] = interact.New(c, append(opts, s.ctlOpts...)...)

	id := c.ID
	s.detach[id] = append(s.detach[id], c.Graph.Observe(func(m graph.Mutation) {
		if m.Type == graph.NodeDeleted {
			s.forget(id, m.NodeID)
		}
		s.publish(Event{Type: EventMutation, CanvasID: id, Mutation: &m})
	}))
	if s.autosave != nil {
		s.detach[id] = append(s.detach[id], s.autosave.Attach(c))
	}
}

// forget drops the sub-canvas of a node deleted from parentID, and every
// canvas opened below it, from the stack and the session. Their snapshots
// stay in the store.
func (s *Session) forget(parentID, nodeID string) {
	id := canvas.IDForOrigin(nodeID)
	if _, ok := s.canvases[id]; !ok || s.parents[id] != parentID {
		return
	}
	gone := s.descendants(id)

	cut := -1
	for _, d := range gone {
		if i := s.stack.IndexOf(d); i > 0 && (cut < 0 || i < cut) {
			cut = i
		}
	}
	if cut > 0 {
		before := s.stack.Current().ID
		s.stack.Truncate(cut)
		s.navigated(s.stack.Current().ID != before)
	}

	for _, d := range gone {
		for _, fn := range s.detach[d] {
			fn()
		}
		delete(s.detach, d)
		delete(s.canvases, d)
		delete(s.controllers, d)
		delete(s.parents, d)
	}
	s.logger.Debugw("Dropped sub-canvases of deleted node",
		logger.FieldNodeID, nodeID,
		logger.FieldCount, len(gone),
	)
}

// descendants returns id and every canvas opened below it.
func (s *Session) descendants(id string) []string {
	out := []string{id}
	for i := 0; i < len(out); i++ {
		for child, parent := range s.parents {
			if parent == out[i] {
				out = append(out, child)
			}
		}
	}
	return out
}

// opener lets controllers navigate while the session lock is already held.
type opener struct{ s *Session }

func (o opener) OpenNode(from *canvas.Canvas, nodeID string) bool {
	return o.s.openLocked(from, nodeID)
}

func (s *Session) openLocked(from *canvas.Canvas, nodeID string) bool {
	n, ok := from.Graph.Node(nodeID)
	if !ok {
		return false
	}
	id := canvas.IDForOrigin(nodeID)

	sub, cached := s.canvases[id]
	if !cached {
		sub = s.materialize(n)
		s.register(sub, from.ID)
	}

	s.stack.Push(sub)
	s.logger.Debugw("Opened sub-canvas",
		logger.FieldCanvasID, sub.ID,
		logger.FieldNodeID, nodeID,
		"cached", cached,
	)
	s.publish(Event{Type: EventNavigate, CanvasID: sub.ID})
	return true
}

// materialize builds the sub-canvas for n: the snapshot saved under its label
// if there is one, otherwise a fresh seed from the catalog.
func (s *Session) materialize(n graph.Node) *canvas.Canvas {
	id := canvas.IDForOrigin(n.ID)

	if s.store != nil && n.Label != "" {
		if c, ok := s.store.Load(context.Background(), n.Label); ok {
			c.ID = id
			c.OriginNode = n.ID
			return c
		}
	}

	c := s.catalog.InstantiateSeed(n.Kind, n.ID, s.graphOpts...)
	if n.Label != "" {
		c.Title = n.Label
	}
	if s.autosave != nil {
		s.autosave.Schedule(c)
	}
	return c
}

// Do runs fn against the active canvas controller while holding the session lock.
func (s *Session) Do(fn func(*interact.Controller)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.controllers[s.stack.Current().ID])
}

// View runs fn with read access to the active controller and the stack.
// fn must not mutate either.
func (s *Session) View(fn func(ctl *interact.Controller, stack *canvas.Stack)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.controllers[s.stack.Current().ID], s.stack)
}

// Current returns the active canvas. Callers outside Do or View must treat
// it as read-only.
func (s *Session) Current() *canvas.Canvas {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.Current()
}

// Breadcrumb returns the path from the root to the active canvas.
func (s *Session) Breadcrumb() []canvas.Crumb {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.Breadcrumb()
}

// Open navigates into nodeID's sub-canvas on the active canvas.
func (s *Session) Open(nodeID string) bool {
	var opened bool
	s.Do(func(c *interact.Controller) { opened = c.Open(nodeID) })
	return opened
}

// GoTo jumps to breadcrumb position i.
func (s *Session) GoTo(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigated(s.stack.GoTo(i))
}

// GoBack moves one level up.
func (s *Session) GoBack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigated(s.stack.GoBack())
}

// GoForward returns to the canvas most recently left with GoBack.
func (s *Session) GoForward() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigated(s.stack.GoForward())
}

func (s *Session) navigated(moved bool) bool {
	if moved {
		s.controllers[s.stack.Current().ID].CancelConnection()
		s.publish(Event{Type: EventNavigate, CanvasID: s.stack.Current().ID})
	}
	return moved
}

// User returns the current user's display name.
func (s *Session) User() string {
	return s.identity.DisplayName()
}

// Catalog returns the session catalog, which may be nil.
func (s *Session) Catalog() *catalog.Catalog {
	return s.catalog
}

// Store returns the session store, which may be nil.
func (s *Session) Store() *storage.Store {
	return s.store
}

// Save writes the active canvas now.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	return s.store.Save(ctx, s.stack.Current())
}

// SaveAll writes every dirty canvas the session has opened.
func (s *Session) SaveAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	for _, c := range s.canvases {
		if !c.Graph.Dirty() {
			continue
		}
		if err := s.store.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// RenameCanvas retitles the active canvas. The title is its storage key, so
// later saves go to the new key and the old snapshot is left in place.
func (s *Session) RenameCanvas(title string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if title == "" {
		return false
	}
	c := s.stack.Current()
	if c.Title == title {
		return false
	}
	c.Title = title
	if s.autosave != nil {
		s.autosave.Schedule(c)
	}
	s.publish(Event{Type: EventRename, CanvasID: c.ID})
	return true
}

// AdvanceStatus moves the node's "status" attribute to the next value of its
// template's status cycle and returns it.
func (s *Session) AdvanceStatus(nodeID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.stack.Current().Graph
	n, ok := g.Node(nodeID)
	if !ok {
		return "", false
	}
	entry, ok := s.catalog.Resolve(n.Kind)
	if !ok {
		return "", false
	}
	next, ok := entry.NextStatus(n.StringAttr("status"))
	if !ok {
		return "", false
	}
	return next, g.UpdateNode(nodeID, map[string]any{"status": next})
}

// Subscribe registers fn for session events. fn runs with the session lock
// held and must not call back into the Session.
func (s *Session) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

func (s *Session) publish(e Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, fn := range s.subscribers {
		fn(e)
	}
}

// Close detaches observers. Pending autosaves are left to the AutoSaver.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fns := range s.detach {
		for _, fn := range fns {
			fn()
		}
	}
	clear(s.detach)
}
