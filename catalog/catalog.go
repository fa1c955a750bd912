// Package catalog maps node kinds to display templates and seed sub-graphs.
//
// The catalog is read-mostly: lookups happen on every placement and drill-down,
// while writes only come from file reloads. A nil or empty Catalog is valid and
// resolves nothing, so drilling into any node still yields a placeholder canvas.
package catalog

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/strata/canvas"
	"github.com/teranos/strata/graph"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/sym"
)

// PlaceholderLabel is the label of the single node seeded for untemplated kinds.
const PlaceholderLabel = "Properties"

// SeedNode is one node of a template's starter sub-graph. ID is local to the
// template and namespaced by the origin node on instantiation.
type SeedNode struct {
	ID         string         `json:"id" toml:"id" yaml:"id" validate:"required"`
	Kind       string         `json:"kind" toml:"kind" yaml:"kind" validate:"required"`
	Label      string         `json:"label,omitempty" toml:"label" yaml:"label,omitempty"`
	X          float64        `json:"x" toml:"x" yaml:"x"`
	Y          float64        `json:"y" toml:"y" yaml:"y"`
	Attributes map[string]any `json:"attributes,omitempty" toml:"attributes" yaml:"attributes,omitempty"`
}

// SeedEdge connects two SeedNodes by local id.
type SeedEdge struct {
	Source string   `json:"source" toml:"source" yaml:"source" validate:"required"`
	Target string   `json:"target" toml:"target" yaml:"target" validate:"required,nefield=Source"`
	Kind   string   `json:"kind,omitempty" toml:"kind" yaml:"kind,omitempty"`
	Amount *float64 `json:"amount,omitempty" toml:"amount" yaml:"amount,omitempty"`
}

// Field is a label/default pair shown on the node face. Key is the attribute
// that overrides the default once set.
type Field struct {
	Label   string `json:"label" toml:"label" yaml:"label" validate:"required"`
	Key     string `json:"key" toml:"key" yaml:"key" validate:"required"`
	Default string `json:"default,omitempty" toml:"default" yaml:"default,omitempty"`
}

// Entry is the template for one node kind.
type Entry struct {
	Kind          string     `json:"kind" toml:"kind" yaml:"kind" validate:"required"`
	Name          string     `json:"name" toml:"name" yaml:"name" validate:"required"`
	Description   string     `json:"description,omitempty" toml:"description" yaml:"description,omitempty"`
	DefaultLabel  string     `json:"default_label,omitempty" toml:"default_label" yaml:"default_label,omitempty"` // may contain $user
	SeedNodes     []SeedNode `json:"seed_nodes,omitempty" toml:"seed_nodes" yaml:"seed_nodes,omitempty" validate:"dive"`
	SeedEdges     []SeedEdge `json:"seed_edges,omitempty" toml:"seed_edges" yaml:"seed_edges,omitempty" validate:"dive"`
	DisplayFields []Field    `json:"display_fields,omitempty" toml:"display_fields" yaml:"display_fields,omitempty" validate:"dive"`
	Statuses      []string   `json:"statuses,omitempty" toml:"statuses" yaml:"statuses,omitempty"`
}

func (e Entry) clone() Entry {
	out := e
	out.SeedNodes = make([]SeedNode, len(e.SeedNodes))
	for i, sn := range e.SeedNodes {
		sn.Attributes = graph.Node{Attributes: sn.Attributes}.Clone().Attributes
		out.SeedNodes[i] = sn
	}
	out.SeedEdges = append([]SeedEdge(nil), e.SeedEdges...)
	out.DisplayFields = append([]Field(nil), e.DisplayFields...)
	out.Statuses = append([]string(nil), e.Statuses...)
	return out
}

// Catalog is a registry of entries keyed by normalized kind.
type Catalog struct {
	mu      sync.RWMutex
	entries map[sym.Kind]Entry
	logger  *zap.SugaredLogger
}

// New creates a catalog. Later entries with the same kind replace earlier ones.
func New(entries ...Entry) *Catalog {
	c := &Catalog{
		entries: make(map[sym.Kind]Entry, len(entries)),
		logger:  logger.ComponentLogger("catalog"),
	}
	c.Merge(entries)
	return c
}

// SetLogger replaces the catalog logger.
func (c *Catalog) SetLogger(l *zap.SugaredLogger) {
	c.logger = logger.OrNop(l)
}

// Resolve looks up the entry for kind. It has no side effects.
func (c *Catalog) Resolve(kind string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[sym.Normalize(kind)]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Has reports whether kind has an entry.
func (c *Catalog) Has(kind string) bool {
	_, ok := c.Resolve(kind)
	return ok
}

// Kinds lists the catalogued kinds in sorted order.
func (c *Catalog) Kinds() []string {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	kinds := make([]string, 0, len(c.entries))
	for k := range c.entries {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	return kinds
}

// Entries returns copies of all entries sorted by kind.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0)
	for _, k := range c.Kinds() {
		if e, ok := c.Resolve(k); ok {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Merge adds or replaces entries by kind.
func (c *Catalog) Merge(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.entries[sym.Normalize(e.Kind)] = e.clone()
	}
}

// Replace swaps the full entry set.
func (c *Catalog) Replace(entries []Entry) {
	fresh := make(map[sym.Kind]Entry, len(entries))
	for _, e := range entries {
		fresh[sym.Normalize(e.Kind)] = e.clone()
	}
	c.mu.Lock()
	c.entries = fresh
	c.mu.Unlock()
}

// DefaultLabel is the label a freshly placed node of kind receives.
// "$user" in the template is replaced with the current user's display name.
func (c *Catalog) DefaultLabel(kind, user string) string {
	label := sym.Label(kind)
	if e, ok := c.Resolve(kind); ok && e.DefaultLabel != "" {
		label = e.DefaultLabel
	}
	return expandUser(label, user)
}

func expandUser(s, user string) string {
	if !strings.Contains(s, "$user") {
		return s
	}
	if user == "" {
		s = strings.ReplaceAll(s, "$user's", "My")
		return strings.ReplaceAll(s, "$user", "Me")
	}
	return strings.ReplaceAll(s, "$user", user)
}

// Value returns what the field shows for n: the attribute under Key when set,
// otherwise the template default.
func (f Field) Value(n graph.Node) string {
	if v := n.StringAttr(f.Key); v != "" {
		return v
	}
	return f.Default
}

// FieldValue returns the value of the display field labelled label, or false
// when the entry has no such field.
func (e Entry) FieldValue(n graph.Node, label string) (string, bool) {
	for _, f := range e.DisplayFields {
		if f.Label == label {
			return f.Value(n), true
		}
	}
	return "", false
}

// NextStatus returns the status following current in the entry's cycle.
// An unset or unknown current status yields the first status.
func (e Entry) NextStatus(current string) (string, bool) {
	if len(e.Statuses) == 0 {
		return "", false
	}
	for i, s := range e.Statuses {
		if s == current {
			return e.Statuses[(i+1)%len(e.Statuses)], true
		}
	}
	return e.Statuses[0], true
}

// InstantiateSeed builds a fresh canvas for a node of kind opened from originNode.
// Seed ids are namespaced as "<originNode>-<seedID>" so sub-canvases never share
// ids. Kinds without an entry get a single placeholder node.
func (c *Catalog) InstantiateSeed(kind, originNode string, opts ...graph.Option) *canvas.Canvas {
	entry, ok := c.Resolve(kind)
	if !ok {
		return placeholderCanvas(kind, originNode, c.log(), opts...)
	}

	cv := canvas.New(canvas.IDForOrigin(originNode), entry.Name, originNode, opts...)
	log := c.log()

	for _, sn := range entry.SeedNodes {
		label := sn.Label
		if label == "" {
			label = sym.Label(sn.Kind)
		}
		node := graph.Node{
			ID:         namespaced(originNode, sn.ID),
			Kind:       sn.Kind,
			Label:      label,
			Position:   graph.Position{X: sn.X, Y: sn.Y},
			Attributes: sn.Attributes,
		}
		if c.Has(sn.Kind) {
			node.TemplateRef = string(sym.Normalize(sn.Kind))
		}
		if _, err := cv.Graph.Insert(node); err != nil {
			log.Warnw("Skipping seed node",
				logger.FieldKind, kind,
				logger.FieldNodeID, node.ID,
				logger.FieldError, err,
			)
		}
	}

	for _, se := range entry.SeedEdges {
		edge := graph.Edge{
			Source: namespaced(originNode, se.Source),
			Target: namespaced(originNode, se.Target),
			Kind:   se.Kind,
			Amount: se.Amount,
		}
		if _, err := cv.Graph.InsertEdge(edge); err != nil {
			log.Warnw("Skipping seed edge",
				logger.FieldKind, kind,
				"source", edge.Source,
				"target", edge.Target,
				logger.FieldError, err,
			)
		}
	}

	return cv
}

func (c *Catalog) log() *zap.SugaredLogger {
	if c == nil || c.logger == nil {
		return logger.ComponentLogger("catalog")
	}
	return c.logger
}

func namespaced(originNode, localID string) string {
	return originNode + "-" + localID
}

func placeholderCanvas(kind, originNode string, log *zap.SugaredLogger, opts ...graph.Option) *canvas.Canvas {
	cv := canvas.New(canvas.IDForOrigin(originNode), sym.Label(kind), originNode, opts...)
	node := graph.Node{
		ID:         namespaced(originNode, string(sym.Properties)),
		Kind:       string(sym.Properties),
		Label:      PlaceholderLabel,
		Position:   graph.Position{X: 250, Y: 150},
		Attributes: map[string]any{"origin_kind": string(sym.Normalize(kind))},
	}
	if _, err := cv.Graph.Insert(node); err != nil {
		log.Warnw("Placeholder node not inserted",
			logger.FieldKind, kind,
			logger.FieldNodeID, node.ID,
			logger.FieldError, err,
		)
	}
	return cv
}
