package storage

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/strata/canvas"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/graph"
)

// FormatVersion is written into every snapshot.
const FormatVersion = "1.0.0"

// KeyPrefix namespaces canvas snapshots in the key/value store.
const KeyPrefix = "canvas_"

var (
	compatible = semver.MustParse(FormatVersion)
	nonAlnum   = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// Key is the storage key for a canvas title. Distinct titles that differ only
// in punctuation share a key, and the later save wins.
func Key(title string) string {
	return KeyPrefix + nonAlnum.ReplaceAllString(title, "_")
}

// Snapshot is the persisted document for one canvas.
type Snapshot struct {
	Version    string       `json:"version"`
	Timestamp  time.Time    `json:"timestamp"`
	CanvasID   string       `json:"canvasId"`
	CanvasName string       `json:"canvasName"`
	OriginNode string       `json:"originNode,omitempty"`
	Nodes      []NodeRecord `json:"nodes"`
	Edges      []EdgeRecord `json:"edges"`
}

// NodeRecord is a node with its position flattened.
type NodeRecord struct {
	ID   string   `json:"id"`
	X    float64  `json:"x"`
	Y    float64  `json:"y"`
	Data NodeData `json:"data"`
}

// NodeData carries the node's business payload.
type NodeData struct {
	Kind        string         `json:"kind"`
	Label       string         `json:"label"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	TemplateRef string         `json:"templateRef,omitempty"`
}

// EdgeRecord is a persisted edge.
type EdgeRecord struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   string   `json:"type,omitempty"`
	Amount *float64 `json:"amount,omitempty"`
}

// NewSnapshot captures the current state of c.
func NewSnapshot(c *canvas.Canvas, at time.Time) Snapshot {
	s := Snapshot{
		Version:    FormatVersion,
		Timestamp:  at.UTC(),
		CanvasID:   c.ID,
		CanvasName: c.Title,
		OriginNode: c.OriginNode,
		Nodes:      []NodeRecord{},
		Edges:      []EdgeRecord{},
	}
	for _, n := range c.Graph.Nodes() {
		s.Nodes = append(s.Nodes, NodeRecord{
			ID: n.ID,
			X:  n.Position.X,
			Y:  n.Position.Y,
			Data: NodeData{
				Kind:        n.Kind,
				Label:       n.Label,
				Attributes:  n.Attributes,
				TemplateRef: n.TemplateRef,
			},
		})
	}
	for _, e := range c.Graph.Edges() {
		s.Edges = append(s.Edges, EdgeRecord{
			ID:     e.ID,
			Source: e.Source,
			Target: e.Target,
			Type:   e.Kind,
			Amount: e.Amount,
		})
	}
	return s
}

// Encode serializes c.
func Encode(c *canvas.Canvas, at time.Time) ([]byte, error) {
	data, err := json.Marshal(NewSnapshot(c, at))
	if err != nil {
		return nil, errors.Wrapf(err, "encode canvas %s", c.ID)
	}
	return data, nil
}

// ParseSnapshot decodes a document and checks its format version.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, errors.Wrap(err, "decode snapshot")
	}
	v, err := semver.NewVersion(s.Version)
	if err != nil {
		return Snapshot{}, errors.Wrapf(errors.ErrIncompatibleSnapshot, "version %q: %v", s.Version, err)
	}
	if v.Major() != compatible.Major() {
		return Snapshot{}, errors.Wrapf(errors.ErrIncompatibleSnapshot, "version %s, want %d.x", v, compatible.Major())
	}
	return s, nil
}

// Restore rebuilds a canvas from s. Nodes with duplicate ids and edges that
// dangle or repeat are dropped and counted. The restored graph is not dirty.
func (s Snapshot) Restore(opts ...graph.Option) (c *canvas.Canvas, dropped int) {
	c = canvas.New(s.CanvasID, s.CanvasName, s.OriginNode, opts...)
	if s.CanvasID == canvas.RootID || s.CanvasID == "" {
		c.ID = canvas.RootID
		c.OriginNode = ""
	}

	for _, rec := range s.Nodes {
		_, err := c.Graph.Insert(graph.Node{
			ID:          rec.ID,
			Kind:        rec.Data.Kind,
			Label:       rec.Data.Label,
			Position:    graph.Position{X: rec.X, Y: rec.Y},
			Attributes:  rec.Data.Attributes,
			TemplateRef: rec.Data.TemplateRef,
		})
		if err != nil {
			dropped++
		}
	}
	for _, rec := range s.Edges {
		_, err := c.Graph.InsertEdge(graph.Edge{
			ID:     rec.ID,
			Source: rec.Source,
			Target: rec.Target,
			Kind:   rec.Type,
			Amount: rec.Amount,
		})
		if err != nil {
			dropped++
		}
	}

	c.Graph.MarkSaved(c.Graph.Version())
	return c, dropped
}
