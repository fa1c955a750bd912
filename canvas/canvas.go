// Package canvas holds named graphs and the navigation stack between them.
package canvas

import (
	"github.com/teranos/strata/graph"
)

// RootID is the identity of the session's root canvas.
const RootID = "root"

// DefaultRootTitle is the title given to a fresh root canvas.
const DefaultRootTitle = "Main Canvas"

// Canvas is one named graph at a level of the navigation hierarchy.
type Canvas struct {
	ID         string
	Title      string
	OriginNode string // node in the parent canvas that opened this one; empty for root
	Graph      *graph.Graph
}

// NewRoot creates an empty root canvas.
func NewRoot(title string, opts ...graph.Option) *Canvas {
	if title == "" {
		title = DefaultRootTitle
	}
	return &Canvas{
		ID:    RootID,
		Title: title,
		Graph: graph.New(opts...),
	}
}

// New creates an empty canvas opened from originNode.
func New(id, title, originNode string, opts ...graph.Option) *Canvas {
	return &Canvas{
		ID:         id,
		Title:      title,
		OriginNode: originNode,
		Graph:      graph.New(opts...),
	}
}

// IDForOrigin is the canvas identity used for the sub-canvas of a node.
func IDForOrigin(originNode string) string {
	return "canvas-" + originNode
}

// IsRoot reports whether c has no origin node.
func (c *Canvas) IsRoot() bool {
	return c.OriginNode == ""
}
