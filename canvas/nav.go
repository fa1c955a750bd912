package canvas

// Crumb is one breadcrumb entry.
type Crumb struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Stack is browser-history-like navigation over open canvases.
// It is never empty, index 0 is always the root, and Index is always valid.
type Stack struct {
	canvases []*Canvas
	index    int
}

// NewStack creates a stack holding only root.
func NewStack(root *Canvas) *Stack {
	return &Stack{canvases: []*Canvas{root}}
}

// Push truncates forward history past the current index and appends c.
func (s *Stack) Push(c *Canvas) {
	s.canvases = append(s.canvases[:s.index+1], c)
	s.index = len(s.canvases) - 1
}

// GoTo moves the current index. Out-of-range indexes are ignored.
func (s *Stack) GoTo(index int) bool {
	if index < 0 || index >= len(s.canvases) {
		return false
	}
	s.index = index
	return true
}

// GoBack moves one step towards the root. No-op at the root.
func (s *Stack) GoBack() bool {
	return s.GoTo(s.index - 1)
}

// GoForward moves one step into retained forward history, if any.
func (s *Stack) GoForward() bool {
	return s.GoTo(s.index + 1)
}

// Current returns the active canvas.
func (s *Stack) Current() *Canvas {
	return s.canvases[s.index]
}

// Root returns the canvas at index 0.
func (s *Stack) Root() *Canvas {
	return s.canvases[0]
}

// Index returns the current index.
func (s *Stack) Index() int {
	return s.index
}

// Len returns the number of canvases including forward history.
func (s *Stack) Len() int {
	return len(s.canvases)
}

// Canvases returns the stacked canvases in order.
func (s *Stack) Canvases() []*Canvas {
	out := make([]*Canvas, len(s.canvases))
	copy(out, s.canvases)
	return out
}

// Breadcrumb lists (id, title) from the root up to the current index.
func (s *Stack) Breadcrumb() []Crumb {
	crumbs := make([]Crumb, 0, s.index+1)
	for _, c := range s.canvases[:s.index+1] {
		crumbs = append(crumbs, Crumb{ID: c.ID, Title: c.Title})
	}
	return crumbs
}

// IndexOf returns the stack position of the canvas with id, or -1.
func (s *Stack) IndexOf(id string) int {
	for i, c := range s.canvases {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Truncate drops every entry from position n on. The root is never dropped;
// when the current entry goes, the last remaining entry becomes current.
func (s *Stack) Truncate(n int) bool {
	if n < 1 || n >= len(s.canvases) {
		return false
	}
	clear(s.canvases[n:])
	s.canvases = s.canvases[:n]
	if s.index >= n {
		s.index = n - 1
	}
	return true
}
