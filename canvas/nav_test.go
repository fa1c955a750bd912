package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(s *Stack) []string {
	var out []string
	for _, c := range s.Canvases() {
		out = append(out, c.ID)
	}
	return out
}

func TestNewStack(t *testing.T) {
	root := NewRoot("")
	s := NewStack(root)

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 0, s.Index())
	assert.Same(t, root, s.Current())
	assert.Equal(t, DefaultRootTitle, root.Title)
	assert.True(t, root.IsRoot())
}

func TestStack_PushTruncatesForwardHistory(t *testing.T) {
	a := NewRoot("A")
	s := NewStack(a)
	s.Push(New("B", "B", "nb"))
	s.Push(New("C", "C", "nc"))
	require.Equal(t, 2, s.Index())

	require.True(t, s.GoBack())
	s.Push(New("D", "D", "nd"))

	assert.Equal(t, []string{RootID, "B", "D"}, ids(s))
	assert.Equal(t, 2, s.Index())
	assert.Equal(t, "D", s.Current().ID)
}

func TestStack_GoTo(t *testing.T) {
	s := NewStack(NewRoot("Main Canvas"))
	s.Push(New("B", "Payroll", "nb"))
	s.Push(New("C", "Vendor", "nc"))

	t.Run("out of range is a no-op", func(t *testing.T) {
		assert.False(t, s.GoTo(3))
		assert.False(t, s.GoTo(-1))
		assert.Equal(t, 2, s.Index())
	})

	t.Run("jump to root keeps forward history", func(t *testing.T) {
		assert.True(t, s.GoTo(0))
		assert.Equal(t, 3, s.Len())
		assert.True(t, s.GoForward())
		assert.Equal(t, "B", s.Current().ID)
	})

	t.Run("go back at root is a no-op", func(t *testing.T) {
		s.GoTo(0)
		assert.False(t, s.GoBack())
		assert.Equal(t, 0, s.Index())
	})
}

func TestStack_Breadcrumb(t *testing.T) {
	s := NewStack(NewRoot("Main Canvas"))
	s.Push(New("canvas-p1", "Payroll", "p1"))
	s.Push(New("canvas-p2", "Approval", "p2"))
	s.GoBack()

	assert.Equal(t, []Crumb{
		{ID: RootID, Title: "Main Canvas"},
		{ID: "canvas-p1", Title: "Payroll"},
	}, s.Breadcrumb())
	assert.Equal(t, 2, s.IndexOf("canvas-p2"), "forward history is still on the stack")
	assert.Equal(t, -1, s.IndexOf("canvas-zz"))
}

func TestStack_Truncate(t *testing.T) {
	newStack := func() *Stack {
		s := NewStack(NewRoot("Main Canvas"))
		s.Push(New("canvas-p1", "Payroll", "p1"))
		s.Push(New("canvas-p2", "Approval", "p2"))
		return s
	}

	t.Run("drops forward history", func(t *testing.T) {
		s := newStack()
		s.GoTo(0)
		require.True(t, s.Truncate(1))
		assert.Equal(t, []string{RootID}, ids(s))
		assert.Equal(t, 0, s.Index())
		assert.False(t, s.GoForward())
	})

	t.Run("clamps a dropped current entry", func(t *testing.T) {
		s := newStack()
		require.True(t, s.Truncate(2))
		assert.Equal(t, 1, s.Index())
		assert.Equal(t, "canvas-p1", s.Current().ID)
	})

	t.Run("root and out of range are kept", func(t *testing.T) {
		s := newStack()
		assert.False(t, s.Truncate(0))
		assert.False(t, s.Truncate(3))
		assert.Equal(t, 3, s.Len())
	})
}

func TestStack_CanvasesIsACopy(t *testing.T) {
	s := NewStack(NewRoot(""))
	list := s.Canvases()
	list[0] = nil
	assert.NotNil(t, s.Root())
}

func TestIDForOrigin(t *testing.T) {
	assert.Equal(t, "canvas-n42", IDForOrigin("n42"))
}
