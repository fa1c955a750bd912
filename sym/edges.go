package sym

// EdgeKind is a semantic edge tag. It is a rendering hint only.
type EdgeKind string

const (
	EdgeDefault     EdgeKind = ""
	EdgePayment     EdgeKind = "payment"
	EdgeTask        EdgeKind = "task"
	EdgeConditional EdgeKind = "conditional"
	EdgeSuccess     EdgeKind = "success"
	EdgeFailure     EdgeKind = "failure"
)

// EdgeStyle is how a renderer should draw an edge kind.
type EdgeStyle struct {
	Kind     EdgeKind
	Stroke   string
	Dashed   bool
	Animated bool
}

var edgeStyles = map[EdgeKind]EdgeStyle{
	EdgeDefault:     {EdgeDefault, "#8a8f98", false, false},
	EdgePayment:     {EdgePayment, "#2f9e44", false, true},
	EdgeTask:        {EdgeTask, "#1c7ed6", false, false},
	EdgeConditional: {EdgeConditional, "#f59f00", true, false},
	EdgeSuccess:     {EdgeSuccess, "#37b24d", false, false},
	EdgeFailure:     {EdgeFailure, "#e03131", true, false},
}

// IsKnownEdgeKind reports whether kind is one of the tagged edge variants.
func IsKnownEdgeKind(kind string) bool {
	_, ok := edgeStyles[EdgeKind(Normalize(kind))]
	return ok
}

// StyleFor returns the style for an edge kind, falling back to the default style.
func StyleFor(kind string) EdgeStyle {
	if s, ok := edgeStyles[EdgeKind(Normalize(kind))]; ok {
		return s
	}
	return edgeStyles[EdgeDefault]
}
