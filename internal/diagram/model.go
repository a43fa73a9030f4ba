// Package diagram renders automation graphs as Mermaid, ASCII or PNG.
package diagram

// NodeKind classifies a diagram node by how it is drawn.
type NodeKind string

const (
	NodeKindStep      NodeKind = "step"
	NodeKindCondition NodeKind = "condition"
	NodeKindLoop      NodeKind = "loop"
	NodeKindStart     NodeKind = "start"
	NodeKindEnd       NodeKind = "end"
)

// Run overlay states.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node is one automation node, or the virtual start and end markers.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Status *StatusOverlay
}

// StatusOverlay carries the outcome of the node in a run.
type StatusOverlay struct {
	Status     string
	DurationMs int64
	Visits     int
	Error      string
}

// Edge connects two nodes. Label carries the branch handle.
type Edge struct {
	From  string
	To    string
	Label string
}
