package schema

import (
	"encoding/json"
	"fmt"
)

// EntryNodeID is the id of the node every run starts from.
const EntryNodeID = "1"

// NodeType is the persisted discriminator of a node.
type NodeType string

const (
	NodeTypeStep        NodeType = "automationStep"
	NodeTypeConditional NodeType = "conditional"
)

// ConditionType selects how a conditional node is evaluated.
type ConditionType string

const (
	CondElementExists  ConditionType = "elementExists"
	CondValueMatches   ConditionType = "valueMatches"
	CondLoopUntilFalse ConditionType = "loopUntilFalse"
)

// Handle names the outgoing branch of a conditional node.
type Handle string

const (
	HandleNone Handle = ""
	HandleIf   Handle = "if"
	HandleElse Handle = "else"
)

// Position is editor layout metadata. It has no effect on execution.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a vertex of an automation graph.
type Node struct {
	ID       string
	Position Position
	Data     NodeData
}

// NodeData is either *StepData or *ConditionData.
type NodeData interface {
	NodeType() NodeType
	nodeData()
}

// StepData is the payload of a step node.
type StepData struct {
	Step Step `json:"step"`
}

// ConditionData is the payload of a conditional node. ComparisonOp and
// ExpectedValue only apply to valueMatches; the loop fields only to loopUntilFalse.
type ConditionData struct {
	ConditionType ConditionType `json:"conditionType" validate:"required,oneof=elementExists valueMatches loopUntilFalse"`
	Selector      string        `json:"selector"`
	ComparisonOp  ComparisonOp  `json:"comparisonOp,omitempty" validate:"omitempty,oneof=equals contains greaterThan lessThan"`
	ExpectedValue string        `json:"expectedValue,omitempty"`
	StartIndex    *int          `json:"startIndex,omitempty"`
	Increment     *int          `json:"increment,omitempty"`
	MaxIterations int           `json:"maxIterations,omitempty" validate:"min=0"`
}

func (*StepData) NodeType() NodeType      { return NodeTypeStep }
func (*ConditionData) NodeType() NodeType { return NodeTypeConditional }
func (*StepData) nodeData()               {}
func (*ConditionData) nodeData()          {}

// NewStepNode builds a step node.
func NewStepNode(id string, step Step) Node {
	return Node{ID: id, Data: &StepData{Step: step}}
}

// NewConditionNode builds a conditional node.
func NewConditionNode(id string, cond ConditionData) Node {
	return Node{ID: id, Data: &cond}
}

// Type returns the node's discriminator.
func (n Node) Type() NodeType {
	if n.Data == nil {
		return ""
	}
	return n.Data.NodeType()
}

// Step returns the node's step when it is a step node.
func (n Node) Step() (Step, bool) {
	sd, ok := n.Data.(*StepData)
	if !ok {
		return Step{}, false
	}
	return sd.Step, true
}

// Condition returns the node's condition when it is a conditional node.
func (n Node) Condition() (*ConditionData, bool) {
	cd, ok := n.Data.(*ConditionData)
	return cd, ok
}

// IsConditional reports whether the node branches.
func (n Node) IsConditional() bool {
	_, ok := n.Data.(*ConditionData)
	return ok
}

type nodeJSON struct {
	ID       string          `json:"id"`
	Type     NodeType        `json:"type"`
	Data     json.RawMessage `json:"data"`
	Position Position        `json:"position"`
}

func (n Node) MarshalJSON() ([]byte, error) {
	if n.Data == nil {
		return nil, NewErrorf(ErrCodeValidation, "node %q has no data", n.ID)
	}
	data, err := json.Marshal(n.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeJSON{ID: n.ID, Type: n.Data.NodeType(), Data: data, Position: n.Position})
}

func (n *Node) UnmarshalJSON(b []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var data NodeData
	switch raw.Type {
	case NodeTypeStep:
		data = &StepData{}
	case NodeTypeConditional:
		data = &ConditionData{}
	default:
		return NewErrorf(ErrCodeValidation, "node %q has unknown type %q", raw.ID, raw.Type)
	}
	if len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, data); err != nil {
			return fmt.Errorf("decode node %q: %w", raw.ID, err)
		}
	}
	n.ID = raw.ID
	n.Position = raw.Position
	n.Data = data
	return nil
}

// Edge connects two nodes. SourceHandle is only set for edges leaving a conditional.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle Handle `json:"sourceHandle,omitempty"`
}

// EdgeID derives the stable edge id for a source, target and handle.
func EdgeID(source, target string, handle Handle) string {
	h := string(handle)
	if h == "" {
		h = "default"
	}
	return fmt.Sprintf("e%s-%s-%s", source, target, h)
}
