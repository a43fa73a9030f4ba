package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `{
  "id": "abc",
  "name": "login",
  "description": "logs in",
  "status": "idle",
  "nodes": [
    {"id": "1", "type": "automationStep", "position": {"x": 250, "y": 5},
     "data": {"step": {"id": "1", "type": "navigate", "value": "https://x", "description": "go"}}},
    {"id": "2", "type": "conditional", "position": {"x": 0, "y": 100},
     "data": {"conditionType": "valueMatches", "selector": "#total", "comparisonOp": "greaterThan", "expectedValue": "10"}},
    {"id": "3", "type": "automationStep", "position": {"x": 0, "y": 200},
     "data": {"step": {"id": "s3", "type": "type", "selector": "#pw", "value": "", "credentialId": "c1", "description": "pw"}}},
    {"id": "4", "type": "automationStep", "position": {"x": 0, "y": 300},
     "data": {"step": {"id": "s4", "type": "type", "selector": "#user", "value": "", "credentialId": "c1", "description": "user"}}}
  ],
  "edges": [
    {"id": "e1-2-default", "source": "1", "target": "2"},
    {"id": "e2-3-if", "source": "2", "target": "3", "sourceHandle": "if"}
  ],
  "steps": [{"id": "stale", "type": "click", "selector": "#x", "description": ""}],
  "schedule": {"type": "interval", "interval": 5, "unit": "minutes"},
  "linkedCredentials": ["stale"]
}`

func TestAutomation_DecodeDocument(t *testing.T) {
	var a Automation
	require.NoError(t, json.Unmarshal([]byte(sampleDoc), &a))

	require.Len(t, a.Nodes, 4)
	assert.Equal(t, NodeTypeStep, a.Nodes[0].Type())
	step, ok := a.Nodes[0].Step()
	require.True(t, ok)
	nav, ok := step.Action.(*Navigate)
	require.True(t, ok)
	assert.Equal(t, "https://x", nav.URL)

	cond, ok := a.Nodes[1].Condition()
	require.True(t, ok)
	assert.Equal(t, CondValueMatches, cond.ConditionType)
	assert.Equal(t, OpGreaterThan, cond.ComparisonOp)
	assert.True(t, a.Nodes[1].IsConditional())

	assert.Equal(t, HandleIf, a.Edges[1].SourceHandle)
	assert.Equal(t, HandleNone, a.Edges[0].SourceHandle)
	assert.Equal(t, ScheduleInterval, a.Schedule.Type)
}

func TestAutomation_NormalizeDerivesStepsAndCredentials(t *testing.T) {
	var a Automation
	require.NoError(t, json.Unmarshal([]byte(sampleDoc), &a))

	a.Normalize()

	require.Len(t, a.Steps, 3)
	assert.Equal(t, "1", a.Steps[0].ID)
	assert.Equal(t, "s3", a.Steps[1].ID)
	assert.Equal(t, []string{"c1"}, a.LinkedCredentials)
}

func TestAutomation_EncodeRoundTripKeepsStepFields(t *testing.T) {
	var a Automation
	require.NoError(t, json.Unmarshal([]byte(sampleDoc), &a))
	a.Normalize()

	out, err := json.Marshal(&a)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(out, &generic))
	nodes := generic["nodes"].([]any)
	first := nodes[0].(map[string]any)
	data := first["data"].(map[string]any)
	step := data["step"].(map[string]any)
	assert.Equal(t, "navigate", step["type"])
	assert.Equal(t, "https://x", step["value"])
	assert.Equal(t, "go", step["description"])

	var back Automation
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, a.Nodes[2].Data, back.Nodes[2].Data)
}

func TestNewAutomation_DefaultEntryNode(t *testing.T) {
	a := NewAutomation("fresh")

	require.Len(t, a.Nodes, 1)
	assert.Equal(t, EntryNodeID, a.Nodes[0].ID)
	step, ok := a.Nodes[0].Step()
	require.True(t, ok)
	assert.Equal(t, StepNavigate, step.Type())
	assert.Equal(t, "https://", step.Action.(*Navigate).URL)
	assert.Empty(t, a.Edges)
	assert.Len(t, a.Steps, 1)
	assert.Equal(t, AutomationIdle, a.Status)
}

func TestStep_UnknownType(t *testing.T) {
	var s Step
	err := json.Unmarshal([]byte(`{"id":"x","type":"teleport"}`), &s)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeInvalidStep))
}

func TestStep_EveryTypeHasAction(t *testing.T) {
	for _, st := range StepTypes {
		act, err := NewAction(st)
		require.NoError(t, err, st)
		assert.Equal(t, st, act.StepType())
	}
}

func TestNode_UnknownType(t *testing.T) {
	var n Node
	err := json.Unmarshal([]byte(`{"id":"9","type":"group","data":{}}`), &n)
	require.Error(t, err)
}

func TestEdgeID(t *testing.T) {
	assert.Equal(t, "e1-2-default", EdgeID("1", "2", HandleNone))
	assert.Equal(t, "e2-3-if", EdgeID("2", "3", HandleIf))
	assert.Equal(t, "e2-4-else", EdgeID("2", "4", HandleElse))
}

func TestFlowError_Classification(t *testing.T) {
	graphErr := NewError(ErrCodeDuplicateBranch, "branch taken")
	stepErr := NewError(ErrCodeMissingSelector, "no selector").WithNode("3")
	wrapped := fmt.Errorf("outer: %w", stepErr)

	assert.True(t, IsGraphError(graphErr))
	assert.False(t, IsStepError(graphErr))
	assert.True(t, IsStepError(wrapped))
	assert.Equal(t, ErrCodeMissingSelector, CodeOf(wrapped))
	assert.Equal(t, "[MISSING_SELECTOR] node 3: no selector", stepErr.Error())
	assert.False(t, HasCode(nil, ErrCodeMissingSelector))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

func TestFlowError_Unwrap(t *testing.T) {
	cause := errors.New("socket closed")
	err := NewError(ErrCodeDriverFailure, "click failed").WithCause(cause)
	assert.ErrorIs(t, err, cause)
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.True(t, RunCompleted.IsTerminal())
	assert.True(t, RunStopped.IsTerminal())
	assert.False(t, RunPaused.IsTerminal())
}
