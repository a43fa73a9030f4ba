package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowpilot/internal/steps"
	"github.com/rendis/flowpilot/pkg/schema"
)

type credSet map[string]bool

func (c credSet) HasCredential(id string) bool { return c[id] }

func newValidator(t *testing.T, creds CredentialLookup) *AutomationValidator {
	t.Helper()
	v, err := NewAutomationValidator(steps.NewLibrary().Registry(), creds)
	require.NoError(t, err)
	return v
}

func stepNode(id string, action schema.Action) schema.Node {
	return schema.NewStepNode(id, schema.Step{ID: id, Action: action})
}

func edge(src, tgt string, h schema.Handle) schema.Edge {
	return schema.Edge{ID: schema.EdgeID(src, tgt, h), Source: src, Target: tgt, SourceHandle: h}
}

func codes(issues []schema.ValidationIssue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func TestValidate_Clean(t *testing.T) {
	v := newValidator(t, nil)
	a := &schema.Automation{
		Nodes: []schema.Node{
			stepNode("1", &schema.Navigate{URL: "https://example.com"}),
			schema.NewConditionNode("2", schema.ConditionData{ConditionType: schema.CondElementExists, Selector: "#ok"}),
			stepNode("3", &schema.Click{Selector: "#ok"}),
			stepNode("4", &schema.Screenshot{}),
		},
		Edges: []schema.Edge{
			edge("1", "2", schema.HandleNone),
			edge("2", "3", schema.HandleIf),
			edge("2", "4", schema.HandleElse),
		},
	}
	res := v.Validate(a)
	assert.True(t, res.Valid())
	assert.Empty(t, res.Warnings)
}

func TestValidate_Nil(t *testing.T) {
	res := newValidator(t, nil).Validate(nil)
	assert.False(t, res.Valid())
}

func TestValidate_GraphErrorsStopPipeline(t *testing.T) {
	v := newValidator(t, nil)
	a := &schema.Automation{
		Nodes: []schema.Node{
			stepNode("2", &schema.Click{}),
		},
	}
	res := v.Validate(a)
	require.False(t, res.Valid())
	assert.Contains(t, codes(res.Errors), schema.ErrCodeMissingEntry)
	// The empty selector would be a semantic warning; it is never reached.
	assert.Empty(t, res.Warnings)
}

func TestValidate_IncompleteStepsAreWarnings(t *testing.T) {
	v := newValidator(t, credSet{})
	a := &schema.Automation{
		Nodes: []schema.Node{
			stepNode("1", &schema.Navigate{}),
			stepNode("2", &schema.TypeText{Selector: "#user", CredentialID: "missing"}),
			stepNode("3", &schema.Wait{Seconds: "soon"}),
		},
		Edges: []schema.Edge{
			edge("1", "2", schema.HandleNone),
			edge("2", "3", schema.HandleNone),
		},
	}
	res := v.Validate(a)
	assert.True(t, res.Valid())
	assert.ElementsMatch(t,
		[]string{schema.ErrCodeInvalidStep, schema.ErrCodeCredential, schema.ErrCodeInvalidDuration},
		codes(res.Warnings))
}

func TestValidate_UnregisteredStepType(t *testing.T) {
	v, err := NewAutomationValidator(steps.NewRegistry(), nil)
	require.NoError(t, err)

	res := v.Validate(&schema.Automation{Nodes: []schema.Node{stepNode("1", &schema.Hover{Selector: "a"})}})
	require.False(t, res.Valid())
	assert.Equal(t, schema.ErrCodeInvalidStep, res.Errors[0].Code)
}

func TestValidate_ConditionChecks(t *testing.T) {
	v := newValidator(t, nil)
	start := 0
	a := &schema.Automation{
		Nodes: []schema.Node{
			stepNode("1", &schema.Navigate{URL: "https://example.com"}),
			schema.NewConditionNode("2", schema.ConditionData{
				ConditionType: schema.CondValueMatches,
				StartIndex:    &start,
			}),
		},
		Edges: []schema.Edge{edge("1", "2", schema.HandleNone)},
	}
	res := v.Validate(a)
	assert.True(t, res.Valid())
	assert.ElementsMatch(t, []string{schema.ErrCodeEvaluation, schema.ErrCodeValidation}, codes(res.Warnings))

	a.Nodes[1] = schema.NewConditionNode("2", schema.ConditionData{
		ConditionType: schema.CondValueMatches,
		Selector:      "#n",
		ComparisonOp:  "roughly",
	})
	res = v.Validate(a)
	require.False(t, res.Valid())
	assert.Equal(t, "nodes[1].data", res.Errors[0].Path)
}

func TestValidate_Unreachable(t *testing.T) {
	v := newValidator(t, nil)
	a := &schema.Automation{
		Nodes: []schema.Node{
			stepNode("1", &schema.Navigate{URL: "https://example.com"}),
			stepNode("2", &schema.Screenshot{}),
		},
	}
	res := v.Validate(a)
	assert.True(t, res.Valid())
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "nodes[1]", res.Warnings[0].Path)
	assert.Contains(t, res.Warnings[0].Message, "unreachable")
}

func TestValidate_Cycles(t *testing.T) {
	v := newValidator(t, nil)

	plain := &schema.Automation{
		Nodes: []schema.Node{
			stepNode("1", &schema.Navigate{URL: "https://example.com"}),
			stepNode("2", &schema.Click{Selector: "#next"}),
		},
		Edges: []schema.Edge{
			edge("1", "2", schema.HandleNone),
			edge("2", "1", schema.HandleNone),
		},
	}
	res := v.Validate(plain)
	assert.True(t, res.Valid())
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Message, "runs once")

	looped := &schema.Automation{
		Nodes: []schema.Node{
			stepNode("1", &schema.Navigate{URL: "https://example.com"}),
			schema.NewConditionNode("2", schema.ConditionData{ConditionType: schema.CondLoopUntilFalse, Selector: ".next"}),
			stepNode("3", &schema.Click{Selector: ".next"}),
			stepNode("4", &schema.Screenshot{}),
		},
		Edges: []schema.Edge{
			edge("1", "2", schema.HandleNone),
			edge("2", "3", schema.HandleIf),
			edge("3", "2", schema.HandleNone),
			edge("2", "4", schema.HandleElse),
		},
	}
	res = v.Validate(looped)
	assert.True(t, res.Valid())
	assert.Empty(t, res.Warnings)
}

func TestValidateDocument(t *testing.T) {
	v := newValidator(t, nil)

	a, res := v.ValidateDocument([]byte(`{
		"name": "doc",
		"nodes": [
			{"id": "1", "type": "automationStep", "data": {"step": {"id": "1", "type": "navigate", "value": "https://example.com"}}},
			{"id": "2", "type": "automationStep", "data": {"step": {"id": "2", "type": "setVariable", "variableName": "k", "value": "v"}}}
		],
		"edges": [{"id": "e1-2-default", "source": "1", "target": "2"}]
	}`))
	require.NotNil(t, a)
	assert.True(t, res.Valid(), "%+v", res.Errors)
	assert.Equal(t, "doc", a.Name)
	assert.Len(t, a.Steps, 2)

	a, res = v.ValidateDocument([]byte(`{"nodes": []}`))
	assert.Nil(t, a)
	assert.False(t, res.Valid())
}
