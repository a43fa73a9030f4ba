package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowpilot/pkg/schema"
)

func TestJSONSchemaValidator_ValidDocument(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	raw := []byte(`{
		"id": "a1",
		"name": "check",
		"nodes": [
			{"id": "1", "type": "automationStep", "data": {"step": {"id": "1", "type": "navigate", "value": "https://example.com"}}},
			{"id": "2", "type": "conditional", "data": {"conditionType": "elementExists", "selector": "#ok"}}
		],
		"edges": [{"id": "e1-2-default", "source": "1", "target": "2"}]
	}`)
	assert.NoError(t, v.ValidateRaw(raw))
}

func TestJSONSchemaValidator_Rejects(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"nodes": [`},
		{"no nodes", `{"name": "x"}`},
		{"empty nodes", `{"nodes": []}`},
		{"unknown node type", `{"nodes": [{"id": "1", "type": "trigger", "data": {}}]}`},
		{"unknown step type", `{"nodes": [{"id": "1", "type": "automationStep", "data": {"step": {"type": "teleport"}}}]}`},
		{"step node without step", `{"nodes": [{"id": "1", "type": "automationStep", "data": {}}]}`},
		{"bad condition type", `{"nodes": [{"id": "1", "type": "conditional", "data": {"conditionType": "maybe"}}]}`},
		{"bad handle", `{"nodes": [{"id": "1", "type": "automationStep", "data": {"step": {"type": "hover"}}}],
			"edges": [{"id": "e", "source": "1", "target": "1", "sourceHandle": "left"}]}`},
		{"negative max iterations", `{"nodes": [{"id": "1", "type": "conditional", "data": {"conditionType": "loopUntilFalse", "maxIterations": -1}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateRaw([]byte(tt.raw))
			require.Error(t, err)
			assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
		})
	}
}

func TestJSONSchemaValidator_ValidateAutomation(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	a := schema.NewAutomation("fresh")
	a.Normalize()
	assert.NoError(t, v.ValidateAutomation(a))
	assert.Error(t, v.ValidateAutomation(nil))
}
