package conditions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowpilot/internal/browser/browsertest"
	"github.com/rendis/flowpilot/internal/variables"
	"github.com/rendis/flowpilot/pkg/schema"
)

func TestEvaluate_ElementExists(t *testing.T) {
	fake := browsertest.New()
	fake.Elements["#a"] = true
	ev := New(nil)
	ctx := context.Background()

	ok, err := ev.Evaluate(ctx, &schema.ConditionData{ConditionType: schema.CondElementExists, Selector: "#a"}, fake, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ev.Evaluate(ctx, &schema.ConditionData{ConditionType: schema.CondElementExists, Selector: "#b"}, fake, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_InterpolatesSelector(t *testing.T) {
	fake := browsertest.New()
	fake.Elements["#row-7"] = true
	vars := variables.New(map[string]string{"id": "7"})

	ok, err := New(nil).Evaluate(context.Background(),
		&schema.ConditionData{ConditionType: schema.CondElementExists, Selector: "#row-{{id}}"}, fake, vars)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_ValueMatches(t *testing.T) {
	fake := browsertest.New()
	fake.Texts["#status"] = "Order shipped"
	fake.Texts["#count"] = "12"
	vars := variables.New(map[string]string{"min": "10"})
	ev := New(nil)
	ctx := context.Background()

	tests := []struct {
		name string
		cond schema.ConditionData
		want bool
	}{
		{"contains", schema.ConditionData{Selector: "#status", ComparisonOp: schema.OpContains, ExpectedValue: "shipped"}, true},
		{"equals default op", schema.ConditionData{Selector: "#status", ExpectedValue: "Order shipped"}, true},
		{"equals miss", schema.ConditionData{Selector: "#status", ComparisonOp: schema.OpEquals, ExpectedValue: "shipped"}, false},
		{"greater with variable", schema.ConditionData{Selector: "#count", ComparisonOp: schema.OpGreaterThan, ExpectedValue: "{{min}}"}, true},
		{"less", schema.ConditionData{Selector: "#count", ComparisonOp: schema.OpLessThan, ExpectedValue: "{{min}}"}, false},
		{"non numeric is false", schema.ConditionData{Selector: "#status", ComparisonOp: schema.OpGreaterThan, ExpectedValue: "1"}, false},
		{"missing element is false", schema.ConditionData{Selector: "#gone", ComparisonOp: schema.OpEquals, ExpectedValue: ""}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := tt.cond
			cond.ConditionType = schema.CondValueMatches
			got, err := ev.Evaluate(ctx, &cond, fake, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	fake := browsertest.New()
	fake.Texts["#x"] = "1"
	ev := New(nil)
	ctx := context.Background()

	_, err := ev.Evaluate(ctx, &schema.ConditionData{ConditionType: schema.CondValueMatches, Selector: "#x", ComparisonOp: "approx"}, fake, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeEvaluation))

	_, err = ev.Evaluate(ctx, &schema.ConditionData{ConditionType: "isVisible", Selector: "#x"}, fake, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeEvaluation))

	_, err = ev.Evaluate(ctx, &schema.ConditionData{ConditionType: schema.CondElementExists}, fake, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeEvaluation))

	_, err = ev.Evaluate(ctx, nil, fake, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeEvaluation))

	_, err = ev.Evaluate(ctx, &schema.ConditionData{ConditionType: schema.CondElementExists, Selector: "#x"}, nil, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeDriverFailure))

	fake.Errors["exists"] = errors.New("page crashed")
	_, err = ev.Evaluate(ctx, &schema.ConditionData{ConditionType: schema.CondElementExists, Selector: "#x"}, fake, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeDriverFailure))
}

func TestEvaluate_LoopUntilFalse(t *testing.T) {
	fake := browsertest.New()
	fake.ExistsSeq[".next"] = []bool{true, false}
	ev := New(nil)
	cond := &schema.ConditionData{ConditionType: schema.CondLoopUntilFalse, Selector: ".next"}

	first, err := ev.Evaluate(context.Background(), cond, fake, nil)
	require.NoError(t, err)
	second, err := ev.Evaluate(context.Background(), cond, fake, nil)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
}
