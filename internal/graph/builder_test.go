package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowpilot/pkg/schema"
)

func TestBuilder_LinearWithBranch(t *testing.T) {
	g, err := NewBuilder(&schema.Navigate{URL: "https://x"}).
		If(schema.ConditionData{ConditionType: schema.CondElementExists, Selector: "#a"},
			func(b *Builder) { b.Then(&schema.Click{Selector: "#ok"}) },
			func(b *Builder) { b.Then(&schema.Screenshot{}) }).
		Then(&schema.Wait{Seconds: "1"}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, 5, g.Len())
	entry, ok := g.Node(schema.EntryNodeID)
	require.True(t, ok)
	assert.Equal(t, schema.NodeTypeStep, entry.Type())

	assert.Equal(t, []string{"2"}, g.Next("1"))
	assert.Equal(t, []string{"3"}, g.Branch("2", true))
	assert.Equal(t, []string{"4"}, g.Branch("2", false))
	assert.Equal(t, []string{"5"}, g.Next("3"))
	assert.Equal(t, []string{"5"}, g.Next("4"))
}

func TestBuilder_EmptyBranchFallsThrough(t *testing.T) {
	g, err := NewBuilder(&schema.Navigate{URL: "https://x"}).
		If(schema.ConditionData{ConditionType: schema.CondElementExists, Selector: "#cookie"},
			func(b *Builder) { b.Then(&schema.Click{Selector: "#accept"}) },
			nil).
		Then(&schema.Extract{Selector: "h1", StoreKey: "title"}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"4"}, g.Branch("2", false))
	assert.Equal(t, []string{"4"}, g.Next("3"))
}

func TestBuilder_LoopTo(t *testing.T) {
	b := NewBuilder(&schema.Navigate{URL: "https://x"})
	b.If(schema.ConditionData{ConditionType: schema.CondLoopUntilFalse, Selector: ".next"},
		func(b *Builder) { b.Then(&schema.Click{Selector: ".next"}).LoopTo("2") },
		nil)
	g, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"2"}, g.Next("3"))
	assert.Nil(t, g.Branch("2", false))
}

func TestBuilder_StepIDsFollowNodeIDs(t *testing.T) {
	a, err := NewBuilder(&schema.Navigate{URL: "https://x"}).
		ThenStep(schema.Step{ID: "custom", Action: &schema.Hover{Selector: "#m"}}).
		Then(&schema.Click{Selector: "#b"}).
		Automation("demo")
	require.NoError(t, err)

	require.Len(t, a.Steps, 3)
	assert.Equal(t, "1", a.Steps[0].ID)
	assert.Equal(t, "custom", a.Steps[1].ID)
	assert.Equal(t, "3", a.Steps[2].ID)
	assert.Equal(t, "demo", a.Name)
}
