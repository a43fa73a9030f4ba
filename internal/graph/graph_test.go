package graph

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowpilot/pkg/schema"
)

func stepNode(id string) schema.Node {
	return schema.NewStepNode(id, schema.Step{ID: id, Action: &schema.Click{Selector: "#" + id}})
}

func condNode(id string) schema.Node {
	return schema.NewConditionNode(id, schema.ConditionData{ConditionType: schema.CondElementExists, Selector: "#c" + id})
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, schema.CodeOf(err), "unexpected error: %v", err)
}

func TestAddEdge_StepNode(t *testing.T) {
	nodes := []schema.Node{stepNode("1"), stepNode("2"), stepNode("3")}

	edges, err := AddEdge(nodes, nil, EdgeRequest{Source: "1", Target: "2"})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "e1-2-default", edges[0].ID)
	assert.Equal(t, schema.HandleNone, edges[0].SourceHandle)

	_, err = AddEdge(nodes, edges, EdgeRequest{Source: "1", Target: "3"})
	assertCode(t, err, schema.ErrCodeDuplicateStepEdge)
	assert.True(t, schema.IsGraphError(err))
}

func TestAddEdge_StepNodeIgnoresHandle(t *testing.T) {
	nodes := []schema.Node{stepNode("1"), stepNode("2")}
	edges, err := AddEdge(nodes, nil, EdgeRequest{Source: "1", Target: "2", Handle: schema.HandleElse})
	require.NoError(t, err)
	assert.Equal(t, schema.HandleNone, edges[0].SourceHandle)
}

func TestGraphAddEdge_StepNodeReAddWithHandle(t *testing.T) {
	g, err := New([]schema.Node{stepNode("1"), stepNode("2")}, nil)
	require.NoError(t, err)

	first, err := g.AddEdge(EdgeRequest{Source: "1", Target: "2"})
	require.NoError(t, err)

	for _, h := range []schema.Handle{schema.HandleIf, schema.HandleElse, schema.HandleNone} {
		again, err := g.AddEdge(EdgeRequest{Source: "1", Target: "2", Handle: h})
		require.NoError(t, err, "handle %q", h)
		assert.Equal(t, first, again, "handle %q", h)
	}
	assert.Len(t, g.Edges(), 1)
	assert.True(t, Validate(g.Nodes(), g.Edges()).Valid())
}

func TestConnect_ReturnsStoredEdge(t *testing.T) {
	nodes := []schema.Node{stepNode("1"), condNode("2"), stepNode("3")}
	edges, added, err := Connect(nodes, nil, EdgeRequest{Source: "2", Target: "3"})
	require.NoError(t, err)
	assert.Equal(t, schema.HandleIf, added.SourceHandle)

	same, again, err := Connect(nodes, edges, EdgeRequest{Source: "2", Target: "3", Handle: schema.HandleIf})
	require.NoError(t, err)
	assert.Equal(t, edges, same)
	assert.Equal(t, added, again)
}

func TestAddEdge_DashedNodeIDs(t *testing.T) {
	nodes := []schema.Node{stepNode("1"), stepNode("2-3"), stepNode("1-2"), stepNode("3")}

	edges, err := AddEdge(nodes, nil, EdgeRequest{Source: "1", Target: "2-3"})
	require.NoError(t, err)
	edges, err = AddEdge(nodes, edges, EdgeRequest{Source: "1-2", Target: "3"})
	require.NoError(t, err)

	require.Len(t, edges, 2)
	assert.Equal(t, "e1-2-3-default", edges[0].ID)
	assert.NotEqual(t, edges[0].ID, edges[1].ID)
	assert.Equal(t, "1-2", edges[1].Source)
	assert.Equal(t, "3", edges[1].Target)
	assert.True(t, Validate(nodes, edges).Valid())

	again, err := AddEdge(nodes, edges, EdgeRequest{Source: "1-2", Target: "3"})
	require.NoError(t, err)
	assert.Equal(t, edges, again)
}

func TestAddEdge_Idempotent(t *testing.T) {
	nodes := []schema.Node{stepNode("1"), condNode("2"), stepNode("3")}
	edges, err := AddEdge(nodes, nil, EdgeRequest{Source: "1", Target: "2"})
	require.NoError(t, err)
	edges, err = AddEdge(nodes, edges, EdgeRequest{Source: "2", Target: "3", Handle: schema.HandleIf})
	require.NoError(t, err)

	again, err := AddEdge(nodes, edges, EdgeRequest{Source: "1", Target: "2"})
	require.NoError(t, err)
	assert.Equal(t, edges, again)

	again, err = AddEdge(nodes, edges, EdgeRequest{Source: "2", Target: "3", Handle: schema.HandleIf})
	require.NoError(t, err)
	assert.Equal(t, edges, again)

	again, err = AddEdge(nodes, edges, EdgeRequest{Source: "2", Target: "3"})
	require.NoError(t, err)
	assert.Equal(t, edges, again)
}

func TestAddEdge_ConditionalAutoAssign(t *testing.T) {
	nodes := []schema.Node{stepNode("1"), condNode("2"), stepNode("3"), stepNode("4"), stepNode("5")}

	edges, err := AddEdge(nodes, nil, EdgeRequest{Source: "2", Target: "3"})
	require.NoError(t, err)
	assert.Equal(t, schema.HandleIf, edges[0].SourceHandle)
	assert.Equal(t, "e2-3-if", edges[0].ID)

	edges, err = AddEdge(nodes, edges, EdgeRequest{Source: "2", Target: "4"})
	require.NoError(t, err)
	assert.Equal(t, schema.HandleElse, edges[1].SourceHandle)

	_, err = AddEdge(nodes, edges, EdgeRequest{Source: "2", Target: "5"})
	assertCode(t, err, schema.ErrCodeBranchesExhausted)
}

func TestAddEdge_ConditionalElseFirst(t *testing.T) {
	nodes := []schema.Node{stepNode("1"), condNode("2"), stepNode("3"), stepNode("4")}

	edges, err := AddEdge(nodes, nil, EdgeRequest{Source: "2", Target: "3", Handle: schema.HandleElse})
	require.NoError(t, err)
	edges, err = AddEdge(nodes, edges, EdgeRequest{Source: "2", Target: "4"})
	require.NoError(t, err)
	assert.Equal(t, schema.HandleIf, edges[1].SourceHandle)
}

func TestAddEdge_DuplicateBranch(t *testing.T) {
	nodes := []schema.Node{stepNode("1"), condNode("2"), stepNode("3"), stepNode("4")}
	edges, err := AddEdge(nodes, nil, EdgeRequest{Source: "2", Target: "3", Handle: schema.HandleIf})
	require.NoError(t, err)

	_, err = AddEdge(nodes, edges, EdgeRequest{Source: "2", Target: "4", Handle: schema.HandleIf})
	assertCode(t, err, schema.ErrCodeDuplicateBranch)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "if", fe.Details["handle"])
}

func TestAddEdge_Dangling(t *testing.T) {
	nodes := []schema.Node{stepNode("1")}
	_, err := AddEdge(nodes, nil, EdgeRequest{Source: "1", Target: "9"})
	assertCode(t, err, schema.ErrCodeDanglingEdge)
	_, err = AddEdge(nodes, nil, EdgeRequest{Source: "9", Target: "1"})
	assertCode(t, err, schema.ErrCodeDanglingEdge)
}

func TestAddEdge_UnknownHandle(t *testing.T) {
	nodes := []schema.Node{stepNode("1"), condNode("2")}
	_, err := AddEdge(nodes, nil, EdgeRequest{Source: "2", Target: "1", Handle: "maybe"})
	assertCode(t, err, schema.ErrCodeValidation)
}

func TestAddEdge_DoesNotMutateInput(t *testing.T) {
	nodes := []schema.Node{stepNode("1"), stepNode("2")}
	edges := make([]schema.Edge, 0, 4)
	out, err := AddEdge(nodes, edges, EdgeRequest{Source: "1", Target: "2"})
	require.NoError(t, err)
	assert.Len(t, edges, 0)
	assert.Len(t, out, 1)
}

// Random edge-add sequences never break the per-node edge limits.
func TestAddEdge_RandomSequencesKeepInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	handles := []schema.Handle{schema.HandleNone, schema.HandleIf, schema.HandleElse}

	for round := 0; round < 200; round++ {
		var nodes []schema.Node
		n := 2 + r.Intn(8)
		for i := 1; i <= n; i++ {
			id := string(rune('0' + i))
			if r.Intn(3) == 0 {
				nodes = append(nodes, condNode(id))
			} else {
				nodes = append(nodes, stepNode(id))
			}
		}

		var edges []schema.Edge
		for k := 0; k < 40; k++ {
			src := nodes[r.Intn(n)]
			tgt := nodes[r.Intn(n)]
			next, err := AddEdge(nodes, edges, EdgeRequest{Source: src.ID, Target: tgt.ID, Handle: handles[r.Intn(3)]})
			if err != nil {
				assert.True(t, schema.IsGraphError(err), "unexpected error: %v", err)
				assert.Equal(t, edges, next)
				continue
			}
			edges = next
		}

		unhandled := map[string]int{}
		perHandle := map[string]map[schema.Handle]int{}
		for _, e := range edges {
			if e.SourceHandle == schema.HandleNone {
				unhandled[e.Source]++
				continue
			}
			if perHandle[e.Source] == nil {
				perHandle[e.Source] = map[schema.Handle]int{}
			}
			perHandle[e.Source][e.SourceHandle]++
		}
		for id, c := range unhandled {
			assert.LessOrEqual(t, c, 1, "node %s", id)
		}
		for id, hs := range perHandle {
			for h, c := range hs {
				assert.LessOrEqual(t, c, 1, "node %s handle %s", id, h)
			}
			assert.LessOrEqual(t, len(hs), 2)
		}
		assert.True(t, Validate(nodes, edges).Valid())
	}
}

func TestAddEdge_ThirdBranchAlwaysRejected(t *testing.T) {
	nodes := []schema.Node{stepNode("1"), condNode("2"), stepNode("3"), stepNode("4"), stepNode("5")}
	for _, third := range []schema.Handle{schema.HandleNone, schema.HandleIf, schema.HandleElse} {
		edges, err := AddEdge(nodes, nil, EdgeRequest{Source: "2", Target: "3"})
		require.NoError(t, err)
		edges, err = AddEdge(nodes, edges, EdgeRequest{Source: "2", Target: "4"})
		require.NoError(t, err)

		_, err = AddEdge(nodes, edges, EdgeRequest{Source: "2", Target: "5", Handle: third})
		require.Error(t, err, "handle %q", third)
		assert.True(t, schema.IsGraphError(err))
	}
}

func TestDeleteNode_EntryProtected(t *testing.T) {
	g, err := New([]schema.Node{stepNode("1"), stepNode("2")},
		[]schema.Edge{{ID: "e1-2-default", Source: "1", Target: "2"}})
	require.NoError(t, err)

	before := g.Edges()
	err = g.DeleteNode("1")
	assertCode(t, err, schema.ErrCodeEntryNodeProtected)
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, before, g.Edges())
}

func TestDeleteNode_Cascades(t *testing.T) {
	nodes := []schema.Node{stepNode("1"), condNode("2"), stepNode("3"), stepNode("4")}
	edges := []schema.Edge{
		{ID: "e1-2-default", Source: "1", Target: "2"},
		{ID: "e2-3-if", Source: "2", Target: "3", SourceHandle: schema.HandleIf},
		{ID: "e2-4-else", Source: "2", Target: "4", SourceHandle: schema.HandleElse},
	}
	g, err := New(nodes, edges)
	require.NoError(t, err)

	require.NoError(t, g.DeleteNode("2"))
	assert.Equal(t, 3, g.Len())
	assert.Empty(t, g.Edges())
	_, ok := g.Node("2")
	assert.False(t, ok)

	assertCode(t, g.DeleteNode("2"), schema.ErrCodeNodeNotFound)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		nodes []schema.Node
		edges []schema.Edge
		code  string
	}{
		{"missing entry", []schema.Node{stepNode("2")}, nil, schema.ErrCodeMissingEntry},
		{"duplicate node", []schema.Node{stepNode("1"), stepNode("1")}, nil, schema.ErrCodeDuplicateNode},
		{"dangling", []schema.Node{stepNode("1")},
			[]schema.Edge{{ID: "e1-7-default", Source: "1", Target: "7"}}, schema.ErrCodeDanglingEdge},
		{"two step edges", []schema.Node{stepNode("1"), stepNode("2"), stepNode("3")},
			[]schema.Edge{{ID: "a", Source: "1", Target: "2"}, {ID: "b", Source: "1", Target: "3"}}, schema.ErrCodeDuplicateStepEdge},
		{"two if edges", []schema.Node{stepNode("1"), condNode("2"), stepNode("3")},
			[]schema.Edge{
				{ID: "a", Source: "2", Target: "1", SourceHandle: schema.HandleIf},
				{ID: "b", Source: "2", Target: "3", SourceHandle: schema.HandleIf},
			}, schema.ErrCodeDuplicateBranch},
		{"conditional edge without handle", []schema.Node{stepNode("1"), condNode("2")},
			[]schema.Edge{{ID: "a", Source: "2", Target: "1"}}, schema.ErrCodeValidation},
		{"step edge with handle", []schema.Node{stepNode("1"), stepNode("2")},
			[]schema.Edge{{ID: "a", Source: "1", Target: "2", SourceHandle: schema.HandleIf}}, schema.ErrCodeValidation},
		{"unknown condition", []schema.Node{stepNode("1"),
			schema.NewConditionNode("2", schema.ConditionData{ConditionType: "isBlue"})}, nil, schema.ErrCodeValidation},
		{"duplicate edge id", []schema.Node{stepNode("1"), condNode("2")},
			[]schema.Edge{
				{ID: "x", Source: "1", Target: "2"},
				{ID: "x", Source: "2", Target: "1", SourceHandle: schema.HandleIf},
			}, schema.ErrCodeConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.nodes, tt.edges)
			require.False(t, res.Valid())
			assert.Equal(t, tt.code, res.Errors[0].Code)

			_, err := New(tt.nodes, tt.edges)
			require.Error(t, err)
		})
	}
}

func TestGraph_BranchAndNext(t *testing.T) {
	nodes := []schema.Node{stepNode("1"), condNode("2"), stepNode("3"), stepNode("4")}
	edges := []schema.Edge{
		{ID: "e1-2-default", Source: "1", Target: "2"},
		{ID: "e2-4-else", Source: "2", Target: "4", SourceHandle: schema.HandleElse},
		{ID: "e2-3-if", Source: "2", Target: "3", SourceHandle: schema.HandleIf},
	}
	g, err := New(nodes, edges)
	require.NoError(t, err)

	assert.Equal(t, []string{"2"}, g.Next("1"))
	assert.Equal(t, []string{"3"}, g.Branch("2", true))
	assert.Equal(t, []string{"4"}, g.Branch("2", false))
	assert.Nil(t, g.Next("3"))
	assert.Len(t, g.Outgoing("2"), 2)
}

func TestGraph_AddEdgeReturnsExisting(t *testing.T) {
	g, err := New([]schema.Node{stepNode("1"), condNode("2"), stepNode("3")}, nil)
	require.NoError(t, err)

	first, err := g.AddEdge(EdgeRequest{Source: "2", Target: "3"})
	require.NoError(t, err)
	again, err := g.AddEdge(EdgeRequest{Source: "2", Target: "3"})
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Len(t, g.Edges(), 1)
}

func TestGraph_AppendNode(t *testing.T) {
	g, err := New([]schema.Node{stepNode("1")}, nil)
	require.NoError(t, err)

	n, err := g.AppendNode("1", &schema.ConditionData{ConditionType: schema.CondElementExists, Selector: "#a"})
	require.NoError(t, err)
	assert.Equal(t, "2", n.ID)

	yes, err := g.AppendNode("2", &schema.StepData{Step: schema.Step{Action: &schema.Click{Selector: "#ok"}}})
	require.NoError(t, err)
	no, err := g.AppendNode("2", &schema.StepData{Step: schema.Step{Action: &schema.Screenshot{}}})
	require.NoError(t, err)

	assert.Equal(t, []string{yes.ID}, g.Branch("2", true))
	assert.Equal(t, []string{no.ID}, g.Branch("2", false))
	step, _ := yes.Step()
	assert.Equal(t, "3", step.ID)

	_, err = g.AppendNode("2", &schema.StepData{Step: schema.Step{Action: &schema.Hover{Selector: "#x"}}})
	assertCode(t, err, schema.ErrCodeBranchesExhausted)
	assert.Equal(t, 4, g.Len())

	_, err = g.AppendNode("1", &schema.StepData{Step: schema.Step{Action: &schema.Hover{Selector: "#x"}}})
	assertCode(t, err, schema.ErrCodeDuplicateStepEdge)
}

func TestGraph_ApplyNormalizes(t *testing.T) {
	g, err := New([]schema.Node{stepNode("1"), stepNode("2")}, nil)
	require.NoError(t, err)
	_, err = g.AddEdge(EdgeRequest{Source: "1", Target: "2"})
	require.NoError(t, err)

	a := &schema.Automation{}
	g.Apply(a)
	assert.Len(t, a.Steps, 2)
	assert.Len(t, a.Edges, 1)
}
