// Package graph holds the automation graph and the rules that keep it well formed.
package graph

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/rendis/flowpilot/pkg/schema"
)

// Graph is an indexed, validated automation graph. Nodes live in a slice
// addressed through an id index; outgoing edges are kept per node in edge order.
type Graph struct {
	nodes []schema.Node
	edges []schema.Edge
	index map[string]int
	out   map[string][]int
}

// New validates nodes and edges and builds a Graph. The inputs are copied.
func New(nodes []schema.Node, edges []schema.Edge) (*Graph, error) {
	if err := Validate(nodes, edges).ToError(); err != nil {
		return nil, err
	}
	g := &Graph{nodes: slices.Clone(nodes), edges: slices.Clone(edges)}
	g.reindex()
	return g, nil
}

// FromAutomation builds a Graph from a stored document.
func FromAutomation(a *schema.Automation) (*Graph, error) {
	if a == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "automation is nil")
	}
	return New(a.Nodes, a.Edges)
}

func (g *Graph) reindex() {
	g.index = make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		g.index[n.ID] = i
	}
	g.out = make(map[string][]int, len(g.nodes))
	for i, e := range g.edges {
		g.out[e.Source] = append(g.out[e.Source], i)
	}
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (schema.Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return schema.Node{}, false
	}
	return g.nodes[i], true
}

// Nodes returns a copy of the nodes in document order.
func (g *Graph) Nodes() []schema.Node { return slices.Clone(g.nodes) }

// Edges returns a copy of the edges in document order.
func (g *Graph) Edges() []schema.Edge { return slices.Clone(g.edges) }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Outgoing returns the edges leaving id, in edge order.
func (g *Graph) Outgoing(id string) []schema.Edge {
	idx := g.out[id]
	out := make([]schema.Edge, 0, len(idx))
	for _, i := range idx {
		out = append(out, g.edges[i])
	}
	return out
}

// Branch returns the targets reached from a conditional node for the given outcome.
// A missing branch yields nil.
func (g *Graph) Branch(id string, outcome bool) []string {
	want := schema.HandleElse
	if outcome {
		want = schema.HandleIf
	}
	var targets []string
	for _, e := range g.Outgoing(id) {
		if e.SourceHandle == want {
			targets = append(targets, e.Target)
		}
	}
	return targets
}

// Next returns the targets of every outgoing edge of a step node.
func (g *Graph) Next(id string) []string {
	var targets []string
	for _, e := range g.Outgoing(id) {
		targets = append(targets, e.Target)
	}
	return targets
}

// AddNode inserts a node. Ids must be unique and non-empty.
func (g *Graph) AddNode(n schema.Node) error {
	if n.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "node id is empty")
	}
	if n.Data == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "node %q has no data", n.ID)
	}
	if _, exists := g.index[n.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeDuplicateNode, "node %q already exists", n.ID).WithNode(n.ID)
	}
	g.nodes = append(g.nodes, n)
	g.reindex()
	return nil
}

// AddEdge connects two nodes under the branch rules and returns the stored edge.
func (g *Graph) AddEdge(req EdgeRequest) (schema.Edge, error) {
	edge, existing, err := resolveEdge(g.nodes, g.edges, req)
	if err != nil {
		return schema.Edge{}, err
	}
	if existing != nil {
		return *existing, nil
	}
	g.edges = append(g.edges, edge)
	g.reindex()
	return edge, nil
}

// RemoveEdge deletes an edge by id.
func (g *Graph) RemoveEdge(id string) error {
	edges, err := RemoveEdge(g.edges, id)
	if err != nil {
		return err
	}
	g.edges = edges
	g.reindex()
	return nil
}

// DeleteNode removes a node and every edge touching it.
func (g *Graph) DeleteNode(id string) error {
	nodes, edges, err := DeleteNode(g.nodes, g.edges, id)
	if err != nil {
		return err
	}
	g.nodes, g.edges = nodes, edges
	g.reindex()
	return nil
}

// AppendNode creates a node with the next free numeric id and links it from
// source, the way the editor's "add after" action does.
func (g *Graph) AppendNode(source string, data schema.NodeData) (schema.Node, error) {
	if _, ok := g.index[source]; !ok {
		return schema.Node{}, schema.NewErrorf(schema.ErrCodeNodeNotFound, "node %q not found", source)
	}
	id := g.NextID()
	if sd, ok := data.(*schema.StepData); ok && sd.Step.ID == "" {
		sd.Step.ID = id
	}
	n := schema.Node{ID: id, Data: data}
	if prev, ok := g.Node(source); ok {
		n.Position = schema.Position{X: prev.Position.X, Y: prev.Position.Y + 100}
	}
	if _, _, err := resolveEdge(append(slices.Clone(g.nodes), n), g.edges, EdgeRequest{Source: source, Target: id}); err != nil {
		return schema.Node{}, err
	}
	if err := g.AddNode(n); err != nil {
		return schema.Node{}, err
	}
	if _, err := g.AddEdge(EdgeRequest{Source: source, Target: id}); err != nil {
		return schema.Node{}, err
	}
	return n, nil
}

// NextID returns one more than the largest numeric node id.
func (g *Graph) NextID() string {
	maxID := 0
	for _, n := range g.nodes {
		if v, err := strconv.Atoi(n.ID); err == nil && v > maxID {
			maxID = v
		}
	}
	return strconv.Itoa(maxID + 1)
}

// Apply writes the graph back into a document and refreshes its derived fields.
func (g *Graph) Apply(a *schema.Automation) {
	a.Nodes = g.Nodes()
	a.Edges = g.Edges()
	a.Normalize()
}

// Validate checks the structural invariants of a node/edge set.
func Validate(nodes []schema.Node, edges []schema.Edge) *schema.ValidationResult {
	res := &schema.ValidationResult{}

	seen := make(map[string]*schema.Node, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		path := fmt.Sprintf("nodes[%d]", i)
		switch {
		case n.ID == "":
			res.AddError(path+".id", schema.ErrCodeValidation, "node id is empty")
			continue
		case seen[n.ID] != nil:
			res.AddError(path+".id", schema.ErrCodeDuplicateNode, fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		seen[n.ID] = n

		switch d := n.Data.(type) {
		case nil:
			res.AddError(path+".data", schema.ErrCodeValidation, fmt.Sprintf("node %q has no data", n.ID))
		case *schema.StepData:
			if d.Step.Action == nil {
				res.AddError(path+".data.step", schema.ErrCodeInvalidStep, fmt.Sprintf("node %q has no step", n.ID))
			}
		case *schema.ConditionData:
			switch d.ConditionType {
			case schema.CondElementExists, schema.CondValueMatches, schema.CondLoopUntilFalse:
			default:
				res.AddError(path+".data.conditionType", schema.ErrCodeValidation,
					fmt.Sprintf("node %q has unknown condition type %q", n.ID, d.ConditionType))
			}
		}
	}
	if seen[schema.EntryNodeID] == nil {
		res.AddError("nodes", schema.ErrCodeMissingEntry, "graph has no entry node \"1\"")
	}

	edgeIDs := make(map[string]bool, len(edges))
	unhandled := map[string]int{}
	branches := map[string]map[schema.Handle]int{}
	for i, e := range edges {
		path := fmt.Sprintf("edges[%d]", i)
		if edgeIDs[e.ID] {
			res.AddError(path+".id", schema.ErrCodeConflict, fmt.Sprintf("duplicate edge id %q", e.ID))
		}
		edgeIDs[e.ID] = true

		src, tgt := seen[e.Source], seen[e.Target]
		if src == nil || tgt == nil {
			res.AddError(path, schema.ErrCodeDanglingEdge,
				fmt.Sprintf("edge %q references a missing node (%s -> %s)", e.ID, e.Source, e.Target))
			continue
		}

		if !src.IsConditional() {
			if e.SourceHandle != schema.HandleNone {
				res.AddError(path+".sourceHandle", schema.ErrCodeValidation,
					fmt.Sprintf("edge %q from step node %s carries handle %q", e.ID, e.Source, e.SourceHandle))
				continue
			}
			unhandled[e.Source]++
			if unhandled[e.Source] == 2 {
				res.AddError(path, schema.ErrCodeDuplicateStepEdge,
					fmt.Sprintf("step node %s has more than one outgoing edge", e.Source))
			}
			continue
		}

		switch e.SourceHandle {
		case schema.HandleIf, schema.HandleElse:
		default:
			res.AddError(path+".sourceHandle", schema.ErrCodeValidation,
				fmt.Sprintf("edge %q from conditional %s needs an if/else handle", e.ID, e.Source))
			continue
		}
		if branches[e.Source] == nil {
			branches[e.Source] = map[schema.Handle]int{}
		}
		branches[e.Source][e.SourceHandle]++
		if branches[e.Source][e.SourceHandle] == 2 {
			res.AddError(path, schema.ErrCodeDuplicateBranch,
				fmt.Sprintf("conditional %s has more than one %q edge", e.Source, e.SourceHandle))
		}
	}

	return res
}
