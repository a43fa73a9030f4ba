package graph

import (
	"fmt"
	"slices"

	"github.com/rendis/flowpilot/pkg/schema"
)

// EdgeRequest is a connection the editor (or a caller) asks to make.
// Handle is only meaningful when Source is a conditional node; leaving it
// empty lets AddEdge pick the first free branch.
type EdgeRequest struct {
	Source string        `json:"source" validate:"required"`
	Target string        `json:"target" validate:"required"`
	Handle schema.Handle `json:"sourceHandle,omitempty" validate:"omitempty,oneof=if else"`
}

// AddEdge applies the connection rules and returns the resulting edge list.
// edges is never modified; on success a new slice is returned. Re-adding an
// edge that already exists returns edges unchanged.
//
// Rules: a step node has at most one outgoing edge and it carries no handle.
// A conditional node has at most one edge per handle (if, else); with no
// handle requested the first free one is used.
func AddEdge(nodes []schema.Node, edges []schema.Edge, req EdgeRequest) ([]schema.Edge, error) {
	out, _, err := Connect(nodes, edges, req)
	return out, err
}

// Connect is AddEdge that also returns the edge now linking the two nodes:
// the appended one, or the stored one when the connection already existed.
func Connect(nodes []schema.Node, edges []schema.Edge, req EdgeRequest) ([]schema.Edge, schema.Edge, error) {
	edge, existing, err := resolveEdge(nodes, edges, req)
	if err != nil {
		return edges, schema.Edge{}, err
	}
	if existing != nil {
		return edges, *existing, nil
	}
	out := make([]schema.Edge, 0, len(edges)+1)
	out = append(out, edges...)
	return append(out, edge), edge, nil
}

// resolveEdge returns either the edge to append or, when the connection is
// already present, the stored edge.
func resolveEdge(nodes []schema.Node, edges []schema.Edge, req EdgeRequest) (schema.Edge, *schema.Edge, error) {
	src := findNode(nodes, req.Source)
	if src == nil {
		return schema.Edge{}, nil, schema.NewErrorf(schema.ErrCodeDanglingEdge,
			"edge source %q does not exist", req.Source).
			WithDetails(map[string]any{"source": req.Source, "target": req.Target})
	}
	if findNode(nodes, req.Target) == nil {
		return schema.Edge{}, nil, schema.NewErrorf(schema.ErrCodeDanglingEdge,
			"edge target %q does not exist", req.Target).
			WithDetails(map[string]any{"source": req.Source, "target": req.Target})
	}

	if !src.IsConditional() {
		if e := findEdge(edges, req.Source, req.Target, schema.HandleNone); e != nil {
			return schema.Edge{}, e, nil
		}
		for _, e := range edges {
			if e.Source == req.Source && e.SourceHandle == schema.HandleNone {
				return schema.Edge{}, nil, schema.NewErrorf(schema.ErrCodeDuplicateStepEdge,
					"step node %s already connects to %s", req.Source, e.Target).
					WithNode(req.Source).
					WithDetails(map[string]any{"existing_target": e.Target})
			}
		}
		id := uniqueEdgeID(edges, schema.EdgeID(req.Source, req.Target, schema.HandleNone))
		return schema.Edge{ID: id, Source: req.Source, Target: req.Target}, nil, nil
	}

	used := map[schema.Handle]string{}
	for _, e := range edges {
		if e.Source == req.Source && e.SourceHandle != schema.HandleNone {
			used[e.SourceHandle] = e.Target
		}
	}

	handle := req.Handle
	switch handle {
	case schema.HandleIf, schema.HandleElse:
		if e := findEdge(edges, req.Source, req.Target, handle); e != nil {
			return schema.Edge{}, e, nil
		}
		if target, taken := used[handle]; taken {
			return schema.Edge{}, nil, schema.NewErrorf(schema.ErrCodeDuplicateBranch,
				"branch %q of node %s already connects to %s", handle, req.Source, target).
				WithNode(req.Source).
				WithDetails(map[string]any{"handle": string(handle), "existing_target": target})
		}
	case schema.HandleNone:
		for _, h := range []schema.Handle{schema.HandleIf, schema.HandleElse} {
			if e := findEdge(edges, req.Source, req.Target, h); e != nil {
				return schema.Edge{}, e, nil
			}
		}
		_, ifTaken := used[schema.HandleIf]
		_, elseTaken := used[schema.HandleElse]
		switch {
		case !ifTaken:
			handle = schema.HandleIf
		case !elseTaken:
			handle = schema.HandleElse
		default:
			return schema.Edge{}, nil, schema.NewErrorf(schema.ErrCodeBranchesExhausted,
				"conditional node %s already has both branches connected", req.Source).
				WithNode(req.Source)
		}
	default:
		return schema.Edge{}, nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown branch handle %q", handle).WithNode(req.Source)
	}

	return schema.Edge{
		ID:           uniqueEdgeID(edges, schema.EdgeID(req.Source, req.Target, handle)),
		Source:       req.Source,
		Target:       req.Target,
		SourceHandle: handle,
	}, nil, nil
}

// RemoveEdge returns edges without the edge with the given id.
func RemoveEdge(edges []schema.Edge, id string) ([]schema.Edge, error) {
	i := slices.IndexFunc(edges, func(e schema.Edge) bool { return e.ID == id })
	if i < 0 {
		return edges, schema.NewErrorf(schema.ErrCodeNotFound, "edge %q not found", id)
	}
	return slices.Delete(slices.Clone(edges), i, i+1), nil
}

// DeleteNode removes a node and every edge touching it. The entry node cannot be deleted.
func DeleteNode(nodes []schema.Node, edges []schema.Edge, id string) ([]schema.Node, []schema.Edge, error) {
	if id == schema.EntryNodeID {
		return nodes, edges, schema.NewError(schema.ErrCodeEntryNodeProtected,
			"the entry node cannot be deleted").WithNode(id)
	}
	i := slices.IndexFunc(nodes, func(n schema.Node) bool { return n.ID == id })
	if i < 0 {
		return nodes, edges, schema.NewErrorf(schema.ErrCodeNodeNotFound, "node %q not found", id)
	}
	keptNodes := slices.Delete(slices.Clone(nodes), i, i+1)
	keptEdges := make([]schema.Edge, 0, len(edges))
	for _, e := range edges {
		if e.Source != id && e.Target != id {
			keptEdges = append(keptEdges, e)
		}
	}
	return keptNodes, keptEdges, nil
}

func findNode(nodes []schema.Node, id string) *schema.Node {
	for i := range nodes {
		if nodes[i].ID == id {
			return &nodes[i]
		}
	}
	return nil
}

func findEdge(edges []schema.Edge, source, target string, handle schema.Handle) *schema.Edge {
	i := slices.IndexFunc(edges, func(e schema.Edge) bool {
		return e.Source == source && e.Target == target && e.SourceHandle == handle
	})
	if i < 0 {
		return nil
	}
	e := edges[i]
	return &e
}

// uniqueEdgeID suffixes id when another edge already owns it. Node ids may
// contain '-', so "e1-2-3-default" can name 1->2-3 as well as 1-2->3.
func uniqueEdgeID(edges []schema.Edge, id string) string {
	taken := func(c string) bool {
		return slices.ContainsFunc(edges, func(e schema.Edge) bool { return e.ID == c })
	}
	if !taken(id) {
		return id
	}
	for n := 2; ; n++ {
		if c := fmt.Sprintf("%s-%d", id, n); !taken(c) {
			return c
		}
	}
}
