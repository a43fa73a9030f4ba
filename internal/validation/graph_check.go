package validation

import (
	"fmt"

	"github.com/rendis/flowpilot/pkg/schema"
)

// validateFlow reports nodes a run can never reach from the entry node and
// cycles that do not pass through a loopUntilFalse node. The walker visits
// each node once, so such a cycle stops at its first repeated node.
// Both are warnings; structural errors come from graph.Validate.
func validateFlow(a *schema.Automation) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	index := make(map[string]int, len(a.Nodes))
	for i, n := range a.Nodes {
		index[n.ID] = i
	}
	out := make(map[string][]string, len(a.Nodes))
	for _, e := range a.Edges {
		if _, ok := index[e.Target]; ok {
			out[e.Source] = append(out[e.Source], e.Target)
		}
	}

	if _, ok := index[schema.EntryNodeID]; !ok {
		return result
	}

	isLoop := func(id string) bool {
		cond, ok := a.Nodes[index[id]].Condition()
		return ok && cond.ConditionType == schema.CondLoopUntilFalse
	}

	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(a.Nodes))
	var stack []string
	reported := map[string]bool{}

	var visit func(id string)
	visit = func(id string) {
		color[id] = grey
		stack = append(stack, id)
		for _, next := range out[id] {
			switch color[next] {
			case white:
				visit(next)
			case grey:
				// Back edge: the cycle is the stack segment from next to id.
				looped := false
				for i := len(stack) - 1; i >= 0; i-- {
					if isLoop(stack[i]) {
						looped = true
					}
					if stack[i] == next {
						break
					}
				}
				if !looped && !reported[next] {
					reported[next] = true
					result.AddWarning(fmt.Sprintf("nodes[%d]", index[next]), schema.ErrCodeValidation,
						fmt.Sprintf("cycle back to node %q runs once; use a loopUntilFalse condition to repeat", next))
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}
	visit(schema.EntryNodeID)

	for i, n := range a.Nodes {
		if color[n.ID] == white {
			result.AddWarning(fmt.Sprintf("nodes[%d]", i), schema.ErrCodeValidation,
				fmt.Sprintf("node %q is unreachable from the entry node", n.ID))
		}
	}
	return result
}
