package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/flowpilot/internal/graph"
	"github.com/rendis/flowpilot/pkg/schema"
)

const (
	startID = "__start__"
	endID   = "__end__"
)

// Build constructs a DiagramModel from an automation. When log is non-nil,
// each node gets the outcome of its last visit; nodes the run never reached
// are marked skipped.
func Build(a *schema.Automation, log *schema.ExecutionLog) (*DiagramModel, error) {
	g, err := graph.FromAutomation(a)
	if err != nil {
		return nil, fmt.Errorf("diagram: %w", err)
	}

	nodes := make([]*Node, 0, g.Len()+2)
	nodes = append(nodes, &Node{ID: startID, Label: "Start", Kind: NodeKindStart})
	for _, n := range g.Nodes() {
		node := &Node{ID: n.ID, Label: nodeLabel(n), Kind: nodeKind(n)}
		if log != nil {
			overlayStatus(node, log)
		}
		nodes = append(nodes, node)
	}
	nodes = append(nodes, &Node{ID: endID, Label: "End", Kind: NodeKindEnd})

	return &DiagramModel{
		Title:  titleOf(a),
		Nodes:  nodes,
		Edges:  buildEdges(g),
		Levels: buildLevels(g),
	}, nil
}

func nodeKind(n schema.Node) NodeKind {
	cond, ok := n.Condition()
	switch {
	case !ok:
		return NodeKindStep
	case cond.ConditionType == schema.CondLoopUntilFalse:
		return NodeKindLoop
	default:
		return NodeKindCondition
	}
}

// nodeLabel is "<id>: <type>" with the step target or condition on a second line.
func nodeLabel(n schema.Node) string {
	if cond, ok := n.Condition(); ok {
		detail := cond.Selector
		if cond.ConditionType == schema.CondValueMatches {
			op := cond.ComparisonOp
			if op == "" {
				op = schema.OpEquals
			}
			detail = fmt.Sprintf("%s %s %q", cond.Selector, op, cond.ExpectedValue)
		}
		return fmt.Sprintf("%s: %s\n%s", n.ID, cond.ConditionType, detail)
	}

	step, _ := n.Step()
	label := fmt.Sprintf("%s: %s", n.ID, step.Type())
	if step.Description != "" {
		label += " - " + step.Description
	}
	if t := stepTarget(step); t != "" {
		label += "\n" + t
	}
	return label
}

func stepTarget(step schema.Step) string {
	switch a := step.Action.(type) {
	case *schema.Navigate:
		return a.URL
	case *schema.APICall:
		method := a.Method
		if method == "" {
			method = "GET"
		}
		return method + " " + a.URL
	case *schema.Wait:
		return a.Seconds + "s"
	case *schema.SetVariable:
		return a.VariableName
	case *schema.ModifyVariable:
		return a.VariableName
	case *schema.Click:
		return a.Selector
	case *schema.Hover:
		return a.Selector
	case *schema.TypeText:
		return a.Selector
	case *schema.Extract:
		return a.Selector
	case *schema.ExtractWithLogic:
		return a.Selector
	case *schema.SelectOption:
		return a.Selector
	case *schema.FileUpload:
		return a.Selector
	}
	return ""
}

func overlayStatus(node *Node, log *schema.ExecutionLog) {
	ov := &StatusOverlay{Status: StatusSkipped}
	for _, e := range log.Steps {
		if e.NodeID != node.ID {
			continue
		}
		ov.Visits++
		ov.DurationMs += e.DurationMs
		ov.Error = e.Error
		ov.Status = StatusCompleted
		if !e.Success {
			ov.Status = StatusFailed
		}
	}
	node.Status = ov
}

func buildEdges(g *graph.Graph) []Edge {
	edges := []Edge{{From: startID, To: schema.EntryNodeID}}
	for _, e := range g.Edges() {
		edges = append(edges, Edge{From: e.Source, To: e.Target, Label: string(e.SourceHandle)})
	}
	for _, n := range g.Nodes() {
		if len(g.Outgoing(n.ID)) == 0 {
			edges = append(edges, Edge{From: n.ID, To: endID})
		}
	}
	return edges
}

// buildLevels assigns each node its breadth-first depth from the entry node.
// Unreachable nodes share a level after the deepest reachable one.
func buildLevels(g *graph.Graph) [][]string {
	depth := map[string]int{schema.EntryNodeID: 0}
	queue := []string{schema.EntryNodeID}
	levels := [][]string{{schema.EntryNodeID}}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.Outgoing(id) {
			if _, seen := depth[e.Target]; seen {
				continue
			}
			d := depth[id] + 1
			depth[e.Target] = d
			if d == len(levels) {
				levels = append(levels, nil)
			}
			levels[d] = append(levels[d], e.Target)
			queue = append(queue, e.Target)
		}
	}

	var orphans []string
	for _, n := range g.Nodes() {
		if _, ok := depth[n.ID]; !ok {
			orphans = append(orphans, n.ID)
		}
	}
	if len(orphans) > 0 {
		levels = append(levels, orphans)
	}

	out := make([][]string, 0, len(levels)+2)
	out = append(out, []string{startID})
	out = append(out, levels...)
	return append(out, []string{endID})
}

func titleOf(a *schema.Automation) string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	return "Automation"
}
