package graph

import (
	"github.com/rendis/flowpilot/pkg/schema"
)

type tail struct {
	id     string
	handle schema.Handle
}

// Builder assembles automation graphs in code. The first step becomes the
// entry node "1"; every later node is linked from the current tails.
//
//	g, err := graph.NewBuilder(navigate).
//		If(exists("#login"),
//			func(b *graph.Builder) { b.Then(click("#login")) },
//			nil).
//		Then(screenshot).
//		Build()
type Builder struct {
	g     *Graph
	tails []tail
	err   error
}

// NewBuilder starts a graph whose entry node runs first.
func NewBuilder(first schema.Action) *Builder {
	g := &Graph{}
	g.reindex()
	b := &Builder{g: g}
	b.add(&schema.StepData{Step: schema.Step{Action: first}})
	return b
}

// Then appends a step after the current tails.
func (b *Builder) Then(action schema.Action) *Builder {
	return b.ThenStep(schema.Step{Action: action})
}

// ThenStep appends a fully described step.
func (b *Builder) ThenStep(step schema.Step) *Builder {
	b.add(&schema.StepData{Step: step})
	return b
}

// If appends a conditional. then and otherwise populate the two branches and
// may be nil; both branches rejoin at whatever is appended next.
func (b *Builder) If(cond schema.ConditionData, then, otherwise func(*Builder)) *Builder {
	id := b.add(&cond)
	if b.err != nil {
		return b
	}
	var joined []tail
	for _, br := range []struct {
		handle schema.Handle
		fn     func(*Builder)
	}{{schema.HandleIf, then}, {schema.HandleElse, otherwise}} {
		b.tails = []tail{{id: id, handle: br.handle}}
		if br.fn != nil {
			br.fn(b)
		}
		joined = append(joined, b.tails...)
	}
	b.tails = joined
	return b
}

// LoopTo links the current tails back to an existing node, closing a cycle.
func (b *Builder) LoopTo(id string) *Builder {
	b.link(id)
	b.tails = nil
	return b
}

// Last returns the id of the most recently added node.
func (b *Builder) Last() string {
	if len(b.g.nodes) == 0 {
		return ""
	}
	return b.g.nodes[len(b.g.nodes)-1].ID
}

// Build validates and returns the graph.
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	return New(b.g.nodes, b.g.edges)
}

// Automation wraps the built graph in a new document.
func (b *Builder) Automation(name string) (*schema.Automation, error) {
	g, err := b.Build()
	if err != nil {
		return nil, err
	}
	a := schema.NewAutomation(name)
	g.Apply(a)
	return a, nil
}

func (b *Builder) add(data schema.NodeData) string {
	if b.err != nil {
		return ""
	}
	id := b.g.NextID()
	if sd, ok := data.(*schema.StepData); ok && sd.Step.ID == "" {
		sd.Step.ID = id
	}
	n := schema.Node{ID: id, Data: data, Position: schema.Position{X: 250, Y: float64(len(b.g.nodes)) * 100}}
	if err := b.g.AddNode(n); err != nil {
		b.err = err
		return ""
	}
	b.link(id)
	b.tails = []tail{{id: id}}
	return id
}

func (b *Builder) link(target string) {
	if b.err != nil {
		return
	}
	for _, t := range b.tails {
		if _, err := b.g.AddEdge(EdgeRequest{Source: t.id, Target: target, Handle: t.handle}); err != nil {
			b.err = err
			return
		}
	}
}
