package steps

import (
	"context"
	"time"

	"github.com/rendis/flowpilot/pkg/schema"
)

// browserSteps need a live page; the rest run without one.
var browserSteps = map[schema.StepType]bool{
	schema.StepNavigate:         true,
	schema.StepClick:            true,
	schema.StepTypeText:         true,
	schema.StepScreenshot:       true,
	schema.StepExtract:          true,
	schema.StepExtractWithLogic: true,
	schema.StepScroll:           true,
	schema.StepSelectOption:     true,
	schema.StepFileUpload:       true,
	schema.StepHover:            true,
}

// Library validates and dispatches steps through a Registry.
type Library struct {
	registry *Registry
}

// NewLibrary returns a Library with every built-in step type registered.
func NewLibrary() *Library {
	r := NewRegistry()
	for _, h := range Builtins() {
		// Builtins has one handler per type, Register cannot conflict.
		_ = r.Register(h)
	}
	return &Library{registry: r}
}

// NewLibraryWith wraps an existing registry.
func NewLibraryWith(r *Registry) *Library {
	return &Library{registry: r}
}

// Registry exposes the underlying registry.
func (l *Library) Registry() *Registry { return l.registry }

// Builtins returns the handlers for every built-in step type.
func Builtins() []Handler {
	return []Handler{
		HandlerFunc(schema.StepNavigate, "Load a URL in the page.", navigateStep),
		HandlerFunc(schema.StepClick, "Click the element matching a selector.", clickStep),
		HandlerFunc(schema.StepTypeText, "Fill an input with text or a stored credential.", typeStep),
		HandlerFunc(schema.StepWait, "Pause for a number of seconds.", waitStep),
		HandlerFunc(schema.StepScreenshot, "Capture the page as a PNG.", screenshotStep),
		HandlerFunc(schema.StepExtract, "Read element text, optionally into a variable.", extractStep),
		HandlerFunc(schema.StepExtractWithLogic, "Read element text and compare it to an expected value.", extractWithLogicStep),
		HandlerFunc(schema.StepAPICall, "Send an HTTP request, optionally storing the response.", apiCallStep),
		HandlerFunc(schema.StepScroll, "Scroll to an element or by a pixel amount.", scrollStep),
		HandlerFunc(schema.StepSelectOption, "Pick an entry of a select element.", selectOptionStep),
		HandlerFunc(schema.StepFileUpload, "Attach a local file to a file input.", fileUploadStep),
		HandlerFunc(schema.StepHover, "Move the pointer over an element.", hoverStep),
		HandlerFunc(schema.StepSetVariable, "Store a value in a variable.", setVariableStep),
		HandlerFunc(schema.StepModifyVariable, "Update a variable in place.", modifyVariableStep),
	}
}

// Run checks step, resolves its handler and executes it.
func (l *Library) Run(ctx context.Context, step schema.Step, rt *Runtime) (*Outcome, error) {
	if err := Check(step); err != nil {
		return nil, err
	}
	h, err := l.registry.Get(step.Type())
	if err != nil {
		return nil, err
	}
	if browserSteps[step.Type()] {
		if err := needBrowser(rt, step.Type()); err != nil {
			return nil, err
		}
	}

	rt.fill()

	start := time.Now()
	out, err := h.Execute(ctx, step, rt)
	rt.logger().DebugContext(ctx, "step dispatched",
		"step", describe(step),
		"duration_ms", time.Since(start).Milliseconds(),
		"ok", err == nil,
	)
	return out, err
}
