// Package steps executes individual automation steps against a browser
// session, the per-run variable store and outbound HTTP.
package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rendis/flowpilot/internal/browser"
	"github.com/rendis/flowpilot/internal/expressions"
	"github.com/rendis/flowpilot/internal/variables"
	"github.com/rendis/flowpilot/pkg/schema"
)

// CredentialResolver looks up stored credentials for type steps.
type CredentialResolver interface {
	GetCredential(ctx context.Context, id string) (*schema.Credential, error)
}

// Runtime is everything a step may touch during one run.
type Runtime struct {
	Browser     browser.Driver
	Vars        *variables.Store
	HTTP        *http.Client
	Credentials CredentialResolver
	Compare     *expressions.Comparator
	JQ          *expressions.GoJQEngine
	Logger      *slog.Logger
}

// fill sets defaults for collaborators a caller left nil.
func (rt *Runtime) fill() {
	if rt.Vars == nil {
		rt.Vars = variables.New(nil)
	}
	if rt.Compare == nil {
		rt.Compare = expressions.NewComparator()
	}
	if rt.JQ == nil {
		rt.JQ = expressions.NewGoJQEngine()
	}
}

func (rt *Runtime) logger() *slog.Logger {
	if rt.Logger == nil {
		return slog.Default()
	}
	return rt.Logger
}

// Outcome is the result of a successful dispatch. Success is false only for
// extractWithLogic steps whose comparison did not hold.
type Outcome struct {
	Success    bool   `json:"success"`
	Data       string `json:"data,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
}

func ok(data string) *Outcome {
	return &Outcome{Success: true, Data: data}
}

// Handler executes one step type.
type Handler interface {
	Type() schema.StepType
	Description() string
	Execute(ctx context.Context, step schema.Step, rt *Runtime) (*Outcome, error)
}

type handlerFunc struct {
	stepType schema.StepType
	desc     string
	fn       func(ctx context.Context, step schema.Step, rt *Runtime) (*Outcome, error)
}

func (h *handlerFunc) Type() schema.StepType { return h.stepType }
func (h *handlerFunc) Description() string   { return h.desc }

func (h *handlerFunc) Execute(ctx context.Context, step schema.Step, rt *Runtime) (*Outcome, error) {
	return h.fn(ctx, step, rt)
}

// HandlerFunc adapts a function into a Handler.
func HandlerFunc(t schema.StepType, desc string, fn func(ctx context.Context, step schema.Step, rt *Runtime) (*Outcome, error)) Handler {
	return &handlerFunc{stepType: t, desc: desc, fn: fn}
}

// driverErr wraps a browser failure. Cancellation keeps its own code so the
// engine can tell a stop from a broken page.
func driverErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return schema.NewErrorf(schema.ErrCodeCancelled, "%s: %s", op, err.Error()).WithCause(err)
	}
	return schema.NewErrorf(schema.ErrCodeDriverFailure, "%s: %s", op, err.Error()).WithCause(err)
}

func actionOf[T schema.Action](step schema.Step) (T, error) {
	a, ok := step.Action.(T)
	if !ok {
		var zero T
		return zero, schema.NewErrorf(schema.ErrCodeInvalidStep,
			"step %q: expected %T payload, got %T", step.ID, zero, step.Action)
	}
	return a, nil
}

func needBrowser(rt *Runtime, t schema.StepType) error {
	if rt.Browser == nil {
		return schema.NewErrorf(schema.ErrCodeDriverFailure, "%s step needs a browser session", t)
	}
	return nil
}

func describe(step schema.Step) string {
	if step.Description != "" {
		return fmt.Sprintf("%s (%s)", step.Type(), step.Description)
	}
	return string(step.Type())
}
