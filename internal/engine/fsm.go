package engine

import (
	"sync"

	"github.com/rendis/flowpilot/pkg/schema"
)

// TransitionHook is called before or after a state transition.
type TransitionHook func(from, to schema.RunStatus) error

type runHookKey struct {
	from, to schema.RunStatus
}

// RunFSM tracks the lifecycle of one run and rejects transitions that
// schema.ValidRunTransitions does not allow.
type RunFSM struct {
	mu      sync.Mutex
	runID   string
	state   schema.RunStatus
	before  map[runHookKey][]TransitionHook
	after   map[runHookKey][]TransitionHook
	observe []func(from, to schema.RunStatus)
}

// NewRunFSM creates a RunFSM in the idle state.
func NewRunFSM(runID string) *RunFSM {
	return &RunFSM{
		runID:  runID,
		state:  schema.RunIdle,
		before: make(map[runHookKey][]TransitionHook),
		after:  make(map[runHookKey][]TransitionHook),
	}
}

// State returns the current status.
func (f *RunFSM) State() schema.RunStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// OnBefore registers a hook called before a transition. A hook error
// vetoes the transition.
func (f *RunFSM) OnBefore(from, to schema.RunStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := runHookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition.
func (f *RunFSM) OnAfter(from, to schema.RunStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := runHookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Observe registers fn for every successful transition.
func (f *RunFSM) Observe(fn func(from, to schema.RunStatus)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observe = append(f.observe, fn)
}

// Transition moves the run to the given status.
func (f *RunFSM) Transition(to schema.RunStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	from := f.state
	if !IsValidRunTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid run transition: %s -> %s", from, to).
			WithDetails(map[string]any{"run_id": f.runID, "from": string(from), "to": string(to)})
	}

	key := runHookKey{from, to}
	for _, hook := range f.before[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	f.state = to

	for _, hook := range f.after[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}
	for _, fn := range f.observe {
		fn(from, to)
	}
	return nil
}

// IsValidRunTransition reports whether from -> to is allowed.
func IsValidRunTransition(from, to schema.RunStatus) bool {
	allowed, ok := schema.ValidRunTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}
