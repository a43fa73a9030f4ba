package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/rendis/flowpilot/internal/logging"
	"github.com/rendis/flowpilot/internal/variables"
	"github.com/rendis/flowpilot/pkg/schema"
)

// AutomationStore loads and saves automation documents. Load returns
// (nil, nil) for an unknown id.
type AutomationStore interface {
	Load(ctx context.Context, id string) (*schema.Automation, error)
	Save(ctx context.Context, a *schema.Automation) (string, error)
}

// RunHistory records finished runs.
type RunHistory interface {
	AppendRun(ctx context.Context, log *schema.ExecutionLog) error
}

// Runner executes stored automations and keeps their status and last run
// up to date. Only one run per automation may be active at a time.
type Runner struct {
	exec    *Executor
	docs    AutomationStore
	history RunHistory
	logger  *slog.Logger

	mu     sync.Mutex
	active map[string]*Control
}

// NewRunner creates a Runner. history may be nil.
func NewRunner(exec *Executor, docs AutomationStore, history RunHistory, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		exec:    exec,
		docs:    docs,
		history: history,
		logger:  logger,
		active:  make(map[string]*Control),
	}
}

// Run loads automation id, executes it with a variable store seeded from
// seed and persists the outcome. The log is returned even when the run
// fails; the error then carries the terminal failure.
func (r *Runner) Run(ctx context.Context, id string, seed map[string]string) (*schema.ExecutionLog, error) {
	doc, err := r.docs.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "automation %q not found", id)
	}

	ctl, err := r.claim(id)
	if err != nil {
		return nil, err
	}
	defer r.release(id)

	ctx = logging.WithAutomationID(ctx, id)
	r.setStatus(ctx, id, schema.AutomationRunning)

	log, runErr := r.exec.RunAutomation(ctx, doc, variables.New(seed), RunOptions{
		AutomationID: id,
		Control:      ctl,
		OnStatus: func(from, to schema.RunStatus) {
			switch to {
			case schema.RunPaused:
				r.setStatus(ctx, id, schema.AutomationPaused)
			case schema.RunRunning:
				if from == schema.RunPaused {
					r.setStatus(ctx, id, schema.AutomationRunning)
				}
			}
		},
	})
	if log == nil {
		// The graph was rejected before anything ran.
		r.setStatus(ctx, id, schema.AutomationIdle)
		return nil, runErr
	}

	lastRun := &schema.LastRun{
		Timestamp: log.Timestamp,
		Success:   log.Success,
		Duration:  log.Duration,
	}
	if err := r.patch(ctx, id, func(a *schema.Automation) {
		a.Status = schema.AutomationIdle
		a.LastRun = lastRun
	}); err != nil {
		r.logger.ErrorContext(ctx, "save last run", logging.CategoryKey, logCategory, "error", err)
	}
	if r.history != nil {
		if err := r.history.AppendRun(ctx, log); err != nil {
			r.logger.ErrorContext(ctx, "append run history", logging.CategoryKey, logCategory, "error", err)
		}
	}
	return log, runErr
}

// Pause pauses the active run of automation id.
func (r *Runner) Pause(id string) error {
	ctl, err := r.control(id)
	if err != nil {
		return err
	}
	if !ctl.Pause() {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "run of %q is not running", id)
	}
	return nil
}

// Resume resumes the paused run of automation id.
func (r *Runner) Resume(id string) error {
	ctl, err := r.control(id)
	if err != nil {
		return err
	}
	if !ctl.Resume() {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "run of %q is not paused", id)
	}
	return nil
}

// Stop stops the active run of automation id.
func (r *Runner) Stop(id string) error {
	ctl, err := r.control(id)
	if err != nil {
		return err
	}
	ctl.Stop()
	return nil
}

// Active returns the ids of automations with a run in progress.
func (r *Runner) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Runner) claim(id string) (*Control, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[id]; busy {
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "automation %q is already running", id)
	}
	ctl := NewControl()
	r.active[id] = ctl
	return ctl, nil
}

func (r *Runner) release(id string) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}

func (r *Runner) control(id string) (*Control, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctl, ok := r.active[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "automation %q has no active run", id)
	}
	return ctl, nil
}

func (r *Runner) setStatus(ctx context.Context, id string, status schema.AutomationStatus) {
	if err := r.patch(ctx, id, func(a *schema.Automation) { a.Status = status }); err != nil {
		r.logger.WarnContext(ctx, "save automation status", logging.CategoryKey, logCategory,
			"status", status, "error", err)
	}
}

// patch applies fn to the stored document and saves it. The document is
// reloaded first so edits made while a run is in progress survive.
func (r *Runner) patch(ctx context.Context, id string, fn func(*schema.Automation)) error {
	doc, err := r.docs.Load(ctx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		// Deleted mid-run.
		return nil
	}
	fn(doc)
	_, err = r.docs.Save(ctx, doc)
	return err
}
