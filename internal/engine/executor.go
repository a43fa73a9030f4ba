// Package engine walks automation graphs, dispatching step nodes to the step
// library and conditional nodes to the condition evaluator.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rendis/flowpilot/internal/browser"
	"github.com/rendis/flowpilot/internal/conditions"
	"github.com/rendis/flowpilot/internal/graph"
	"github.com/rendis/flowpilot/internal/logging"
	"github.com/rendis/flowpilot/internal/steps"
	"github.com/rendis/flowpilot/internal/streaming"
	"github.com/rendis/flowpilot/internal/telemetry"
	"github.com/rendis/flowpilot/internal/variables"
	"github.com/rendis/flowpilot/pkg/schema"
)

const (
	// DefaultMaxIterations caps loopUntilFalse passes when a node sets none.
	DefaultMaxIterations = 25

	// LoopIndexVar is the variable holding the current loop pass index.
	LoopIndexVar = "loopIndex"

	logCategory = "engine"
)

// Executor runs automation graphs. It holds no per-run state and is safe
// for concurrent use; every Run gets its own walker, variables and browser.
type Executor struct {
	library       *steps.Library
	evaluator     *conditions.Evaluator
	launcher      browser.Launcher
	credentials   steps.CredentialResolver
	httpClient    *http.Client
	tracer        trace.Tracer
	logger        *slog.Logger
	events        streaming.Hub
	maxIterations int
	now           func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithLibrary replaces the built-in step library.
func WithLibrary(l *steps.Library) Option { return func(e *Executor) { e.library = l } }

// WithEvaluator replaces the condition evaluator.
func WithEvaluator(ev *conditions.Evaluator) Option { return func(e *Executor) { e.evaluator = ev } }

// WithLauncher opens a browser session per run when RunOptions carries none.
func WithLauncher(l browser.Launcher) Option { return func(e *Executor) { e.launcher = l } }

// WithCredentials sets the resolver used by type steps.
func WithCredentials(c steps.CredentialResolver) Option {
	return func(e *Executor) { e.credentials = c }
}

// WithHTTPClient sets the client used by apiCall steps.
func WithHTTPClient(c *http.Client) Option { return func(e *Executor) { e.httpClient = c } }

// WithTracer sets the tracer for run and node spans.
func WithTracer(t trace.Tracer) Option { return func(e *Executor) { e.tracer = t } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Executor) { e.logger = l } }

// WithEvents publishes run progress to hub.
func WithEvents(hub streaming.Hub) Option { return func(e *Executor) { e.events = hub } }

// WithMaxIterations sets the default loopUntilFalse cap.
func WithMaxIterations(n int) Option { return func(e *Executor) { e.maxIterations = n } }

// NewExecutor creates an Executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		maxIterations: DefaultMaxIterations,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.library == nil {
		e.library = steps.NewLibrary()
	}
	if e.evaluator == nil {
		e.evaluator = conditions.New(nil)
	}
	if e.httpClient == nil {
		e.httpClient = steps.NewHTTPClient(0)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("github.com/rendis/flowpilot/internal/engine")
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.maxIterations <= 0 {
		e.maxIterations = DefaultMaxIterations
	}
	return e
}

// RunOptions carries per-run collaborators.
type RunOptions struct {
	AutomationID string
	// RunID is generated when empty.
	RunID string
	// Browser is used as is and not closed. When nil, the executor's
	// launcher (if any) opens a session that is closed when the run ends.
	Browser browser.Driver
	Control *Control
	// OnStatus observes run state transitions.
	OnStatus func(from, to schema.RunStatus)
	// OnNode is called before each node executes.
	OnNode func(nodeID string)
}

// RunAutomation builds the graph of a stored automation and runs it.
func (e *Executor) RunAutomation(ctx context.Context, a *schema.Automation, vars *variables.Store, opts RunOptions) (*schema.ExecutionLog, error) {
	g, err := graph.FromAutomation(a)
	if err != nil {
		return nil, err
	}
	if opts.AutomationID == "" {
		opts.AutomationID = a.ID
	}
	return e.Run(ctx, g, vars, opts)
}

// Run walks g from the entry node. The returned log is never nil once the
// graph is accepted; the error is the terminal failure of a failed or
// stopped run.
func (e *Executor) Run(ctx context.Context, g *graph.Graph, vars *variables.Store, opts RunOptions) (*schema.ExecutionLog, error) {
	if g == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "graph is nil")
	}
	if _, ok := g.Node(schema.EntryNodeID); !ok {
		return nil, schema.NewErrorf(schema.ErrCodeMissingEntry, "graph has no entry node %q", schema.EntryNodeID)
	}
	if vars == nil {
		vars = variables.New(nil)
	}
	ctl := opts.Control
	if ctl == nil {
		ctl = NewControl()
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctl.bind(cancel)

	ctx = logging.WithIDs(ctx, runID, opts.AutomationID)
	ctx, span := telemetry.StartSpan(ctx, e.tracer, "flowpilot.run",
		attribute.String(telemetry.RunIDKey, runID),
		attribute.String(telemetry.AutomationIDKey, opts.AutomationID),
		attribute.Int("flowpilot.graph.nodes", g.Len()),
	)
	defer span.End()

	start := e.now()
	log := &schema.ExecutionLog{
		ID:           runID,
		AutomationID: opts.AutomationID,
		Timestamp:    start,
		Steps:        []schema.ExecutionLogEntry{},
	}

	em := emitter{hub: e.events, automationID: opts.AutomationID, runID: runID, now: e.now, logger: e.logger}

	fsm := NewRunFSM(runID)
	if opts.OnStatus != nil {
		fsm.Observe(opts.OnStatus)
	}
	fsm.Observe(func(from, to schema.RunStatus) {
		em.emit(ctx, streaming.RunStatus, "", map[string]string{"from": string(from), "to": string(to)})
	})
	if err := fsm.Transition(schema.RunRunning); err != nil {
		return nil, err
	}
	em.emit(ctx, streaming.RunStarted, "", map[string]int{"nodes": g.Len()})
	e.logger.InfoContext(ctx, "run started", logging.CategoryKey, logCategory, "nodes", g.Len())

	w := &walker{
		exec:    e,
		g:       g,
		ctl:     ctl,
		fsm:     fsm,
		log:     log,
		em:      em,
		onNode:  opts.OnNode,
		visited: make(map[string]int),
		loops:   make(map[string]*loopState),
		rt: &steps.Runtime{
			Browser:     opts.Browser,
			Vars:        vars,
			HTTP:        e.httpClient,
			Credentials: e.credentials,
			Logger:      e.logger,
		},
	}

	var runErr error
	if w.rt.Browser == nil && e.launcher != nil {
		driver, err := e.launcher(ctx)
		if err != nil {
			runErr = schema.NewErrorf(schema.ErrCodeDriverFailure, "launch browser: %s", err.Error()).WithCause(err)
		} else {
			w.rt.Browser = driver
			defer func() {
				if cerr := driver.Close(); cerr != nil {
					e.logger.WarnContext(ctx, "close browser", logging.CategoryKey, logCategory, "error", cerr)
				}
			}()
		}
	}
	if runErr == nil {
		runErr = w.walk(ctx)
	}

	log, runErr = e.finish(ctx, span, log, fsm, vars, start, runErr)
	em.emit(ctx, streaming.RunFinished, "", map[string]any{
		"status":   log.Status,
		"success":  log.Success,
		"duration": log.Duration,
	})
	return log, runErr
}

func (e *Executor) finish(ctx context.Context, span trace.Span, log *schema.ExecutionLog, fsm *RunFSM,
	vars *variables.Store, start time.Time, runErr error) (*schema.ExecutionLog, error) {
	log.Duration = e.now().Sub(start).Milliseconds()
	log.Variables = vars.Snapshot()

	status := schema.RunCompleted
	if runErr != nil {
		log.Error = asFlowError(runErr)
		status = schema.RunFailed
		if log.Error.Code == schema.ErrCodeCancelled {
			status = schema.RunStopped
		}
	}
	if fsm.State() == schema.RunPaused && status != schema.RunStopped {
		_ = fsm.Transition(schema.RunRunning)
	}
	if err := fsm.Transition(status); err != nil {
		e.logger.ErrorContext(ctx, "finish run", logging.CategoryKey, logCategory, "error", err)
	}
	log.Status = status

	log.Success = runErr == nil
	for _, entry := range log.Steps {
		if !entry.Success {
			log.Success = false
			break
		}
	}

	span.SetAttributes(attribute.String(telemetry.RunStatusKey, string(status)))
	attrs := []any{
		logging.CategoryKey, logCategory,
		"status", status,
		"success", log.Success,
		"nodes_executed", len(log.Steps),
		"duration_ms", log.Duration,
	}
	switch status {
	case schema.RunCompleted:
		e.logger.InfoContext(ctx, "run finished", attrs...)
	case schema.RunStopped:
		e.logger.WarnContext(ctx, "run stopped", attrs...)
	default:
		telemetry.SetError(span, runErr, attribute.String("flowpilot.error.code", log.Error.Code))
		e.logger.ErrorContext(ctx, "run failed", append(attrs, "error", runErr)...)
	}

	if log.Error != nil {
		return log, log.Error
	}
	return log, nil
}

type loopState struct {
	pass int
}

// walker holds the state of one run. Nodes are taken from an explicit LIFO
// work-list starting at the entry node; each id is executed at most once,
// except loopUntilFalse nodes which start a new pass when reached again.
type walker struct {
	exec   *Executor
	g      *graph.Graph
	rt     *steps.Runtime
	ctl    *Control
	fsm    *RunFSM
	log    *schema.ExecutionLog
	em     emitter
	onNode func(string)

	// visited maps node id to the sequence number of its latest visit.
	visited map[string]int
	seq     int
	loops   map[string]*loopState
}

func (w *walker) walk(ctx context.Context) error {
	stack := []string{schema.EntryNodeID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := w.checkpoint(ctx); err != nil {
			return err
		}

		node, ok := w.g.Node(id)
		if !ok {
			continue
		}
		if _, seen := w.visited[id]; seen && !w.reenter(node) {
			continue
		}
		w.seq++
		w.visited[id] = w.seq

		next, err := w.visit(ctx, node)
		if err != nil {
			return err
		}
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}
	return nil
}

// checkpoint blocks while the run is paused and fails once it is stopped or
// ctx is done.
func (w *walker) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}
	switch w.ctl.State() {
	case ControlStopped:
		return schema.NewError(schema.ErrCodeCancelled, "run stopped")
	case ControlPaused:
		if err := w.fsm.Transition(schema.RunPaused); err != nil {
			return err
		}
		w.exec.logger.InfoContext(ctx, "run paused", logging.CategoryKey, logCategory)
		if err := w.ctl.Wait(ctx); err != nil {
			return err
		}
		w.exec.logger.InfoContext(ctx, "run resumed", logging.CategoryKey, logCategory)
		return w.fsm.Transition(schema.RunRunning)
	}
	return nil
}

// reenter decides whether an already visited node runs again. Only
// loopUntilFalse nodes do: every node first visited after the loop node's
// previous pass is forgotten so the loop body can execute once more.
func (w *walker) reenter(node schema.Node) bool {
	cond, ok := node.Condition()
	if !ok || cond.ConditionType != schema.CondLoopUntilFalse {
		return false
	}
	mark := w.visited[node.ID]
	for id, seq := range w.visited {
		if seq > mark {
			delete(w.visited, id)
			delete(w.loops, id)
		}
	}
	if st, ok := w.loops[node.ID]; ok {
		st.pass++
	}
	return true
}

func (w *walker) visit(ctx context.Context, node schema.Node) ([]string, error) {
	ctx = logging.WithNodeID(ctx, node.ID)
	if w.onNode != nil {
		w.onNode(node.ID)
	}
	w.em.emit(ctx, streaming.NodeStarted, node.ID, nil)

	ctx, span := telemetry.StartSpan(ctx, w.exec.tracer, "flowpilot.node",
		attribute.String(telemetry.NodeIDKey, node.ID),
		attribute.String(telemetry.NodeTypeKey, string(node.Type())),
	)
	defer span.End()

	start := w.exec.now()
	entry := schema.ExecutionLogEntry{NodeID: node.ID, StepID: node.ID}

	var (
		next []string
		err  error
	)
	if step, ok := node.Step(); ok {
		span.SetAttributes(attribute.String(telemetry.StepTypeKey, string(step.Type())))
		next, err = w.runStep(ctx, node.ID, step, &entry)
	} else if cond, ok := node.Condition(); ok {
		span.SetAttributes(attribute.String(telemetry.ConditionKey, string(cond.ConditionType)))
		next, err = w.runCondition(ctx, node.ID, cond, &entry)
	} else {
		err = schema.NewErrorf(schema.ErrCodeValidation, "node %q has no data", node.ID)
	}

	entry.DurationMs = w.exec.now().Sub(start).Milliseconds()
	if err != nil {
		fe := asFlowError(err).WithNode(node.ID)
		entry.Success = false
		entry.Error = fe.Message
		w.log.Steps = append(w.log.Steps, entry)
		w.em.emit(ctx, streaming.NodeFinished, node.ID, entry)
		telemetry.SetError(span, fe, attribute.String("flowpilot.error.code", fe.Code))
		return nil, fe
	}
	w.log.Steps = append(w.log.Steps, entry)
	w.em.emit(ctx, streaming.NodeFinished, node.ID, entry)

	w.exec.logger.DebugContext(ctx, "node executed",
		logging.CategoryKey, logCategory,
		"type", node.Type(),
		"success", entry.Success,
		"duration_ms", entry.DurationMs,
		"next", next,
	)
	return next, nil
}

func (w *walker) runStep(ctx context.Context, id string, step schema.Step, entry *schema.ExecutionLogEntry) ([]string, error) {
	if step.ID != "" {
		entry.StepID = step.ID
	}
	out, err := w.exec.library.Run(ctx, step, w.rt)
	if err != nil {
		return nil, err
	}
	entry.Success = out.Success
	entry.Output = out.Data
	entry.Screenshot = out.Screenshot
	return w.g.Next(id), nil
}

func (w *walker) runCondition(ctx context.Context, id string, cond *schema.ConditionData, entry *schema.ExecutionLogEntry) ([]string, error) {
	if cond.ConditionType == schema.CondLoopUntilFalse {
		st, ok := w.loops[id]
		if !ok {
			st = &loopState{}
			w.loops[id] = st
		}
		limit := cond.MaxIterations
		if limit <= 0 {
			limit = w.exec.maxIterations
		}
		if st.pass >= limit {
			w.exec.logger.WarnContext(ctx, "loop iteration cap reached, leaving loop",
				logging.CategoryKey, logCategory, "max_iterations", limit)
			entry.Success = true
			entry.Output = "false"
			return w.g.Branch(id, false), nil
		}
		w.rt.Vars.Set(LoopIndexVar, strconv.Itoa(loopIndex(cond, st.pass)))
	}

	result, err := w.exec.evaluator.Evaluate(ctx, cond, w.rt.Browser, w.rt.Vars)
	if err != nil {
		return nil, err
	}
	entry.Success = true
	entry.Output = strconv.FormatBool(result)
	return w.g.Branch(id, result), nil
}

func loopIndex(cond *schema.ConditionData, pass int) int {
	start, inc := 1, 1
	if cond.StartIndex != nil {
		start = *cond.StartIndex
	}
	if cond.Increment != nil {
		inc = *cond.Increment
	}
	return start + pass*inc
}

func asFlowError(err error) *schema.FlowError {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		return fe
	}
	return schema.NewError(schema.ErrCodeDriverFailure, err.Error()).WithCause(err)
}

// emitter publishes the events of one run. A nil hub makes it a no-op.
type emitter struct {
	hub          streaming.Hub
	automationID string
	runID        string
	now          func() time.Time
	logger       *slog.Logger
}

func (em emitter) emit(ctx context.Context, typ, nodeID string, payload any) {
	if em.hub == nil {
		return
	}
	err := em.hub.Publish(context.WithoutCancel(ctx), streaming.Event{
		Type:         typ,
		AutomationID: em.automationID,
		RunID:        em.runID,
		NodeID:       nodeID,
		Timestamp:    em.now(),
		Payload:      payload,
	})
	if err != nil {
		em.logger.WarnContext(ctx, "publish run event", logging.CategoryKey, logCategory, "type", typ, "error", err)
	}
}
