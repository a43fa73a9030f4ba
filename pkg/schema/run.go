package schema

import "time"

// RunStatus is the lifecycle state of a single execution.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunStopped   RunStatus = "stopped"
)

// IsTerminal reports whether no further transitions are possible.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunStopped
}

// ValidRunTransitions is the run state machine.
var ValidRunTransitions = map[RunStatus][]RunStatus{
	RunIdle:    {RunRunning},
	RunRunning: {RunPaused, RunCompleted, RunFailed, RunStopped},
	RunPaused:  {RunRunning, RunStopped},
}

// ExecutionLogEntry records one node execution.
type ExecutionLogEntry struct {
	StepID     string `json:"stepId"`
	NodeID     string `json:"nodeId"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
	Output     string `json:"output,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// ExecutionLog is the result of one run.
type ExecutionLog struct {
	ID           string              `json:"id"`
	AutomationID string              `json:"automationId"`
	Timestamp    time.Time           `json:"timestamp"`
	Success      bool                `json:"success"`
	Status       RunStatus           `json:"status"`
	Error        *FlowError          `json:"error,omitempty"`
	Duration     int64               `json:"duration"` // ms
	Steps        []ExecutionLogEntry `json:"steps"`
	Variables    map[string]string   `json:"variables,omitempty"`
}

// VisitedNodes returns node ids in execution order.
func (l *ExecutionLog) VisitedNodes() []string {
	ids := make([]string, 0, len(l.Steps))
	for _, s := range l.Steps {
		ids = append(ids, s.NodeID)
	}
	return ids
}
