package schema

import "time"

// AutomationStatus is the coarse state shown for a stored automation.
type AutomationStatus string

const (
	AutomationIdle    AutomationStatus = "idle"
	AutomationRunning AutomationStatus = "running"
	AutomationPaused  AutomationStatus = "paused"
)

// Automation is the persisted document: a graph of nodes and edges plus metadata.
// Steps and LinkedCredentials are derived from Nodes by Normalize.
type Automation struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	Status            AutomationStatus `json:"status"`
	Nodes             []Node           `json:"nodes"`
	Edges             []Edge           `json:"edges"`
	Steps             []Step           `json:"steps"`
	Schedule          Schedule         `json:"schedule"`
	LinkedCredentials []string         `json:"linkedCredentials"`
	LastRun           *LastRun         `json:"lastRun,omitempty"`
}

// ScheduleType is kept as configuration only; nothing triggers runs from it.
type ScheduleType string

const (
	ScheduleManual   ScheduleType = "manual"
	ScheduleFixed    ScheduleType = "fixed"
	ScheduleInterval ScheduleType = "interval"
)

type Schedule struct {
	Type     ScheduleType `json:"type"`
	Value    string       `json:"value,omitempty"`
	Interval int          `json:"interval,omitempty"`
	Unit     string       `json:"unit,omitempty"` // minutes | hours | days
}

// LastRun summarizes the most recent execution of an automation.
type LastRun struct {
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Duration  int64     `json:"duration,omitempty"` // ms
}

// NewAutomation returns an automation with the default entry node: navigate to "https://".
func NewAutomation(name string) *Automation {
	a := &Automation{
		Name:     name,
		Status:   AutomationIdle,
		Schedule: Schedule{Type: ScheduleManual},
		Nodes: []Node{{
			ID:       EntryNodeID,
			Position: Position{X: 250, Y: 5},
			Data: &StepData{Step: Step{
				ID:          EntryNodeID,
				Description: "Navigate to website",
				Action:      &Navigate{URL: "https://"},
			}},
		}},
		Edges: []Edge{},
	}
	a.Normalize()
	return a
}

// Normalize recomputes Steps and LinkedCredentials from Nodes and fills
// empty collections so the document always serializes with arrays.
func (a *Automation) Normalize() {
	steps := make([]Step, 0, len(a.Nodes))
	creds := []string{}
	seen := map[string]bool{}
	for _, n := range a.Nodes {
		step, ok := n.Step()
		if !ok {
			continue
		}
		steps = append(steps, step)
		if ref := step.CredentialRef(); ref != "" && !seen[ref] {
			seen[ref] = true
			creds = append(creds, ref)
		}
	}
	a.Steps = steps
	a.LinkedCredentials = creds
	if a.Edges == nil {
		a.Edges = []Edge{}
	}
	if a.Nodes == nil {
		a.Nodes = []Node{}
	}
	if a.Status == "" {
		a.Status = AutomationIdle
	}
	if a.Schedule.Type == "" {
		a.Schedule.Type = ScheduleManual
	}
}

// CredentialType classifies stored credentials.
type CredentialType string

const (
	CredentialUsernamePassword CredentialType = "username_password"
	CredentialAPIKey           CredentialType = "api_key"
	CredentialOAuthToken       CredentialType = "oauth_token"
	CredentialCustom           CredentialType = "custom"
)

// Credential is a named set of secret values referenced by type steps.
type Credential struct {
	ID          string            `json:"id"`
	Name        string            `json:"name" validate:"required"`
	Type        CredentialType    `json:"type" validate:"required,oneof=username_password api_key oauth_token custom"`
	LastUpdated time.Time         `json:"lastUpdated"`
	Values      map[string]string `json:"values" validate:"required,min=1"`
}
