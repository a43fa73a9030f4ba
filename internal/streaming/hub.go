// Package streaming fans run progress events out to live subscribers.
package streaming

import (
	"context"
	"time"
)

// Event types published during a run.
const (
	RunStarted   = "run.started"
	RunStatus    = "run.status"
	NodeStarted  = "node.started"
	NodeFinished = "node.finished"
	RunFinished  = "run.finished"
)

// Event is one progress notification of a run.
type Event struct {
	Type         string    `json:"type"`
	AutomationID string    `json:"automationId"`
	RunID        string    `json:"runId"`
	NodeID       string    `json:"nodeId,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Payload      any       `json:"payload,omitempty"`
}

// Filter selects the events a subscriber receives. Empty fields match all.
type Filter struct {
	AutomationID string
	RunID        string
	Types        []string
}

// Hub is a pub/sub of run events.
type Hub interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, filter Filter) (<-chan Event, func(), error)
}
