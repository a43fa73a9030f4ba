package engine

import (
	"context"
	"sync"

	"github.com/rendis/flowpilot/pkg/schema"
)

// ControlState is the externally requested state of a run.
type ControlState string

const (
	ControlRunning ControlState = "running"
	ControlPaused  ControlState = "paused"
	ControlStopped ControlState = "stopped"
)

// Control lets a caller pause, resume or stop a run from another goroutine.
// The walker consults it before visiting each node. Pausing lets the step
// in flight finish; stopping also cancels the run context. Waits return at
// once, but a driver call already in flight runs until it completes or hits
// the driver's own timeout, and the next call sees the cancelled context.
type Control struct {
	mu     sync.Mutex
	state  ControlState
	wake   chan struct{}
	cancel context.CancelFunc
}

// NewControl returns a Control in the running state.
func NewControl() *Control {
	return &Control{state: ControlRunning}
}

// State returns the requested state.
func (c *Control) State() ControlState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pause asks the run to hold before its next node. It reports false if the
// run was not running.
func (c *Control) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ControlRunning {
		return false
	}
	c.state = ControlPaused
	c.wake = make(chan struct{})
	return true
}

// Resume releases a paused run. It reports false if the run was not paused.
func (c *Control) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ControlPaused {
		return false
	}
	c.state = ControlRunning
	close(c.wake)
	return true
}

// Stop ends the run before its next node. Stopping is final.
func (c *Control) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ControlPaused {
		close(c.wake)
	}
	c.state = ControlStopped
	if c.cancel != nil {
		c.cancel()
	}
}

// bind attaches the cancel function of the run context.
func (c *Control) bind(cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel = cancel
	if c.state == ControlStopped {
		cancel()
	}
}

// Wait blocks while the run is paused. It returns a CANCELLED error when
// the run is stopped or ctx ends.
func (c *Control) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		c.mu.Lock()
		state, wake := c.state, c.wake
		c.mu.Unlock()

		switch state {
		case ControlStopped:
			return schema.NewError(schema.ErrCodeCancelled, "run stopped")
		case ControlPaused:
			select {
			case <-wake:
			case <-ctx.Done():
			}
		default:
			return nil
		}
	}
}

func cancelled(err error) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeCancelled, "run cancelled: %s", err.Error()).WithCause(err)
}
