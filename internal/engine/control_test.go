package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowpilot/pkg/schema"
)

func TestControl_States(t *testing.T) {
	c := NewControl()
	assert.Equal(t, ControlRunning, c.State())
	assert.False(t, c.Resume())

	assert.True(t, c.Pause())
	assert.False(t, c.Pause())
	assert.Equal(t, ControlPaused, c.State())

	assert.True(t, c.Resume())
	assert.Equal(t, ControlRunning, c.State())

	c.Stop()
	assert.Equal(t, ControlStopped, c.State())
	assert.False(t, c.Pause())
}

func TestControl_WaitRunning(t *testing.T) {
	assert.NoError(t, NewControl().Wait(context.Background()))
}

func TestControl_WaitBlocksUntilResume(t *testing.T) {
	c := NewControl()
	c.Pause()

	done := make(chan error, 1)
	go func() { done <- c.Wait(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Wait returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	c.Resume()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Resume")
	}
}

func TestControl_StopWhilePaused(t *testing.T) {
	c := NewControl()
	c.Pause()

	done := make(chan error, 1)
	go func() { done <- c.Wait(context.Background()) }()
	c.Stop()

	select {
	case err := <-done:
		assert.True(t, schema.HasCode(err, schema.ErrCodeCancelled))
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Stop")
	}
}

func TestControl_ContextCancel(t *testing.T) {
	c := NewControl()
	c.Pause()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Wait(ctx)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeCancelled))
}
