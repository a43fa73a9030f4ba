package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowpilot/internal/browser/browsertest"
	"github.com/rendis/flowpilot/internal/graph"
	"github.com/rendis/flowpilot/internal/streaming"
	"github.com/rendis/flowpilot/pkg/schema"
)

func drain(ch <-chan streaming.Event) []streaming.Event {
	var out []streaming.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(events []streaming.Event) []string {
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

func TestRun_PublishesEvents(t *testing.T) {
	hub := streaming.NewMemoryHub()
	ch, cancel, err := hub.Subscribe(context.Background(), streaming.Filter{AutomationID: "auto-1"})
	require.NoError(t, err)
	defer cancel()

	g := build(t, graph.NewBuilder(&schema.Navigate{URL: "https://x"}).
		Then(&schema.Click{Selector: "#go"}))

	log, err := NewExecutor(WithEvents(hub)).Run(context.Background(), g, nil,
		RunOptions{AutomationID: "auto-1", Browser: browsertest.New()})
	require.NoError(t, err)

	events := drain(ch)
	assert.Equal(t, []string{
		streaming.RunStatus, streaming.RunStarted,
		streaming.NodeStarted, streaming.NodeFinished,
		streaming.NodeStarted, streaming.NodeFinished,
		streaming.RunStatus, streaming.RunFinished,
	}, eventTypes(events))

	for _, ev := range events {
		assert.Equal(t, log.ID, ev.RunID)
		assert.Equal(t, "auto-1", ev.AutomationID)
	}
	assert.Equal(t, "1", events[2].NodeID)
	entry, ok := events[3].Payload.(schema.ExecutionLogEntry)
	require.True(t, ok)
	assert.True(t, entry.Success)

	final, ok := events[len(events)-1].Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, schema.RunCompleted, final["status"])
}

func TestRun_PublishesFailedNode(t *testing.T) {
	hub := streaming.NewMemoryHub()
	ch, cancel, err := hub.Subscribe(context.Background(), streaming.Filter{Types: []string{streaming.NodeFinished, streaming.RunFinished}})
	require.NoError(t, err)
	defer cancel()

	g := build(t, graph.NewBuilder(&schema.Navigate{URL: "https://x"}).
		Then(&schema.Click{Selector: "#go"}))
	fake := browsertest.New()
	fake.Errors["click"] = errors.New("detached")

	_, err = NewExecutor(WithEvents(hub)).Run(context.Background(), g, nil, RunOptions{Browser: fake})
	require.Error(t, err)

	events := drain(ch)
	require.Len(t, events, 3)
	failed, ok := events[1].Payload.(schema.ExecutionLogEntry)
	require.True(t, ok)
	assert.False(t, failed.Success)
	assert.Equal(t, "2", events[1].NodeID)
	assert.Equal(t, schema.RunFailed, events[2].Payload.(map[string]any)["status"])
}
