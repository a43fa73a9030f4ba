package api

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowpilot/internal/streaming"
)

func TestWriteEvents_SSEFraming(t *testing.T) {
	ch := make(chan streaming.Event, 4)
	ch <- streaming.Event{Type: streaming.NodeStarted, AutomationID: "a", RunID: "r", NodeID: "1"}
	ch <- streaming.Event{Type: streaming.RunFinished, AutomationID: "a", RunID: "r"}
	ch <- streaming.Event{Type: streaming.RunStarted, AutomationID: "a", RunID: "r2"}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, writeEvents(w, ch, nil, true))

	out := buf.String()
	assert.Contains(t, out, "event: node.started\ndata: {")
	assert.Contains(t, out, `"nodeId":"1"`)
	assert.Contains(t, out, "event: run.finished\n")
	assert.NotContains(t, out, "run.started")
	assert.Equal(t, 2, strings.Count(out, "\n\n"))
}

func TestWriteEvents_EndsWhenChannelCloses(t *testing.T) {
	ch := make(chan streaming.Event, 1)
	ch <- streaming.Event{Type: streaming.RunFinished}
	close(ch)

	var buf bytes.Buffer
	require.NoError(t, writeEvents(bufio.NewWriter(&buf), ch, nil, false))
	assert.Contains(t, buf.String(), "event: run.finished")
}

func TestWriteEvents_Heartbeat(t *testing.T) {
	ch := make(chan streaming.Event)
	beat := make(chan time.Time, 1)
	beat <- time.Now()

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	done := make(chan error, 1)
	go func() { done <- writeEvents(w, ch, beat, false) }()

	require.Eventually(t, func() bool { return len(beat) == 0 }, time.Second, 5*time.Millisecond)
	close(ch)
	require.NoError(t, <-done)
	assert.Contains(t, buf.String(), ": ping\n\n")
}
