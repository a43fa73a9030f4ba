package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/rendis/flowpilot/internal/logging"
	"github.com/rendis/flowpilot/internal/streaming"
)

const heartbeatInterval = 15 * time.Second

// StreamEvents serves the run events of one automation as Server-Sent
// Events. With ?until=finished the stream ends after the next run finishes.
func (h *Handlers) StreamEvents(c fiber.Ctx) error {
	id := c.Params("id")
	ch, cancel, err := h.svc.Subscribe(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}
	untilFinished := c.Query("until") == "finished"
	logger := h.logger

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.RequestCtx().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		if err := writeEvents(w, ch, ticker.C, untilFinished); err != nil {
			logger.Debug("event stream closed", logging.CategoryKey, "api", "automation_id", id, "error", err)
		}
	})
	return nil
}

// writeEvents copies events to w in SSE framing until ch closes, a write
// fails, or (with untilFinished) a run.finished event is sent. Heartbeat
// ticks write a comment so dead clients surface as write errors.
func writeEvents(w *bufio.Writer, ch <-chan streaming.Event, heartbeat <-chan time.Time, untilFinished bool) error {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if untilFinished && ev.Type == streaming.RunFinished {
				return nil
			}
		case <-heartbeat:
			if _, err := w.WriteString(": ping\n\n"); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}
	}
}
