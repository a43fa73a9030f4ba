package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultDebugCapacity bounds the in-memory debug buffer.
const DefaultDebugCapacity = 10000

// CategoryKey is the record attribute a DebugSink files entries under.
const CategoryKey = "category"

// DebugEntry is one buffered log record.
type DebugEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Category  string         `json:"category"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

type debugBuffer struct {
	mu      sync.Mutex
	entries []DebugEntry
	max     int
}

// DebugSink is an slog.Handler that keeps the most recent records in memory
// so they can be inspected, filtered and exported while the process runs.
type DebugSink struct {
	buf    *debugBuffer
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewDebugSink returns a sink holding at most capacity records at or above
// level. capacity <= 0 uses DefaultDebugCapacity; a nil level means debug.
func NewDebugSink(capacity int, level slog.Leveler) *DebugSink {
	if capacity <= 0 {
		capacity = DefaultDebugCapacity
	}
	if level == nil {
		level = slog.LevelDebug
	}
	return &DebugSink{buf: &debugBuffer{max: capacity}, level: level}
}

func (s *DebugSink) Enabled(_ context.Context, level slog.Level) bool {
	return level >= s.level.Level()
}

func (s *DebugSink) Handle(_ context.Context, r slog.Record) error {
	entry := DebugEntry{
		Timestamp: r.Time,
		Level:     r.Level.String(),
		Category:  "general",
		Message:   r.Message,
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	data := map[string]any{}
	add := func(a slog.Attr) {
		if a.Key == CategoryKey {
			entry.Category = a.Value.String()
			return
		}
		key := a.Key
		if len(s.groups) > 0 {
			key = strings.Join(s.groups, ".") + "." + key
		}
		data[key] = a.Value.Resolve().Any()
	}
	for _, a := range s.attrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(a)
		return true
	})
	if len(data) > 0 {
		entry.Data = data
	}

	s.buf.mu.Lock()
	s.buf.entries = append(s.buf.entries, entry)
	if over := len(s.buf.entries) - s.buf.max; over > 0 {
		s.buf.entries = append(s.buf.entries[:0:0], s.buf.entries[over:]...)
	}
	s.buf.mu.Unlock()
	return nil
}

func (s *DebugSink) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *s
	c.attrs = append(append([]slog.Attr(nil), s.attrs...), attrs...)
	return &c
}

func (s *DebugSink) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	c := *s
	c.groups = append(append([]string(nil), s.groups...), name)
	return &c
}

// Entries returns a copy of the buffered records, oldest first.
func (s *DebugSink) Entries() []DebugEntry {
	return s.filter(func(DebugEntry) bool { return true })
}

// ByLevel returns the records logged at level (e.g. "WARN").
func (s *DebugSink) ByLevel(level string) []DebugEntry {
	level = strings.ToUpper(level)
	return s.filter(func(e DebugEntry) bool { return e.Level == level })
}

// ByCategory returns the records filed under category.
func (s *DebugSink) ByCategory(category string) []DebugEntry {
	return s.filter(func(e DebugEntry) bool { return e.Category == category })
}

func (s *DebugSink) filter(keep func(DebugEntry) bool) []DebugEntry {
	s.buf.mu.Lock()
	defer s.buf.mu.Unlock()
	out := make([]DebugEntry, 0, len(s.buf.entries))
	for _, e := range s.buf.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Stats counts buffered records per level, plus a "total".
func (s *DebugSink) Stats() map[string]int {
	s.buf.mu.Lock()
	defer s.buf.mu.Unlock()
	stats := map[string]int{"total": len(s.buf.entries), "debug": 0, "info": 0, "warn": 0, "error": 0}
	for _, e := range s.buf.entries {
		stats[strings.ToLower(e.Level)]++
	}
	return stats
}

// Export renders the buffer as indented JSON.
func (s *DebugSink) Export() ([]byte, error) {
	return json.MarshalIndent(s.Entries(), "", "  ")
}

// Format renders the last limit records as text lines. limit <= 0 means all.
func (s *DebugSink) Format(limit int) string {
	entries := s.Entries()
	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] [%s] [%s] %s", e.Timestamp.UTC().Format(time.RFC3339Nano), e.Level, e.Category, e.Message)
		if len(e.Data) > 0 {
			data, err := json.Marshal(e.Data)
			if err == nil {
				fmt.Fprintf(&b, " %s", data)
			}
		}
	}
	return b.String()
}

// Clear drops every buffered record.
func (s *DebugSink) Clear() {
	s.buf.mu.Lock()
	s.buf.entries = nil
	s.buf.mu.Unlock()
}
