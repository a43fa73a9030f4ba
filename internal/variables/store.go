// Package variables holds the per-run key/value store and its {{name}} template syntax.
package variables

import (
	"maps"
	"sort"
	"strings"
	"sync"
)

const (
	openToken  = "{{"
	closeToken = "}}"
)

// Store is the variable map for a single run. It is created fresh per run,
// optionally seeded, and discarded when the run ends.
type Store struct {
	mu   sync.RWMutex
	vars map[string]string
}

// New creates a store seeded with a copy of seed (which may be nil).
func New(seed map[string]string) *Store {
	vars := make(map[string]string, len(seed))
	maps.Copy(vars, seed)
	return &Store{vars: vars}
}

// Get returns the value stored under name.
func (s *Store) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Set stores value under name, replacing any previous value.
func (s *Store) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
}

// Delete removes name from the store.
func (s *Store) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, name)
}

// Len returns the number of stored variables.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vars)
}

// Names returns the stored variable names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.vars))
	for k := range s.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of all variables.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.vars))
	maps.Copy(out, s.vars)
	return out
}

// Interpolate replaces every {{name}} in template with the stored value.
// Whitespace inside the braces is ignored. Unknown names, empty tokens and
// unterminated tokens are left in the output exactly as written.
func (s *Store) Interpolate(template string) string {
	if !strings.Contains(template, openToken) {
		return template
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out strings.Builder
	out.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], openToken)
		if idx == -1 {
			out.WriteString(template[i:])
			break
		}
		start := i + idx
		out.WriteString(template[i:start])

		end := strings.Index(template[start+len(openToken):], closeToken)
		if end == -1 {
			out.WriteString(template[start:])
			break
		}
		tokenEnd := start + len(openToken) + end + len(closeToken)
		name := strings.TrimSpace(template[start+len(openToken) : start+len(openToken)+end])

		if v, ok := s.vars[name]; ok && name != "" {
			out.WriteString(v)
		} else {
			out.WriteString(template[start:tokenEnd])
		}
		i = tokenEnd
	}
	return out.String()
}

// InterpolateMap interpolates every value of m into a new map. Keys are kept as-is.
func (s *Store) InterpolateMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = s.Interpolate(v)
	}
	return out
}

// References returns the distinct variable names referenced by template, in order of appearance.
func References(template string) []string {
	var names []string
	seen := map[string]bool{}
	rest := template
	for {
		idx := strings.Index(rest, openToken)
		if idx == -1 {
			return names
		}
		rest = rest[idx+len(openToken):]
		end := strings.Index(rest, closeToken)
		if end == -1 {
			return names
		}
		name := strings.TrimSpace(rest[:end])
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		rest = rest[end+len(closeToken):]
	}
}
