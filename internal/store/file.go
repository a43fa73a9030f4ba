package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rendis/flowpilot/pkg/schema"
)

const (
	filePrefix = "tree_"
	fileSuffix = ".json"
)

// FileStore keeps one JSON document per automation, named tree_<id>.json,
// in a single directory. The directory is created on first use.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

var _ AutomationStore = (*FileStore)(nil)

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, filePrefix+id+fileSuffix)
}

func (s *FileStore) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "create %s: %s", s.dir, err.Error()).WithCause(err)
	}
	return nil
}

// Save normalizes a and writes it. A missing id is filled with a new UUID.
// The file is replaced atomically.
func (s *FileStore) Save(_ context.Context, a *schema.Automation) (string, error) {
	if a == nil {
		return "", schema.NewError(schema.ErrCodeValidation, "automation is nil")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := checkID(a.ID); err != nil {
		return "", err
	}
	a.Normalize()

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal automation %s: %w", a.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureDir(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".tree-*.tmp")
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeStore, "write automation %s: %s", a.ID, err.Error()).WithCause(err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", schema.NewErrorf(schema.ErrCodeStore, "write automation %s: %s", a.ID, err.Error()).WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeStore, "write automation %s: %s", a.ID, err.Error()).WithCause(err)
	}
	if err := os.Rename(tmp.Name(), s.path(a.ID)); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeStore, "write automation %s: %s", a.ID, err.Error()).WithCause(err)
	}
	return a.ID, nil
}

// Load returns (nil, nil) when no document exists for id.
func (s *FileStore) Load(_ context.Context, id string) (*schema.Automation, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "read automation %s: %s", id, err.Error()).WithCause(err)
	}
	return decodeAutomation(data, id)
}

// List returns every stored document ordered by name, then id. Files that
// fail to decode are skipped and reported in the returned error, which is
// non-nil only when nothing at all could be read.
func (s *FileStore) List(_ context.Context) ([]*schema.Automation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []*schema.Automation{}, nil
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list %s: %s", s.dir, err.Error()).WithCause(err)
	}

	out := []*schema.Automation{}
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		a, err := decodeAutomation(data, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Delete removes the document for id.
func (s *FileStore) Delete(_ context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return storeNotFound("automation", id)
	}
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "delete automation %s: %s", id, err.Error()).WithCause(err)
	}
	return nil
}

func decodeAutomation(data []byte, source string) (*schema.Automation, error) {
	a := &schema.Automation{}
	if err := json.Unmarshal(data, a); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "decode automation %s: %s", source, err.Error()).WithCause(err)
	}
	a.Normalize()
	return a, nil
}

// checkID rejects ids that would escape the storage directory.
func checkID(id string) error {
	if id == "" {
		return schema.NewError(schema.ErrCodeValidation, "automation id is empty")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid automation id %q", id)
	}
	return nil
}
