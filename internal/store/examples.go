package store

import (
	"embed"
	"errors"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/rendis/flowpilot/pkg/schema"
)

//go:embed examples/*.json
var exampleFS embed.FS

// Examples lists the names of the bundled example automations.
func Examples() []string {
	entries, _ := fs.ReadDir(exampleFS, "examples")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names
}

// LoadExample decodes a bundled example by name. The returned document has
// no id so saving it creates a new automation.
func LoadExample(name string) (*schema.Automation, error) {
	data, err := exampleFS.ReadFile(path.Join("examples", name+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storeNotFound("example", name)
	}
	if err != nil {
		return nil, err
	}
	a, err := decodeAutomation(data, name)
	if err != nil {
		return nil, err
	}
	a.ID = ""
	a.LastRun = nil
	a.Status = schema.AutomationIdle
	return a, nil
}
