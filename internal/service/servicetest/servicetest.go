// Package servicetest wires an Automations service over temporary stores
// and a fake browser.
package servicetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rendis/flowpilot/internal/browser/browsertest"
	"github.com/rendis/flowpilot/internal/engine"
	"github.com/rendis/flowpilot/internal/service"
	"github.com/rendis/flowpilot/internal/steps"
	"github.com/rendis/flowpilot/internal/store"
	"github.com/rendis/flowpilot/internal/streaming"
	"github.com/rendis/flowpilot/internal/validation"
)

// Env is a wired service plus the parts tests inspect.
type Env struct {
	Service *service.Automations
	Docs    *store.FileStore
	DB      *store.LibSQLStore
	Browser *browsertest.Fake
	Events  *streaming.MemoryHub
}

// New builds an Env rooted in t.TempDir.
func New(t *testing.T) *Env {
	t.Helper()
	dir := t.TempDir()

	db, err := store.NewLibSQLStore("file:" + filepath.Join(dir, "flowpilot.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { _ = db.Close() })

	docs := store.NewFileStore(filepath.Join(dir, "automations"))
	fake := browsertest.New()
	library := steps.NewLibrary()
	hub := streaming.NewMemoryHub()

	v, err := validation.NewAutomationValidator(library.Registry(), service.CredentialIndex{Store: db})
	require.NoError(t, err)

	exec := engine.NewExecutor(
		engine.WithLibrary(library),
		engine.WithLauncher(fake.Launcher()),
		engine.WithCredentials(db),
		engine.WithEvents(hub),
	)
	return &Env{
		Service: service.New(service.Deps{
			Docs:        docs,
			Runs:        db,
			Credentials: db,
			Runner:      engine.NewRunner(exec, docs, db, nil),
			Validator:   v,
			Events:      hub,
		}),
		Docs:    docs,
		DB:      db,
		Browser: fake,
		Events:  hub,
	}
}
