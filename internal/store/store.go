// Package store persists automation documents, run history and credentials.
package store

import (
	"context"

	"github.com/rendis/flowpilot/pkg/schema"
)

// AutomationStore persists automation documents.
// Implementations must be safe for concurrent use.
type AutomationStore interface {
	// Save writes a, assigning an id when it has none, and returns the id.
	Save(ctx context.Context, a *schema.Automation) (string, error)
	// Load returns (nil, nil) when id is unknown.
	Load(ctx context.Context, id string) (*schema.Automation, error)
	List(ctx context.Context) ([]*schema.Automation, error)
	Delete(ctx context.Context, id string) error
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	AutomationID string
	Status       schema.RunStatus
	Limit        int
}

// RunStore keeps execution logs.
type RunStore interface {
	AppendRun(ctx context.Context, log *schema.ExecutionLog) error
	GetRun(ctx context.Context, id string) (*schema.ExecutionLog, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]*schema.ExecutionLog, error)
	DeleteRuns(ctx context.Context, automationID string) error
}

// CredentialStore keeps credentials referenced by type steps.
type CredentialStore interface {
	SaveCredential(ctx context.Context, c *schema.Credential) error
	GetCredential(ctx context.Context, id string) (*schema.Credential, error)
	ListCredentials(ctx context.Context) ([]*schema.Credential, error)
	DeleteCredential(ctx context.Context, id string) error
}

// Store is the database half of persistence: run history and credentials.
type Store interface {
	RunStore
	CredentialStore

	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error
	Close() error
}
