package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowpilot/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func runLog(automationID string, ts time.Time, status schema.RunStatus) *schema.ExecutionLog {
	log := &schema.ExecutionLog{
		ID:           uuid.NewString(),
		AutomationID: automationID,
		Timestamp:    ts,
		Status:       status,
		Success:      status == schema.RunCompleted,
		Duration:     42,
		Steps: []schema.ExecutionLogEntry{
			{StepID: "1", NodeID: "1", Success: true, DurationMs: 40},
		},
		Variables: map[string]string{"k": "v"},
	}
	if status == schema.RunFailed {
		log.Error = schema.NewError(schema.ErrCodeDriverFailure, "boom").WithNode("1")
	}
	return log
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))

	var version int
	require.NoError(t, s.DB().QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version))
	assert.Equal(t, len(migrations), version)
}

func TestAppendAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	log := runLog("a1", time.Now(), schema.RunFailed)
	require.NoError(t, s.AppendRun(ctx, log))

	got, err := s.GetRun(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, log.AutomationID, got.AutomationID)
	assert.Equal(t, schema.RunFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, schema.ErrCodeDriverFailure, got.Error.Code)
	assert.Equal(t, "1", got.Error.NodeID)
	assert.Equal(t, []string{"1"}, got.VisitedNodes())
	assert.Equal(t, "v", got.Variables["k"])
}

func TestAppendRun_RejectsMissingID(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendRun(context.Background(), &schema.ExecutionLog{})
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "nope")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first := runLog("a1", base, schema.RunCompleted)
	second := runLog("a1", base.Add(time.Minute), schema.RunFailed)
	other := runLog("a2", base.Add(2*time.Minute), schema.RunCompleted)
	for _, l := range []*schema.ExecutionLog{first, second, other} {
		require.NoError(t, s.AppendRun(ctx, l))
	}

	runs, err := s.ListRuns(ctx, RunFilter{AutomationID: "a1"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID, "newest first")
	assert.Equal(t, first.ID, runs[1].ID)

	runs, err = s.ListRuns(ctx, RunFilter{Status: schema.RunCompleted})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = s.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, other.ID, runs[0].ID)

	require.NoError(t, s.DeleteRuns(ctx, "a1"))
	runs, err = s.ListRuns(ctx, RunFilter{AutomationID: "a1"})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &schema.Credential{
		ID:     "site-login",
		Name:   "Site login",
		Type:   schema.CredentialUsernamePassword,
		Values: map[string]string{"username": "ana", "password": "s3cret"},
	}
	require.NoError(t, s.SaveCredential(ctx, c))
	assert.False(t, c.LastUpdated.IsZero())

	got, err := s.GetCredential(ctx, "site-login")
	require.NoError(t, err)
	assert.Equal(t, "Site login", got.Name)
	assert.Equal(t, schema.CredentialUsernamePassword, got.Type)
	assert.Equal(t, "s3cret", got.Values["password"])
	assert.WithinDuration(t, c.LastUpdated, got.LastUpdated, time.Millisecond)

	c.Values["password"] = "rotated"
	c.LastUpdated = time.Time{}
	require.NoError(t, s.SaveCredential(ctx, c))
	got, err = s.GetCredential(ctx, "site-login")
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.Values["password"])

	require.NoError(t, s.SaveCredential(ctx, &schema.Credential{
		ID: "api", Name: "API key", Type: schema.CredentialAPIKey, Values: map[string]string{"value": "k"},
	}))
	all, err := s.ListCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "API key", all[0].Name)

	require.NoError(t, s.DeleteCredential(ctx, "api"))
	assert.True(t, schema.HasCode(s.DeleteCredential(ctx, "api"), schema.ErrCodeNotFound))

	_, err = s.GetCredential(ctx, "api")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(`-- header only;
CREATE TABLE a (x INT);
-- note
CREATE TABLE b (y INT);
`)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Contains(t, stmts[1], "CREATE TABLE b")
}
