package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/flowpilot/pkg/schema"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// LibSQLStore implements Store using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

var _ Store = (*LibSQLStore)(nil)

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/flowpilot.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Runs ---

func (s *LibSQLStore) AppendRun(ctx context.Context, log *schema.ExecutionLog) error {
	if log == nil || log.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "run log needs an id")
	}
	raw, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("marshal run log: %w", err)
	}
	var code any
	if log.Error != nil {
		code = log.Error.Code
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, automation_id, started_at, status, success, duration_ms, error_code, log)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.AutomationID, formatTime(log.Timestamp), string(log.Status),
		boolInt(log.Success), log.Duration, code, string(raw),
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "append run %s: %s", log.ID, err.Error()).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*schema.ExecutionLog, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT log FROM runs WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	return decodeRun(raw)
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*schema.ExecutionLog, error) {
	query := `SELECT log FROM runs`
	var (
		where []string
		args  []any
	)
	if filter.AutomationID != "" {
		where = append(where, "automation_id = ?")
		args = append(args, filter.AutomationID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*schema.ExecutionLog
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		log, err := decodeRun(raw)
		if err != nil {
			return nil, err
		}
		runs = append(runs, log)
	}
	return runs, rows.Err()
}

func (s *LibSQLStore) DeleteRuns(ctx context.Context, automationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE automation_id = ?`, automationID)
	return err
}

func decodeRun(raw string) (*schema.ExecutionLog, error) {
	log := &schema.ExecutionLog{}
	if err := json.Unmarshal([]byte(raw), log); err != nil {
		return nil, fmt.Errorf("unmarshal run log: %w", err)
	}
	return log, nil
}

// --- Credentials ---

func (s *LibSQLStore) SaveCredential(ctx context.Context, c *schema.Credential) error {
	if c == nil || c.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "credential needs an id")
	}
	values, err := json.Marshal(c.Values)
	if err != nil {
		return fmt.Errorf("marshal credential values: %w", err)
	}
	if c.LastUpdated.IsZero() {
		c.LastUpdated = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO credentials (id, name, type, credential_values, last_updated) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, type=excluded.type,
		   credential_values=excluded.credential_values, last_updated=excluded.last_updated`,
		c.ID, c.Name, string(c.Type), string(values), formatTime(c.LastUpdated),
	)
	return err
}

func (s *LibSQLStore) GetCredential(ctx context.Context, id string) (*schema.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, credential_values, last_updated FROM credentials WHERE id = ?`, id)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("credential", id)
	}
	return c, err
}

func (s *LibSQLStore) ListCredentials(ctx context.Context) ([]*schema.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, credential_values, last_updated FROM credentials ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*schema.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (s *LibSQLStore) DeleteCredential(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "credential", id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(row scanner) (*schema.Credential, error) {
	c := &schema.Credential{}
	var typ, values, updated string
	if err := row.Scan(&c.ID, &c.Name, &typ, &values, &updated); err != nil {
		return nil, err
	}
	c.Type = schema.CredentialType(typ)
	if err := json.Unmarshal([]byte(values), &c.Values); err != nil {
		return nil, fmt.Errorf("unmarshal credential values: %w", err)
	}
	t, err := time.Parse(timeLayout, updated)
	if err != nil {
		return nil, fmt.Errorf("parse credential timestamp: %w", err)
	}
	c.LastUpdated = t
	return c, nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
