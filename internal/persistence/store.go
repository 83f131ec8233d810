// Package persistence keeps an append-only SQLite journal of workflow runs and
// the outputs their tasks produced. The journal is for auditing; nothing reads
// it back into an invocation.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aristath/taskflow/internal/plugin"
	"github.com/aristath/taskflow/internal/scheduler"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunAborted   = "aborted"
)

// ErrRunNotFound is returned when a session has no journal entry.
var ErrRunNotFound = errors.New("run not found")

// Run is one journaled workflow invocation.
type Run struct {
	SessionID  string
	Status     string
	TaskCount  int
	Plan       scheduler.ExecutionPlan
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time // Zero while running
}

// OutputRecord is one journaled task output.
type OutputRecord struct {
	SessionID     string
	Task          string
	MergeIndex    int
	Method        string
	Confidence    float64
	ExecutionTime time.Duration
	Result        string // JSON, or the %v rendering when not encodable
	Errors        []string
	Warnings      []string
	RecordedAt    time.Time
}

// Store defines the journal operations.
type Store interface {
	StartRun(ctx context.Context, sessionID string, plan scheduler.ExecutionPlan) error
	RecordOutput(ctx context.Context, sessionID string, task string, out plugin.TaskOutput) error
	FinishRun(ctx context.Context, sessionID string, runErr error) error

	GetRun(ctx context.Context, sessionID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	Outputs(ctx context.Context, sessionID string) ([]OutputRecord, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store. Each call gets its own
// database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Also fails fast when the database cannot be opened.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StartRun journals the start of an invocation with its plan snapshot.
func (s *SQLiteStore) StartRun(ctx context.Context, sessionID string, plan scheduler.ExecutionPlan) error {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (session_id, status, task_count, plan, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, RunRunning, len(plan.SequentialOrder), string(planJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", sessionID, err)
	}
	return nil
}

// RecordOutput appends one task output to a running session. The merge index
// is the number of outputs already journaled for the session.
func (s *SQLiteStore) RecordOutput(ctx context.Context, sessionID, task string, out plugin.TaskOutput) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var index int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_outputs WHERE session_id = ?`, sessionID).Scan(&index); err != nil {
		return fmt.Errorf("failed to count outputs: %w", err)
	}

	errorsJSON, _ := json.Marshal(nonNil(out.Errors))
	warningsJSON, _ := json.Marshal(nonNil(out.Warnings))

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_outputs
			(session_id, task_name, merge_index, method, confidence, execution_ms, result, errors, warnings, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, task, index, out.Method, out.Confidence, out.ExecutionTime.Milliseconds(),
		encodeResult(out.Result), string(errorsJSON), string(warningsJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert output %s/%s: %w", sessionID, task, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FinishRun marks a session finished. A non-nil runErr marks it aborted.
func (s *SQLiteStore) FinishRun(ctx context.Context, sessionID string, runErr error) error {
	status, errStr := RunSucceeded, ""
	if runErr != nil {
		status, errStr = RunAborted, runErr.Error()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = ?
		WHERE session_id = ?
	`, status, errStr, time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("finish %s: %w", sessionID, ErrRunNotFound)
	}
	return nil
}

const runColumns = `session_id, status, task_count, plan, error, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var planJSON string
	var errStr sql.NullString
	var finished sql.NullTime
	if err := row.Scan(&run.SessionID, &run.Status, &run.TaskCount, &planJSON, &errStr, &run.StartedAt, &finished); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(planJSON), &run.Plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan for %s: %w", run.SessionID, err)
	}
	run.Error = errStr.String
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return run, nil
}

// GetRun retrieves one journaled run.
func (s *SQLiteStore) GetRun(ctx context.Context, sessionID string) (*Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE session_id = ?`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", sessionID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A non-positive limit returns
// every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// Outputs returns a session's outputs in merge order. Returns an empty slice
// (not nil) when none were journaled.
func (s *SQLiteStore) Outputs(ctx context.Context, sessionID string) ([]OutputRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, task_name, merge_index, method, confidence, execution_ms, result, errors, warnings, recorded_at
		FROM task_outputs
		WHERE session_id = ?
		ORDER BY merge_index ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outputs: %w", err)
	}
	defer rows.Close()

	records := []OutputRecord{}
	for rows.Next() {
		var rec OutputRecord
		var ms int64
		var result, errs, warns sql.NullString
		if err := rows.Scan(&rec.SessionID, &rec.Task, &rec.MergeIndex, &rec.Method, &rec.Confidence,
			&ms, &result, &errs, &warns, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan output: %w", err)
		}
		rec.ExecutionTime = time.Duration(ms) * time.Millisecond
		rec.Result = result.String
		if errs.Valid {
			_ = json.Unmarshal([]byte(errs.String), &rec.Errors)
		}
		if warns.Valid {
			_ = json.Unmarshal([]byte(warns.String), &rec.Warnings)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outputs: %w", err)
	}
	return records, nil
}

func encodeResult(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
