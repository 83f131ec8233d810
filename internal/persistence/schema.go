package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		session_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		task_count INTEGER NOT NULL,
		plan TEXT NOT NULL,
		error TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS task_outputs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		task_name TEXT NOT NULL,
		merge_index INTEGER NOT NULL,
		method TEXT NOT NULL,
		confidence REAL NOT NULL,
		execution_ms INTEGER NOT NULL,
		result TEXT,
		errors TEXT,
		warnings TEXT,
		recorded_at DATETIME NOT NULL,
		UNIQUE (session_id, task_name),
		FOREIGN KEY (session_id) REFERENCES runs(session_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_outputs_session
		ON task_outputs(session_id, merge_index);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
