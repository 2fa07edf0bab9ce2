package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLite is a SQLite-backed Store.
//
// It keeps every engine table in a single-file database. Designed for:
//   - Development and testing with zero setup
//   - Single-node deployments where workers share one file
//   - Prototyping before migrating to MySQL
//
// The store enables WAL mode for concurrent reads and limits itself to one
// open connection, which serializes writers and makes ":memory:" databases
// safe to share between goroutines.
type SQLite struct {
	sqlRepos
	path string
}

// DefaultPath is the database location used when no path is configured.
const DefaultPath = "./flowstate.db"

// NewSQLite opens (creating if needed) a SQLite-backed store.
//
// The path parameter specifies the database file location:
//   - "./flowstate.db" - file in current directory
//   - "/var/lib/app/flow.db" - absolute path
//   - ":memory:" - in-memory database (data lost on close)
//
// All engine tables are declared on open, so the call is safe to repeat.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = DefaultPath
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time; a single shared connection also
	// keeps ":memory:" databases visible across goroutines.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close() // Ignore close error when returning pragma error
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLite{
		sqlRepos: sqlRepos{db: &DB{conn: conn}, d: sqliteDialect{}},
		path:     path,
	}
	if err := s.declareTables(ctx); err != nil {
		_ = conn.Close() // Ignore close error when returning schema error
		return nil, fmt.Errorf("failed to declare tables: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) declareTables(ctx context.Context) error {
	if err := s.db.DeclareTable(ctx, "workflows",
		[]string{"id TEXT NOT NULL", "name TEXT NOT NULL", "input TEXT NOT NULL", "status TEXT NOT NULL"},
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_workflows_id ON workflows(id)",
		"CREATE INDEX IF NOT EXISTS idx_workflows_identity ON workflows(name, input)",
	); err != nil {
		return err
	}

	if err := s.db.DeclareTable(ctx, "activities",
		[]string{"id TEXT NOT NULL", "workflow_id TEXT NOT NULL", "name TEXT NOT NULL", "input TEXT NOT NULL", "output TEXT NOT NULL"},
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_activities_id ON activities(id)",
		"CREATE INDEX IF NOT EXISTS idx_activities_memo ON activities(workflow_id, name)",
	); err != nil {
		return err
	}

	if err := s.db.DeclareTable(ctx, "signals",
		[]string{"id TEXT NOT NULL", "workflow_id TEXT NOT NULL", "name TEXT NOT NULL", "content TEXT NOT NULL", "step INTEGER"},
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_signals_id ON signals(id)",
		"CREATE INDEX IF NOT EXISTS idx_signals_wait ON signals(workflow_id, name)",
	); err != nil {
		return err
	}

	if err := s.db.DeclareTable(ctx, "tasks",
		[]string{"id TEXT NOT NULL", "name TEXT NOT NULL", "timestamp REAL NOT NULL", "retry_count INTEGER NOT NULL", "input TEXT NOT NULL", "queue_id TEXT NOT NULL", "status TEXT NOT NULL"},
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_tasks_id ON tasks(id)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_ready ON tasks(queue_id, status, timestamp)",
	); err != nil {
		return err
	}

	return s.db.DeclareTable(ctx, "results",
		[]string{"id TEXT NOT NULL", "result TEXT", "error TEXT"},
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_results_id ON results(id)",
	)
}

type sqliteDialect struct{}

func (sqliteDialect) upsertTask() string {
	return `
		INSERT INTO tasks (id, name, timestamp, retry_count, input, queue_id, status)
		VALUES (?, ?, ?, ?, ?, ?, 'SCHEDULED')
		ON CONFLICT(id) DO UPDATE SET
			timestamp = excluded.timestamp,
			retry_count = excluded.retry_count,
			status = 'SCHEDULED'
	`
}

func (sqliteDialect) upsertResult() string {
	return `
		INSERT INTO results (id, result, error)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			result = excluded.result,
			error = excluded.error
	`
}

func (sqliteDialect) upsertActivity() string {
	return `
		INSERT INTO activities (id, workflow_id, name, input, output)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			output = excluded.output
	`
}

func (sqliteDialect) signalOrder() string { return "rowid" }

// The single connection already serializes writers, so the GetOrCreate
// lookup needs no row lock.
func (sqliteDialect) workflowLock() string { return "" }

func (sqliteDialect) lockConflict(error) bool { return false }

// claimTask flips the earliest due SCHEDULED task to RUNNING and returns it
// in one statement, so concurrent claimers can never take the same task.
// The timestamp is stamped with the claim instant: from here on it means
// "claimed at", which is what the stale sweep measures against.
func (sqliteDialect) claimTask(ctx context.Context, db *DB, queueID string, now float64) (Task, error) {
	row := db.runner(ctx).QueryRowContext(ctx, `
		UPDATE tasks SET status = 'RUNNING', timestamp = ?
		WHERE id = (
			SELECT id FROM tasks
			WHERE queue_id = ? AND status = 'SCHEDULED' AND timestamp <= ?
			ORDER BY timestamp LIMIT 1
		)
		RETURNING id, name, timestamp, retry_count, input, queue_id, status`,
		now, queueID, now)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("failed to claim task: %w", err)
	}
	return t, nil
}
