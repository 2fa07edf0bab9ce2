package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQL is a MySQL/MariaDB-backed Store.
//
// Designed for:
//   - Production deployments with multiple worker processes
//   - Long-running workflows that survive host restarts
//   - Audit trails over workflow and task history
//
// The DSN format is the go-sql-driver one:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
//
// Never hardcode credentials; read the DSN from the environment:
//
//	store, err := store.NewMySQL(os.Getenv("MYSQL_DSN"))
type MySQL struct {
	sqlRepos
}

// NewMySQL opens a MySQL-backed store and declares the engine tables.
func NewMySQL(dsn string) (*MySQL, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)
	conn.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close() // Ignore close error when returning ping error
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	m := &MySQL{sqlRepos: sqlRepos{db: &DB{conn: conn}, d: mysqlDialect{}}}
	if err := m.declareTables(ctx); err != nil {
		_ = conn.Close() // Ignore close error when returning schema error
		return nil, fmt.Errorf("failed to declare tables: %w", err)
	}
	return m, nil
}

func (m *MySQL) declareTables(ctx context.Context) error {
	// MySQL has no CREATE INDEX IF NOT EXISTS, so every key is declared
	// inline with the table.
	if err := m.db.DeclareTable(ctx, "workflows", []string{
		"id VARCHAR(36) NOT NULL",
		"name VARCHAR(255) NOT NULL",
		"input TEXT NOT NULL",
		"status VARCHAR(16) NOT NULL",
		"PRIMARY KEY (id)",
		"INDEX idx_workflows_identity (name, input(255))",
	}); err != nil {
		return err
	}

	if err := m.db.DeclareTable(ctx, "activities", []string{
		"id VARCHAR(36) NOT NULL",
		"workflow_id VARCHAR(36) NOT NULL",
		"name VARCHAR(255) NOT NULL",
		"input TEXT NOT NULL",
		"output TEXT NOT NULL",
		"PRIMARY KEY (id)",
		"INDEX idx_activities_memo (workflow_id, name)",
	}); err != nil {
		return err
	}

	// seq preserves arrival order so unbound signals can be consumed FIFO;
	// SQLite gets the same ordering from its implicit rowid.
	if err := m.db.DeclareTable(ctx, "signals", []string{
		"id VARCHAR(36) NOT NULL",
		"workflow_id VARCHAR(36) NOT NULL",
		"name VARCHAR(255) NOT NULL",
		"content TEXT NOT NULL",
		"step INT NULL",
		"seq BIGINT NOT NULL AUTO_INCREMENT",
		"PRIMARY KEY (seq)",
		"UNIQUE KEY ux_signals_id (id)",
		"INDEX idx_signals_wait (workflow_id, name)",
	}); err != nil {
		return err
	}

	if err := m.db.DeclareTable(ctx, "tasks", []string{
		"id VARCHAR(36) NOT NULL",
		"name VARCHAR(255) NOT NULL",
		"timestamp DOUBLE NOT NULL",
		"retry_count INT NOT NULL",
		"input TEXT NOT NULL",
		"queue_id VARCHAR(64) NOT NULL",
		"status VARCHAR(16) NOT NULL",
		"PRIMARY KEY (id)",
		"INDEX idx_tasks_ready (queue_id, status, timestamp)",
	}); err != nil {
		return err
	}

	return m.db.DeclareTable(ctx, "results", []string{
		"id VARCHAR(36) NOT NULL",
		"result TEXT NULL",
		"error TEXT NULL",
		"PRIMARY KEY (id)",
	})
}

type mysqlDialect struct{}

func (mysqlDialect) upsertTask() string {
	return `
		INSERT INTO tasks (id, name, timestamp, retry_count, input, queue_id, status)
		VALUES (?, ?, ?, ?, ?, ?, 'SCHEDULED')
		ON DUPLICATE KEY UPDATE
			timestamp = VALUES(timestamp),
			retry_count = VALUES(retry_count),
			status = 'SCHEDULED'
	`
}

func (mysqlDialect) upsertResult() string {
	return `
		INSERT INTO results (id, result, error)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			result = VALUES(result),
			error = VALUES(error)
	`
}

func (mysqlDialect) upsertActivity() string {
	return `
		INSERT INTO activities (id, workflow_id, name, input, output)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			output = VALUES(output)
	`
}

func (mysqlDialect) signalOrder() string { return "seq" }

// FOR UPDATE locks the identity range on idx_workflows_identity, so two
// concurrent GetOrCreate calls cannot both read "no row" and insert
// duplicate RUNNING rows.
func (mysqlDialect) workflowLock() string { return " FOR UPDATE" }

// Racing creators share the identity gap lock, so InnoDB resolves the race
// by picking one INSERT as deadlock victim. The victim's GetOrCreate retry
// then reads the winner's committed row.
func (mysqlDialect) lockConflict(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	// 1213 deadlock, 1205 lock wait timeout.
	return me.Number == 1213 || me.Number == 1205
}

// claimTask locks the earliest due row before flipping it to RUNNING.
// SKIP LOCKED keeps concurrent claimers from blocking on each other's
// candidate rows. The timestamp is stamped with the claim instant: from
// here on it means "claimed at", which is what the stale sweep measures
// against.
func (mysqlDialect) claimTask(ctx context.Context, db *DB, queueID string, now float64) (Task, error) {
	var claimed Task
	err := db.Cursor(ctx, true, func(ctx context.Context) error {
		row := db.runner(ctx).QueryRowContext(ctx, `
			SELECT id, name, timestamp, retry_count, input, queue_id, status FROM tasks
			WHERE queue_id = ? AND status = 'SCHEDULED' AND timestamp <= ?
			ORDER BY timestamp LIMIT 1
			FOR UPDATE SKIP LOCKED`,
			queueID, now)

		t, err := scanTask(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to claim task: %w", err)
		}

		if err := db.Execute(ctx, "UPDATE tasks SET status = 'RUNNING', timestamp = ? WHERE id = ?", now, t.ID); err != nil {
			return err
		}
		t.Status = TaskRunning
		t.Timestamp = now
		claimed = t
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return claimed, nil
}
