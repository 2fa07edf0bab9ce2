package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// Row is one result row keyed by column name. Column values keep the types
// the driver returns.
type Row map[string]any

// DB wraps a database/sql connection with context-scoped cursors.
//
// A cursor is a transaction carried on the context: statements issued inside
// a Cursor scope run on its transaction, nested Cursor calls join the
// enclosing one, and the outermost scope decides commit or rollback. Outside
// any scope, statements run in autocommit mode.
//
// DB is the plumbing shared by the SQLite and MySQL stores; repositories in
// this package issue their statements through it.
type DB struct {
	conn   *sql.DB
	mu     sync.RWMutex
	closed bool
}

type cursorKey struct{}

// sqlRunner is satisfied by both *sql.DB and *sql.Tx.
type sqlRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// runner returns the active cursor's transaction, or the raw connection when
// no cursor scope is open.
func (d *DB) runner(ctx context.Context) sqlRunner {
	if tx, ok := ctx.Value(cursorKey{}).(*sql.Tx); ok {
		return tx
	}
	return d.conn
}

// Cursor runs fn inside a transaction scope.
//
// If ctx already carries a cursor, fn runs on the same transaction and the
// enclosing scope keeps control of commit and rollback. Otherwise a new
// transaction is opened; it commits when fn returns nil and commit is true,
// and rolls back in every other case (including commit=false, which gives a
// read-only scope whose writes are discarded).
func (d *DB) Cursor(ctx context.Context, commit bool, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(cursorKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	d.mu.RUnlock()

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, cursorKey{}, tx)); err != nil {
		_ = tx.Rollback() // Ignore rollback error when already returning error
		return err
	}

	if !commit {
		return tx.Rollback()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Execute runs a statement that returns no rows.
func (d *DB) Execute(ctx context.Context, query string, args ...any) error {
	if _, err := d.runner(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}

// Query runs a statement and returns every result row as a column-keyed map.
func (d *DB) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := d.runner(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var result []Row
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			// Normalize driver byte slices so rows are printable and comparable.
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// QueryOne runs a statement expected to produce a single row.
// Returns ErrNotFound when the result set is empty.
func (d *DB) QueryOne(ctx context.Context, query string, args ...any) (Row, error) {
	rows, err := d.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// DeclareTable creates a table if it does not exist, then runs any extra
// index DDL statements. Column definitions carry the id uniqueness
// constraint, since index DDL differs between SQLite and MySQL. Safe to call
// on every startup.
func (d *DB) DeclareTable(ctx context.Context, name string, columns []string, indexes ...string) error {
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, strings.Join(columns, ", "))
	if err := d.Execute(ctx, create); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}

	for _, index := range indexes {
		if err := d.Execute(ctx, index); err != nil {
			return fmt.Errorf("failed to create index for %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the underlying connection. Double-close is a no-op.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.conn.Close()
}

// Ping verifies the connection is alive.
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}
