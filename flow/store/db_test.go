package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

// newTestDB opens an in-memory SQLite connection for exercising the cursor
// plumbing directly.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	conn.SetMaxOpenConns(1)
	db := &DB{conn: conn}
	if err := db.DeclareTable(context.Background(), "kv", []string{"id TEXT NOT NULL", "v TEXT NOT NULL"}); err != nil {
		t.Fatalf("DeclareTable failed: %v", err)
	}
	return db
}

// TestCursorScopes verifies commit, rollback, and scope joining.
func TestCursorScopes(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	defer db.Close()

	// Test 1: A committing cursor persists its writes
	err := db.Cursor(ctx, true, func(ctx context.Context) error {
		return db.Execute(ctx, "INSERT INTO kv (id, v) VALUES (?, ?)", "a", "1")
	})
	if err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	row, err := db.QueryOne(ctx, "SELECT v FROM kv WHERE id = ?", "a")
	if err != nil {
		t.Fatalf("QueryOne failed: %v", err)
	}
	if row["v"] != "1" {
		t.Errorf("expected v = 1, got %v", row["v"])
	}

	// Test 2: An erroring cursor rolls back
	errBoom := errors.New("boom")
	err = db.Cursor(ctx, true, func(ctx context.Context) error {
		if err := db.Execute(ctx, "INSERT INTO kv (id, v) VALUES (?, ?)", "b", "2"); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected the scope error, got: %v", err)
	}
	if _, err := db.QueryOne(ctx, "SELECT v FROM kv WHERE id = ?", "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected rollback, got: %v", err)
	}

	// Test 3: commit=false discards writes even on success
	err = db.Cursor(ctx, false, func(ctx context.Context) error {
		return db.Execute(ctx, "INSERT INTO kv (id, v) VALUES (?, ?)", "c", "3")
	})
	if err != nil {
		t.Fatalf("Cursor (commit=false) failed: %v", err)
	}
	if _, err := db.QueryOne(ctx, "SELECT v FROM kv WHERE id = ?", "c"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected discarded write, got: %v", err)
	}

	// Test 4: Nested cursors join the outer transaction
	err = db.Cursor(ctx, true, func(ctx context.Context) error {
		if err := db.Execute(ctx, "INSERT INTO kv (id, v) VALUES (?, ?)", "outer", "1"); err != nil {
			return err
		}
		return db.Cursor(ctx, true, func(ctx context.Context) error {
			// The outer row must be visible here: same transaction.
			if _, err := db.QueryOne(ctx, "SELECT v FROM kv WHERE id = ?", "outer"); err != nil {
				return err
			}
			return db.Execute(ctx, "INSERT INTO kv (id, v) VALUES (?, ?)", "inner", "2")
		})
	})
	if err != nil {
		t.Fatalf("nested Cursor failed: %v", err)
	}
	if _, err := db.QueryOne(ctx, "SELECT v FROM kv WHERE id = ?", "inner"); err != nil {
		t.Errorf("expected the inner write to persist: %v", err)
	}

	// Test 5: An outer rollback discards inner writes too
	err = db.Cursor(ctx, true, func(ctx context.Context) error {
		if err := db.Cursor(ctx, true, func(ctx context.Context) error {
			return db.Execute(ctx, "INSERT INTO kv (id, v) VALUES (?, ?)", "doomed", "1")
		}); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected the scope error, got: %v", err)
	}
	if _, err := db.QueryOne(ctx, "SELECT v FROM kv WHERE id = ?", "doomed"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected the inner write to be discarded, got: %v", err)
	}
}

// TestQueryRows verifies Query and QueryOne row mapping.
func TestQueryRows(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	defer db.Close()

	for _, kv := range [][2]string{{"x", "10"}, {"y", "20"}} {
		if err := db.Execute(ctx, "INSERT INTO kv (id, v) VALUES (?, ?)", kv[0], kv[1]); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
	}

	// Test 1: Query returns every row keyed by column
	rows, err := db.Query(ctx, "SELECT id, v FROM kv ORDER BY id")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["id"] != "x" || rows[0]["v"] != "10" {
		t.Errorf("unexpected first row: %v", rows[0])
	}

	// Test 2: Query with no matches returns an empty set, not an error
	rows, err = db.Query(ctx, "SELECT id FROM kv WHERE id = ?", "missing")
	if err != nil {
		t.Fatalf("Query (empty) failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}

	// Test 3: QueryOne maps the empty set to ErrNotFound
	if _, err := db.QueryOne(ctx, "SELECT id FROM kv WHERE id = ?", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

// TestDeclareTableIdempotent verifies redeclaring a table is safe.
func TestDeclareTableIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	defer db.Close()

	columns := []string{"id TEXT NOT NULL", "n REAL NOT NULL"}
	index := "CREATE INDEX IF NOT EXISTS idx_things_n ON things (n)"

	if err := db.DeclareTable(ctx, "things", columns, index); err != nil {
		t.Fatalf("DeclareTable failed: %v", err)
	}
	if err := db.Execute(ctx, "INSERT INTO things (id, n) VALUES (?, ?)", "t1", 1.5); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// Redeclaring must neither fail nor drop data.
	if err := db.DeclareTable(ctx, "things", columns, index); err != nil {
		t.Fatalf("DeclareTable (again) failed: %v", err)
	}
	if _, err := db.QueryOne(ctx, "SELECT id FROM things WHERE id = ?", "t1"); err != nil {
		t.Errorf("expected the row to survive redeclaration: %v", err)
	}
}

// TestDBClose verifies double-close is a no-op and cursors fail afterwards.
func TestDBClose(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("expected double Close to be a no-op, got: %v", err)
	}

	err := db.Cursor(ctx, true, func(ctx context.Context) error { return nil })
	if err == nil {
		t.Error("expected Cursor to fail on a closed store")
	}
}
