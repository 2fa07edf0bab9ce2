package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flowstate-go/flowstate/flow/store"
)

// seedStore creates a sqlite database with one workflow and two tasks, one
// of them suspended, and returns its path.
func seedStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cli.db")
	st, err := store.NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if _, err := st.Workflows().GetOrCreate(ctx, "billing.refund", []byte(`{"order":"o-9"}`)); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	for _, task := range []store.Task{
		{ID: "task-ready", Name: "billing.refund._run", Timestamp: 100, Input: []byte(`"wf-1"`), QueueID: "tasks"},
		{ID: "task-parked", Name: "billing.refund._run", Timestamp: 100, Input: []byte(`"wf-2"`), QueueID: "tasks"},
	} {
		if err := st.Tasks().Add(ctx, task); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if err := st.Tasks().Suspend(ctx, "task-parked"); err != nil {
		t.Fatalf("Suspend failed: %v", err)
	}
	return path
}

// run executes the CLI with args against the database at path and returns
// its stdout.
func run(t *testing.T, path string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--store", "sqlite", "--db", path}, args...))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestWorkflowsList(t *testing.T) {
	path := seedStore(t)

	// Test 1: the seeded workflow shows up
	out := run(t, path, "workflows", "list")
	if !strings.Contains(out, "billing.refund") || !strings.Contains(out, "RUNNING") {
		t.Errorf("expected the seeded workflow in the listing, got:\n%s", out)
	}

	// Test 2: a non-matching status filter hides it
	out = run(t, path, "workflows", "list", "--status", "completed")
	if strings.Contains(out, "billing.refund") {
		t.Errorf("expected the status filter to hide the workflow, got:\n%s", out)
	}
}

func TestTasksListAndWake(t *testing.T) {
	path := seedStore(t)

	// Test 1: both tasks show with their statuses
	out := run(t, path, "tasks", "list")
	if !strings.Contains(out, "task-ready") || !strings.Contains(out, "task-parked") {
		t.Errorf("expected both tasks in the listing, got:\n%s", out)
	}
	if !strings.Contains(out, string(store.TaskSuspended)) {
		t.Errorf("expected a SUSPENDED task in the listing, got:\n%s", out)
	}

	// Test 2: wake returns the suspended task to SCHEDULED
	run(t, path, "tasks", "wake", "task-parked")
	st, err := store.NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	defer st.Close()
	tasks, err := st.Tasks().List(context.Background(), "tasks")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, task := range tasks {
		if task.ID == "task-parked" && task.Status != store.TaskScheduled {
			t.Errorf("expected the woken task to be SCHEDULED, got %s", task.Status)
		}
	}
}

func TestTasksRequeueStale(t *testing.T) {
	path := seedStore(t)

	// Claim the ready task so it sits in RUNNING, as after a worker crash.
	st, err := store.NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	if _, err := st.Tasks().NextTask(context.Background(), "tasks", 1000); err != nil {
		t.Fatalf("NextTask failed: %v", err)
	}
	st.Close()

	run(t, path, "tasks", "requeue-stale", "--older-than", "0s")

	st, err = store.NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	defer st.Close()
	tasks, err := st.Tasks().List(context.Background(), "tasks")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, task := range tasks {
		if task.Status == store.TaskRunning {
			t.Errorf("expected no RUNNING tasks after the sweep, found %s", task.ID)
		}
	}
}

func TestUnknownStoreKind(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--store", "redis", "--db", "x", "workflows", "list"})
	if err := cmd.Execute(); err == nil {
		t.Error("expected an error for an unknown store kind")
	}
}
