// Package store provides persistence for workflows, activities, signals,
// and queued tasks.
//
// Three backends implement the same Store interface: SQLite and MySQL are
// relational stores built on database/sql (sqlite.go, mysql.go), and Document
// is a single JSON file guarded by a file lock (document.go). Higher layers
// treat them interchangeably; the tests in common_test.go run every
// repository operation against each backend.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyRunning is returned by Workflows.GetOrCreate when a RUNNING row
// already exists for the same (name, input) pair.
var ErrAlreadyRunning = errors.New("workflow is already running")

// WorkflowStatus is the lifecycle state of a workflow row.
//
// Transitions:
//
//	(none)  -> RUNNING   via GetOrCreate
//	STOPPED -> RUNNING   via GetOrCreate (revival)
//	RUNNING -> COMPLETED via Complete (terminal)
//	RUNNING -> STOPPED   via Failed (resumable)
type WorkflowStatus string

const (
	WorkflowRunning   WorkflowStatus = "RUNNING"
	WorkflowCompleted WorkflowStatus = "COMPLETED"
	WorkflowStopped   WorkflowStatus = "STOPPED"
)

// TaskStatus is the lifecycle state of a queued task row.
type TaskStatus string

const (
	TaskScheduled TaskStatus = "SCHEDULED"
	TaskRunning   TaskStatus = "RUNNING"
	TaskSuspended TaskStatus = "SUSPENDED"
	TaskCompleted TaskStatus = "COMPLETED"
)

// Workflow is one durable execution of a workflow function. Identity for
// deduplication is the (Name, Input) pair: at most one non-COMPLETED row may
// exist per pair at any time.
type Workflow struct {
	ID     string
	Name   string
	Input  []byte
	Status WorkflowStatus
}

// Activity is a memoized step result. Name carries the step ordinal suffix
// ("charge#3"), so the memoization key is (WorkflowID, Name, Input).
type Activity struct {
	ID         string
	WorkflowID string
	Name       string
	Input      []byte
	Output     []byte
}

// Signal is an external message delivered to a workflow. Step is nil until
// the signal is bound to a specific wait ordinal inside the workflow.
type Signal struct {
	ID         string
	WorkflowID string
	Name       string
	Content    []byte
	Step       *int
}

// Task is one unit of queued work. Timestamp is the epoch-seconds instant at
// which the task becomes ready; tasks are claimed in timestamp order.
type Task struct {
	ID         string
	Name       string
	Timestamp  float64
	RetryCount int
	Input      []byte
	QueueID    string
	Status     TaskStatus
}

// Epoch converts a time to the epoch-seconds form stored in task rows.
func Epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromEpoch converts stored epoch seconds back to a time.
func FromEpoch(ts float64) time.Time {
	return time.Unix(0, int64(ts*float64(time.Second)))
}

// TaskResult is the outcome of a completed task. Exactly one of Result and
// Error is set.
type TaskResult struct {
	TaskID string
	Result []byte
	Error  string
}

// Failed reports whether the result records a task failure.
func (r TaskResult) Failed() bool { return r.Error != "" }

// Workflows persists workflow rows and enforces the lifecycle rules above.
type Workflows interface {
	// GetOrCreate returns the live workflow for (name, input), creating a
	// RUNNING row when none exists and reviving a STOPPED row back to
	// RUNNING. Returns ErrAlreadyRunning when a RUNNING row exists.
	GetOrCreate(ctx context.Context, name string, input []byte) (Workflow, error)

	// Get returns the workflow with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (Workflow, error)

	// Complete marks the workflow COMPLETED. COMPLETED is terminal: a later
	// GetOrCreate with the same (name, input) starts a fresh row.
	Complete(ctx context.Context, id string) error

	// Failed marks the workflow STOPPED so a later run can resume it.
	Failed(ctx context.Context, id string) error

	// List returns workflows with the given status, or every workflow when
	// status is empty. Inspection surface; the engine itself never lists.
	List(ctx context.Context, status WorkflowStatus) ([]Workflow, error)
}

// Activities persists memoized step results.
type Activities interface {
	// MayFindOne returns the memoized activity for (workflowID, name, input)
	// if one was recorded. A miss is not an error: ok is false.
	MayFindOne(ctx context.Context, workflowID, name string, input []byte) (a Activity, ok bool, err error)

	// Save records a step result: insert, or on an id conflict, update the
	// output. An empty ID is filled in.
	Save(ctx context.Context, a Activity) error
}

// Signals persists signal rows and performs wait-side binding.
type Signals interface {
	// New records an incoming signal. Step stays nil until a waiter binds it.
	New(ctx context.Context, s Signal) error

	// MayFindOne returns the signal bound to (workflowID, name, step). When
	// no row is bound to that step yet, the oldest unbound row with a
	// matching name is bound to it and returned, so queued signals are
	// consumed in arrival order.
	MayFindOne(ctx context.Context, workflowID, name string, step int) (s Signal, ok bool, err error)
}

// Tasks persists the durable task queue.
type Tasks interface {
	// Add inserts the task as SCHEDULED. Re-adding an existing id resets its
	// timestamp, retry count, and status (the put/retry/later operations all
	// funnel through here).
	Add(ctx context.Context, t Task) error

	// NextTask atomically claims one due task: a SCHEDULED row on the queue
	// whose timestamp is <= now, flipped to RUNNING with its timestamp set
	// to now. The earliest due task wins. Once claimed the timestamp means
	// "claimed at", so staleness is measured from the claim, not from how
	// long the task sat queued. Returns ErrNotFound when nothing is due;
	// callers poll.
	NextTask(ctx context.Context, queueID string, now float64) (Task, error)

	// Suspend parks a task. Only SCHEDULED or RUNNING tasks can be
	// suspended; anything else is a no-op.
	Suspend(ctx context.Context, id string) error

	// Wakeup returns a SUSPENDED task to SCHEDULED. A no-op for tasks in any
	// other state.
	Wakeup(ctx context.Context, id string) error

	// GetResult removes the task and its result row in one atomic step and
	// returns the result. ErrNotFound when no result has been recorded yet.
	GetResult(ctx context.Context, taskID string) (TaskResult, error)

	// SetResult marks the task COMPLETED and records its result.
	SetResult(ctx context.Context, r TaskResult) error

	// FindByInput returns the first task whose name ends in nameSuffix and
	// whose input matches exactly. Used to locate a workflow's parked run
	// task when a signal arrives.
	FindByInput(ctx context.Context, nameSuffix string, input []byte) (Task, error)

	// RequeueStale flips RUNNING tasks claimed at or before the cutoff back
	// to SCHEDULED, recovering work claimed by crashed workers. Returns the
	// number of tasks requeued.
	RequeueStale(ctx context.Context, cutoff float64) (int, error)

	// List returns tasks on the given queue, or every task when queueID is
	// empty. Inspection surface; the engine itself never lists.
	List(ctx context.Context, queueID string) ([]Task, error)
}

// Store bundles the repositories over one backend.
type Store interface {
	Workflows() Workflows
	Activities() Activities
	Signals() Signals
	Tasks() Tasks

	// Atomic runs fn inside a single transactional scope. Nested calls join
	// the enclosing scope. The scope commits when fn returns nil and rolls
	// back otherwise.
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases the backend. Operations after Close fail.
	Close() error
}
