package flow

import (
	"context"
	"time"
)

// Target is the untyped view of a workflow that runners dispatch on. The
// typed Workflow API wraps it; runners only move pre-encoded payloads.
type Target interface {
	// Name is the workflow's registered name.
	Name() string

	// Create obtains or revives the workflow row for the encoded input and
	// returns its id. The row is RUNNING on return.
	Create(ctx context.Context, input []byte) (string, error)

	// Execute runs the workflow body against an existing row and returns
	// the encoded output.
	Execute(ctx context.Context, workflowID string) ([]byte, error)
}

// Runner dispatches workflow executions. Implementations differ in where
// the body runs: inline on the caller, on a goroutine, or on a worker
// claiming tasks from a queue.
type Runner interface {
	// Run executes the workflow to completion and returns its encoded
	// output.
	Run(ctx context.Context, wf Target, input []byte) ([]byte, error)

	// Start begins the workflow without waiting for it.
	Start(ctx context.Context, wf Target, input []byte) (*Handle, error)

	// WakeUp nudges a workflow parked in Wait after a signal lands.
	WakeUp(ctx context.Context, workflowID string) error
}

// Executor implements the suspension primitives underneath Sleep and Wait.
type Executor interface {
	// SuspendUntil returns once the instant has passed, by whatever means
	// the mode supports: blocking the caller, or parking the task and
	// resuming replay after it.
	SuspendUntil(ctx context.Context, workflowID string, at time.Time) error

	// Suspend parks the workflow until a WakeUp.
	Suspend(ctx context.Context, workflowID string) error
}

// Handle tracks a started workflow execution.
type Handle struct {
	// WorkflowID identifies the workflow row.
	WorkflowID string

	// TaskID identifies the queued run task in pool mode, empty otherwise.
	TaskID string

	wait func(ctx context.Context) ([]byte, error)
}

// Result blocks until the workflow finishes and returns its encoded output.
// Pool-mode results are consumed from the store on read: call it once.
func (h *Handle) Result(ctx context.Context) ([]byte, error) {
	return h.wait(ctx)
}
