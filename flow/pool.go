package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowstate-go/flowstate/flow/codec"
	"github.com/flowstate-go/flowstate/flow/store"
	"github.com/flowstate-go/flowstate/flow/task"
)

// PoolRunner dispatches workflows as durable tasks: creation and execution
// are claimed by workers, and results travel back through the store. Client
// and workers share nothing but the store, so either side can crash and
// restart without losing the workflow.
type PoolRunner struct {
	queue *task.Queue
	codec codec.Codec
}

// NewPoolRunner creates the client-side runner of pool mode.
func NewPoolRunner(q *task.Queue, c codec.Codec) *PoolRunner {
	if c == nil {
		c = codec.Default
	}
	return &PoolRunner{queue: q, codec: c}
}

// Start enqueues the workflow's create task, waits for the id, then
// enqueues the run task and returns without waiting for it.
func (r *PoolRunner) Start(ctx context.Context, wf Target, input []byte) (*Handle, error) {
	createTask, err := r.queue.Enqueue(ctx, wf.Name()+"._create", input, time.Now())
	if err != nil {
		return nil, err
	}
	res, err := r.queue.GetResult(ctx, createTask.ID)
	if err != nil {
		return nil, err
	}
	if res.Failed() {
		return nil, &task.ResultError{TaskID: createTask.ID, Msg: res.Error}
	}
	workflowID, err := codec.Decode[string](r.codec, res.Result)
	if err != nil {
		return nil, err
	}

	encodedID, err := r.codec.Marshal(workflowID)
	if err != nil {
		return nil, err
	}
	runTask, err := r.queue.Enqueue(ctx, wf.Name()+"._run", encodedID, time.Now())
	if err != nil {
		return nil, err
	}

	q := r.queue
	return &Handle{
		WorkflowID: workflowID,
		TaskID:     runTask.ID,
		wait: func(ctx context.Context) ([]byte, error) {
			res, err := q.GetResult(ctx, runTask.ID)
			if err != nil {
				return nil, err
			}
			if res.Failed() {
				return nil, &task.ResultError{TaskID: runTask.ID, Msg: res.Error}
			}
			return res.Result, nil
		},
	}, nil
}

// Run enqueues the workflow's run task and blocks for its result. The body
// executes inline on whichever worker claims the task.
func (r *PoolRunner) Run(ctx context.Context, wf Target, input []byte) ([]byte, error) {
	t, err := r.queue.Enqueue(ctx, wf.Name()+".run", input, time.Now())
	if err != nil {
		return nil, err
	}
	res, err := r.queue.GetResult(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if res.Failed() {
		return nil, &task.ResultError{TaskID: t.ID, Msg: res.Error}
	}
	return res.Result, nil
}

// WakeUp finds the workflow's parked run task by its encoded id and returns
// it to the schedule. No parked task is fine: the workflow is either
// between waits or already done, and the signal row alone satisfies its
// next check.
func (r *PoolRunner) WakeUp(ctx context.Context, workflowID string) error {
	encodedID, err := r.codec.Marshal(workflowID)
	if err != nil {
		return err
	}
	t, err := r.queue.FindByInput(ctx, "._run", encodedID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find run task for workflow %q: %w", workflowID, err)
	}
	return r.queue.Wakeup(ctx, t.ID)
}

// PoolExecutor surfaces suspension as task.Suspend errors for the worker
// loop to translate into queue state. Env.Worker installs it.
type PoolExecutor struct{}

// SuspendUntil parks the task until the instant. Once the instant has
// passed it returns immediately, so the replay of a re-claimed task moves
// through the sleep instead of parking again.
func (PoolExecutor) SuspendUntil(ctx context.Context, workflowID string, at time.Time) error {
	if time.Now().Before(at) {
		return task.SuspendUntil(at)
	}
	return nil
}

// Suspend parks the task until an external Wakeup.
func (PoolExecutor) Suspend(ctx context.Context, workflowID string) error {
	return &task.Suspend{}
}
