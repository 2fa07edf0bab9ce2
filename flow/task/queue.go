// Package task implements a durable task queue over the store.
//
// Functions are enqueued by name with encoded inputs, workers claim and run
// them, and results travel back through the store, so tasks survive process
// restarts on both sides. A retry policy governs failures and an explicit
// Suspend signal parks tasks without consuming retries.
package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowstate-go/flowstate/flow/codec"
	"github.com/flowstate-go/flowstate/flow/store"
)

const (
	// DefaultQueueID is the queue runners and workers share unless
	// configured otherwise.
	DefaultQueueID = "tasks"

	// pollInterval is how often blocking operations re-check the store.
	pollInterval = 100 * time.Millisecond
)

// ErrEmpty is returned by the non-blocking result reads when no result has
// been recorded yet. Distinct from store.ErrNotFound: the task may well
// exist, it just has not finished.
var ErrEmpty = errors.New("no result recorded yet")

// ResultError is a failure recorded by the worker that ran the task. It
// carries the error message across process boundaries; the original error
// value stays on the worker side.
type ResultError struct {
	TaskID string
	Msg    string
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("task failed: %s", e.Msg)
}

// Queue enqueues tasks and hands results between callers and workers. All
// state lives in the store; a Queue value itself is cheap and stateless.
type Queue struct {
	tasks store.Tasks
	id    string
	poll  time.Duration
	now   func() time.Time
}

// NewQueue creates a queue over the store's task repository. An empty
// queueID selects DefaultQueueID.
func NewQueue(tasks store.Tasks, queueID string) *Queue {
	if queueID == "" {
		queueID = DefaultQueueID
	}
	return &Queue{
		tasks: tasks,
		id:    queueID,
		poll:  pollInterval,
		now:   time.Now,
	}
}

// ID returns the queue identifier tasks are enqueued under.
func (q *Queue) ID() string { return q.id }

// Enqueue schedules a task by name with pre-encoded input, due at the given
// instant. It is the untyped layer beneath Call and friends; callers that
// hold a *Func should prefer those.
func (q *Queue) Enqueue(ctx context.Context, name string, input []byte, at time.Time) (store.Task, error) {
	return q.put(ctx, store.Task{Name: name, Timestamp: store.Epoch(at), Input: input})
}

func (q *Queue) put(ctx context.Context, t store.Task) (store.Task, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Timestamp == 0 {
		t.Timestamp = store.Epoch(q.now())
	}
	t.QueueID = q.id
	t.Status = store.TaskScheduled
	if err := q.tasks.Add(ctx, t); err != nil {
		return store.Task{}, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return t, nil
}

// Next blocks until a task on this queue is due, claims it, and returns it.
func (q *Queue) Next(ctx context.Context) (store.Task, error) {
	for {
		t, err := q.tasks.NextTask(ctx, q.id, store.Epoch(q.now()))
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return store.Task{}, err
		}
		if err := sleep(ctx, q.poll); err != nil {
			return store.Task{}, err
		}
	}
}

// GetResult blocks until a result for the task is recorded, then consumes
// it: the task row and the result row are both removed.
func (q *Queue) GetResult(ctx context.Context, taskID string) (store.TaskResult, error) {
	for {
		res, err := q.TryGetResult(ctx, taskID)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrEmpty) {
			return store.TaskResult{}, err
		}
		if err := sleep(ctx, q.poll); err != nil {
			return store.TaskResult{}, err
		}
	}
}

// TryGetResult consumes the task's result like GetResult, but fails
// immediately with ErrEmpty when none has been recorded.
func (q *Queue) TryGetResult(ctx context.Context, taskID string) (store.TaskResult, error) {
	res, err := q.tasks.GetResult(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return store.TaskResult{}, ErrEmpty
	}
	return res, err
}

// SetResult records a success result for the task.
func (q *Queue) SetResult(ctx context.Context, taskID string, result []byte) error {
	return q.tasks.SetResult(ctx, store.TaskResult{TaskID: taskID, Result: result})
}

// SetError records a failure result for the task.
func (q *Queue) SetError(ctx context.Context, taskID, msg string) error {
	return q.tasks.SetResult(ctx, store.TaskResult{TaskID: taskID, Error: msg})
}

// Suspend parks the task until Wakeup.
func (q *Queue) Suspend(ctx context.Context, taskID string) error {
	return q.tasks.Suspend(ctx, taskID)
}

// Wakeup returns a suspended task to the schedule.
func (q *Queue) Wakeup(ctx context.Context, taskID string) error {
	return q.tasks.Wakeup(ctx, taskID)
}

// Reschedule re-enqueues a claimed task to run at the given instant, keeping
// its retry count.
func (q *Queue) Reschedule(ctx context.Context, t store.Task, at time.Time) error {
	t.Timestamp = store.Epoch(at)
	return q.tasks.Add(ctx, t)
}

// Retry re-enqueues a claimed task after delay, bumping its retry count.
func (q *Queue) Retry(ctx context.Context, t store.Task, delay time.Duration) error {
	t.RetryCount++
	t.Timestamp = store.Epoch(q.now().Add(delay))
	return q.tasks.Add(ctx, t)
}

// FindByInput locates a task by name suffix and exact input. Runners use it
// to find a workflow's parked run task when a signal arrives.
func (q *Queue) FindByInput(ctx context.Context, nameSuffix string, input []byte) (store.Task, error) {
	return q.tasks.FindByInput(ctx, nameSuffix, input)
}

// Pending is a handle on an enqueued task's eventual result.
type Pending[Out any] struct {
	TaskID string
	queue  *Queue
	codec  codec.Codec
}

// Result blocks until the task's result is recorded, then decodes it. A
// failure recorded by the worker comes back as a *ResultError.
func (p *Pending[Out]) Result(ctx context.Context) (Out, error) {
	res, err := p.queue.GetResult(ctx, p.TaskID)
	return p.decode(res, err)
}

// TryResult is the non-blocking Result: it fails immediately with ErrEmpty
// when no result has been recorded yet.
func (p *Pending[Out]) TryResult(ctx context.Context) (Out, error) {
	res, err := p.queue.TryGetResult(ctx, p.TaskID)
	return p.decode(res, err)
}

func (p *Pending[Out]) decode(res store.TaskResult, err error) (Out, error) {
	var zero Out
	if err != nil {
		return zero, err
	}
	if res.Failed() {
		return zero, &ResultError{TaskID: p.TaskID, Msg: res.Error}
	}
	return codec.Decode[Out](p.codec, res.Result)
}

// Call enqueues f with in, due immediately.
func Call[In, Out any](ctx context.Context, q *Queue, f *Func[In, Out], in In) (*Pending[Out], error) {
	return CallAt(ctx, q, f, q.now(), in)
}

// CallLater enqueues f with in, due after the given delay.
func CallLater[In, Out any](ctx context.Context, q *Queue, f *Func[In, Out], delay time.Duration, in In) (*Pending[Out], error) {
	return CallAt(ctx, q, f, q.now().Add(delay), in)
}

// CallAt enqueues f with in, due at the given instant.
func CallAt[In, Out any](ctx context.Context, q *Queue, f *Func[In, Out], at time.Time, in In) (*Pending[Out], error) {
	input, err := f.codec.Marshal(in)
	if err != nil {
		return nil, err
	}
	t, err := q.put(ctx, store.Task{Name: f.name, Timestamp: store.Epoch(at), Input: input})
	if err != nil {
		return nil, err
	}
	return &Pending[Out]{TaskID: t.ID, queue: q, codec: f.codec}, nil
}

// Execute enqueues f and blocks until a worker returns its result.
func Execute[In, Out any](ctx context.Context, q *Queue, f *Func[In, Out], in In) (Out, error) {
	p, err := Call(ctx, q, f, in)
	if err != nil {
		var zero Out
		return zero, err
	}
	return p.Result(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
