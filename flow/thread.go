package flow

import (
	"context"
	"sync"
	"time"
)

// ThreadRunner starts each workflow on its own goroutine. Suspended
// workflows park in memory and WakeUp releases them, so signal rendezvous
// resolves inside the process without a queue.
type ThreadRunner struct {
	wake *wakeRegistry
}

// NewThreadRunner creates a goroutine-per-workflow runner.
func NewThreadRunner() *ThreadRunner {
	return &ThreadRunner{wake: newWakeRegistry()}
}

// Start creates the workflow row, then runs the body on a new goroutine.
// The goroutine inherits the caller's environment but not its cancellation:
// a started workflow outlives the call that started it.
func (r *ThreadRunner) Start(ctx context.Context, wf Target, input []byte) (*Handle, error) {
	env, err := EnvFrom(ctx)
	if err != nil {
		return nil, err
	}
	workflowID, err := wf.Create(ctx, input)
	if err != nil {
		return nil, err
	}

	child := *env
	child.Executor = &ThreadExecutor{wake: r.wake}
	runCtx := WithEnv(context.WithoutCancel(ctx), &child)

	done := make(chan struct{})
	var out []byte
	var runErr error
	go func() {
		defer close(done)
		out, runErr = wf.Execute(runCtx, workflowID)
	}()

	return &Handle{
		WorkflowID: workflowID,
		wait: func(ctx context.Context) ([]byte, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-done:
				return out, runErr
			}
		},
	}, nil
}

// Run starts the workflow and blocks for its result.
func (r *ThreadRunner) Run(ctx context.Context, wf Target, input []byte) ([]byte, error) {
	h, err := r.Start(ctx, wf, input)
	if err != nil {
		return nil, err
	}
	return h.Result(ctx)
}

// WakeUp releases the workflow's park, if it holds one.
func (r *ThreadRunner) WakeUp(ctx context.Context, workflowID string) error {
	r.wake.wake(workflowID)
	return nil
}

// ThreadExecutor parks suspended workflows on in-memory channels owned by
// the runner that started them.
type ThreadExecutor struct {
	wake *wakeRegistry
}

func (e *ThreadExecutor) SuspendUntil(ctx context.Context, workflowID string, at time.Time) error {
	return DirectExecutor{}.SuspendUntil(ctx, workflowID, at)
}

// Suspend parks until WakeUp or the next poll tick. The tick covers a wake
// that lands between the caller's last signal check and the park.
func (e *ThreadExecutor) Suspend(ctx context.Context, workflowID string) error {
	return e.wake.wait(ctx, workflowID)
}

const wakePoll = 100 * time.Millisecond

// wakeRegistry hands one channel per parked workflow between Suspend and
// WakeUp.
type wakeRegistry struct {
	mu    sync.Mutex
	parks map[string]chan struct{}
}

func newWakeRegistry() *wakeRegistry {
	return &wakeRegistry{parks: make(map[string]chan struct{})}
}

func (w *wakeRegistry) wait(ctx context.Context, workflowID string) error {
	w.mu.Lock()
	ch, ok := w.parks[workflowID]
	if !ok {
		ch = make(chan struct{})
		w.parks[workflowID] = ch
	}
	w.mu.Unlock()

	timer := time.NewTimer(wakePoll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	case <-timer.C:
		return nil
	}
}

func (w *wakeRegistry) wake(workflowID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ch, ok := w.parks[workflowID]; ok {
		close(ch)
		delete(w.parks, workflowID)
	}
}
