package flow

import (
	"context"
	"fmt"
	"time"
)

// DirectRunner executes workflows inline on the calling goroutine. It is
// the default mode, and also the runner pool workers use to execute claimed
// ".run" tasks in place.
type DirectRunner struct{}

// NewDirectRunner creates the inline runner.
func NewDirectRunner() *DirectRunner { return &DirectRunner{} }

// Run creates the workflow row and executes the body in place. The executor
// is forced to the blocking one for the span of the call: an inline body
// has no task to park, whatever mode surrounds it.
func (r *DirectRunner) Run(ctx context.Context, wf Target, input []byte) ([]byte, error) {
	env, err := EnvFrom(ctx)
	if err != nil {
		return nil, err
	}
	inline := *env
	inline.Executor = DirectExecutor{}
	ctx = WithEnv(ctx, &inline)

	workflowID, err := wf.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	return wf.Execute(ctx, workflowID)
}

// Start is not available inline: there is no second goroutine to run on.
func (r *DirectRunner) Start(ctx context.Context, wf Target, input []byte) (*Handle, error) {
	return nil, fmt.Errorf("start workflow %q: %w", wf.Name(), ErrUnsupported)
}

// WakeUp is not available inline: nothing can park in this mode.
func (r *DirectRunner) WakeUp(ctx context.Context, workflowID string) error {
	return fmt.Errorf("wake workflow %q: %w", workflowID, ErrUnsupported)
}

// DirectExecutor blocks the calling goroutine. Suspend has no waker in this
// mode, so waiting on a signal that has not arrived yet is an error.
type DirectExecutor struct{}

func (DirectExecutor) SuspendUntil(ctx context.Context, workflowID string, at time.Time) error {
	d := time.Until(at)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (DirectExecutor) Suspend(ctx context.Context, workflowID string) error {
	return fmt.Errorf("wait for a signal in direct mode: %w", ErrUnsupported)
}
