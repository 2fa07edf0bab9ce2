package flow

import (
	"context"
	"time"

	"github.com/flowstate-go/flowstate/flow/store"
)

// sleepTarget memoizes the wake instant, so a replay keeps the original
// deadline instead of restarting the clock.
var sleepTarget = NewNamedActivity("_timestamp_for_duration", func(ctx context.Context, d time.Duration) (float64, error) {
	return store.Epoch(time.Now().Add(d)), nil
})

// sleepUntil waits out the instant through the executor. The body records a
// result only once the instant has passed: a pool-mode suspend leaves no
// memo, so the re-claimed task's replay runs it again and moves through.
var sleepUntil = NewNamedActivity("_sleep_until", func(ctx context.Context, target float64) (bool, error) {
	env, err := EnvFrom(ctx)
	if err != nil {
		return false, err
	}
	workflowID, _ := CurrentWorkflowID(ctx)
	if err := env.Executor.SuspendUntil(ctx, workflowID, store.FromEpoch(target)); err != nil {
		return false, err
	}
	return true, nil
})

// Sleep pauses the workflow for d, durably. The deadline is memoized on the
// first pass, so a crash, restart, or suspension never extends it, and a
// replay after the deadline continues without sleeping at all.
func Sleep(ctx context.Context, d time.Duration) error {
	target, err := sleepTarget.Call(ctx, d)
	if err != nil {
		return err
	}
	_, err = sleepUntil.Call(ctx, target)
	return err
}
