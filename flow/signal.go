package flow

import (
	"context"
	"fmt"
	"reflect"

	"github.com/flowstate-go/flowstate/flow/codec"
	"github.com/flowstate-go/flowstate/flow/emit"
	"github.com/flowstate-go/flowstate/flow/store"
)

// SignalName returns the durable name signals of type S travel under: the
// type's name as reflect reports it ("refund.Approved"). Senders and
// waiters match on it, so both sides must use the same type.
func SignalName[S any]() string {
	return reflect.TypeOf((*S)(nil)).Elem().String()
}

// EmitSignal records a signal for the workflow and wakes it if it is
// parked. Delivery is durable: the row waits in the store until a Wait of
// the same type consumes it, and queued signals are consumed in arrival
// order.
func EmitSignal[S any](ctx context.Context, workflowID string, sig S) error {
	env, err := EnvFrom(ctx)
	if err != nil {
		return err
	}
	name := SignalName[S]()
	content, err := env.Codec.Marshal(sig)
	if err != nil {
		return err
	}
	if err := env.Store.Signals().New(ctx, store.Signal{
		WorkflowID: workflowID,
		Name:       name,
		Content:    content,
	}); err != nil {
		return fmt.Errorf("failed to record signal %q: %w", name, err)
	}
	env.Emitter.Emit(emit.Event{WorkflowID: workflowID, Name: name, Msg: "signal_emitted"})
	return env.Runner.WakeUp(ctx, workflowID)
}

// Wait blocks the workflow until a signal of type S arrives, consuming the
// oldest undelivered one. The wait owns a step ordinal, so a replay
// resolves to the same signal it consumed before. With nothing pending the
// workflow suspends through the executor; in pool mode that surfaces as a
// task.Suspend the body must return upward.
func Wait[S any](ctx context.Context) (S, error) {
	var zero S
	fr, ok := currentFrame(ctx)
	if !ok {
		return zero, fmt.Errorf("wait for %s: %w", SignalName[S](), ErrNoWorkflow)
	}
	env, err := EnvFrom(ctx)
	if err != nil {
		return zero, err
	}

	name := SignalName[S]()
	step := fr.next()
	for {
		sig, ok, err := env.Store.Signals().MayFindOne(ctx, fr.workflowID, name, step)
		if err != nil {
			return zero, err
		}
		if ok {
			env.Emitter.Emit(emit.Event{WorkflowID: fr.workflowID, Step: step, Name: name, Msg: "signal_bound"})
			return codec.Decode[S](env.Codec, sig.Content)
		}
		if err := env.Executor.Suspend(ctx, fr.workflowID); err != nil {
			return zero, err
		}
	}
}
