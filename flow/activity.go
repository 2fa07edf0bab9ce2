package flow

import (
	"context"
	"fmt"

	"github.com/flowstate-go/flowstate/flow/codec"
	"github.com/flowstate-go/flowstate/flow/emit"
	"github.com/flowstate-go/flowstate/flow/store"
	"github.com/flowstate-go/flowstate/flow/task"
)

// Activity is a memoized step of a workflow. Each call inside a running
// workflow takes the next step ordinal k and looks up (workflow, "name#k",
// input) in the store: a hit replays the recorded output without running
// the body, a miss runs the body and records the output on success. Failed
// bodies record nothing, so a cached result always represents an outcome
// that really happened.
//
// Replay depends on the workflow making the same activity calls in the same
// order with the same inputs on every run. The engine does not detect
// divergence; it trusts the ordinals to line up.
type Activity[In, Out any] struct {
	name  string
	fn    func(ctx context.Context, in In) (Out, error)
	codec codec.Codec
}

// NewActivity promotes fn under its runtime-derived name.
func NewActivity[In, Out any](fn func(ctx context.Context, in In) (Out, error)) *Activity[In, Out] {
	return NewNamedActivity(task.FuncName(fn), fn)
}

// NewNamedActivity promotes fn under an explicit stable name. Recorded
// outputs are keyed by it, so renaming invalidates in-flight workflows'
// memos.
func NewNamedActivity[In, Out any](name string, fn func(ctx context.Context, in In) (Out, error)) *Activity[In, Out] {
	return &Activity[In, Out]{name: name, fn: fn, codec: codec.Default}
}

// WithCodec overrides the payload codec and returns the same Activity.
func (a *Activity[In, Out]) WithCodec(c codec.Codec) *Activity[In, Out] {
	a.codec = c
	return a
}

// Name returns the activity's registered name, without the step ordinal.
func (a *Activity[In, Out]) Name() string { return a.name }

// Call runs the activity inside the current workflow, replaying the
// recorded output when this step already ran. Outside a workflow it fails
// with ErrNoWorkflow.
func (a *Activity[In, Out]) Call(ctx context.Context, in In) (Out, error) {
	var zero Out
	fr, ok := currentFrame(ctx)
	if !ok {
		return zero, fmt.Errorf("activity %q: %w", a.name, ErrNoWorkflow)
	}
	env, err := EnvFrom(ctx)
	if err != nil {
		return zero, err
	}
	input, err := a.codec.Marshal(in)
	if err != nil {
		return zero, err
	}

	step := fr.next()
	key := fmt.Sprintf("%s#%d", a.name, step)

	memo, ok, err := env.Store.Activities().MayFindOne(ctx, fr.workflowID, key, input)
	if err != nil {
		return zero, err
	}
	if ok {
		env.Emitter.Emit(emit.Event{WorkflowID: fr.workflowID, Step: step, Name: a.name, Msg: "activity_hit"})
		return codec.Decode[Out](a.codec, memo.Output)
	}

	out, err := a.fn(ctx, in)
	if err != nil {
		return zero, err
	}
	output, err := a.codec.Marshal(out)
	if err != nil {
		return zero, err
	}
	if err := env.Store.Activities().Save(ctx, store.Activity{
		WorkflowID: fr.workflowID,
		Name:       key,
		Input:      input,
		Output:     output,
	}); err != nil {
		return zero, fmt.Errorf("failed to record activity %q: %w", key, err)
	}
	env.Emitter.Emit(emit.Event{WorkflowID: fr.workflowID, Step: step, Name: a.name, Msg: "activity_run"})
	return out, nil
}
