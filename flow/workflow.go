package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowstate-go/flowstate/flow/codec"
	"github.com/flowstate-go/flowstate/flow/emit"
	"github.com/flowstate-go/flowstate/flow/task"
)

// Workflow is a durable function. Running one writes a workflow row keyed
// by (name, encoded input); activities called inside the body memoize
// against that row, so a stopped workflow re-run with the same input
// replays completed steps from the store instead of redoing them.
//
// In and Out must round-trip through the codec.
//
// Example:
//
//	refund := flow.NewNamedWorkflow("refund", func(ctx context.Context, orderID string) (Receipt, error) {
//	    amount, err := lookupAmount.Call(ctx, orderID)
//	    if err != nil {
//	        return Receipt{}, err
//	    }
//	    return issueRefund.Call(ctx, amount)
//	})
type Workflow[In, Out any] struct {
	name  string
	fn    func(ctx context.Context, in In) (Out, error)
	codec codec.Codec
}

// NewWorkflow promotes fn under its runtime-derived name. Anonymous
// functions get compiler-generated names; prefer NewNamedWorkflow for
// those.
func NewWorkflow[In, Out any](fn func(ctx context.Context, in In) (Out, error)) *Workflow[In, Out] {
	return NewNamedWorkflow(task.FuncName(fn), fn)
}

// NewNamedWorkflow promotes fn under an explicit stable name. The name keys
// deduplication rows and worker task routing, so renaming it orphans
// in-flight workflows.
func NewNamedWorkflow[In, Out any](name string, fn func(ctx context.Context, in In) (Out, error)) *Workflow[In, Out] {
	return &Workflow[In, Out]{name: name, fn: fn, codec: codec.Default}
}

// WithCodec overrides the payload codec and returns the same Workflow.
func (w *Workflow[In, Out]) WithCodec(c codec.Codec) *Workflow[In, Out] {
	w.codec = c
	return w
}

// Name returns the workflow's registered name.
func (w *Workflow[In, Out]) Name() string { return w.name }

// Run executes the workflow to completion through the environment's runner
// and returns its output.
func (w *Workflow[In, Out]) Run(ctx context.Context, in In) (Out, error) {
	var zero Out
	env, err := EnvFrom(ctx)
	if err != nil {
		return zero, err
	}
	input, err := w.codec.Marshal(in)
	if err != nil {
		return zero, err
	}
	out, err := env.Runner.Run(ctx, w, input)
	if err != nil {
		return zero, err
	}
	return codec.Decode[Out](w.codec, out)
}

// Start begins the workflow through the environment's runner and returns a
// handler for its result.
func (w *Workflow[In, Out]) Start(ctx context.Context, in In) (*Handler[Out], error) {
	env, err := EnvFrom(ctx)
	if err != nil {
		return nil, err
	}
	input, err := w.codec.Marshal(in)
	if err != nil {
		return nil, err
	}
	h, err := env.Runner.Start(ctx, w, input)
	if err != nil {
		return nil, err
	}
	return &Handler[Out]{handle: h, codec: w.codec}, nil
}

// Scope opens the workflow as a frame without running its body: activities
// called with the returned context memoize against this workflow. The close
// function settles the row, COMPLETED for a nil cause and STOPPED
// otherwise, so a failed scope can resume by opening it again with the same
// input.
func (w *Workflow[In, Out]) Scope(ctx context.Context, in In) (context.Context, func(cause error) error, error) {
	env, err := EnvFrom(ctx)
	if err != nil {
		return ctx, nil, err
	}
	input, err := w.codec.Marshal(in)
	if err != nil {
		return ctx, nil, err
	}
	row, err := env.Store.Workflows().GetOrCreate(ctx, w.name, input)
	if err != nil {
		return ctx, nil, err
	}
	env.Emitter.Emit(emit.Event{WorkflowID: row.ID, Name: w.name, Msg: "workflow_start"})

	settle := func(cause error) error {
		if cause != nil {
			return env.Store.Workflows().Failed(ctx, row.ID)
		}
		return env.Store.Workflows().Complete(ctx, row.ID)
	}
	return pushFrame(ctx, row.ID), settle, nil
}

// Tasks returns the task bindings a worker registers to execute this
// workflow: "<name>._create", "<name>._run", and "<name>.run".
func (w *Workflow[In, Out]) Tasks() []task.Handler {
	return []task.Handler{
		task.NewNamedFunc(w.name+"._create", w.create).WithCodec(w.codec),
		task.NewNamedFunc(w.name+"._run", w.execute).WithCodec(w.codec),
		task.NewNamedFunc(w.name+".run", w.Run).WithCodec(w.codec),
	}
}

// Create obtains or revives the workflow row for pre-encoded input and
// returns its id. Part of the untyped Target surface runners dispatch on.
func (w *Workflow[In, Out]) Create(ctx context.Context, input []byte) (string, error) {
	env, err := EnvFrom(ctx)
	if err != nil {
		return "", err
	}
	row, err := env.Store.Workflows().GetOrCreate(ctx, w.name, input)
	if err != nil {
		return "", err
	}
	env.Emitter.Emit(emit.Event{WorkflowID: row.ID, Name: w.name, Msg: "workflow_start"})
	return row.ID, nil
}

// Execute runs the body against an existing workflow row and returns the
// encoded output. Part of the untyped Target surface.
func (w *Workflow[In, Out]) Execute(ctx context.Context, workflowID string) ([]byte, error) {
	out, err := w.execute(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return w.codec.Marshal(out)
}

func (w *Workflow[In, Out]) create(ctx context.Context, in In) (string, error) {
	input, err := w.codec.Marshal(in)
	if err != nil {
		return "", err
	}
	return w.Create(ctx, input)
}

// execute loads the row, runs the body under a fresh frame, and settles the
// workflow's status. A task.Suspend from the body passes through untouched:
// a parked workflow is still RUNNING.
func (w *Workflow[In, Out]) execute(ctx context.Context, workflowID string) (Out, error) {
	var zero Out
	env, err := EnvFrom(ctx)
	if err != nil {
		return zero, err
	}
	row, err := env.Store.Workflows().Get(ctx, workflowID)
	if err != nil {
		return zero, fmt.Errorf("failed to load workflow %q: %w", workflowID, err)
	}
	in, err := codec.Decode[In](w.codec, row.Input)
	if err != nil {
		return zero, err
	}

	out, err := w.fn(pushFrame(ctx, workflowID), in)
	if err != nil {
		var susp *task.Suspend
		if errors.As(err, &susp) {
			env.Emitter.Emit(emit.Event{WorkflowID: workflowID, Name: w.name, Msg: "workflow_suspended"})
			return zero, err
		}
		env.Emitter.Emit(emit.Event{
			WorkflowID: workflowID,
			Name:       w.name,
			Msg:        "workflow_failed",
			Meta:       map[string]interface{}{"error": err.Error()},
		})
		if serr := env.Store.Workflows().Failed(ctx, workflowID); serr != nil {
			return zero, serr
		}
		return zero, err
	}

	if err := env.Store.Workflows().Complete(ctx, workflowID); err != nil {
		return zero, err
	}
	env.Emitter.Emit(emit.Event{WorkflowID: workflowID, Name: w.name, Msg: "workflow_complete"})
	return out, nil
}

// Handler is a typed handle on a started workflow.
type Handler[Out any] struct {
	handle *Handle
	codec  codec.Codec
}

// WorkflowID identifies the started workflow row.
func (h *Handler[Out]) WorkflowID() string { return h.handle.WorkflowID }

// TaskID identifies the queued run task in pool mode, empty otherwise.
func (h *Handler[Out]) TaskID() string { return h.handle.TaskID }

// Result blocks until the workflow finishes and returns its decoded output.
// Pool-mode results are consumed from the store on read: call it once.
func (h *Handler[Out]) Result(ctx context.Context) (Out, error) {
	var zero Out
	out, err := h.handle.Result(ctx)
	if err != nil {
		return zero, err
	}
	return codec.Decode[Out](h.codec, out)
}
