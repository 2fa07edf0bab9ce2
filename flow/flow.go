// Package flow is an embedded durable-execution engine: workflows are plain
// Go functions whose activity calls are memoized in a store, so a stopped or
// crashed workflow re-run with the same input replays to exactly where it
// left off instead of redoing completed work.
//
// A function becomes durable by promotion:
//
//	format := flow.NewNamedActivity("format", func(ctx context.Context, name string) (string, error) {
//	    return "hi " + name, nil
//	})
//
//	greet := flow.NewNamedWorkflow("greet", func(ctx context.Context, name string) (string, error) {
//	    return format.Call(ctx, name)
//	})
//
// Workflows run through the environment installed on the context, which
// selects storage and an execution mode:
//
//	st, _ := store.NewSQLite("./app.db")
//	ctx := flow.WithEnv(context.Background(), flow.NewEnv(st))
//	out, err := greet.Run(ctx, "world")
//
// Direct mode runs the body inline and blocks for sleeps. Threaded mode
// starts workflows on goroutines with in-memory suspension. Pool mode
// dispatches workflows as durable tasks claimed by workers, which is the
// mode that survives process crashes; see Env.Pooled and Env.Worker.
//
// Inside a workflow body, Sleep, Wait, and EmitSignal are the durable
// equivalents of sleeping and channel sends.
package flow

import "errors"

// ErrNoWorkflow is returned when an engine primitive is used outside a
// running workflow.
var ErrNoWorkflow = errors.New("no current workflow")

// ErrUnsupported is returned by runner and executor operations the active
// mode cannot perform, such as starting a background workflow with the
// direct runner.
var ErrUnsupported = errors.New("operation not supported in this mode")

// ErrNoEnv is returned when an operation needs an environment and the
// context carries none. Install one with WithEnv.
var ErrNoEnv = errors.New("no environment on context")
