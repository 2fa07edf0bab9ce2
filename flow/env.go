package flow

import (
	"context"

	"github.com/flowstate-go/flowstate/flow/codec"
	"github.com/flowstate-go/flowstate/flow/emit"
	"github.com/flowstate-go/flowstate/flow/store"
	"github.com/flowstate-go/flowstate/flow/task"
)

// Env is the environment workflows execute in: storage, queue, and the
// runner/executor pair that decides where bodies run and how they suspend.
// It rides on the context, so installing a modified copy with WithEnv
// overrides it for one scope the way the direct runner swaps executors for
// an inline run.
type Env struct {
	// Store persists workflows, activities, signals, and tasks.
	Store store.Store

	// Queue carries workflow tasks in pool mode. Nil in the other modes.
	Queue *task.Queue

	// Runner dispatches Workflow.Run and Workflow.Start.
	Runner Runner

	// Executor implements the suspension primitives behind Sleep and Wait.
	Executor Executor

	// Emitter receives engine lifecycle events. Never nil.
	Emitter emit.Emitter

	// Codec encodes engine-level payloads such as workflow ids and signal
	// contents. Workflows and activities carry their own for user values.
	Codec codec.Codec
}

// NewEnv returns a direct-mode environment over the store: workflows run
// inline on the caller, sleeps block, and Start is unsupported.
func NewEnv(st store.Store) *Env {
	return &Env{
		Store:    st,
		Runner:   NewDirectRunner(),
		Executor: DirectExecutor{},
		Emitter:  emit.NewNullEmitter(),
		Codec:    codec.Default,
	}
}

// Threaded returns a copy of the environment that starts workflows on
// background goroutines with in-memory suspend and wake.
func (e *Env) Threaded() *Env {
	c := *e
	c.Runner = NewThreadRunner()
	return &c
}

// Pooled returns a copy of the environment that dispatches workflows as
// durable tasks on the queue: the client side of pool mode.
func (e *Env) Pooled(q *task.Queue) *Env {
	c := *e
	c.Queue = q
	c.Runner = NewPoolRunner(q, e.Codec)
	return &c
}

// Worker returns a copy of the environment for pool-mode workers: claimed
// workflow tasks execute inline, and suspension surfaces as a task.Suspend
// for the worker loop to translate into queue state.
func (e *Env) Worker(q *task.Queue) *Env {
	c := *e
	c.Queue = q
	c.Runner = NewDirectRunner()
	c.Executor = PoolExecutor{}
	return &c
}

// WithEmitter returns a copy of the environment emitting to em.
func (e *Env) WithEmitter(em emit.Emitter) *Env {
	c := *e
	if em == nil {
		em = emit.NewNullEmitter()
	}
	c.Emitter = em
	return &c
}

type envKey struct{}

// WithEnv installs env on the context for every engine operation below it.
func WithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// EnvFrom returns the environment installed on ctx, or ErrNoEnv.
func EnvFrom(ctx context.Context) (*Env, error) {
	env, ok := ctx.Value(envKey{}).(*Env)
	if !ok {
		return nil, ErrNoEnv
	}
	return env, nil
}
