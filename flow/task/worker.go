package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flowstate-go/flowstate/flow/emit"
	"github.com/flowstate-go/flowstate/flow/store"
)

const defaultSweepInterval = time.Minute

// WorkerOptions configures a Worker. The zero value is usable: one claim
// loop, no event emission, no stale-task sweeper.
type WorkerOptions struct {
	// Emitter receives task lifecycle events. Nil discards them.
	Emitter emit.Emitter

	// Concurrency is the number of parallel claim loops. Zero means one.
	Concurrency int

	// StaleAfter is how long a claimed task may stay RUNNING before the
	// sweeper assumes its worker crashed and reschedules it. Zero disables
	// the sweeper.
	StaleAfter time.Duration

	// SweepInterval is how often the sweeper scans. Zero means one minute.
	SweepInterval time.Duration
}

// Worker claims tasks from a queue and runs their registered handlers. A
// handler error consults the handler's retry policy; a *Suspend error parks
// or reschedules the task without recording a result.
type Worker struct {
	queue    *Queue
	registry *Registry

	emitter       emit.Emitter
	concurrency   int
	staleAfter    time.Duration
	sweepInterval time.Duration
	now           func() time.Time
}

// NewWorker creates a worker over the queue and handler registry.
func NewWorker(queue *Queue, registry *Registry, opts WorkerOptions) *Worker {
	emitter := opts.Emitter
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sweepInterval := opts.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	return &Worker{
		queue:         queue,
		registry:      registry,
		emitter:       emitter,
		concurrency:   concurrency,
		staleAfter:    opts.StaleAfter,
		sweepInterval: sweepInterval,
		now:           time.Now,
	}
}

// Run claims and executes tasks until ctx is canceled. It always returns a
// non-nil error; after a clean shutdown that error is ctx.Err().
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			return w.loop(ctx)
		})
	}
	if w.staleAfter > 0 {
		g.Go(func() error {
			return w.sweep(ctx)
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		t, err := w.queue.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("failed to claim task: %w", err)
		}
		if err := w.runTask(ctx, t); err != nil {
			return err
		}
	}
}

// runTask executes one claimed task. The returned error is a queue or store
// failure; handler errors are absorbed into retries or failure results.
func (w *Worker) runTask(ctx context.Context, t store.Task) error {
	w.emit(t, "task_claimed", nil)

	handler, ok := w.registry.Lookup(t.Name)
	if !ok {
		msg := fmt.Sprintf("no handler registered for task %q", t.Name)
		w.emit(t, "task_failed", map[string]interface{}{"error": msg})
		return w.queue.SetError(ctx, t.ID, msg)
	}

	start := w.now()
	out, runErr := handler.Run(ctx, t.Input)
	elapsed := w.now().Sub(start)

	// Events go out before the store write lands, so anyone unblocked by the
	// result already sees the full lifecycle in the stream.
	if runErr == nil {
		w.emit(t, "task_completed", map[string]interface{}{"duration_ms": elapsed.Milliseconds()})
		if err := w.queue.SetResult(ctx, t.ID, out); err != nil {
			return fmt.Errorf("failed to record task result: %w", err)
		}
		return nil
	}

	var susp *Suspend
	if errors.As(runErr, &susp) {
		if susp.At == nil {
			if err := w.queue.Suspend(ctx, t.ID); err != nil {
				return fmt.Errorf("failed to suspend task: %w", err)
			}
			w.emit(t, "task_suspended", nil)
			return nil
		}
		if err := w.queue.Reschedule(ctx, t, *susp.At); err != nil {
			return fmt.Errorf("failed to reschedule task: %w", err)
		}
		w.emit(t, "task_suspended", map[string]interface{}{"wake_at": susp.At.Format(time.RFC3339)})
		return nil
	}

	policy := handler.RetryPolicy()
	if policy.ShouldRetry(runErr, t.RetryCount) {
		if err := w.queue.Retry(ctx, t, policy.RetryDelay(t.RetryCount)); err != nil {
			return fmt.Errorf("failed to retry task: %w", err)
		}
		w.emit(t, "task_retried", map[string]interface{}{
			"error":       runErr.Error(),
			"retry_count": t.RetryCount + 1,
		})
		return nil
	}

	w.emit(t, "task_failed", map[string]interface{}{"error": runErr.Error()})
	return w.queue.SetError(ctx, t.ID, runErr.Error())
}

// sweep periodically returns tasks stuck in RUNNING to the schedule.
func (w *Worker) sweep(ctx context.Context) error {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		cutoff := store.Epoch(w.now().Add(-w.staleAfter))
		n, err := w.queue.tasks.RequeueStale(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to requeue stale tasks: %w", err)
		}
		if n > 0 {
			w.emitter.Emit(emit.Event{
				Msg:  "tasks_requeued",
				Meta: map[string]interface{}{"count": n},
			})
		}
	}
}

func (w *Worker) emit(t store.Task, msg string, meta map[string]interface{}) {
	w.emitter.Emit(emit.Event{
		TaskID: t.ID,
		Name:   t.Name,
		Msg:    msg,
		Meta:   meta,
	})
}
