package flow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/flowstate-go/flowstate/flow/emit"
)

func TestPrometheusMetricsCounts(t *testing.T) {
	pm := NewPrometheusMetrics(prometheus.NewRegistry())
	em := pm.Emitter()

	em.Emit(emit.Event{Name: "refund", Msg: "workflow_start"})
	em.Emit(emit.Event{Name: "refund", Msg: "workflow_complete"})
	em.Emit(emit.Event{Name: "charge", Msg: "activity_run"})
	em.Emit(emit.Event{Name: "charge", Msg: "activity_hit"})
	em.Emit(emit.Event{Name: "refund.run", Msg: "task_claimed"})
	em.Emit(emit.Event{Name: "refund.run", Msg: "task_completed", Meta: map[string]interface{}{"duration_ms": int64(12)}})
	em.Emit(emit.Event{Msg: "tasks_requeued", Meta: map[string]interface{}{"count": 3}})

	// Test 1: events land in their labeled counters
	if got := testutil.ToFloat64(pm.workflows.WithLabelValues("refund", "started")); got != 1 {
		t.Errorf("expected 1 started workflow, got %v", got)
	}
	if got := testutil.ToFloat64(pm.workflows.WithLabelValues("refund", "completed")); got != 1 {
		t.Errorf("expected 1 completed workflow, got %v", got)
	}
	if got := testutil.ToFloat64(pm.activities.WithLabelValues("charge", "run")); got != 1 {
		t.Errorf("expected 1 run activity, got %v", got)
	}
	if got := testutil.ToFloat64(pm.activities.WithLabelValues("charge", "hit")); got != 1 {
		t.Errorf("expected 1 memo hit, got %v", got)
	}
	if got := testutil.ToFloat64(pm.tasks.WithLabelValues("refund.run", "completed")); got != 1 {
		t.Errorf("expected 1 completed task, got %v", got)
	}
	if got := testutil.ToFloat64(pm.requeued); got != 3 {
		t.Errorf("expected 3 requeued tasks, got %v", got)
	}

	// Test 2: completion durations feed the latency histogram
	if got := testutil.CollectAndCount(pm.taskLatency); got != 1 {
		t.Errorf("expected 1 latency series, got %d", got)
	}

	// Test 3: unknown messages are ignored
	em.Emit(emit.Event{Name: "refund", Msg: "unrelated"})
	if got := testutil.ToFloat64(pm.workflows.WithLabelValues("refund", "started")); got != 1 {
		t.Errorf("expected the counter untouched, got %v", got)
	}

	// Test 4: Disable stops recording, Enable resumes
	pm.Disable()
	em.Emit(emit.Event{Name: "refund", Msg: "workflow_start"})
	if got := testutil.ToFloat64(pm.workflows.WithLabelValues("refund", "started")); got != 1 {
		t.Errorf("expected no recording while disabled, got %v", got)
	}
	pm.Enable()
	em.Emit(emit.Event{Name: "refund", Msg: "workflow_start"})
	if got := testutil.ToFloat64(pm.workflows.WithLabelValues("refund", "started")); got != 2 {
		t.Errorf("expected 2 after re-enabling, got %v", got)
	}
}

func TestPrometheusMetricsEndToEnd(t *testing.T) {
	pm := NewPrometheusMetrics(prometheus.NewRegistry())
	st := newTestStore(t)
	ctx := WithEnv(context.Background(), NewEnv(st).WithEmitter(pm.Emitter()))

	lookup := NewNamedActivity("metrics.lookup", func(_ context.Context, s string) (string, error) {
		return s + "-found", nil
	})
	var attempts atomic.Int32
	wf := NewNamedWorkflow("metrics.flow", func(ctx context.Context, s string) (string, error) {
		out, err := lookup.Call(ctx, s)
		if err != nil {
			return "", err
		}
		if attempts.Add(1) == 1 {
			return "", errors.New("transient")
		}
		return out, nil
	})

	if _, err := wf.Run(ctx, "rec"); err == nil {
		t.Fatal("expected the first run to fail")
	}
	if _, err := wf.Run(ctx, "rec"); err != nil {
		t.Fatalf("Run (resume) failed: %v", err)
	}

	// Test 1: both passes started, one failed, one completed
	if got := testutil.ToFloat64(pm.workflows.WithLabelValues("metrics.flow", "started")); got != 2 {
		t.Errorf("expected 2 started, got %v", got)
	}
	if got := testutil.ToFloat64(pm.workflows.WithLabelValues("metrics.flow", "failed")); got != 1 {
		t.Errorf("expected 1 failed, got %v", got)
	}
	if got := testutil.ToFloat64(pm.workflows.WithLabelValues("metrics.flow", "completed")); got != 1 {
		t.Errorf("expected 1 completed, got %v", got)
	}

	// Test 2: the activity ran once and replayed once
	if got := testutil.ToFloat64(pm.activities.WithLabelValues("metrics.lookup", "run")); got != 1 {
		t.Errorf("expected 1 run, got %v", got)
	}
	if got := testutil.ToFloat64(pm.activities.WithLabelValues("metrics.lookup", "hit")); got != 1 {
		t.Errorf("expected 1 hit, got %v", got)
	}
}
