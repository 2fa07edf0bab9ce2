package flow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSleepBlocksDirect(t *testing.T) {
	ctx, _ := newTestEnv(t)

	wf := NewNamedWorkflow("pause", func(ctx context.Context, d time.Duration) (bool, error) {
		if err := Sleep(ctx, d); err != nil {
			return false, err
		}
		return true, nil
	})

	// Test 1: direct mode blocks through the full duration
	start := time.Now()
	out, err := wf.Run(ctx, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out {
		t.Error("expected the body to finish")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected at least 50ms, slept %v", elapsed)
	}
}

func TestSleepReplayKeepsDeadline(t *testing.T) {
	ctx, env := newTestEnv(t)

	var attempts atomic.Int32
	var workflowID string
	wf := NewNamedWorkflow("pause.retry", func(ctx context.Context, d time.Duration) (bool, error) {
		workflowID, _ = CurrentWorkflowID(ctx)
		if err := Sleep(ctx, d); err != nil {
			return false, err
		}
		if attempts.Add(1) == 1 {
			return false, errors.New("flaky")
		}
		return true, nil
	})

	// Test 1: the first run sleeps, then fails past the deadline
	if _, err := wf.Run(ctx, 60*time.Millisecond); err == nil {
		t.Fatal("expected the first run to fail")
	}

	// Test 2: the replay finds the deadline already passed and returns
	// without sleeping again
	start := time.Now()
	out, err := wf.Run(ctx, 60*time.Millisecond)
	if err != nil {
		t.Fatalf("Run (resume) failed: %v", err)
	}
	if !out {
		t.Error("expected the body to finish")
	}
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("expected a replay without sleeping, took %v", elapsed)
	}

	// Test 3: the wake instant was memoized on the first pass
	input, err := env.Codec.Marshal(60 * time.Millisecond)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if _, ok, _ := env.Store.Activities().MayFindOne(ctx, workflowID, "_timestamp_for_duration#1", input); !ok {
		t.Error("expected a memoized wake instant")
	}
}

func TestDirectExecutorSuspendUntil(t *testing.T) {
	exec := DirectExecutor{}

	// Test 1: a past instant returns immediately
	start := time.Now()
	if err := exec.SuspendUntil(context.Background(), "wf", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("SuspendUntil failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("expected an immediate return, took %v", elapsed)
	}

	// Test 2: cancellation interrupts the block
	waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := exec.SuspendUntil(waitCtx, "wf", time.Now().Add(time.Minute))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}

	// Test 3: Suspend has no waker in this mode
	if err := exec.Suspend(context.Background(), "wf"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}
