package flow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowstate-go/flowstate/flow/codec"
	"github.com/flowstate-go/flowstate/flow/store"
)

type approval struct {
	By string `json:"by"`
}

func TestSignalName(t *testing.T) {
	// Test 1: the durable name is the type's reflected name
	if got := SignalName[approval](); got != "flow.approval" {
		t.Errorf("expected flow.approval, got %q", got)
	}
}

func TestWaitThreadRendezvous(t *testing.T) {
	st := newTestStore(t)
	ctx := WithEnv(context.Background(), NewEnv(st).Threaded())

	wf := NewNamedWorkflow("review", func(ctx context.Context, doc string) (string, error) {
		first, err := Wait[approval](ctx)
		if err != nil {
			return "", err
		}
		second, err := Wait[approval](ctx)
		if err != nil {
			return "", err
		}
		return doc + ":" + first.By + "," + second.By, nil
	})

	h, err := wf.Start(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Test 1: signals release the waits in arrival order
	if err := EmitSignal(ctx, h.WorkflowID(), approval{By: "ana"}); err != nil {
		t.Fatalf("EmitSignal failed: %v", err)
	}
	if err := EmitSignal(ctx, h.WorkflowID(), approval{By: "bo"}); err != nil {
		t.Fatalf("EmitSignal failed: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := h.Result(waitCtx)
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if out != "doc-1:ana,bo" {
		t.Errorf("expected doc-1:ana,bo, got %q", out)
	}

	// Test 2: each consumed signal stays bound to its wait's step
	sig, ok, err := st.Signals().MayFindOne(ctx, h.WorkflowID(), "flow.approval", 1)
	if err != nil || !ok {
		t.Fatalf("expected a bound signal, got ok=%v err=%v", ok, err)
	}
	first, err := codec.Decode[approval](codec.Default, sig.Content)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if first.By != "ana" {
		t.Errorf("expected ana at step 1, got %q", first.By)
	}
}

func TestWaitBindsPendingSignal(t *testing.T) {
	st := newTestStore(t)
	ctx := WithEnv(context.Background(), NewEnv(st).Threaded())

	wf := NewNamedWorkflow("review.pending", func(ctx context.Context, doc string) (string, error) {
		a, err := Wait[approval](ctx)
		if err != nil {
			return "", err
		}
		return a.By, nil
	})

	// Test 1: a signal emitted before the wait satisfies it without parking
	scopeCtx, settle, err := wf.Scope(ctx, "doc-2")
	if err != nil {
		t.Fatalf("Scope failed: %v", err)
	}
	workflowID, _ := CurrentWorkflowID(scopeCtx)
	if err := EmitSignal(ctx, workflowID, approval{By: "cleo"}); err != nil {
		t.Fatalf("EmitSignal failed: %v", err)
	}
	got, err := Wait[approval](scopeCtx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if got.By != "cleo" {
		t.Errorf("expected cleo, got %q", got.By)
	}
	if err := settle(nil); err != nil {
		t.Fatalf("settle failed: %v", err)
	}
}

func TestWaitDirectUnsupported(t *testing.T) {
	ctx, env := newTestEnv(t)

	var workflowID string
	wf := NewNamedWorkflow("stuck", func(ctx context.Context, s string) (string, error) {
		workflowID, _ = CurrentWorkflowID(ctx)
		a, err := Wait[approval](ctx)
		if err != nil {
			return "", err
		}
		return a.By, nil
	})

	// Test 1: with nothing pending, direct mode cannot park
	if _, err := wf.Run(ctx, "x"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}

	// Test 2: the failed wait stopped the row
	row, err := env.Store.Workflows().Get(ctx, workflowID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if row.Status != store.WorkflowStopped {
		t.Errorf("expected STOPPED, got %s", row.Status)
	}
}

func TestWaitOutsideWorkflow(t *testing.T) {
	ctx, _ := newTestEnv(t)

	// Test 1: waiting with no workflow frame is an error
	if _, err := Wait[approval](ctx); !errors.Is(err, ErrNoWorkflow) {
		t.Errorf("expected ErrNoWorkflow, got %v", err)
	}
}

func TestWaitReplayBindsSameSignal(t *testing.T) {
	st := newTestStore(t)
	ctx := WithEnv(context.Background(), NewEnv(st).Threaded())

	var attempts atomic.Int32
	wf := NewNamedWorkflow("review.replay", func(ctx context.Context, doc string) (string, error) {
		first, err := Wait[approval](ctx)
		if err != nil {
			return "", err
		}
		if attempts.Add(1) == 1 {
			return "", errors.New("crash after binding")
		}
		second, err := Wait[approval](ctx)
		if err != nil {
			return "", err
		}
		return first.By + "," + second.By, nil
	})

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Test 1: the first attempt binds the oldest signal, then fails
	h, err := wf.Start(ctx, "doc-3")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := EmitSignal(ctx, h.WorkflowID(), approval{By: "ana"}); err != nil {
		t.Fatalf("EmitSignal failed: %v", err)
	}
	if err := EmitSignal(ctx, h.WorkflowID(), approval{By: "bo"}); err != nil {
		t.Fatalf("EmitSignal failed: %v", err)
	}
	if _, err := h.Result(waitCtx); err == nil {
		t.Fatal("expected the first attempt to fail")
	}

	// Test 2: the replay resolves the bound signal again, then consumes the
	// next one
	h2, err := wf.Start(ctx, "doc-3")
	if err != nil {
		t.Fatalf("Start (resume) failed: %v", err)
	}
	if h2.WorkflowID() != h.WorkflowID() {
		t.Errorf("expected the same row, got %q then %q", h.WorkflowID(), h2.WorkflowID())
	}
	out, err := h2.Result(waitCtx)
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if out != "ana,bo" {
		t.Errorf("expected ana,bo, got %q", out)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}
