package emit

import (
	"fmt"
	"sync"
	"testing"
)

// TestBufferedEmitter_History verifies buffering, ordering, and filtering.
func TestBufferedEmitter_History(t *testing.T) {
	b := NewBufferedEmitter()

	b.Emit(Event{WorkflowID: "wf-1", Step: 0, Name: "refund.Flow", Msg: "workflow_start"})
	b.Emit(Event{WorkflowID: "wf-1", Step: 1, Name: "refund.Charge", Msg: "activity_run"})
	b.Emit(Event{WorkflowID: "wf-1", Step: 1, Name: "refund.Charge", Msg: "activity_memo_hit"})
	b.Emit(Event{WorkflowID: "wf-2", Step: 0, Name: "refund.Flow", Msg: "workflow_start"})
	b.Emit(Event{TaskID: "t-1", Name: "pkg.Work", Msg: "task_claimed"})

	// Test 1: Unfiltered history returns everything in emission order
	all := b.History(Filter{})
	if len(all) != 5 {
		t.Fatalf("expected 5 events, got %d", len(all))
	}
	if all[0].Msg != "workflow_start" || all[4].Msg != "task_claimed" {
		t.Errorf("expected emission order, got first=%s last=%s", all[0].Msg, all[4].Msg)
	}

	// Test 2: Filter by workflow
	wf1 := b.History(Filter{WorkflowID: "wf-1"})
	if len(wf1) != 3 {
		t.Errorf("expected 3 events for wf-1, got %d", len(wf1))
	}

	// Test 3: Filters combine with AND
	hits := b.History(Filter{WorkflowID: "wf-1", Msg: "activity_memo_hit"})
	if len(hits) != 1 || hits[0].Name != "refund.Charge" {
		t.Errorf("expected one memo hit for refund.Charge, got %v", hits)
	}

	// Test 4: Step bounds
	one := 1
	stepped := b.History(Filter{MinStep: &one, MaxStep: &one})
	if len(stepped) != 2 {
		t.Errorf("expected 2 events at step 1, got %d", len(stepped))
	}

	// Test 5: Task events are reachable by task id
	byTask := b.History(Filter{TaskID: "t-1"})
	if len(byTask) != 1 || byTask[0].Msg != "task_claimed" {
		t.Errorf("expected the task event, got %v", byTask)
	}

	// Test 6: The returned slice is a copy
	all[0].Msg = "mutated"
	if b.History(Filter{})[0].Msg != "workflow_start" {
		t.Error("expected History to return a copy")
	}

	// Test 7: Clear empties the buffer
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("expected empty buffer after Clear, got %d", b.Len())
	}
}

// TestBufferedEmitter_Concurrent verifies concurrent emission is safe and
// lossless.
func TestBufferedEmitter_Concurrent(t *testing.T) {
	b := NewBufferedEmitter()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				b.Emit(Event{WorkflowID: fmt.Sprintf("wf-%d", worker), Step: j, Msg: "activity_run"})
			}
		}(i)
	}
	wg.Wait()

	if got := b.Len(); got != workers*perWorker {
		t.Errorf("expected %d events, got %d", workers*perWorker, got)
	}
	for i := 0; i < workers; i++ {
		events := b.History(Filter{WorkflowID: fmt.Sprintf("wf-%d", i)})
		if len(events) != perWorker {
			t.Errorf("worker %d: expected %d events, got %d", i, perWorker, len(events))
		}
	}
}

// TestBufferedEmitter_InterfaceContract verifies BufferedEmitter implements
// Emitter.
func TestBufferedEmitter_InterfaceContract(t *testing.T) {
	var _ Emitter = NewBufferedEmitter()
}
