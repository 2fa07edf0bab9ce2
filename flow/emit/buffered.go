package emit

import "sync"

// BufferedEmitter keeps every event in memory for later inspection.
//
// It is meant for tests, debugging, and short-lived tools: everything stays
// in memory until Clear. All methods are safe for concurrent use.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events []Event
}

// Filter selects events from a BufferedEmitter. Zero-valued fields match
// everything; set fields combine with AND.
type Filter struct {
	WorkflowID string
	TaskID     string
	Name       string
	Msg        string
	MinStep    *int
	MaxStep    *int
}

func (f Filter) matches(event Event) bool {
	if f.WorkflowID != "" && event.WorkflowID != f.WorkflowID {
		return false
	}
	if f.TaskID != "" && event.TaskID != f.TaskID {
		return false
	}
	if f.Name != "" && event.Name != f.Name {
		return false
	}
	if f.Msg != "" && event.Msg != f.Msg {
		return false
	}
	if f.MinStep != nil && event.Step < *f.MinStep {
		return false
	}
	if f.MaxStep != nil && event.Step > *f.MaxStep {
		return false
	}
	return true
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{}
}

// Emit appends the event to the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

// History returns matching events in emission order. The returned slice is a
// copy; callers may modify it freely.
func (b *BufferedEmitter) History(filter Filter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events {
		if filter.matches(event) {
			result = append(result, event)
		}
	}
	return result
}

// Len returns the number of buffered events.
func (b *BufferedEmitter) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// Clear discards all buffered events.
func (b *BufferedEmitter) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}
