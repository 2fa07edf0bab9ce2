package llm

import (
	"context"
	"sync"
)

// Mock is a test ChatModel. Each Chat call returns the next configured
// reply; once the replies run out, the last one repeats. Every call is
// recorded, so tests can assert how often a workflow really reached the
// model versus replaying a memoized reply.
//
// Safe for concurrent use.
type Mock struct {
	// Replies is the sequence of replies to hand out.
	Replies []ChatOut

	// Err, when set, is returned by every Chat call instead of a reply.
	Err error

	mu    sync.Mutex
	calls [][]Message
	next  int
}

// Chat implements ChatModel.
func (m *Mock) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, messages)

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Replies) == 0 {
		return ChatOut{}, nil
	}
	idx := m.next
	if idx >= len(m.Replies) {
		idx = len(m.Replies) - 1
	} else {
		m.next++
	}
	return m.Replies[idx], nil
}

// Calls returns the recorded conversations, one per Chat call.
func (m *Mock) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Message(nil), m.calls...)
}

// CallCount returns how many times Chat was called.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears the recorded calls and restarts the reply sequence.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.next = 0
}
