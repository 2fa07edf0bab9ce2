package task

import (
	"fmt"
	"time"
)

// Suspend is returned by a task function to park the task instead of failing
// it. The worker reschedules the task for At, or suspends it indefinitely
// when At is nil so an explicit Wakeup resumes it.
//
// Match it with errors.As:
//
//	var s *Suspend
//	if errors.As(err, &s) { ... }
type Suspend struct {
	// At is the instant the task becomes ready again. Nil parks the task
	// until something wakes it up.
	At *time.Time
}

func (s *Suspend) Error() string {
	if s.At == nil {
		return "task suspended"
	}
	return fmt.Sprintf("task suspended until %s", s.At.Format(time.RFC3339))
}

// SuspendUntil parks the task until the given instant.
func SuspendUntil(at time.Time) *Suspend {
	return &Suspend{At: &at}
}

// SuspendFor parks the task for the given duration from now.
func SuspendFor(d time.Duration) *Suspend {
	at := time.Now().Add(d)
	return &Suspend{At: &at}
}
