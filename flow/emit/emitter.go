package emit

// Emitter receives observability events from the engine and the workers.
//
// Implementations should be:
//   - Non-blocking: never slow down workflow execution
//   - Thread-safe: workers emit concurrently
//   - Resilient: a failing backend must not fail the workflow
//
// Emit must not panic; backend errors are handled internally.
type Emitter interface {
	Emit(event Event)
}

// Multi fans one event stream out to several emitters, in order.
func Multi(emitters ...Emitter) Emitter {
	return multiEmitter(emitters)
}

type multiEmitter []Emitter

func (m multiEmitter) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
