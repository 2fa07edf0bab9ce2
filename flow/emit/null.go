package emit

// NullEmitter discards every event. It is the default when no emitter is
// configured, so emission call sites never need a nil check.
type NullEmitter struct{}

// NewNullEmitter creates a NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (n *NullEmitter) Emit(event Event) {}
