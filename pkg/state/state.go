package state

// Manager provides shared access to a published state snapshot.
// Implementations must be thread-safe.
type Manager[S any] interface {
	// GetState returns the current snapshot.
	GetState() S
	// SetState replaces the current snapshot.
	SetState(s S)
}

// Observer is notified when a Subject publishes. Update must not block and
// should only re-read the subject's state.
type Observer interface {
	Update()
}
