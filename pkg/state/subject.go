package state

import (
	"sync"
	"sync/atomic"
)

// Subject holds one atomically swappable state snapshot and a set of observers.
// Snapshots are treated as immutable once published: readers never see a
// partially written state because the whole value is swapped at once.
type Subject[S any] struct {
	state atomic.Pointer[S]

	// observers is copy-on-write so NotifyObservers can iterate without a lock.
	lock      sync.Mutex
	observers atomic.Pointer[[]Observer]
}

// NewSubject creates a Subject publishing the initial state.
func NewSubject[S any](initial S) *Subject[S] {
	s := &Subject[S]{}
	s.state.Store(&initial)
	empty := []Observer{}
	s.observers.Store(&empty)
	return s
}

// GetState returns the most recently published state.
func (s *Subject[S]) GetState() S {
	return *s.state.Load()
}

// SetState publishes a new state.
func (s *Subject[S]) SetState(state S) {
	s.state.Store(&state)
}

// AttachObserver registers an observer. Attaching the same observer twice is a no-op.
func (s *Subject[S]) AttachObserver(o Observer) {
	s.lock.Lock()
	defer s.lock.Unlock()
	current := *s.observers.Load()
	for _, existing := range current {
		if existing == o {
			return
		}
	}
	next := make([]Observer, len(current), len(current)+1)
	copy(next, current)
	next = append(next, o)
	s.observers.Store(&next)
}

// DetachObserver removes an observer if present.
func (s *Subject[S]) DetachObserver(o Observer) {
	s.lock.Lock()
	defer s.lock.Unlock()
	current := *s.observers.Load()
	next := make([]Observer, 0, len(current))
	for _, existing := range current {
		if existing != o {
			next = append(next, existing)
		}
	}
	s.observers.Store(&next)
}

// NotifyObservers calls Update on every observer attached at call time.
func (s *Subject[S]) NotifyObservers() {
	for _, o := range *s.observers.Load() {
		o.Update()
	}
}

// ObserverCount returns the number of attached observers.
func (s *Subject[S]) ObserverCount() int {
	return len(*s.observers.Load())
}
