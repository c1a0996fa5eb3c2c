package state

import "sync/atomic"

// Cache is an Observer that keeps a local copy of a subject's state and
// signals a redraw on each update. A draw layer reads Get on its own schedule.
type Cache[S any] struct {
	subject Manager[S]
	local   atomic.Pointer[S]
	updates atomic.Uint64
	changed chan struct{}
}

// NewCache creates a Cache seeded with the subject's current state.
// It does not attach itself; call AttachObserver on the subject.
func NewCache[S any](subject Manager[S]) *Cache[S] {
	c := &Cache[S]{
		subject: subject,
		changed: make(chan struct{}, 1),
	}
	initial := subject.GetState()
	c.local.Store(&initial)
	return c
}

// Update re-pulls the subject's state. It never blocks.
func (c *Cache[S]) Update() {
	s := c.subject.GetState()
	c.local.Store(&s)
	c.updates.Add(1)
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// Get returns the cached state.
func (c *Cache[S]) Get() S {
	return *c.local.Load()
}

// Updates returns how many times Update has been called.
func (c *Cache[S]) Updates() uint64 {
	return c.updates.Load()
}

// Changed receives a value after one or more updates since the last receive.
func (c *Cache[S]) Changed() <-chan struct{} {
	return c.changed
}
