// queue package

package queue

import "sync"

// InMemoryQueue implements an in-memory FIFO queue.
// A capacity of zero makes the queue unbounded.
type InMemoryQueue[T any] struct {
	lock     sync.Mutex
	items    []T
	capacity int
}

// NewInMemoryQueue creates a new queue.
func NewInMemoryQueue[T any](capacity int) *InMemoryQueue[T] {
	return &InMemoryQueue[T]{
		capacity: capacity,
	}
}

// Enqueue adds an item to the end of the queue.
func (q *InMemoryQueue[T]) Enqueue(item T) error {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return &ErrQueueFull{Capacity: q.capacity}
	}
	q.items = append(q.items, item)
	return nil
}

// Size returns the current size of the queue.
func (q *InMemoryQueue[T]) Size() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.items)
}

// ReadAllMessages removes and returns every item currently in the queue,
// oldest first. Items enqueued while the caller processes the result are
// kept for the next read.
func (q *InMemoryQueue[T]) ReadAllMessages() ([]T, error) {
	q.lock.Lock()
	defer q.lock.Unlock()

	messages := q.items
	q.items = nil
	return messages, nil
}

// ClearQueue clears all messages from the queue.
func (q *InMemoryQueue[T]) ClearQueue() {
	q.lock.Lock()
	defer q.lock.Unlock()
	q.items = nil
}
