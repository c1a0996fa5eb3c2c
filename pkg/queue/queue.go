package queue

import "fmt"

// Queue represents a basic FIFO queue that is safe for concurrent producers.
type Queue[T any] interface {
	Enqueue(item T) error
	ReadAllMessages() ([]T, error)
	Size() int
	ClearQueue()
}

// ErrQueueFull is returned by bounded queues that are at capacity.
type ErrQueueFull struct {
	Capacity int
}

func (e *ErrQueueFull) Error() string {
	return fmt.Sprintf("queue is full (capacity %d)", e.Capacity)
}
