package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue_Enqueue(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		items    []int
		wantErr  bool
		wantSize int
	}{
		{
			name:     "unbounded",
			capacity: 0,
			items:    []int{1, 2, 3, 4, 5},
			wantSize: 5,
		},
		{
			name:     "within capacity",
			capacity: 3,
			items:    []int{1, 2, 3},
			wantSize: 3,
		},
		{
			name:     "over capacity",
			capacity: 2,
			items:    []int{1, 2, 3},
			wantErr:  true,
			wantSize: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewInMemoryQueue[int](tt.capacity)
			var err error
			for _, item := range tt.items {
				if err = q.Enqueue(item); err != nil {
					break
				}
			}
			if tt.wantErr {
				var full *ErrQueueFull
				assert.ErrorAs(t, err, &full)
				assert.Equal(t, tt.capacity, full.Capacity)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantSize, q.Size())
		})
	}
}

func TestInMemoryQueue_ReadAllMessages(t *testing.T) {
	q := NewInMemoryQueue[string](0)
	require.NoError(t, q.Enqueue("a"))
	require.NoError(t, q.Enqueue("b"))

	got, err := q.ReadAllMessages()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 0, q.Size())

	// items enqueued after a read wait for the next one
	require.NoError(t, q.Enqueue("c"))
	assert.Equal(t, []string{"a", "b"}, got)
	got, err = q.ReadAllMessages()
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, got)

	got, err = q.ReadAllMessages()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInMemoryQueue_ClearQueue(t *testing.T) {
	q := NewInMemoryQueue[int](0)
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(i))
	}
	q.ClearQueue()
	assert.Equal(t, 0, q.Size())
	got, err := q.ReadAllMessages()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInMemoryQueue_ConcurrentProducers(t *testing.T) {
	const producers = 8
	const perProducer = 500
	q := NewInMemoryQueue[int](0)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, q.Enqueue(p*perProducer+i))
			}
		}(p)
	}
	wg.Wait()

	got, err := q.ReadAllMessages()
	require.NoError(t, err)
	require.Len(t, got, producers*perProducer)

	// each producer's items keep their relative order
	last := make(map[int]int)
	for _, item := range got {
		p := item / perProducer
		if prev, ok := last[p]; ok {
			assert.Less(t, prev, item)
		}
		last[p] = item
	}
}
