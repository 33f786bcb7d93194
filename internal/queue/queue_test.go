package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[int]()
	assert.True(t, q.Empty())

	assert.Equal(t, 0, q.Push(1, 2, 3))
	assert.Equal(t, 3, q.Len())

	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, []int{2, 3}, q.TakeAll())
	assert.True(t, q.Empty())

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueue_BoundedEvictsOldest(t *testing.T) {
	q := NewBounded[int](3)

	assert.Equal(t, 0, q.Push(1, 2))
	assert.Equal(t, 1, q.Push(3, 4))
	assert.Equal(t, 2, q.Push(5, 6))

	assert.Equal(t, uint64(3), q.Dropped())
	assert.Equal(t, []int{4, 5, 6}, q.TakeAll())
}

func TestQueue_NonPositiveLimitIsUnbounded(t *testing.T) {
	q := NewBounded[string](0)
	for i := 0; i < 100; i++ {
		q.Push("x")
	}
	assert.Equal(t, 100, q.Len())
	assert.Zero(t, q.Dropped())
}

func TestQueue_ConcurrentTakeAll(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			q.Push(id)
		}(i)
	}
	wg.Wait()

	results := make(chan []int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- q.TakeAll()
		}()
	}
	wg.Wait()
	close(results)

	total := 0
	for r := range results {
		total += len(r)
	}
	assert.Equal(t, 100, total)
}
