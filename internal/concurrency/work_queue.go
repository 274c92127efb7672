package concurrency

import "sync"

// WorkQueue is a mutex-guarded deque. The owning worker pushes and pops at the
// front; other workers steal from the back, taking the oldest item.
type WorkQueue[T any] struct {
	mu    sync.Mutex
	items []T // front is the end of the slice
}

// NewWorkQueue creates an empty deque.
func NewWorkQueue[T any]() *WorkQueue[T] {
	return &WorkQueue[T]{}
}

// Push adds item at the front.
func (q *WorkQueue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item)
}

// TryPop removes the most recently pushed item.
func (q *WorkQueue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	n := len(q.items)
	if n == 0 {
		return zero, false
	}
	item := q.items[n-1]
	q.items[n-1] = zero
	q.items = q.items[:n-1]
	return item, true
}

// TrySteal removes the oldest item.
func (q *WorkQueue[T]) TrySteal() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Len returns the number of queued items.
func (q *WorkQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}
