package concurrency

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/23skdu/lockfree/internal/memory"
)

type spscNode[T any] struct {
	memory.Header
	value T
	next  *spscNode[T]
}

// SPSCQueue is a FIFO queue for exactly one producer goroutine and one consumer
// goroutine. tail always points at an empty sentinel node: Push fills the sentinel
// and appends a new one, Pop frees the node it consumes.
type SPSCQueue[T any] struct {
	head atomic.Pointer[spscNode[T]]
	_    cpu.CacheLinePad
	tail atomic.Pointer[spscNode[T]]
	_    cpu.CacheLinePad

	alloc *memory.Allocator[spscNode[T], *spscNode[T]]
	name  string
	opCounters
}

// NewSPSCQueue creates an empty queue.
func NewSPSCQueue[T any](opts ...Option) *SPSCQueue[T] {
	o := applyOptions("spsc_queue", opts)
	q := &SPSCQueue[T]{
		name: o.name,
		alloc: memory.NewAllocator[spscNode[T]](o.name, func(n *spscNode[T]) {
			var zero T
			n.value = zero
			n.next = nil
		}),
		opCounters: newOpCounters(o.name),
	}
	sentinel := q.alloc.New()
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// Push appends value. Only the producer goroutine may call it.
func (q *SPSCQueue[T]) Push(value T) {
	p := q.alloc.New()
	old := q.tail.Load()
	old.value = value
	old.next = p
	q.tail.Store(p)
	q.pushes.Inc()
}

// Pop removes the oldest value. Only the consumer goroutine may call it.
func (q *SPSCQueue[T]) Pop() (T, bool) {
	old := q.head.Load()
	if old == q.tail.Load() {
		q.empties.Inc()
		var zero T
		return zero, false
	}
	q.head.Store(old.next)
	v := old.value
	q.alloc.Free(old)
	q.pops.Inc()
	return v, true
}

// Name returns the metric label of the queue.
func (q *SPSCQueue[T]) Name() string { return q.name }

// Stats reports the node allocator counters.
func (q *SPSCQueue[T]) Stats() memory.AllocatorStats { return q.alloc.Stats() }

// Close frees every node including the sentinel. The queue must not be used
// afterwards. Callers must be quiescent.
func (q *SPSCQueue[T]) Close() {
	n := q.head.Swap(nil)
	q.tail.Store(nil)
	for n != nil {
		next := n.next
		q.alloc.Free(n)
		n = next
	}
}
