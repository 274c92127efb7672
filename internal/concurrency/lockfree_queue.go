package concurrency

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/23skdu/lockfree/internal/memory"
)

// Queue is a FIFO container. Pop never blocks; ok is false when the queue was empty.
type Queue[T any] interface {
	Push(value T)
	Pop() (value T, ok bool)
}

// countedRef is the external half of a split reference count: the number of
// goroutines that have read this pointer value. Instances are immutable.
type countedRef[T any] struct {
	external int32
	ptr      *countedNode[T]
}

// nodeCount is the internal half: released references, and how many of head,
// tail and a predecessor's next still hold counted pointers to the node.
// Instances are immutable.
type nodeCount struct {
	internal         int32
	externalCounters int32
}

type countedNode[T any] struct {
	memory.Header
	data  atomic.Pointer[T]
	count atomic.Pointer[nodeCount]
	next  atomic.Pointer[countedRef[T]]
}

// countedCore holds what CountedQueue and HelpingQueue share: the node layout,
// head and tail, and the reference counting operations.
type countedCore[T any] struct {
	head atomic.Pointer[countedRef[T]]
	_    cpu.CacheLinePad
	tail atomic.Pointer[countedRef[T]]
	_    cpu.CacheLinePad

	alloc *memory.Allocator[countedNode[T], *countedNode[T]]
	name  string
	opCounters
}

func (q *countedCore[T]) init(o options) {
	q.name = o.name
	q.alloc = memory.NewAllocator[countedNode[T]](o.name, func(n *countedNode[T]) {
		n.data.Store(nil)
		n.count.Store(nil)
		n.next.Store(nil)
	})
	q.opCounters = newOpCounters(o.name)

	sentinel := q.newNode()
	q.head.Store(&countedRef[T]{external: 1, ptr: sentinel})
	q.tail.Store(&countedRef[T]{external: 1, ptr: sentinel})
}

// newNode returns a node referenced from two places once linked: the tail and
// either the predecessor's next or the head.
func (q *countedCore[T]) newNode() *countedNode[T] {
	n := q.alloc.New()
	n.count.Store(&nodeCount{externalCounters: 2})
	return n
}

// increaseExternalCount takes a reference through slot and returns the counted
// pointer that was installed.
func (q *countedCore[T]) increaseExternalCount(slot *atomic.Pointer[countedRef[T]]) *countedRef[T] {
	_, ref, _ := casLoop(slot, q.retries, func(old *countedRef[T]) (*countedRef[T], bool) {
		return &countedRef[T]{external: old.external + 1, ptr: old.ptr}, true
	})
	return ref
}

// freeExternalCounter is called by whoever replaced ref in head or tail. It
// folds ref's external count into the node, less this goroutine's reference
// and the slot's own.
func (q *countedCore[T]) freeExternalCounter(ref *countedRef[T]) {
	ptr := ref.ptr
	increase := ref.external - 2
	_, c, _ := casLoop(&ptr.count, q.retries, func(old *nodeCount) (*nodeCount, bool) {
		return &nodeCount{
			internal:         old.internal + increase,
			externalCounters: old.externalCounters - 1,
		}, true
	})
	if c.internal == 0 && c.externalCounters == 0 {
		q.alloc.Free(ptr)
	}
}

// releaseRef drops a reference taken with increaseExternalCount without
// replacing the slot.
func (q *countedCore[T]) releaseRef(n *countedNode[T]) {
	_, c, _ := casLoop(&n.count, q.retries, func(old *nodeCount) (*nodeCount, bool) {
		return &nodeCount{
			internal:         old.internal - 1,
			externalCounters: old.externalCounters,
		}, true
	})
	if c.internal == 0 && c.externalCounters == 0 {
		q.alloc.Free(n)
	}
}

func (q *countedCore[T]) pop() (T, bool) {
	for {
		old := q.increaseExternalCount(&q.head)
		ptr := old.ptr
		if ptr == q.tail.Load().ptr {
			q.releaseRef(ptr)
			q.empties.Inc()
			var zero T
			return zero, false
		}

		if q.head.CompareAndSwap(old, ptr.next.Load()) {
			res := ptr.data.Swap(nil)
			q.freeExternalCounter(old)
			q.pops.Inc()
			return *res, true
		}
		q.retries.Inc()
		q.releaseRef(ptr)
	}
}

// Name returns the metric label of the queue.
func (q *countedCore[T]) Name() string { return q.name }

// Stats reports the node allocator counters.
func (q *countedCore[T]) Stats() memory.AllocatorStats { return q.alloc.Stats() }

// Close frees every node from head to tail, each exactly once. The queue must
// not be used afterwards. Callers must be quiescent.
func (q *countedCore[T]) Close() {
	ref := q.head.Swap(nil)
	q.tail.Store(nil)
	for ref != nil {
		n := ref.ptr
		ref = n.next.Load()
		q.alloc.Free(n)
	}
}

// CountedQueue is a multi-producer multi-consumer FIFO queue that reclaims nodes
// with split reference counts. A pusher claims the tail node by installing its
// payload; pushers that lose the race wait for the winner to move tail.
type CountedQueue[T any] struct {
	countedCore[T]
}

// NewCountedQueue creates an empty queue.
func NewCountedQueue[T any](opts ...Option) *CountedQueue[T] {
	q := &CountedQueue[T]{}
	q.init(applyOptions("counted_queue", opts))
	return q
}

// Push appends value.
func (q *CountedQueue[T]) Push(value T) {
	data := &value
	newNext := &countedRef[T]{external: 1, ptr: q.newNode()}
	for {
		old := q.increaseExternalCount(&q.tail)
		if old.ptr.data.CompareAndSwap(nil, data) {
			old.ptr.next.Store(newNext)
			replaced := q.tail.Swap(newNext)
			q.freeExternalCounter(replaced)
			q.pushes.Inc()
			return
		}
		q.retries.Inc()
		q.releaseRef(old.ptr)
	}
}

// Pop removes the oldest value.
func (q *CountedQueue[T]) Pop() (T, bool) { return q.pop() }
