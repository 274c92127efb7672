package concurrency

import (
	"sync/atomic"

	"github.com/23skdu/lockfree/internal/memory"
)

// Stack is a LIFO container. Pop never blocks; ok is false when the stack was empty.
type Stack[T any] interface {
	Push(value T)
	Pop() (value T, ok bool)
}

type stackNode[T any] struct {
	memory.Header
	value T
	next  atomic.Pointer[stackNode[T]]
}

// stackCore is the Treiber stack shared by the reclaiming variants. It never frees
// a node itself; what happens to a detached node is up to the embedding type.
type stackCore[T any] struct {
	head  atomic.Pointer[stackNode[T]]
	alloc *memory.Allocator[stackNode[T], *stackNode[T]]
	name  string
	opCounters
}

func (s *stackCore[T]) init(o options) {
	s.name = o.name
	s.alloc = memory.NewAllocator[stackNode[T]](o.name, func(n *stackNode[T]) {
		var zero T
		n.value = zero
		n.next.Store(nil)
	})
	s.opCounters = newOpCounters(o.name)
}

// Push links a new node in front of the current head.
func (s *stackCore[T]) Push(value T) {
	n := s.alloc.New()
	n.value = value
	casLoop(&s.head, s.retries, func(old *stackNode[T]) (*stackNode[T], bool) {
		n.next.Store(old)
		return n, true
	})
	s.pushes.Inc()
}

// detach unlinks the head node, or returns nil when the stack is empty. The
// caller must guarantee the head it reads cannot be freed while detach runs.
func (s *stackCore[T]) detach() *stackNode[T] {
	old, _, ok := casLoop(&s.head, s.retries, func(old *stackNode[T]) (*stackNode[T], bool) {
		if old == nil {
			return nil, false
		}
		return old.next.Load(), true
	})
	if !ok {
		s.empties.Inc()
		return nil
	}
	s.pops.Inc()
	return old
}

// take moves the payload out of a detached node.
func (s *stackCore[T]) take(n *stackNode[T]) T {
	var zero T
	v := n.value
	n.value = zero
	return v
}

// drain frees every node still linked from head and returns how many there were.
func (s *stackCore[T]) drain() int {
	count := 0
	for n := s.head.Swap(nil); n != nil; count++ {
		next := n.next.Load()
		s.alloc.Free(n)
		n = next
	}
	return count
}

// Name returns the metric label of the stack.
func (s *stackCore[T]) Name() string { return s.name }

// Stats reports the node allocator counters.
func (s *stackCore[T]) Stats() memory.AllocatorStats { return s.alloc.Stats() }

// LeakyStack never frees a popped node. Only the nodes still linked at Close are
// reclaimed, so Stats().Live grows with every successful Pop.
type LeakyStack[T any] struct {
	stackCore[T]
}

// NewLeakyStack creates an empty stack.
func NewLeakyStack[T any](opts ...Option) *LeakyStack[T] {
	s := &LeakyStack[T]{}
	s.init(applyOptions("leaky_stack", opts))
	return s
}

// Pop removes the most recently pushed value.
func (s *LeakyStack[T]) Pop() (T, bool) {
	n := s.detach()
	if n == nil {
		var zero T
		return zero, false
	}
	return s.take(n), true
}

// Close frees the nodes that are still on the stack. Callers must be quiescent.
func (s *LeakyStack[T]) Close() {
	s.drain()
}
