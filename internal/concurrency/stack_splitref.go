package concurrency

import (
	"sync/atomic"

	"github.com/23skdu/lockfree/internal/memory"
)

// stackRef is a counted pointer. Instances are immutable; head is replaced as a
// whole so the count and the pointer always change together.
type stackRef[T any] struct {
	external int32
	ptr      *splitNode[T]
}

type splitNode[T any] struct {
	memory.Header
	value    T
	internal atomic.Int32
	next     *stackRef[T]
}

// SplitRefStack reclaims popped nodes with split reference counts: an external
// count on the head pointer for goroutines that have read it, and an internal
// count on the node for goroutines that are done with it.
type SplitRefStack[T any] struct {
	head  atomic.Pointer[stackRef[T]]
	alloc *memory.Allocator[splitNode[T], *splitNode[T]]
	name  string
	opCounters
}

// NewSplitRefStack creates an empty stack.
func NewSplitRefStack[T any](opts ...Option) *SplitRefStack[T] {
	o := applyOptions("splitref_stack", opts)
	s := &SplitRefStack[T]{
		name: o.name,
		alloc: memory.NewAllocator[splitNode[T]](o.name, func(n *splitNode[T]) {
			var zero T
			n.value = zero
			n.next = nil
			n.internal.Store(0)
		}),
		opCounters: newOpCounters(o.name),
	}
	s.head.Store(&stackRef[T]{})
	return s
}

// Push links value onto the stack.
func (s *SplitRefStack[T]) Push(value T) {
	n := s.alloc.New()
	n.value = value
	ref := &stackRef[T]{external: 1, ptr: n}
	casLoop(&s.head, s.retries, func(old *stackRef[T]) (*stackRef[T], bool) {
		n.next = old
		return ref, true
	})
	s.pushes.Inc()
}

// Pop removes the most recently pushed value.
func (s *SplitRefStack[T]) Pop() (T, bool) {
	for {
		old := s.increaseHeadCount()
		ptr := old.ptr
		if ptr == nil {
			s.empties.Inc()
			var zero T
			return zero, false
		}

		if s.head.CompareAndSwap(old, ptr.next) {
			var zero T
			v := ptr.value
			ptr.value = zero
			// The popper's own reference and the head's are both dropped here.
			if ptr.internal.Add(old.external-2) == 0 {
				s.alloc.Free(ptr)
			}
			s.pops.Inc()
			return v, true
		}
		s.retries.Inc()
		if ptr.internal.Add(-1) == 0 {
			s.alloc.Free(ptr)
		}
	}
}

func (s *SplitRefStack[T]) increaseHeadCount() *stackRef[T] {
	_, ref, _ := casLoop(&s.head, s.retries, func(old *stackRef[T]) (*stackRef[T], bool) {
		return &stackRef[T]{external: old.external + 1, ptr: old.ptr}, true
	})
	return ref
}

// Name returns the metric label of the stack.
func (s *SplitRefStack[T]) Name() string { return s.name }

// Stats reports the node allocator counters.
func (s *SplitRefStack[T]) Stats() memory.AllocatorStats { return s.alloc.Stats() }

// Close frees the remaining nodes. Callers must be quiescent.
func (s *SplitRefStack[T]) Close() {
	ref := s.head.Swap(&stackRef[T]{})
	for ref != nil && ref.ptr != nil {
		next := ref.ptr.next
		s.alloc.Free(ref.ptr)
		ref = next
	}
}
