package concurrency

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/23skdu/lockfree/internal/metrics"
)

// RefCountStack reclaims popped nodes once no goroutine is inside Pop.
//
// A popper that finds itself alone frees its node and everything chained for
// deletion by earlier poppers. Otherwise the node goes on the pending chain.
// Under continuous overlapping pops the chain is never freed; Pending exposes
// its length.
type RefCountStack[T any] struct {
	stackCore[T]

	threadsInPop atomic.Int32
	toDelete     atomic.Pointer[stackNode[T]]
	pending      atomic.Int64
	pendingGauge prometheus.Gauge

	// afterSwap runs between claiming the deletion chain and leaving Pop.
	afterSwap func()
}

// NewRefCountStack creates an empty stack.
func NewRefCountStack[T any](opts ...Option) *RefCountStack[T] {
	s := &RefCountStack[T]{}
	o := applyOptions("refcount_stack", opts)
	s.init(o)
	s.pendingGauge = metrics.ReclaimPendingNodes.WithLabelValues(o.name)
	return s
}

// Pop removes the most recently pushed value.
func (s *RefCountStack[T]) Pop() (T, bool) {
	s.threadsInPop.Add(1)
	n := s.detach()

	var v T
	if n != nil {
		v = s.take(n)
	}
	s.tryReclaim(n)
	return v, n != nil
}

// Pending returns the number of nodes waiting on the deletion chain.
func (s *RefCountStack[T]) Pending() int { return int(s.pending.Load()) }

func (s *RefCountStack[T]) tryReclaim(n *stackNode[T]) {
	if s.threadsInPop.Load() != 1 {
		if n != nil {
			s.chainPendingNode(n)
		}
		s.threadsInPop.Add(-1)
		return
	}

	claimed := s.toDelete.Swap(nil)
	if s.afterSwap != nil {
		s.afterSwap()
	}
	if s.threadsInPop.Add(-1) == 0 {
		s.deleteNodes(claimed)
		if n != nil {
			s.alloc.Free(n)
		}
		return
	}

	// A popper arrived after the check and may hold a claimed node.
	if claimed != nil {
		s.chainPendingNodes(claimed)
	}
	if n != nil {
		s.chainPendingNode(n)
	}
}

func (s *RefCountStack[T]) deleteNodes(list *stackNode[T]) {
	freed := 0
	for list != nil {
		next := list.next.Load()
		s.alloc.Free(list)
		list = next
		freed++
	}
	if freed > 0 {
		s.pending.Add(-int64(freed))
		s.pendingGauge.Sub(float64(freed))
	}
}

// chainPendingNodes puts a previously claimed list back; it is already counted.
func (s *RefCountStack[T]) chainPendingNodes(first *stackNode[T]) {
	last := first
	for next := last.next.Load(); next != nil; next = last.next.Load() {
		last = next
	}
	s.chain(first, last)
}

func (s *RefCountStack[T]) chainPendingNode(n *stackNode[T]) {
	s.pending.Add(1)
	s.pendingGauge.Inc()
	s.chain(n, n)
}

func (s *RefCountStack[T]) chain(first, last *stackNode[T]) {
	casLoop(&s.toDelete, s.retries, func(old *stackNode[T]) (*stackNode[T], bool) {
		last.next.Store(old)
		return first, true
	})
}

// Close frees the remaining and the pending nodes. Callers must be quiescent.
func (s *RefCountStack[T]) Close() {
	s.drain()
	s.deleteNodes(s.toDelete.Swap(nil))
}
