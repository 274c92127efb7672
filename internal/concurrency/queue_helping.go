package concurrency

// HelpingQueue is CountedQueue with helping: a pusher that loses the race for the
// tail node links the next node itself and moves tail on the winner's behalf, so
// a pusher stalled between claiming a node and moving tail does not hold up
// other pushers.
type HelpingQueue[T any] struct {
	countedCore[T]

	// afterClaim runs between a successful payload install and linking next.
	afterClaim func()
}

// NewHelpingQueue creates an empty queue.
func NewHelpingQueue[T any](opts ...Option) *HelpingQueue[T] {
	q := &HelpingQueue[T]{}
	q.init(applyOptions("helping_queue", opts))
	return q
}

// Push appends value.
func (q *HelpingQueue[T]) Push(value T) {
	data := &value
	newNext := &countedRef[T]{external: 1, ptr: q.newNode()}
	for {
		old := q.increaseExternalCount(&q.tail)
		if old.ptr.data.CompareAndSwap(nil, data) {
			if q.afterClaim != nil {
				q.afterClaim()
			}
			if !old.ptr.next.CompareAndSwap(nil, newNext) {
				// A helper linked its own node already.
				q.alloc.Free(newNext.ptr)
				newNext = old.ptr.next.Load()
			}
			q.setNewTail(old, newNext)
			q.pushes.Inc()
			return
		}

		q.retries.Inc()
		if old.ptr.next.CompareAndSwap(nil, newNext) {
			next := newNext
			newNext = &countedRef[T]{external: 1, ptr: q.newNode()}
			q.setNewTail(old, next)
		} else {
			q.setNewTail(old, old.ptr.next.Load())
		}
	}
}

// Pop removes the oldest value.
func (q *HelpingQueue[T]) Pop() (T, bool) { return q.pop() }

// setNewTail moves tail from oldTail's node to newTail. Whoever succeeds folds the
// replaced counted pointer into the node; everyone else just drops the
// reference they took on it.
func (q *HelpingQueue[T]) setNewTail(oldTail, newTail *countedRef[T]) {
	current := oldTail
	for current.ptr == oldTail.ptr {
		if q.tail.CompareAndSwap(current, newTail) {
			q.freeExternalCounter(current)
			return
		}
		q.retries.Inc()
		current = q.tail.Load()
	}
	q.releaseRef(oldTail.ptr)
}
