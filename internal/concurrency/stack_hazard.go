package concurrency

import (
	"unsafe"

	"github.com/23skdu/lockfree/internal/hazard"
)

// HazardStack reclaims popped nodes with hazard pointers. Pop needs a slot in
// the hazard domain, so poppers go through a HazardHandle, one per goroutine.
type HazardStack[T any] struct {
	stackCore[T]
	domain *hazard.Domain
}

// NewHazardStack creates an empty stack that publishes hazards in domain.
// A nil domain uses hazard.Default().
func NewHazardStack[T any](domain *hazard.Domain, opts ...Option) *HazardStack[T] {
	if domain == nil {
		domain = hazard.Default()
	}
	s := &HazardStack[T]{domain: domain}
	s.init(applyOptions("hazard_stack", opts))
	return s
}

// Domain returns the hazard domain the stack reclaims through.
func (s *HazardStack[T]) Domain() *hazard.Domain { return s.domain }

// Handle registers the calling goroutine with the stack's hazard domain. It fails
// with an error wrapping hazard.ErrSlotsExhausted when every slot is owned.
func (s *HazardStack[T]) Handle() (*HazardHandle[T], error) {
	owner, err := s.domain.Register()
	if err != nil {
		return nil, err
	}
	return &HazardHandle[T]{stack: s, owner: owner}, nil
}

func (s *HazardStack[T]) pop(hp *hazard.Owner) (T, bool) {
	old := s.head.Load()
	for {
		for {
			published := old
			hp.Protect(unsafe.Pointer(published))
			old = s.head.Load()
			if old == published {
				break
			}
		}
		if old == nil || s.head.CompareAndSwap(old, old.next.Load()) {
			break
		}
		s.retries.Inc()
		old = s.head.Load()
	}
	hp.Clear()

	if old == nil {
		s.empties.Inc()
		var zero T
		return zero, false
	}
	s.pops.Inc()
	v := s.take(old)

	if s.domain.Hazardous(unsafe.Pointer(old)) {
		n := old
		hp.Retire(unsafe.Pointer(n), func() { s.alloc.Free(n) })
	} else {
		s.alloc.Free(old)
	}
	hp.ReclaimNoHazards()
	return v, true
}

// Close frees the remaining nodes and the orphaned retired nodes no slot
// publishes. Nodes retired by handles that are still registered are freed when
// those handles are released. Callers must be quiescent.
func (s *HazardStack[T]) Close() {
	s.drain()
	s.domain.Reclaim()
}

// HazardHandle is one goroutine's view of a HazardStack. It must not be shared
// between goroutines that pop concurrently.
type HazardHandle[T any] struct {
	stack *HazardStack[T]
	owner *hazard.Owner
}

// Push links value onto the stack.
func (h *HazardHandle[T]) Push(value T) { h.stack.Push(value) }

// Pop removes the most recently pushed value.
func (h *HazardHandle[T]) Pop() (T, bool) { return h.stack.pop(h.owner) }

// Release gives the hazard slot back to the domain. Nodes still retired on the
// handle move to the domain and are freed by a later scan.
func (h *HazardHandle[T]) Release() { h.owner.Release() }
