package hazard

import (
	"sync/atomic"
	"unsafe"
)

// retired is a node that was detached while some slot still published it.
type retired struct {
	ptr     unsafe.Pointer
	reclaim func()
	next    *retired
}

// Owner is one goroutine's slot in a Domain together with its private retire list.
// An Owner must only be used by one goroutine at a time.
type Owner struct {
	domain  *Domain
	slot    *slot
	id      uint64
	retired *retired
	pending int
}

// ID returns the identity the slot is tagged with.
func (o *Owner) ID() uint64 { return o.id }

// Domain returns the table the owner belongs to.
func (o *Owner) Domain() *Domain { return o.domain }

// Protect publishes p. Callers must re-validate that p is still reachable
// after Protect returns before dereferencing it.
func (o *Owner) Protect(p unsafe.Pointer) {
	atomic.StorePointer(&o.slot.pointer, p)
}

// Clear withdraws the published pointer.
func (o *Owner) Clear() {
	atomic.StorePointer(&o.slot.pointer, nil)
}

// Retire defers reclaim until no slot publishes p.
func (o *Owner) Retire(p unsafe.Pointer, reclaim func()) {
	o.retired = &retired{ptr: p, reclaim: reclaim, next: o.retired}
	o.pending++
	o.domain.retiredNow.Inc()
}

// Pending returns the length of the owner's retire list.
func (o *Owner) Pending() int { return o.pending }

// ReclaimNoHazards reclaims every retired node, including orphans of released
// owners, that is no longer published by any slot. It returns the number reclaimed.
func (o *Owner) ReclaimNoHazards() int {
	d := o.domain
	list := o.retired
	o.retired = nil
	o.pending = 0

	freed := 0
	if list != nil {
		d.scans.Inc()
	}
	for r := list; r != nil; {
		next := r.next
		if d.Hazardous(r.ptr) {
			r.next = o.retired
			o.retired = r
			o.pending++
		} else {
			r.reclaim()
			freed++
		}
		r = next
	}
	d.retiredNow.Sub(float64(freed))

	return freed + d.Reclaim()
}

// Release clears the slot, hands the remaining retire list to the domain and
// frees the slot for another goroutine. Using the Owner afterwards panics.
func (o *Owner) Release() {
	if o.slot == nil {
		return
	}
	o.Clear()
	o.ReclaimNoHazards()

	if o.retired != nil {
		last := o.retired
		for last.next != nil {
			last = last.next
		}
		o.domain.pushOrphans(o.retired, last, o.pending)
		o.retired = nil
		o.pending = 0
	}

	o.slot.owner.Store(0)
	o.slot = nil
	o.domain.inUse.Add(-1)
	o.domain.slotsInUse.Dec()
}
