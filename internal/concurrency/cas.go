package concurrency

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// casLoop is the read-modify-retry loop behind every mutator in this package.
//
// It loads slot, asks update for the replacement and tries to install it with a
// CompareAndSwap. When the CAS fails the current value is reloaded and update is
// called again with it. update returning false stops the loop without writing;
// ok is then false and old is the value update rejected. There is no retry bound.
func casLoop[T any](slot *atomic.Pointer[T], retries prometheus.Counter, update func(old *T) (*T, bool)) (old, swapped *T, ok bool) {
	old = slot.Load()
	for {
		next, proceed := update(old)
		if !proceed {
			return old, nil, false
		}
		if slot.CompareAndSwap(old, next) {
			return old, next, true
		}
		retries.Inc()
		old = slot.Load()
	}
}
