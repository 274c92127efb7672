// Package hazard implements hazard pointers: a bounded, globally visible table in
// which each registered goroutine publishes the address it is about to dereference,
// plus retire lists for nodes that could not be freed because some slot still
// published them.
//
// Go has no goroutine identity, so the per-thread slot of the classic scheme is an
// explicit Owner obtained from Register and given back with Release.
package hazard

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sys/cpu"

	lferrors "github.com/23skdu/lockfree/internal/errors"
	"github.com/23skdu/lockfree/internal/metrics"
)

// DefaultCapacity bounds the number of goroutines that can hold an Owner at once.
const DefaultCapacity = 100

// ErrSlotsExhausted is returned (wrapped) by Register when every slot is owned.
var ErrSlotsExhausted = stderrors.New("no hazard pointer slots available")

type slot struct {
	owner   atomic.Uint64 // 0 when free
	pointer unsafe.Pointer
	_       cpu.CacheLinePad
}

// Domain is a hazard pointer table shared by every structure that reclaims through it.
type Domain struct {
	name   string
	slots  []slot
	nextID atomic.Uint64
	inUse  atomic.Int64

	orphans     atomic.Pointer[retired]
	orphanCount atomic.Int64

	logger zerolog.Logger

	slotsInUse prometheus.Gauge
	exhausted  prometheus.Counter
	retiredNow prometheus.Gauge
	scans      prometheus.Counter
}

// Option configures a Domain.
type Option func(*Domain)

// WithName sets the domain's metric label. Defaults to "domain-<capacity>".
func WithName(name string) Option {
	return func(d *Domain) { d.name = name }
}

// WithLogger sets the logger used for exhaustion warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Domain) { d.logger = logger }
}

// NewDomain creates a table with capacity slots. A non-positive capacity uses DefaultCapacity.
func NewDomain(capacity int, opts ...Option) *Domain {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	d := &Domain{
		name:   "domain-" + strconv.Itoa(capacity),
		slots:  make([]slot, capacity),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.slotsInUse = metrics.HazardSlotsInUse.WithLabelValues(d.name)
	d.exhausted = metrics.HazardExhaustedTotal.WithLabelValues(d.name)
	d.retiredNow = metrics.HazardRetiredNodes.WithLabelValues(d.name)
	d.scans = metrics.HazardScansTotal.WithLabelValues(d.name)
	return d
}

var (
	defaultOnce   sync.Once
	defaultDomain *Domain
)

// Default returns the process-wide domain with DefaultCapacity slots.
func Default() *Domain {
	defaultOnce.Do(func() {
		defaultDomain = NewDomain(DefaultCapacity, WithName("default"))
	})
	return defaultDomain
}

// Name returns the domain's metric label.
func (d *Domain) Name() string { return d.name }

// Capacity returns the number of slots in the table.
func (d *Domain) Capacity() int { return len(d.slots) }

// InUse returns the number of slots currently owned.
func (d *Domain) InUse() int { return int(d.inUse.Load()) }

// Register claims the first free slot for the calling goroutine.
func (d *Domain) Register() (*Owner, error) {
	id := d.nextID.Add(1)
	for i := range d.slots {
		s := &d.slots[i]
		if s.owner.Load() != 0 {
			continue
		}
		if s.owner.CompareAndSwap(0, id) {
			d.inUse.Add(1)
			d.slotsInUse.Inc()
			return &Owner{domain: d, slot: s, id: id}, nil
		}
	}

	d.exhausted.Inc()
	d.logger.Warn().
		Str("domain", d.name).
		Int("capacity", len(d.slots)).
		Msg("hazard pointer table exhausted")

	return nil, lferrors.WrapResourceError(ErrSlotsExhausted, "hazard.Register",
		fmt.Sprintf("all %d slots of domain %s are owned", len(d.slots), d.name)).
		WithContext("capacity", len(d.slots)).
		WithContext("domain", d.name)
}

// Hazardous reports whether any slot currently publishes p.
func (d *Domain) Hazardous(p unsafe.Pointer) bool {
	if p == nil {
		return false
	}
	for i := range d.slots {
		if atomic.LoadPointer(&d.slots[i].pointer) == p {
			return true
		}
	}
	return false
}

// Reclaim runs the reclaim function of every orphaned retired node that is no
// longer published and puts the rest back. It returns the number reclaimed.
func (d *Domain) Reclaim() int {
	if d.orphans.Load() == nil {
		return 0
	}
	list := d.orphans.Swap(nil)
	d.scans.Inc()

	var keepFirst, keepLast *retired
	kept, freed := 0, 0
	for r := list; r != nil; {
		next := r.next
		if d.Hazardous(r.ptr) {
			r.next = keepFirst
			if keepFirst == nil {
				keepLast = r
			}
			keepFirst = r
			kept++
		} else {
			r.reclaim()
			freed++
		}
		r = next
	}

	d.orphanCount.Add(-int64(freed + kept))
	if keepFirst != nil {
		d.pushOrphans(keepFirst, keepLast, kept)
	}
	d.retiredNow.Sub(float64(freed))
	return freed
}

// Orphans returns the number of retired nodes left behind by released owners.
func (d *Domain) Orphans() int { return int(d.orphanCount.Load()) }

func (d *Domain) pushOrphans(first, last *retired, n int) {
	d.orphanCount.Add(int64(n))
	for {
		head := d.orphans.Load()
		last.next = head
		if d.orphans.CompareAndSwap(head, first) {
			return
		}
	}
}
