package memory

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	lferrors "github.com/23skdu/lockfree/internal/errors"
	"github.com/23skdu/lockfree/internal/metrics"
)

const (
	stateFresh uint32 = iota
	stateLive
	stateFreed
)

// Header is embedded in every node handed out by an Allocator. It records whether
// the node is currently live so that a second Free, or handing out a node that is
// still live, is caught at the point it happens.
type Header struct {
	state atomic.Uint32
}

// NodeHeader returns the header itself so embedding types satisfy Object.
func (h *Header) NodeHeader() *Header { return h }

// Live reports whether the node is allocated and not yet freed.
func (h *Header) Live() bool { return h.state.Load() == stateLive }

// Object is the pointer constraint for node types managed by an Allocator.
type Object[T any] interface {
	*T
	NodeHeader() *Header
}

// AllocatorStats is a point-in-time snapshot of allocator counters.
type AllocatorStats struct {
	Allocated int64
	Freed     int64
	Recycled  int64
	Live      int64
}

// Allocator hands out nodes of type T and takes them back for reuse.
//
// A freed node is returned to a pool and WILL be returned by a later New, so
// freeing a node that another goroutine can still reach is a use-after-free in
// the same sense as with manual memory management.
type Allocator[T any, P Object[T]] struct {
	name  string
	pool  sync.Pool
	reset func(P)

	allocated atomic.Int64
	freed     atomic.Int64
	recycled  atomic.Int64

	allocatedTotal prometheus.Counter
	freedTotal     prometheus.Counter
	recycledTotal  prometheus.Counter
	live           prometheus.Gauge
}

// NewAllocator creates an allocator. reset, if non-nil, is called on every freed
// node before it is pooled and must drop payload references.
func NewAllocator[T any, P Object[T]](name string, reset func(P)) *Allocator[T, P] {
	return &Allocator[T, P]{
		name:           name,
		reset:          reset,
		allocatedTotal: metrics.NodesAllocatedTotal.WithLabelValues(name),
		freedTotal:     metrics.NodesFreedTotal.WithLabelValues(name),
		recycledTotal:  metrics.NodesRecycledTotal.WithLabelValues(name),
		live:           metrics.NodesLive.WithLabelValues(name),
	}
}

// Name returns the allocator's metric label.
func (a *Allocator[T, P]) Name() string { return a.name }

// New returns a live node, recycled if one is available.
func (a *Allocator[T, P]) New() P {
	var p P
	if v := a.pool.Get(); v != nil {
		p = v.(P)
		a.recycled.Add(1)
		a.recycledTotal.Inc()
	} else {
		p = P(new(T))
	}

	if prev := p.NodeHeader().state.Swap(stateLive); prev == stateLive {
		panic(lferrors.WrapInvariantError(lferrors.ErrUseAfterFree, "memory.New",
			fmt.Sprintf("allocator %s handed out a live node", a.name)))
	}

	a.allocated.Add(1)
	a.allocatedTotal.Inc()
	a.live.Inc()
	return p
}

// Free returns p to the allocator. Freeing a node that is not live panics.
func (a *Allocator[T, P]) Free(p P) {
	h := p.NodeHeader()
	if !h.state.CompareAndSwap(stateLive, stateFreed) {
		panic(lferrors.WrapInvariantError(lferrors.ErrDoubleFree, "memory.Free",
			fmt.Sprintf("allocator %s: node freed twice", a.name)))
	}
	if a.reset != nil {
		a.reset(p)
	}

	a.freed.Add(1)
	a.freedTotal.Inc()
	a.live.Dec()
	a.pool.Put(p)
}

// Live returns the number of nodes allocated and not yet freed.
func (a *Allocator[T, P]) Live() int64 {
	return a.allocated.Load() - a.freed.Load()
}

// Stats returns a snapshot of the allocator counters.
func (a *Allocator[T, P]) Stats() AllocatorStats {
	allocated := a.allocated.Load()
	freed := a.freed.Load()
	return AllocatorStats{
		Allocated: allocated,
		Freed:     freed,
		Recycled:  a.recycled.Load(),
		Live:      allocated - freed,
	}
}
