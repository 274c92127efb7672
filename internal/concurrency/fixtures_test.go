package concurrency

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/23skdu/lockfree/internal/hazard"
	"github.com/23skdu/lockfree/internal/memory"
)

// handle is one goroutine's access to a container under test.
type handle struct {
	push    func(int)
	pop     func() (int, bool)
	release func()
}

type fixture struct {
	// newHandle must be called from the test goroutine.
	newHandle func(tb testing.TB) handle
	close     func()
	stats     func() memory.AllocatorStats
}

type containerDesc struct {
	name     string
	lifo     bool
	spsc     bool // one producer and one consumer only
	reclaims bool // every node is freed by the time close returns
	create   func() fixture
}

type closableContainer interface {
	Push(int)
	Pop() (int, bool)
	Close()
	Stats() memory.AllocatorStats
}

func plainFixture(c closableContainer) fixture {
	return fixture{
		newHandle: func(testing.TB) handle {
			return handle{push: c.Push, pop: c.Pop, release: func() {}}
		},
		close: c.Close,
		stats: c.Stats,
	}
}

func hazardFixture() fixture {
	s := NewHazardStack[int](hazard.NewDomain(64, hazard.WithName("test_hazard_stack")))
	return fixture{
		newHandle: func(tb testing.TB) handle {
			h, err := s.Handle()
			require.NoError(tb, err)
			return handle{push: h.Push, pop: h.Pop, release: h.Release}
		},
		close: s.Close,
		stats: s.Stats,
	}
}

var stacks = []containerDesc{
	{name: "Leaky", lifo: true, create: func() fixture { return plainFixture(NewLeakyStack[int](WithName("test_leaky"))) }},
	{name: "RefCount", lifo: true, reclaims: true, create: func() fixture { return plainFixture(NewRefCountStack[int](WithName("test_refcount"))) }},
	{name: "Hazard", lifo: true, reclaims: true, create: hazardFixture},
	{name: "SplitRef", lifo: true, reclaims: true, create: func() fixture { return plainFixture(NewSplitRefStack[int](WithName("test_splitref"))) }},
}

var queues = []containerDesc{
	{name: "SPSC", spsc: true, reclaims: true, create: func() fixture { return plainFixture(NewSPSCQueue[int](WithName("test_spsc"))) }},
	{name: "Counted", reclaims: true, create: func() fixture { return plainFixture(NewCountedQueue[int](WithName("test_counted"))) }},
	{name: "Helping", reclaims: true, create: func() fixture { return plainFixture(NewHelpingQueue[int](WithName("test_helping"))) }},
}

func allContainers() []containerDesc {
	return append(append([]containerDesc{}, stacks...), queues...)
}

// drainAll pops until empty and returns what it got, in order.
func drainAll(h handle) []int {
	var out []int
	for {
		v, ok := h.pop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}
