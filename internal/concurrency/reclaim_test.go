package concurrency

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lferrors "github.com/23skdu/lockfree/internal/errors"
	"github.com/23skdu/lockfree/internal/hazard"
)

func TestContainers_ReclaimUnderStress(t *testing.T) {
	const producers = 4
	const consumers = 4
	const perProducer = 2000

	for _, desc := range allContainers() {
		if desc.spsc {
			continue
		}
		t.Run(desc.name, func(t *testing.T) {
			f := desc.create()
			prod := make([]handle, producers)
			cons := make([]handle, consumers)
			for i := range prod {
				prod[i] = f.newHandle(t)
			}
			for i := range cons {
				cons[i] = f.newHandle(t)
			}

			var popped atomic.Int64
			var wg sync.WaitGroup
			for p := 0; p < producers; p++ {
				wg.Add(1)
				go func(h handle, base int) {
					defer wg.Done()
					for i := 0; i < perProducer; i++ {
						h.push(base + i)
					}
				}(prod[p], p*perProducer)
			}
			for c := 0; c < consumers; c++ {
				wg.Add(1)
				go func(h handle) {
					defer wg.Done()
					for popped.Load() < producers*perProducer {
						if _, ok := h.pop(); ok {
							popped.Add(1)
						}
					}
				}(cons[c])
			}
			wg.Wait()

			assert.Equal(t, int64(producers*perProducer), popped.Load())
			for _, h := range append(prod, cons...) {
				h.release()
			}
			f.close()

			stats := f.stats()
			assert.Equal(t, stats.Allocated, stats.Freed+stats.Live)
			if desc.reclaims {
				assert.Zero(t, stats.Live, "every node freed exactly once")
			}
		})
	}
}

func TestLeakyStack_NeverFreesPopped(t *testing.T) {
	s := NewLeakyStack[int](WithName("test_leaky_live"))
	for i := 0; i < 10; i++ {
		s.Push(i)
	}
	for i := 0; i < 4; i++ {
		_, ok := s.Pop()
		require.True(t, ok)
	}
	assert.Equal(t, int64(10), s.Stats().Live)

	s.Close()
	assert.Equal(t, int64(4), s.Stats().Live, "only linked nodes are freed on close")
}

func TestRefCountStack_SolePopperFreesImmediately(t *testing.T) {
	s := NewRefCountStack[int](WithName("test_refcount_sole"))
	for i := 0; i < 10; i++ {
		s.Push(i)
	}
	for i := 0; i < 10; i++ {
		_, ok := s.Pop()
		require.True(t, ok)
		assert.Zero(t, s.Pending())
	}
	assert.Zero(t, s.Stats().Live)
	s.Close()
}

func TestRefCountStack_OverlappingPopDefers(t *testing.T) {
	s := NewRefCountStack[int](WithName("test_refcount_defer"))
	s.Push(1)
	s.Push(2)

	// Simulate a second goroutine parked inside Pop.
	s.threadsInPop.Add(1)
	v, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, s.Pending(), "node deferred while another popper is active")
	assert.Equal(t, int64(2), s.Stats().Live)

	s.threadsInPop.Add(-1)
	v, ok = s.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Zero(t, s.Pending(), "sole popper frees the pending chain")
	assert.Zero(t, s.Stats().Live)
	s.Close()
}

func TestRefCountStack_LatePopperRechainsClaimed(t *testing.T) {
	s := NewRefCountStack[int](WithName("test_refcount_late_popper"))
	s.Push(1)
	s.Push(2)
	s.Push(3)

	s.threadsInPop.Add(1)
	v, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, 3, v)
	require.Equal(t, 1, s.Pending())
	s.threadsInPop.Add(-1)

	// Another popper enters after the chain was claimed.
	s.afterSwap = func() {
		s.afterSwap = nil
		s.threadsInPop.Add(1)
	}
	v, ok = s.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, s.Pending(), "claimed chain and own node go back")
	assert.Equal(t, int64(3), s.Stats().Live, "nothing freed")

	s.threadsInPop.Add(-1)
	v, ok = s.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Zero(t, s.Pending())
	assert.Zero(t, s.Stats().Live)
	s.Close()
}

func TestHazardStack_HandleExhaustion(t *testing.T) {
	s := NewHazardStack[int](hazard.NewDomain(2, hazard.WithName("test_hazard_exhaustion")))

	a, err := s.Handle()
	require.NoError(t, err)
	b, err := s.Handle()
	require.NoError(t, err)

	c, err := s.Handle()
	assert.Nil(t, c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, hazard.ErrSlotsExhausted))
	assert.True(t, lferrors.IsType(err, lferrors.ErrorTypeResource))

	a.Release()
	c, err = s.Handle()
	require.NoError(t, err)
	c.Release()
	b.Release()
	s.Close()
}

func TestHazardStack_PublishedNodeIsRetired(t *testing.T) {
	s := NewHazardStack[int](hazard.NewDomain(4, hazard.WithName("test_hazard_retire")))
	reader, err := s.Handle()
	require.NoError(t, err)
	popper, err := s.Handle()
	require.NoError(t, err)

	s.Push(1)
	reader.owner.Protect(unsafe.Pointer(s.head.Load()))

	v, ok := popper.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, popper.owner.Pending(), "published node must not be freed")
	assert.Equal(t, int64(1), s.Stats().Live)

	reader.owner.Clear()
	popper.Push(2)
	v, ok = popper.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Zero(t, popper.owner.Pending())
	assert.Zero(t, s.Stats().Live)

	reader.Release()
	popper.Release()
	s.Close()
}

func TestHazardStack_ReleasedHandleOrphansAreReclaimed(t *testing.T) {
	domain := hazard.NewDomain(4, hazard.WithName("test_hazard_orphans"))
	s := NewHazardStack[int](domain)
	reader, err := s.Handle()
	require.NoError(t, err)
	popper, err := s.Handle()
	require.NoError(t, err)

	s.Push(1)
	reader.owner.Protect(unsafe.Pointer(s.head.Load()))
	_, ok := popper.Pop()
	require.True(t, ok)

	popper.Release()
	assert.Equal(t, 1, domain.Orphans())
	assert.Equal(t, int64(1), s.Stats().Live)

	reader.Release()
	s.Close()
	assert.Zero(t, domain.Orphans())
	assert.Zero(t, s.Stats().Live)
}

func TestSplitRefStack_EmptyPopKeepsStackUsable(t *testing.T) {
	s := NewSplitRefStack[int](WithName("test_splitref_empty"))
	for i := 0; i < 3; i++ {
		_, ok := s.Pop()
		assert.False(t, ok)
	}
	s.Push(7)
	v, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, 7, v)
	assert.Zero(t, s.Stats().Live)
	s.Close()
}

func TestHelpingQueue_ConcurrentPushSameTail(t *testing.T) {
	const rounds = 500
	q := NewHelpingQueue[int](WithName("test_helping_same_tail"))

	for r := 0; r < rounds; r++ {
		start := make(chan struct{})
		var wg sync.WaitGroup
		for p := 0; p < 2; p++ {
			wg.Add(1)
			go func(v int) {
				defer wg.Done()
				<-start
				q.Push(v)
			}(r*2 + p)
		}
		close(start)
		wg.Wait()

		var got []int
		for {
			v, ok := q.Pop()
			if !ok {
				break
			}
			got = append(got, v)
		}
		require.ElementsMatch(t, []int{r * 2, r*2 + 1}, got, "round %d", r)
	}

	q.Close()
	assert.Zero(t, q.Stats().Live)
}

func TestHelpingQueue_StalledPusherDoesNotBlockOthers(t *testing.T) {
	q := NewHelpingQueue[int](WithName("test_helping_stall"))

	var stalled atomic.Bool
	claimed := make(chan struct{})
	resume := make(chan struct{})
	q.afterClaim = func() {
		if stalled.CompareAndSwap(false, true) {
			close(claimed)
			<-resume
		}
	}

	stalledDone := make(chan struct{})
	go func() {
		defer close(stalledDone)
		q.Push(1)
	}()
	<-claimed

	othersDone := make(chan struct{})
	go func() {
		defer close(othersDone)
		for i := 2; i <= 100; i++ {
			q.Push(i)
		}
	}()

	select {
	case <-othersDone:
	case <-time.After(5 * time.Second):
		t.Fatal("pushers stuck behind a stalled pusher")
	}

	var got []int
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i+1, v)
	}

	close(resume)
	<-stalledDone

	q.Push(101)
	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 101, v)

	q.Close()
	assert.Zero(t, q.Stats().Live)
}

func TestCountedQueue_EmptyPopReleasesReference(t *testing.T) {
	for _, q := range []closableContainer{
		NewCountedQueue[int](WithName("test_counted_empty")),
		NewHelpingQueue[int](WithName("test_helping_empty")),
	} {
		for i := 0; i < 100; i++ {
			_, ok := q.Pop()
			require.False(t, ok)
		}
		q.Push(1)
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, 1, v)
		assert.Equal(t, int64(1), q.Stats().Live, "only the sentinel remains")

		q.Close()
		assert.Zero(t, q.Stats().Live)
	}
}
