package concurrency

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	lferrors "github.com/23skdu/lockfree/internal/errors"
	"github.com/23skdu/lockfree/internal/metrics"
)

// ErrSchedulerStarted is returned by Start on a scheduler that is already running.
var ErrSchedulerStarted = errors.New("scheduler already started")

// Task is a unit of work. The worker running it can be used to submit subtasks
// to its local deque and to observe cancellation.
type Task func(w *Worker)

// idleSpins is how many empty polls a worker yields for before it starts sleeping.
const idleSpins = 64

// WorkStealingScheduler runs tasks on a fixed set of workers. Tasks submitted from
// outside go to a shared lock-free queue; tasks submitted by a running task go to
// that worker's own deque. An idle worker steals from the others.
type WorkStealingScheduler struct {
	workers    []*Worker
	global     *HelpingQueue[Task]
	stealIndex atomic.Uint32

	pending   sync.WaitGroup
	queued    atomic.Int64
	executed  atomic.Int64
	panicked  atomic.Int64
	dropped   atomic.Int64
	started   atomic.Bool
	stopped   atomic.Bool
	cancel    context.CancelFunc
	group     *errgroup.Group
	logger    zerolog.Logger
	fromLocal prometheus.Counter
	fromQueue prometheus.Counter
	stolen    prometheus.Counter
}

// Worker is the per-goroutine state of a scheduler worker.
type Worker struct {
	id    int
	sched *WorkStealingScheduler
	local *WorkQueue[Task]
	ctx   context.Context
}

// ID returns the worker index.
func (w *Worker) ID() int { return w.id }

// Context is cancelled when the scheduler stops.
func (w *Worker) Context() context.Context { return w.ctx }

// Submit queues t on this worker's deque.
func (w *Worker) Submit(t Task) {
	w.sched.pending.Add(1)
	w.sched.queued.Add(1)
	w.local.Push(t)
}

// NewWorkStealingScheduler creates a scheduler with numWorkers workers, or one per
// CPU when numWorkers < 1.
func NewWorkStealingScheduler(numWorkers int, opts ...Option) *WorkStealingScheduler {
	if numWorkers < 1 {
		numWorkers = runtime.NumCPU()
	}
	o := applyOptions("scheduler_global", opts)

	ws := &WorkStealingScheduler{
		global:    NewHelpingQueue[Task](WithName(o.name)),
		logger:    o.logger,
		fromLocal: metrics.SchedulerTasksTotal.WithLabelValues("local"),
		fromQueue: metrics.SchedulerTasksTotal.WithLabelValues("global"),
		stolen:    metrics.SchedulerTasksTotal.WithLabelValues("stolen"),
	}
	ws.workers = make([]*Worker, numWorkers)
	for i := range ws.workers {
		ws.workers[i] = &Worker{id: i, sched: ws, local: NewWorkQueue[Task](), ctx: context.Background()}
	}
	return ws
}

// Submit queues t on the shared queue.
func (ws *WorkStealingScheduler) Submit(t Task) {
	ws.pending.Add(1)
	ws.queued.Add(1)
	ws.global.Push(t)
}

// Start launches the workers. They run until ctx is cancelled or Stop is called.
func (ws *WorkStealingScheduler) Start(ctx context.Context) error {
	if !ws.started.CompareAndSwap(false, true) {
		return ErrSchedulerStarted
	}

	ctx, ws.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range ws.workers {
		w.ctx = gctx
		g.Go(func() error { return ws.run(w) })
	}
	ws.group = g

	ws.logger.Info().Int("workers", len(ws.workers)).Msg("scheduler started")
	return nil
}

// Wait blocks until every submitted task, including subtasks, has run. It must
// not be called concurrently with an external Submit.
func (ws *WorkStealingScheduler) Wait() {
	ws.pending.Wait()
}

// Stop cancels the workers and waits for them to exit. Queued tasks that have
// not started are dropped and count as done for Wait. The scheduler cannot be
// used after Stop.
func (ws *WorkStealingScheduler) Stop() error {
	if !ws.stopped.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	if ws.started.Load() && ws.cancel != nil {
		ws.cancel()
		err = ws.group.Wait()
	}
	dropped := ws.dropQueued()

	ws.logger.Info().
		Int64("executed", ws.executed.Load()).
		Int64("panicked", ws.panicked.Load()).
		Int("dropped", dropped).
		Msg("scheduler stopped")

	if err != nil && !errors.Is(err, context.Canceled) {
		return lferrors.WrapResourceError(err, "scheduler.Stop", "worker failed")
	}
	return nil
}

// dropQueued discards every task still queued and frees the shared queue.
// Workers must have exited.
func (ws *WorkStealingScheduler) dropQueued() int {
	dropped := 0
	drop := func() {
		dropped++
		ws.queued.Add(-1)
		ws.pending.Done()
	}
	for _, ok := ws.global.Pop(); ok; _, ok = ws.global.Pop() {
		drop()
	}
	for _, w := range ws.workers {
		for _, ok := w.local.TryPop(); ok; _, ok = w.local.TryPop() {
			drop()
		}
	}
	ws.global.Close()

	ws.dropped.Add(int64(dropped))
	metrics.SchedulerTasksDroppedTotal.Add(float64(dropped))
	return dropped
}

func (ws *WorkStealingScheduler) run(w *Worker) error {
	metrics.SchedulerWorkersActive.Inc()
	defer metrics.SchedulerWorkersActive.Dec()

	idle := 0
	for {
		select {
		case <-w.ctx.Done():
			return nil
		default:
		}

		if ws.runPendingTask(w) {
			idle = 0
			continue
		}
		idle++
		if idle < idleSpins {
			runtime.Gosched()
		} else {
			time.Sleep(50 * time.Microsecond)
		}
	}
}

// runPendingTask runs one task from the local deque, the shared queue or a
// victim's deque, in that order. It reports whether a task was found.
func (ws *WorkStealingScheduler) runPendingTask(w *Worker) bool {
	if t, ok := w.local.TryPop(); ok {
		ws.fromLocal.Inc()
		ws.execute(w, t)
		return true
	}
	if t, ok := ws.global.Pop(); ok {
		ws.fromQueue.Inc()
		ws.execute(w, t)
		return true
	}
	if t, ok := ws.steal(w.id); ok {
		ws.stolen.Inc()
		ws.execute(w, t)
		return true
	}
	return false
}

func (ws *WorkStealingScheduler) steal(self int) (Task, bool) {
	n := len(ws.workers)
	start := int(ws.stealIndex.Load())
	for i := 1; i <= n; i++ {
		victimID := (start + i) % n
		if victimID == self {
			continue
		}
		if t, ok := ws.workers[victimID].local.TrySteal(); ok {
			ws.stealIndex.Store(uint32(victimID))
			return t, true
		}
	}
	return nil, false
}

func (ws *WorkStealingScheduler) execute(w *Worker, t Task) {
	defer ws.pending.Done()
	defer ws.queued.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			ws.panicked.Add(1)
			metrics.SchedulerTaskPanicsTotal.Inc()
			ws.logger.Error().
				Int("worker", w.id).
				Str("panic", fmt.Sprint(r)).
				Msg("task panicked")
		}
	}()

	t(w)
	ws.executed.Add(1)
}

// Stats returns a snapshot of queue depths and counters.
func (ws *WorkStealingScheduler) Stats() SchedulerStats {
	stats := SchedulerStats{
		QueueSizes: make([]int, 0, len(ws.workers)),
		NumWorkers: len(ws.workers),
		StealIndex: int(ws.stealIndex.Load()),
		Queued:     ws.queued.Load(),
		Executed:   ws.executed.Load(),
		Panicked:   ws.panicked.Load(),
		Dropped:    ws.dropped.Load(),
	}
	for _, w := range ws.workers {
		stats.QueueSizes = append(stats.QueueSizes, w.local.Len())
	}
	return stats
}

// SchedulerStats is a point-in-time view of a WorkStealingScheduler.
type SchedulerStats struct {
	QueueSizes []int
	NumWorkers int
	StealIndex int
	Queued     int64
	Executed   int64
	Panicked   int64
	Dropped    int64
}
