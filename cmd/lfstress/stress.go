package main

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/lockfree/internal/concurrency"
	lferrors "github.com/23skdu/lockfree/internal/errors"
	"github.com/23skdu/lockfree/internal/hazard"
	"github.com/23skdu/lockfree/internal/limiter"
	"github.com/23skdu/lockfree/internal/memory"
	"github.com/23skdu/lockfree/internal/metrics"
	"github.com/23skdu/lockfree/internal/pool"
)

// handle is one goroutine's access to the container under test.
type handle struct {
	push    func(uint32)
	pop     func() (uint32, bool)
	release func()
}

// target is a container instance wired for a run.
type target struct {
	newHandle func() (handle, error)
	close     func()
	stats     func() memory.AllocatorStats
}

type structure struct {
	fifo     bool // per-producer order is observable by each consumer
	reclaims bool
	create   func(cfg Config, logger zerolog.Logger) target
}

type container interface {
	Push(uint32)
	Pop() (uint32, bool)
	Close()
	Stats() memory.AllocatorStats
}

func shared(c container) target {
	return target{
		newHandle: func() (handle, error) {
			return handle{push: c.Push, pop: c.Pop, release: func() {}}, nil
		},
		close: c.Close,
		stats: c.Stats,
	}
}

var structures = map[string]structure{
	"leaky_stack": {create: func(Config, zerolog.Logger) target {
		return shared(concurrency.NewLeakyStack[uint32]())
	}},
	"refcount_stack": {reclaims: true, create: func(Config, zerolog.Logger) target {
		return shared(concurrency.NewRefCountStack[uint32]())
	}},
	"splitref_stack": {reclaims: true, create: func(Config, zerolog.Logger) target {
		return shared(concurrency.NewSplitRefStack[uint32]())
	}},
	"hazard_stack": {reclaims: true, create: func(cfg Config, logger zerolog.Logger) target {
		domain := hazard.NewDomain(cfg.HazardSlots, hazard.WithName("lfstress"), hazard.WithLogger(logger))
		s := concurrency.NewHazardStack[uint32](domain)
		return target{
			newHandle: func() (handle, error) {
				h, err := s.Handle()
				if err != nil {
					return handle{}, err
				}
				return handle{push: h.Push, pop: h.Pop, release: h.Release}, nil
			},
			close: s.Close,
			stats: s.Stats,
		}
	}},
	"spsc_queue": {fifo: true, reclaims: true, create: func(Config, zerolog.Logger) target {
		return shared(concurrency.NewSPSCQueue[uint32]())
	}},
	"counted_queue": {fifo: true, reclaims: true, create: func(Config, zerolog.Logger) target {
		return shared(concurrency.NewCountedQueue[uint32]())
	}},
	"helping_queue": {fifo: true, reclaims: true, create: func(Config, zerolog.Logger) target {
		return shared(concurrency.NewHelpingQueue[uint32]())
	}},
}

// StructureNames returns the registered container names in sorted order.
func StructureNames() []string {
	names := make([]string, 0, len(structures))
	for name := range structures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Result is the outcome of one stress run.
type Result struct {
	RunID            string
	Structure        string
	Producers        int
	Consumers        int
	ItemsPerProducer int
	Pushed           uint64
	Popped           uint64
	EmptyPops        uint64
	Duplicates       uint64
	Missing          uint64
	OrderViolations  uint64
	Nodes            memory.AllocatorStats
	Started          time.Time
	Duration         time.Duration
	reclaims         bool
}

// Passed reports whether the run conserved every value, kept per-producer order
// where the container promises it, and freed every node.
func (r *Result) Passed() bool {
	if r.Duplicates != 0 || r.Missing != 0 || r.OrderViolations != 0 {
		return false
	}
	return !r.reclaims || r.Nodes.Live == 0
}

// consumerLog is what a single consumer saw.
type consumerLog struct {
	seen       *roaring.Bitmap
	duplicates uint64
	order      uint64
	empty      uint64
}

// Run pushes Producers*ItemsPerProducer distinct values through the configured
// container while Consumers goroutines pop them, then verifies the result.
func Run(ctx context.Context, cfg Config, logger zerolog.Logger) (*Result, error) {
	if err := ValidateConfig(&cfg); err != nil {
		return nil, lferrors.Wrap(err, lferrors.ErrorTypeValidation, "lfstress.Run", "invalid configuration")
	}
	st := structures[cfg.Structure]
	tgt := st.create(cfg, logger)

	res := &Result{
		RunID:            uuid.NewString(),
		Structure:        cfg.Structure,
		Producers:        cfg.Producers,
		Consumers:        cfg.Consumers,
		ItemsPerProducer: cfg.ItemsPerProducer,
		Started:          time.Now(),
		reclaims:         st.reclaims,
	}
	log := logger.With().Str("run_id", res.RunID).Str("structure", cfg.Structure).Logger()

	handles := make([]handle, 0, cfg.Producers+cfg.Consumers)
	for len(handles) < cap(handles) {
		h, err := tgt.newHandle()
		if err != nil {
			for _, registered := range handles {
				registered.release()
			}
			tgt.close()
			return nil, err
		}
		handles = append(handles, h)
	}
	producers, consumers := handles[:cfg.Producers], handles[cfg.Producers:]

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	total := uint64(cfg.Producers) * uint64(cfg.ItemsPerProducer)
	var pushed, popped atomic.Uint64
	logs := make([]consumerLog, cfg.Consumers)

	log.Info().
		Int("producers", cfg.Producers).
		Int("consumers", cfg.Consumers).
		Int("items_per_producer", cfg.ItemsPerProducer).
		Msg("stress run starting")

	g, gctx := errgroup.WithContext(ctx)
	for p, h := range producers {
		g.Go(func() error {
			pacer := limiter.NewRateLimiter(limiter.Config{Rate: cfg.PushRate, Burst: cfg.PushBurst})
			base := uint32(p * cfg.ItemsPerProducer)
			for i := 0; i < cfg.ItemsPerProducer; i++ {
				if err := pacer.Wait(gctx); err != nil {
					return err
				}
				h.push(base + uint32(i))
				pushed.Add(1)
			}
			return nil
		})
	}
	for c, h := range consumers {
		logs[c].seen = pool.GetBitmap()
		g.Go(func() error {
			cl := &logs[c]
			last := make([]int64, cfg.Producers)
			for i := range last {
				last[i] = -1
			}
			for popped.Load() < total {
				v, ok := h.pop()
				if !ok {
					cl.empty++
					if cl.empty%1024 == 0 {
						if err := gctx.Err(); err != nil {
							return err
						}
					}
					continue
				}
				popped.Add(1)
				if !cl.seen.CheckedAdd(v) {
					cl.duplicates++
				}
				if st.fifo {
					producer, seq := int(v)/cfg.ItemsPerProducer, int64(int(v)%cfg.ItemsPerProducer)
					if seq <= last[producer] {
						cl.order++
					}
					last[producer] = seq
				}
			}
			return nil
		})
	}
	runErr := g.Wait()

	res.Duration = time.Since(res.Started)
	res.Pushed = pushed.Load()
	res.Popped = popped.Load()
	verify(res, logs, total)
	for i := range logs {
		pool.PutBitmap(logs[i].seen)
	}

	for _, h := range handles {
		h.release()
	}
	tgt.close()
	res.Nodes = tgt.stats()

	metrics.StressRunDurationSeconds.WithLabelValues(cfg.Structure).Observe(res.Duration.Seconds())
	violations := metrics.StressViolationsTotal
	violations.WithLabelValues(cfg.Structure, "duplicate").Add(float64(res.Duplicates))
	violations.WithLabelValues(cfg.Structure, "missing").Add(float64(res.Missing))
	violations.WithLabelValues(cfg.Structure, "order").Add(float64(res.OrderViolations))

	bitmapGets, bitmapMisses := pool.GlobalStats()
	event := log.Info()
	if !res.Passed() {
		event = log.Error()
	}
	event.
		Uint64("pushed", res.Pushed).
		Uint64("popped", res.Popped).
		Uint64("duplicates", res.Duplicates).
		Uint64("missing", res.Missing).
		Uint64("order_violations", res.OrderViolations).
		Int64("nodes_live", res.Nodes.Live).
		Int64("bitmap_gets", bitmapGets).
		Int64("bitmap_misses", bitmapMisses).
		Dur("duration", res.Duration).
		Bool("passed", res.Passed()).
		Msg("stress run finished")

	if runErr != nil {
		return res, lferrors.WrapResourceError(runErr, "lfstress.Run", "run did not complete").
			WithContext("pushed", res.Pushed).
			WithContext("popped", res.Popped)
	}
	return res, nil
}

// verify folds the consumer logs into res. A value popped by two consumers is a
// duplicate as much as one popped twice by the same consumer.
func verify(res *Result, logs []consumerLog, total uint64) {
	seen := make([]*roaring.Bitmap, len(logs))
	for i := range logs {
		seen[i] = logs[i].seen
		res.Duplicates += logs[i].duplicates
		res.OrderViolations += logs[i].order
		res.EmptyPops += logs[i].empty
	}
	res.Duplicates += pool.Overlap(seen...)
	union := roaring.FastOr(seen...).GetCardinality()
	if union < total {
		res.Missing = total - union
	}
}
