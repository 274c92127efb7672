package concurrency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/23skdu/lockfree/internal/metrics"
)

// Option configures a container.
type Option func(*options)

type options struct {
	name   string
	logger zerolog.Logger
}

// WithName sets the label used for the container's metrics and node allocator.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger used outside of the push/pop paths.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func applyOptions(kind string, opts []Option) options {
	o := options{name: kind, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// opCounters are the per-container metric children, resolved once at construction.
type opCounters struct {
	retries prometheus.Counter
	pushes  prometheus.Counter
	pops    prometheus.Counter
	empties prometheus.Counter
}

func newOpCounters(name string) opCounters {
	return opCounters{
		retries: metrics.CASRetriesTotal.WithLabelValues(name),
		pushes:  metrics.ContainerOpsTotal.WithLabelValues(name, "push", "ok"),
		pops:    metrics.ContainerOpsTotal.WithLabelValues(name, "pop", "ok"),
		empties: metrics.ContainerOpsTotal.WithLabelValues(name, "pop", "empty"),
	}
}
