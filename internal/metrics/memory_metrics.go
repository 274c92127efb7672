package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Node allocator metrics
var (
	NodesAllocatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockfree_nodes_allocated_total",
			Help: "Total nodes handed out by a node allocator",
		},
		[]string{"allocator"},
	)

	NodesFreedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockfree_nodes_freed_total",
			Help: "Total nodes returned to a node allocator",
		},
		[]string{"allocator"},
	)

	NodesLive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lockfree_nodes_live",
			Help: "Nodes allocated and not yet freed",
		},
		[]string{"allocator"},
	)

	NodesRecycledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockfree_nodes_recycled_total",
			Help: "Allocations satisfied by a previously freed node",
		},
		[]string{"allocator"},
	)
)
