package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CASRetriesTotal counts failed compare-and-swap attempts that had to be retried
	CASRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockfree_cas_retries_total",
			Help: "Total number of failed CAS attempts retried, by structure",
		},
		[]string{"structure"},
	)

	// ReclaimPendingNodes tracks nodes waiting on a deferred deletion chain
	ReclaimPendingNodes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lockfree_reclaim_pending_nodes",
			Help: "Number of popped nodes whose deletion is deferred",
		},
		[]string{"structure"},
	)

	// ContainerOpsTotal counts push and pop calls by structure and result
	ContainerOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockfree_container_ops_total",
			Help: "Total number of container operations",
		},
		[]string{"structure", "op", "result"}, // op: push|pop, result: ok|empty
	)
)
