package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HazardSlotsInUse tracks registered hazard pointer owners per domain
	HazardSlotsInUse = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lockfree_hazard_slots_in_use",
			Help: "Number of hazard pointer slots owned by a goroutine",
		},
		[]string{"domain"},
	)

	// HazardExhaustedTotal counts registrations rejected because the table was full
	HazardExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockfree_hazard_exhausted_total",
			Help: "Total hazard slot registrations that failed for lack of a free slot",
		},
		[]string{"domain"},
	)

	// HazardRetiredNodes tracks nodes retired but not yet reclaimed
	HazardRetiredNodes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lockfree_hazard_retired_nodes",
			Help: "Number of retired nodes still waiting for hazards to clear",
		},
		[]string{"domain"},
	)

	// HazardScansTotal counts full scans of the hazard table
	HazardScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockfree_hazard_scans_total",
			Help: "Total reclaim scans over retired nodes",
		},
		[]string{"domain"},
	)
)
