// Package metrics provides Prometheus metrics for the Scrutin daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UnitsImportedTotal counts accepted unit rows by hierarchy.
	UnitsImportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scrutin",
			Subsystem: "ingestion",
			Name:      "units_imported_total",
			Help:      "Total number of unit rows accepted by import",
		},
		[]string{"hierarchy"},
	)

	// UnitsRejectedTotal counts unit rows rejected for shape errors.
	UnitsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scrutin",
			Subsystem: "ingestion",
			Name:      "units_rejected_total",
			Help:      "Total number of unit rows rejected as malformed",
		},
		[]string{"hierarchy", "field"},
	)

	// ViolationsTotal counts non-fatal invariant violations.
	ViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scrutin",
			Subsystem: "ingestion",
			Name:      "violations_total",
			Help:      "Total number of non-fatal invariant violations seen in unit rows",
		},
		[]string{"hierarchy", "kind"},
	)

	// TransitionsTotal counts publish and cancel attempts by outcome code.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scrutin",
			Subsystem: "publication",
			Name:      "transitions_total",
			Help:      "Total number of publish and cancel attempts by outcome",
		},
		[]string{"entity_type", "action", "outcome"},
	)

	// AggregationDuration tracks how long a full tree build takes.
	AggregationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scrutin",
			Subsystem: "aggregation",
			Name:      "build_duration_seconds",
			Help:      "Duration of a full hierarchy build in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"hierarchy"},
	)

	// ArchiveCacheLookups counts archive cache hits and misses.
	ArchiveCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scrutin",
			Subsystem: "archive",
			Name:      "cache_lookups_total",
			Help:      "Total number of archive cache lookups by result",
		},
		[]string{"result"},
	)
)
