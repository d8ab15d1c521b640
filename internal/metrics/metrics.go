// Package metrics exposes the Prometheus collectors shared by the Rooter,
// the Projection, and the Observer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth is the number of operations currently pending in the
	// Rooter's queue.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sidetree",
		Subsystem: "rooter",
		Name:      "queue_depth",
		Help:      "Number of operations currently pending anchoring.",
	})

	// TicksTotal counts completed pipeline ticks that anchored at least one
	// operation.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sidetree",
		Subsystem: "rooter",
		Name:      "ticks_total",
		Help:      "Total number of pipeline ticks that anchored a batch.",
	})

	// OperationsAnchoredTotal counts operations successfully anchored.
	OperationsAnchoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sidetree",
		Subsystem: "rooter",
		Name:      "operations_anchored_total",
		Help:      "Total number of operations successfully anchored.",
	})

	// ProjectionOperationCount is the current size of the projection's
	// operation-hash index.
	ProjectionOperationCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sidetree",
		Subsystem: "projection",
		Name:      "operation_count",
		Help:      "Number of operations currently tracked by the projection.",
	})

	// RollbacksTotal counts projection rollbacks triggered by the observer.
	RollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sidetree",
		Subsystem: "projection",
		Name:      "rollbacks_total",
		Help:      "Total number of rollbacks applied to the projection.",
	})
)
