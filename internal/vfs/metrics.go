package vfs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	vfsPrometheusMetrics sync.Once

	vfsOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memvfs",
			Subsystem: "vfs",
			Name:      "operations_total",
			Help:      "Number of filesystem operations performed, by operation and outcome.",
		},
		[]string{"operation", "outcome"})
)

// RegisterMetrics registers the volume's Prometheus collectors: the
// operation counters plus gauges fed from the table's usage counters.
// Safe to call once per process; the gauges track the given volume.
func RegisterMetrics(f *Filesystem) {
	vfsPrometheusMetrics.Do(func() {
		prometheus.MustRegister(vfsOperationsTotal)
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "memvfs",
				Subsystem: "vfs",
				Name:      "nodes_used",
				Help:      "Number of entries in the volume, root included.",
			},
			func() float64 { return float64(f.table.Counters().UsedNodes) }))
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "memvfs",
				Subsystem: "vfs",
				Name:      "nodes_capacity",
				Help:      "Node quota of the volume.",
			},
			func() float64 { return float64(f.table.Counters().NodeCapacity) }))
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "memvfs",
				Subsystem: "vfs",
				Name:      "capacity_bytes",
				Help:      "Total byte capacity advertised by the volume.",
			},
			func() float64 { return float64(f.table.Counters().TotalBytes) }))
	})
}

// observe records one operation outcome.
func observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	vfsOperationsTotal.WithLabelValues(operation, outcome).Inc()
}
