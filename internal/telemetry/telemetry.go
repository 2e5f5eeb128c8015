// Package telemetry exposes a small set of in-process Prometheus metrics.
// Nothing in this package serves HTTP; the CLI's --performance mode reads
// [*Metrics.Snapshot] and prints it directly, keeping the status-web-endpoint
// Non-goal intact while still giving the prometheus client library a real,
// exercised home.
package telemetry

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a private Prometheus registry plus the counters the Core
// increments as it runs.
type Metrics struct {
	registry *prometheus.Registry

	ConnectionsTotal     prometheus.Counter
	BindFailuresTotal    prometheus.Counter
	DiscoveryRecordsTotal prometheus.Counter
	CalibrationRunsTotal prometheus.Counter
}

// New registers a fresh set of counters against a private registry (never
// the global default registry, so multiple *Managers in the same process
// or in tests don't collide).
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ipcow_connections_total",
			Help: "Total number of TCP connections accepted across all listeners.",
		}),
		BindFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ipcow_bind_failures_total",
			Help: "Total number of endpoint bind failures.",
		}),
		DiscoveryRecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ipcow_discovery_records_total",
			Help: "Total number of service discovery records written.",
		}),
		CalibrationRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ipcow_calibration_runs_total",
			Help: "Total number of worker calibration runs performed.",
		}),
	}

	reg.MustRegister(m.ConnectionsTotal, m.BindFailuresTotal, m.DiscoveryRecordsTotal, m.CalibrationRunsTotal)
	return m
}

// Snapshot is a point-in-time read of every counter, suitable for
// tablewriter rendering.
type Snapshot struct {
	Connections     float64
	BindFailures    float64
	DiscoveryRecords float64
	CalibrationRuns float64
}

// Snapshot reads the current value of every counter.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Connections:      readCounter(m.ConnectionsTotal),
		BindFailures:     readCounter(m.BindFailuresTotal),
		DiscoveryRecords: readCounter(m.DiscoveryRecordsTotal),
		CalibrationRuns:  readCounter(m.CalibrationRunsTotal),
	}
}

func readCounter(c prometheus.Counter) float64 {
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		return 0
	}
	return metric.GetCounter().GetValue()
}
