package driver

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Parts of Prometheus metric names.
const (
	namespace = "marlin"
	subsystem = "driver"
)

// metrics holds the executor's command metrics.
type metrics struct {
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// newMetrics creates metrics for one named executor. The name becomes a
// constant label so several executors can report through one collector.
func newMetrics(executor string) *metrics {
	constLabels := prometheus.Labels{"executor": executor}

	return &metrics{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   subsystem,
				Name:        "commands_total",
				Help:        "Total number of executed commands.",
				ConstLabels: constLabels,
			},
			[]string{"verb", "kind", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   subsystem,
				Name:        "command_duration_seconds",
				Help:        "Command round-trip duration.",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: constLabels,
			},
			[]string{"verb"},
		),
	}
}

// Describe implements prometheus.Collector.
func (m *metrics) Describe(ch chan<- *prometheus.Desc) {
	m.commands.Describe(ch)
	m.duration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *metrics) Collect(ch chan<- prometheus.Metric) {
	m.commands.Collect(ch)
	m.duration.Collect(ch)
}

// check interfaces
var (
	_ prometheus.Collector = (*metrics)(nil)
)
