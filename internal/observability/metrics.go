// Package observability holds the prometheus instrumentation for the
// sampling and alerting pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the pipeline's counters and gauges.
type Metrics struct {
	SnapshotsWritten  prometheus.Counter
	ProviderFailures  prometheus.Counter
	RegionsSkipped    prometheus.Gauge
	RegionsIngested   prometheus.Counter
	AlertsComputed    prometheus.Counter
	SamplingRunActive prometheus.Gauge
}

// New registers the pipeline metrics against the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SnapshotsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "weather_snapshots_written_total",
			Help: "Snapshots successfully written across all sampling runs.",
		}),
		ProviderFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "weather_provider_failures_total",
			Help: "Per-region weather provider failures (non-fatal, excluded from the run).",
		}),
		RegionsSkipped: factory.NewGauge(prometheus.GaugeOpts{
			Name: "weather_regions_skipped_no_centroid",
			Help: "Regions skipped by the last sampling run for lacking a centroid.",
		}),
		RegionsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "regions_ingested_total",
			Help: "Regions created by geometry ingestion.",
		}),
		AlertsComputed: factory.NewCounter(prometheus.CounterOpts{
			Name: "alerts_computed_total",
			Help: "Alerts produced by the matching engine.",
		}),
		SamplingRunActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "weather_sampling_run_active",
			Help: "1 while a sampling run is in flight.",
		}),
	}
}
