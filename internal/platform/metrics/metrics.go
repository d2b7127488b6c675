// Package metrics exposes the ingestion pipeline's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the service registers. All record methods are
// nil-safe so components can run without instrumentation in tests.
type Metrics struct {
	SightingsIngested  prometheus.Counter
	SightingsDuplicate prometheus.Counter
	SightingsRejected  prometheus.Counter
	StoreSize          prometheus.Gauge
	MirrorPushes       *prometheus.CounterVec
	Deliveries         *prometheus.CounterVec
	FanoutDuration     prometheus.Histogram
}

// New registers all collectors on the default registry.
func New() *Metrics {
	return &Metrics{
		SightingsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "geowarn_sightings_ingested_total",
			Help: "Total number of sightings accepted into the store",
		}),
		SightingsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Name: "geowarn_sightings_duplicate_total",
			Help: "Total number of inbound events rejected as duplicates",
		}),
		SightingsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "geowarn_sightings_rejected_total",
			Help: "Total number of inbound events failing validation",
		}),
		StoreSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "geowarn_store_size",
			Help: "Current number of sightings in the rolling log",
		}),
		MirrorPushes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "geowarn_mirror_pushes_total",
			Help: "Mirror push attempts by result",
		}, []string{"result"}),
		Deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "geowarn_deliveries_total",
			Help: "Per-subscriber notification deliveries by result",
		}, []string{"result"}),
		FanoutDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "geowarn_fanout_duration_seconds",
			Help:    "Wall time of one fan-out invocation",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncIngested() {
	if m != nil {
		m.SightingsIngested.Inc()
	}
}

func (m *Metrics) IncDuplicate() {
	if m != nil {
		m.SightingsDuplicate.Inc()
	}
}

func (m *Metrics) IncRejected() {
	if m != nil {
		m.SightingsRejected.Inc()
	}
}

func (m *Metrics) SetStoreSize(n int) {
	if m != nil {
		m.StoreSize.Set(float64(n))
	}
}

func (m *Metrics) IncMirrorPush(result string) {
	if m != nil {
		m.MirrorPushes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncDelivery(result string) {
	if m != nil {
		m.Deliveries.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ObserveFanout(seconds float64) {
	if m != nil {
		m.FanoutDuration.Observe(seconds)
	}
}
