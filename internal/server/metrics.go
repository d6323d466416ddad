package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mark3labs/docweave/internal/catalog"
)

// Metrics are registered per server so tests and embedded uses do not share
// the global registry.
type Metrics struct {
	BuildDurationSeconds *prometheus.HistogramVec
	BuildsTotal          *prometheus.CounterVec
	DocumentsCurrent     prometheus.Gauge
	EndpointsCurrent     prometheus.Gauge
	SkippedCurrent       prometheus.Gauge
	ReaggregatedTotal    prometheus.Counter
	RequestsTotal        *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BuildDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docweave_build_duration_seconds",
			Help:    "Time spent in build passes in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		BuildsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docweave_builds_total",
			Help: "Total number of build passes",
		}, []string{"kind", "status"}),
		DocumentsCurrent: f.NewGauge(prometheus.GaugeOpts{
			Name: "docweave_documents",
			Help: "Documents in the current catalog",
		}),
		EndpointsCurrent: f.NewGauge(prometheus.GaugeOpts{
			Name: "docweave_endpoints",
			Help: "Endpoint table entries in the current catalog",
		}),
		SkippedCurrent: f.NewGauge(prometheus.GaugeOpts{
			Name: "docweave_skipped_documents",
			Help: "Malformed documents left out of the current catalog",
		}),
		ReaggregatedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "docweave_reaggregated_documents_total",
			Help: "Total number of documents re-aggregated by incremental builds",
		}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docweave_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "code"}),
	}
}

func (m *Metrics) observeCatalog(c *catalog.Catalog) {
	m.DocumentsCurrent.Set(float64(len(c.Documents)))
	m.EndpointsCurrent.Set(float64(c.Endpoints.Len()))
	m.SkippedCurrent.Set(float64(len(c.Skipped)))
}
