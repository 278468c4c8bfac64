// Package metrics provides Prometheus metrics for mtgdata.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	CatalogLoadsTotal   *prometheus.CounterVec
	CatalogLoadDuration prometheus.Histogram
	CatalogSets         prometheus.Gauge
	CatalogCards        prometheus.Gauge

	EnrichmentDegradedTotal *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	GrpcRequestsTotal *prometheus.CounterVec
}

// New registers all collectors with reg (prometheus.DefaultRegisterer in
// production, a fresh registry in tests).
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CatalogLoadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mtgdata_catalog_loads_total",
				Help: "Catalog load attempts by outcome",
			},
			[]string{"status"},
		),
		CatalogLoadDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mtgdata_catalog_load_duration_seconds",
				Help:    "Duration of catalog loads in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		CatalogSets: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "mtgdata_catalog_sets",
				Help: "Number of sets in the published catalog",
			},
		),
		CatalogCards: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "mtgdata_catalog_cards",
				Help: "Number of cards in the published catalog",
			},
		),
		EnrichmentDegradedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mtgdata_enrichment_degraded_total",
				Help: "Loads or queries that continued without an optional enrichment",
			},
			[]string{"enrichment"},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mtgdata_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mtgdata_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		GrpcRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mtgdata_grpc_requests_total",
				Help: "Total number of gRPC requests",
			},
			[]string{"method", "status"},
		),
	}
}

func (m *Metrics) RecordLoad(status string, duration time.Duration, sets, cards int) {
	if m == nil {
		return
	}
	m.CatalogLoadsTotal.WithLabelValues(status).Inc()
	m.CatalogLoadDuration.Observe(duration.Seconds())
	if status == "success" {
		m.CatalogSets.Set(float64(sets))
		m.CatalogCards.Set(float64(cards))
	}
}

func (m *Metrics) RecordDegraded(enrichment string) {
	if m == nil {
		return
	}
	m.EnrichmentDegradedTotal.WithLabelValues(enrichment).Inc()
}

func (m *Metrics) RecordHTTPRequest(route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Metrics) RecordGrpcRequest(method, status string) {
	if m == nil {
		return
	}
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
}
