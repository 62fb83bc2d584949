package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds every MolForge metric.
type AppMetrics struct {
	// View API
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	StreamClients       GaugeVec

	// Generation
	GenerationCyclesTotal CounterVec
	GenerationDuration    HistogramVec
	SessionMolecules      GaugeVec
	BreakerState          GaugeVec

	// Enrichment
	EnrichmentLookupsTotal CounterVec
	EnrichmentDuration     HistogramVec
	EnrichmentOpenViews    GaugeVec
}

var (
	DefaultHTTPDurationBuckets       = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
	DefaultGenerationDurationBuckets = []float64{.1, .5, 1, 2, 2.5, 5, 10, 30, 60}
	DefaultLookupDurationBuckets     = []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10}
)

// NewAppMetrics registers all metrics on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "View API requests", "method", "route", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "View API request duration", DefaultHTTPDurationBuckets, "method", "route")
	m.StreamClients = collector.RegisterGauge("stream_clients", "Connected session stream clients", "stream")

	m.GenerationCyclesTotal = collector.RegisterCounter("generation_cycles_total", "Finished generation cycles", "source", "outcome")
	m.GenerationDuration = collector.RegisterHistogram("generation_cycle_duration_seconds", "Generation cycle duration", DefaultGenerationDurationBuckets, "source")
	m.SessionMolecules = collector.RegisterGauge("session_molecules", "Molecules in the committed session list", "scope")
	m.BreakerState = collector.RegisterGauge("breaker_state", "Circuit breaker state (0=closed, 1=half-open, 2=open)", "breaker")

	m.EnrichmentLookupsTotal = collector.RegisterCounter("enrichment_lookups_total", "Finished enrichment lookups", "kind", "outcome")
	m.EnrichmentDuration = collector.RegisterHistogram("enrichment_lookup_duration_seconds", "Enrichment lookup duration", DefaultLookupDurationBuckets, "kind")
	m.EnrichmentOpenViews = collector.RegisterGauge("enrichment_open_views", "Open molecule detail views", "scope")

	return m
}

// RecordHTTPRequest records one view API request.
func (m *AppMetrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordGenerationCycle records one finished generation cycle. Only cycles
// that did real work contribute to the duration histogram.
func (m *AppMetrics) RecordGenerationCycle(source, outcome string, d time.Duration) {
	m.GenerationCyclesTotal.WithLabelValues(source, outcome).Inc()
	if d > 0 {
		m.GenerationDuration.WithLabelValues(source).Observe(d.Seconds())
	}
}

// RecordEnrichmentLookup records one finished enrichment lookup. Cache hits
// are counted but not timed.
func (m *AppMetrics) RecordEnrichmentLookup(kind, outcome string, d time.Duration) {
	m.EnrichmentLookupsTotal.WithLabelValues(kind, outcome).Inc()
	if d > 0 {
		m.EnrichmentDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// SetBreakerState publishes a breaker state as a number.
func (m *AppMetrics) SetBreakerState(breaker, state string) {
	v := 0.0
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	m.BreakerState.WithLabelValues(breaker).Set(v)
}

// SetSessionMolecules publishes the size of the committed list.
func (m *AppMetrics) SetSessionMolecules(n int) {
	m.SessionMolecules.WithLabelValues("session").Set(float64(n))
}

// SetOpenViews publishes the number of open detail views.
func (m *AppMetrics) SetOpenViews(n int) {
	m.EnrichmentOpenViews.WithLabelValues("session").Set(float64(n))
}
