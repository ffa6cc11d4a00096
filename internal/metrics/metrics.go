package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	// Navigation decision metrics
	navigationEvents *prometheus.CounterVec
	redirectsTotal   prometheus.Counter
	suppressedTotal  *prometheus.CounterVec

	// Probe metrics
	scansTotal    prometheus.Counter
	scanDuration  prometheus.Histogram
	probesTotal   *prometheus.CounterVec
	probeDuration prometheus.Histogram

	// API metrics
	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
}

func NewCollector(namespace string) *Collector {
	c := &Collector{
		navigationEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "navigation_events_total",
				Help:      "Total number of navigation events processed",
			},
			[]string{"result"},
		),
		redirectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "redirects_total",
				Help:      "Total number of redirect commands issued",
			},
		),
		suppressedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "suppressed_total",
				Help:      "Total number of suppressed navigation events",
			},
			[]string{"reason"},
		),
		scansTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scans_total",
				Help:      "Total number of candidate scans launched",
			},
		),
		scanDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scan_duration_seconds",
				Help:      "Wall-clock duration of full candidate scans",
				Buckets:   []float64{.05, .1, .25, .5, 1, 1.5, 2, 3, 5},
			},
		),
		probesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Total number of endpoint probes by outcome",
			},
			[]string{"scheme", "status"},
		),
		probeDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Endpoint probe duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 1.5, 2},
			},
		),
		apiRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		apiDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}

	return c
}

func (c *Collector) RecordNavigationEvent(result string) {
	c.navigationEvents.WithLabelValues(result).Inc()
}

func (c *Collector) RecordRedirect() {
	c.redirectsTotal.Inc()
}

func (c *Collector) RecordSuppressed(reason string) {
	c.suppressedTotal.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordScan(seconds float64) {
	c.scansTotal.Inc()
	c.scanDuration.Observe(seconds)
}

func (c *Collector) RecordProbe(scheme, status string, seconds float64) {
	c.probesTotal.WithLabelValues(scheme, status).Inc()
	c.probeDuration.Observe(seconds)
}

func (c *Collector) RecordAPIRequest(method, endpoint, status string) {
	c.apiRequests.WithLabelValues(method, endpoint, status).Inc()
}

func (c *Collector) RecordAPIDuration(method, endpoint string, seconds float64) {
	c.apiDuration.WithLabelValues(method, endpoint).Observe(seconds)
}
