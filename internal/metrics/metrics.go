// Package metrics exposes provider call outcomes as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bellvik/transport-planner/internal/routing"
)

// Collector owns a private registry. It is a routing.CallLog sink: every
// recorded entry updates the provider counters.
type Collector struct {
	reg *prometheus.Registry

	ProviderCalls    *prometheus.CounterVec   // provider, outcome, status
	ProviderDuration *prometheus.HistogramVec // provider
	CacheLookups     *prometheus.CounterVec   // result: hit|miss

	EventsPublished   prometheus.Counter
	EventPublishErrs  prometheus.Counter
	EventsConnected   prometheus.Gauge
	EventPublishDelay prometheus.Histogram

	CacheTTL prometheus.Gauge // seconds
	LiveAPIs *prometheus.GaugeVec
}

// NewCollector registers every metric and records the static configuration.
func NewCollector(cacheTTL time.Duration, flags routing.Flags) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_provider_calls_total",
			Help: "Provider calls and cache lookups by outcome.",
		}, []string{"provider", "outcome", "status"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planner_provider_call_duration_seconds",
			Help:    "Latency of provider calls.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"provider"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_cache_lookups_total",
			Help: "Route cache lookups by result.",
		}, []string{"result"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_events_published_total",
			Help: "Call-log events published to NATS.",
		}),
		EventPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_event_publish_errors_total",
			Help: "Call-log events that failed to publish.",
		}),
		EventsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_nats_connected",
			Help: "1 if the NATS connection is established, 0 otherwise.",
		}),
		EventPublishDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planner_event_publish_duration_seconds",
			Help:    "Duration to marshal and publish a call-log event.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		CacheTTL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_cache_ttl_seconds",
			Help: "Route cache entry lifetime in seconds.",
		}),
		LiveAPIs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "planner_live_api_enabled",
			Help: "1 if the policy switch is on.",
		}, []string{"switch"}),
	}

	reg.MustRegister(
		c.ProviderCalls, c.ProviderDuration, c.CacheLookups,
		c.EventsPublished, c.EventPublishErrs, c.EventsConnected, c.EventPublishDelay,
		c.CacheTTL, c.LiveAPIs,
	)

	c.CacheTTL.Set(cacheTTL.Seconds())
	c.LiveAPIs.WithLabelValues("live").Set(b2f(flags.UseLiveAPIs))
	c.LiveAPIs.WithLabelValues("transit").Set(b2f(flags.UseTransitAPI))
	c.LiveAPIs.WithLabelValues("car").Set(b2f(flags.UseCarAPI))

	return c
}

// Record implements routing.CallLog.
func (c *Collector) Record(_ context.Context, e routing.CallLogEntry) {
	outcome := "failure"
	if e.Success() {
		outcome = "success"
	}
	c.ProviderCalls.WithLabelValues(e.Provider, outcome, StatusClass(e.Status)).Inc()
	c.ProviderDuration.WithLabelValues(e.Provider).Observe(e.LatencyMs / 1000)

	if e.Provider == routing.ProviderCache {
		result := "miss"
		if e.CacheHit {
			result = "hit"
		}
		c.CacheLookups.WithLabelValues(result).Inc()
	}
}

// NATSPublishedInc counts a published event.
func (c *Collector) NATSPublishedInc() { c.EventsPublished.Inc() }

// NATSPublishErrInc counts a failed publish.
func (c *Collector) NATSPublishErrInc() { c.EventPublishErrs.Inc() }

// PublishObserve records the duration of one publish.
func (c *Collector) PublishObserve(d time.Duration) { c.EventPublishDelay.Observe(d.Seconds()) }

// NATSSetConnected tracks the connection state.
func (c *Collector) NATSSetConnected(connected bool) { c.EventsConnected.Set(b2f(connected)) }

// Handler serves the private registry.
func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// StatusClass buckets an HTTP-like status for labels, e.g. 503 -> "5xx".
func StatusClass(status int) string {
	if status <= 0 {
		return "none"
	}
	return strconv.Itoa(status/100) + "xx"
}
