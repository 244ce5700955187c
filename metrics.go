package request

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request pipeline, the
// pending registry and the refresh coordinator. All methods are safe on a nil
// receiver.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	duplicatesCancelled prometheus.Counter
	pendingRequests     prometheus.Gauge

	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	refreshWaiters  prometheus.Gauge
	replaysTotal    prometheus.Counter

	businessCodes *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	mc := &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_requests_total",
				Help: "Total number of requests by outcome",
			},
			[]string{"method", "endpoint", "outcome"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backstage_request_duration_seconds",
				Help:    "Duration of requests in seconds, replays included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "backstage_requests_in_flight",
				Help: "Number of requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		duplicatesCancelled: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "backstage_duplicates_cancelled_total",
				Help: "Requests cancelled because an identical request superseded them",
			},
		),
		pendingRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "backstage_pending_requests",
				Help: "Entries in the pending request registry",
			},
		),
		refreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_token_refresh_total",
				Help: "Token refresh attempts by result",
			},
			[]string{"result"},
		),
		refreshDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "backstage_token_refresh_duration_seconds",
				Help:    "Duration of token refresh calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		refreshWaiters: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "backstage_token_refresh_waiters",
				Help: "Calls suspended behind the in-flight token refresh",
			},
		),
		replaysTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "backstage_replays_total",
				Help: "Calls replayed after a successful token refresh",
			},
		),
		businessCodes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_business_codes_total",
				Help: "Non-success business codes returned in response envelopes",
			},
			[]string{"code"},
		),
		rateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_rate_limited_total",
				Help: "Requests delayed or rejected by the client-side rate limiter",
			},
			[]string{"key"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type", "method", "endpoint"},
		),
	}
	if reg, ok := registry.(*prometheus.Registry); ok {
		mc.registry = reg
	}

	return mc
}

// RecordRequest records the final outcome and duration of a call.
func (mc *MetricsCollector) RecordRequest(method, endpoint, outcome string, duration time.Duration) {
	if mc == nil {
		return
	}

	mc.requestsTotal.WithLabelValues(method, endpoint, outcome).Inc()
	mc.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordDuplicateCancelled counts a superseded request.
func (mc *MetricsCollector) RecordDuplicateCancelled() {
	if mc == nil {
		return
	}

	mc.duplicatesCancelled.Inc()
}

// RecordPending sets the pending registry size.
func (mc *MetricsCollector) RecordPending(size int) {
	if mc == nil {
		return
	}

	mc.pendingRequests.Set(float64(size))
}

// RecordRefresh records one refresh attempt.
func (mc *MetricsCollector) RecordRefresh(success bool, duration time.Duration) {
	if mc == nil {
		return
	}

	result := "failure"
	if success {
		result = "success"
	}
	mc.refreshTotal.WithLabelValues(result).Inc()
	mc.refreshDuration.Observe(duration.Seconds())
}

// RecordRefreshWaiters sets the number of suspended calls.
func (mc *MetricsCollector) RecordRefreshWaiters(n int) {
	if mc == nil {
		return
	}

	mc.refreshWaiters.Set(float64(n))
}

// RecordReplay counts a call replayed with a refreshed token.
func (mc *MetricsCollector) RecordReplay() {
	if mc == nil {
		return
	}

	mc.replaysTotal.Inc()
}

// RecordBusinessCode counts a non-success envelope code.
func (mc *MetricsCollector) RecordBusinessCode(code int) {
	if mc == nil {
		return
	}

	mc.businessCodes.WithLabelValues(strconv.Itoa(code)).Inc()
}

// RecordRateLimited counts a request held back by the limiter for key.
func (mc *MetricsCollector) RecordRateLimited(key string) {
	if mc == nil {
		return
	}

	mc.rateLimited.WithLabelValues(key).Inc()
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}

// GetRegistry exposes the underlying prometheus registry. It is nil when the
// collector was built on a Registerer that is not a *prometheus.Registry.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}
