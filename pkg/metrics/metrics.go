// Package metrics holds the prometheus collectors for listeners, requests and
// lifecycle calls. All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "httpserver_provider"

// Failure reasons for DispatchFailed.
const (
	ReasonDispatch = "dispatch"
	ReasonDecode   = "decode"
	ReasonStatus   = "status"
	ReasonEncode   = "encode"
	ReasonBody     = "body"
)

// Metrics is the provider's collector set, registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	dispatchFailures *prometheus.CounterVec
	activeListeners  prometheus.Gauge
	lifecycleEvents  *prometheus.CounterVec
	rejectedCalls    *prometheus.CounterVec
}

// New creates the collectors and registers them with Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "HTTP requests served, by module and response status code.",
		}, []string{"module", "code"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent waiting for a module to handle a request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"module"}),
		dispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Requests answered with the fallback 500, by module and reason.",
		}, []string{"module", "reason"}),
		activeListeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_listeners",
			Help:      "Listeners currently bound and serving.",
		}),
		lifecycleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Listener start/stop operations, by operation and result.",
		}, []string{"operation", "result"}),
		rejectedCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_calls_total",
			Help:      "Provider calls rejected before execution, by operation and reason.",
		}, []string{"operation", "reason"}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.dispatchDuration,
		m.dispatchFailures,
		m.activeListeners,
		m.lifecycleEvents,
		m.rejectedCalls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records a served request and, when dispatched is true, the dispatch latency.
func (m *Metrics) ObserveRequest(module string, code int, elapsed time.Duration, dispatched bool) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(module, strconv.Itoa(code)).Inc()
	if dispatched {
		m.dispatchDuration.WithLabelValues(module).Observe(elapsed.Seconds())
	}
}

// DispatchFailed counts a request that fell back to the 500 response.
func (m *Metrics) DispatchFailed(module, reason string) {
	if m == nil {
		return
	}
	m.dispatchFailures.WithLabelValues(module, reason).Inc()
}

// ListenerStarted increments the active listener gauge.
func (m *Metrics) ListenerStarted() {
	if m == nil {
		return
	}
	m.activeListeners.Inc()
}

// ListenerStopped decrements the active listener gauge.
func (m *Metrics) ListenerStopped() {
	if m == nil {
		return
	}
	m.activeListeners.Dec()
}

// Lifecycle counts a start or stop operation and its result ("ok", "error", "noop").
func (m *Metrics) Lifecycle(operation, result string) {
	if m == nil {
		return
	}
	m.lifecycleEvents.WithLabelValues(operation, result).Inc()
}

// Rejected counts a provider call refused before execution.
func (m *Metrics) Rejected(operation, reason string) {
	if m == nil {
		return
	}
	m.rejectedCalls.WithLabelValues(operation, reason).Inc()
}
