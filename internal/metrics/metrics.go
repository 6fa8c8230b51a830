// Package metrics exports coalescing and HTTP statistics to Prometheus. Values
// are fed from eventbus events.
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	eventbus "github.com/hanpama/gqlcoalesce/internal/eventbus"
	events "github.com/hanpama/gqlcoalesce/internal/events"
)

// Metrics holds the collectors registered by Register.
type Metrics struct {
	WindowFlushes      prometheus.Counter
	WindowMembers      prometheus.Histogram
	WindowPruned       prometheus.Counter
	DownstreamCalls    *prometheus.CounterVec
	DownstreamDuration *prometheus.HistogramVec
	DownstreamMembers  *prometheus.HistogramVec
	RemoteRequests     *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       prometheus.Histogram

	unsubscribe []func()
}

// Register creates the collectors, registers them with registry and
// subscribes them to bus.
func Register(registry prometheus.Registerer, bus *eventbus.Bus) (*Metrics, error) {
	m := &Metrics{
		WindowFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gqlcoalesce_window_flushes_total",
			Help: "Total number of coalescing windows flushed",
		}),
		WindowMembers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gqlcoalesce_window_members",
			Help:    "Requests drained per coalescing window",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		WindowPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gqlcoalesce_window_pruned_total",
			Help: "Requests dropped at flush because their caller had gone away",
		}),
		DownstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gqlcoalesce_downstream_calls_total",
			Help: "Total number of downstream calls",
		}, []string{"operation", "outcome"}),
		DownstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gqlcoalesce_downstream_duration_seconds",
			Help:    "Downstream call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		DownstreamMembers: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gqlcoalesce_downstream_members",
			Help:    "Requests merged into one downstream call",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"operation"}),
		RemoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gqlcoalesce_remote_http_requests_total",
			Help: "HTTP requests sent to the remote schema",
		}, []string{"status"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gqlcoalesce_http_requests_total",
			Help: "HTTP requests served",
		}, []string{"method", "status"}),
		HTTPDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gqlcoalesce_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.WindowFlushes, m.WindowMembers, m.WindowPruned,
		m.DownstreamCalls, m.DownstreamDuration, m.DownstreamMembers,
		m.RemoteRequests, m.HTTPRequests, m.HTTPDuration,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	if bus != nil {
		m.subscribe(bus)
	}
	return m, nil
}

func (m *Metrics) subscribe(bus *eventbus.Bus) {
	m.unsubscribe = append(m.unsubscribe,
		eventbus.On(bus, func(_ context.Context, e events.WindowFlushFinish) {
			m.WindowFlushes.Inc()
			m.WindowMembers.Observe(float64(e.Members))
			m.WindowPruned.Add(float64(e.Pruned))
		}),
		eventbus.On(bus, func(_ context.Context, e events.DownstreamFinish) {
			outcome := "ok"
			if e.Err != nil {
				outcome = "error"
			}
			m.DownstreamCalls.WithLabelValues(e.Operation, outcome).Inc()
			m.DownstreamDuration.WithLabelValues(e.Operation).Observe(e.Duration.Seconds())
			m.DownstreamMembers.WithLabelValues(e.Operation).Observe(float64(e.Members))
		}),
		eventbus.On(bus, func(_ context.Context, e events.RemoteRequestFinish) {
			status := strconv.Itoa(e.Status)
			if e.Err != nil && e.Status == 0 {
				status = "error"
			}
			m.RemoteRequests.WithLabelValues(status).Inc()
		}),
		eventbus.On(bus, func(_ context.Context, e events.HTTPFinish) {
			m.HTTPRequests.WithLabelValues(e.Request.Method, strconv.Itoa(e.Status)).Inc()
			m.HTTPDuration.Observe(e.Duration.Seconds())
		}),
	)
}

// Close detaches the collectors from the bus.
func (m *Metrics) Close() {
	for _, u := range m.unsubscribe {
		u()
	}
	m.unsubscribe = nil
}
