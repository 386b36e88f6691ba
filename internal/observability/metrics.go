package observability

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	servedRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentctl",
			Subsystem: "served",
			Name:      "requests_total",
			Help:      "Platform API requests served by an in-process platform double.",
		},
		[]string{"server", "method", "route", "status"},
	)
	servedDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentctl",
			Subsystem: "served",
			Name:      "request_duration_seconds",
			Help:      "Served platform request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"server", "method", "route", "status"},
	)
	platformRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentctl",
			Subsystem: "platform",
			Name:      "requests_total",
			Help:      "Platform API requests issued.",
		},
		[]string{"method", "route", "status"},
	)
	platformDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentctl",
			Subsystem: "platform",
			Name:      "request_duration_seconds",
			Help:      "Platform API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	reconcileOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentctl",
			Subsystem: "reconcile",
			Name:      "operations_total",
			Help:      "Reconcile operations by resource kind, action and result.",
		},
		[]string{"kind", "action", "result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(servedRequests, servedDuration, platformRequests, platformDuration, reconcileOps)
	})
}

// RecordServedRequest counts one request answered by a platform double.
// route is a template as produced by RouteTemplate.
func RecordServedRequest(server, method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	servedRequests.WithLabelValues(server, method, route, statusLabel).Inc()
	servedDuration.WithLabelValues(server, method, route, statusLabel).Observe(duration.Seconds())
}

// RecordPlatformRequest counts one outbound platform call. Status 0 means
// the request never produced a response.
func RecordPlatformRequest(method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	platformRequests.WithLabelValues(method, route, statusLabel).Inc()
	platformDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

// RecordReconcileOp counts one apply step, e.g. ("block", "attach", "ok").
func RecordReconcileOp(kind, action, result string) {
	RegisterMetrics()
	reconcileOps.WithLabelValues(kind, action, result).Inc()
}

// WriteTextfile dumps the default registry in node-exporter textfile format.
func WriteTextfile(path string) error {
	RegisterMetrics()
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
