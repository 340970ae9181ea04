package ssehttp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "sessionmcp"

// Submission outcomes recorded on submissions_total.
const (
	outcomeAccepted    = "accepted"
	outcomeForwarded   = "forwarded"
	outcomeBadRequest  = "bad_request"
	outcomeNotFound    = "not_found"
	outcomeUnsupported = "unsupported_media_type"
	outcomeTooLarge    = "too_large"
	outcomeTimeout     = "timeout"
	outcomeError       = "error"
)

type metrics struct {
	activeSessions   prometheus.Gauge
	sessionsTotal    prometheus.Counter
	submissions      *prometheus.CounterVec
	outboundEvents   prometheus.Counter
	deliveryDuration prometheus.Histogram
	handlerErrors    prometheus.Counter
}

// newMetrics builds the transport's collectors. A nil registerer leaves
// them unregistered, which lets several handlers coexist in one process.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "sse",
			Name:      "active_sessions",
			Help:      "Number of open SSE streams",
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sse",
			Name:      "sessions_total",
			Help:      "Total number of SSE streams accepted",
		}),
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "messages",
			Name:      "submissions_total",
			Help:      "Message submissions by outcome",
		}, []string{"outcome"}),
		outboundEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sse",
			Name:      "outbound_events_total",
			Help:      "Message events written to SSE streams",
		}),
		deliveryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "messages",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent handing a submission to its session queue",
			Buckets:   prometheus.DefBuckets,
		}),
		handlerErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "messages",
			Name:      "handler_errors_total",
			Help:      "Message handler invocations that failed or panicked",
		}),
	}
}
