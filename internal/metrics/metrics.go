package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/memohai/relay/internal/channel"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// Inbound metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Inbound platform updates by result",
		},
		[]string{"channel", "result"}, // forwarded, denied, rejected, ignored, failed
	)

	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_rejections_total",
			Help: "Inbound content refused by the size guard or format allow-lists",
		},
		[]string{"reason"},
	)

	ForwardDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_forward_duration_seconds",
			Help:    "Latency of event forwarding to the agents service",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	// Outbound metrics
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Outbound message deliveries by final step",
		},
		[]string{"channel", "status", "step"},
	)
)

// ObserveOutcome records one delivery outcome. It matches the dispatcher observer signature.
func ObserveOutcome(o channel.Outcome) {
	DeliveriesTotal.WithLabelValues(o.Channel.String(), string(o.Status), o.Step).Inc()
}

// ObserveRejection records a refused inbound unit.
func ObserveRejection(reason string) {
	RejectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveEvent records the result of one inbound update.
func ObserveEvent(channelType channel.ChannelType, result string) {
	EventsTotal.WithLabelValues(channelType.String(), result).Inc()
}
