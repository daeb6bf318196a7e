package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequests counts LMS API calls by operation and outcome class.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lmsportal",
		Name:      "upstream_requests_total",
		Help:      "LMS API requests by operation and result.",
	}, []string{"op", "result"})

	// UpstreamLatency observes LMS API round trips.
	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lmsportal",
		Name:      "upstream_request_seconds",
		Help:      "LMS API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	// SliceFailures counts dashboard slices that degraded to empty.
	SliceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lmsportal",
		Name:      "dashboard_slice_failures_total",
		Help:      "Dashboard fetches that failed and were rendered empty.",
	}, []string{"slice"})

	// StaleRefreshes counts refresh results dropped because a newer refresh started.
	StaleRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lmsportal",
		Name:      "dashboard_stale_refreshes_total",
		Help:      "Refresh results discarded in favour of a newer refresh.",
	})

	// DigestTriggers counts email digest decisions by outcome.
	DigestTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lmsportal",
		Name:      "digest_triggers_total",
		Help:      "Email digest triggers by outcome (sent, suppressed, failed).",
	}, []string{"outcome"})

	// ChatMessages counts chat messages relayed by direction.
	ChatMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lmsportal",
		Name:      "chat_messages_total",
		Help:      "Chat messages by direction (in, out).",
	}, []string{"direction"})
)

// Result maps an HTTP status (0 for transport failures) to a low-cardinality label.
func Result(status int) string {
	switch {
	case status == 0:
		return "transport_error"
	case status == 401:
		return "unauthorized"
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	default:
		return "ok"
	}
}
