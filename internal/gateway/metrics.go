// ABOUTME: Prometheus collectors for HTTP traffic and coordination outcomes
// ABOUTME: Registered globally at init and served on the metrics path

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prachand_http_requests_total",
			Help: "Counts HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prachand_http_request_duration_seconds",
			Help:    "Time spent handling HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	enrollmentsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prachand_enrollments_total",
			Help: "Counts enrollment attempts by outcome.",
		},
		[]string{"result"},
	)
	commandsQueuedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prachand_commands_queued_total",
			Help: "Counts commands queued by controllers.",
		},
	)
	commandsClaimedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prachand_commands_claimed_total",
			Help: "Counts commands handed to polling nodes.",
		},
	)
	responsesRecordedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prachand_responses_recorded_total",
			Help: "Counts command responses stored.",
		},
	)
)

func init() {
	prometheus.MustRegister(requestsCounter)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(enrollmentsCounter)
	prometheus.MustRegister(commandsQueuedCounter)
	prometheus.MustRegister(commandsClaimedCounter)
	prometheus.MustRegister(responsesRecordedCounter)
}
