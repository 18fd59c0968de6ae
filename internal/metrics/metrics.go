// Package metrics holds the Prometheus collectors shared across the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchTotal counts loads of the launch collection and rocket cost map.
	FetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "launchshelf_fetch_total",
		Help: "Loads of persisted state from the launch API by slot and outcome",
	}, []string{"slot", "outcome"})

	// APIRequestTotal counts calls to the upstream launch API.
	APIRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "launchshelf_api_requests_total",
		Help: "Requests sent to the launch data API by operation and outcome",
	}, []string{"operation", "outcome"})

	// APIRequestDuration tracks upstream latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "launchshelf_api_request_duration_seconds",
		Help:    "Latency of launch data API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// MutationTotal counts optimistic edits by kind and how they ended.
	MutationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "launchshelf_mutations_total",
		Help: "Optimistic edits by kind and result (applied, rolled_back, kept, superseded)",
	}, []string{"kind", "result"})

	// BroadcastMessages counts cross-tab channel traffic.
	BroadcastMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "launchshelf_broadcast_messages_total",
		Help: "Cross-tab channel messages by channel and direction (sent, received, dropped, error)",
	}, []string{"channel", "direction"})

	// TotalCost is the last computed total cost of all launches.
	TotalCost = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "launchshelf_total_cost",
		Help: "Sum of cost per launch across the launch collection",
	})
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
