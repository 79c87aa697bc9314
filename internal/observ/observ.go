// Package observ holds the domain metrics and the tracer shared by use cases
// and workers. HTTP-level metrics live in the http middleware.
package observ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/aq2208/gcheckout-api"

var (
	CommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_commits_total",
			Help: "Order commits by outcome",
		},
		[]string{"outcome"}, // ok | validation | stock_conflict | retryable | duplicate | error
	)

	StockConflictLines = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_stock_conflict_lines_total",
			Help: "Cart lines rejected at commit for insufficient stock",
		},
	)

	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_merges_total",
			Help: "Anonymous to identity cart merges by outcome",
		},
		[]string{"outcome"}, // merged | noop | error
	)

	SideEffectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "side_effects_total",
			Help: "Post-commit side effects by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	OutboxPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_publish_total",
			Help: "Outbox relay publish attempts by result",
		},
		[]string{"result"}, // sent | retry | failed
	)

	CommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "checkout_commit_duration_ms",
			Help:    "Duration of the commit transaction in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600, 3200},
		},
	)
)

// Tracer returns the service tracer from the global provider. With no SDK
// installed the spans are no-ops.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
