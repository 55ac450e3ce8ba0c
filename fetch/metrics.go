package fetch

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Add Prometheus metrics
var (
	fetchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clawfeed_fetch_attempts_total",
		Help: "The total number of outbound fetch attempts",
	})

	fetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clawfeed_fetch_errors_total",
		Help: "The total number of failed fetches",
	}, []string{"reason"})

	fetchRedirects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clawfeed_fetch_redirects_total",
		Help: "The total number of redirect hops followed",
	})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clawfeed_fetch_duration_seconds",
		Help:    "Duration of outbound fetches, redirects included",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // Start at 10ms, double each bucket, 10 buckets
	})
)

func errorReason(err error) string {
	if errors.Is(err, ErrTimeout) {
		return "timeout"
	}
	return "transport"
}
