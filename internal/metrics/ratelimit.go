package metrics

import "github.com/prometheus/client_golang/prometheus"

// RateLimitMetrics counts rejected and fail-open requests per bucket.
type RateLimitMetrics struct {
	Rejected   *prometheus.CounterVec
	StoreError *prometheus.CounterVec
}

// NewRateLimitMetrics creates and registers rate limiting metrics.
func NewRateLimitMetrics(reg prometheus.Registerer) *RateLimitMetrics {
	m := &RateLimitMetrics{
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter, by bucket.",
		}, []string{"bucket"}),
		StoreError: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_store_errors_total",
			Help:      "Rate limit store failures that let the request through, by bucket.",
		}, []string{"bucket"}),
	}
	reg.MustRegister(m.Rejected, m.StoreError)
	return m
}
