// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guardian_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Entitlements
	KeysIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_license_keys_issued_total",
			Help: "License keys generated, by tier",
		},
		[]string{"tier"},
	)

	KeyRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_key_redemptions_total",
			Help: "Key redemption attempts, by outcome",
		},
		[]string{"outcome"},
	)

	KeyCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guardian_key_collisions_total",
			Help: "Generated key codes that were already taken",
		},
	)

	PaymentConfirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_payment_confirmations_total",
			Help: "Payment confirmation attempts, by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// External calls
	OracleFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_oracle_failures_total",
			Help: "Failed calls to payment oracles",
		},
		[]string{"oracle"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guardian_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"scope"},
	)

	// Moderation
	MutesExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guardian_mutes_expired_total",
			Help: "Mutes removed because they passed their expiry",
		},
	)

	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_webhook_deliveries_total",
			Help: "License webhook deliveries, by outcome",
		},
		[]string{"outcome"},
	)
)

// Outcome labels
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Middleware records request count and latency per route template
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		APIRequestsTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		APIRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
