// Package metrics registers the Prometheus metrics used by the billing
// engine. Import this package from the server entry point so all metrics
// are registered before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Charge and estimation counters.
var (
	// ChargesTotal counts charge attempts labelled by mode, kind
	// ("usage", "fixed") and outcome ("success", "insufficient", "error").
	ChargesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_charges_total",
			Help: "Total charge attempts processed by the billing engine.",
		},
		[]string{"mode", "kind", "status"},
	)

	// PointsCharged observes the final points value of successful charges.
	PointsCharged = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_points_charged",
			Help:    "Final points charged per successful analysis.",
			Buckets: []float64{5, 10, 20, 40, 80, 160, 320, 640, 1280},
		},
		[]string{"mode"},
	)

	// EstimatesTotal counts pre-flight estimates by content type
	// ("video", "text").
	EstimatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_estimates_total",
			Help: "Total pre-flight token estimates served.",
		},
		[]string{"content_type"},
	)

	// ModelFallbacksTotal counts charges that priced against the default
	// model because the requested model was missing from the catalog.
	// A sustained non-zero rate means a model shipped without a price
	// entry; alert on this rather than tolerate it silently.
	ModelFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_model_fallbacks_total",
			Help: "Charges priced with default-model pricing due to an unknown model ID.",
		},
		[]string{"model"},
	)

	// CreditsTotal counts point grants (tier purchases, manual credits).
	CreditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_credits_total",
			Help: "Total point credits applied to accounts.",
		},
		[]string{"reason"},
	)

	// RateLimitRejections counts requests rejected by the per-account
	// rate-limit middleware.
	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_rate_limit_rejections_total",
			Help: "Total requests rejected by rate limiting.",
		},
	)
)
