// Package metrics holds the domain Prometheus collectors of the affiliate engine
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Settlement outcomes per record: settled, skipped, failed
	SettlementRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_settlement_records_total",
			Help: "Commission records processed by the settlement batch",
		},
		[]string{"outcome"},
	)

	// Settlement run duration in seconds partitioned by run status
	SettlementRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "affiliate_settlement_run_duration_seconds",
			Help:    "Duration of settlement batch runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"status"},
	)

	// Unix time of the last settlement run that completed
	SettlementLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "affiliate_settlement_last_success_timestamp_seconds",
			Help: "Unix time of the last completed settlement run",
		},
	)

	// Levels completed by affiliates
	TierLevelsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_tier_levels_completed_total",
			Help: "Tier levels completed by affiliates",
		},
		[]string{"tier_completed"},
	)

	// Payout webhook events partitioned by event and outcome
	PayoutWebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_payout_webhook_events_total",
			Help: "Payout webhook events received",
		},
		[]string{"event", "outcome"},
	)

	// Outbound payout gateway requests partitioned by outcome
	PayoutGatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_payout_gateway_requests_total",
			Help: "Requests sent to the payout gateway",
		},
		[]string{"outcome"},
	)
)
