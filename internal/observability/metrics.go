package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_transitions_total",
			Help: "Ticket transitions by action and outcome code",
		},
		[]string{"action", "result"},
	)

	SettlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticket_settlement_seconds",
			Help:    "Duration of settlement submissions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	SettlementConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticket_settlement_conflicts_total",
			Help: "Submissions that lost a race for the same ticket state",
		},
	)

	TicketsMinted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticket_minted_total",
			Help: "Tickets minted",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticket_outbox_lag_seconds",
			Help: "Age of the oldest outbox record published in the last batch",
		},
	)

	RabbitPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticket_rabbit_publish_failures_total",
			Help: "Outbox records that failed to publish",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticket_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
