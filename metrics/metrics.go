package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesProcessed The total number of processed messages (counter)
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processed_total",
			Help:      "The total number of processed messages",
		},
		[]string{"topic", "handler"},
	)

	// MessagesProcessingFailed total number of message processing failures (counter)
	MessagesProcessingFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processing_failed_total",
			Help:      "The total number of message processing failures",
		},
		[]string{"topic", "handler"},
	)

	// MessagesProcessingDuration The total time spent processing messages (summary with quantiles 0.5, 0.9, and 0.99)
	MessagesProcessingDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "messages",
			Name:       "processing_duration_seconds",
			Help:       "The total time spent processing messages",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"topic", "handler"},
	)
)

var (
	TicketsGranted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tickets",
			Name:      "granted_total",
			Help:      "The total number of granted tickets",
		},
		[]string{"source"},
	)

	TicketsCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tickets",
			Name:      "cancelled_total",
			Help:      "The total number of cancelled tickets",
		},
	)

	CheckoutSessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "checkout_sessions",
			Name:      "created_total",
			Help:      "The total number of checkout sessions created at the payment processor",
		},
	)

	// WebhooksReceived outcome is one of accepted, duplicate, ignored, rejected or failed
	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webhooks",
			Name:      "received_total",
			Help:      "The total number of received webhook deliveries",
		},
		[]string{"provider", "outcome"},
	)
)
