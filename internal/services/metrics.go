package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fincoach_chat_messages_sent_total",
		Help: "Messages persisted, by kind.",
	}, []string{"kind"})

	messagesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fincoach_chat_messages_read_total",
		Help: "Messages flipped to read.",
	})

	feedPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fincoach_chat_feed_publish_errors_total",
		Help: "Change events that failed to publish.",
	})

	ordersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fincoach_payment_orders_total",
		Help: "Gateway orders created, by item type.",
	}, []string{"item_type"})

	paymentVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fincoach_payment_verifications_total",
		Help: "Checkout verifications, by result.",
	}, []string{"result"})

	duplicateCharges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fincoach_payment_duplicate_charges_total",
		Help: "Captures rejected because the booking already had a completed payment.",
	})

	refundsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fincoach_refunds_total",
		Help: "Cancellations processed, by flow and result.",
	}, []string{"flow", "result"})

	refundedAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fincoach_refunded_amount_total",
		Help: "Refunded amount in whole currency units, by flow.",
	}, []string{"flow"})

	creditDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fincoach_credit_decisions_total",
		Help: "Credit request decisions, by decision.",
	}, []string{"decision"})

	sweeperCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fincoach_sweeper_bookings_completed_total",
		Help: "Bookings moved to completed by the sweeper, by record shape.",
	}, []string{"shape"})

	sweeperRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fincoach_sweeper_run_duration_seconds",
		Help:    "Duration of sweeper runs.",
		Buckets: prometheus.DefBuckets,
	})
)
