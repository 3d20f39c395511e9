package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal counts accepted payment status transitions.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_transitions_total",
		Help: "Accepted payment status transitions",
	}, []string{"from", "to", "actor"})

	// WebhookEventsTotal counts webhook deliveries by pipeline outcome.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Processor webhook deliveries by outcome",
	}, []string{"outcome"})

	// ReconciliationWritesTotal counts invoice derived-field writes.
	ReconciliationWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoice_reconciliation_writes_total",
		Help: "Invoice aggregate recomputations that changed stored values",
	})
)
