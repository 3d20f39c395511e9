package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventPaymentSucceeded EventType = "payment_intent.succeeded"
	EventPaymentFailed    EventType = "payment_intent.payment_failed"
	EventChargeRefunded   EventType = "charge.refunded"
)

// WebhookEvent is a processor notification after verification. It is not
// persisted beyond the dedup window; EventID is the deduplication key and
// TargetReference matches a payment's external_reference.
type WebhookEvent struct {
	EventID         string          `json:"event_id"`
	EventType       EventType       `json:"event_type"`
	TargetReference string          `json:"target_reference"`
	Amount          decimal.Decimal `json:"amount"`
	FailureMessage  string          `json:"failure_message,omitempty"`
	SourceIP        string          `json:"source_ip,omitempty"`
	ReceivedAt      time.Time       `json:"received_at"`
}

// WebhookOutcomeStatus is the pipeline result reported back to the HTTP layer.
type WebhookOutcomeStatus string

const (
	OutcomeApplied   WebhookOutcomeStatus = "applied"
	OutcomeDuplicate WebhookOutcomeStatus = "duplicate"
	OutcomeIgnored   WebhookOutcomeStatus = "ignored"
	OutcomeRejected  WebhookOutcomeStatus = "rejected"
)

// WebhookOutcome tells the HTTP layer what happened and whether the processor
// should retry the delivery.
type WebhookOutcome struct {
	Status    WebhookOutcomeStatus `json:"status"`
	EventID   string               `json:"event_id,omitempty"`
	PaymentID string               `json:"payment_id,omitempty"`
	Retryable bool                 `json:"retryable"`
	Err       error                `json:"-"`
}
