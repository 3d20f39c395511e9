package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string
type PaymentStatus string
type ActorClass string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodCreditCard   PaymentMethod = "CREDIT_CARD"
	MethodOther        PaymentMethod = "OTHER"

	StatusPending   PaymentStatus = "PENDING"
	StatusCompleted PaymentStatus = "COMPLETED"
	StatusFailed    PaymentStatus = "FAILED"
	StatusRefunded  PaymentStatus = "REFUNDED"

	ActorSystem           ActorClass = "SYSTEM"
	ActorWebhook          ActorClass = "WEBHOOK"
	ActorPrivilegedManual ActorClass = "PRIVILEGED_MANUAL"
)

// ValidMethod reports whether m is one of the closed set of payment methods.
func ValidMethod(m PaymentMethod) bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodCreditCard, MethodOther:
		return true
	}
	return false
}

// Payment is one payment attempt against one invoice. Method and amount are
// fixed at creation; status is only mutated through the transition engine.
type Payment struct {
	ID                string          `json:"id" db:"id"`
	InvoiceID         string          `json:"invoice_id" db:"invoice_id"`
	Method            PaymentMethod   `json:"method" db:"method"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	Status            PaymentStatus   `json:"status" db:"status"`
	ExternalReference string          `json:"external_reference,omitempty" db:"external_reference"`
	Notes             string          `json:"notes,omitempty" db:"notes"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	StatusChangedAt   time.Time       `json:"status_changed_at" db:"status_changed_at"`
}

type PaymentRequest struct {
	InvoiceID string          `json:"invoice_id" binding:"required"`
	Method    PaymentMethod   `json:"method" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
}

type PaymentResponse struct {
	Payment      *Payment `json:"payment"`
	ClientSecret string   `json:"client_secret,omitempty"`
}

// TransitionRequest is the manual transition API payload. The actor class is
// supplied separately by the external permission layer and validated against
// the transition table, never inferred from ambient context.
type TransitionRequest struct {
	TargetStatus PaymentStatus `json:"target_status" binding:"required"`
}

// Database schema
const PaymentSchema = `
CREATE TABLE IF NOT EXISTS payments (
    id VARCHAR(36) PRIMARY KEY,
    invoice_id VARCHAR(36) NOT NULL REFERENCES invoices(id),
    method VARCHAR(20) NOT NULL,
    amount DECIMAL(19, 4) NOT NULL,
    status VARCHAR(20) NOT NULL,
    external_reference VARCHAR(255),
    notes TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    status_changed_at TIMESTAMP NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_payments_invoice_id ON payments(invoice_id);
CREATE INDEX IF NOT EXISTS idx_payments_external_reference ON payments(external_reference);
CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);
`
