package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceUnpaid        InvoiceStatus = "UNPAID"
	InvoicePartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoicePaid          InvoiceStatus = "PAID"
)

// Invoice is owned externally; this service derives and stores its monetary
// aggregates. DueAmount keeps its raw signed value so overpayment anomalies
// stay visible to the diagnostic scan. Clamping happens only at the API edge.
type Invoice struct {
	ID            string          `json:"id" db:"id"`
	Number        string          `json:"number" db:"number"`
	TotalAmount   decimal.Decimal `json:"total_amount" db:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount" db:"paid_amount"`
	PendingAmount decimal.Decimal `json:"pending_amount" db:"pending_amount"`
	DueAmount     decimal.Decimal `json:"due_amount" db:"due_amount"`
	Status        InvoiceStatus   `json:"status" db:"status"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// AvailableToPay is the amount a new payment may be created for. Pending
// amounts never count toward covering the due balance.
func (i *Invoice) AvailableToPay() decimal.Decimal {
	if i.DueAmount.IsNegative() {
		return decimal.Zero
	}
	return i.DueAmount
}

type InvoiceRequest struct {
	Number      string          `json:"number" binding:"required"`
	TotalAmount decimal.Decimal `json:"total_amount" binding:"required"`
}

// Database schema
const InvoiceSchema = `
CREATE TABLE IF NOT EXISTS invoices (
    id VARCHAR(36) PRIMARY KEY,
    number VARCHAR(50) NOT NULL UNIQUE,
    total_amount DECIMAL(19, 4) NOT NULL,
    paid_amount DECIMAL(19, 4) NOT NULL DEFAULT 0,
    pending_amount DECIMAL(19, 4) NOT NULL DEFAULT 0,
    due_amount DECIMAL(19, 4) NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'UNPAID',
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);
`
