// Invoice reconciliation engine

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-ledger/internal/metrics"
	"payment-ledger/internal/models"
)

// Reconciler is the single source of truth for an invoice's derived monetary
// fields. Paid and pending amounts are always recomputed from an aggregate
// query over current payment rows; a negative due amount is persisted as-is so
// the diagnostic scan can see it.
type Reconciler struct {
	logger *zap.Logger
}

func NewReconciler(logger *zap.Logger) *Reconciler {
	return &Reconciler{logger: logger}
}

// Recompute derives paid/pending/due and the aggregate status for an invoice
// and writes them back only when they differ from the stored values. It is
// idempotent and leaves the payment set untouched. Callers wanting atomicity
// with a transition run it inside the same Datastore transaction.
func (r *Reconciler) Recompute(ctx context.Context, ds Datastore, invoiceID string) (*models.Invoice, error) {
	inv, err := ds.Invoices().GetByIDForUpdate(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice %s: %w", invoiceID, err)
	}
	if inv == nil {
		return nil, ErrInvoiceNotFound
	}

	paid, pending, err := ds.Invoices().AggregateAmounts(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate payments for invoice %s: %w", invoiceID, err)
	}

	due := inv.TotalAmount.Sub(paid)
	status := deriveStatus(inv, paid)

	if inv.PaidAmount.Equal(paid) &&
		inv.PendingAmount.Equal(pending) &&
		inv.DueAmount.Equal(due) &&
		inv.Status == status {
		return inv, nil
	}

	inv.PaidAmount = paid
	inv.PendingAmount = pending
	inv.DueAmount = due
	inv.Status = status
	inv.UpdatedAt = time.Now().UTC()

	if err := ds.Invoices().UpdateDerived(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to update invoice %s aggregates: %w", invoiceID, err)
	}
	metrics.ReconciliationWritesTotal.Inc()

	if due.IsNegative() {
		r.logger.Warn("invoice overpaid",
			zap.String("invoice_id", inv.ID),
			zap.String("number", inv.Number),
			zap.String("paid_amount", paid.String()),
			zap.String("total_amount", inv.TotalAmount.String()))
	} else {
		r.logger.Info("invoice aggregates recomputed",
			zap.String("invoice_id", inv.ID),
			zap.String("status", string(status)),
			zap.String("paid_amount", paid.String()),
			zap.String("pending_amount", pending.String()),
			zap.String("due_amount", due.String()))
	}

	return inv, nil
}

// Ties resolve toward PAID so an exact full payment is never shown as partial.
func deriveStatus(inv *models.Invoice, paid decimal.Decimal) models.InvoiceStatus {
	switch {
	case paid.GreaterThanOrEqual(inv.TotalAmount):
		return models.InvoicePaid
	case paid.IsPositive():
		return models.InvoicePartiallyPaid
	default:
		return models.InvoiceUnpaid
	}
}
