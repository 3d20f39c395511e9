// Ledger diagnostic and repair

package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-ledger/internal/models"
)

const (
	IssueOverpayment     = "overpayment"
	IssueStaleAggregates = "stale_aggregates"
)

// InvoiceIssue describes one flagged inconsistency between an invoice's
// stored aggregates and the values recomputed from its payment rows.
type InvoiceIssue struct {
	InvoiceID     string
	InvoiceNumber string
	Kind          string
	StoredPaid    decimal.Decimal
	ComputedPaid  decimal.Decimal
	StoredDue     decimal.Decimal
	ComputedDue   decimal.Decimal
}

// DiagnosticService scans the ledger for inconsistencies and repairs them
// without ever bypassing the transition engine, except for confirmed
// duplicate deletion which is logged separately as a data-repair action.
type DiagnosticService struct {
	store  Datastore
	engine *TransitionEngine
	recon  *Reconciler
	logger *zap.Logger
}

func NewDiagnosticService(store Datastore, engine *TransitionEngine, recon *Reconciler, logger *zap.Logger) *DiagnosticService {
	return &DiagnosticService{store: store, engine: engine, recon: recon, logger: logger}
}

// Scan recomputes every invoice's aggregates read-only and flags invoices
// whose due amount is negative (duplicate completed payments) or whose stored
// aggregates disagree with the payment rows.
func (s *DiagnosticService) Scan(ctx context.Context) ([]InvoiceIssue, error) {
	invoices, err := s.store.Invoices().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	var issues []InvoiceIssue
	for _, inv := range invoices {
		paid, _, err := s.store.Invoices().AggregateAmounts(ctx, inv.ID)
		if err != nil {
			s.logger.Error("failed to aggregate payments",
				zap.String("invoice_id", inv.ID), zap.Error(err))
			continue
		}
		due := inv.TotalAmount.Sub(paid)

		kind := ""
		switch {
		case due.IsNegative():
			kind = IssueOverpayment
		case !inv.PaidAmount.Equal(paid):
			kind = IssueStaleAggregates
		default:
			continue
		}

		issue := InvoiceIssue{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.Number,
			Kind:          kind,
			StoredPaid:    inv.PaidAmount,
			ComputedPaid:  paid,
			StoredDue:     inv.DueAmount,
			ComputedDue:   due,
		}
		issues = append(issues, issue)

		s.logger.Warn("invoice flagged",
			zap.String("invoice_id", inv.ID),
			zap.String("number", inv.Number),
			zap.String("kind", kind),
			zap.String("stored_paid", inv.PaidAmount.String()),
			zap.String("computed_paid", paid.String()),
			zap.String("computed_due", due.String()))
	}

	s.logger.Info("ledger scan complete",
		zap.Int("invoices", len(invoices)),
		zap.Int("flagged", len(issues)))
	return issues, nil
}

// Repair re-runs the reconciliation engine with writes for a flagged invoice,
// bringing stored aggregates back in line with the payment rows.
func (s *DiagnosticService) Repair(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	var inv *models.Invoice
	err := s.store.InTx(ctx, func(ds Datastore) error {
		var err error
		inv, err = s.recon.Recompute(ctx, ds, invoiceID)
		return err
	})
	return inv, err
}

// RefundExcess marks an overpaid invoice's excess payment as refunded through
// the transition engine, preserving transition logging.
func (s *DiagnosticService) RefundExcess(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.engine.RequestTransition(ctx, paymentID, models.StatusRefunded, models.ActorPrivilegedManual)
}

// FindDuplicates returns groups of completed payments on one invoice sharing
// the same amount and method. Any group larger than one is a duplicate
// candidate; which record is the re-submission is an operator call.
func (s *DiagnosticService) FindDuplicates(ctx context.Context, invoiceID string) ([][]*models.Payment, error) {
	payments, err := s.store.Payments().ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]*models.Payment)
	for _, p := range payments {
		if p.Status != models.StatusCompleted {
			continue
		}
		key := string(p.Method) + "|" + p.Amount.String()
		groups[key] = append(groups[key], p)
	}

	var dups [][]*models.Payment
	for _, g := range groups {
		if len(g) > 1 {
			dups = append(dups, g)
		}
	}
	return dups, nil
}

// DeleteDuplicate removes a confirmed duplicate payment record. The payment
// must have a completed sibling on the same invoice with identical amount and
// method, and the operator identity is required for the data-repair log.
func (s *DiagnosticService) DeleteDuplicate(ctx context.Context, paymentID, operator string) error {
	if operator == "" {
		return fmt.Errorf("operator identity required for duplicate deletion")
	}

	return s.store.InTx(ctx, func(ds Datastore) error {
		p, err := ds.Payments().GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrPaymentNotFound
		}
		if p.Status != models.StatusCompleted {
			return fmt.Errorf("payment %s is %s, only completed duplicates may be deleted", p.ID, p.Status)
		}

		siblings, err := ds.Payments().ListByInvoice(ctx, p.InvoiceID)
		if err != nil {
			return err
		}
		confirmed := false
		for _, sib := range siblings {
			if sib.ID != p.ID && sib.Status == models.StatusCompleted &&
				sib.Method == p.Method && sib.Amount.Equal(p.Amount) {
				confirmed = true
				break
			}
		}
		if !confirmed {
			return fmt.Errorf("payment %s has no identical completed sibling, refusing to delete", p.ID)
		}

		if err := ds.Payments().Delete(ctx, p.ID); err != nil {
			return fmt.Errorf("failed to delete payment %s: %w", p.ID, err)
		}
		if _, err := s.recon.Recompute(ctx, ds, p.InvoiceID); err != nil {
			return err
		}

		s.logger.Warn("data_repair: duplicate payment deleted",
			zap.String("payment_id", p.ID),
			zap.String("invoice_id", p.InvoiceID),
			zap.String("amount", p.Amount.String()),
			zap.String("method", string(p.Method)),
			zap.String("operator", operator))
		return nil
	})
}
