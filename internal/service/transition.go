// Payment status transition engine

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

const defaultLockWait = 5 * time.Second

// ValidateTransition decides whether moving a payment from one status to
// another is legal for the given method and actor class. Creation-time
// initial statuses are assigned in CreatePayment and never pass through here.
//
// Rules:
//   - Non-card payments are terminal immediately after creation.
//   - PENDING -> COMPLETED/FAILED on a card payment is webhook-only; a manual
//     or system actor gets ErrForbidden.
//   - COMPLETED -> REFUNDED on a card payment is allowed for a privileged
//     manual actor, and always for the webhook actor: the processor has
//     already moved the funds, so its refund events are authoritative.
//   - Every other pair is ErrIllegalTransition.
func ValidateTransition(method models.PaymentMethod, from, to models.PaymentStatus, actor models.ActorClass) error {
	switch method {
	case models.MethodCash, models.MethodBankTransfer, models.MethodOther:
		return ErrIllegalTransition
	case models.MethodCreditCard:
		switch {
		case from == models.StatusPending && (to == models.StatusCompleted || to == models.StatusFailed):
			if actor != models.ActorWebhook {
				return ErrForbidden
			}
			return nil
		case from == models.StatusCompleted && to == models.StatusRefunded:
			if actor == models.ActorWebhook || actor == models.ActorPrivilegedManual {
				return nil
			}
			return ErrForbidden
		default:
			return ErrIllegalTransition
		}
	}
	return ErrIllegalTransition
}

// TransitionEngine applies validated status transitions. The transition and
// the invoice recompute commit as one unit: a per-payment lock is held across
// a single datastore transaction that row-locks the payment and the invoice.
type TransitionEngine struct {
	store    Datastore
	recon    *Reconciler
	locks    *paymentLocks
	logger   *zap.Logger
	lockWait time.Duration
}

func NewTransitionEngine(store Datastore, recon *Reconciler, logger *zap.Logger) *TransitionEngine {
	return &TransitionEngine{
		store:    store,
		recon:    recon,
		locks:    newPaymentLocks(),
		logger:   logger,
		lockWait: defaultLockWait,
	}
}

// SetLockWait overrides how long a caller waits for the per-payment lock
// before the transition is rejected as retryable.
func (e *TransitionEngine) SetLockWait(d time.Duration) {
	e.lockWait = d
}

// RequestTransition is the manual transition API. The actor class comes from
// the external permission layer and is validated against the table.
func (e *TransitionEngine) RequestTransition(ctx context.Context, paymentID string, to models.PaymentStatus, actor models.ActorClass) (*models.Payment, error) {
	return e.apply(ctx, paymentID, to, actor, "", nil)
}

// apply performs the atomic transition-and-recompute unit. A non-nil amount
// overrides the recorded payment amount (processor source-of-truth rule for
// webhook success events).
func (e *TransitionEngine) apply(ctx context.Context, paymentID string, to models.PaymentStatus, actor models.ActorClass, note string, amount *decimal.Decimal) (*models.Payment, error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.lockWait)
	defer cancel()
	if err := e.locks.acquire(lockCtx, paymentID); err != nil {
		return nil, fmt.Errorf("%w: payment %s", ErrConcurrencyTimeout, paymentID)
	}
	defer e.locks.release(paymentID)

	var updated *models.Payment
	err := e.store.InTx(ctx, func(ds Datastore) error {
		p, err := ds.Payments().GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("failed to load payment %s: %w", paymentID, err)
		}
		if p == nil {
			return ErrPaymentNotFound
		}

		from := p.Status
		if err := ValidateTransition(p.Method, from, to, actor); err != nil {
			return err
		}

		if amount != nil && !amount.Equal(p.Amount) {
			e.logger.Warn("payment amount mismatch, using processor amount as source of truth",
				zap.String("payment_id", p.ID),
				zap.String("recorded_amount", p.Amount.String()),
				zap.String("processor_amount", amount.String()))
			p.Notes = appendNote(p.Notes, fmt.Sprintf("amount corrected from %s to %s to match processor records", p.Amount, amount))
			p.Amount = *amount
		}
		if note != "" {
			p.Notes = appendNote(p.Notes, note)
		}

		now := time.Now().UTC()
		p.Status = to
		p.StatusChangedAt = now
		if err := ds.Payments().Update(ctx, p); err != nil {
			return fmt.Errorf("failed to update payment %s: %w", p.ID, err)
		}

		if _, err := e.recon.Recompute(ctx, ds, p.InvoiceID); err != nil {
			return err
		}

		e.logger.Info("payment transition applied",
			zap.String("payment_id", p.ID),
			zap.String("invoice_id", p.InvoiceID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("actor", string(actor)),
			zap.Time("at", now))
		metrics.TransitionsTotal.WithLabelValues(string(from), string(to), string(actor)).Inc()

		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
