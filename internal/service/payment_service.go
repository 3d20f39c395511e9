package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"payment-ledger/internal/metrics"
	"payment-ledger/internal/models"
)

// PaymentService owns payment creation and reads. Creation is the only place
// a status is assigned without the transition engine, and it is deterministic
// from the method: non-card methods complete instantly, card payments start
// pending and wait for the processor webhook.
type PaymentService struct {
	store   Datastore
	gateway PaymentGateway
	recon   *Reconciler
	logger  *zap.Logger
}

func NewPaymentService(store Datastore, gateway PaymentGateway, recon *Reconciler, logger *zap.Logger) *PaymentService {
	return &PaymentService{store: store, gateway: gateway, recon: recon, logger: logger}
}

func initialStatus(method models.PaymentMethod) models.PaymentStatus {
	// Exhaustive over the closed method set: adding a method must revisit this.
	switch method {
	case models.MethodCreditCard:
		return models.StatusPending
	case models.MethodCash, models.MethodBankTransfer, models.MethodOther:
		return models.StatusCompleted
	}
	return models.StatusCompleted
}

// CreatePayment records a payment attempt against an invoice. The amount must
// be positive and must not exceed the invoice's current available-to-pay
// balance. For credit-card payments a processor intent is created first and
// its id becomes the payment's external reference.
func (s *PaymentService) CreatePayment(ctx context.Context, req *models.PaymentRequest) (*models.PaymentResponse, error) {
	if !models.ValidMethod(req.Method) {
		return nil, fmt.Errorf("unknown payment method %q", req.Method)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidAmount, req.Amount)
	}

	inv, err := s.store.Invoices().GetByID(ctx, req.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice %s: %w", req.InvoiceID, err)
	}
	if inv == nil {
		return nil, ErrInvoiceNotFound
	}
	if req.Amount.GreaterThan(inv.AvailableToPay()) {
		return nil, fmt.Errorf("%w: amount %s exceeds available balance %s", ErrInvalidAmount, req.Amount, inv.AvailableToPay())
	}

	var externalRef, clientSecret string
	if req.Method == models.MethodCreditCard {
		externalRef, clientSecret, err = s.gateway.CreateIntent(ctx, inv.ID, inv.Number, req.Amount)
		if err != nil {
			return nil, fmt.Errorf("payment gateway failed: %w", err)
		}
	}

	now := time.Now().UTC()
	p := &models.Payment{
		ID:                uuid.New().String(),
		InvoiceID:         inv.ID,
		Method:            req.Method,
		Amount:            req.Amount,
		Status:            initialStatus(req.Method),
		ExternalReference: externalRef,
		CreatedAt:         now,
		StatusChangedAt:   now,
	}

	err = s.store.InTx(ctx, func(ds Datastore) error {
		// Re-validate under the invoice row lock so concurrent creations
		// cannot jointly overshoot the balance.
		locked, err := ds.Invoices().GetByIDForUpdate(ctx, inv.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrInvoiceNotFound
		}
		if req.Amount.GreaterThan(locked.AvailableToPay()) {
			return fmt.Errorf("%w: amount %s exceeds available balance %s", ErrInvalidAmount, req.Amount, locked.AvailableToPay())
		}

		if err := ds.Payments().Create(ctx, p); err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}
		if _, err := s.recon.Recompute(ctx, ds, inv.ID); err != nil {
			return err
		}

		if p.Status == models.StatusCompleted {
			s.logger.Info("payment transition applied",
				zap.String("payment_id", p.ID),
				zap.String("invoice_id", p.InvoiceID),
				zap.String("from", ""),
				zap.String("to", string(models.StatusCompleted)),
				zap.String("actor", string(models.ActorSystem)),
				zap.Time("at", now))
			metrics.TransitionsTotal.WithLabelValues("", string(models.StatusCompleted), string(models.ActorSystem)).Inc()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment created",
		zap.String("payment_id", p.ID),
		zap.String("invoice_id", p.InvoiceID),
		zap.String("method", string(p.Method)),
		zap.String("amount", p.Amount.String()),
		zap.String("status", string(p.Status)))

	return &models.PaymentResponse{Payment: p, ClientSecret: clientSecret}, nil
}

// GetPayment retrieves a payment by ID
func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	p, err := s.store.Payments().GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

// ListPayments lists all payments recorded against an invoice.
func (s *PaymentService) ListPayments(ctx context.Context, invoiceID string) ([]*models.Payment, error) {
	return s.store.Payments().ListByInvoice(ctx, invoiceID)
}
