package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"payment-ledger/internal/models"
	"payment-ledger/internal/service"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name   string
		method models.PaymentMethod
		from   models.PaymentStatus
		to     models.PaymentStatus
		actor  models.ActorClass
		want   error
	}{
		{
			name:   "webhook completes pending card payment",
			method: models.MethodCreditCard,
			from:   models.StatusPending,
			to:     models.StatusCompleted,
			actor:  models.ActorWebhook,
			want:   nil,
		},
		{
			name:   "webhook fails pending card payment",
			method: models.MethodCreditCard,
			from:   models.StatusPending,
			to:     models.StatusFailed,
			actor:  models.ActorWebhook,
			want:   nil,
		},
		{
			name:   "manual actor cannot complete pending card payment",
			method: models.MethodCreditCard,
			from:   models.StatusPending,
			to:     models.StatusCompleted,
			actor:  models.ActorPrivilegedManual,
			want:   service.ErrForbidden,
		},
		{
			name:   "manual actor cannot fail pending card payment",
			method: models.MethodCreditCard,
			from:   models.StatusPending,
			to:     models.StatusFailed,
			actor:  models.ActorPrivilegedManual,
			want:   service.ErrForbidden,
		},
		{
			name:   "system actor cannot complete pending card payment",
			method: models.MethodCreditCard,
			from:   models.StatusPending,
			to:     models.StatusCompleted,
			actor:  models.ActorSystem,
			want:   service.ErrForbidden,
		},
		{
			name:   "privileged manual refund of completed card payment",
			method: models.MethodCreditCard,
			from:   models.StatusCompleted,
			to:     models.StatusRefunded,
			actor:  models.ActorPrivilegedManual,
			want:   nil,
		},
		{
			name:   "webhook refund of completed card payment",
			method: models.MethodCreditCard,
			from:   models.StatusCompleted,
			to:     models.StatusRefunded,
			actor:  models.ActorWebhook,
			want:   nil,
		},
		{
			name:   "system cannot refund",
			method: models.MethodCreditCard,
			from:   models.StatusCompleted,
			to:     models.StatusRefunded,
			actor:  models.ActorSystem,
			want:   service.ErrForbidden,
		},
		{
			name:   "webhook cannot move completed back to pending",
			method: models.MethodCreditCard,
			from:   models.StatusCompleted,
			to:     models.StatusPending,
			actor:  models.ActorWebhook,
			want:   service.ErrIllegalTransition,
		},
		{
			name:   "pending cannot jump to refunded",
			method: models.MethodCreditCard,
			from:   models.StatusPending,
			to:     models.StatusRefunded,
			actor:  models.ActorWebhook,
			want:   service.ErrIllegalTransition,
		},
		{
			name:   "failed is terminal",
			method: models.MethodCreditCard,
			from:   models.StatusFailed,
			to:     models.StatusCompleted,
			actor:  models.ActorWebhook,
			want:   service.ErrIllegalTransition,
		},
		{
			name:   "refunded is terminal",
			method: models.MethodCreditCard,
			from:   models.StatusRefunded,
			to:     models.StatusCompleted,
			actor:  models.ActorPrivilegedManual,
			want:   service.ErrIllegalTransition,
		},
		{
			name:   "cash payment is terminal after creation",
			method: models.MethodCash,
			from:   models.StatusCompleted,
			to:     models.StatusRefunded,
			actor:  models.ActorPrivilegedManual,
			want:   service.ErrIllegalTransition,
		},
		{
			name:   "bank transfer is terminal after creation",
			method: models.MethodBankTransfer,
			from:   models.StatusCompleted,
			to:     models.StatusFailed,
			actor:  models.ActorWebhook,
			want:   service.ErrIllegalTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := service.ValidateTransition(tt.method, tt.from, tt.to, tt.actor)
			if !errors.Is(got, tt.want) && got != tt.want {
				t.Errorf("ValidateTransition(%s, %s->%s, %s) = %v, want %v",
					tt.method, tt.from, tt.to, tt.actor, got, tt.want)
			}
		})
	}
}

func TestManualCompleteOnCardPaymentForbidden(t *testing.T) {
	e := newEnv(t)
	inv := e.addInvoice(t, "INV-001", "100")
	p := e.pay(t, inv.ID, models.MethodCreditCard, "100")

	_, err := e.engine.RequestTransition(context.Background(), p.ID, models.StatusCompleted, models.ActorPrivilegedManual)
	if !errors.Is(err, service.ErrForbidden) {
		t.Fatalf("manual PENDING->COMPLETED: got %v, want ErrForbidden", err)
	}

	if got := e.payment(t, p.ID).Status; got != models.StatusPending {
		t.Errorf("payment status = %s, want PENDING", got)
	}
}

func TestManualRefundUpdatesInvoice(t *testing.T) {
	e := newEnv(t)
	inv := e.addInvoice(t, "INV-002", "100")
	p := e.pay(t, inv.ID, models.MethodCreditCard, "100")

	ctx := context.Background()
	if _, err := e.engine.RequestTransition(ctx, p.ID, models.StatusCompleted, models.ActorWebhook); err != nil {
		t.Fatalf("webhook complete: %v", err)
	}
	if got := e.invoice(t, inv.ID).Status; got != models.InvoicePaid {
		t.Fatalf("invoice status after completion = %s, want PAID", got)
	}

	if _, err := e.engine.RequestTransition(ctx, p.ID, models.StatusRefunded, models.ActorPrivilegedManual); err != nil {
		t.Fatalf("manual refund: %v", err)
	}

	got := e.invoice(t, inv.ID)
	if got.Status != models.InvoiceUnpaid {
		t.Errorf("invoice status after refund = %s, want UNPAID", got.Status)
	}
	if !got.PaidAmount.IsZero() {
		t.Errorf("paid_amount after refund = %s, want 0", got.PaidAmount)
	}
	if !got.DueAmount.Equal(dec(t, "100")) {
		t.Errorf("due_amount after refund = %s, want 100", got.DueAmount)
	}
}

func TestTransitionUnknownPayment(t *testing.T) {
	e := newEnv(t)
	_, err := e.engine.RequestTransition(context.Background(), "nope", models.StatusRefunded, models.ActorPrivilegedManual)
	if !errors.Is(err, service.ErrPaymentNotFound) {
		t.Fatalf("got %v, want ErrPaymentNotFound", err)
	}
}

func TestTransitionUpdatesStatusChangedAt(t *testing.T) {
	e := newEnv(t)
	inv := e.addInvoice(t, "INV-003", "50")
	p := e.pay(t, inv.ID, models.MethodCreditCard, "50")

	before := e.payment(t, p.ID).StatusChangedAt
	time.Sleep(5 * time.Millisecond)
	if _, err := e.engine.RequestTransition(context.Background(), p.ID, models.StatusFailed, models.ActorWebhook); err != nil {
		t.Fatalf("webhook fail: %v", err)
	}
	after := e.payment(t, p.ID)
	if !after.StatusChangedAt.After(before) {
		t.Errorf("status_changed_at not advanced: before=%v after=%v", before, after.StatusChangedAt)
	}
	if after.Status != models.StatusFailed {
		t.Errorf("status = %s, want FAILED", after.Status)
	}
}
