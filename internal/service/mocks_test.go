package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-ledger/internal/models"
	"payment-ledger/internal/repository"
	"payment-ledger/internal/service"
)

// fakeStore is an in-memory Datastore. InTx runs fn directly against the
// store; individual operations lock, which is enough serialization given the
// engine's per-payment lock.
type fakeStore struct {
	mu            sync.Mutex
	payments      map[string]*models.Payment
	paymentOrder  []string
	invoices      map[string]*models.Invoice
	invoiceWrites int

	// One-shot barrier for the next locked payment read, so a test can hold
	// the per-payment lock at a known point.
	stallForUpdate chan struct{}
	stallEntered   chan struct{}
}

// stallNextLockedRead makes the next Payments().GetByIDForUpdate close
// entered and then block until release is closed.
func (f *fakeStore) stallNextLockedRead(release, entered chan struct{}) {
	f.mu.Lock()
	f.stallForUpdate = release
	f.stallEntered = entered
	f.mu.Unlock()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments: make(map[string]*models.Payment),
		invoices: make(map[string]*models.Invoice),
	}
}

func (f *fakeStore) Payments() service.PaymentStore { return &fakePayments{f} }
func (f *fakeStore) Invoices() service.InvoiceStore { return &fakeInvoices{f} }

func (f *fakeStore) InTx(_ context.Context, fn func(ds service.Datastore) error) error {
	return fn(f)
}

func clonePayment(p *models.Payment) *models.Payment {
	c := *p
	return &c
}

func cloneInvoice(inv *models.Invoice) *models.Invoice {
	c := *inv
	return &c
}

type fakePayments struct{ f *fakeStore }

func (r *fakePayments) Create(_ context.Context, p *models.Payment) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.payments[p.ID] = clonePayment(p)
	r.f.paymentOrder = append(r.f.paymentOrder, p.ID)
	return nil
}

func (r *fakePayments) GetByID(_ context.Context, id string) (*models.Payment, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	p, ok := r.f.payments[id]
	if !ok {
		return nil, nil
	}
	return clonePayment(p), nil
}

func (r *fakePayments) GetByIDForUpdate(ctx context.Context, id string) (*models.Payment, error) {
	r.f.mu.Lock()
	release, entered := r.f.stallForUpdate, r.f.stallEntered
	r.f.stallForUpdate, r.f.stallEntered = nil, nil
	r.f.mu.Unlock()
	if release != nil {
		close(entered)
		<-release
	}
	return r.GetByID(ctx, id)
}

func (r *fakePayments) FindByExternalReference(_ context.Context, ref string) ([]*models.Payment, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.Payment
	for _, id := range r.f.paymentOrder {
		p := r.f.payments[id]
		if p != nil && ref != "" && p.ExternalReference == ref {
			out = append(out, clonePayment(p))
		}
	}
	return out, nil
}

func (r *fakePayments) ListByInvoice(_ context.Context, invoiceID string) ([]*models.Payment, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.Payment
	for _, id := range r.f.paymentOrder {
		p := r.f.payments[id]
		if p != nil && p.InvoiceID == invoiceID {
			out = append(out, clonePayment(p))
		}
	}
	return out, nil
}

func (r *fakePayments) Update(_ context.Context, p *models.Payment) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.payments[p.ID]; !ok {
		return fmt.Errorf("payment %s not found", p.ID)
	}
	r.f.payments[p.ID] = clonePayment(p)
	return nil
}

func (r *fakePayments) Delete(_ context.Context, id string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	delete(r.f.payments, id)
	return nil
}

type fakeInvoices struct{ f *fakeStore }

func (r *fakeInvoices) Create(_ context.Context, inv *models.Invoice) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (r *fakeInvoices) GetByID(_ context.Context, id string) (*models.Invoice, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	inv, ok := r.f.invoices[id]
	if !ok {
		return nil, nil
	}
	return cloneInvoice(inv), nil
}

func (r *fakeInvoices) GetByIDForUpdate(ctx context.Context, id string) (*models.Invoice, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeInvoices) GetByNumber(_ context.Context, number string) (*models.Invoice, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, inv := range r.f.invoices {
		if inv.Number == number {
			return cloneInvoice(inv), nil
		}
	}
	return nil, nil
}

func (r *fakeInvoices) List(_ context.Context) ([]*models.Invoice, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.Invoice
	for _, inv := range r.f.invoices {
		out = append(out, cloneInvoice(inv))
	}
	return out, nil
}

func (r *fakeInvoices) AggregateAmounts(_ context.Context, invoiceID string) (decimal.Decimal, decimal.Decimal, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	paid, pending := decimal.Zero, decimal.Zero
	for _, p := range r.f.payments {
		if p.InvoiceID != invoiceID {
			continue
		}
		switch p.Status {
		case models.StatusCompleted:
			paid = paid.Add(p.Amount)
		case models.StatusPending:
			pending = pending.Add(p.Amount)
		}
	}
	return paid, pending, nil
}

func (r *fakeInvoices) UpdateDerived(_ context.Context, inv *models.Invoice) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.invoices[inv.ID]; !ok {
		return fmt.Errorf("invoice %s not found", inv.ID)
	}
	r.f.invoices[inv.ID] = cloneInvoice(inv)
	r.f.invoiceWrites++
	return nil
}

type fakeGateway struct {
	mu      sync.Mutex
	intents int
}

func (g *fakeGateway) CreateIntent(_ context.Context, _, _ string, _ decimal.Decimal) (string, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents++
	id := fmt.Sprintf("pi_test_%d", g.intents)
	return id, id + "_secret", nil
}

// env wires the services against the in-memory store.
type env struct {
	store    *fakeStore
	recon    *service.Reconciler
	engine   *service.TransitionEngine
	payments *service.PaymentService
	gateway  *fakeGateway
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := zap.NewNop()
	store := newFakeStore()
	recon := service.NewReconciler(log)
	engine := service.NewTransitionEngine(store, recon, log)
	gw := &fakeGateway{}
	return &env{
		store:    store,
		recon:    recon,
		engine:   engine,
		payments: service.NewPaymentService(store, gw, recon, log),
		gateway:  gw,
	}
}

func (e *env) newPipeline(testMode bool, secret string) *service.WebhookPipeline {
	return service.NewWebhookPipeline(secret, testMode, "test", repository.NewMemoryDedup(), e.store, e.engine, zap.NewNop())
}

func (e *env) addInvoice(t *testing.T, number, total string) *models.Invoice {
	t.Helper()
	now := time.Now().UTC()
	amount := dec(t, total)
	inv := &models.Invoice{
		ID:          uuid.New().String(),
		Number:      number,
		TotalAmount: amount,
		DueAmount:   amount,
		Status:      models.InvoiceUnpaid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.Invoices().Create(context.Background(), inv); err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return inv
}

func (e *env) pay(t *testing.T, invoiceID string, method models.PaymentMethod, amount string) *models.Payment {
	t.Helper()
	resp, err := e.payments.CreatePayment(context.Background(), &models.PaymentRequest{
		InvoiceID: invoiceID,
		Method:    method,
		Amount:    dec(t, amount),
	})
	if err != nil {
		t.Fatalf("create %s payment of %s: %v", method, amount, err)
	}
	return resp.Payment
}

func (e *env) invoice(t *testing.T, id string) *models.Invoice {
	t.Helper()
	inv, err := e.store.Invoices().GetByID(context.Background(), id)
	if err != nil || inv == nil {
		t.Fatalf("load invoice %s: %v", id, err)
	}
	return inv
}

func (e *env) payment(t *testing.T, id string) *models.Payment {
	t.Helper()
	p, err := e.store.Payments().GetByID(context.Background(), id)
	if err != nil || p == nil {
		t.Fatalf("load payment %s: %v", id, err)
	}
	return p
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}
