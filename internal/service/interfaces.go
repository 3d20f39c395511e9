package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"payment-ledger/internal/models"
)

// PaymentStore persists payment records. GetByID returns (nil, nil) when no
// row matches.
type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	// GetByIDForUpdate locks the payment row for the rest of the enclosing
	// transaction.
	GetByIDForUpdate(ctx context.Context, id string) (*models.Payment, error)
	FindByExternalReference(ctx context.Context, ref string) ([]*models.Payment, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]*models.Payment, error)
	Update(ctx context.Context, p *models.Payment) error
	Delete(ctx context.Context, id string) error
}

// InvoiceStore persists invoices and answers the aggregate queries the
// reconciliation engine runs. Derived fields are written only through
// UpdateDerived.
type InvoiceStore interface {
	Create(ctx context.Context, inv *models.Invoice) error
	GetByID(ctx context.Context, id string) (*models.Invoice, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Invoice, error)
	GetByNumber(ctx context.Context, number string) (*models.Invoice, error)
	List(ctx context.Context) ([]*models.Invoice, error)
	// AggregateAmounts sums payment amounts by status directly from the
	// payment rows, never from a cached field.
	AggregateAmounts(ctx context.Context, invoiceID string) (paid, pending decimal.Decimal, err error)
	UpdateDerived(ctx context.Context, inv *models.Invoice) error
}

// Datastore groups the stores and scopes them to a transaction. InTx runs fn
// against a transactional view; nesting reuses the open transaction.
type Datastore interface {
	Payments() PaymentStore
	Invoices() InvoiceStore
	InTx(ctx context.Context, fn func(ds Datastore) error) error
}

// DedupStore tracks recently processed webhook event ids. MarkProcessed
// reports true the first time an id is seen within the window; Unmark drops
// the id again so a redelivery is evaluated instead of read as a duplicate.
type DedupStore interface {
	MarkProcessed(ctx context.Context, eventID string, window time.Duration) (bool, error)
	Unmark(ctx context.Context, eventID string) error
}

// PaymentGateway creates processor-side payment intents for credit-card
// payments.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, invoiceID, invoiceNumber string, amount decimal.Decimal) (intentID, clientSecret string, err error)
}
