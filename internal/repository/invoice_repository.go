package repository

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"payment-ledger/internal/models"
)

type InvoiceRepository struct {
	q queryer
}

const invoiceColumns = `id, number, total_amount, paid_amount, pending_amount, due_amount, status, created_at, updated_at`

func (r *InvoiceRepository) Create(ctx context.Context, inv *models.Invoice) error {
	query := `
		INSERT INTO invoices (
			id, number, total_amount, paid_amount, pending_amount,
			due_amount, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.q.ExecContext(ctx, query,
		inv.ID,
		inv.Number,
		inv.TotalAmount,
		inv.PaidAmount,
		inv.PendingAmount,
		inv.DueAmount,
		inv.Status,
		inv.CreatedAt,
		inv.UpdatedAt,
	)

	return err
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

func (r *InvoiceRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 FOR UPDATE`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

func (r *InvoiceRepository) GetByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE number = $1`
	return r.scanOne(r.q.QueryRowContext(ctx, query, number))
}

func (r *InvoiceRepository) List(ctx context.Context) ([]*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices ORDER BY created_at`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		inv := &models.Invoice{}
		if err := rows.Scan(
			&inv.ID,
			&inv.Number,
			&inv.TotalAmount,
			&inv.PaidAmount,
			&inv.PendingAmount,
			&inv.DueAmount,
			&inv.Status,
			&inv.CreatedAt,
			&inv.UpdatedAt,
		); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}

	return invoices, rows.Err()
}

// AggregateAmounts sums completed and pending payment amounts straight from
// the payment rows. Derived invoice fields are never an input here.
func (r *InvoiceRepository) AggregateAmounts(ctx context.Context, invoiceID string) (decimal.Decimal, decimal.Decimal, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'COMPLETED' THEN amount END), 0),
			COALESCE(SUM(CASE WHEN status = 'PENDING' THEN amount END), 0)
		FROM payments
		WHERE invoice_id = $1
	`

	var paid, pending decimal.Decimal
	err := r.q.QueryRowContext(ctx, query, invoiceID).Scan(&paid, &pending)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	return paid, pending, nil
}

func (r *InvoiceRepository) UpdateDerived(ctx context.Context, inv *models.Invoice) error {
	query := `
		UPDATE invoices
		SET paid_amount = $1, pending_amount = $2, due_amount = $3, status = $4, updated_at = $5
		WHERE id = $6
	`

	_, err := r.q.ExecContext(ctx, query,
		inv.PaidAmount,
		inv.PendingAmount,
		inv.DueAmount,
		inv.Status,
		inv.UpdatedAt,
		inv.ID,
	)

	return err
}

func (r *InvoiceRepository) scanOne(row *sql.Row) (*models.Invoice, error) {
	inv := &models.Invoice{}
	err := row.Scan(
		&inv.ID,
		&inv.Number,
		&inv.TotalAmount,
		&inv.PaidAmount,
		&inv.PendingAmount,
		&inv.DueAmount,
		&inv.Status,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return inv, err
}
