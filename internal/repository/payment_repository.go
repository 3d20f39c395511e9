package repository

import (
	"context"
	"database/sql"

	"payment-ledger/internal/models"
)

type PaymentRepository struct {
	q queryer
}

const paymentColumns = `id, invoice_id, method, amount, status, COALESCE(external_reference, ''), notes, created_at, status_changed_at`

func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (
			id, invoice_id, method, amount, status,
			external_reference, notes, created_at, status_changed_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
	`

	_, err := r.q.ExecContext(ctx, query,
		p.ID,
		p.InvoiceID,
		p.Method,
		p.Amount,
		p.Status,
		p.ExternalReference,
		p.Notes,
		p.CreatedAt,
		p.StatusChangedAt,
	)

	return err
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

func (r *PaymentRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

func (r *PaymentRepository) FindByExternalReference(ctx context.Context, ref string) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE external_reference = $1 ORDER BY created_at`
	return r.scanAll(r.q.QueryContext(ctx, query, ref))
}

func (r *PaymentRepository) ListByInvoice(ctx context.Context, invoiceID string) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE invoice_id = $1 ORDER BY created_at`
	return r.scanAll(r.q.QueryContext(ctx, query, invoiceID))
}

func (r *PaymentRepository) Update(ctx context.Context, p *models.Payment) error {
	query := `
		UPDATE payments
		SET status = $1, amount = $2, notes = $3, status_changed_at = $4
		WHERE id = $5
	`

	_, err := r.q.ExecContext(ctx, query,
		p.Status,
		p.Amount,
		p.Notes,
		p.StatusChangedAt,
		p.ID,
	)

	return err
}

func (r *PaymentRepository) Delete(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	return err
}

func (r *PaymentRepository) scanOne(row *sql.Row) (*models.Payment, error) {
	p := &models.Payment{}
	err := row.Scan(
		&p.ID,
		&p.InvoiceID,
		&p.Method,
		&p.Amount,
		&p.Status,
		&p.ExternalReference,
		&p.Notes,
		&p.CreatedAt,
		&p.StatusChangedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return p, err
}

func (r *PaymentRepository) scanAll(rows *sql.Rows, err error) ([]*models.Payment, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p := &models.Payment{}
		if err := rows.Scan(
			&p.ID,
			&p.InvoiceID,
			&p.Method,
			&p.Amount,
			&p.Status,
			&p.ExternalReference,
			&p.Notes,
			&p.CreatedAt,
			&p.StatusChangedAt,
		); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}

	return payments, rows.Err()
}
