package repository

import (
	"context"
	"database/sql"
	"fmt"

	"payment-ledger/internal/service"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLStore implements service.Datastore over database/sql. InTx hands fn a
// store bound to one transaction; a nested call reuses the open transaction.
type SQLStore struct {
	db *sql.DB
	q  queryer
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, q: db}
}

func (s *SQLStore) Payments() service.PaymentStore {
	return &PaymentRepository{q: s.q}
}

func (s *SQLStore) Invoices() service.InvoiceStore {
	return &InvoiceRepository{q: s.q}
}

func (s *SQLStore) InTx(ctx context.Context, fn func(ds service.Datastore) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&SQLStore{db: s.db, q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (after: %w)", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}
