package service

import "errors"

var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrIllegalTransition       = errors.New("illegal transition")
	ErrForbidden               = errors.New("forbidden: webhook-only transition")
	ErrSignatureInvalid        = errors.New("webhook signature invalid")
	ErrUnknownPaymentReference = errors.New("unknown payment reference")
	ErrAmbiguousReference      = errors.New("ambiguous payment reference")
	ErrConcurrencyTimeout      = errors.New("timed out waiting for payment lock")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrInvoiceNotFound         = errors.New("invoice not found")
)
