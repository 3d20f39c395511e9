package gateway

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

// StripeGateway creates PaymentIntents for credit-card payments. The intent
// id becomes the payment's external reference, which webhook events later
// resolve against.
type StripeGateway struct{}

func NewStripeGateway(apiKey string) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, invoiceID, invoiceNumber string, amount decimal.Decimal) (string, string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		Description: stripe.String(fmt.Sprintf("Payment for Invoice #%s", invoiceNumber)),
	}
	params.Context = ctx
	params.AddMetadata("invoice_id", invoiceID)
	params.AddMetadata("invoice_number", invoiceNumber)

	intent, err := paymentintent.New(params)
	if err != nil {
		return "", "", fmt.Errorf("stripe payment intent failed: %w", err)
	}

	return intent.ID, intent.ClientSecret, nil
}
