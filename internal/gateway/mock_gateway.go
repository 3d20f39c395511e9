package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockGateway issues synthetic intent ids for local development so the full
// pipeline can be exercised without processor credentials. Enabled with
// PAYMENT_GATEWAY_MOCK; pairs with webhook test mode and the event injector.
type MockGateway struct{}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (g *MockGateway) CreateIntent(_ context.Context, invoiceID, invoiceNumber string, amount decimal.Decimal) (string, string, error) {
	id := "mock_pi_" + uuid.New().String()
	secret := fmt.Sprintf("%s_secret_%s", id, uuid.New().String())
	return id, secret, nil
}
