// Package payments initiates mobile-money charges and reconciles provider
// callbacks with the order lifecycle.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/printhub/internal/domain"
)

// ErrUnsupportedProvider is returned when no provider serves a method.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// ChargeRequest is what a provider needs to start collecting a payment.
type ChargeRequest struct {
	Amount      decimal.Decimal
	PhoneNumber string
	Reference   string
}

// Charge is the provider's answer to a charge request. Payload is stored
// verbatim with the payment.
type Charge struct {
	TransactionID string
	RedirectURL   string
	Payload       json.RawMessage
}

// Provider is implemented by each mobile-money adapter.
type Provider interface {
	Charge(ctx context.Context, req ChargeRequest) (Charge, error)
}

// Manager routes charges to the provider registered for a payment method.
type Manager struct {
	providers map[domain.PaymentMethod]Provider
}

func NewManager(providers map[domain.PaymentMethod]Provider) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	m := &Manager{providers: make(map[domain.PaymentMethod]Provider, len(providers))}
	for method, p := range providers {
		if _, err := domain.ParsePaymentMethod(string(method)); err != nil || p == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for %q", method)
		}
		m.providers[method] = p
	}
	return m, nil
}

func (m *Manager) Charge(ctx context.Context, method domain.PaymentMethod, req ChargeRequest) (Charge, error) {
	p, ok := m.providers[method]
	if !ok {
		return Charge{}, fmt.Errorf("%w: %s", ErrUnsupportedProvider, method)
	}
	return p.Charge(ctx, req)
}
