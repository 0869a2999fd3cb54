package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joao-fontenele/printhub/internal/domain"
)

// MobileMoney simulates an Airtel Money or Moov Money collection API. It
// accepts every charge after a fixed latency and sends the customer to the
// frontend confirmation page.
type MobileMoney struct {
	method      domain.PaymentMethod
	prefix      string
	frontendURL string
	latency     time.Duration
	now         func() time.Time
}

func NewAirtelMoney(frontendURL string, latency time.Duration) *MobileMoney {
	return newMobileMoney(domain.PaymentMethodAirtelMoney, "AIRTEL", frontendURL, latency)
}

func NewMoovMoney(frontendURL string, latency time.Duration) *MobileMoney {
	return newMobileMoney(domain.PaymentMethodMoovMoney, "MOOV", frontendURL, latency)
}

func newMobileMoney(method domain.PaymentMethod, prefix, frontendURL string, latency time.Duration) *MobileMoney {
	return &MobileMoney{
		method:      method,
		prefix:      prefix,
		frontendURL: frontendURL,
		latency:     latency,
		now:         time.Now,
	}
}

type chargePayload struct {
	Success       bool                 `json:"success"`
	TransactionID string               `json:"transactionId"`
	Amount        string               `json:"amount"`
	PhoneNumber   string               `json:"phoneNumber"`
	OrderNumber   string               `json:"orderNumber"`
	Provider      domain.PaymentMethod `json:"provider"`
	Timestamp     time.Time            `json:"timestamp"`
	RedirectURL   string               `json:"redirectUrl"`
}

func (m *MobileMoney) Charge(ctx context.Context, req ChargeRequest) (Charge, error) {
	if m.latency > 0 {
		timer := time.NewTimer(m.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Charge{}, fmt.Errorf("%s charge: %w", m.method, ctx.Err())
		case <-timer.C:
		}
	}

	txID := m.prefix + "-" + ulid.Make().String()
	redirect := m.frontendURL + "/payment/confirm?transactionId=" + url.QueryEscape(txID)

	payload, err := json.Marshal(chargePayload{
		Success:       true,
		TransactionID: txID,
		Amount:        req.Amount.StringFixed(2),
		PhoneNumber:   req.PhoneNumber,
		OrderNumber:   req.Reference,
		Provider:      m.method,
		Timestamp:     m.now().UTC(),
		RedirectURL:   redirect,
	})
	if err != nil {
		return Charge{}, fmt.Errorf("marshal %s payload: %w", m.method, err)
	}

	return Charge{TransactionID: txID, RedirectURL: redirect, Payload: payload}, nil
}
