package payments

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/domain"
)

type memRepo struct {
	byOrder map[string]*domain.Payment
}

func newMemRepo() *memRepo {
	return &memRepo{byOrder: map[string]*domain.Payment{}}
}

func clonePayment(p *domain.Payment) *domain.Payment {
	c := *p
	c.ProviderPayload = append(json.RawMessage(nil), p.ProviderPayload...)
	return &c
}

func (m *memRepo) Upsert(_ context.Context, p *domain.Payment) (*domain.Payment, error) {
	if existing, ok := m.byOrder[p.OrderID]; ok {
		if existing.Status == domain.PaymentStatusCompleted {
			return nil, apperror.Conflict("order has already been paid")
		}
		existing.Method = p.Method
		existing.Status = domain.PaymentStatusPending
		existing.TransactionID = p.TransactionID
		existing.ProviderPayload = p.ProviderPayload
		existing.UpdatedAt = p.UpdatedAt
		return clonePayment(existing), nil
	}
	m.byOrder[p.OrderID] = clonePayment(p)
	return clonePayment(p), nil
}

func (m *memRepo) LockByTransactionID(_ context.Context, transactionID string) (*domain.Payment, error) {
	for _, p := range m.byOrder {
		if p.TransactionID == transactionID {
			return clonePayment(p), nil
		}
	}
	return nil, apperror.NotFound("payment not found")
}

func (m *memRepo) Settle(_ context.Context, id string, status domain.PaymentStatus, details json.RawMessage, at time.Time) (*domain.Payment, error) {
	for _, p := range m.byOrder {
		if p.ID != id {
			continue
		}
		if p.Status != domain.PaymentStatusPending {
			return nil, apperror.Conflict("payment already settled")
		}
		payload := map[string]json.RawMessage{}
		_ = json.Unmarshal(p.ProviderPayload, &payload)
		if len(details) == 0 {
			details = json.RawMessage(`null`)
		}
		payload["confirmationDetails"] = details
		p.ProviderPayload, _ = json.Marshal(payload)
		p.Status = status
		p.UpdatedAt = at
		return clonePayment(p), nil
	}
	return nil, apperror.NotFound("payment not found")
}

func (m *memRepo) GetByOrderID(_ context.Context, orderID string) (*domain.Payment, error) {
	p, ok := m.byOrder[orderID]
	if !ok {
		return nil, apperror.NotFound("no payment found for this order")
	}
	return clonePayment(p), nil
}

// memTx restores both the payments and the orders on failure.
type memTx struct {
	repo   *memRepo
	orders *memOrders
}

func (t *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	payments := map[string]*domain.Payment{}
	for k, v := range t.repo.byOrder {
		payments[k] = clonePayment(v)
	}
	orders := map[string]domain.Order{}
	for k, v := range t.orders.orders {
		orders[k] = *v
	}
	if err := fn(ctx); err != nil {
		t.repo.byOrder = payments
		for k, v := range orders {
			*t.orders.orders[k] = v
		}
		return err
	}
	return nil
}

// memOrders plays both the order reader and the lifecycle engine.
type memOrders struct {
	orders  map[string]*domain.Order
	payer   error
	applied []string
}

func (m *memOrders) GetByID(_ context.Context, id string) (*domain.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, apperror.NotFound("order not found")
	}
	c := *o
	return &c, nil
}

func (m *memOrders) MarkPaymentReceived(_ context.Context, orderID, paymentID string) (bool, error) {
	if m.payer != nil {
		return false, m.payer
	}
	o := m.orders[orderID]
	if o.Status != domain.OrderStatusPendingPayment {
		return false, nil
	}
	o.Status = domain.OrderStatusPaymentReceived
	o.StatusHistory = append(o.StatusHistory, domain.StatusHistoryEntry{
		Status:    domain.OrderStatusPaymentReceived,
		CreatedBy: domain.SystemActorID,
	})
	m.applied = append(m.applied, paymentID)
	return true, nil
}

// blockingCharger waits until the charge context expires.
type blockingCharger struct{}

func (blockingCharger) Charge(ctx context.Context, _ domain.PaymentMethod, _ ChargeRequest) (Charge, error) {
	<-ctx.Done()
	return Charge{}, ctx.Err()
}

var (
	owner = domain.Caller{ID: "u-client", Role: domain.RoleClient}
	admin = domain.Caller{ID: "u-admin", Role: domain.RoleAdmin}
	other = domain.Caller{ID: "u-other", Role: domain.RoleClient}
)

type fixture struct {
	repo    *memRepo
	orders  *memOrders
	service *Service
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(charger Charger) *fixture {
	repo := newMemRepo()
	orders := &memOrders{orders: map[string]*domain.Order{
		"ord-1": {
			ID:          "ord-1",
			OrderNumber: "AD-123456-0001",
			ClientID:    owner.ID,
			TotalAmount: decimal.NewFromInt(4000),
			Status:      domain.OrderStatusPendingPayment,
			StatusHistory: []domain.StatusHistoryEntry{
				{Status: domain.OrderStatusPendingPayment, CreatedBy: owner.ID},
			},
		},
	}}
	if charger == nil {
		m, err := NewManager(map[domain.PaymentMethod]Provider{
			domain.PaymentMethodAirtelMoney: NewAirtelMoney("http://shop.test", 0),
			domain.PaymentMethodMoovMoney:   NewMoovMoney("http://shop.test", 0),
		})
		if err != nil {
			panic(err)
		}
		charger = m
	}
	service := NewService(repo, &memTx{repo: repo, orders: orders}, orders, orders, charger, 50*time.Millisecond, discardLogger())
	return &fixture{repo: repo, orders: orders, service: service}
}

func (f *fixture) initiate() *Initiation {
	res, err := f.service.Initiate(context.Background(), owner, InitiateInput{
		OrderID:     "ord-1",
		Method:      string(domain.PaymentMethodAirtelMoney),
		PhoneNumber: "+24106000001",
	})
	if err != nil {
		panic(err)
	}
	return res
}
