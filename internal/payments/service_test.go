package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/domain"
)

func TestService_Initiate(t *testing.T) {
	t.Run("records a pending payment for the order total", func(t *testing.T) {
		f := newFixture(nil)

		res := f.initiate()

		if res.Payment.Status != domain.PaymentStatusPending {
			t.Errorf("expected PENDING, got %s", res.Payment.Status)
		}
		if !res.Payment.Amount.Equal(decimal.NewFromInt(4000)) {
			t.Errorf("expected amount 4000, got %s", res.Payment.Amount)
		}
		if !strings.HasPrefix(res.Payment.TransactionID, "AIRTEL-") {
			t.Errorf("unexpected transaction id %s", res.Payment.TransactionID)
		}
		if res.RedirectURL != "http://shop.test/payment/confirm?transactionId="+res.Payment.TransactionID {
			t.Errorf("unexpected redirect %s", res.RedirectURL)
		}
		if f.orders.orders["ord-1"].Status != domain.OrderStatusPendingPayment {
			t.Error("expected order status unchanged")
		}
	})

	t.Run("a retry replaces the pending attempt", func(t *testing.T) {
		f := newFixture(nil)
		first := f.initiate()

		second, err := f.service.Initiate(context.Background(), owner, InitiateInput{
			OrderID: "ord-1", Method: string(domain.PaymentMethodMoovMoney), PhoneNumber: "+24106000001",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if second.Payment.ID != first.Payment.ID {
			t.Errorf("expected the same payment row, got %s and %s", first.Payment.ID, second.Payment.ID)
		}
		if second.Payment.Method != domain.PaymentMethodMoovMoney || !strings.HasPrefix(second.Payment.TransactionID, "MOOV-") {
			t.Errorf("unexpected payment: %+v", second.Payment)
		}
	})

	t.Run("validates input", func(t *testing.T) {
		f := newFixture(nil)
		_, err := f.service.Initiate(context.Background(), owner, InitiateInput{OrderID: "ord-1", Method: "CASH"})

		var appErr *apperror.Error
		if !errors.As(err, &appErr) || appErr.Kind != apperror.KindValidation {
			t.Fatalf("expected validation error, got %v", err)
		}
		if len(appErr.Fields) != 2 {
			t.Errorf("expected method and phone errors, got %+v", appErr.Fields)
		}
	})

	t.Run("preconditions", func(t *testing.T) {
		cases := []struct {
			name    string
			caller  domain.Caller
			orderID string
			prepare func(f *fixture)
			want    apperror.Kind
		}{
			{name: "missing order", caller: owner, orderID: "nope", want: apperror.KindNotFound},
			{name: "not the owner", caller: other, orderID: "ord-1", want: apperror.KindAuthorization},
			{name: "admin is not the owner", caller: admin, orderID: "ord-1", want: apperror.KindAuthorization},
			{
				name: "not awaiting payment", caller: owner, orderID: "ord-1",
				prepare: func(f *fixture) { f.orders.orders["ord-1"].Status = domain.OrderStatusCancelled },
				want:    apperror.KindInvalidOperation,
			},
			{
				name: "already paid", caller: owner, orderID: "ord-1",
				prepare: func(f *fixture) {
					f.orders.orders["ord-1"].Payment = &domain.Payment{Status: domain.PaymentStatusCompleted}
				},
				want: apperror.KindConflict,
			},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				f := newFixture(nil)
				if tc.prepare != nil {
					tc.prepare(f)
				}
				_, err := f.service.Initiate(context.Background(), tc.caller, InitiateInput{
					OrderID: tc.orderID, Method: "AIRTEL_MONEY", PhoneNumber: "+24106000001",
				})
				if apperror.KindOf(err) != tc.want {
					t.Errorf("expected %s, got %v", tc.want, err)
				}
				if len(f.repo.byOrder) != 0 {
					t.Error("expected no payment written")
				}
			})
		}
	})

	t.Run("provider timeout writes nothing", func(t *testing.T) {
		f := newFixture(blockingCharger{})

		_, err := f.service.Initiate(context.Background(), owner, InitiateInput{
			OrderID: "ord-1", Method: "AIRTEL_MONEY", PhoneNumber: "+24106000001",
		})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
		if len(f.repo.byOrder) != 0 {
			t.Error("expected no payment written")
		}
	})
}

func TestService_Confirm(t *testing.T) {
	t.Run("success completes the payment and the order once", func(t *testing.T) {
		f := newFixture(nil)
		res := f.initiate()
		in := ConfirmInput{TransactionID: res.Payment.TransactionID, Status: "success", Details: json.RawMessage(`{"ref":"X1"}`)}

		p, err := f.service.Confirm(context.Background(), in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Status != domain.PaymentStatusCompleted {
			t.Errorf("expected COMPLETED, got %s", p.Status)
		}
		var payload map[string]json.RawMessage
		if err := json.Unmarshal(p.ProviderPayload, &payload); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		if string(payload["confirmationDetails"]) != `{"ref":"X1"}` || payload["transactionId"] == nil {
			t.Errorf("expected details merged into the provider payload, got %s", p.ProviderPayload)
		}

		again, err := f.service.Confirm(context.Background(), in)
		if err != nil {
			t.Fatalf("unexpected error on duplicate: %v", err)
		}
		if again.Status != domain.PaymentStatusCompleted {
			t.Errorf("expected COMPLETED, got %s", again.Status)
		}

		order := f.orders.orders["ord-1"]
		if order.Status != domain.OrderStatusPaymentReceived || len(order.StatusHistory) != 2 {
			t.Errorf("expected PAYMENT_RECEIVED with 2 entries, got %s with %d", order.Status, len(order.StatusHistory))
		}
		if len(f.orders.applied) != 1 || f.orders.applied[0] != p.ID {
			t.Errorf("expected one transition for payment %s, got %v", p.ID, f.orders.applied)
		}
	})

	t.Run("failure leaves the order awaiting payment", func(t *testing.T) {
		f := newFixture(nil)
		res := f.initiate()

		p, err := f.service.Confirm(context.Background(), ConfirmInput{TransactionID: res.Payment.TransactionID, Status: "failed"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Status != domain.PaymentStatusFailed {
			t.Errorf("expected FAILED, got %s", p.Status)
		}
		order := f.orders.orders["ord-1"]
		if order.Status != domain.OrderStatusPendingPayment || len(order.StatusHistory) != 1 {
			t.Errorf("expected order unchanged, got %s with %d entries", order.Status, len(order.StatusHistory))
		}

		late, err := f.service.Confirm(context.Background(), ConfirmInput{TransactionID: res.Payment.TransactionID, Status: "success"})
		if err != nil || late.Status != domain.PaymentStatusFailed {
			t.Errorf("expected a late success to leave the payment FAILED, got %v, %v", late, err)
		}
	})

	t.Run("success on an order that moved on still completes the payment", func(t *testing.T) {
		f := newFixture(nil)
		res := f.initiate()
		f.orders.orders["ord-1"].Status = domain.OrderStatusCancelled

		p, err := f.service.Confirm(context.Background(), ConfirmInput{TransactionID: res.Payment.TransactionID, Status: "success"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Status != domain.PaymentStatusCompleted || f.orders.orders["ord-1"].Status != domain.OrderStatusCancelled {
			t.Errorf("unexpected outcome: payment %s, order %s", p.Status, f.orders.orders["ord-1"].Status)
		}
	})

	t.Run("engine failure rolls back the payment", func(t *testing.T) {
		f := newFixture(nil)
		res := f.initiate()
		f.orders.payer = errors.New("boom")

		if _, err := f.service.Confirm(context.Background(), ConfirmInput{TransactionID: res.Payment.TransactionID, Status: "success"}); err == nil {
			t.Fatal("expected error")
		}
		if f.repo.byOrder["ord-1"].Status != domain.PaymentStatusPending {
			t.Errorf("expected payment still PENDING, got %s", f.repo.byOrder["ord-1"].Status)
		}
	})

	t.Run("unknown transaction", func(t *testing.T) {
		f := newFixture(nil)
		_, err := f.service.Confirm(context.Background(), ConfirmInput{TransactionID: "AIRTEL-NOPE", Status: "success"})
		if apperror.KindOf(err) != apperror.KindNotFound {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("requires transaction id and status", func(t *testing.T) {
		f := newFixture(nil)
		if _, err := f.service.Confirm(context.Background(), ConfirmInput{}); apperror.KindOf(err) != apperror.KindValidation {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestService_Status(t *testing.T) {
	f := newFixture(nil)

	if _, err := f.service.Status(context.Background(), owner, "ord-1"); apperror.KindOf(err) != apperror.KindNotFound {
		t.Errorf("expected not found before initiation, got %v", err)
	}

	f.initiate()
	for _, caller := range []domain.Caller{owner, admin} {
		if _, err := f.service.Status(context.Background(), caller, "ord-1"); err != nil {
			t.Errorf("%s: unexpected error: %v", caller.ID, err)
		}
	}
	if _, err := f.service.Status(context.Background(), other, "ord-1"); apperror.KindOf(err) != apperror.KindAuthorization {
		t.Errorf("expected forbidden, got %v", err)
	}
}
