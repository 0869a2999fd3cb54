package orders

import (
	"testing"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/domain"
)

func TestStages_CoverEveryStatus(t *testing.T) {
	for _, status := range domain.OrderStatuses() {
		if _, err := stageOf(status); err != nil {
			t.Errorf("%s: %v", status, err)
		}
	}
	if len(stages) != len(domain.OrderStatuses()) {
		t.Errorf("expected %d stages, got %d", len(domain.OrderStatuses()), len(stages))
	}
}

func TestCheckStatusUpdate(t *testing.T) {
	assigned := "u-printer"
	cases := []struct {
		name   string
		status domain.OrderStatus
		caller domain.Caller
		target domain.OrderStatus
		want   apperror.Kind
		ok     bool
	}{
		{name: "admin forward", status: domain.OrderStatusPaymentReceived, caller: admin, target: domain.OrderStatusProcessing, ok: true},
		{name: "admin skips", status: domain.OrderStatusProcessing, caller: admin, target: domain.OrderStatusDelivered, ok: true},
		{name: "admin backwards", status: domain.OrderStatusShipped, caller: admin, target: domain.OrderStatusPrinting, want: apperror.KindInvalidOperation},
		{name: "admin same status", status: domain.OrderStatusShipped, caller: admin, target: domain.OrderStatusShipped, want: apperror.KindInvalidOperation},
		{name: "admin on unpaid", status: domain.OrderStatusPendingPayment, caller: admin, target: domain.OrderStatusProcessing, want: apperror.KindInvalidOperation},
		{name: "admin on delivered", status: domain.OrderStatusDelivered, caller: admin, target: domain.OrderStatusDelivered, want: apperror.KindInvalidOperation},
		{name: "printer prints", status: domain.OrderStatusProcessing, caller: printer, target: domain.OrderStatusPrinting, ok: true},
		{name: "printer readies", status: domain.OrderStatusPrinting, caller: printer, target: domain.OrderStatusReadyForShipping, ok: true},
		{name: "printer ships", status: domain.OrderStatusReadyForShipping, caller: printer, target: domain.OrderStatusShipped, want: apperror.KindAuthorization},
		{name: "other printer", status: domain.OrderStatusProcessing, caller: printer2, target: domain.OrderStatusPrinting, want: apperror.KindNotFound},
		{name: "client", status: domain.OrderStatusProcessing, caller: client, target: domain.OrderStatusPrinting, want: apperror.KindAuthorization},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := &domain.Order{ClientID: client.ID, Status: tc.status, PrinterID: &assigned}
			err := checkStatusUpdate(order, tc.caller, tc.target)
			if tc.ok {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if apperror.KindOf(err) != tc.want {
				t.Errorf("expected %s, got %v", tc.want, err)
			}
		})
	}
}

func TestCheckCancel(t *testing.T) {
	for _, status := range domain.OrderStatuses() {
		order := &domain.Order{ClientID: client.ID, Status: status}
		err := checkCancel(order, client)

		wantOK := status.Rank() <= domain.OrderStatusReadyForShipping.Rank()
		if wantOK && err != nil {
			t.Errorf("%s: unexpected error: %v", status, err)
		}
		if !wantOK && apperror.KindOf(err) != apperror.KindInvalidOperation {
			t.Errorf("%s: expected invalid operation, got %v", status, err)
		}
	}

	order := &domain.Order{ClientID: client.ID, Status: domain.OrderStatusPendingPayment}
	if err := checkCancel(order, other); apperror.KindOf(err) != apperror.KindAuthorization {
		t.Errorf("expected forbidden, got %v", err)
	}
	if err := checkCancel(order, admin); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseTarget(t *testing.T) {
	for _, status := range domain.OrderStatuses() {
		_, err := parseTarget(string(status))
		wantOK := status.Rank() >= domain.OrderStatusProcessing.Rank() && status != domain.OrderStatusCancelled
		if wantOK != (err == nil) {
			t.Errorf("%s: expected ok=%v, got %v", status, wantOK, err)
		}
	}
}
