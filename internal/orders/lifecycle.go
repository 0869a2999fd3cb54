package orders

import (
	"fmt"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/domain"
)

// stage describes what may happen to an order sitting in a status.
type stage struct {
	// cancellable orders may move to CANCELLED by their client or an admin.
	cancellable bool
	// progressable orders are paid and not terminal, so admins and assigned
	// printers may move them forward.
	progressable bool
	// settable statuses may be the target of a status update.
	settable bool
	// assignable orders may be handed to a printer.
	assignable bool
}

// stages must hold an entry for every OrderStatus.
var stages = map[domain.OrderStatus]stage{
	domain.OrderStatusPendingPayment:   {cancellable: true},
	domain.OrderStatusPaymentReceived:  {cancellable: true, progressable: true, assignable: true},
	domain.OrderStatusProcessing:       {cancellable: true, progressable: true, settable: true, assignable: true},
	domain.OrderStatusCustomizing:      {cancellable: true, progressable: true, settable: true},
	domain.OrderStatusPrinting:         {cancellable: true, progressable: true, settable: true},
	domain.OrderStatusReadyForShipping: {cancellable: true, progressable: true, settable: true},
	domain.OrderStatusShipped:          {progressable: true, settable: true},
	domain.OrderStatusDelivered:        {settable: true},
	domain.OrderStatusCancelled:        {},
}

func stageOf(status domain.OrderStatus) (stage, error) {
	st, ok := stages[status]
	if !ok {
		return stage{}, fmt.Errorf("order in unknown status %q", status)
	}
	return st, nil
}

func printerMaySet(status domain.OrderStatus) bool {
	return status == domain.OrderStatusPrinting || status == domain.OrderStatusReadyForShipping
}

// parseTarget validates a requested status before any order is loaded.
func parseTarget(raw string) (domain.OrderStatus, error) {
	target, err := domain.ParseOrderStatus(raw)
	if err == nil {
		if st, _ := stageOf(target); st.settable {
			return target, nil
		}
	}
	return "", apperror.Validation("invalid status",
		apperror.FieldError{Field: "status", Message: "must be one of PROCESSING, CUSTOMIZING, PRINTING, READY_FOR_SHIPPING, SHIPPED, DELIVERED"})
}

// checkStatusUpdate enforces who may move order to target. Progression is
// monotonic: stages may be skipped but never revisited.
func checkStatusUpdate(order *domain.Order, caller domain.Caller, target domain.OrderStatus) error {
	switch {
	case caller.IsAdmin():
	case caller.IsPrinter():
		if !order.IsAssignedTo(caller.ID) {
			return apperror.NotFound("order not found")
		}
		if !printerMaySet(target) {
			return apperror.Forbidden("printers may only set PRINTING or READY_FOR_SHIPPING")
		}
	default:
		return apperror.Forbidden("only admins and the assigned printer may update order status")
	}

	current, err := stageOf(order.Status)
	if err != nil {
		return err
	}
	if !current.progressable {
		return apperror.InvalidOperation(fmt.Sprintf("order in status %s cannot be updated", order.Status))
	}
	if target.Rank() <= order.Status.Rank() {
		return apperror.InvalidOperation(fmt.Sprintf("order cannot move from %s back to %s", order.Status, target))
	}
	return nil
}

func checkCancel(order *domain.Order, caller domain.Caller) error {
	if order.ClientID != caller.ID && !caller.IsAdmin() {
		return apperror.Forbidden("you are not allowed to cancel this order")
	}
	current, err := stageOf(order.Status)
	if err != nil {
		return err
	}
	if !current.cancellable {
		return apperror.InvalidOperation(fmt.Sprintf("order in status %s cannot be cancelled", order.Status))
	}
	return nil
}

func checkAssign(order *domain.Order) error {
	current, err := stageOf(order.Status)
	if err != nil {
		return err
	}
	if !current.assignable {
		return apperror.InvalidOperation(fmt.Sprintf("order in status %s cannot be assigned", order.Status))
	}
	return nil
}

// canView reports whether caller may read order. Printers only see orders
// assigned to them.
func canView(order *domain.Order, caller domain.Caller) error {
	switch {
	case caller.IsAdmin(), order.ClientID == caller.ID:
		return nil
	case caller.IsPrinter():
		if order.IsAssignedTo(caller.ID) {
			return nil
		}
		return apperror.NotFound("order not found")
	default:
		return apperror.Forbidden("you are not allowed to view this order")
	}
}
