package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPendingPayment   OrderStatus = "PENDING_PAYMENT"
	OrderStatusPaymentReceived  OrderStatus = "PAYMENT_RECEIVED"
	OrderStatusProcessing       OrderStatus = "PROCESSING"
	OrderStatusCustomizing      OrderStatus = "CUSTOMIZING"
	OrderStatusPrinting         OrderStatus = "PRINTING"
	OrderStatusReadyForShipping OrderStatus = "READY_FOR_SHIPPING"
	OrderStatusShipped          OrderStatus = "SHIPPED"
	OrderStatusDelivered        OrderStatus = "DELIVERED"
	OrderStatusCancelled        OrderStatus = "CANCELLED"
)

// OrderStatuses lists every status in lifecycle order, CANCELLED last.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPendingPayment,
		OrderStatusPaymentReceived,
		OrderStatusProcessing,
		OrderStatusCustomizing,
		OrderStatusPrinting,
		OrderStatusReadyForShipping,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
	}
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return status, nil
}

func (s OrderStatus) IsValid() bool {
	return s.Rank() >= 0
}

// Rank is the position of the status along the fulfilment path. CANCELLED sits
// outside the path and ranks after DELIVERED. Unknown values return -1.
func (s OrderStatus) Rank() int {
	switch s {
	case OrderStatusPendingPayment:
		return 0
	case OrderStatusPaymentReceived:
		return 1
	case OrderStatusProcessing:
		return 2
	case OrderStatusCustomizing:
		return 3
	case OrderStatusPrinting:
		return 4
	case OrderStatusReadyForShipping:
		return 5
	case OrderStatusShipped:
		return 6
	case OrderStatusDelivered:
		return 7
	case OrderStatusCancelled:
		return 8
	default:
		return -1
	}
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

type OrderItem struct {
	ID             string          `json:"id,omitempty"`
	ArtworkID      string          `json:"artworkId"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Customizations json.RawMessage `json:"customizations,omitempty"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type ShippingDetails struct {
	Address      string `json:"address"`
	City         string `json:"city"`
	Country      string `json:"country"`
	ContactPhone string `json:"contactPhone"`
	PostalCode   string `json:"postalCode,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type StatusHistoryEntry struct {
	ID        string      `json:"id"`
	Status    OrderStatus `json:"status"`
	Comment   string      `json:"comment"`
	CreatedBy string      `json:"createdBy"`
	CreatedAt time.Time   `json:"createdAt"`
}

type Order struct {
	ID              string               `json:"id"`
	OrderNumber     string               `json:"orderNumber"`
	ClientID        string               `json:"clientId"`
	PrinterID       *string              `json:"printerId,omitempty"`
	Items           []OrderItem          `json:"items"`
	ShippingDetails ShippingDetails      `json:"shippingDetails"`
	TotalAmount     decimal.Decimal      `json:"totalAmount"`
	Status          OrderStatus          `json:"status"`
	StatusHistory   []StatusHistoryEntry `json:"statusHistory,omitempty"`
	Payment         *Payment             `json:"payment,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// ComputeTotal sums unit price times quantity over the items.
func ComputeTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (o *Order) IsAssignedTo(printerID string) bool {
	return o.PrinterID != nil && *o.PrinterID == printerID
}
