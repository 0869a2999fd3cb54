package domain

import (
	"encoding/json"
	"time"
)

type NotificationType string

const (
	NotificationTypeSystem   NotificationType = "SYSTEM"
	NotificationTypeEmail    NotificationType = "EMAIL"
	NotificationTypeWhatsApp NotificationType = "WHATSAPP"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "PENDING"
	NotificationStatusSent    NotificationStatus = "SENT"
	NotificationStatusFailed  NotificationStatus = "FAILED"
)

type Notification struct {
	ID          string             `json:"id"`
	RecipientID string             `json:"recipientId"`
	Type        NotificationType   `json:"type"`
	Content     string             `json:"content"`
	Status      NotificationStatus `json:"status"`
	Metadata    json.RawMessage    `json:"metadata,omitempty"`
	SentAt      *time.Time         `json:"sentAt,omitempty"`
	ReadAt      *time.Time         `json:"readAt,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// NotificationMetadata ties a notification to the order event that produced it.
type NotificationMetadata struct {
	OrderID     string      `json:"orderId,omitempty"`
	OrderNumber string      `json:"orderNumber,omitempty"`
	Status      OrderStatus `json:"status,omitempty"`
	PaymentID   string      `json:"paymentId,omitempty"`
}
