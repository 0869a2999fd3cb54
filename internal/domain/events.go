package domain

import "time"

// NotificationQueuedEvent is published on the notifications topic once the
// transaction that recorded the notification commits. Contact details are
// snapshotted so the delivery worker needs no user lookup.
type NotificationQueuedEvent struct {
	NotificationID string               `json:"notificationId"`
	Type           NotificationType     `json:"type"`
	RecipientID    string               `json:"recipientId"`
	RecipientName  string               `json:"recipientName,omitempty"`
	Email          string               `json:"email,omitempty"`
	PhoneNumber    string               `json:"phoneNumber,omitempty"`
	Content        string               `json:"content"`
	Metadata       NotificationMetadata `json:"metadata"`
	Timestamp      time.Time            `json:"timestamp"`
}
