// Package notifications records user notifications for order events and
// delivers them over email and WhatsApp out of band.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/domain"
)

type UserLookup interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

type Store interface {
	Insert(ctx context.Context, n *domain.Notification) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, topic, key string, payload any) error
}

// Dispatcher writes a notification row and its delivery task through the
// transaction on ctx.
type Dispatcher struct {
	users  UserLookup
	store  Store
	outbox Enqueuer
	topic  string
	logger *slog.Logger
	now    func() time.Time
}

func NewDispatcher(users UserLookup, store Store, outbox Enqueuer, topic string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		users:  users,
		store:  store,
		outbox: outbox,
		topic:  topic,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Notify records content for recipientID. An unknown recipient is logged and
// skipped; storage errors are returned so the surrounding transaction aborts.
func (d *Dispatcher) Notify(ctx context.Context, recipientID, content string, meta domain.NotificationMetadata) error {
	recipient, err := d.users.GetUser(ctx, recipientID)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			d.logger.WarnContext(ctx, "notification recipient not found", "recipient_id", recipientID, "order_id", meta.OrderID)
			return nil
		}
		return fmt.Errorf("load notification recipient: %w", err)
	}

	n, err := d.record(ctx, recipient, domain.NotificationTypeSystem, content, meta)
	if err != nil {
		return err
	}

	d.logger.DebugContext(ctx, "notification queued", "notification_id", n.ID, "recipient_id", recipient.ID)
	return nil
}

// SendWhatsApp queues message for userID over WhatsApp only. Unlike Notify it
// fails when the user is unknown or has no phone number.
func (d *Dispatcher) SendWhatsApp(ctx context.Context, userID, message string) (*domain.Notification, error) {
	recipient, err := d.users.GetUser(ctx, userID)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return nil, apperror.NotFound("user not found")
		}
		return nil, fmt.Errorf("load whatsapp recipient: %w", err)
	}
	if recipient.PhoneNumber == "" {
		return nil, apperror.Validation("user has no phone number",
			apperror.FieldError{Field: "userId", Message: "user has no phone number"})
	}

	n, err := d.record(ctx, recipient, domain.NotificationTypeWhatsApp, message, domain.NotificationMetadata{})
	if err != nil {
		return nil, err
	}
	d.logger.InfoContext(ctx, "whatsapp message queued", "notification_id", n.ID, "recipient_id", recipient.ID)
	return n, nil
}

// record inserts the notification and its outbox event. Contact details are
// limited to the channels the type allows.
func (d *Dispatcher) record(ctx context.Context, recipient *domain.User, typ domain.NotificationType, content string, meta domain.NotificationMetadata) (*domain.Notification, error) {
	metadata, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal notification metadata: %w", err)
	}

	n := &domain.Notification{
		ID:          uuid.New().String(),
		RecipientID: recipient.ID,
		Type:        typ,
		Content:     content,
		Status:      domain.NotificationStatusPending,
		Metadata:    metadata,
		CreatedAt:   d.now(),
	}
	if err := d.store.Insert(ctx, n); err != nil {
		return nil, err
	}

	event := domain.NotificationQueuedEvent{
		NotificationID: n.ID,
		Type:           typ,
		RecipientID:    recipient.ID,
		RecipientName:  recipient.FullName(),
		PhoneNumber:    recipient.PhoneNumber,
		Content:        content,
		Metadata:       meta,
		Timestamp:      n.CreatedAt,
	}
	if typ != domain.NotificationTypeWhatsApp {
		event.Email = recipient.Email
	}
	if err := d.outbox.Enqueue(ctx, d.topic, n.ID, event); err != nil {
		return nil, err
	}
	return n, nil
}
