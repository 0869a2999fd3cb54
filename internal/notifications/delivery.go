package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/printhub/internal/domain"
)

var deliveries, _ = otel.Meter("printhub/notifications").Int64Counter("notification.deliveries",
	metric.WithDescription("Notification delivery attempts by channel and outcome"))

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

type WhatsAppSender interface {
	Send(ctx context.Context, phoneNumber, message string) (string, error)
}

// SentMarker moves a PENDING notification to SENT and reports whether this
// call did it.
type SentMarker interface {
	MarkSent(ctx context.Context, id string, at time.Time) (bool, error)
}

// DeliveryHandler consumes NotificationQueuedEvent messages. The notification
// is claimed by marking it SENT before any channel is tried, so a redelivered
// event never reaches the user twice. Channel failures are logged and never
// retried.
type DeliveryHandler struct {
	email    EmailSender
	whatsapp WhatsAppSender
	store    SentMarker
	timeout  time.Duration
	logger   *slog.Logger
}

func NewDeliveryHandler(email EmailSender, whatsapp WhatsAppSender, store SentMarker, timeout time.Duration, logger *slog.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		email:    email,
		whatsapp: whatsapp,
		store:    store,
		timeout:  timeout,
		logger:   logger,
	}
}

func (h *DeliveryHandler) Handle(ctx context.Context, _ string, payload []byte) error {
	var event domain.NotificationQueuedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal notification event: %w", err)
	}

	logger := h.logger.With("notification_id", event.NotificationID, "order_id", event.Metadata.OrderID)

	claimed, err := h.store.MarkSent(ctx, event.NotificationID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !claimed {
		logger.InfoContext(ctx, "notification already processed")
		return nil
	}

	if event.Email != "" {
		h.attempt(ctx, logger, "email", func(ctx context.Context) (string, error) {
			return h.email.Send(ctx, event.Email, emailSubject(event), emailBody(event))
		})
	}
	if event.PhoneNumber != "" {
		h.attempt(ctx, logger, "whatsapp", func(ctx context.Context) (string, error) {
			return h.whatsapp.Send(ctx, event.PhoneNumber, event.Content)
		})
	}

	logger.InfoContext(ctx, "notification delivered")
	return nil
}

func (h *DeliveryHandler) attempt(ctx context.Context, logger *slog.Logger, channel string, send func(context.Context) (string, error)) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	outcome := "sent"
	id, err := send(ctx)
	if err != nil {
		outcome = "failed"
		logger.ErrorContext(ctx, "notification channel failed", "channel", channel, "error", err)
	} else {
		logger.InfoContext(ctx, "notification channel sent", "channel", channel, "message_id", id)
	}

	if deliveries != nil {
		deliveries.Add(ctx, 1, metric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("outcome", outcome),
		))
	}
}

func emailSubject(event domain.NotificationQueuedEvent) string {
	if event.Metadata.OrderNumber == "" {
		return "PrintHub notification"
	}
	return "Order " + event.Metadata.OrderNumber + " update"
}

func emailBody(event domain.NotificationQueuedEvent) string {
	name := event.RecipientName
	if name == "" {
		name = "there"
	}
	body := fmt.Sprintf("Hello %s,\n\n%s\n", name, event.Content)
	if event.Metadata.Status != "" {
		body += fmt.Sprintf("\nCurrent status: %s\n", event.Metadata.Status)
	}
	return body
}
