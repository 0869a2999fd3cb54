// Package whatsapp simulates the WhatsApp Business messaging API.
package whatsapp

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var ErrInvalidPhone = errors.New("whatsapp: phone number must be in international format")

type Client struct {
	latency time.Duration
	logger  *slog.Logger
}

func NewClient(latency time.Duration, logger *slog.Logger) *Client {
	return &Client{latency: latency, logger: logger}
}

// Send returns a WA- prefixed message id once the simulated provider accepts
// the message.
func (c *Client) Send(ctx context.Context, phoneNumber, message string) (string, error) {
	phone := strings.ReplaceAll(strings.TrimSpace(phoneNumber), " ", "")
	if !strings.HasPrefix(phone, "+") || len(phone) < 8 {
		return "", ErrInvalidPhone
	}
	if strings.TrimSpace(message) == "" {
		return "", errors.New("whatsapp: message is empty")
	}

	select {
	case <-time.After(c.latency):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	id := "WA-" + ulid.Make().String()
	c.logger.InfoContext(ctx, "whatsapp message sent", "to", phone, "message_id", id)
	return id, nil
}
