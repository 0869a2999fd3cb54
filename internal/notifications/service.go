package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/domain"
)

type Inbox interface {
	ListForRecipient(ctx context.Context, recipientID string, status domain.NotificationStatus, page domain.PageRequest) ([]domain.Notification, int, error)
	MarkRead(ctx context.Context, id, recipientID string, at time.Time) (*domain.Notification, error)
}

type WhatsAppQueue interface {
	SendWhatsApp(ctx context.Context, userID, message string) (*domain.Notification, error)
}

type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service serves a caller's own notifications and lets admins message users
// directly.
type Service struct {
	inbox    Inbox
	whatsapp WhatsAppQueue
	tx       TxRunner
}

func NewService(inbox Inbox, whatsapp WhatsAppQueue, tx TxRunner) *Service {
	return &Service{inbox: inbox, whatsapp: whatsapp, tx: tx}
}

type WhatsAppInput struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// SendWhatsApp queues a direct WhatsApp message. Admins only.
func (s *Service) SendWhatsApp(ctx context.Context, caller domain.Caller, in WhatsAppInput) (*domain.Notification, error) {
	if !caller.IsAdmin() {
		return nil, apperror.Forbidden("only admins may send direct messages")
	}

	var fields []apperror.FieldError
	if strings.TrimSpace(in.UserID) == "" {
		fields = append(fields, apperror.FieldError{Field: "userId", Message: "is required"})
	}
	if strings.TrimSpace(in.Message) == "" {
		fields = append(fields, apperror.FieldError{Field: "message", Message: "is required"})
	}
	if len(fields) > 0 {
		return nil, apperror.Validation("invalid message", fields...)
	}

	var n *domain.Notification
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.whatsapp.SendWhatsApp(ctx, in.UserID, in.Message)
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, caller domain.Caller, status string, page domain.PageRequest) ([]domain.Notification, int, error) {
	filter := domain.NotificationStatus(status)
	switch filter {
	case "", domain.NotificationStatusPending, domain.NotificationStatusSent, domain.NotificationStatusFailed:
	default:
		return nil, 0, apperror.Validation("invalid notification status",
			apperror.FieldError{Field: "status", Message: "must be PENDING, SENT or FAILED"})
	}
	return s.inbox.ListForRecipient(ctx, caller.ID, filter, page)
}

// MarkRead reports not-found for notifications addressed to someone else.
func (s *Service) MarkRead(ctx context.Context, caller domain.Caller, id string) (*domain.Notification, error) {
	return s.inbox.MarkRead(ctx, id, caller.ID, time.Now().UTC())
}
