package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/domain"
)

var (
	tracer           = otel.Tracer("printhub/payments")
	confirmations, _ = otel.Meter("printhub/payments").Int64Counter("payment.confirmations",
		metric.WithDescription("Payment callbacks by outcome"))
)

// ConfirmSuccess is the callback status that completes a payment. Any other
// value fails it.
const ConfirmSuccess = "success"

type Repository interface {
	Upsert(ctx context.Context, p *domain.Payment) (*domain.Payment, error)
	LockByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error)
	Settle(ctx context.Context, id string, status domain.PaymentStatus, details json.RawMessage, at time.Time) (*domain.Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
}

type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type OrderReader interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

// OrderPayer moves an order to PAYMENT_RECEIVED inside the transaction on
// ctx and reports whether it did.
type OrderPayer interface {
	MarkPaymentReceived(ctx context.Context, orderID, paymentID string) (bool, error)
}

type Charger interface {
	Charge(ctx context.Context, method domain.PaymentMethod, req ChargeRequest) (Charge, error)
}

type Service struct {
	repo    Repository
	tx      TxRunner
	orders  OrderReader
	payer   OrderPayer
	charger Charger
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo Repository, tx TxRunner, orders OrderReader, payer OrderPayer, charger Charger, timeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		tx:      tx,
		orders:  orders,
		payer:   payer,
		charger: charger,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

type InitiateInput struct {
	OrderID     string `json:"orderId"`
	Method      string `json:"method"`
	PhoneNumber string `json:"phoneNumber"`
}

type Initiation struct {
	Payment     *domain.Payment `json:"payment"`
	RedirectURL string          `json:"redirectUrl"`
}

func (in InitiateInput) validate() (domain.PaymentMethod, error) {
	var fields []apperror.FieldError
	if strings.TrimSpace(in.OrderID) == "" {
		fields = append(fields, apperror.FieldError{Field: "orderId", Message: "is required"})
	}
	method, err := domain.ParsePaymentMethod(in.Method)
	if err != nil {
		fields = append(fields, apperror.FieldError{Field: "method", Message: "must be AIRTEL_MONEY or MOOV_MONEY"})
	}
	if strings.TrimSpace(in.PhoneNumber) == "" {
		fields = append(fields, apperror.FieldError{Field: "phoneNumber", Message: "is required"})
	}
	if len(fields) > 0 {
		return "", apperror.Validation("invalid payment request", fields...)
	}
	return method, nil
}

// Initiate asks the provider to charge the order total and records the
// attempt as PENDING. Nothing is written when the provider fails.
func (s *Service) Initiate(ctx context.Context, caller domain.Caller, in InitiateInput) (*Initiation, error) {
	ctx, span := tracer.Start(ctx, "payments.Initiate")
	defer span.End()

	method, err := in.validate()
	if err != nil {
		return nil, err
	}

	order, err := s.orders.GetByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.ClientID != caller.ID {
		return nil, apperror.Forbidden("you are not allowed to pay for this order")
	}
	if order.Status != domain.OrderStatusPendingPayment {
		return nil, apperror.InvalidOperation("order is not awaiting payment")
	}
	if order.Payment != nil && order.Payment.Status == domain.PaymentStatusCompleted {
		return nil, apperror.Conflict("order has already been paid")
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	charge, err := s.charger.Charge(chargeCtx, method, ChargeRequest{
		Amount:      order.TotalAmount,
		PhoneNumber: in.PhoneNumber,
		Reference:   order.OrderNumber,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperror.Wrap(apperror.KindUnexpected, "payment provider timed out", err)
		}
		return nil, fmt.Errorf("charge %s: %w", method, err)
	}

	now := s.now()
	payment, err := s.repo.Upsert(ctx, &domain.Payment{
		ID:              uuid.New().String(),
		OrderID:         order.ID,
		Amount:          order.TotalAmount,
		Method:          method,
		Status:          domain.PaymentStatusPending,
		TransactionID:   charge.TransactionID,
		ProviderPayload: charge.Payload,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("payment.transaction_id", payment.TransactionID))
	s.logger.InfoContext(ctx, "payment initiated",
		"order_id", order.ID, "payment_id", payment.ID, "method", method, "transaction_id", payment.TransactionID)
	return &Initiation{Payment: payment, RedirectURL: charge.RedirectURL}, nil
}

type ConfirmInput struct {
	TransactionID string          `json:"transactionId"`
	Status        string          `json:"status"`
	Details       json.RawMessage `json:"details,omitempty"`
}

// Confirm reconciles a provider callback. Callbacks for a payment that is
// already COMPLETED or FAILED return it unchanged.
func (s *Service) Confirm(ctx context.Context, in ConfirmInput) (*domain.Payment, error) {
	ctx, span := tracer.Start(ctx, "payments.Confirm")
	defer span.End()

	if strings.TrimSpace(in.TransactionID) == "" || strings.TrimSpace(in.Status) == "" {
		var fields []apperror.FieldError
		if strings.TrimSpace(in.TransactionID) == "" {
			fields = append(fields, apperror.FieldError{Field: "transactionId", Message: "is required"})
		}
		if strings.TrimSpace(in.Status) == "" {
			fields = append(fields, apperror.FieldError{Field: "status", Message: "is required"})
		}
		return nil, apperror.Validation("invalid confirmation", fields...)
	}

	target := domain.PaymentStatusFailed
	if in.Status == ConfirmSuccess {
		target = domain.PaymentStatusCompleted
	}

	var (
		result  *domain.Payment
		outcome string
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.LockByTransactionID(ctx, in.TransactionID)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			result, outcome = p, "duplicate"
			return nil
		}

		settled, err := s.repo.Settle(ctx, p.ID, target, in.Details, s.now())
		if err != nil {
			return err
		}
		result, outcome = settled, strings.ToLower(string(target))

		if target != domain.PaymentStatusCompleted {
			return nil
		}
		applied, err := s.payer.MarkPaymentReceived(ctx, settled.OrderID, settled.ID)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		if !applied {
			s.logger.WarnContext(ctx, "payment completed for an order no longer awaiting payment",
				"order_id", settled.OrderID, "payment_id", settled.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if confirmations != nil {
		confirmations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	s.logger.InfoContext(ctx, "payment callback processed",
		"payment_id", result.ID, "transaction_id", result.TransactionID, "status", result.Status, "outcome", outcome)
	return result, nil
}

// Status returns the order's payment to its owner or an admin.
func (s *Service) Status(ctx context.Context, caller domain.Caller, orderID string) (*domain.Payment, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ClientID != caller.ID && !caller.IsAdmin() {
		return nil, apperror.Forbidden("you are not allowed to view this payment")
	}
	return s.repo.GetByOrderID(ctx, orderID)
}
