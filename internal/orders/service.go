package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/domain"
)

var (
	tracer         = otel.Tracer("printhub/orders")
	transitions, _ = otel.Meter("printhub/orders").Int64Counter("order.status.transitions",
		metric.WithDescription("Applied order status transitions by target status"))
)

const orderNumberAttempts = 3

type Repository interface {
	Create(ctx context.Context, order *domain.Order) error
	Lock(ctx context.Context, id string) (*domain.Order, error)
	Transition(ctx context.Context, t Transition) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListByClient(ctx context.Context, clientID string, status domain.OrderStatus, page domain.PageRequest) ([]domain.Order, int, error)
	ListByPrinter(ctx context.Context, printerID string, status domain.OrderStatus, page domain.PageRequest) ([]domain.Order, int, error)
}

type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Catalog interface {
	Artworks(ctx context.Context, ids []string) (map[string]domain.Artwork, error)
}

type UserLookup interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// Notifier records a notification in the transaction on ctx.
type Notifier interface {
	Notify(ctx context.Context, recipientID, content string, meta domain.NotificationMetadata) error
}

// Service is the lifecycle engine: every status change goes through it.
type Service struct {
	repo     Repository
	tx       TxRunner
	catalog  Catalog
	users    UserLookup
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	number   func(time.Time) string
}

func NewService(repo Repository, tx TxRunner, catalog Catalog, users UserLookup, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		catalog:  catalog,
		users:    users,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		number:   generateOrderNumber,
	}
}

// generateOrderNumber builds AD-<last 6 digits of unix millis>-<4 random digits>.
func generateOrderNumber(now time.Time) string {
	return fmt.Sprintf("AD-%06d-%04d", now.UnixMilli()%1_000_000, rand.IntN(10_000))
}

type ItemInput struct {
	ArtworkID      string          `json:"artworkId"`
	Quantity       int             `json:"quantity"`
	Customizations json.RawMessage `json:"customizations,omitempty"`
}

type CreateInput struct {
	Items           []ItemInput            `json:"items"`
	ShippingDetails domain.ShippingDetails `json:"shippingDetails"`
}

func (in CreateInput) validate() error {
	var fields []apperror.FieldError
	if len(in.Items) == 0 {
		fields = append(fields, apperror.FieldError{Field: "items", Message: "at least one item is required"})
	}
	for i, item := range in.Items {
		if strings.TrimSpace(item.ArtworkID) == "" {
			fields = append(fields, apperror.FieldError{Field: fmt.Sprintf("items[%d].artworkId", i), Message: "is required"})
		}
		if item.Quantity < 1 {
			fields = append(fields, apperror.FieldError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "must be at least 1"})
		}
		if len(item.Customizations) > 0 && !isJSONObject(item.Customizations) {
			fields = append(fields, apperror.FieldError{Field: fmt.Sprintf("items[%d].customizations", i), Message: "must be an object"})
		}
	}

	s := in.ShippingDetails
	for _, f := range []struct{ name, value string }{
		{"shippingDetails.address", s.Address},
		{"shippingDetails.city", s.City},
		{"shippingDetails.country", s.Country},
		{"shippingDetails.contactPhone", s.ContactPhone},
	} {
		if strings.TrimSpace(f.value) == "" {
			fields = append(fields, apperror.FieldError{Field: f.name, Message: "is required"})
		}
	}

	if len(fields) > 0 {
		return apperror.Validation("invalid order", fields...)
	}
	return nil
}

func isJSONObject(raw json.RawMessage) bool {
	var obj map[string]any
	return json.Unmarshal(raw, &obj) == nil && obj != nil
}

// Create places an order for the caller at current catalog prices.
func (s *Service) Create(ctx context.Context, caller domain.Caller, in CreateInput) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.Create")
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(in.Items))
	for _, item := range in.Items {
		ids = append(ids, item.ArtworkID)
	}
	artworks, err := s.catalog.Artworks(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, 0, len(in.Items))
	for _, item := range in.Items {
		artwork, ok := artworks[item.ArtworkID]
		if !ok {
			return nil, apperror.NotFound("artwork not found: " + item.ArtworkID)
		}
		customizations := item.Customizations
		if len(customizations) == 0 {
			customizations = json.RawMessage(`{}`)
		}
		items = append(items, domain.OrderItem{
			ArtworkID:      item.ArtworkID,
			Quantity:       item.Quantity,
			UnitPrice:      artwork.Price,
			Customizations: customizations,
		})
	}

	now := s.now()
	order := &domain.Order{
		ID:              uuid.New().String(),
		ClientID:        caller.ID,
		Items:           items,
		ShippingDetails: in.ShippingDetails,
		TotalAmount:     domain.ComputeTotal(items),
		Status:          domain.OrderStatusPendingPayment,
		StatusHistory: []domain.StatusHistoryEntry{{
			Status:    domain.OrderStatusPendingPayment,
			Comment:   "Order created, awaiting payment",
			CreatedBy: caller.ID,
			CreatedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for attempt := 1; ; attempt++ {
		order.OrderNumber = s.number(now)
		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.repo.Create(ctx, order); err != nil {
				return err
			}
			return s.notifier.Notify(ctx, order.ClientID,
				fmt.Sprintf("Your order %s has been created and is awaiting payment.", order.OrderNumber),
				metadataFor(order))
		})
		if err == nil || !apperror.IsUniqueViolation(err) || attempt == orderNumberAttempts {
			break
		}
		s.logger.WarnContext(ctx, "order number collision, retrying", "order_number", order.OrderNumber, "attempt", attempt)
	}
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	s.logger.InfoContext(ctx, "order created", "order_id", order.ID, "order_number", order.OrderNumber, "client_id", caller.ID)
	return order, nil
}

func (s *Service) Get(ctx context.Context, caller domain.Caller, id string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canView(order, caller); err != nil {
		return nil, err
	}
	return order, nil
}

func parseStatusFilter(status string) (domain.OrderStatus, error) {
	if status == "" {
		return "", nil
	}
	parsed, err := domain.ParseOrderStatus(status)
	if err != nil {
		return "", apperror.Validation("invalid status filter",
			apperror.FieldError{Field: "status", Message: err.Error()})
	}
	return parsed, nil
}

// List returns the orders the caller placed.
func (s *Service) List(ctx context.Context, caller domain.Caller, status string, page domain.PageRequest) ([]domain.Order, int, error) {
	filter, err := parseStatusFilter(status)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.ListByClient(ctx, caller.ID, filter, page)
}

// ListAssigned returns the orders assigned to the calling printer.
func (s *Service) ListAssigned(ctx context.Context, caller domain.Caller, status string, page domain.PageRequest) ([]domain.Order, int, error) {
	if !caller.IsPrinter() {
		return nil, 0, apperror.Forbidden("only printers have assigned orders")
	}
	filter, err := parseStatusFilter(status)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPrinter(ctx, caller.ID, filter, page)
}

func (s *Service) Cancel(ctx context.Context, caller domain.Caller, id string) (*domain.Order, error) {
	err := s.transition(ctx, id, func(order *domain.Order) (*change, error) {
		if err := checkCancel(order, caller); err != nil {
			return nil, err
		}
		comment := "Order cancelled by the client"
		if order.ClientID != caller.ID {
			comment = "Order cancelled by an administrator"
		}
		return &change{
			to:        domain.OrderStatusCancelled,
			actor:     caller.ID,
			comment:   comment,
			recipient: order.ClientID,
			message:   fmt.Sprintf("Your order %s has been cancelled.", order.OrderNumber),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// UpdateStatus moves an order forward on behalf of an admin or its assigned
// printer.
func (s *Service) UpdateStatus(ctx context.Context, caller domain.Caller, id, status, comment string) (*domain.Order, error) {
	target, err := parseTarget(status)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !caller.IsPrinter() {
		return nil, apperror.Forbidden("only admins and the assigned printer may update order status")
	}

	err = s.transition(ctx, id, func(order *domain.Order) (*change, error) {
		if err := checkStatusUpdate(order, caller, target); err != nil {
			return nil, err
		}
		if strings.TrimSpace(comment) == "" {
			comment = "Status updated to " + string(target)
		}
		return &change{
			to:        target,
			actor:     caller.ID,
			comment:   comment,
			recipient: order.ClientID,
			message:   fmt.Sprintf("The status of your order %s was updated to %s.", order.OrderNumber, target),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Assign hands a paid order to a printer and moves it to PROCESSING.
func (s *Service) Assign(ctx context.Context, caller domain.Caller, id, printerID string) (*domain.Order, error) {
	if !caller.IsAdmin() {
		return nil, apperror.Forbidden("only admins may assign orders")
	}
	if strings.TrimSpace(printerID) == "" {
		return nil, apperror.Validation("printer id is required",
			apperror.FieldError{Field: "printerId", Message: "is required"})
	}

	printer, err := s.users.GetUser(ctx, printerID)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return nil, apperror.NotFound("printer not found")
		}
		return nil, err
	}
	if printer.Role != domain.RolePrinter {
		return nil, apperror.NotFound("printer not found")
	}

	err = s.transition(ctx, id, func(order *domain.Order) (*change, error) {
		if err := checkAssign(order); err != nil {
			return nil, err
		}
		return &change{
			to:        domain.OrderStatusProcessing,
			printerID: &printer.ID,
			actor:     caller.ID,
			comment:   "Order assigned to printer " + printer.FullName(),
			recipient: printer.ID,
			message:   fmt.Sprintf("Order %s has been assigned to you.", order.OrderNumber),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// MarkPaymentReceived moves a PENDING_PAYMENT order to PAYMENT_RECEIVED. It
// must run inside the confirming transaction. It reports false without error
// when the order has already left PENDING_PAYMENT.
func (s *Service) MarkPaymentReceived(ctx context.Context, orderID, paymentID string) (bool, error) {
	var applied bool
	err := s.transition(ctx, orderID, func(order *domain.Order) (*change, error) {
		if order.Status != domain.OrderStatusPendingPayment {
			s.logger.InfoContext(ctx, "order already past payment, skipping transition",
				"order_id", order.ID, "status", order.Status)
			return nil, nil
		}
		applied = true
		return &change{
			to:        domain.OrderStatusPaymentReceived,
			actor:     domain.SystemActorID,
			comment:   "Payment received and confirmed",
			recipient: order.ClientID,
			message:   fmt.Sprintf("Payment for your order %s has been received.", order.OrderNumber),
			paymentID: paymentID,
		}, nil
	})
	return applied, err
}

// change is what a rule decided to do with a locked order.
type change struct {
	to        domain.OrderStatus
	printerID *string
	actor     string
	comment   string
	recipient string
	message   string
	paymentID string
}

// transition locks the order, asks decide what to do, and applies the status
// update, history entry and notification in one transaction. A nil change
// leaves the order untouched.
func (s *Service) transition(ctx context.Context, id string, decide func(*domain.Order) (*change, error)) error {
	ctx, span := tracer.Start(ctx, "orders.transition", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	var (
		from domain.OrderStatus
		to   *change
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		order, err := s.repo.Lock(ctx, id)
		if err != nil {
			return err
		}

		c, err := decide(order)
		if err != nil || c == nil {
			return err
		}

		if err := s.repo.Transition(ctx, Transition{
			OrderID:   order.ID,
			From:      order.Status,
			To:        c.to,
			PrinterID: c.printerID,
			Actor:     c.actor,
			Comment:   c.comment,
			At:        s.now(),
		}); err != nil {
			return err
		}

		meta := metadataFor(order)
		meta.Status = c.to
		meta.PaymentID = c.paymentID
		if err := s.notifier.Notify(ctx, c.recipient, c.message, meta); err != nil {
			return err
		}

		from, to = order.Status, c
		return nil
	})
	if err != nil {
		return err
	}
	if to == nil {
		return nil
	}

	if transitions != nil {
		transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(to.to))))
	}
	s.logger.InfoContext(ctx, "order status changed", "order_id", id, "from", from, "to", to.to, "actor", to.actor)
	return nil
}

func metadataFor(order *domain.Order) domain.NotificationMetadata {
	return domain.NotificationMetadata{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
	}
}
