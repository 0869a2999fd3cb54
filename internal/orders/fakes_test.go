package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/domain"
)

// memRepo keeps orders in memory. memTx snapshots it so a failed
// transaction leaves no trace.
type memRepo struct {
	orders        map[string]*domain.Order
	transitionErr error
}

func newMemRepo() *memRepo {
	return &memRepo{orders: map[string]*domain.Order{}}
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	c.StatusHistory = slices.Clone(o.StatusHistory)
	if o.PrinterID != nil {
		id := *o.PrinterID
		c.PrinterID = &id
	}
	return &c
}

func (m *memRepo) snapshot() map[string]*domain.Order {
	snap := make(map[string]*domain.Order, len(m.orders))
	for id, o := range m.orders {
		snap[id] = cloneOrder(o)
	}
	return snap
}

func (m *memRepo) Create(_ context.Context, order *domain.Order) error {
	for _, existing := range m.orders {
		if existing.OrderNumber == order.OrderNumber {
			return &pq.Error{Code: "23505", Constraint: "orders_order_number_key"}
		}
	}
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *memRepo) Lock(_ context.Context, id string) (*domain.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, apperror.NotFound("order not found")
	}
	return cloneOrder(o), nil
}

func (m *memRepo) Transition(_ context.Context, t Transition) error {
	if m.transitionErr != nil {
		return m.transitionErr
	}
	o, ok := m.orders[t.OrderID]
	if !ok || o.Status != t.From {
		return apperror.Conflict("order status changed concurrently")
	}
	o.Status = t.To
	o.UpdatedAt = t.At
	if t.PrinterID != nil {
		id := *t.PrinterID
		o.PrinterID = &id
	}
	o.StatusHistory = append(o.StatusHistory, domain.StatusHistoryEntry{
		Status:    t.To,
		Comment:   t.Comment,
		CreatedBy: t.Actor,
		CreatedAt: t.At,
	})
	return nil
}

// GetByID returns history newest first, like the Postgres repository.
func (m *memRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	o, err := m.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	slices.Reverse(o.StatusHistory)
	return o, nil
}

func (m *memRepo) ListByClient(_ context.Context, clientID string, status domain.OrderStatus, page domain.PageRequest) ([]domain.Order, int, error) {
	return m.list(func(o *domain.Order) bool { return o.ClientID == clientID }, status, page)
}

func (m *memRepo) ListByPrinter(_ context.Context, printerID string, status domain.OrderStatus, page domain.PageRequest) ([]domain.Order, int, error) {
	return m.list(func(o *domain.Order) bool { return o.IsAssignedTo(printerID) }, status, page)
}

func (m *memRepo) list(owned func(*domain.Order) bool, status domain.OrderStatus, page domain.PageRequest) ([]domain.Order, int, error) {
	var matched []domain.Order
	for _, o := range m.orders {
		if owned(o) && (status == "" || o.Status == status) {
			matched = append(matched, *cloneOrder(o))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	start := min(page.Offset(), total)
	end := min(start+page.Limit, total)
	return matched[start:end], total, nil
}

type txKey struct{}

type memTx struct {
	repo    *memRepo
	commits int
}

func (t *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	snap := t.repo.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		t.repo.orders = snap
		return err
	}
	t.commits++
	return nil
}

type memCatalog map[string]domain.Artwork

func (c memCatalog) Artworks(_ context.Context, ids []string) (map[string]domain.Artwork, error) {
	out := map[string]domain.Artwork{}
	for _, id := range ids {
		if a, ok := c[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

type memUsers map[string]domain.User

func (u memUsers) GetUser(_ context.Context, id string) (*domain.User, error) {
	user, ok := u[id]
	if !ok {
		return nil, apperror.NotFound("user not found")
	}
	return &user, nil
}

type sentNotification struct {
	recipient string
	content   string
	meta      domain.NotificationMetadata
}

type recordingNotifier struct {
	sent []sentNotification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, recipientID, content string, meta domain.NotificationMetadata) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentNotification{recipient: recipientID, content: content, meta: meta})
	return nil
}

var (
	admin    = domain.Caller{ID: "u-admin", Role: domain.RoleAdmin}
	client   = domain.Caller{ID: "u-client", Role: domain.RoleClient}
	other    = domain.Caller{ID: "u-other", Role: domain.RoleClient}
	printer  = domain.Caller{ID: "u-printer", Role: domain.RolePrinter}
	printer2 = domain.Caller{ID: "u-printer-2", Role: domain.RolePrinter}
)

type fixture struct {
	repo     *memRepo
	tx       *memTx
	notifier *recordingNotifier
	service  *Service
}

func newFixture() *fixture {
	repo := newMemRepo()
	tx := &memTx{repo: repo}
	notifier := &recordingNotifier{}
	catalog := memCatalog{
		"art-portrait": {ID: "art-portrait", Title: "Portrait", Price: decimal.NewFromInt(1000)},
		"art-canvas":   {ID: "art-canvas", Title: "Canvas", Price: decimal.NewFromInt(1500)},
	}
	users := memUsers{
		"u-admin":     {ID: "u-admin", FirstName: "Ada", Role: domain.RoleAdmin},
		"u-client":    {ID: "u-client", FirstName: "Chloe", Role: domain.RoleClient},
		"u-printer":   {ID: "u-printer", FirstName: "Pierre", LastName: "Printer", Role: domain.RolePrinter},
		"u-printer-2": {ID: "u-printer-2", FirstName: "Paula", Role: domain.RolePrinter},
	}
	service := NewService(repo, tx, catalog, users, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	service.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return &fixture{repo: repo, tx: tx, notifier: notifier, service: service}
}

func scenarioInput() CreateInput {
	return CreateInput{
		Items: []ItemInput{
			{ArtworkID: "art-portrait", Quantity: 1},
			{ArtworkID: "art-canvas", Quantity: 2},
		},
		ShippingDetails: domain.ShippingDetails{
			Address:      "12 Rue du Port",
			City:         "Libreville",
			Country:      "Gabon",
			ContactPhone: "+24106000001",
		},
	}
}

func (f *fixture) createOrder() *domain.Order {
	order, err := f.service.Create(context.Background(), client, scenarioInput())
	if err != nil {
		panic(err)
	}
	return order
}

// seed stores an order directly in status with a consistent history.
func (f *fixture) seed(status domain.OrderStatus, printerID string) *domain.Order {
	order := f.createOrder()
	stored := f.repo.orders[order.ID]
	path := domain.OrderStatuses()[1 : status.Rank()+1]
	if status == domain.OrderStatusCancelled {
		path = []domain.OrderStatus{status}
	}
	for _, s := range path {
		stored.Status = s
		stored.StatusHistory = append(stored.StatusHistory, domain.StatusHistoryEntry{Status: s, CreatedBy: "seed"})
	}
	if printerID != "" {
		stored.PrinterID = &printerID
	}
	f.notifier.sent = nil
	return cloneOrder(stored)
}

func (f *fixture) stored(id string) *domain.Order {
	return f.repo.orders[id]
}

func kindOf(err error) apperror.Kind {
	return apperror.KindOf(err)
}

var errBoom = errors.New("boom")
