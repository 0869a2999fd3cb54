package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/database"
	"github.com/joao-fontenele/printhub/internal/domain"
)

// Transition is one applied status change. PrinterID, when set, also
// assigns the order.
type Transition struct {
	OrderID   string
	From      domain.OrderStatus
	To        domain.OrderStatus
	PrinterID *string
	Actor     string
	Comment   string
	At        time.Time
}

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order with its items, shipping details and status
// history. Run it inside a transaction.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	q := database.Conn(ctx, r.db)

	_, err := q.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, client_id, total_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, order.ID, order.OrderNumber, order.ClientID, order.TotalAmount, order.Status, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.ID = uuid.New().String()
		_, err = q.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, position, artwork_id, quantity, unit_price, customizations)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, item.ID, order.ID, i, item.ArtworkID, item.Quantity, item.UnitPrice, []byte(item.Customizations))
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	s := order.ShippingDetails
	_, err = q.ExecContext(ctx, `
		INSERT INTO shipping_details (order_id, address, city, country, contact_phone, postal_code, instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, order.ID, s.Address, s.City, s.Country, s.ContactPhone, s.PostalCode, s.Instructions)
	if err != nil {
		return fmt.Errorf("insert shipping details: %w", err)
	}

	for i := range order.StatusHistory {
		if err := insertHistory(ctx, q, order.ID, &order.StatusHistory[i]); err != nil {
			return err
		}
	}

	return nil
}

// Lock loads the order row without its children and holds a row lock until
// the surrounding transaction ends.
func (r *OrderRepository) Lock(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(database.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, order_number, client_id, printer_id, total_amount, status, created_at, updated_at
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("order not found")
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return order, nil
}

// Transition applies t only if the order is still in t.From, then appends
// the history entry. A concurrent change surfaces as a conflict.
func (r *OrderRepository) Transition(ctx context.Context, t Transition) error {
	q := database.Conn(ctx, r.db)

	result, err := q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, printer_id = COALESCE($2, printer_id), updated_at = $3
		WHERE id = $4 AND status = $5
	`, t.To, t.PrinterID, t.At, t.OrderID, t.From)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return apperror.Conflict("order status changed concurrently")
	}

	return insertHistory(ctx, q, t.OrderID, &domain.StatusHistoryEntry{
		Status:    t.To,
		Comment:   t.Comment,
		CreatedBy: t.Actor,
		CreatedAt: t.At,
	})
}

func insertHistory(ctx context.Context, q database.Querier, orderID string, entry *domain.StatusHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO order_status_history (id, order_id, status, comment, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, orderID, entry.Status, entry.Comment, entry.CreatedBy, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

// GetByID loads the full aggregate: items, shipping details, payment and the
// status history newest first.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	q := database.Conn(ctx, r.db)

	order, err := scanOrder(q.QueryRowContext(ctx, `
		SELECT id, order_number, client_id, printer_id, total_amount, status, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("order not found")
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	byID := map[string]*domain.Order{order.ID: order}
	if err := r.loadItems(ctx, q, byID); err != nil {
		return nil, err
	}

	s := &order.ShippingDetails
	err = q.QueryRowContext(ctx, `
		SELECT address, city, country, contact_phone, postal_code, instructions
		FROM shipping_details
		WHERE order_id = $1
	`, id).Scan(&s.Address, &s.City, &s.Country, &s.ContactPhone, &s.PostalCode, &s.Instructions)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get shipping details: %w", err)
	}

	if order.StatusHistory, err = r.history(ctx, q, id); err != nil {
		return nil, err
	}

	if order.Payment, err = r.payment(ctx, q, id); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) history(ctx context.Context, q database.Querier, orderID string) ([]domain.StatusHistoryEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, status, comment, created_by, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY seq DESC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get status history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []domain.StatusHistoryEntry
	for rows.Next() {
		var e domain.StatusHistoryEntry
		if err := rows.Scan(&e.ID, &e.Status, &e.Comment, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *OrderRepository) payment(ctx context.Context, q database.Querier, orderID string) (*domain.Payment, error) {
	var (
		p       domain.Payment
		payload []byte
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, order_id, amount, method, status, transaction_id, provider_payload, created_at, updated_at
		FROM payments
		WHERE order_id = $1
	`, orderID).Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Status, &p.TransactionID, &payload, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order payment: %w", err)
	}
	p.ProviderPayload = payload
	return &p, nil
}

// ListByClient returns one page of the client's orders, newest first, with
// their items, shipping details and payment, and the total number of
// matching orders.
func (r *OrderRepository) ListByClient(ctx context.Context, clientID string, status domain.OrderStatus, page domain.PageRequest) ([]domain.Order, int, error) {
	return r.list(ctx, "client_id", clientID, status, page)
}

// ListByPrinter is ListByClient for the orders assigned to printerID.
func (r *OrderRepository) ListByPrinter(ctx context.Context, printerID string, status domain.OrderStatus, page domain.PageRequest) ([]domain.Order, int, error) {
	return r.list(ctx, "printer_id", printerID, status, page)
}

// list pages over orders whose owner column equals ownerID. column is never
// caller input.
func (r *OrderRepository) list(ctx context.Context, column, ownerID string, status domain.OrderStatus, page domain.PageRequest) ([]domain.Order, int, error) {
	q := database.Conn(ctx, r.db)

	var total int
	if err := q.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM orders
		WHERE %s = $1 AND ($2 = '' OR status = $2)
	`, column), ownerID, string(status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, order_number, client_id, printer_id, total_amount, status, created_at, updated_at
		FROM orders
		WHERE %s = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`, column), ownerID, string(status), page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var ids []string
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = order
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, load := range []func(context.Context, database.Querier, map[string]*domain.Order) error{
		r.loadItems, r.loadShipping, r.loadPayments,
	} {
		if err := load(ctx, q, orderMap); err != nil {
			return nil, 0, err
		}
	}

	orders := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, *orderMap[id])
	}
	return orders, total, nil
}

func orderIDs(orderMap map[string]*domain.Order) []string {
	ids := make([]string, 0, len(orderMap))
	for id := range orderMap {
		ids = append(ids, id)
	}
	return ids
}

func (r *OrderRepository) loadShipping(ctx context.Context, q database.Querier, orderMap map[string]*domain.Order) error {
	if len(orderMap) == 0 {
		return nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT order_id, address, city, country, contact_phone, postal_code, instructions
		FROM shipping_details
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs(orderMap)))
	if err != nil {
		return fmt.Errorf("list shipping details: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			orderID string
			s       domain.ShippingDetails
		)
		if err := rows.Scan(&orderID, &s.Address, &s.City, &s.Country, &s.ContactPhone, &s.PostalCode, &s.Instructions); err != nil {
			return err
		}
		orderMap[orderID].ShippingDetails = s
	}
	return rows.Err()
}

func (r *OrderRepository) loadPayments(ctx context.Context, q database.Querier, orderMap map[string]*domain.Order) error {
	if len(orderMap) == 0 {
		return nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, amount, method, status, transaction_id, provider_payload, created_at, updated_at
		FROM payments
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs(orderMap)))
	if err != nil {
		return fmt.Errorf("list order payments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			p       domain.Payment
			payload []byte
		)
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Status, &p.TransactionID, &payload, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return err
		}
		p.ProviderPayload = payload
		orderMap[p.OrderID].Payment = &p
	}
	return rows.Err()
}

func (r *OrderRepository) loadItems(ctx context.Context, q database.Querier, orderMap map[string]*domain.Order) error {
	if len(orderMap) == 0 {
		return nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT order_id, id, artwork_id, quantity, unit_price, customizations
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, pq.Array(orderIDs(orderMap)))
	if err != nil {
		return fmt.Errorf("list order items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			orderID        string
			item           domain.OrderItem
			customizations []byte
		)
		if err := rows.Scan(&orderID, &item.ID, &item.ArtworkID, &item.Quantity, &item.UnitPrice, &customizations); err != nil {
			return err
		}
		item.Customizations = customizations
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(s rowScanner) (*domain.Order, error) {
	var (
		order     domain.Order
		printerID sql.NullString
	)
	if err := s.Scan(&order.ID, &order.OrderNumber, &order.ClientID, &printerID, &order.TotalAmount,
		&order.Status, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return nil, err
	}
	if printerID.Valid {
		order.PrinterID = &printerID.String
	}
	return &order, nil
}
