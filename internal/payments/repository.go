package payments

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/database"
	"github.com/joao-fontenele/printhub/internal/domain"
)

const paymentColumns = `id, order_id, amount, method, status, transaction_id, provider_payload, created_at, updated_at`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func scanPayment(row interface{ Scan(...any) error }) (*domain.Payment, error) {
	var (
		p       domain.Payment
		payload []byte
	)
	if err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Status, &p.TransactionID, &payload, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ProviderPayload = payload
	return &p, nil
}

// Upsert stores p as the order's PENDING payment, replacing an earlier
// attempt. A COMPLETED payment is never overwritten: the statement matches
// no row and Upsert reports a conflict.
func (r *PaymentRepository) Upsert(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	row := database.Conn(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO payments (id, order_id, amount, method, status, transaction_id, provider_payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'PENDING', $5, $6, $7, $7)
		ON CONFLICT (order_id) DO UPDATE SET
			method = EXCLUDED.method,
			status = 'PENDING',
			transaction_id = EXCLUDED.transaction_id,
			provider_payload = EXCLUDED.provider_payload,
			updated_at = EXCLUDED.updated_at
		WHERE payments.status <> 'COMPLETED'
		RETURNING `+paymentColumns,
		p.ID, p.OrderID, p.Amount, p.Method, p.TransactionID, []byte(p.ProviderPayload), p.CreatedAt)

	saved, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.Conflict("order has already been paid")
	}
	if err != nil {
		return nil, fmt.Errorf("upsert payment: %w", err)
	}
	return saved, nil
}

// LockByTransactionID loads a payment and holds its row lock until the
// surrounding transaction ends.
func (r *PaymentRepository) LockByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	row := database.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE transaction_id = $1
		FOR UPDATE
	`, transactionID)

	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("payment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("lock payment: %w", err)
	}
	return p, nil
}

// Settle moves a PENDING payment to status and records the provider's
// confirmation details under confirmationDetails in the stored payload.
func (r *PaymentRepository) Settle(ctx context.Context, id string, status domain.PaymentStatus, details json.RawMessage, at time.Time) (*domain.Payment, error) {
	if len(details) == 0 {
		details = json.RawMessage(`null`)
	}
	row := database.Conn(ctx, r.db).QueryRowContext(ctx, `
		UPDATE payments
		SET status = $2,
			provider_payload = provider_payload || jsonb_build_object('confirmationDetails', $3::jsonb),
			updated_at = $4
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+paymentColumns,
		id, status, string(details), at)

	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.Conflict("payment already settled")
	}
	if err != nil {
		return nil, fmt.Errorf("settle payment: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	row := database.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1
	`, orderID)

	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("no payment found for this order")
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}
