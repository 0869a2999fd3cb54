// Package outbox records deferred messages in the same transaction as the
// state change they describe and relays them to Kafka after commit.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/joao-fontenele/printhub/internal/database"
)

type Record struct {
	ID        int64
	Topic     string
	Key       string
	Payload   json.RawMessage
	CreatedAt time.Time
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Enqueue writes through the transaction on ctx, so the record commits or
// rolls back with the caller's work.
func (s *Store) Enqueue(ctx context.Context, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO outbox (topic, key, payload)
		VALUES ($1, $2, $3)
	`, topic, key, data)
	if err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}
	return nil
}

// FetchPending locks up to limit unsent records. Concurrent relays skip rows
// another relay holds. Call it inside a transaction.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	rows, err := database.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT id, topic, key, payload, created_at
		FROM outbox
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending outbox: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE outbox SET sent_at = NOW()
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}
