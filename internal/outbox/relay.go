package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var relayed, _ = otel.Meter("printhub/outbox").Int64Counter("outbox.relayed",
	metric.WithDescription("Outbox records published to the broker"))

type Publisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

type pendingStore interface {
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, ids []int64) error
}

type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Relay polls the outbox and publishes pending records in id order. A record
// is marked sent only after the broker accepted it, so delivery is at least
// once.
type Relay struct {
	store     pendingStore
	tx        txRunner
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewRelay(store pendingStore, tx txRunner, publisher Publisher, interval time.Duration, batchSize int, logger *slog.Logger) *Relay {
	return &Relay{
		store:     store,
		tx:        tx,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		for {
			n, err := r.RelayOnce(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
				}
				break
			}
			if n < r.batchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one batch and returns how many records were sent.
// Publishing stops at the first failure so per-key order is preserved.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	var sent int
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		records, err := r.store.FetchPending(ctx, r.batchSize)
		if err != nil {
			return err
		}

		ids := make([]int64, 0, len(records))
		var publishErr error
		for _, rec := range records {
			if publishErr = r.publisher.Publish(ctx, rec.Topic, rec.Key, json.RawMessage(rec.Payload)); publishErr != nil {
				r.logger.WarnContext(ctx, "failed to publish outbox record",
					"error", publishErr, "outbox_id", rec.ID, "topic", rec.Topic)
				break
			}
			ids = append(ids, rec.ID)
		}

		if err := r.store.MarkSent(ctx, ids); err != nil {
			return err
		}
		sent = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if sent > 0 && relayed != nil {
		relayed.Add(ctx, int64(sent))
	}
	return sent, nil
}
