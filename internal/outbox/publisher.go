// Package outbox relays committed ticket events from the ledger's outbox table to RabbitMQ.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/nft-ticket-protocol/internal/adapters/crdb"
	"github.com/robertarktes/nft-ticket-protocol/internal/observability"
)

const batchSize = 50

type Store interface {
	GetUnpublishedOutbox(ctx context.Context, limit int) ([]crdb.OutboxRecord, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
}

type Sink interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Publisher struct {
	store    Store
	sink     Sink
	interval time.Duration
	logger   observability.Logger
	now      func() time.Time
}

func NewPublisher(store Store, sink Sink, interval time.Duration, logger observability.Logger) *Publisher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Publisher{store: store, sink: sink, interval: interval, logger: logger, now: time.Now}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Flush(ctx); err != nil && ctx.Err() == nil {
				p.logger.WithError(err).Error("outbox flush failed")
			}
		}
	}
}

// Flush publishes one batch in creation order and stops at the first failure, so events for
// the same ticket never overtake each other.
func (p *Publisher) Flush(ctx context.Context) (int, error) {
	records, err := p.store.GetUnpublishedOutbox(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) > 0 {
		observability.OutboxLag.Set(p.now().Sub(records[0].CreatedAt).Seconds())
	} else {
		observability.OutboxLag.Set(0)
	}

	published := 0
	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Type:        rec.EventType,
			Timestamp:   rec.CreatedAt,
			Body:        rec.Payload,
		}
		if err := p.sink.Publish(ctx, rec.EventType, msg); err != nil {
			observability.RabbitPublishFailures.Inc()
			p.logger.WithError(err).WithField("outbox_id", rec.ID.String()).Warn("publish failed")
			return published, nil
		}
		if err := p.store.MarkPublished(ctx, rec.ID, p.now()); err != nil {
			return published, err
		}
		published++
	}
	if published > 0 {
		p.logger.WithField("count", published).Debug("outbox records published")
	}
	return published, nil
}
