// Package audit consumes committed ticket events and records them in the audit log.
package audit

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/nft-ticket-protocol/internal/observability"
	"github.com/robertarktes/nft-ticket-protocol/internal/settlement"
)

type Sink interface {
	LogTransition(ctx context.Context, e settlement.Event) error
}

const maxRetries = 3

type Worker struct {
	sink    Sink
	logger  observability.Logger
	backoff time.Duration
}

func NewWorker(sink Sink, logger observability.Logger) *Worker {
	return &Worker{sink: sink, logger: logger, backoff: 200 * time.Millisecond}
}

// Run handles deliveries until ctx is done or the channel closes.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				w.logger.Warn("delivery channel closed")
				return
			}
			w.Handle(ctx, d)
		}
	}
}

// Handle acks a recorded event, drops a malformed one and requeues on sink errors.
func (w *Worker) Handle(ctx context.Context, d amqp.Delivery) {
	var e settlement.Event
	if err := json.Unmarshal(d.Body, &e); err != nil || e.TxHash == "" {
		w.logger.WithField("message_id", d.MessageId).Error("dropping malformed ticket event")
		_ = d.Nack(false, false)
		return
	}
	log := w.logger.WithFields(map[string]interface{}{
		"tx_hash": e.TxHash,
		"type":    e.Type,
		"asset":   e.Asset.String(),
	})
	if err := w.logWithRetry(ctx, e); err != nil {
		log.WithError(err).Warn("audit write failed, requeueing")
		_ = d.Nack(false, true)
		return
	}
	log.Debug("ticket event audited")
	_ = d.Ack(false)
}

func (w *Worker) logWithRetry(ctx context.Context, e settlement.Event) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = w.sink.LogTransition(ctx, e); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.backoff << i):
		}
	}
	return err
}
