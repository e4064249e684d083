package main

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/nft-ticket-protocol/internal/adapters/rabbit"
	"github.com/robertarktes/nft-ticket-protocol/internal/observability"
	"github.com/robertarktes/nft-ticket-protocol/internal/settlement"
)

// publishDirect forwards in-memory ledger events straight to RabbitMQ. There is no outbox in
// that mode, so a failed publish is logged and lost.
func publishDirect(ctx context.Context, pub *rabbit.Publisher, logger observability.Logger) func(settlement.Event) {
	if pub == nil {
		return nil
	}
	return func(e settlement.Event) {
		body, err := json.Marshal(e)
		if err != nil {
			logger.WithError(err).Error("failed to encode ticket event")
			return
		}
		msg := amqp.Publishing{
			MessageId:   e.TxHash,
			ContentType: "application/json",
			Type:        e.Type,
			Timestamp:   e.CommittedAt,
			Body:        body,
		}
		if err := pub.Publish(context.WithoutCancel(ctx), e.Type, msg); err != nil {
			observability.RabbitPublishFailures.Inc()
			logger.WithError(err).WithField("tx_hash", e.TxHash).Warn("publish failed")
		}
	}
}
