package rabbit

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange carries every committed ticket event, routed by event type (ticket.minted,
// ticket.buy_from_resale, ...).
const Exchange = "ticket.events"

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := declareExchange(ch); err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

func declareExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil)
}

func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	if msg.DeliveryMode == 0 {
		msg.DeliveryMode = amqp.Persistent
	}
	return p.ch.PublishWithContext(ctx, Exchange, key, false, false, msg)
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
