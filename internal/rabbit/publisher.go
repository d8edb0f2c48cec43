// publisher.go
package rabbit

import (
	"context"
	"encoding/json"

	"github.com/rabbitmq/amqp091-go"

	"freight-settlement-service/internal/service"
)

const ExchangeFreightEvents = "freight_events"

// Publisher empuja los eventos del servicio al exchange fanout. Los
// consumidores externos (email/SMS) deduplican por MessageId.
type Publisher struct {
	ch *amqp091.Channel
}

func NewPublisher(ch *amqp091.Channel) (*Publisher, error) {
	err := ch.ExchangeDeclare(
		ExchangeFreightEvents,
		"fanout",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, evt service.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	return p.ch.PublishWithContext(ctx,
		ExchangeFreightEvents,
		"", // fanout ignora routing key
		false,
		false,
		amqp091.Publishing{
			ContentType: "application/json",
			MessageId:   evt.ID,
			Timestamp:   evt.OccurredAt,
			Body:        body,
		},
	)
}
