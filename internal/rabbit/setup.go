// setup.go
package rabbit

import (
	"go.uber.org/zap"

	"freight-settlement-service/internal/service"

	"github.com/rabbitmq/amqp091-go"
)

func SetupConsumers(ch *amqp091.Channel, svc *service.OrderService, logger *zap.Logger) {
	consumer := NewClosureDraftConsumer(svc, logger)

	// 1. Declarar la queue propia del worker
	q, err := ch.QueueDeclare(
		"freight_settlement_closure_drafts",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		logger.Error("error declarando queue", zap.Error(err))
		return
	}

	// 2. Bindear al exchange fanout de eventos
	err = ch.QueueBind(
		q.Name,
		"", // fanout ignora routing key
		ExchangeFreightEvents,
		false,
		nil,
	)
	if err != nil {
		logger.Error("error binding exchange", zap.Error(err))
		return
	}

	// 3. Consumir
	msgs, err := ch.Consume(
		q.Name,
		"",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		logger.Error("error al consumir queue", zap.Error(err))
		return
	}

	go func() {
		for m := range msgs {
			consumer.Handle(m.Body)
		}
	}()

	logger.Info("suscrito al exchange de eventos de frete",
		zap.String("exchange", ExchangeFreightEvents),
		zap.String("queue", q.Name))
}
