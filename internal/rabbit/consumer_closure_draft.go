package rabbit

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"freight-settlement-service/internal/service"
)

// ClosureDraftConsumer genera el borrador de cierre cuando un pedido llega a
// delivered. Corre fuera del request que registró la entrega: si falla, la
// transición ya quedó confirmada y el evento se puede reprocesar.
type ClosureDraftConsumer struct {
	Service *service.OrderService
	Logger  *zap.Logger
}

func NewClosureDraftConsumer(s *service.OrderService, logger *zap.Logger) *ClosureDraftConsumer {
	return &ClosureDraftConsumer{Service: s, Logger: logger}
}

func (c *ClosureDraftConsumer) Handle(msg []byte) error {
	var evt service.Event
	if err := json.Unmarshal(msg, &evt); err != nil {
		c.Logger.Error("mensaje de evento ilegible", zap.Error(err))
		return err
	}

	// Este worker solo reacciona a entregas; el resto del tráfico del
	// exchange es para los notificadores externos.
	if evt.Type != service.EventTypeOrderDelivered {
		return nil
	}

	// EnsureClosureDraft es idempotente: reentregas del mismo eventId no
	// regeneran nada.
	if err := c.Service.EnsureClosureDraft(context.Background(), evt.OrderID); err != nil {
		c.Logger.Error("no se pudo generar el borrador de cierre",
			zap.String("orderId", evt.OrderID),
			zap.String("eventId", evt.ID),
			zap.Error(err))
		return err
	}

	c.Logger.Info("borrador de cierre generado",
		zap.String("orderId", evt.OrderID))
	return nil
}
