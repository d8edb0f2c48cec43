package service

import (
	"context"
	"time"
)

// Tipos de evento publicados hacia el mundo exterior (notificaciones,
// generación de borrador). El transporte real vive en internal/rabbit.
const (
	EventTypeOrderCreated    = "order_created"
	EventTypeTrackingUpdated = "tracking_updated"
	EventTypeOrderDelivered  = "order_delivered"
	EventTypeOrderDisputed   = "order_disputed"
	EventTypeOrderCancelled  = "order_cancelled"
	EventTypeOrderClosed     = "order_closed"
	EventTypeEscrowReleased  = "escrow_released"
	EventTypeEscrowCancelled = "escrow_cancelled"
)

// Event es el mensaje que se publica tras cada mutación confirmada.
// ID único por evento: el despacho es idempotente del lado consumidor.
type Event struct {
	ID          string    `json:"eventId"`
	Type        string    `json:"type"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber,omitempty"`
	Status      string    `json:"status,omitempty"`
	ActorID     string    `json:"actorId,omitempty"`
	Recipients  []string  `json:"recipients,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
}
