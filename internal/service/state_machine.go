package service

import (
	"fmt"
	"time"

	"freight-settlement-service/internal/model"
)

// allowedTransitions define el grafo de estados del pedido.
// cancelled es alcanzable desde cualquier estado no final;
// disputed solo desde in_transit o delivered.
var allowedTransitions = map[model.Status][]model.Status{
	model.StatusPending:   {model.StatusAccepted, model.StatusCancelled},
	model.StatusAccepted:  {model.StatusPickedUp, model.StatusCancelled},
	model.StatusPickedUp:  {model.StatusInTransit, model.StatusCancelled},
	model.StatusInTransit: {model.StatusDelayed, model.StatusDelivered, model.StatusDisputed, model.StatusCancelled},
	model.StatusDelayed:   {model.StatusInTransit, model.StatusDelivered, model.StatusCancelled},
	model.StatusDelivered: {model.StatusDisputed, model.StatusClosed, model.StatusCancelled},
	model.StatusDisputed:  {model.StatusClosed, model.StatusCancelled},
	// Finales: no fluyen más
	model.StatusClosed:    {},
	model.StatusCancelled: {},
}

// CanTransition indica si from -> to está permitido. from == from no cuenta
// como transición: los duplicados se resuelven antes, como no-op.
func CanTransition(from, to model.Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError nombra estado actual e intentado para que el
// cliente pueda corregirse sin reintentar a ciegas.
type InvalidTransitionError struct {
	From model.Status
	To   model.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("transición de estado inválida: %s -> %s", e.From, e.To)
}

// ApplyTransition aplica el cambio de estado y mantiene los campos de fecha.
// deliveryDateActual se estampa una sola vez, en la primera entrega.
func ApplyTransition(o *model.Order, to model.Status, ts time.Time) error {
	if !CanTransition(o.Status, to) {
		return &InvalidTransitionError{From: o.Status, To: to}
	}

	o.Status = to

	if to == model.StatusDelivered && o.DeliveryDateActual == nil {
		t := ts
		o.DeliveryDateActual = &t
	}
	return nil
}

// eventTarget mapea el tag de un evento de rastreo al estado destino.
// Devuelve false cuando el evento es solo informativo (no mueve el estado):
// "created" siempre, y "exception" fuera de in_transit/delivered.
func eventTarget(ev model.EventStatus, current model.Status) (model.Status, bool) {
	switch ev {
	case model.EventAccepted:
		return model.StatusAccepted, true
	case model.EventPickedUp:
		return model.StatusPickedUp, true
	case model.EventInTransit:
		return model.StatusInTransit, true
	case model.EventDelayed:
		return model.StatusDelayed, true
	case model.EventDelivered:
		return model.StatusDelivered, true
	case model.EventException:
		if current == model.StatusInTransit || current == model.StatusDelivered {
			return model.StatusDisputed, true
		}
		return "", false
	}
	return "", false
}

// Action es lo que un actor intenta hacer sobre un pedido.
type Action string

const (
	ActionView   Action = "view"
	ActionTrack  Action = "track"
	ActionAccept Action = "accept"
	ActionClose  Action = "close"
	ActionCancel Action = "cancel"
)

// CanAct concentra todos los chequeos de permiso por pedido.
// Los handlers no deben decidir permisos por su cuenta.
func CanAct(o *model.Order, actorID string, action Action) bool {
	if actorID == "" {
		return false
	}

	switch action {
	case ActionView, ActionTrack:
		return o.IsParty(actorID)
	case ActionAccept:
		// Sin transportista asignado, cualquier tercero puede aceptar
		// (y queda asignado). Comprador y vendedor no pueden autoasignarse.
		if o.CarrierID == "" {
			return actorID != o.BuyerID && actorID != o.SellerID
		}
		return o.IsParty(actorID)
	case ActionClose, ActionCancel:
		// Solo comprador o vendedor; el transportista no cierra ni cancela.
		return actorID == o.BuyerID || actorID == o.SellerID
	}
	return false
}
