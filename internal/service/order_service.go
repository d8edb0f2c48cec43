package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"freight-settlement-service/internal/dto"
	"freight-settlement-service/internal/metrics"
	"freight-settlement-service/internal/model"
	"freight-settlement-service/internal/repository"
)

// Interfaz que debe implementar el repositorio de pedidos.
// ReplaceVersioned es compare-and-swap sobre el campo version: si otro
// request escribió primero devuelve ErrVersionConflict y el caller relee.
type OrderRepository interface {
	Insert(ctx context.Context, o *model.Order) error
	FindByID(ctx context.Context, id string) (*model.Order, error)
	ReplaceVersioned(ctx context.Context, o *model.Order) error
	FindByParty(ctx context.Context, userID, role string, status model.Status) ([]*model.Order, error)
}

// Reintentos ante conflicto de versión. Los appends son aditivos, así que
// releer y reaplicar sobre el estado fresco alcanza.
const maxCASRetries = 3

type OrderService struct {
	repo   OrderRepository
	escrow *EscrowService
	pub    EventPublisher
	logger *zap.Logger
}

func NewOrderService(r OrderRepository, escrow *EscrowService, pub EventPublisher, logger *zap.Logger) *OrderService {
	return &OrderService{repo: r, escrow: escrow, pub: pub, logger: logger}
}

// newOrderNumber genera el identificador legible del pedido (único, se
// asigna en la creación y nunca cambia).
func newOrderNumber(now time.Time) string {
	ts := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return fmt.Sprintf("FRT-%s-%s", ts, strings.ToUpper(uuid.NewString()[:6]))
}

func toModelLocation(in dto.LocationDTO) model.Location {
	loc := model.Location{
		Address: in.Address,
		City:    in.City,
		State:   in.State,
		ZipCode: in.ZipCode,
	}
	if in.Coordinates != nil {
		loc.Coordinates = &model.Coordinates{Lat: in.Coordinates.Lat, Lng: in.Coordinates.Lng}
	}
	if in.Contact != nil {
		loc.Contact = &model.Contact{Name: in.Contact.Name, Phone: in.Contact.Phone, Email: in.Contact.Email}
	}
	return loc
}

func toModelMetadata(in *dto.EventMetadataDTO) *model.EventMetadata {
	if in == nil {
		return nil
	}
	return &model.EventMetadata{
		Driver:    in.Driver,
		Vehicle:   in.Vehicle,
		Notes:     in.Notes,
		Images:    in.Images,
		Documents: in.Documents,
	}
}

// CreateOrder da de alta el pedido en pending, con el evento inicial en el
// ledger y los fondos retenidos en escrow.
func (s *OrderService) CreateOrder(ctx context.Context, buyerID string, req dto.CreateFreightOrderRequest) (*model.Order, error) {
	if buyerID == req.SellerID {
		return nil, fmt.Errorf("%w: comprador y vendedor no pueden ser el mismo usuario", ErrValidation)
	}
	if !req.DeliveryDateEstimate.After(req.PickupDate) {
		return nil, fmt.Errorf("%w: la entrega estimada debe ser posterior a la fecha de retiro", ErrValidation)
	}

	now := time.Now().UTC()

	items := make([]model.CargoItem, 0, len(req.Items))
	for _, it := range req.Items {
		category := it.Category
		if category == "" {
			category = "other"
		}
		items = append(items, model.CargoItem{
			Name:        it.Name,
			Description: it.Description,
			Quantity:    it.Quantity,
			Unit:        it.Unit,
			Weight:      it.Weight,
			Category:    category,
		})
	}

	fees := make([]model.Fee, 0, len(req.Pricing.AdditionalFees))
	for _, f := range req.Pricing.AdditionalFees {
		fees = append(fees, model.Fee{Name: f.Name, Amount: f.Amount, Description: f.Description})
	}
	currency := req.Pricing.Currency
	if currency == "" {
		currency = "BRL"
	}
	pricing := model.Pricing{BasePrice: req.Pricing.BasePrice, AdditionalFees: fees, Currency: currency}
	pricing.ComputeTotal()

	o := &model.Order{
		ID:                   uuid.NewString(),
		OrderNumber:          newOrderNumber(now),
		BuyerID:              buyerID,
		SellerID:             req.SellerID,
		Origin:               toModelLocation(req.Origin),
		Destination:          toModelLocation(req.Destination),
		PickupDate:           req.PickupDate,
		DeliveryDateEstimate: req.DeliveryDateEstimate,
		Items:                items,
		Pricing:              pricing,
		Status:               model.StatusPending,
		TrackingEvents: []model.TrackingEvent{
			{
				ID:          uuid.NewString(),
				Status:      model.EventCreated,
				Location:    toModelLocation(req.Origin),
				Description: "Pedido de frete criado",
				Timestamp:   now,
				AuthorID:    buyerID,
			},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, o); err != nil {
		return nil, err
	}

	// Retención de fondos. Hold es idempotente por orderId: si falla acá se
	// loguea y un reintento posterior lo deja consistente sin duplicar nada.
	if _, err := s.escrow.Hold(ctx, o); err != nil {
		s.logger.Error("no se pudo retener escrow del pedido",
			zap.String("orderId", o.ID), zap.Error(err))
	}

	metrics.OrdersCreatedTotal.Inc()
	s.notify(ctx, Event{
		Type:        EventTypeOrderCreated,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Status:      string(o.Status),
		ActorID:     buyerID,
		Recipients:  o.Parties(buyerID),
		OccurredAt:  now,
	})

	s.logger.Info("pedido de frete creado",
		zap.String("orderNumber", o.OrderNumber), zap.String("buyerId", buyerID))
	return o, nil
}

// AppendTracking agrega un evento al ledger y, si corresponde, avanza el
// estado del pedido. El evento siempre queda registrado cuando el actor y el
// payload son válidos; las transiciones ilegales no cambian el estado pero
// devuelven el error nombrando estado actual e intentado.
func (s *OrderService) AppendTracking(ctx context.Context, orderID, actorID string, req dto.TrackingEventRequest) (*model.Order, error) {
	evStatus := model.EventStatus(req.Status)
	if req.Location == nil || req.Location.City == "" || req.Location.State == "" {
		return nil, fmt.Errorf("%w: el evento requiere ubicación con ciudad y estado", ErrValidation)
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		o, err := s.repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrOrderNotFound
			}
			return nil, err
		}

		// Permisos: un transportista todavía no asignado solo puede aceptar.
		if evStatus == model.EventAccepted && o.CarrierID == "" {
			if !CanAct(o, actorID, ActionAccept) {
				return nil, ErrForbidden
			}
		} else if !CanAct(o, actorID, ActionTrack) {
			return nil, ErrForbidden
		}

		now := time.Now().UTC()
		event := model.TrackingEvent{
			ID:          uuid.NewString(),
			Status:      evStatus,
			Location:    toModelLocation(*req.Location),
			Description: req.Description,
			Metadata:    toModelMetadata(req.Metadata),
			Timestamp:   now,
			AuthorID:    actorID,
		}

		prev := o.Status
		target, advances := eventTarget(evStatus, o.Status)

		var transitionErr error
		switch {
		case !advances:
			// Evento informativo: solo auditoría.
		case target == o.Status:
			// Duplicado idempotente: se registra, el estado no se toca.
		default:
			transitionErr = ApplyTransition(o, target, event.Timestamp)
		}

		if evStatus == model.EventAccepted && o.CarrierID == "" && o.Status == model.StatusAccepted {
			o.CarrierID = actorID
		}

		// El ledger es append-only y completo: también los eventos que no
		// avanzaron el estado quedan registrados.
		o.TrackingEvents = append(o.TrackingEvents, event)

		if err := s.repo.ReplaceVersioned(ctx, o); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				metrics.VersionConflictsTotal.Inc()
				continue // reevaluar contra el estado fresco
			}
			return nil, err
		}

		metrics.TrackingEventsTotal.WithLabelValues(string(evStatus)).Inc()
		advanced := transitionErr == nil && advances && o.Status != prev
		if advanced {
			metrics.StatusTransitionsTotal.WithLabelValues(string(o.Status)).Inc()
			s.afterTransition(ctx, o, actorID, req.Description, now)
		}

		s.notify(ctx, Event{
			Type:        EventTypeTrackingUpdated,
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			Status:      string(o.Status),
			ActorID:     actorID,
			Recipients:  o.Parties(actorID),
			Detail:      string(evStatus),
			OccurredAt:  now,
		})

		if transitionErr != nil {
			return o, transitionErr
		}
		return o, nil
	}
	return nil, ErrConcurrentConflict
}

// afterTransition dispara los efectos posteriores a un cambio de estado ya
// confirmado. Nada de esto revierte la transición si falla: se loguea.
func (s *OrderService) afterTransition(ctx context.Context, o *model.Order, actorID, detail string, now time.Time) {
	switch o.Status {
	case model.StatusDelivered:
		// El worker toma este evento y genera el borrador de cierre.
		s.notify(ctx, Event{
			Type:        EventTypeOrderDelivered,
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			Status:      string(o.Status),
			ActorID:     actorID,
			Recipients:  o.Parties(actorID),
			OccurredAt:  now,
		})
	case model.StatusDisputed:
		if _, err := s.escrow.MarkDisputed(ctx, o.ID, detail); err != nil {
			s.logger.Error("no se pudo marcar el escrow en disputa",
				zap.String("orderId", o.ID), zap.Error(err))
		}
		s.notify(ctx, Event{
			Type:        EventTypeOrderDisputed,
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			Status:      string(o.Status),
			ActorID:     actorID,
			Recipients:  o.Parties(actorID),
			Detail:      detail,
			OccurredAt:  now,
		})
	}
}

// CancelOrder corta el ciclo desde cualquier estado no final y cancela el
// escrow (los fondos vuelven al comprador). Idempotente sobre cancelled.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, actorID, reason string) (*model.Order, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		o, err := s.repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrOrderNotFound
			}
			return nil, err
		}
		if !CanAct(o, actorID, ActionCancel) {
			return nil, ErrForbidden
		}
		if o.Status == model.StatusCancelled {
			return o, nil
		}

		now := time.Now().UTC()
		if err := ApplyTransition(o, model.StatusCancelled, now); err != nil {
			return nil, err
		}

		desc := "Pedido cancelado"
		if reason != "" {
			desc = "Pedido cancelado: " + reason
		}
		o.TrackingEvents = append(o.TrackingEvents, model.TrackingEvent{
			ID:          uuid.NewString(),
			Status:      model.EventException,
			Location:    o.Origin,
			Description: desc,
			Timestamp:   now,
			AuthorID:    actorID,
		})

		if err := s.repo.ReplaceVersioned(ctx, o); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				metrics.VersionConflictsTotal.Inc()
				continue
			}
			return nil, err
		}

		metrics.StatusTransitionsTotal.WithLabelValues(string(model.StatusCancelled)).Inc()
		if _, _, err := s.escrow.Cancel(ctx, o.ID); err != nil {
			s.logger.Error("no se pudo cancelar el escrow del pedido",
				zap.String("orderId", o.ID), zap.Error(err))
		}
		s.notify(ctx, Event{
			Type:        EventTypeOrderCancelled,
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			Status:      string(o.Status),
			ActorID:     actorID,
			Recipients:  o.Parties(actorID),
			Detail:      reason,
			OccurredAt:  now,
		})
		return o, nil
	}
	return nil, ErrConcurrentConflict
}

// FlagDispute abre una disputa explícita (sin evento de excepción previo).
// Válido solo desde in_transit o delivered.
func (s *OrderService) FlagDispute(ctx context.Context, orderID, actorID, reason string) (*model.Order, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		o, err := s.repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrOrderNotFound
			}
			return nil, err
		}
		if !o.IsParty(actorID) {
			return nil, ErrForbidden
		}
		if o.Status == model.StatusDisputed {
			return o, nil
		}

		now := time.Now().UTC()
		if err := ApplyTransition(o, model.StatusDisputed, now); err != nil {
			return nil, err
		}
		o.TrackingEvents = append(o.TrackingEvents, model.TrackingEvent{
			ID:          uuid.NewString(),
			Status:      model.EventException,
			Location:    o.Destination,
			Description: "Disputa abierta: " + reason,
			Timestamp:   now,
			AuthorID:    actorID,
		})

		if err := s.repo.ReplaceVersioned(ctx, o); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				metrics.VersionConflictsTotal.Inc()
				continue
			}
			return nil, err
		}

		metrics.StatusTransitionsTotal.WithLabelValues(string(model.StatusDisputed)).Inc()
		s.afterTransition(ctx, o, actorID, reason, now)
		return o, nil
	}
	return nil, ErrConcurrentConflict
}

// GenerateClosure (re)genera el borrador de cierre a pedido de comprador o
// vendedor. Solo con el pedido entregado y mientras no esté confirmado.
func (s *OrderService) GenerateClosure(ctx context.Context, orderID, actorID string) (*model.Order, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		o, err := s.repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrOrderNotFound
			}
			return nil, err
		}
		if !CanAct(o, actorID, ActionClose) {
			return nil, ErrForbidden
		}
		if o.Status != model.StatusDelivered {
			return nil, ErrNotDelivered
		}
		if o.AIClosure != nil && o.AIClosure.IsCompleted {
			return o, nil
		}

		o.AIClosure = BuildClosureDraft(o, time.Now().UTC())

		if err := s.repo.ReplaceVersioned(ctx, o); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				metrics.VersionConflictsTotal.Inc()
				continue
			}
			return nil, err
		}
		return o, nil
	}
	return nil, ErrConcurrentConflict
}

// EnsureClosureDraft es el camino del worker: genera el borrador solo si
// todavía no existe. Reprocesar el mismo evento no cambia nada.
func (s *OrderService) EnsureClosureDraft(ctx context.Context, orderID string) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		o, err := s.repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if o.Status != model.StatusDelivered || o.AIClosure != nil {
			return nil
		}
		o.AIClosure = BuildClosureDraft(o, time.Now().UTC())
		if err := s.repo.ReplaceVersioned(ctx, o); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				metrics.VersionConflictsTotal.Inc()
				continue
			}
			return err
		}
		return nil
	}
	return ErrConcurrentConflict
}

// CompleteClosure confirma el cierre: marca el borrador como completado,
// pasa el pedido a closed, libera el escrow y registra la calificación si
// vino. Reconfirmar un cierre ya completado devuelve el pedido tal cual.
func (s *OrderService) CompleteClosure(ctx context.Context, orderID, actorID string, req dto.CompleteClosureRequest) (*model.Order, error) {
	if !req.ConfirmClosure {
		return nil, ErrClosureNotConfirm
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		o, err := s.repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrOrderNotFound
			}
			return nil, err
		}
		if !CanAct(o, actorID, ActionClose) {
			return nil, ErrForbidden
		}
		if o.Status == model.StatusClosed && o.AIClosure != nil && o.AIClosure.IsCompleted {
			// Confirmación repetida: sin nuevos efectos.
			return o, nil
		}
		if o.Status != model.StatusDelivered {
			return nil, ErrNotDelivered
		}
		if o.AIClosure == nil {
			return nil, ErrClosureNotDrafted
		}

		now := time.Now().UTC()

		if req.Rating != nil {
			for _, r := range o.Ratings {
				if r.RaterID == actorID {
					return nil, ErrAlreadyRated
				}
			}
			role := "buyer"
			if actorID == o.SellerID {
				role = "seller"
			}
			o.Ratings = append(o.Ratings, model.RatingEntry{
				SubjectRole: role,
				Score:       req.Rating.Score,
				Comment:     req.Rating.Comment,
				RaterID:     actorID,
				Timestamp:   now,
			})
		}

		cl := *o.AIClosure
		cl.IsCompleted = true
		cl.FinalMessage = req.CustomMessage
		if cl.FinalMessage == "" {
			cl.FinalMessage = cl.SuggestedMessage
		}
		cl.CompletedBy = actorID
		t := now
		cl.CompletedAt = &t
		o.AIClosure = &cl

		if err := ApplyTransition(o, model.StatusClosed, now); err != nil {
			return nil, err
		}

		if err := s.repo.ReplaceVersioned(ctx, o); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				metrics.VersionConflictsTotal.Inc()
				continue // una confirmación concurrente ganó: la relectura lo resuelve
			}
			return nil, err
		}

		metrics.StatusTransitionsTotal.WithLabelValues(string(model.StatusClosed)).Inc()

		// Liberación de fondos después del commit. La puerta de estado del
		// escrow garantiza un solo movimiento aunque esto se reintente.
		if _, moved, err := s.escrow.Release(ctx, o.ID); err != nil {
			s.logger.Error("no se pudo liberar el escrow del pedido",
				zap.String("orderId", o.ID), zap.Error(err))
		} else if moved {
			s.notify(ctx, Event{
				Type:        EventTypeEscrowReleased,
				OrderID:     o.ID,
				OrderNumber: o.OrderNumber,
				OccurredAt:  now,
			})
		}

		s.notify(ctx, Event{
			Type:        EventTypeOrderClosed,
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			Status:      string(o.Status),
			ActorID:     actorID,
			Recipients:  o.Parties(actorID),
			OccurredAt:  now,
		})

		s.logger.Info("pedido de frete cerrado",
			zap.String("orderNumber", o.OrderNumber), zap.String("actorId", actorID))
		return o, nil
	}
	return nil, ErrConcurrentConflict
}

// ReconcileEscrowOutcome alinea el estado del pedido después de que ops
// resolvió una disputa directamente sobre el escrow. Mejor esfuerzo.
func (s *OrderService) ReconcileEscrowOutcome(ctx context.Context, orderID string, st model.EscrowState) {
	var target model.Status
	switch st {
	case model.EscrowReleased:
		target = model.StatusClosed
	case model.EscrowCancelled:
		target = model.StatusCancelled
	default:
		return
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		o, err := s.repo.FindByID(ctx, orderID)
		if err != nil {
			s.logger.Warn("no se pudo releer el pedido tras resolver escrow",
				zap.String("orderId", orderID), zap.Error(err))
			return
		}
		if o.Status != model.StatusDisputed {
			return
		}
		if err := ApplyTransition(o, target, time.Now().UTC()); err != nil {
			return
		}
		if err := s.repo.ReplaceVersioned(ctx, o); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				continue
			}
			s.logger.Warn("no se pudo sincronizar el pedido con el escrow",
				zap.String("orderId", orderID), zap.Error(err))
			return
		}
		metrics.StatusTransitionsTotal.WithLabelValues(string(target)).Inc()
		return
	}
}

// GetOrder devuelve el pedido si el actor participa (o es admin).
func (s *OrderService) GetOrder(ctx context.Context, orderID, actorID string, isAdmin bool) (*model.Order, error) {
	o, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if !isAdmin && !CanAct(o, actorID, ActionView) {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListOrders filtra por rol del usuario sobre el pedido y/o estado.
func (s *OrderService) ListOrders(ctx context.Context, userID, role string, status model.Status) ([]*model.Order, error) {
	return s.repo.FindByParty(ctx, userID, role, status)
}

// GetHistory devuelve el ledger ordenado, opcionalmente acotado por rango
// de tiempo (ambos extremos inclusivos).
func (s *OrderService) GetHistory(ctx context.Context, orderID, actorID string, from, to *time.Time) ([]model.TrackingEvent, error) {
	o, err := s.GetOrder(ctx, orderID, actorID, false)
	if err != nil {
		return nil, err
	}

	if from == nil && to == nil {
		return o.TrackingEvents, nil
	}
	out := make([]model.TrackingEvent, 0, len(o.TrackingEvents))
	for _, ev := range o.TrackingEvents {
		if from != nil && ev.Timestamp.Before(*from) {
			continue
		}
		if to != nil && ev.Timestamp.After(*to) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// notify publica el evento y sigue: una falla acá nunca revierte la
// mutación ya confirmada.
func (s *OrderService) notify(ctx context.Context, evt Event) {
	evt.ID = uuid.NewString()
	if err := s.pub.Publish(ctx, evt); err != nil {
		s.logger.Error("no se pudo publicar el evento",
			zap.String("type", evt.Type), zap.String("orderId", evt.OrderID), zap.Error(err))
	}
}
