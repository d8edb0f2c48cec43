package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freight-settlement-service/internal/dto"
	"freight-settlement-service/internal/model"
)

func createOrderRequest() dto.CreateFreightOrderRequest {
	return dto.CreateFreightOrderRequest{
		SellerID: "seller-1",
		Origin: dto.LocationDTO{
			Address: "Fazenda Boa Vista, km 12",
			City:    "Sorriso",
			State:   "MT",
		},
		Destination: dto.LocationDTO{
			Address: "Terminal Graneleiro, Av. Portuária 500",
			City:    "Santos",
			State:   "SP",
		},
		PickupDate:           time.Now().Add(24 * time.Hour),
		DeliveryDateEstimate: time.Now().Add(7 * 24 * time.Hour),
		Items: []dto.CargoItemDTO{
			{Name: "Soja em grão", Quantity: 30, Unit: "t", Weight: 30000, Category: "grain"},
		},
		Pricing: dto.PricingDTO{
			BasePrice: 2000,
			AdditionalFees: []dto.FeeDTO{
				{Name: "Pedágio", Amount: 200},
			},
		},
	}
}

func trackingEvent(status string) dto.TrackingEventRequest {
	return dto.TrackingEventRequest{
		Status: status,
		Location: &dto.LocationDTO{
			Address: "BR-163, km 410",
			City:    "Rondonópolis",
			State:   "MT",
		},
	}
}

func TestCreateOrder(t *testing.T) {
	svc, escrow, _, _, pub := newTestServices()
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, "buyer-1", createOrderRequest())
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, o.Status)
	assert.True(t, strings.HasPrefix(o.OrderNumber, "FRT-"))
	assert.Equal(t, 2200.0, o.Pricing.TotalPrice) // base 2000 + fee 200
	assert.Equal(t, "BRL", o.Pricing.Currency)
	require.Len(t, o.TrackingEvents, 1)
	assert.Equal(t, model.EventCreated, o.TrackingEvents[0].Status)

	// los fondos quedan retenidos en la creación
	rec, err := escrow.GetByOrderID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EscrowHeld, rec.State)
	assert.Equal(t, 2200.0, rec.Amount)
	assert.Equal(t, "buyer-1", rec.PayerID)
	assert.Equal(t, "seller-1", rec.PayeeID)

	assert.Len(t, pub.byType(EventTypeOrderCreated), 1)
}

func TestCreateOrderValidation(t *testing.T) {
	svc, _, _, _, _ := newTestServices()
	ctx := context.Background()

	req := createOrderRequest()
	req.SellerID = "buyer-1"
	_, err := svc.CreateOrder(ctx, "buyer-1", req)
	assert.ErrorIs(t, err, ErrValidation)

	req = createOrderRequest()
	req.DeliveryDateEstimate = req.PickupDate.Add(-time.Hour)
	_, err = svc.CreateOrder(ctx, "buyer-1", req)
	assert.ErrorIs(t, err, ErrValidation)
}

// Escenario completo: creación → aceptación → viaje → entrega → borrador →
// confirmación con calificación → reconfirmación idempotente.
func TestOrderLifecycleEndToEnd(t *testing.T) {
	svc, escrow, _, _, pub := newTestServices()
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, "buyer-1", createOrderRequest())
	require.NoError(t, err)

	// el transportista acepta y queda asignado
	o, err = svc.AppendTracking(ctx, o.ID, "carrier-1", trackingEvent("accepted"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, o.Status)
	assert.Equal(t, "carrier-1", o.CarrierID)

	for _, st := range []string{"picked_up", "in_transit", "delivered"} {
		o, err = svc.AppendTracking(ctx, o.ID, "carrier-1", trackingEvent(st))
		require.NoError(t, err)
	}
	assert.Equal(t, model.StatusDelivered, o.Status)

	// deliveryDateActual = timestamp del evento delivered
	require.NotNil(t, o.DeliveryDateActual)
	last := o.TrackingEvents[len(o.TrackingEvents)-1]
	assert.Equal(t, model.EventDelivered, last.Status)
	assert.Equal(t, last.Timestamp, *o.DeliveryDateActual)

	// la entrega dispara el evento para el worker de borradores
	assert.Len(t, pub.byType(EventTypeOrderDelivered), 1)

	// el vendedor genera el borrador
	o, err = svc.GenerateClosure(ctx, o.ID, "seller-1")
	require.NoError(t, err)
	require.NotNil(t, o.AIClosure)
	assert.False(t, o.AIClosure.IsCompleted)
	assert.True(t, o.AIClosure.PerformanceMetrics.OnTimeDelivery)
	assert.Equal(t, 5, o.AIClosure.PerformanceMetrics.OverallScore)

	// el comprador confirma con calificación
	o, err = svc.CompleteClosure(ctx, o.ID, "buyer-1", dto.CompleteClosureRequest{
		ConfirmClosure: true,
		Rating:         &dto.RatingDTO{Score: 5, Comment: "Excelente"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, o.Status)
	assert.True(t, o.AIClosure.IsCompleted)
	require.Len(t, o.Ratings, 1)
	assert.Equal(t, 5, o.Ratings[0].Score)
	assert.Equal(t, "buyer-1", o.Ratings[0].RaterID)

	rec, err := escrow.GetByOrderID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EscrowReleased, rec.State)

	// reconfirmar no genera efectos nuevos
	eventsBefore := len(o.TrackingEvents)
	o2, err := svc.CompleteClosure(ctx, o.ID, "buyer-1", dto.CompleteClosureRequest{
		ConfirmClosure: true,
		Rating:         &dto.RatingDTO{Score: 1, Comment: "cambié de idea"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, o2.Status)
	assert.Len(t, o2.Ratings, 1)
	assert.Equal(t, 5, o2.Ratings[0].Score)
	assert.Len(t, o2.TrackingEvents, eventsBefore)
	assert.Len(t, pub.byType(EventTypeEscrowReleased), 1)
}

func TestAppendTrackingPermissions(t *testing.T) {
	svc, _, _, _, _ := newTestServices()
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, "buyer-1", createOrderRequest())
	require.NoError(t, err)

	// un tercero no puede registrar eventos que no sean la aceptación
	_, err = svc.AppendTracking(ctx, o.ID, "carrier-1", trackingEvent("picked_up"))
	assert.ErrorIs(t, err, ErrForbidden)

	// comprador y vendedor no pueden autoasignarse como transportista
	_, err = svc.AppendTracking(ctx, o.ID, "buyer-1", trackingEvent("accepted"))
	assert.ErrorIs(t, err, ErrForbidden)

	// el rechazo por permiso no deja rastro en el ledger
	got, err := svc.GetOrder(ctx, o.ID, "buyer-1", false)
	require.NoError(t, err)
	assert.Len(t, got.TrackingEvents, 1)
}

func TestAppendTrackingIllegalTransitionStillAudited(t *testing.T) {
	svc, _, _, _, _ := newTestServices()
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, "buyer-1", createOrderRequest())
	require.NoError(t, err)

	// delivered directo desde pending: transición ilegal
	got, err := svc.AppendTracking(ctx, o.ID, "buyer-1", trackingEvent("delivered"))
	var inv *InvalidTransitionError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, model.StatusPending, inv.From)
	assert.Equal(t, model.StatusDelivered, inv.To)

	// el estado no cambió pero el evento quedó auditado
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Len(t, got.TrackingEvents, 2)
	assert.Nil(t, got.DeliveryDateActual)
}

func TestAppendTrackingDuplicateDelivered(t *testing.T) {
	svc, _, _, _, _ := newTestServices()
	ctx := context.Background()

	o := deliveredOrder(t, svc)
	firstStamp := *o.DeliveryDateActual
	events := len(o.TrackingEvents)

	// duplicado idempotente: se registra, nada más cambia
	got, err := svc.AppendTracking(ctx, o.ID, "carrier-1", trackingEvent("delivered"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, got.Status)
	assert.Equal(t, firstStamp, *got.DeliveryDateActual)
	assert.Len(t, got.TrackingEvents, events+1)
}

func TestExceptionOpensDispute(t *testing.T) {
	svc, escrow, _, _, _ := newTestServices()
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, "buyer-1", createOrderRequest())
	require.NoError(t, err)
	for _, st := range []string{"accepted", "picked_up", "in_transit"} {
		o, err = svc.AppendTracking(ctx, o.ID, "carrier-1", trackingEvent(st))
		require.NoError(t, err)
	}

	ev := trackingEvent("exception")
	ev.Description = "Carga avariada na chegada"
	o, err = svc.AppendTracking(ctx, o.ID, "buyer-1", ev)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDisputed, o.Status)

	rec, err := escrow.GetByOrderID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EscrowDisputed, rec.State)
}

func TestExceptionBeforeTransitIsInformative(t *testing.T) {
	svc, escrow, _, _, _ := newTestServices()
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, "buyer-1", createOrderRequest())
	require.NoError(t, err)
	o, err = svc.AppendTracking(ctx, o.ID, "carrier-1", trackingEvent("accepted"))
	require.NoError(t, err)

	o, err = svc.AppendTracking(ctx, o.ID, "buyer-1", trackingEvent("exception"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, o.Status)
	assert.Len(t, o.TrackingEvents, 3)

	rec, err := escrow.GetByOrderID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EscrowHeld, rec.State)
}

func TestCancelOrder(t *testing.T) {
	svc, escrow, _, _, _ := newTestServices()
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, "buyer-1", createOrderRequest())
	require.NoError(t, err)
	o, err = svc.AppendTracking(ctx, o.ID, "carrier-1", trackingEvent("accepted"))
	require.NoError(t, err)

	o, err = svc.CancelOrder(ctx, o.ID, "buyer-1", "cambio de cosecha")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, o.Status)

	rec, err := escrow.GetByOrderID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EscrowCancelled, rec.State)

	// cancelar de nuevo es un no-op
	events := len(o.TrackingEvents)
	o, err = svc.CancelOrder(ctx, o.ID, "buyer-1", "de nuevo")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, o.Status)
	assert.Len(t, o.TrackingEvents, events)
}

func TestCancelClosedOrderFails(t *testing.T) {
	svc, _, _, _, _ := newTestServices()
	ctx := context.Background()

	o := closedOrder(t, svc)
	_, err := svc.CancelOrder(ctx, o.ID, "buyer-1", "tarde")
	var inv *InvalidTransitionError
	assert.ErrorAs(t, err, &inv)
}

func TestCancelForbiddenForCarrier(t *testing.T) {
	svc, _, _, _, _ := newTestServices()
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, "buyer-1", createOrderRequest())
	require.NoError(t, err)
	o, err = svc.AppendTracking(ctx, o.ID, "carrier-1", trackingEvent("accepted"))
	require.NoError(t, err)

	_, err = svc.CancelOrder(ctx, o.ID, "carrier-1", "no quiero")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestClosureGating(t *testing.T) {
	svc, escrow, _, _, _ := newTestServices()
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, "buyer-1", createOrderRequest())
	require.NoError(t, err)

	// antes de delivered no hay borrador ni confirmación
	_, err = svc.GenerateClosure(ctx, o.ID, "buyer-1")
	assert.ErrorIs(t, err, ErrNotDelivered)

	_, err = svc.CompleteClosure(ctx, o.ID, "buyer-1", dto.CompleteClosureRequest{ConfirmClosure: true})
	assert.ErrorIs(t, err, ErrNotDelivered)

	// y el escrow no se movió
	rec, err := escrow.GetByOrderID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EscrowHeld, rec.State)
}

func TestCompleteClosureRequiresDraftAndConfirmation(t *testing.T) {
	svc, _, _, _, _ := newTestServices()
	ctx := context.Background()

	o := deliveredOrder(t, svc)

	_, err := svc.CompleteClosure(ctx, o.ID, "buyer-1", dto.CompleteClosureRequest{ConfirmClosure: false})
	assert.ErrorIs(t, err, ErrClosureNotConfirm)

	_, err = svc.CompleteClosure(ctx, o.ID, "buyer-1", dto.CompleteClosureRequest{ConfirmClosure: true})
	assert.ErrorIs(t, err, ErrClosureNotDrafted)

	// el transportista no puede confirmar el cierre
	_, err = svc.GenerateClosure(ctx, o.ID, "carrier-1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCompleteClosureCustomMessage(t *testing.T) {
	svc, _, _, _, _ := newTestServices()
	ctx := context.Background()

	o := deliveredOrder(t, svc)
	_, err := svc.GenerateClosure(ctx, o.ID, "seller-1")
	require.NoError(t, err)

	o, err = svc.CompleteClosure(ctx, o.ID, "seller-1", dto.CompleteClosureRequest{
		ConfirmClosure: true,
		CustomMessage:  "Entrega impecável, obrigado!",
	})
	require.NoError(t, err)
	assert.Equal(t, "Entrega impecável, obrigado!", o.AIClosure.FinalMessage)
	assert.Equal(t, "seller-1", o.AIClosure.CompletedBy)
	require.Len(t, o.Ratings, 0)
}

func TestAppendTrackingRetriesOnConflict(t *testing.T) {
	svc, _, orderRepo, _, _ := newTestServices()
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, "buyer-1", createOrderRequest())
	require.NoError(t, err)

	// un conflicto: la relectura resuelve
	orderRepo.conflicts = 1
	got, err := svc.AppendTracking(ctx, o.ID, "carrier-1", trackingEvent("accepted"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, got.Status)
	assert.Len(t, got.TrackingEvents, 2)

	// conflictos persistentes: se agotan los reintentos
	orderRepo.conflicts = maxCASRetries
	_, err = svc.AppendTracking(ctx, o.ID, "carrier-1", trackingEvent("picked_up"))
	assert.ErrorIs(t, err, ErrConcurrentConflict)
}

func TestGetHistoryTimeRange(t *testing.T) {
	svc, _, _, _, _ := newTestServices()
	ctx := context.Background()

	o := deliveredOrder(t, svc)
	all, err := svc.GetHistory(ctx, o.ID, "buyer-1", nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 5) // created + accepted + picked_up + in_transit + delivered

	// rango que excluye el evento inicial
	from := all[1].Timestamp
	ranged, err := svc.GetHistory(ctx, o.ID, "buyer-1", &from, nil)
	require.NoError(t, err)
	assert.Len(t, ranged, 4)

	to := all[2].Timestamp
	ranged, err = svc.GetHistory(ctx, o.ID, "buyer-1", &from, &to)
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	// un tercero no ve el historial
	_, err = svc.GetHistory(ctx, o.ID, "otro", nil, nil)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestListOrdersByRoleAndStatus(t *testing.T) {
	svc, _, _, _, _ := newTestServices()
	ctx := context.Background()

	o1, err := svc.CreateOrder(ctx, "buyer-1", createOrderRequest())
	require.NoError(t, err)
	_, err = svc.AppendTracking(ctx, o1.ID, "carrier-1", trackingEvent("accepted"))
	require.NoError(t, err)

	_, err = svc.CreateOrder(ctx, "buyer-1", createOrderRequest())
	require.NoError(t, err)

	asBuyer, err := svc.ListOrders(ctx, "buyer-1", "buyer", "")
	require.NoError(t, err)
	assert.Len(t, asBuyer, 2)

	asCarrier, err := svc.ListOrders(ctx, "carrier-1", "carrier", "")
	require.NoError(t, err)
	assert.Len(t, asCarrier, 1)

	pending, err := svc.ListOrders(ctx, "buyer-1", "buyer", model.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestEnsureClosureDraftIdempotent(t *testing.T) {
	svc, _, _, _, _ := newTestServices()
	ctx := context.Background()

	o := deliveredOrder(t, svc)
	require.NoError(t, svc.EnsureClosureDraft(ctx, o.ID))

	got, err := svc.GetOrder(ctx, o.ID, "buyer-1", false)
	require.NoError(t, err)
	require.NotNil(t, got.AIClosure)
	generatedAt := got.AIClosure.GeneratedAt

	// reprocesar el mismo evento no regenera nada
	require.NoError(t, svc.EnsureClosureDraft(ctx, o.ID))
	got, err = svc.GetOrder(ctx, o.ID, "buyer-1", false)
	require.NoError(t, err)
	assert.Equal(t, generatedAt, got.AIClosure.GeneratedAt)
}

func TestReconcileEscrowOutcome(t *testing.T) {
	svc, escrow, _, _, _ := newTestServices()
	ctx := context.Background()

	// disputa abierta en tránsito, ops libera los fondos
	o, err := svc.CreateOrder(ctx, "buyer-1", createOrderRequest())
	require.NoError(t, err)
	for _, st := range []string{"accepted", "picked_up", "in_transit", "exception"} {
		o, _ = svc.AppendTracking(ctx, o.ID, pickActor(st), trackingEvent(st))
	}
	require.Equal(t, model.StatusDisputed, o.Status)

	rec, moved, err := escrow.Release(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, moved)
	svc.ReconcileEscrowOutcome(ctx, o.ID, rec.State)

	got, err := svc.GetOrder(ctx, o.ID, "buyer-1", false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, got.Status)
}

func pickActor(eventStatus string) string {
	if eventStatus == "exception" {
		return "buyer-1"
	}
	return "carrier-1"
}

// deliveredOrder arma un pedido entregado por el camino feliz.
func deliveredOrder(t *testing.T, svc *OrderService) *model.Order {
	t.Helper()
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, "buyer-1", createOrderRequest())
	require.NoError(t, err)
	for _, st := range []string{"accepted", "picked_up", "in_transit", "delivered"} {
		o, err = svc.AppendTracking(ctx, o.ID, "carrier-1", trackingEvent(st))
		require.NoError(t, err)
	}
	require.Equal(t, model.StatusDelivered, o.Status)
	return o
}

func closedOrder(t *testing.T, svc *OrderService) *model.Order {
	t.Helper()
	ctx := context.Background()

	o := deliveredOrder(t, svc)
	_, err := svc.GenerateClosure(ctx, o.ID, "buyer-1")
	require.NoError(t, err)
	o, err = svc.CompleteClosure(ctx, o.ID, "buyer-1", dto.CompleteClosureRequest{ConfirmClosure: true})
	require.NoError(t, err)
	return o
}
