package controller

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"freight-settlement-service/internal/checksum"
	"freight-settlement-service/internal/dto"
	"freight-settlement-service/internal/model"
	"freight-settlement-service/internal/service"

	"github.com/gin-gonic/gin"
)

type OrderController struct {
	Service *service.OrderService
	Escrow  *service.EscrowService
}

func NewOrderController(s *service.OrderService, e *service.EscrowService) *OrderController {
	return &OrderController{Service: s, Escrow: e}
}

func isAdmin(c *gin.Context) bool {
	return slices.Contains(c.GetStringSlice("userPermissions"), "admin")
}

// respondError traduce los errores de negocio a códigos HTTP. Las
// transiciones inválidas llevan estado actual e intentado para que el
// cliente se corrija sin reintentar a ciegas.
func respondError(c *gin.Context, err error) {
	var inv *service.InvalidTransitionError
	switch {
	case errors.As(err, &inv):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":           inv.Error(),
			"currentStatus":   inv.From,
			"attemptedStatus": inv.To,
		})
	case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, service.ErrEscrowNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrNotDelivered),
		errors.Is(err, service.ErrClosureNotDrafted),
		errors.Is(err, service.ErrClosureNotConfirm),
		errors.Is(err, service.ErrAlreadyRated),
		errors.Is(err, service.ErrEscrowConflict):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConcurrentConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error interno del servidor"})
	}
}

// POST /freight-orders
func (ctl *OrderController) CreateOrder(c *gin.Context) {
	var req dto.CreateFreightOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buyerID := c.GetString("userID")
	o, err := ctl.Service.CreateOrder(c.Request.Context(), buyerID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"freightOrder": o})
}

// POST /freight-orders/:id/tracking
func (ctl *OrderController) AppendTracking(c *gin.Context) {
	var req dto.TrackingEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orderID := c.Param("id")
	actorID := c.GetString("userID")

	o, err := ctl.Service.AppendTracking(c.Request.Context(), orderID, actorID, req)
	if err != nil {
		// El evento puede haber quedado en el ledger igual (auditoría);
		// el error solo describe por qué el estado no avanzó.
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orderId":        o.ID,
		"orderNumber":    o.OrderNumber,
		"status":         o.Status,
		"trackingEvents": o.TrackingEvents,
	})
}

// GET /freight-orders/:id/tracking?from=&to= (RFC 3339)
func (ctl *OrderController) GetHistory(c *gin.Context) {
	orderID := c.Param("id")
	actorID := c.GetString("userID")

	var from, to *time.Time
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "parámetro from inválido, usar RFC 3339"})
			return
		}
		from = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "parámetro to inválido, usar RFC 3339"})
			return
		}
		to = &t
	}

	events, err := ctl.Service.GetHistory(c.Request.Context(), orderID, actorID, from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orderId": orderID, "trackingEvents": events})
}

// POST /freight-orders/:id/ai-closure
func (ctl *OrderController) GenerateClosure(c *gin.Context) {
	orderID := c.Param("id")
	actorID := c.GetString("userID")

	o, err := ctl.Service.GenerateClosure(c.Request.Context(), orderID, actorID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orderId":     o.ID,
		"orderNumber": o.OrderNumber,
		"aiClosure":   o.AIClosure,
	})
}

// POST /freight-orders/:id/complete-closure
func (ctl *OrderController) CompleteClosure(c *gin.Context) {
	var req dto.CompleteClosureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orderID := c.Param("id")
	actorID := c.GetString("userID")

	o, err := ctl.Service.CompleteClosure(c.Request.Context(), orderID, actorID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"freightOrder": o})
}

// POST /freight-orders/:id/cancel
func (ctl *OrderController) CancelOrder(c *gin.Context) {
	var req dto.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orderID := c.Param("id")
	actorID := c.GetString("userID")

	o, err := ctl.Service.CancelOrder(c.Request.Context(), orderID, actorID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"freightOrder": o})
}

// POST /freight-orders/:id/dispute
func (ctl *OrderController) FlagDispute(c *gin.Context) {
	var req dto.DisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orderID := c.Param("id")
	actorID := c.GetString("userID")

	o, err := ctl.Service.FlagDispute(c.Request.Context(), orderID, actorID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"freightOrder": o})
}

// GET /freight-orders?role=&status=
func (ctl *OrderController) ListOrders(c *gin.Context) {
	userID := c.GetString("userID")
	role := c.Query("role")
	status := model.Status(c.Query("status"))

	orders, err := ctl.Service.ListOrders(c.Request.Context(), userID, role, status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"freightOrders": orders})
}

// GET /freight-orders/:id — detalle completo con join del escrow
func (ctl *OrderController) GetOrder(c *gin.Context) {
	orderID := c.Param("id")
	actorID := c.GetString("userID")

	o, err := ctl.Service.GetOrder(c.Request.Context(), orderID, actorID, isAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}

	var escrow *model.EscrowRecord
	if rec, err := ctl.Escrow.GetByOrderID(c.Request.Context(), o.ID); err == nil {
		escrow = rec
	}

	c.JSON(http.StatusOK, gin.H{"freightOrder": o, "escrow": escrow})
}

// POST /validators/tax-id — superficie para el módulo de registro
func (ctl *OrderController) ValidateTaxID(c *gin.Context) {
	var req dto.ValidateTaxIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind, ok := checksum.FormatKind(req.Kind)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind debe ser cpf o cnpj"})
		return
	}

	c.JSON(http.StatusOK, checksum.Validate(req.Value, kind))
}
