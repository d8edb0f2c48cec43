package controller

import (
	"net/http"

	"freight-settlement-service/internal/dto"
	"freight-settlement-service/internal/service"

	"github.com/gin-gonic/gin"
)

// EscrowController expone las sub-interfaces de escrow: consulta para el
// usuario y resolución manual para ops (rutas admin). Todas idempotentes
// por orderId.
type EscrowController struct {
	Escrow *service.EscrowService
	Orders *service.OrderService
}

func NewEscrowController(e *service.EscrowService, o *service.OrderService) *EscrowController {
	return &EscrowController{Escrow: e, Orders: o}
}

// GET /escrow/mine
func (ctl *EscrowController) ListMine(c *gin.Context) {
	userID := c.GetString("userID")

	records, err := ctl.Escrow.ListByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrowRecords": records})
}

// POST /admin/escrow/:orderId/release
func (ctl *EscrowController) Release(c *gin.Context) {
	orderID := c.Param("orderId")

	rec, moved, err := ctl.Escrow.Release(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	if moved {
		// Si el pedido estaba en disputa, queda cerrado. Mejor esfuerzo.
		ctl.Orders.ReconcileEscrowOutcome(c.Request.Context(), orderID, rec.State)
	}

	c.JSON(http.StatusOK, gin.H{"escrow": rec, "moved": moved})
}

// POST /admin/escrow/:orderId/cancel
func (ctl *EscrowController) Cancel(c *gin.Context) {
	orderID := c.Param("orderId")

	rec, moved, err := ctl.Escrow.Cancel(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	if moved {
		ctl.Orders.ReconcileEscrowOutcome(c.Request.Context(), orderID, rec.State)
	}

	c.JSON(http.StatusOK, gin.H{"escrow": rec, "moved": moved})
}

// POST /admin/escrow/:orderId/dispute
func (ctl *EscrowController) MarkDisputed(c *gin.Context) {
	var req dto.DisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orderID := c.Param("orderId")
	rec, err := ctl.Escrow.MarkDisputed(c.Request.Context(), orderID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"escrow": rec})
}
