package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"freight-settlement-service/internal/metrics"
	"freight-settlement-service/internal/model"
	"freight-settlement-service/internal/repository"
)

// Interfaz que debe implementar el repositorio de escrow.
// TransitionState es la única puerta de cambio de estado: filtra por el
// estado actual y escribe en una sola operación atómica.
type EscrowRepository interface {
	EnsureHeld(ctx context.Context, rec *model.EscrowRecord) (*model.EscrowRecord, error)
	FindByOrderID(ctx context.Context, orderID string) (*model.EscrowRecord, error)
	TransitionState(ctx context.Context, orderID string, from []model.EscrowState, to model.EscrowState, reason string) (*model.EscrowRecord, error)
	FindByUser(ctx context.Context, userID string) ([]*model.EscrowRecord, error)
}

type EscrowService struct {
	repo   EscrowRepository
	logger *zap.Logger
}

func NewEscrowService(r EscrowRepository, logger *zap.Logger) *EscrowService {
	return &EscrowService{repo: r, logger: logger}
}

// Hold retiene los fondos del pedido. Idempotente: si ya existe un registro
// para el orderId devuelve el existente sin tocarlo.
func (s *EscrowService) Hold(ctx context.Context, o *model.Order) (*model.EscrowRecord, error) {
	rec := &model.EscrowRecord{
		OrderID:   o.ID,
		PayerID:   o.BuyerID,
		PayeeID:   o.SellerID,
		Amount:    o.Pricing.TotalPrice,
		Currency:  o.Pricing.Currency,
		State:     model.EscrowHeld,
		CreatedAt: time.Now().UTC(),
	}
	stored, err := s.repo.EnsureHeld(ctx, rec)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Release libera los fondos al vendedor. El segundo booleano indica si el
// movimiento ocurrió en esta llamada: la liberación es a lo sumo una vez,
// reintentos devuelven el registro terminal existente sin mover fondos.
func (s *EscrowService) Release(ctx context.Context, orderID string) (*model.EscrowRecord, bool, error) {
	return s.settle(ctx, orderID, model.EscrowReleased)
}

// Cancel devuelve los fondos al comprador, con la misma garantía.
func (s *EscrowService) Cancel(ctx context.Context, orderID string) (*model.EscrowRecord, bool, error) {
	return s.settle(ctx, orderID, model.EscrowCancelled)
}

func (s *EscrowService) settle(ctx context.Context, orderID string, to model.EscrowState) (*model.EscrowRecord, bool, error) {
	rec, err := s.repo.TransitionState(ctx, orderID, []model.EscrowState{model.EscrowHeld, model.EscrowDisputed}, to, "")
	if err == nil {
		metrics.EscrowActionsTotal.WithLabelValues(string(to)).Inc()
		s.logger.Info("fondos de escrow resueltos",
			zap.String("orderId", orderID),
			zap.String("state", string(to)))
		return rec, true, nil
	}
	if !errors.Is(err, repository.ErrEscrowStateGate) {
		return nil, false, err
	}

	// La puerta no abrió: o no existe, o ya está en estado final.
	existing, ferr := s.repo.FindByOrderID(ctx, orderID)
	if ferr != nil {
		if errors.Is(ferr, repository.ErrNotFound) {
			return nil, false, ErrEscrowNotFound
		}
		return nil, false, ferr
	}
	return existing, false, nil
}

// MarkDisputed congela los fondos hasta que ops decida liberar o cancelar.
// Válido desde held; si ya está en disputa es un no-op.
func (s *EscrowService) MarkDisputed(ctx context.Context, orderID, reason string) (*model.EscrowRecord, error) {
	rec, err := s.repo.TransitionState(ctx, orderID, []model.EscrowState{model.EscrowHeld}, model.EscrowDisputed, reason)
	if err == nil {
		metrics.EscrowActionsTotal.WithLabelValues(string(model.EscrowDisputed)).Inc()
		return rec, nil
	}
	if !errors.Is(err, repository.ErrEscrowStateGate) {
		return nil, err
	}

	existing, ferr := s.repo.FindByOrderID(ctx, orderID)
	if ferr != nil {
		if errors.Is(ferr, repository.ErrNotFound) {
			return nil, ErrEscrowNotFound
		}
		return nil, ferr
	}
	if existing.State == model.EscrowDisputed {
		return existing, nil
	}
	// released o cancelled: ya no hay nada que disputar
	return existing, ErrEscrowConflict
}

func (s *EscrowService) GetByOrderID(ctx context.Context, orderID string) (*model.EscrowRecord, error) {
	rec, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEscrowNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListByUser lista los registros donde el usuario es pagador o beneficiario.
func (s *EscrowService) ListByUser(ctx context.Context, userID string) ([]*model.EscrowRecord, error) {
	return s.repo.FindByUser(ctx, userID)
}
