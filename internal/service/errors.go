package service

import "errors"

// Errores de negocio exportados (los mapea el controller a códigos HTTP).
var (
	ErrOrderNotFound      = errors.New("pedido de frete no encontrado")
	ErrForbidden          = errors.New("sin permiso sobre este pedido")
	ErrValidation         = errors.New("datos inválidos")
	ErrNotDelivered       = errors.New("el pedido debe estar entregado para el cierre")
	ErrClosureNotDrafted  = errors.New("no hay borrador de cierre generado")
	ErrClosureNotConfirm  = errors.New("cierre no confirmado")
	ErrAlreadyRated       = errors.New("el usuario ya calificó este pedido")
	ErrEscrowNotFound     = errors.New("registro de escrow no encontrado")
	ErrEscrowConflict     = errors.New("el escrow ya está en estado final")
	ErrConcurrentConflict = errors.New("conflicto de concurrencia, reintentar")
)
