package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tehnologistika/GdeGruz/internal/documents"
	"github.com/Tehnologistika/GdeGruz/internal/drivers"
	"github.com/Tehnologistika/GdeGruz/internal/locations"
	"github.com/Tehnologistika/GdeGruz/internal/server/resp"
	"github.com/Tehnologistika/GdeGruz/internal/trips"
)

// writeDomainError переводит доменные ошибки в HTTP-ответы единообразно
// для всех хендлеров. Неопознанные ошибки логируются и уходят как 500.
func writeDomainError(c *gin.Context, logger *zap.Logger, err error) {
	var invalid *trips.InvalidTransitionError
	var gate *trips.SoftGateError

	switch {
	case errors.As(err, &gate):
		resp.Confirm(c, gate.Error(), gin.H{
			"phase": gate.Phase,
			"docs":  gate.Docs,
		})
	case errors.As(err, &invalid):
		resp.Error(c, http.StatusConflict, invalid.Error())
	case errors.Is(err, trips.ErrNotFound),
		errors.Is(err, drivers.ErrNotFound),
		errors.Is(err, documents.ErrNotFound),
		errors.Is(err, locations.ErrNotFound):
		resp.Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, trips.ErrValidation),
		errors.Is(err, documents.ErrInvalidType):
		resp.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, trips.ErrForbidden):
		resp.Error(c, http.StatusForbidden, err.Error())
	case errors.Is(err, trips.ErrUnauthorized):
		resp.Error(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, trips.ErrTerminal):
		resp.Error(c, http.StatusConflict, err.Error())
	default:
		logger.Error("unhandled domain error", zap.Error(err))
		resp.Error(c, http.StatusInternalServerError, "internal error")
	}
}
