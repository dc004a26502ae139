package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tehnologistika/GdeGruz/internal/drivers"
	"github.com/Tehnologistika/GdeGruz/internal/locations"
	"github.com/Tehnologistika/GdeGruz/internal/server/resp"
)

type DriversHandler struct {
	logger *zap.Logger

	repo   *drivers.Repo
	points *locations.Repo
}

func NewDriversHandler(logger *zap.Logger, repo *drivers.Repo, points *locations.Repo) *DriversHandler {
	return &DriversHandler{logger: logger, repo: repo, points: points}
}

func (h *DriversHandler) List(c *gin.Context) {
	list, err := h.repo.ListActive(c.Request.Context())
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, list)
}

func (h *DriversHandler) Get(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	d, err := h.repo.FindByUserID(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, d)
}

// GetByPhone ищет водителя по номеру в любом формате записи.
func (h *DriversHandler) GetByPhone(c *gin.Context) {
	d, err := h.repo.FindByPhone(c.Request.Context(), c.Param("phone"))
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, d)
}

func (h *DriversHandler) LastLocation(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	p, err := h.points.Last(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, p)
}

// ClearLocations стирает историю точек водителя (запрос на удаление
// данных), не трогая саму учётную запись.
func (h *DriversHandler) ClearLocations(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	if err := h.points.DeleteForUser(c.Request.Context(), id); err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, gin.H{"status": "cleared"})
}

// Purge полностью удаляет водителя и его точки; применяется куратором
// по запросу на удаление данных.
func (h *DriversHandler) Purge(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	if err := h.repo.Purge(c.Request.Context(), id); err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, gin.H{"status": "purged"})
}
