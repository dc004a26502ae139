package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tehnologistika/GdeGruz/internal/documents"
	"github.com/Tehnologistika/GdeGruz/internal/locations"
	"github.com/Tehnologistika/GdeGruz/internal/server/mw"
	"github.com/Tehnologistika/GdeGruz/internal/server/resp"
	"github.com/Tehnologistika/GdeGruz/internal/trips"
)

// TripsHandler — дашборд кураторов: CRUD по рейсам, журнал, документы,
// сводка. Переходы статусов идут через trips.Engine, чтение напрямую из
// репозиториев.
type TripsHandler struct {
	logger *zap.Logger

	engine *trips.Engine
	repo   *trips.Repo
	events *trips.EventLog
	docs   *documents.Repo
	points *locations.Repo
}

func NewTripsHandler(
	logger *zap.Logger,
	engine *trips.Engine,
	repo *trips.Repo,
	events *trips.EventLog,
	docs *documents.Repo,
	points *locations.Repo,
) *TripsHandler {
	return &TripsHandler{
		logger: logger,
		engine: engine,
		repo:   repo,
		events: events,
		docs:   docs,
		points: points,
	}
}

type createTripReq struct {
	Phone            string    `json:"phone" binding:"required"`
	LoadingAddress   string    `json:"loading_address" binding:"required"`
	LoadingDate      time.Time `json:"loading_date" binding:"required"`
	UnloadingAddress string    `json:"unloading_address" binding:"required"`
	UnloadingDate    time.Time `json:"unloading_date" binding:"required"`
	Rate             float64   `json:"rate"`
}

func (h *TripsHandler) Create(c *gin.Context) {
	var req createTripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid payload")
		return
	}
	t, err := h.engine.Create(c.Request.Context(), trips.CreateParams{
		Phone:            req.Phone,
		LoadingAddress:   req.LoadingAddress,
		LoadingDate:      req.LoadingDate,
		UnloadingAddress: req.UnloadingAddress,
		UnloadingDate:    req.UnloadingDate,
		Rate:             req.Rate,
		CuratorID:        mw.UserID(c),
	})
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.Created(c, t)
}

func (h *TripsHandler) Get(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid trip id")
		return
	}
	t, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, t)
}

func (h *TripsHandler) GetByNumber(c *gin.Context) {
	number := c.Param("number")
	t, err := h.repo.GetByNumber(c.Request.Context(), number)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, t)
}

// List отдаёт рейсы по фильтрам: ?phone=, ?user_id=, ?status=; без
// фильтров по владельцу возвращает активные рейсы (отчёт диспетчерской).
func (h *TripsHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	var status *trips.Status
	if raw := c.Query("status"); raw != "" {
		st, ok := trips.ParseStatus(raw)
		if !ok {
			resp.Error(c, http.StatusBadRequest, "unknown status "+strconv.Quote(raw))
			return
		}
		status = &st
	}

	switch {
	case c.Query("phone") != "":
		list, err := h.repo.ListByPhone(ctx, c.Query("phone"), status)
		if err != nil {
			writeDomainError(c, h.logger, err)
			return
		}
		resp.OK(c, list)
	case c.Query("user_id") != "":
		uid, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
		if err != nil {
			resp.Error(c, http.StatusBadRequest, "invalid user_id")
			return
		}
		list, err := h.repo.ListByUser(ctx, uid, status)
		if err != nil {
			writeDomainError(c, h.logger, err)
			return
		}
		resp.OK(c, list)
	default:
		list, err := h.repo.ListActive(ctx)
		if err != nil {
			writeDomainError(c, h.logger, err)
			return
		}
		resp.OK(c, list)
	}
}

func (h *TripsHandler) Events(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid trip id")
		return
	}
	if _, err := h.repo.GetByID(c.Request.Context(), id); err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	list, err := h.events.ListByTrip(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, list)
}

func (h *TripsHandler) Documents(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid trip id")
		return
	}
	if _, err := h.repo.GetByID(c.Request.Context(), id); err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	list, err := h.docs.ListByTrip(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, list)
}

// Summary — композит для карточки рейса: сам рейс, журнал, документы и
// последняя точка водителя (если рейс привязан).
func (h *TripsHandler) Summary(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid trip id")
		return
	}
	ctx := c.Request.Context()

	t, err := h.repo.GetByID(ctx, id)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	events, err := h.events.ListByTrip(ctx, id)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	docs, err := h.docs.ListByTrip(ctx, id)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}

	var point *locations.Point
	if t.UserID != nil {
		point, err = h.points.Last(ctx, *t.UserID)
		if err != nil && !errors.Is(err, locations.ErrNotFound) {
			writeDomainError(c, h.logger, err)
			return
		}
	}

	resp.OK(c, gin.H{
		"trip":          t,
		"events":        events,
		"documents":     docs,
		"last_location": point,
	})
}

type advanceReq struct {
	Status string `json:"status" binding:"required"`
	Force  bool   `json:"force"`
}

func (h *TripsHandler) Advance(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid trip id")
		return
	}
	var req advanceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid payload")
		return
	}
	next, ok := trips.ParseStatus(req.Status)
	if !ok {
		resp.Error(c, http.StatusBadRequest, "unknown status "+strconv.Quote(req.Status))
		return
	}

	var t *trips.Trip
	if req.Force {
		t, err = h.engine.ForceAdvance(c.Request.Context(), id, next, mw.UserID(c))
	} else {
		t, err = h.engine.Advance(c.Request.Context(), id, next, mw.UserID(c))
	}
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, t)
}

func (h *TripsHandler) Cancel(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid trip id")
		return
	}
	t, err := h.engine.Cancel(c.Request.Context(), id, mw.UserID(c))
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, t)
}

type updateTripReq struct {
	Phone            *string    `json:"phone"`
	LoadingAddress   *string    `json:"loading_address"`
	LoadingDate      *time.Time `json:"loading_date"`
	UnloadingAddress *string    `json:"unloading_address"`
	UnloadingDate    *time.Time `json:"unloading_date"`
	Rate             *float64   `json:"rate"`
}

func (h *TripsHandler) Update(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid trip id")
		return
	}
	var req updateTripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid payload")
		return
	}
	t, err := h.repo.UpdateDetails(c.Request.Context(), id, trips.DetailsUpdate{
		Phone:            req.Phone,
		LoadingAddress:   req.LoadingAddress,
		LoadingDate:      req.LoadingDate,
		UnloadingAddress: req.UnloadingAddress,
		UnloadingDate:    req.UnloadingDate,
		Rate:             req.Rate,
	})
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	actor := mw.UserID(c)
	h.events.BestEffort(c.Request.Context(), id, trips.EventUpdated, "Реквизиты рейса изменены куратором", &actor, nil)
	resp.OK(c, t)
}

func (h *TripsHandler) RequestLocation(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid trip id")
		return
	}
	if err := h.engine.RequestLocation(c.Request.Context(), id, mw.UserID(c)); err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, gin.H{"status": "location_requested"})
}

func parseID(c *gin.Context, param string) (int64, error) {
	return strconv.ParseInt(c.Param(param), 10, 64)
}
