package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tehnologistika/GdeGruz/internal/documents"
	"github.com/Tehnologistika/GdeGruz/internal/drivers"
	"github.com/Tehnologistika/GdeGruz/internal/locations"
	"github.com/Tehnologistika/GdeGruz/internal/server/resp"
	"github.com/Tehnologistika/GdeGruz/internal/store"
	"github.com/Tehnologistika/GdeGruz/internal/trips"
)

// IngestHandler — приём данных от транспортного слоя (бота): телефон,
// геопозиция, действия водителя, документы. Авторизация общим клиентским
// токеном, user_id приходит в теле от доверенного транспорта.
type IngestHandler struct {
	logger *zap.Logger

	engine      *trips.Engine
	repo        *trips.Repo
	drivers     *drivers.Repo
	docs        *documents.Repo
	points      *locations.Repo
	escalations *store.EscalationStore
}

func NewIngestHandler(
	logger *zap.Logger,
	engine *trips.Engine,
	repo *trips.Repo,
	driversRepo *drivers.Repo,
	docs *documents.Repo,
	points *locations.Repo,
	escalations *store.EscalationStore,
) *IngestHandler {
	return &IngestHandler{
		logger:      logger,
		engine:      engine,
		repo:        repo,
		drivers:     driversRepo,
		docs:        docs,
		points:      points,
		escalations: escalations,
	}
}

type sharePhoneReq struct {
	UserID int64   `json:"user_id" binding:"required"`
	Phone  string  `json:"phone" binding:"required"`
	Name   *string `json:"name"`
}

// SharePhone — регистрация водителя по контакту из бота: апсерт
// справочника и перепривязка всех непривязанных рейсов на этот номер.
func (h *IngestHandler) SharePhone(c *gin.Context) {
	var req sharePhoneReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid payload")
		return
	}
	ctx := c.Request.Context()

	if err := h.drivers.UpsertPhone(ctx, req.UserID, req.Phone, req.Name); err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	bound, err := h.engine.BindRegistered(ctx, req.UserID, req.Phone)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, gin.H{"status": "registered", "bound_trips": bound})
}

type shareLocationReq struct {
	UserID int64 `json:"user_id" binding:"required"`
	// Указатели: нулевая широта и долгота — валидные координаты.
	Lat        *float64   `json:"lat" binding:"required"`
	Lon        *float64   `json:"lon" binding:"required"`
	RecordedAt *time.Time `json:"recorded_at"`
}

func (h *IngestHandler) ShareLocation(c *gin.Context) {
	var req shareLocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid payload")
		return
	}
	if *req.Lat < -90 || *req.Lat > 90 || *req.Lon < -180 || *req.Lon > 180 {
		resp.Error(c, http.StatusBadRequest, "coordinates out of range")
		return
	}
	ctx := c.Request.Context()

	// Точки принимаются только при включённом трекинге: незарегистрированные
	// и остановленные id не копят историю.
	active, err := h.drivers.IsActive(ctx, req.UserID)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	if !active {
		resp.Error(c, http.StatusConflict, "tracking is disabled for this driver")
		return
	}

	recordedAt := time.Now().UTC()
	if req.RecordedAt != nil {
		recordedAt = req.RecordedAt.UTC()
	}
	if err := h.points.Save(ctx, req.UserID, *req.Lat, *req.Lon, recordedAt); err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, gin.H{"status": "saved"})
}

type driverActionReq struct {
	UserID int64  `json:"user_id" binding:"required"`
	TripID int64  `json:"trip_id" binding:"required"`
	Action string `json:"action" binding:"required"` // статус или cancel
	Force  bool   `json:"force"`
}

// DriverAction проводит переход от имени водителя; движок сам проверит,
// что рейс привязан к его номеру.
func (h *IngestHandler) DriverAction(c *gin.Context) {
	var req driverActionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid payload")
		return
	}
	ctx := c.Request.Context()

	if req.Action == string(trips.StatusCancelled) {
		t, err := h.engine.Cancel(ctx, req.TripID, req.UserID)
		if err != nil {
			writeDomainError(c, h.logger, err)
			return
		}
		resp.OK(c, t)
		return
	}

	next, ok := trips.ParseStatus(req.Action)
	if !ok {
		resp.Error(c, http.StatusBadRequest, "unknown action "+strconv.Quote(req.Action))
		return
	}
	var (
		t   *trips.Trip
		err error
	)
	if req.Force {
		t, err = h.engine.ForceAdvance(ctx, req.TripID, next, req.UserID)
	} else {
		t, err = h.engine.Advance(ctx, req.TripID, next, req.UserID)
	}
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, t)
}

type uploadDocumentReq struct {
	UserID        int64   `json:"user_id" binding:"required"`
	TripID        *int64  `json:"trip_id"`
	DocType       string  `json:"doc_type" binding:"required"`
	FileReference string  `json:"file_reference" binding:"required"`
	FilePath      *string `json:"file_path"`
}

func (h *IngestHandler) UploadDocument(c *gin.Context) {
	var req uploadDocumentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid payload")
		return
	}
	doc, err := h.docs.Save(c.Request.Context(), documents.SaveParams{
		UserID:        req.UserID,
		TripID:        req.TripID,
		DocType:       req.DocType,
		FileReference: req.FileReference,
		FilePath:      req.FilePath,
	})
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.Created(c, doc)
}

type setNameReq struct {
	UserID int64  `json:"user_id" binding:"required"`
	Name   string `json:"name" binding:"required"`
}

func (h *IngestHandler) SetName(c *gin.Context) {
	var req setNameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.drivers.SetName(c.Request.Context(), req.UserID, req.Name); err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, gin.H{"status": "saved"})
}

type trackingReq struct {
	UserID int64 `json:"user_id" binding:"required"`
	Active *bool `json:"active" binding:"required"`
}

// Tracking включает либо выключает наблюдение за водителем. Возобновление
// стирает старые точки, чтобы часы молчания стартовали заново.
func (h *IngestHandler) Tracking(c *gin.Context) {
	var req trackingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid payload")
		return
	}
	ctx := c.Request.Context()
	if err := h.drivers.SetActive(ctx, req.UserID, *req.Active); err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	// окно молчания начинается заново, стухшее подавление не нужно
	if err := h.escalations.Clear(ctx, req.UserID); err != nil {
		h.logger.Warn("escalation suppression clear failed", zap.Int64("user_id", req.UserID), zap.Error(err))
	}
	resp.OK(c, gin.H{"status": "tracking", "active": *req.Active})
}

// ActiveTrip — текущий незавершённый рейс водителя; бот показывает его в
// главном меню.
func (h *IngestHandler) ActiveTrip(c *gin.Context) {
	uid, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid user_id")
		return
	}
	t, err := h.repo.ActiveForUser(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, trips.ErrNotFound) {
			resp.OK(c, nil)
			return
		}
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, t)
}
