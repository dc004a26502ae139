package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tehnologistika/GdeGruz/internal/documents"
	"github.com/Tehnologistika/GdeGruz/internal/server/resp"
)

type DocumentsHandler struct {
	logger *zap.Logger

	repo *documents.Repo
}

func NewDocumentsHandler(logger *zap.Logger, repo *documents.Repo) *DocumentsHandler {
	return &DocumentsHandler{logger: logger, repo: repo}
}

func (h *DocumentsHandler) Get(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid document id")
		return
	}
	doc, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, doc)
}

// List отдаёт документы водителя: ?user_id= обязателен, ?doc_type= и
// ?trip_id= опциональны.
func (h *DocumentsHandler) List(c *gin.Context) {
	uid, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid user_id")
		return
	}

	var docType *string
	if raw := c.Query("doc_type"); raw != "" {
		if !documents.ValidType(raw) {
			resp.Error(c, http.StatusBadRequest, "unknown doc_type "+strconv.Quote(raw))
			return
		}
		docType = &raw
	}
	var tripID *int64
	if raw := c.Query("trip_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			resp.Error(c, http.StatusBadRequest, "invalid trip_id")
			return
		}
		tripID = &id
	}

	list, err := h.repo.ListByUser(c.Request.Context(), uid, docType, tripID)
	if err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, list)
}

type rebindDocReq struct {
	TripID int64 `json:"trip_id" binding:"required"`
}

// Rebind переносит документ на другой рейс (автопривязка промахнулась).
func (h *DocumentsHandler) Rebind(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid document id")
		return
	}
	var req rebindDocReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.repo.RebindTrip(c.Request.Context(), id, req.TripID); err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, gin.H{"status": "rebound"})
}

func (h *DocumentsHandler) Delete(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid document id")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		writeDomainError(c, h.logger, err)
		return
	}
	resp.OK(c, gin.H{"status": "deleted"})
}
