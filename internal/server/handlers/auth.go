package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tehnologistika/GdeGruz/internal/curators"
	"github.com/Tehnologistika/GdeGruz/internal/security"
	"github.com/Tehnologistika/GdeGruz/internal/server/resp"
	"github.com/Tehnologistika/GdeGruz/internal/store"
)

type AuthHandler struct {
	logger *zap.Logger

	repo    *curators.Repo
	jwtm    *security.JWTManager
	refresh *store.RefreshStore
}

func NewAuthHandler(logger *zap.Logger, repo *curators.Repo, jwtm *security.JWTManager, refresh *store.RefreshStore) *AuthHandler {
	return &AuthHandler{logger: logger, repo: repo, jwtm: jwtm, refresh: refresh}
}

type loginReq struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid payload")
		return
	}

	cur, err := h.repo.FindByPhone(c.Request.Context(), req.Phone)
	if err != nil {
		if !errors.Is(err, curators.ErrNotFound) {
			h.logger.Error("find curator by phone failed", zap.Error(err))
			resp.Error(c, http.StatusInternalServerError, "internal error")
			return
		}
		// Один и тот же ответ на неизвестный телефон и неверный пароль.
		resp.Error(c, http.StatusUnauthorized, "invalid phone or password")
		return
	}
	if err := cur.VerifyPassword(req.Password); err != nil {
		resp.Error(c, http.StatusUnauthorized, "invalid phone or password")
		return
	}

	tokens, refreshClaims, err := h.jwtm.Issue(security.RoleCurator, cur.UserID)
	if err != nil {
		resp.Error(c, http.StatusInternalServerError, "token issue failed")
		return
	}
	if err := h.refresh.Put(c.Request.Context(), strconv.FormatInt(refreshClaims.UserID, 10), refreshClaims.JTI); err != nil {
		h.logger.Warn("refresh token store failed", zap.Error(err))
	}

	resp.OK(c, gin.H{"status": "login", "tokens": tokens, "curator": cur})
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh ротирует пару токенов: старый JTI сжигается, повторное
// предъявление отклоняется.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid payload")
		return
	}

	claims, err := h.jwtm.ParseRefresh(strings.TrimSpace(req.RefreshToken))
	if err != nil {
		resp.Error(c, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	uid := strconv.FormatInt(claims.UserID, 10)
	if err := h.refresh.Consume(c.Request.Context(), uid, claims.JTI); err != nil {
		if errors.Is(err, store.ErrRefreshNotFound) {
			resp.Error(c, http.StatusUnauthorized, "refresh token expired or already used")
			return
		}
		h.logger.Error("refresh token consume failed", zap.Error(err))
		resp.Error(c, http.StatusInternalServerError, "internal error")
		return
	}

	tokens, refreshClaims, err := h.jwtm.Issue(claims.Role, claims.UserID)
	if err != nil {
		resp.Error(c, http.StatusInternalServerError, "token issue failed")
		return
	}
	if err := h.refresh.Put(c.Request.Context(), uid, refreshClaims.JTI); err != nil {
		h.logger.Warn("refresh token store failed", zap.Error(err))
	}

	resp.OK(c, gin.H{"status": "refreshed", "tokens": tokens})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error(c, http.StatusBadRequest, "invalid payload")
		return
	}
	claims, err := h.jwtm.ParseRefresh(strings.TrimSpace(req.RefreshToken))
	if err != nil {
		resp.Error(c, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	_ = h.refresh.Consume(c.Request.Context(), strconv.FormatInt(claims.UserID, 10), claims.JTI)
	resp.OK(c, gin.H{"status": "logout"})
}
