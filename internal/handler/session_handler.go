package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sahay-go/internal/model"
	"sahay-go/internal/repository"
	"sahay-go/internal/service"
)

// SessionHandler 处理会话历史相关的 API 请求。
type SessionHandler struct {
	service service.SessionService
}

// NewSessionHandler 创建一个新的 SessionHandler。
func NewSessionHandler(service service.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// ListSessions 处理获取领域会话列表的请求。
func (h *SessionHandler) ListSessions(c *gin.Context) {
	domain := model.Domain(c.Query("domain"))

	sessions, err := h.service.ListSessions(c.Request.Context(), domain)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDomain) {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的领域", "data": nil})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取会话列表失败", "data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": sessions})
}

// GetSession 处理获取单个会话的请求。
func (h *SessionHandler) GetSession(c *gin.Context) {
	domain := model.Domain(c.Query("domain"))
	sessionID := c.Param("id")

	session, err := h.service.GetSession(c.Request.Context(), domain, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidDomain):
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的领域", "data": nil})
		case errors.Is(err, repository.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在", "data": nil})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取会话失败", "data": nil})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": session})
}

// DeleteSession 处理删除会话的请求。
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	domain := model.Domain(c.Query("domain"))
	sessionID := c.Param("id")

	if err := h.service.DeleteSession(c.Request.Context(), domain, sessionID); err != nil {
		if errors.Is(err, service.ErrInvalidDomain) {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的领域", "data": nil})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "删除会话失败", "data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}
