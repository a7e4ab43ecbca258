package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sahay-go/internal/service"
	"sahay-go/pkg/log"
	"sahay-go/pkg/whisper"
)

// transcribeRequest 是转写请求体。录音由 UI 壳的原生录音模块写入缓存目录，
// 这里只接收文件路径。
type transcribeRequest struct {
	AudioPath string `json:"audioPath" binding:"required"`
	Language  string `json:"language"`
}

// TranscribeHandler 处理语音转写请求。
type TranscribeHandler struct {
	service service.TranscriptionService
}

// NewTranscribeHandler 创建一个新的 TranscribeHandler。
func NewTranscribeHandler(service service.TranscriptionService) *TranscribeHandler {
	return &TranscribeHandler{service: service}
}

// Transcribe 转写一个完整的录音文件。
func (h *TranscribeHandler) Transcribe(c *gin.Context) {
	var req transcribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求参数", "data": nil})
		return
	}

	text, err := h.service.TranscribeFile(c.Request.Context(), req.AudioPath, req.Language)
	if err != nil {
		log.Errorf("转写失败: %v", err)
		switch {
		case errors.Is(err, whisper.ErrAudioTooSmall):
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "录音太短，请重新录制", "data": nil})
		case errors.Is(err, whisper.ErrAudioTooLarge):
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "录音文件过大", "data": nil})
		case errors.Is(err, whisper.ErrNoSpeechDetected):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"code": http.StatusUnprocessableEntity, "message": "未检测到语音，请重试", "data": nil})
		case errors.Is(err, whisper.ErrEngineNotReady):
			c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": "语音模型尚未就绪，请稍后重试", "data": nil})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "转写失败，请重试", "data": nil})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"text": text}})
}
