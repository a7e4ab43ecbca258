package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sahay-go/pkg/llm"
	"sahay-go/pkg/whisper"
)

// StatusHandler 对外汇报两个引擎的生命周期状态，供下载/初始化界面轮询。
type StatusHandler struct {
	controller   *llm.Controller
	speechEngine whisper.Engine
	llmModelPath string
	sttModelPath string
}

// NewStatusHandler 创建一个新的 StatusHandler。
func NewStatusHandler(controller *llm.Controller, speechEngine whisper.Engine, llmModelPath, sttModelPath string) *StatusHandler {
	return &StatusHandler{
		controller:   controller,
		speechEngine: speechEngine,
		llmModelPath: llmModelPath,
		sttModelPath: sttModelPath,
	}
}

// EngineStatus 返回两个引擎的当前状态。
func (h *StatusHandler) EngineStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"text": gin.H{
				"state":     h.controller.State(),
				"modelPath": h.llmModelPath,
			},
			"speech": gin.H{
				"state":     h.speechEngine.State(),
				"modelPath": h.sttModelPath,
			},
		},
	})
}
