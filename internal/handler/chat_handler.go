// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sahay-go/internal/model"
	"sahay-go/internal/repository"
	"sahay-go/internal/service"
	"sahay-go/pkg/llm"
	"sahay-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 仅监听 loopback，由本机 UI 壳连接
	},
}

// chatRequest 是 WebSocket 聊天消息的客户端格式。
type chatRequest struct {
	Type      string `json:"type"` // "chat" 或 "stop"
	Domain    string `json:"domain"`
	SessionID string `json:"sessionId"`
	Language  string `json:"language"`
	Content   string `json:"content"`
	IsVoice   bool   `json:"isVoice"`
}

// ChatHandler 负责处理 WebSocket 聊天连接。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Stop 处理停止当前生成的请求。生成期间 WebSocket 循环阻塞在流式输出上，
// 停止指令走这个独立的 REST 端点才能即时生效。
func (h *ChatHandler) Stop(c *gin.Context) {
	h.chatService.CancelActive()
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}

// Handle 处理一个传入的 WebSocket 连接。
func (h *ChatHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Info("WebSocket 连接已建立")

	// gorilla 的连接不允许并发写，token 帧和控制帧共用一把写锁
	var writeMu sync.Mutex
	writeJSON := func(v interface{}) error {
		b, _ := json.Marshal(v)
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, b)
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var req chatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			_ = writeJSON(map[string]string{"error": "无法解析的消息格式"})
			continue
		}

		if req.Type == "stop" {
			h.chatService.CancelActive()
			_ = writeJSON(map[string]interface{}{
				"type":      "stop",
				"message":   "响应已停止",
				"timestamp": time.Now().UnixMilli(),
			})
			continue
		}

		result, err := h.chatService.SubmitTurn(c.Request.Context(), service.TurnInput{
			Domain:    model.Domain(req.Domain),
			SessionID: req.SessionID,
			Language:  req.Language,
			Content:   req.Content,
			IsVoice:   req.IsVoice,
		}, func(token string) {
			// 每个分块按到达顺序立即下发
			_ = writeJSON(map[string]string{"chunk": token})
		})

		if err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			_ = writeJSON(map[string]string{"error": turnErrorMessage(err)})
			// 错误时也发送 completion 通知，界面据此解锁输入
			_ = writeJSON(completionFrame("failed", req.SessionID, 0, false))
			continue
		}

		status := "finished"
		if result.Stopped {
			status = "stopped"
		}
		_ = writeJSON(completionFrame(status, result.Session.ID, result.TokensPerSecond, !result.Persisted))
	}
}

// completionFrame 组装一条完成通知。
func completionFrame(status, sessionID string, tokensPerSecond float64, persistWarning bool) map[string]interface{} {
	frame := map[string]interface{}{
		"type":            "completion",
		"status":          status,
		"sessionId":       sessionID,
		"tokensPerSecond": tokensPerSecond,
		"timestamp":       time.Now().UnixMilli(),
		"date":            time.Now().Format("2006-01-02T15:04:05"),
	}
	if persistWarning {
		// 写盘失败：对话仍然可见，但提醒用户本轮可能没有保存
		frame["warning"] = "本次对话可能未能保存"
	}
	return frame
}

// turnErrorMessage 把内部错误映射为简短可操作的用户提示，不暴露原始堆栈。
func turnErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrBusy):
		return "上一条回复仍在生成中，请稍候"
	case errors.Is(err, service.ErrInvalidDomain):
		return "无效的领域"
	case errors.Is(err, repository.ErrSessionNotFound):
		return "会话不存在或已被清理"
	case errors.Is(err, llm.ErrEngineNotReady):
		return "模型尚未就绪，请稍后重试"
	default:
		return "获取回复失败，请重试"
	}
}
