// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sahay-go/internal/model"
)

// DefaultMaxSessions 是每个领域保留的会话数上限，超出时最旧的被驱逐。
const DefaultMaxSessions = 50

// titleMaxRunes 是从首条用户消息派生标题时的总长上限（含省略号）。
const titleMaxRunes = 40

// ErrSessionNotFound 表示指定领域下不存在该会话。
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository 定义了会话持久化的操作接口。
// 每个领域是一个有界集合：最多保留 MaxSessions 条，按 updatedAt 倒序。
// 单设备单进程场景，不支持并发写同一领域集合；实现内部用每领域互斥锁
// 防止多个逻辑调用方交错的读-改-写。
type SessionRepository interface {
	// Create 用首条用户消息新建会话（派生标题、应用驱逐规则）并持久化。
	Create(ctx context.Context, domain model.Domain, firstMessage model.Message, language string) (*model.ChatSession, error)
	// Get 返回指定会话，不存在时返回 ErrSessionNotFound。
	Get(ctx context.Context, domain model.Domain, sessionID string) (*model.ChatSession, error)
	// List 返回领域内全部会话，按 updatedAt 倒序。
	List(ctx context.Context, domain model.Domain) ([]model.ChatSession, error)
	// UpdateMessages 整体替换会话消息并刷新 updatedAt，使其成为最近会话。
	UpdateMessages(ctx context.Context, domain model.Domain, sessionID string, messages []model.Message) error
	// Delete 删除指定会话；会话不存在时是空操作，可安全重试。
	Delete(ctx context.Context, domain model.Domain, sessionID string) error
}

// newSessionID 生成时间戳加随机后缀的会话 id。
func newSessionID() string {
	return fmt.Sprintf("%d_%s", time.Now().UnixNano(), uuid.NewString()[:8])
}

// deriveTitle 从首条用户消息截取标题，总长不超过 40 个字符（含省略号）。
func deriveTitle(firstMessageText string) string {
	runes := []rune(firstMessageText)
	if len(runes) <= titleMaxRunes {
		return firstMessageText
	}
	return string(runes[:titleMaxRunes-3]) + "..."
}
