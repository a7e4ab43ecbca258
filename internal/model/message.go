// Package model 包含了应用的数据模型定义。
package model

import "time"

// 消息角色。system 角色只在生成时临时注入，不会被持久化。
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 代表会话中的一条消息。
// 生成完成后即不可变；只有生成中的 assistant 消息会被增量追加内容。
// ID 在单个会话内唯一且单调递增，跨会话不保证全局唯一。
type Message struct {
	ID        int       `json:"id"`
	Role      string    `json:"type"` // "user"、"assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsVoice   bool      `json:"isVoice,omitempty"`
}
