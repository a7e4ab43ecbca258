package model

import "time"

// Domain 是会话归属的主题领域，一个会话只属于一个领域。
type Domain string

const (
	DomainGeneral   Domain = "general"
	DomainEducation Domain = "education"
	DomainHealth    Domain = "health"
	DomainLegal     Domain = "legal"
	DomainFrontline Domain = "frontline"
)

// AllDomains 按固定顺序列出全部领域。
var AllDomains = []Domain{DomainGeneral, DomainEducation, DomainHealth, DomainLegal, DomainFrontline}

// Valid 判断领域取值是否合法。
func (d Domain) Valid() bool {
	switch d {
	case DomainGeneral, DomainEducation, DomainHealth, DomainLegal, DomainFrontline:
		return true
	}
	return false
}

// ChatSession 代表一个领域内持久化的会话。
// UpdatedAt 在每次持久化变更时更新。
type ChatSession struct {
	ID        string    `json:"id"`
	Domain    Domain    `json:"domain"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Language  string    `json:"language"`
}

// NextMessageID 返回会话内下一条消息的自增 id。
func (s *ChatSession) NextMessageID() int {
	if len(s.Messages) == 0 {
		return 1
	}
	return s.Messages[len(s.Messages)-1].ID + 1
}
