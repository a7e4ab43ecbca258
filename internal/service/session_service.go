package service

import (
	"context"
	"fmt"

	"sahay-go/internal/model"
	"sahay-go/internal/repository"
)

// SessionService 定义了会话管理的业务逻辑接口，供界面的历史列表使用。
type SessionService interface {
	ListSessions(ctx context.Context, domain model.Domain) ([]model.ChatSession, error)
	GetSession(ctx context.Context, domain model.Domain, sessionID string) (*model.ChatSession, error)
	DeleteSession(ctx context.Context, domain model.Domain, sessionID string) error
}

type sessionService struct {
	repo repository.SessionRepository
}

// NewSessionService 创建一个新的 SessionService。
func NewSessionService(repo repository.SessionRepository) SessionService {
	return &sessionService{repo: repo}
}

// ListSessions 返回领域内全部会话，按最近更新倒序。
func (s *sessionService) ListSessions(ctx context.Context, domain model.Domain) ([]model.ChatSession, error) {
	if !domain.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	return s.repo.List(ctx, domain)
}

// GetSession 返回指定会话。
func (s *sessionService) GetSession(ctx context.Context, domain model.Domain, sessionID string) (*model.ChatSession, error) {
	if !domain.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	return s.repo.Get(ctx, domain, sessionID)
}

// DeleteSession 删除指定会话（用户显式操作）。
func (s *sessionService) DeleteSession(ctx context.Context, domain model.Domain, sessionID string) error {
	if !domain.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	return s.repo.Delete(ctx, domain, sessionID)
}
