package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"sahay-go/internal/model"
)

// fileSessionRepository 把每个领域的会话集合持久化为一个 JSON 文件。
// create/append/delete 都是对整个领域集合的读-改-写，写入走临时文件加重命名。
type fileSessionRepository struct {
	dir         string
	maxSessions int

	mu    sync.Mutex
	locks map[model.Domain]*sync.Mutex
}

// NewFileSessionRepository 创建基于 JSON 文件的会话仓库。
func NewFileSessionRepository(dir string, maxSessions int) (SessionRepository, error) {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}
	return &fileSessionRepository{
		dir:         dir,
		maxSessions: maxSessions,
		locks:       make(map[model.Domain]*sync.Mutex),
	}, nil
}

// Create 用首条用户消息新建会话并插入到领域集合头部，应用驱逐规则后持久化。
func (r *fileSessionRepository) Create(ctx context.Context, domain model.Domain, firstMessage model.Message, language string) (*model.ChatSession, error) {
	lock := r.domainLock(domain)
	lock.Lock()
	defer lock.Unlock()

	sessions, err := r.load(domain)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := model.ChatSession{
		ID:        newSessionID(),
		Domain:    domain,
		Title:     deriveTitle(firstMessage.Content),
		Messages:  []model.Message{firstMessage},
		CreatedAt: now,
		UpdatedAt: now,
		Language:  language,
	}

	sessions = append([]model.ChatSession{session}, sessions...)
	sessions = evictOldest(sessions, r.maxSessions)

	if err := r.save(domain, sessions); err != nil {
		return nil, err
	}
	return &session, nil
}

// Get 返回指定会话的副本。
func (r *fileSessionRepository) Get(ctx context.Context, domain model.Domain, sessionID string) (*model.ChatSession, error) {
	lock := r.domainLock(domain)
	lock.Lock()
	defer lock.Unlock()

	sessions, err := r.load(domain)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].ID == sessionID {
			s := sessions[i]
			return &s, nil
		}
	}
	return nil, ErrSessionNotFound
}

// List 返回领域内全部会话，按 updatedAt 倒序。
func (r *fileSessionRepository) List(ctx context.Context, domain model.Domain) ([]model.ChatSession, error) {
	lock := r.domainLock(domain)
	lock.Lock()
	defer lock.Unlock()

	sessions, err := r.load(domain)
	if err != nil {
		return nil, err
	}
	sortByUpdatedDesc(sessions)
	return sessions, nil
}

// UpdateMessages 整体替换会话消息、刷新 updatedAt 并把会话移到集合头部。
func (r *fileSessionRepository) UpdateMessages(ctx context.Context, domain model.Domain, sessionID string, messages []model.Message) error {
	lock := r.domainLock(domain)
	lock.Lock()
	defer lock.Unlock()

	sessions, err := r.load(domain)
	if err != nil {
		return err
	}
	for i := range sessions {
		if sessions[i].ID == sessionID {
			updated := sessions[i]
			updated.Messages = messages
			updated.UpdatedAt = time.Now()
			// 移到头部成为最近会话，其余顺序不变
			sessions = append(sessions[:i], sessions[i+1:]...)
			sessions = append([]model.ChatSession{updated}, sessions...)
			return r.save(domain, sessions)
		}
	}
	return ErrSessionNotFound
}

// Delete 删除指定会话；不存在时是空操作。
func (r *fileSessionRepository) Delete(ctx context.Context, domain model.Domain, sessionID string) error {
	lock := r.domainLock(domain)
	lock.Lock()
	defer lock.Unlock()

	sessions, err := r.load(domain)
	if err != nil {
		return err
	}
	kept := sessions[:0]
	for _, s := range sessions {
		if s.ID != sessionID {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(sessions) {
		return nil
	}
	return r.save(domain, kept)
}

func (r *fileSessionRepository) domainLock(domain model.Domain) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[domain]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[domain] = lock
	}
	return lock
}

func (r *fileSessionRepository) path(domain model.Domain) string {
	return filepath.Join(r.dir, fmt.Sprintf("sessions_%s.json", domain))
}

// load 读出领域集合；文件不存在视为空集合而不是错误。
func (r *fileSessionRepository) load(domain model.Domain) ([]model.ChatSession, error) {
	data, err := os.ReadFile(r.path(domain))
	if err != nil {
		if os.IsNotExist(err) {
			return []model.ChatSession{}, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var sessions []model.ChatSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session file: %w", err)
	}
	return sessions, nil
}

// save 原子地重写领域集合文件：先写临时文件再重命名。
func (r *fileSessionRepository) save(domain model.Domain, sessions []model.ChatSession) error {
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	tmp := r.path(domain) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, r.path(domain)); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// evictOldest 按 updatedAt 倒序保留最近的 max 条。
func evictOldest(sessions []model.ChatSession, max int) []model.ChatSession {
	if len(sessions) <= max {
		return sessions
	}
	sortByUpdatedDesc(sessions)
	return sessions[:max]
}

func sortByUpdatedDesc(sessions []model.ChatSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
}
