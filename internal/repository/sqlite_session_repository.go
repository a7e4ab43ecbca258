package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sahay-go/internal/model"
)

// sessionRecord 是会话在 SQLite 中的行格式，消息序列整体存为 JSON 列。
type sessionRecord struct {
	ID        string `gorm:"primaryKey"`
	Domain    string `gorm:"index;not null"`
	Title     string `gorm:"not null"`
	Language  string
	Messages  []byte `gorm:"type:blob"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

func (sessionRecord) TableName() string {
	return "chat_sessions"
}

// sqliteSessionRepository 是 SessionRepository 的嵌入式数据库实现，
// 契约与文件实现完全一致（同样的驱逐规则和排序语义）。
type sqliteSessionRepository struct {
	db          *gorm.DB
	maxSessions int
}

// NewSQLiteSessionRepository 打开（必要时建表）SQLite 会话仓库。
func NewSQLiteSessionRepository(path string, maxSessions int) (SessionRepository, error) {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	if err := db.AutoMigrate(&sessionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate session database: %w", err)
	}
	return &sqliteSessionRepository{db: db, maxSessions: maxSessions}, nil
}

// Create 新建会话并应用每领域的数量上限。
func (r *sqliteSessionRepository) Create(ctx context.Context, domain model.Domain, firstMessage model.Message, language string) (*model.ChatSession, error) {
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

	record, err := toRecord(&session)
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return evictOldestRows(tx, string(domain), r.maxSessions)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Get 返回指定会话。
func (r *sqliteSessionRepository) Get(ctx context.Context, domain model.Domain, sessionID string) (*model.ChatSession, error) {
	var record sessionRecord
	err := r.db.WithContext(ctx).
		Where("domain = ? AND id = ?", string(domain), sessionID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return fromRecord(&record)
}

// List 返回领域内全部会话，按 updatedAt 倒序。
func (r *sqliteSessionRepository) List(ctx context.Context, domain model.Domain) ([]model.ChatSession, error) {
	var records []sessionRecord
	err := r.db.WithContext(ctx).
		Where("domain = ?", string(domain)).
		Order("updated_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sessions := make([]model.ChatSession, 0, len(records))
	for i := range records {
		s, err := fromRecord(&records[i])
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, nil
}

// UpdateMessages 整体替换会话消息并刷新 updatedAt。
func (r *sqliteSessionRepository) UpdateMessages(ctx context.Context, domain model.Domain, sessionID string, messages []model.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	result := r.db.WithContext(ctx).
		Model(&sessionRecord{}).
		Where("domain = ? AND id = ?", string(domain), sessionID).
		Updates(map[string]interface{}{
			"messages":   data,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete 删除指定会话；不存在时是空操作。
func (r *sqliteSessionRepository) Delete(ctx context.Context, domain model.Domain, sessionID string) error {
	err := r.db.WithContext(ctx).
		Where("domain = ? AND id = ?", string(domain), sessionID).
		Delete(&sessionRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// evictOldestRows 删除领域内按 updatedAt 倒序第 max 条之后的所有会话。
func evictOldestRows(tx *gorm.DB, domain string, max int) error {
	var ids []string
	err := tx.Model(&sessionRecord{}).
		Where("domain = ?", domain).
		Order("updated_at DESC").
		Pluck("id", &ids).Error
	if err != nil {
		return fmt.Errorf("failed to query stale sessions: %w", err)
	}
	if len(ids) <= max {
		return nil
	}
	staleIDs := ids[max:]
	if err := tx.Where("id IN ?", staleIDs).Delete(&sessionRecord{}).Error; err != nil {
		return fmt.Errorf("failed to evict stale sessions: %w", err)
	}
	return nil
}

func toRecord(s *model.ChatSession) (*sessionRecord, error) {
	data, err := json.Marshal(s.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal messages: %w", err)
	}
	return &sessionRecord{
		ID:        s.ID,
		Domain:    string(s.Domain),
		Title:     s.Title,
		Language:  s.Language,
		Messages:  data,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}, nil
}

func fromRecord(r *sessionRecord) (*model.ChatSession, error) {
	var messages []model.Message
	if len(r.Messages) > 0 {
		if err := json.Unmarshal(r.Messages, &messages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
		}
	}
	return &model.ChatSession{
		ID:        r.ID,
		Domain:    model.Domain(r.Domain),
		Title:     r.Title,
		Messages:  messages,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Language:  r.Language,
	}, nil
}
