package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sahay-go/internal/model"
)

func newTestRepo(t *testing.T, maxSessions int) SessionRepository {
	t.Helper()
	repo, err := NewFileSessionRepository(t.TempDir(), maxSessions)
	require.NoError(t, err)
	return repo
}

func userMessage(id int, content string) model.Message {
	return model.Message{ID: id, Role: model.RoleUser, Content: content, Timestamp: time.Now()}
}

func TestCreateAndGetSession(t *testing.T) {
	repo := newTestRepo(t, 0)
	ctx := context.Background()

	created, err := repo.Create(ctx, model.DomainHealth, userMessage(1, "मुझे बुखार है"), "hi")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, model.DomainHealth, created.Domain)
	assert.Equal(t, "मुझे बुखार है", created.Title)
	assert.Equal(t, "hi", created.Language)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := repo.Get(ctx, model.DomainHealth, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, model.RoleUser, got.Messages[0].Role)
}

func TestTitleTruncatedToFortyRunes(t *testing.T) {
	repo := newTestRepo(t, 0)
	ctx := context.Background()

	long := strings.Repeat("A", 50)
	created, err := repo.Create(ctx, model.DomainGeneral, userMessage(1, long), "en")
	require.NoError(t, err)

	assert.Equal(t, 40, len([]rune(created.Title)))
	assert.Equal(t, strings.Repeat("A", 37)+"...", created.Title)

	// 恰好 40 字符的不截断
	exact, err := repo.Create(ctx, model.DomainGeneral, userMessage(1, strings.Repeat("B", 40)), "en")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("B", 40), exact.Title)
}

func TestGetUnknownSession(t *testing.T) {
	repo := newTestRepo(t, 0)

	_, err := repo.Get(context.Background(), model.DomainGeneral, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListEmptyDomain(t *testing.T) {
	repo := newTestRepo(t, 0)

	// 从未写过的领域：文件不存在视为空集合
	sessions, err := repo.List(context.Background(), model.DomainLegal)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestListOrderedByUpdatedAtDesc(t *testing.T) {
	repo := newTestRepo(t, 0)
	ctx := context.Background()

	first, err := repo.Create(ctx, model.DomainGeneral, userMessage(1, "first"), "en")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = repo.Create(ctx, model.DomainGeneral, userMessage(1, "second"), "en")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	// 给最早的会话追加消息，它应当回到列表头部
	err = repo.UpdateMessages(ctx, model.DomainGeneral, first.ID, []model.Message{
		userMessage(1, "first"),
		{ID: 2, Role: model.RoleAssistant, Content: "reply"},
	})
	require.NoError(t, err)

	sessions, err := repo.List(ctx, model.DomainGeneral)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first.ID, sessions[0].ID)
	assert.True(t, sessions[0].UpdatedAt.After(sessions[1].UpdatedAt))
}

func TestUpdateMessagesUnknownSession(t *testing.T) {
	repo := newTestRepo(t, 0)

	err := repo.UpdateMessages(context.Background(), model.DomainGeneral, "missing", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteSession(t *testing.T) {
	repo := newTestRepo(t, 0)
	ctx := context.Background()

	created, err := repo.Create(ctx, model.DomainEducation, userMessage(1, "what is photosynthesis"), "en")
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, model.DomainEducation, created.ID))
	_, err = repo.Get(ctx, model.DomainEducation, created.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// 删除不存在的会话是空操作
	assert.NoError(t, repo.Delete(ctx, model.DomainEducation, created.ID))
	assert.NoError(t, repo.Delete(ctx, model.DomainEducation, "never-existed"))
}

func TestEvictionKeepsNewestFifty(t *testing.T) {
	repo := newTestRepo(t, 0)
	ctx := context.Background()

	var oldest string
	for i := 0; i < DefaultMaxSessions+1; i++ {
		s, err := repo.Create(ctx, model.DomainGeneral, userMessage(1, fmt.Sprintf("question %d", i)), "en")
		require.NoError(t, err)
		if i == 0 {
			oldest = s.ID
		}
	}

	sessions, err := repo.List(ctx, model.DomainGeneral)
	require.NoError(t, err)
	assert.Len(t, sessions, DefaultMaxSessions)
	assert.Equal(t, "question 50", sessions[0].Title)

	_, err = repo.Get(ctx, model.DomainGeneral, oldest)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDomainsAreIsolated(t *testing.T) {
	repo := newTestRepo(t, 0)
	ctx := context.Background()

	created, err := repo.Create(ctx, model.DomainHealth, userMessage(1, "fever"), "en")
	require.NoError(t, err)

	_, err = repo.Get(ctx, model.DomainLegal, created.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	sessions, err := repo.List(ctx, model.DomainLegal)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestPersistedFileFormat(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewFileSessionRepository(dir, 0)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.Create(ctx, model.DomainFrontline, userMessage(1, "triage steps"), "en")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "sessions_frontline.json"))
	require.NoError(t, err)

	var raw []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)
	for _, key := range []string{"id", "domain", "title", "messages", "createdAt", "updatedAt", "language"} {
		assert.Contains(t, raw[0], key)
	}

	// 消息的角色字段持久化为 type
	var messages []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw[0]["messages"], &messages))
	require.Len(t, messages, 1)
	assert.JSONEq(t, `"user"`, string(messages[0]["type"]))
}

func TestSessionIDFormat(t *testing.T) {
	id := newSessionID()
	parts := strings.SplitN(id, "_", 2)
	require.Len(t, parts, 2)
	assert.Len(t, parts[1], 8)
	assert.NotEqual(t, newSessionID(), id)
}
