package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sahay-go/internal/model"
	"sahay-go/internal/prompt"
	"sahay-go/internal/repository"
	"sahay-go/pkg/llm"
)

// scriptedEngine 按脚本逐块回调的内存引擎，记录收到的请求供断言。
type scriptedEngine struct {
	tokens    []string
	streamErr error
	cancelled atomic.Bool
	lastReq   llm.CompletionRequest
}

func (e *scriptedEngine) Initialize(ctx context.Context, modelPath string, profile llm.DeviceProfile) error {
	return nil
}

func (e *scriptedEngine) StreamComplete(ctx context.Context, req llm.CompletionRequest, onToken func(string)) (*llm.Timings, error) {
	e.lastReq = req
	n := 0
	for _, tok := range e.tokens {
		if e.cancelled.Load() {
			return nil, context.Canceled
		}
		// 模拟真实生成的逐块延迟
		time.Sleep(time.Millisecond)
		onToken(tok)
		n++
	}
	if e.streamErr != nil {
		return nil, e.streamErr
	}
	return &llm.Timings{TokensPerSecond: 6.0, CompletionTokens: n, FinishReason: "stop"}, nil
}

func (e *scriptedEngine) Cancel() {
	e.cancelled.Store(true)
}

func newTestChatService(t *testing.T, engine *scriptedEngine) (ChatService, repository.SessionRepository) {
	t.Helper()
	repo, err := repository.NewFileSessionRepository(t.TempDir(), 0)
	require.NoError(t, err)

	controller := llm.NewController(engine, 256)
	require.NoError(t, controller.Init(context.Background(), "fake.gguf", llm.DeviceProfile{}))

	budgeter := NewContextService(heuristicEstimator{}, true)
	svc := NewChatService(repo, prompt.NewCatalog(), budgeter, controller, 2048, 256, llm.SamplingParams{})
	return svc, repo
}

func TestSubmitTurnCreatesSessionAndPersists(t *testing.T) {
	engine := &scriptedEngine{tokens: []string{"Hi", " there", ", how can I help?"}}
	svc, repo := newTestChatService(t, engine)

	var streamed []string
	result, err := svc.SubmitTurn(context.Background(), TurnInput{
		Domain:   model.DomainGeneral,
		Language: "en",
		Content:  "Hello",
	}, func(tok string) {
		streamed = append(streamed, tok)
	})
	require.NoError(t, err)

	assert.Equal(t, engine.tokens, streamed)
	assert.Equal(t, "Hi there, how can I help?", result.Assistant.Content)
	assert.Equal(t, model.RoleAssistant, result.Assistant.Role)
	assert.InDelta(t, 6.0, result.TokensPerSecond, 0.001)
	assert.False(t, result.Stopped)
	assert.True(t, result.Persisted)

	// 首条用户消息成为会话标题；消息编号从 1 开始连续
	session := result.Session
	assert.Equal(t, "Hello", session.Title)
	require.Len(t, session.Messages, 2)
	assert.Equal(t, 1, session.Messages[0].ID)
	assert.Equal(t, model.RoleUser, session.Messages[0].Role)
	assert.Equal(t, 2, session.Messages[1].ID)

	// 系统指令进入引擎请求但不进入持久化的会话
	require.NotEmpty(t, engine.lastReq.Messages)
	assert.Equal(t, "system", engine.lastReq.Messages[0].Role)
	assert.Contains(t, engine.lastReq.Messages[0].Content, "English")

	loaded, err := repo.Get(context.Background(), model.DomainGeneral, session.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "Hi there, how can I help?", loaded.Messages[1].Content)
	assert.True(t, loaded.UpdatedAt.After(loaded.CreatedAt))
	for _, m := range loaded.Messages {
		assert.NotEqual(t, model.RoleSystem, m.Role)
	}
}

func TestSubmitTurnContinuesExistingSession(t *testing.T) {
	engine := &scriptedEngine{tokens: []string{"answer one"}}
	svc, _ := newTestChatService(t, engine)
	ctx := context.Background()

	first, err := svc.SubmitTurn(ctx, TurnInput{Domain: model.DomainEducation, Language: "en", Content: "What is water?"}, nil)
	require.NoError(t, err)

	engine.tokens = []string{"answer two"}
	second, err := svc.SubmitTurn(ctx, TurnInput{
		Domain:    model.DomainEducation,
		SessionID: first.Session.ID,
		Language:  "en",
		Content:   "And ice?",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Session.ID, second.Session.ID)
	require.Len(t, second.Session.Messages, 4)
	assert.Equal(t, 3, second.Session.Messages[2].ID)
	assert.Equal(t, 4, second.Session.Messages[3].ID)
	assert.Equal(t, "answer two", second.Session.Messages[3].Content)
	// 标题保持首轮内容不变
	assert.Equal(t, "What is water?", second.Session.Title)
}

func TestSubmitTurnRejectsConcurrentTurn(t *testing.T) {
	engine := &scriptedEngine{tokens: []string{"a", "b", "c"}}
	svc, _ := newTestChatService(t, engine)
	ctx := context.Background()

	var nestedErr error
	_, err := svc.SubmitTurn(ctx, TurnInput{Domain: model.DomainGeneral, Language: "en", Content: "hi"}, func(tok string) {
		if nestedErr == nil {
			_, nestedErr = svc.SubmitTurn(ctx, TurnInput{Domain: model.DomainGeneral, Language: "en", Content: "again"}, nil)
		}
	})
	require.NoError(t, err)
	assert.ErrorIs(t, nestedErr, ErrBusy)
}

func TestSubmitTurnRejectsInvalidDomain(t *testing.T) {
	svc, _ := newTestChatService(t, &scriptedEngine{})

	_, err := svc.SubmitTurn(context.Background(), TurnInput{Domain: "astrology", Language: "en", Content: "hi"}, nil)
	assert.ErrorIs(t, err, ErrInvalidDomain)
}

func TestSubmitTurnUnknownSession(t *testing.T) {
	svc, _ := newTestChatService(t, &scriptedEngine{tokens: []string{"x"}})

	_, err := svc.SubmitTurn(context.Background(), TurnInput{
		Domain:    model.DomainGeneral,
		SessionID: "missing",
		Language:  "en",
		Content:   "hi",
	}, nil)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestCancelActiveCommitsPartialReply(t *testing.T) {
	engine := &scriptedEngine{tokens: []string{"part ", "one ", "never ", "arrives"}}
	svc, repo := newTestChatService(t, engine)

	count := 0
	result, err := svc.SubmitTurn(context.Background(), TurnInput{
		Domain:   model.DomainHealth,
		Language: "hi",
		Content:  "बुखार में क्या करें",
	}, func(tok string) {
		count++
		if count == 2 {
			svc.CancelActive()
		}
	})
	require.NoError(t, err)

	assert.True(t, result.Stopped)
	assert.Equal(t, "part one ", result.Assistant.Content)

	// 部分输出作为最终结果持久化，会话保持一致
	loaded, err := repo.Get(context.Background(), model.DomainHealth, result.Session.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "part one ", loaded.Messages[1].Content)
}

func TestSubmitTurnPersistsOnEngineFailure(t *testing.T) {
	engine := &scriptedEngine{tokens: []string{"partial "}, streamErr: errors.New("sidecar died")}
	svc, repo := newTestChatService(t, engine)

	_, err := svc.SubmitTurn(context.Background(), TurnInput{
		Domain:   model.DomainGeneral,
		Language: "en",
		Content:  "hello",
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrGenerationFailed)

	// 失败前的状态已尽力落盘：用户消息和未完成的占位回复都在
	sessions, err := repo.List(context.Background(), model.DomainGeneral)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Len(t, sessions[0].Messages, 2)
	assert.Equal(t, "partial ", sessions[0].Messages[1].Content)
}
