package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"sahay-go/internal/model"
	"sahay-go/internal/prompt"
	"sahay-go/internal/repository"
	"sahay-go/pkg/llm"
	"sahay-go/pkg/log"
)

// ErrBusy 表示上一轮生成尚未结束。调用方（UI 层）应在生成期间禁用输入，
// 新的提交被拒绝而不是排队。
var ErrBusy = errors.New("a generation is already in progress")

// ErrInvalidDomain 表示请求中的领域取值不合法。
var ErrInvalidDomain = errors.New("invalid domain")

// TurnInput 是一轮用户提交的输入。SessionID 为空表示新会话。
type TurnInput struct {
	Domain    model.Domain
	SessionID string
	Language  string
	Content   string
	IsVoice   bool
}

// TurnResult 是一轮完整交互的结果。
type TurnResult struct {
	Session         *model.ChatSession
	Assistant       model.Message
	TokensPerSecond float64
	// Stopped 表示生成被用户取消，部分输出已作为最终结果提交
	Stopped bool
	// Persisted 为 false 表示会话写盘失败，界面应提示但对话保持可见
	Persisted bool
}

// ChatService 是把各组件按轮次串起来的门面：追加用户消息、裁剪历史、
// 解析系统指令、驱动流式生成、最后触发持久化。
type ChatService interface {
	// SubmitTurn 处理一轮用户输入，流式输出经 onToken 转发给调用方。
	SubmitTurn(ctx context.Context, in TurnInput, onToken func(token string)) (*TurnResult, error)
	// CancelActive 协作式地停止当前生成；没有进行中的生成时是空操作。
	CancelActive()
}

type chatService struct {
	repo       repository.SessionRepository
	catalog    *prompt.Catalog
	budgeter   *ContextService
	controller *llm.Controller
	sampling   llm.SamplingParams

	// 生成预算 = 上下文窗口 - 输出上限，系统指令由 Prune 单独全量保留
	budgetTokens int

	// 全系统同一时刻只允许一轮生成在途
	busy atomic.Bool
}

// NewChatService 创建会话编排服务。
func NewChatService(
	repo repository.SessionRepository,
	catalog *prompt.Catalog,
	budgeter *ContextService,
	controller *llm.Controller,
	contextWindowTokens, maxOutputTokens int,
	sampling llm.SamplingParams,
) ChatService {
	budget := contextWindowTokens - maxOutputTokens
	if budget <= 0 {
		budget = contextWindowTokens
	}
	return &chatService{
		repo:         repo,
		catalog:      catalog,
		budgeter:     budgeter,
		controller:   controller,
		sampling:     sampling,
		budgetTokens: budget,
	}
}

// SubmitTurn 按轮次顺序执行：追加用户消息 →（新会话时）创建并绑定会话 →
// 解析系统指令 → 裁剪历史 → 追加占位 assistant 消息 → 流式生成 → 持久化。
// token 回调由引擎的读取 goroutine 顺序调用，会话工作副本只有这一个写者。
func (s *chatService) SubmitTurn(ctx context.Context, in TurnInput, onToken func(token string)) (*TurnResult, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)

	if !in.Domain.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDomain, in.Domain)
	}

	// 病态超长的单条消息会突破引擎的真实上下文窗口，先行硬截断
	content := s.budgeter.CapMessage(in.Content, s.budgetTokens)
	if len(content) != len(in.Content) {
		log.Warnf("用户消息超出上下文预算，已截断: session=%s domain=%s", in.SessionID, in.Domain)
	}

	userMsg := model.Message{
		Role:      model.RoleUser,
		Content:   content,
		Timestamp: time.Now(),
		IsVoice:   in.IsVoice,
	}

	var session *model.ChatSession
	var err error
	if in.SessionID == "" {
		// 会话在首条用户消息时创建，而不是进入界面时
		userMsg.ID = 1
		session, err = s.repo.Create(ctx, in.Domain, userMsg, in.Language)
		if err != nil {
			return nil, fmt.Errorf("failed to create session in domain %s: %w", in.Domain, err)
		}
	} else {
		session, err = s.repo.Get(ctx, in.Domain, in.SessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load session %s in domain %s: %w", in.SessionID, in.Domain, err)
		}
		userMsg.ID = session.NextMessageID()
		session.Messages = append(session.Messages, userMsg)
	}

	systemText := s.catalog.InstructionFor(in.Domain, in.Language)

	// 裁剪历史；新用户消息必须在场，即使更旧的历史被丢弃
	pruned := s.budgeter.Prune(session.Messages, s.budgetTokens)
	if len(pruned) == 0 || pruned[len(pruned)-1].ID != userMsg.ID {
		pruned = append(pruned, userMsg)
	}

	history := make([]llm.Message, 0, len(pruned))
	for _, m := range pruned {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	// 占位 assistant 消息：生成期间唯一被增量修改的消息
	assistant := model.Message{
		ID:        userMsg.ID + 1,
		Role:      model.RoleAssistant,
		Timestamp: time.Now(),
	}
	session.Messages = append(session.Messages, assistant)
	idx := len(session.Messages) - 1

	result, genErr := s.controller.Generate(ctx, llm.GenerationRequest{
		SystemInstruction: systemText,
		History:           history,
		Sampling:          s.sampling,
	}, func(token string) {
		session.Messages[idx].Content += token
		if onToken != nil {
			onToken(token)
		}
	})

	if genErr != nil {
		// 不自动重试；部分输出保留在界面上作为尽力而为的结果，
		// 并把当前状态尽力持久化后再上抛
		s.persist(session)
		return nil, fmt.Errorf("generation failed for session %s in domain %s: %w", session.ID, session.Domain, genErr)
	}

	// 用清理后的最终文本定稿（句末截断可能比流式内容短）
	session.Messages[idx].Content = result.Text
	persisted := s.persist(session)

	return &TurnResult{
		Session:         session,
		Assistant:       session.Messages[idx],
		TokensPerSecond: result.TokensPerSecond,
		Stopped:         result.Stopped,
		Persisted:       persisted,
	}, nil
}

// CancelActive 停止当前生成。部分输出会被作为最终结果提交，会话保持一致。
func (s *chatService) CancelActive() {
	s.controller.Cancel()
}

// persist 用后台上下文持久化会话：即使原始请求被取消，
// 已经成功生成的回答也应当保存。写失败只记警告，不回滚内存中的会话状态。
func (s *chatService) persist(session *model.ChatSession) bool {
	err := s.repo.UpdateMessages(context.Background(), session.Domain, session.ID, session.Messages)
	if err != nil {
		log.Errorf("Failed to save session %s in domain %s: %v", session.ID, session.Domain, err)
		return false
	}
	session.UpdatedAt = time.Now()
	return true
}
