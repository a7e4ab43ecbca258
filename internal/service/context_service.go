// Package service 包含了应用的业务逻辑层。
package service

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"sahay-go/internal/model"
	"sahay-go/pkg/log"
)

// shortConversationMax：总消息数不超过这个值的会话直接跳过裁剪，
// 常见的短对话不值得为此扫一遍。
const shortConversationMax = 3

// TokenEstimator 估算一段文本的 token 开销。
// 默认实现是 4 字符 ≈ 1 token 的固定启发式——廉价且确定，
// 不要在未确认预算不变式不被破坏的情况下悄悄换成真实分词器。
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// heuristicEstimator 按 ceil(字符数 / 4) 估算。
type heuristicEstimator struct{}

func (heuristicEstimator) EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// tiktokenEstimator 用真实 BPE 编码计数，供对比和调优使用。
type tiktokenEstimator struct {
	encoding *tiktoken.Tiktoken
}

func (e *tiktokenEstimator) EstimateTokens(text string) int {
	return len(e.encoding.Encode(text, nil, nil))
}

// NewEstimator 按配置选择估算器；tiktoken 初始化失败时回退到启发式。
func NewEstimator(kind string) TokenEstimator {
	if kind == "tiktoken" {
		encoding, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Warnf("tiktoken 初始化失败，回退到启发式估算器: %v", err)
			return heuristicEstimator{}
		}
		return &tiktokenEstimator{encoding: encoding}
	}
	return heuristicEstimator{}
}

// ContextService 在每次生成前把增长的会话裁剪到上下文预算内。
type ContextService struct {
	estimator        TokenEstimator
	alwaysKeepLatest bool
}

// NewContextService 创建上下文裁剪服务。
// alwaysKeepLatest 控制最新一条非 system 消息是否无条件保留
//（宁可有一些上下文也不要完全没有上下文的策略开关）。
func NewContextService(estimator TokenEstimator, alwaysKeepLatest bool) *ContextService {
	return &ContextService{estimator: estimator, alwaysKeepLatest: alwaysKeepLatest}
}

// Prune 把消息列表裁剪到 budgetTokens 以内：
//   - system 消息无条件全量保留；
//   - 非 system 消息从最新往最旧累积，第一条放不下的消息连同更旧的全部丢弃；
//   - 结果保持原始时间顺序：system 在前，保留的对话尾部在后；
//   - 总消息数 ≤3 时跳过裁剪原样返回；
//   - alwaysKeepLatest 时最新一条非 system 消息即使单条超预算也保留。
func (s *ContextService) Prune(messages []model.Message, budgetTokens int) []model.Message {
	if len(messages) <= shortConversationMax {
		return messages
	}

	var system []model.Message
	var history []model.Message
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			system = append(system, m)
		} else {
			history = append(history, m)
		}
	}

	kept := make([]model.Message, 0, len(history))
	total := 0
	for i := len(history) - 1; i >= 0; i-- {
		cost := s.estimator.EstimateTokens(history[i].Content)
		if i == len(history)-1 && s.alwaysKeepLatest {
			// 最新消息无条件保留：有用户消息待回答时绝不返回空的对话尾部
			kept = append(kept, history[i])
			total += cost
			continue
		}
		if total+cost > budgetTokens {
			break
		}
		kept = append(kept, history[i])
		total += cost
	}

	result := make([]model.Message, 0, len(system)+len(kept))
	result = append(result, system...)
	// kept 是从新到旧累积的，反转回时间顺序
	for i := len(kept) - 1; i >= 0; i-- {
		result = append(result, kept[i])
	}
	return result
}

// CapMessage 把单条病态超长消息硬截断到 maxTokens 以内。
// 无界的单条消息会把最新消息无条件保留的策略变成突破引擎真实上下文窗口的风险。
func (s *ContextService) CapMessage(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	runes := []rune(text)
	for i := 0; i < 8; i++ {
		est := s.estimator.EstimateTokens(string(runes))
		if est <= maxTokens {
			break
		}
		keep := len(runes) * maxTokens / est
		if keep >= len(runes) {
			keep = len(runes) - 1
		}
		runes = runes[:keep]
	}
	return string(runes)
}

// EstimateTokens 暴露当前估算器，供调用方计算预算。
func (s *ContextService) EstimateTokens(text string) int {
	return s.estimator.EstimateTokens(text)
}
