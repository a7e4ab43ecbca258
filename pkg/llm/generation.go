package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultMaxOutputTokens 是单次生成的输出上限，为受限硬件上的响应延迟调优。
const DefaultMaxOutputTokens = 256

// 覆盖常见模型家族的收尾标记与角色切换标记。
var defaultStopSequences = []string{
	"</s>", "<|end|>", "<|eot_id|>", "<|im_end|>", "<|endoftext|>",
	"user:", "User:", "assistant:", "Assistant:",
}

// 句末标点：拉丁标点与天城文系的句号。
var sentenceTerminators = map[rune]bool{
	'.': true, '!': true, '?': true, '…': true, '।': true, '॥': true,
}

// GenerationRequest 是一次生成调用的临时输入，每轮由调用方重新组装，不持久化。
type GenerationRequest struct {
	SystemInstruction string
	History           []Message
	Sampling          SamplingParams
}

// Result 是一次生成的最终结果。
type Result struct {
	Text            string
	TokensPerSecond float64
	// Stopped 表示这次生成被用户取消，部分输出即为最终结果
	Stopped bool
}

// Controller 驱动一次流式生成：组装提示、调用引擎、累积分块、
// 剥离泄漏的停止序列、命中上限时做句末截断，并支持协作式取消。
// 引擎实例是全进程共享的有状态资源，同一时刻只允许一次生成。
type Controller struct {
	engine          Engine
	maxOutputTokens int

	mu        sync.Mutex
	state     State
	cancelled atomic.Bool
}

// NewController 创建生成控制器。maxOutputTokens 为 0 时使用默认上限。
func NewController(engine Engine, maxOutputTokens int) *Controller {
	if maxOutputTokens <= 0 {
		maxOutputTokens = DefaultMaxOutputTokens
	}
	return &Controller{
		engine:          engine,
		maxOutputTokens: maxOutputTokens,
		state:           StateUninitialized,
	}
}

// Init 初始化底层引擎。失败后状态进入 Failed，恢复需要再次调用 Init。
func (c *Controller) Init(ctx context.Context, modelPath string, profile DeviceProfile) error {
	c.mu.Lock()
	if c.state == StateInitializing || c.state == StateGenerating {
		c.mu.Unlock()
		return fmt.Errorf("text engine is busy in state %s", c.state)
	}
	c.state = StateInitializing
	c.mu.Unlock()

	if err := c.engine.Initialize(ctx, modelPath, profile); err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("failed to initialize text engine: %w", err)
	}
	c.setState(StateReady)
	return nil
}

// State 返回当前引擎生命周期状态。
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Generate 执行一次流式生成。每个到达的分块按顺序转发给 onToken（至多一次），
// 完成后返回清理过的最终文本。被取消时部分输出作为最终结果返回，不算错误。
func (c *Controller) Generate(ctx context.Context, req GenerationRequest, onToken func(token string)) (*Result, error) {
	c.mu.Lock()
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w (state %s)", ErrEngineNotReady, state)
	}
	c.state = StateGenerating
	c.mu.Unlock()
	defer c.setState(StateReady)

	c.cancelled.Store(false)

	messages := make([]Message, 0, len(req.History)+1)
	if req.SystemInstruction != "" {
		messages = append(messages, Message{Role: "system", Content: req.SystemInstruction})
	}
	messages = append(messages, req.History...)

	var buf strings.Builder
	timings, err := c.engine.StreamComplete(ctx, CompletionRequest{
		Messages:        messages,
		MaxOutputTokens: c.maxOutputTokens,
		StopSequences:   defaultStopSequences,
		Sampling:        req.Sampling,
	}, func(token string) {
		buf.WriteString(token)
		if onToken != nil {
			onToken(token)
		}
	})

	if err != nil {
		if c.cancelled.Load() {
			// 用户取消：已累积的部分输出就是最终结果
			return &Result{Text: buf.String(), Stopped: true}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	text := stripStopSequences(buf.String())
	if c.cancelled.Load() {
		return &Result{Text: text, TokensPerSecond: timings.TokensPerSecond, Stopped: true}, nil
	}

	hitCeiling := timings.FinishReason == "length" ||
		(timings.FinishReason == "" && timings.CompletionTokens >= c.maxOutputTokens)
	if hitCeiling {
		text = trimToSentence(text)
	}
	return &Result{Text: text, TokensPerSecond: timings.TokensPerSecond}, nil
}

// Cancel 请求停止当前生成。协作式：引擎决定何时真正停下，
// 已累积的部分输出会作为最终结果提交而不是丢弃。
func (c *Controller) Cancel() {
	c.cancelled.Store(true)
	c.engine.Cancel()
}

// stripStopSequences 截掉泄漏进最终缓冲区的停止序列及其之后的内容。
func stripStopSequences(text string) string {
	cut := len(text)
	for _, stop := range defaultStopSequences {
		if idx := strings.Index(text, stop); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	return strings.TrimRight(text[:cut], " \t\n")
}

// trimToSentence 在生成命中输出上限、且文本不以句末标点结尾时，
// 回退到缓冲区最后 30% 内最后一个句末标点处截断，避免呈现半句话。
// 该窗口内找不到句末标点时原样返回。
func trimToSentence(text string) string {
	runes := []rune(text)
	if len(runes) == 0 {
		return text
	}
	if sentenceTerminators[runes[len(runes)-1]] {
		return text
	}
	// 只在最后 30% 的窗口内找
	threshold := len(runes) * 7 / 10
	for i := len(runes) - 1; i >= threshold; i-- {
		if sentenceTerminators[runes[i]] {
			return string(runes[:i+1])
		}
	}
	return text
}
