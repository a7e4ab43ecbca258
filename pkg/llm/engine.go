// Package llm provides the local text-generation engine binding and the
// streaming generation controller built on top of it.
package llm

import (
	"context"
	"errors"
)

// 引擎生命周期状态：Uninitialized → Initializing → Ready → Generating → Ready 循环，
// Initializing 失败进入 Failed。Failed 对该实例是终态，恢复需要重新初始化。
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateGenerating    State = "generating"
	StateFailed        State = "failed"
)

var (
	// ErrEngineNotReady 在引擎未完成初始化时调用生成接口返回。
	ErrEngineNotReady = errors.New("text engine is not ready")
	// ErrModelFileMissing 在初始化时找不到模型权重文件返回，对该实例是致命错误。
	ErrModelFileMissing = errors.New("model file missing")
	// ErrGenerationFailed 包装生成过程中来自引擎的错误，不会自动重试。
	ErrGenerationFailed = errors.New("generation failed")
)

// DeviceProfile 是交给引擎初始化的设备档位，进程生命周期内固定。
type DeviceProfile struct {
	ContextWindowTokens int
	BatchSize           int
	ThreadCount         int
	GPULayers           int
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SamplingParams 控制生成行为
type SamplingParams struct {
	Temperature *float64
	TopP        *float64
}

// CompletionRequest 是交给引擎的一次流式补全请求。
type CompletionRequest struct {
	Messages        []Message
	MaxOutputTokens int
	StopSequences   []string
	Sampling        SamplingParams
}

// Timings 汇总一次补全的引擎侧统计。
type Timings struct {
	TokensPerSecond  float64
	CompletionTokens int
	// FinishReason 为 "stop"（自然结束）或 "length"（命中输出上限）
	FinishReason string
}

// Engine 抽象本地文本生成引擎。token 回调在引擎的读取 goroutine 中
// 按到达顺序同步调用，每个分块至多一次。
type Engine interface {
	Initialize(ctx context.Context, modelPath string, profile DeviceProfile) error
	StreamComplete(ctx context.Context, req CompletionRequest, onToken func(token string)) (*Timings, error)
	// Cancel 协作式地停止当前进行中的补全；由引擎决定何时真正停下。
	Cancel()
}
