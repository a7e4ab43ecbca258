// Package whisper provides the local speech-to-text engine binding and the
// transcript validation logic applied to its raw output.
package whisper

import (
	"context"
	"errors"
)

// 引擎生命周期状态，与文本引擎保持同一套语义。
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

var (
	// ErrEngineNotReady 在引擎未完成初始化时发起转写返回。
	ErrEngineNotReady = errors.New("speech engine is not ready")
	// ErrModelFileMissing 在初始化时找不到模型权重文件返回。
	ErrModelFileMissing = errors.New("model file missing")
	// ErrNoSpeechDetected 表示清理后与原始文本都为空，调用方应提示用户重新录音。
	ErrNoSpeechDetected = errors.New("no speech detected")
	// ErrAudioTooSmall / ErrAudioTooLarge 在调用引擎之前由大小门禁快速拒绝。
	ErrAudioTooSmall = errors.New("audio file too small")
	ErrAudioTooLarge = errors.New("audio file too large")
)

// TranscribeOptions 控制一次完整文件转写。
type TranscribeOptions struct {
	// LanguageHint 为空时由引擎自动检测语言
	LanguageHint string
	// SpeedOptimized 牺牲部分精度换取速度（束宽收窄）
	SpeedOptimized bool
}

// Segment 是转写结果中的一个时间片段。
type Segment struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start"`
	EndTime   float64 `json:"end"`
}

// TranscribeResult 是一次完整文件转写的原始输出。
type TranscribeResult struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments,omitempty"`
}

// Engine 抽象本地语音识别引擎，只支持完整文件转写，不支持实时流。
type Engine interface {
	Initialize(ctx context.Context, modelPath string) error
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (*TranscribeResult, error)
	State() State
}
