package service

import (
	"context"
	"fmt"
	"os"

	"sahay-go/pkg/audio"
	"sahay-go/pkg/log"
	"sahay-go/pkg/whisper"
)

// TranscriptionService 定义了语音输入路径：大小门禁 → WAV 健全性检查 →
// 引擎转写 → 清理校验。返回的文本交给正常的 SubmitTurn 流程（isVoice 置位）。
type TranscriptionService interface {
	TranscribeFile(ctx context.Context, audioPath, language string) (string, error)
}

type transcriptionService struct {
	engine    whisper.Engine
	validator *whisper.Validator
}

// NewTranscriptionService 创建语音转写服务。
func NewTranscriptionService(engine whisper.Engine, validator *whisper.Validator) TranscriptionService {
	return &transcriptionService{engine: engine, validator: validator}
}

// TranscribeFile 转写一个完整的录音文件并返回清理后的文本。
func (s *transcriptionService) TranscribeFile(ctx context.Context, audioPath, language string) (string, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat audio file %s: %w", audioPath, err)
	}

	// 廉价的快速失败：在调用引擎之前先拦掉明显不合理的文件
	if !s.validator.IsAcceptable(info.Size()) {
		if info.Size() < s.validator.MinBytes() {
			return "", fmt.Errorf("audio file %s (%d bytes): %w", audioPath, info.Size(), whisper.ErrAudioTooSmall)
		}
		return "", fmt.Errorf("audio file %s (%d bytes): %w", audioPath, info.Size(), whisper.ErrAudioTooLarge)
	}

	// 录音端写的是 16kHz 单声道 PCM WAV，头部解析失败说明文件已损坏
	wavInfo, err := audio.ReadInfo(audioPath)
	if err != nil {
		return "", fmt.Errorf("invalid recording %s: %w", audioPath, err)
	}
	log.Infow("transcribing audio",
		"path", audioPath,
		"sizeBytes", info.Size(),
		"duration", wavInfo.Duration().String(),
		"sampleRate", wavInfo.SampleRate,
		"language", language,
	)

	result, err := s.engine.Transcribe(ctx, audioPath, whisper.TranscribeOptions{
		LanguageHint:   language,
		SpeedOptimized: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to transcribe %s: %w", audioPath, err)
	}

	text, err := s.validator.Clean(result.Text, language)
	if err != nil {
		return "", fmt.Errorf("transcription of %s produced no speech: %w", audioPath, err)
	}
	return text, nil
}
