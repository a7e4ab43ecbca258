package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sahay-go/pkg/log"
)

// whisperClient 通过 loopback HTTP 访问本机的 whisper.cpp server 侧车进程。
type whisperClient struct {
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	state State
}

// NewWhisperClient 创建一个新的本地语音识别引擎客户端。
// timeout 给整个转写请求兜底：完整文件转写没有内部的输出上限可依赖。
func NewWhisperClient(baseURL string, timeout time.Duration) Engine {
	return &whisperClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		state:   StateUninitialized,
	}
}

// Initialize 校验模型权重文件存在并等待侧车进程就绪。
func (c *whisperClient) Initialize(ctx context.Context, modelPath string) error {
	c.setState(StateInitializing)

	if _, err := os.Stat(modelPath); err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("%w: %s", ErrModelFileMissing, modelPath)
	}
	log.Infow("initializing speech engine", "modelPath", modelPath)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("failed to create health request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("failed to reach speech engine: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.setState(StateFailed)
		return fmt.Errorf("speech engine health check returned status: %s", resp.Status)
	}

	c.setState(StateReady)
	return nil
}

// Transcribe 上传完整音频文件并返回转写结果。
func (c *whisperClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (*TranscribeResult, error) {
	if c.State() != StateReady {
		return nil, ErrEngineNotReady
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	_ = writer.WriteField("response_format", "verbose_json")
	if opts.LanguageHint != "" {
		_ = writer.WriteField("language", opts.LanguageHint)
	}
	if opts.SpeedOptimized {
		// 收窄解码束宽，低端设备上显著更快
		_ = writer.WriteField("beam_size", "1")
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call speech engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("speech engine returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var result TranscribeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode transcribe response: %w", err)
	}

	// 部分模型只回片段不回整段文本，这里拼接兜底
	if result.Text == "" && len(result.Segments) > 0 {
		var sb strings.Builder
		for _, seg := range result.Segments {
			sb.WriteString(seg.Text)
		}
		result.Text = sb.String()
	}
	return &result, nil
}

// State 返回当前引擎生命周期状态。
func (c *whisperClient) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *whisperClient) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
