package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"sahay-go/pkg/log"
)

// llamaClient 通过 loopback HTTP 访问本机的 llama.cpp server 侧车进程，
// 走 OpenAI 兼容的 /v1/chat/completions 流式接口。
type llamaClient struct {
	baseURL string
	client  *http.Client

	mu             sync.Mutex
	cancelInflight context.CancelFunc
}

// NewLlamaClient 创建一个新的本地文本生成引擎客户端。
func NewLlamaClient(baseURL string) Engine {
	return &llamaClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

type chatRequest struct {
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Initialize 校验模型权重文件存在并等待侧车进程就绪。
// 设备档位由侧车启动参数决定，这里记录下来以便排查。
func (c *llamaClient) Initialize(ctx context.Context, modelPath string, profile DeviceProfile) error {
	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("%w: %s", ErrModelFileMissing, modelPath)
	}
	log.Infow("initializing text engine",
		"modelPath", modelPath,
		"contextWindowTokens", profile.ContextWindowTokens,
		"batchSize", profile.BatchSize,
		"threadCount", profile.ThreadCount,
		"gpuLayers", profile.GPULayers,
	)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach text engine: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("text engine health check returned status: %s", resp.Status)
	}
	return nil
}

// StreamComplete 发起一次流式补全，逐分块调用 onToken，返回引擎侧统计。
func (c *llamaClient) StreamComplete(ctx context.Context, req CompletionRequest, onToken func(string)) (*Timings, error) {
	reqBody := chatRequest{
		Messages:    req.Messages,
		Stream:      true,
		MaxTokens:   req.MaxOutputTokens,
		Stop:        req.StopSequences,
		Temperature: req.Sampling.Temperature,
		TopP:        req.Sampling.TopP,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	// 保存可取消的请求上下文，Cancel() 通过它中断进行中的流
	streamCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelInflight = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		c.cancelInflight = nil
		c.mu.Unlock()
	}()

	httpReq, err := http.NewRequestWithContext(streamCtx, "POST", c.baseURL+"/v1/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	started := time.Now()
	completionTokens := 0
	finishReason := ""

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to read from stream: %w", err)
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")
			if strings.TrimSpace(data) == "[DONE]" {
				break
			}

			var chunk chatResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}

			if len(chunk.Choices) > 0 {
				if fr := chunk.Choices[0].FinishReason; fr != "" {
					finishReason = fr
				}
				content := chunk.Choices[0].Delta.Content
				if content != "" {
					completionTokens++
					onToken(content)
				}
			}
		}
	}

	elapsed := time.Since(started).Seconds()
	timings := &Timings{
		CompletionTokens: completionTokens,
		FinishReason:     finishReason,
	}
	if elapsed > 0 {
		timings.TokensPerSecond = float64(completionTokens) / elapsed
	}
	return timings, nil
}

// Cancel 中断当前进行中的补全请求；没有进行中的请求时是空操作。
func (c *llamaClient) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelInflight != nil {
		c.cancelInflight()
	}
}
