// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"sahay-go/internal/config"
	"sahay-go/internal/handler"
	"sahay-go/internal/middleware"
	"sahay-go/internal/prompt"
	"sahay-go/internal/repository"
	"sahay-go/internal/service"
	"sahay-go/pkg/llm"
	"sahay-go/pkg/log"
	"sahay-go/pkg/whisper"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化会话仓库
	sessionRepo, err := newSessionRepository(cfg.Storage)
	if err != nil {
		log.Fatal("会话仓库初始化失败", err)
	}

	// 4. 初始化本地推理引擎（全进程单例，跨领域、跨会话复用）
	profile := llm.DeviceProfile{
		ContextWindowTokens: cfg.LLM.DeviceProfile.ContextWindowTokens,
		BatchSize:           cfg.LLM.DeviceProfile.BatchSize,
		ThreadCount:         cfg.LLM.DeviceProfile.ThreadCount,
		GPULayers:           cfg.LLM.DeviceProfile.GPULayers,
	}
	textEngine := llm.NewLlamaClient(cfg.LLM.BaseURL)
	controller := llm.NewController(textEngine, cfg.LLM.Generation.MaxOutputTokens)
	speechEngine := whisper.NewWhisperClient(cfg.Whisper.BaseURL, time.Duration(cfg.Whisper.TimeoutSeconds)*time.Second)

	// 引擎初始化走后台：加载数 GB 的权重可能很慢，
	// 服务先起来，就绪前的请求会收到"模型尚未就绪"
	go func() {
		if err := controller.Init(context.Background(), cfg.LLM.ModelPath, profile); err != nil {
			log.Error("文本引擎初始化失败", err)
			return
		}
		log.Info("文本引擎初始化成功")
	}()
	go func() {
		if err := speechEngine.Initialize(context.Background(), cfg.Whisper.ModelPath); err != nil {
			log.Error("语音引擎初始化失败", err)
			return
		}
		log.Info("语音引擎初始化成功")
	}()

	// 5. 初始化 Service (依赖注入)
	catalog := prompt.NewCatalog()
	estimator := service.NewEstimator(cfg.Context.Estimator)
	budgeter := service.NewContextService(estimator, cfg.Context.AlwaysKeepLatest)
	sampling := buildSamplingParams(cfg.LLM.Generation)
	chatService := service.NewChatService(
		sessionRepo, catalog, budgeter, controller,
		cfg.LLM.DeviceProfile.ContextWindowTokens, cfg.LLM.Generation.MaxOutputTokens,
		sampling,
	)
	validator := whisper.NewValidator(cfg.Whisper.MinAudioBytes, cfg.Whisper.MaxAudioBytes)
	transcriptionService := service.NewTranscriptionService(speechEngine, validator)
	sessionService := service.NewSessionService(sessionRepo)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 7. 注册路由
	chatHandler := handler.NewChatHandler(chatService)
	apiV1 := r.Group("/api/v1")
	{
		// 会话历史路由组
		sessions := apiV1.Group("/sessions")
		{
			sessions.GET("", handler.NewSessionHandler(sessionService).ListSessions)
			sessions.GET("/:id", handler.NewSessionHandler(sessionService).GetSession)
			sessions.DELETE("/:id", handler.NewSessionHandler(sessionService).DeleteSession)
		}

		// 语音转写路由
		apiV1.POST("/transcribe", handler.NewTranscribeHandler(transcriptionService).Transcribe)

		// 生成期间 WebSocket 循环阻塞，停止指令走独立端点
		apiV1.POST("/chat/stop", chatHandler.Stop)

		// 引擎状态路由（初始化界面轮询）
		apiV1.GET("/engines/status", handler.NewStatusHandler(
			controller, speechEngine, cfg.LLM.ModelPath, cfg.Whisper.ModelPath,
		).EngineStatus)
	}

	// Chat 路由 (WebSocket)
	r.GET("/ws/chat", chatHandler.Handle)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 进行中的生成先协作式停掉，部分输出会被提交并持久化
	chatService.CancelActive()

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}

// newSessionRepository 按配置选择存储后端。
func newSessionRepository(cfg config.StorageConfig) (repository.SessionRepository, error) {
	switch cfg.Backend {
	case "sqlite":
		return repository.NewSQLiteSessionRepository(cfg.SQLitePath, cfg.MaxSessions)
	default:
		return repository.NewFileSessionRepository(cfg.Dir, cfg.MaxSessions)
	}
}

// buildSamplingParams 从配置注入生成参数（零值表示交给引擎默认）。
func buildSamplingParams(cfg config.LLMGenerationConfig) llm.SamplingParams {
	var sp llm.SamplingParams
	if cfg.Temperature != 0 {
		t := cfg.Temperature
		sp.Temperature = &t
	}
	if cfg.TopP != 0 {
		p := cfg.TopP
		sp.TopP = &p
	}
	return sp
}
