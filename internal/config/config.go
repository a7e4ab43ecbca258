// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Whisper WhisperConfig `mapstructure:"whisper"`
	Context ContextConfig `mapstructure:"context"`
}

// ServerConfig 存储本地服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// StorageConfig 存储会话持久化相关的配置。
// backend 可选 "file"（默认，按领域一个 JSON 文件）或 "sqlite"。
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	Dir         string `mapstructure:"dir"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	MaxSessions int    `mapstructure:"max_sessions"`
}

// LLMConfig 存储本地文本生成引擎相关的配置。
type LLMConfig struct {
	ModelPath     string              `mapstructure:"model_path"`
	BaseURL       string              `mapstructure:"base_url"`
	DeviceProfile DeviceProfileConfig `mapstructure:"device_profile"`
	Generation    LLMGenerationConfig `mapstructure:"generation"`
}

// DeviceProfileConfig 是交给引擎初始化的设备档位，进程生命周期内固定。
type DeviceProfileConfig struct {
	ContextWindowTokens int `mapstructure:"context_window_tokens"`
	BatchSize           int `mapstructure:"batch_size"`
	ThreadCount         int `mapstructure:"thread_count"`
	GPULayers           int `mapstructure:"gpu_layers"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature     float64 `mapstructure:"temperature"`
	TopP            float64 `mapstructure:"top_p"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
}

// WhisperConfig 存储本地语音识别引擎相关的配置。
type WhisperConfig struct {
	ModelPath      string `mapstructure:"model_path"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MinAudioBytes  int64  `mapstructure:"min_audio_bytes"`
	MaxAudioBytes  int64  `mapstructure:"max_audio_bytes"`
}

// ContextConfig 配置上下文裁剪行为。
type ContextConfig struct {
	// Estimator 可选 "heuristic"（默认，4 字符 ≈ 1 token）或 "tiktoken"
	Estimator        string `mapstructure:"estimator"`
	AlwaysKeepLatest bool   `mapstructure:"always_keep_latest"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}

// setDefaults 设置保守的默认值：低端设备档位、文件存储后端、启发式估算器。
func setDefaults() {
	viper.SetDefault("server.port", "8790")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("storage.backend", "file")
	viper.SetDefault("storage.dir", "./data/sessions")
	viper.SetDefault("storage.sqlite_path", "./data/sessions.db")
	viper.SetDefault("storage.max_sessions", 50)
	viper.SetDefault("llm.device_profile.context_window_tokens", 2048)
	viper.SetDefault("llm.device_profile.batch_size", 128)
	viper.SetDefault("llm.device_profile.thread_count", 4)
	viper.SetDefault("llm.device_profile.gpu_layers", 0)
	viper.SetDefault("llm.generation.max_output_tokens", 256)
	viper.SetDefault("whisper.timeout_seconds", 120)
	viper.SetDefault("whisper.min_audio_bytes", 5000)
	viper.SetDefault("whisper.max_audio_bytes", 50*1024*1024)
	viper.SetDefault("context.estimator", "heuristic")
	viper.SetDefault("context.always_keep_latest", true)
}
