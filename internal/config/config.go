package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Chat     ChatConfig
	Analysis AnalysisConfig
	Speech   SpeechConfig
	Intake   IntakeConfig
	AI       AIConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig("PORT", "8080")
	if err != nil {
		return nil, err
	}

	upstream, err := loadUpstreamConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	analysis, err := loadAnalysisConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Upstream: upstream,
		Chat:     chat,
		Analysis: analysis,
		Speech:   speech,
		Intake:   loadIntakeConfig(),
		AI:       ai,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// AllowedOrigins 为跨域白名单，"*" 表示允许任意来源。
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(key, defaultPort string) (ServerConfig, error) {
	port := getEnvOrDefault(key, defaultPort)
	origins := parseListEnv("CORS_ALLOWED_ORIGINS", []string{"*"})

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid %s value: %q", key, port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// UpstreamConfig 描述下游推理服务的地址。
type UpstreamConfig struct {
	ChatURL       string
	PredictURL    string
	TranscribeURL string
	TTSURL        string
	// Timeout 作用于非流式请求；聊天流由空闲超时控制。
	Timeout time.Duration
}

func loadUpstreamConfig() (UpstreamConfig, error) {
	timeout, err := parseDurationEnv("UPSTREAM_TIMEOUT", 30*time.Second)
	if err != nil {
		return UpstreamConfig{}, err
	}

	return UpstreamConfig{
		ChatURL:       getEnvOrDefault("CHAT_ENDPOINT", "http://localhost:8000/chat"),
		PredictURL:    getEnvOrDefault("PREDICT_ENDPOINT", "http://localhost:8000/predict"),
		TranscribeURL: getEnvOrDefault("TRANSCRIBE_ENDPOINT", "http://localhost:8000/transcribe"),
		TTSURL:        getEnvOrDefault("TTS_ENDPOINT", "http://localhost:8000/tts"),
		Timeout:       timeout,
	}, nil
}

// ChatConfig 描述症状评估对话的行为。
type ChatConfig struct {
	IdleTimeout     time.Duration
	Greeting        string
	GreetingEnabled bool
}

func loadChatConfig() (ChatConfig, error) {
	idle, err := parseDurationEnv("CHAT_IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return ChatConfig{}, err
	}

	greetingEnabled, err := parseBoolEnv("CHAT_GREETING_ENABLED", true)
	if err != nil {
		return ChatConfig{}, err
	}

	return ChatConfig{
		IdleTimeout:     idle,
		Greeting:        strings.TrimSpace(os.Getenv("CHAT_GREETING")),
		GreetingEnabled: greetingEnabled,
	}, nil
}

// AnalysisConfig 描述超声图像分析配置。
type AnalysisConfig struct {
	ConfidenceThreshold float64
}

func loadAnalysisConfig() (AnalysisConfig, error) {
	threshold, err := parseOptionalFloatEnv("ANALYSIS_CONFIDENCE_THRESHOLD")
	if err != nil {
		return AnalysisConfig{}, err
	}

	cfg := AnalysisConfig{ConfidenceThreshold: 0.96}
	if threshold != nil {
		if *threshold <= 0 || *threshold > 1 {
			return AnalysisConfig{}, fmt.Errorf("invalid ANALYSIS_CONFIDENCE_THRESHOLD value %v: must be in (0, 1]", *threshold)
		}
		cfg.ConfidenceThreshold = *threshold
	}
	return cfg, nil
}

// SpeechConfig 描述语音转写与合成配置
type SpeechConfig struct {
	Language     string
	MaxRecording time.Duration
}

func loadSpeechConfig() (SpeechConfig, error) {
	maxRecording, err := parseDurationEnv("SPEECH_MAX_RECORDING", 2*time.Minute)
	if err != nil {
		return SpeechConfig{}, err
	}

	return SpeechConfig{
		Language:     getEnvOrDefault("SPEECH_LANGUAGE", "en"),
		MaxRecording: maxRecording,
	}, nil
}

// IntakeConfig 描述表单提交的 webhook 地址，留空表示未配置。
type IntakeConfig struct {
	ConsultationURL     string
	BookingURL          string
	SampleCollectionURL string
	ChatbaseURL         string
}

func loadIntakeConfig() IntakeConfig {
	return IntakeConfig{
		ConsultationURL:     strings.TrimSpace(os.Getenv("INTAKE_CONSULTATION_WEBHOOK")),
		BookingURL:          strings.TrimSpace(os.Getenv("INTAKE_BOOKING_WEBHOOK")),
		SampleCollectionURL: strings.TrimSpace(os.Getenv("INTAKE_SAMPLE_COLLECTION_WEBHOOK")),
		ChatbaseURL:         strings.TrimSpace(os.Getenv("INTAKE_CHATBASE_WEBHOOK")),
	}
}

// AIConfig 描述开发用助手后端的大模型配置。
type AIConfig struct {
	Addr         string
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	HistoryLimit int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	server, err := loadServerConfig("ASSISTANT_PORT", "8000")
	if err != nil {
		return AIConfig{}, err
	}

	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	history := 10
	if historyOverride, err := parseOptionalIntEnv("AI_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if historyOverride != nil {
		if *historyOverride < 1 {
			history = 1
		} else {
			history = *historyOverride
		}
	}

	return AIConfig{
		Addr:         server.Addr,
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        strings.TrimSpace(os.Getenv("Model")),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		HistoryLimit: history,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parseListEnv 解析逗号分隔的列表，空值返回默认值。
func parseListEnv(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	var val time.Duration
	if secs, err := strconv.Atoi(raw); err == nil {
		val = time.Duration(secs) * time.Second
	} else if val, err = time.ParseDuration(raw); err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}
