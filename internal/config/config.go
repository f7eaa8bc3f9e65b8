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

// Config aggregates all service configuration.
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Speech SpeechConfig
	Live   LiveConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	live, err := loadLiveConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Speech: speech, Live: live}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the conversational model backend.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled reports whether the required model credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel constructs a model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("model credentials missing: provide ARK_API_KEY + ARK_MODEL or AK/SK pair")
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

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// SpeechConfig describes the STT/TTS provider.
type SpeechConfig struct {
	APIKey          string
	BaseURL         string
	VoiceID         string
	ModelID         string
	Stability       float64
	SimilarityBoost float64
	Timeout         time.Duration
	Enabled         bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	stability, err := parseOptionalFloatEnv("SPEECH_TTS_STABILITY")
	if err != nil {
		return SpeechConfig{}, err
	}
	similarity, err := parseOptionalFloatEnv("SPEECH_TTS_SIMILARITY")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeout, err := parseDurationEnv("SPEECH_TIMEOUT", 30*time.Second)
	if err != nil {
		return SpeechConfig{}, err
	}

	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))

	cfg := SpeechConfig{
		APIKey:          apiKey,
		BaseURL:         getEnvOrDefault("SPEECH_BASE_URL", "https://api.elevenlabs.io"),
		VoiceID:         getEnvOrDefault("SPEECH_TTS_VOICE", "dMyQqiVXTU80dDl2eNK8"),
		ModelID:         getEnvOrDefault("SPEECH_TTS_MODEL", "eleven_monolingual_v1"),
		Stability:       0.5,
		SimilarityBoost: 0.5,
		Timeout:         timeout,
		Enabled:         apiKey != "",
	}
	if stability != nil {
		cfg.Stability = *stability
	}
	if similarity != nil {
		cfg.SimilarityBoost = *similarity
	}
	return cfg, nil
}

// LiveConfig tunes the live session subsystem. Idle timeout, backoff and
// VAD parameters are deployment-dependent, so each one stays env-tunable.
type LiveConfig struct {
	// Server side.
	IdleTimeout       time.Duration
	ReapInterval      time.Duration
	ProcessingTimeout time.Duration
	HeartbeatInterval time.Duration
	EventBuffer       int

	// Client side.
	HeartbeatLossMultiplier int
	ReconnectInitialDelay   time.Duration
	ReconnectMaxDelay       time.Duration
	ReconnectAttempts       int

	// Voice activity detection.
	VADThreshold       float64
	VADMinSpeech       time.Duration
	VADTrailingSilence time.Duration
	SampleRate         int
	FrameDuration      time.Duration
	UtteranceQueueSize int
}

func loadLiveConfig() (LiveConfig, error) {
	cfg := LiveConfig{}

	var err error
	if cfg.IdleTimeout, err = parseDurationEnv("LIVE_IDLE_TIMEOUT", 5*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.ReapInterval, err = parseDurationEnv("LIVE_REAP_INTERVAL", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.ProcessingTimeout, err = parseDurationEnv("LIVE_PROCESSING_TIMEOUT", 45*time.Second); err != nil {
		return cfg, err
	}
	if cfg.HeartbeatInterval, err = parseDurationEnv("LIVE_HEARTBEAT_INTERVAL", 8*time.Second); err != nil {
		return cfg, err
	}
	if cfg.ReconnectInitialDelay, err = parseDurationEnv("LIVE_RECONNECT_INITIAL_DELAY", 500*time.Millisecond); err != nil {
		return cfg, err
	}
	if cfg.ReconnectMaxDelay, err = parseDurationEnv("LIVE_RECONNECT_MAX_DELAY", 8*time.Second); err != nil {
		return cfg, err
	}
	if cfg.VADMinSpeech, err = parseDurationEnv("VAD_MIN_SPEECH", 500*time.Millisecond); err != nil {
		return cfg, err
	}
	if cfg.VADTrailingSilence, err = parseDurationEnv("VAD_TRAILING_SILENCE", 700*time.Millisecond); err != nil {
		return cfg, err
	}
	if cfg.FrameDuration, err = parseDurationEnv("VAD_FRAME_DURATION", 20*time.Millisecond); err != nil {
		return cfg, err
	}

	cfg.EventBuffer = 32
	if v, err := parseOptionalIntEnv("LIVE_EVENT_BUFFER"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.EventBuffer = *v
	}

	cfg.HeartbeatLossMultiplier = 3
	if v, err := parseOptionalIntEnv("LIVE_HEARTBEAT_LOSS_MULTIPLIER"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.HeartbeatLossMultiplier = *v
	}

	cfg.ReconnectAttempts = 5
	if v, err := parseOptionalIntEnv("LIVE_RECONNECT_ATTEMPTS"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.ReconnectAttempts = *v
	}

	cfg.VADThreshold = 0.015
	if v, err := parseOptionalFloatEnv("VAD_THRESHOLD"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.VADThreshold = *v
	}

	cfg.SampleRate = 16000
	if v, err := parseOptionalIntEnv("AUDIO_SAMPLE_RATE"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.SampleRate = *v
	}

	cfg.UtteranceQueueSize = 8
	if v, err := parseOptionalIntEnv("AUDIO_UTTERANCE_QUEUE"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.UtteranceQueueSize = *v
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
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
