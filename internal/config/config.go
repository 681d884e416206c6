package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates settings for the client and the dev server.
type Config struct {
	Client ClientConfig
	Voice  VoiceConfig
	Server ServerConfig
	AI     AIConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	client, err := loadClientConfig()
	if err != nil {
		return nil, err
	}

	voice, err := loadVoiceConfig()
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Client: client, Voice: voice, Server: server, AI: loadAIConfig()}, nil
}

// ClientConfig describes how to reach the remote agent.
type ClientConfig struct {
	AgentBaseURL         string
	RequestTimeout       time.Duration
	AllowAnonymousIngest bool
	TokenFile            string
}

func loadClientConfig() (ClientConfig, error) {
	timeoutSeconds := 60
	if override, err := parseOptionalIntEnv("AGENT_REQUEST_TIMEOUT"); err != nil {
		return ClientConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return ClientConfig{}, fmt.Errorf("AGENT_REQUEST_TIMEOUT must be positive, got %d", *override)
		}
		timeoutSeconds = *override
	}

	anonymous, err := parseBoolEnv("ALLOW_ANONYMOUS_INGEST", false)
	if err != nil {
		return ClientConfig{}, err
	}

	tokenFile := strings.TrimSpace(os.Getenv("TOKEN_FILE"))
	if tokenFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			tokenFile = filepath.Join(home, ".docagent", "token")
		}
	}

	return ClientConfig{
		AgentBaseURL:         getEnvOrDefault("AGENT_BASE_URL", "http://localhost:8000/api/v1"),
		RequestTimeout:       time.Duration(timeoutSeconds) * time.Second,
		AllowAnonymousIngest: anonymous,
		TokenFile:            tokenFile,
	}, nil
}

// VoiceConfig describes the capture pipeline.
type VoiceConfig struct {
	CaptureWindow time.Duration
	RecognizerURL string
	Language      string
}

func loadVoiceConfig() (VoiceConfig, error) {
	windowSeconds := 10
	if override, err := parseOptionalIntEnv("VOICE_CAPTURE_WINDOW"); err != nil {
		return VoiceConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return VoiceConfig{}, fmt.Errorf("VOICE_CAPTURE_WINDOW must be positive, got %d", *override)
		}
		windowSeconds = *override
	}

	return VoiceConfig{
		CaptureWindow: time.Duration(windowSeconds) * time.Second,
		RecognizerURL: strings.TrimSpace(os.Getenv("VOICE_RECOGNIZER_URL")),
		Language:      getEnvOrDefault("VOICE_LANGUAGE", "en-US"),
	}, nil
}

// ServerConfig describes the dev server listen address.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8000" or "127.0.0.1:8000" directly.
		return ServerConfig{Addr: port}, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the optional Ark model behind the dev server.
type AIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Region  string
}

func loadAIConfig() AIConfig {
	return AIConfig{
		APIKey:  strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		Model:   strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL: getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:  getEnvOrDefault("ARK_REGION", "cn-beijing"),
	}
}

// Enabled reports whether the required model credentials are present.
func (c AIConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// NewChatModel builds the Ark chat model from this configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ARK_API_KEY and ARK_MODEL are required for the ai answerer")
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL: c.BaseURL,
		Region:  c.Region,
		APIKey:  c.APIKey,
		Model:   c.Model,
	})
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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
