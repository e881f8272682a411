package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	defaultConfigFile = "contextflow.toml"
)

type Config struct {
	LLMProvider            string  `toml:"llm_provider"`
	GeminiAPIKey           string  `toml:"gemini_api_key"`
	OpenAIAPIKey           string  `toml:"openai_api_key"`
	OpenAIBaseURL          string  `toml:"openai_base_url"`
	ChatModel              string  `toml:"chat_model"`
	ModelTemperature       float32 `toml:"model_temperature"`
	ModelRequestsPerMinute int     `toml:"model_requests_per_minute"`

	DatabaseURL string `toml:"database_url"`
	HTTPPort    string `toml:"http_port"`
	LogLevel    string `toml:"log_level"`

	JWTSecret  string        `toml:"jwt_secret"`
	SessionTTL time.Duration `toml:"-"`

	MaxUploadBytes       int64 `toml:"max_upload_bytes"`
	AutoSummarizeUploads bool  `toml:"auto_summarize_uploads"`
}

// fileConfig mirrors Config for TOML decoding; durations are written as strings ("24h").
type fileConfig struct {
	Config
	SessionTTL string `toml:"session_ttl"`
}

func Default() *Config {
	return &Config{
		LLMProvider:          ProviderGemini,
		ModelTemperature:     0.1,
		DatabaseURL:          "data/contextflow.db",
		HTTPPort:             "8080",
		LogLevel:             "INFO",
		SessionTTL:           24 * time.Hour,
		MaxUploadBytes:       25 << 20,
		AutoSummarizeUploads: true,
	}
}

// Load builds the configuration from defaults, an optional TOML file and the
// environment, in increasing order of precedence. A .env file is read first
// if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("CONTEXTFLOW_CONFIG")
	}
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.LogLevel = strings.ToUpper(cfg.LogLevel)
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	fc := fileConfig{Config: *c}
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	*c = fc.Config
	if fc.SessionTTL != "" {
		ttl, err := time.ParseDuration(fc.SessionTTL)
		if err != nil {
			return fmt.Errorf("invalid session_ttl in %s: %w", path, err)
		}
		c.SessionTTL = ttl
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	c.LLMProvider = getEnv("LLM_PROVIDER", c.LLMProvider)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.ChatModel = getEnv("CHAT_MODEL", c.ChatModel)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.ModelRequestsPerMinute = getEnvAsInt("MODEL_REQUESTS_PER_MINUTE", c.ModelRequestsPerMinute)
	c.MaxUploadBytes = int64(getEnvAsInt("MAX_UPLOAD_BYTES", int(c.MaxUploadBytes)))
	c.AutoSummarizeUploads = getEnvAsBool("AUTO_SUMMARIZE_UPLOADS", c.AutoSummarizeUploads)

	if v, ok := os.LookupEnv("MODEL_TEMPERATURE"); ok && v != "" {
		t, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("invalid MODEL_TEMPERATURE %q: %w", v, err)
		}
		c.ModelTemperature = float32(t)
	}
	if v, ok := os.LookupEnv("SESSION_TTL"); ok && v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SESSION_TTL %q: %w", v, err)
		}
		c.SessionTTL = ttl
	}
	return nil
}

// ValidateModel checks the settings needed to talk to the hosted model.
func (c *Config) ValidateModel() error {
	switch c.LLMProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY environment variable is required")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY environment variable is required")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	return nil
}

// Validate checks everything the HTTP server needs.
func (c *Config) Validate() error {
	if err := c.ValidateModel(); err != nil {
		return err
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
