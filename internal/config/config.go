package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the configuration for the generation server.
type Config struct {
	DatabaseDriver string
	DatabasePath   string
	DatabaseURL    string

	LLMProvider  string
	OpenAIAPIKey string
	OpenAIModel  string
	GroqAPIKey   string
	GeminiAPIKey string

	RedisAddr     string
	RedisPassword string

	JWTSecret string
	Port      string
	LogMode   string

	GenerationConcurrency int
	GenerationTimeout     time.Duration
	StaleProcessingAfter  time.Duration
	SweepInterval         time.Duration

	// Telegram Config
	TelegramBotToken   string
	TelegramWebhookURL string
	TelegramAdminID    int64
}

// NewFromEnv creates a new Config object from environment variables.
// A .env file in the working directory is loaded first when present.
func NewFromEnv() (*Config, error) {
	_ = godotenv.Load()

	driver := strings.ToLower(getEnv("DATABASE_DRIVER", "sqlite"))
	if driver != "sqlite" && driver != "postgres" {
		return nil, fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres, got %q", driver)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if driver == "postgres" && databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	provider := strings.ToLower(getEnv("LLM_PROVIDER", "openai"))
	switch provider {
	case "openai", "groq", "gemini":
	default:
		return nil, fmt.Errorf("LLM_PROVIDER must be openai, groq or gemini, got %q", provider)
	}

	// Provider keys are optional here: a missing key surfaces as a
	// configuration error on the generation endpoint instead of at boot.
	cfg := &Config{
		DatabaseDriver: driver,
		DatabasePath:   getEnv("DATABASE_PATH", "data/coach.db"),
		DatabaseURL:    databaseURL,

		LLMProvider:  provider,
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o"),
		GroqAPIKey:   os.Getenv("GROQ_API_KEY"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		Port:      getEnv("PORT", "8080"),
		LogMode:   getEnv("LOG_MODE", "dev"),

		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL: os.Getenv("TELEGRAM_WEBHOOK_URL"),
	}

	var err error
	if cfg.GenerationConcurrency, err = getEnvInt("GENERATION_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.GenerationConcurrency < 1 {
		cfg.GenerationConcurrency = 1
	}
	if cfg.GenerationTimeout, err = getEnvDuration("GENERATION_TIMEOUT", 3*time.Minute); err != nil {
		return nil, err
	}
	if cfg.StaleProcessingAfter, err = getEnvDuration("STALE_PROCESSING_AFTER", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getEnvDuration("SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.StaleProcessingAfter <= cfg.GenerationTimeout {
		return nil, fmt.Errorf("STALE_PROCESSING_AFTER (%s) must be longer than GENERATION_TIMEOUT (%s)",
			cfg.StaleProcessingAfter, cfg.GenerationTimeout)
	}

	if raw := os.Getenv("TELEGRAM_ADMIN_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_ADMIN_ID must be an integer: %w", err)
		}
		cfg.TelegramAdminID = id
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramWebhookURL == "" {
		return nil, fmt.Errorf("TELEGRAM_WEBHOOK_URL environment variable not set")
	}

	return cfg, nil
}

// ProviderAPIKey returns the credential of the selected LLM provider.
func (c *Config) ProviderAPIKey() string {
	switch c.LLMProvider {
	case "groq":
		return c.GroqAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return c.OpenAIAPIKey
	}
}

// ClientConfig holds the configuration for the coach CLI.
type ClientConfig struct {
	APIURL       string
	AccessToken  string
	UserID       string
	StateDir     string
	PollInterval time.Duration
}

// NewClientFromEnv creates a new ClientConfig from environment variables.
func NewClientFromEnv() (*ClientConfig, error) {
	_ = godotenv.Load()

	apiURL := os.Getenv("COACH_API_URL")
	if apiURL == "" {
		return nil, fmt.Errorf("COACH_API_URL environment variable not set")
	}

	interval, err := getEnvDuration("COACH_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}

	return &ClientConfig{
		APIURL:       strings.TrimRight(apiURL, "/"),
		AccessToken:  os.Getenv("COACH_ACCESS_TOKEN"),
		UserID:       os.Getenv("COACH_USER_ID"),
		StateDir:     getEnv("COACH_STATE_DIR", ".coach"),
		PollInterval: interval,
	}, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return i, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
