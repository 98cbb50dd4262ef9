package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

// Config holds all runtime settings, read from the environment.
type Config struct {
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	LLMProvider        string        `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey       string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string        `env:"OPENAI_BASE_URL"`
	AnthropicAPIKey    string        `env:"ANTHROPIC_API_KEY"`
	OllamaHost         string        `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`
	DefaultModel       string        `env:"DEFAULT_MODEL" envDefault:"gpt-4o-mini"`
	DefaultTemperature float64       `env:"DEFAULT_TEMPERATURE" envDefault:"0.7"`
	LLMTimeout         time.Duration `env:"LLM_TIMEOUT" envDefault:"0s"`
	MaxHistory         int           `env:"MAX_HISTORY" envDefault:"20"`

	JWTSecret string `env:"JWT_SECRET"`
	LogMode   string `env:"LOG_MODE" envDefault:"dev"`

	TurnRate  float64 `env:"TURN_RATE" envDefault:"0.5"`
	TurnBurst int     `env:"TURN_BURST" envDefault:"5"`

	DemoWidgetID string `env:"DEMO_WIDGET_ID" envDefault:"demo"`

	WhatsAppNotifyEnabled bool   `env:"WHATSAPP_NOTIFY_ENABLED" envDefault:"false"`
	WhatsAppDeviceDB      string `env:"WHATSAPP_DEVICE_DB" envDefault:"devices/notifier.db"`
	TelegramBotToken      string `env:"TELEGRAM_BOT_TOKEN"`
}

// LoadEnvFiles loads the given dotenv files, skipping the ones that don't exist.
func LoadEnvFiles(files ...string) error {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// Load reads .env files and parses the environment into a Config.
func Load() (Config, error) {
	if err := LoadEnvFiles(".env", ".env.local"); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that tags can't express.
func (c Config) Validate() error {
	switch strings.ToLower(c.LLMProvider) {
	case ProviderOpenAI, ProviderOllama, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.TurnRate <= 0 || c.TurnBurst <= 0 {
		return fmt.Errorf("TURN_RATE and TURN_BURST must be positive")
	}
	if c.DefaultTemperature < 0 || c.DefaultTemperature > 2 {
		return fmt.Errorf("DEFAULT_TEMPERATURE out of range: %v", c.DefaultTemperature)
	}
	if c.DemoWidgetID == "" {
		return fmt.Errorf("DEMO_WIDGET_ID must not be empty")
	}
	if c.MaxHistory <= 0 {
		return fmt.Errorf("MAX_HISTORY must be positive")
	}
	return nil
}
