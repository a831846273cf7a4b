// Package config loads service settings from the environment (optionally
// seeded from a .env file) and validates them once at start-up.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT" validate:"required,numeric"`
	Environment string `mapstructure:"ENVIRONMENT"`
	LogLevel    string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`

	OpenAIAPIKey   string `mapstructure:"OPENAI_API_KEY" validate:"required"`
	GroqAPIKey     string `mapstructure:"GROQ_API_KEY" validate:"required"`
	DeepgramAPIKey string `mapstructure:"DEEPGRAM_API_KEY" validate:"required"`

	OpenAIBaseURL   string `mapstructure:"OPENAI_BASE_URL" validate:"required,url"`
	GroqBaseURL     string `mapstructure:"GROQ_BASE_URL" validate:"required,url"`
	DeepgramBaseURL string `mapstructure:"DEEPGRAM_BASE_URL" validate:"required,url"`
	AnalysisModel   string `mapstructure:"ANALYSIS_MODEL" validate:"required"`

	// MongoURI is the store dsn; sqlite:// and file: select the SQLite binding.
	MongoURI          string        `mapstructure:"MONGODB_URI" validate:"required"`
	MongoDatabase     string        `mapstructure:"MONGODB_DATABASE" validate:"required"`
	MongoCollection   string        `mapstructure:"MONGODB_COLLECTION" validate:"required"`
	AgentsCollection  string        `mapstructure:"MONGODB_AGENTS_COLLECTION" validate:"required"`
	StoreConnectLimit time.Duration `mapstructure:"STORE_CONNECT_TIMEOUT" validate:"gt=0"`

	FFmpegBin  string `mapstructure:"FFMPEG_BIN" validate:"required"`
	FFmpegArgs string `mapstructure:"FFMPEG_ARGS"`
	TempDir    string `mapstructure:"TEMP_DIR"`
	RubricDir  string `mapstructure:"RUBRIC_DIR"`

	ProviderTimeout time.Duration `mapstructure:"PROVIDER_TIMEOUT" validate:"gt=0"`
	MaxUploadMB     int64         `mapstructure:"MAX_UPLOAD_MB" validate:"gt=0"`
}

var defaults = map[string]interface{}{
	"PORT":                      "8000",
	"ENVIRONMENT":               "local",
	"LOG_LEVEL":                 "info",
	"OPENAI_BASE_URL":           "https://api.openai.com/v1",
	"GROQ_BASE_URL":             "https://api.groq.com/openai/v1",
	"DEEPGRAM_BASE_URL":         "https://api.deepgram.com/v1",
	"ANALYSIS_MODEL":            "gpt-4o-mini",
	"MONGODB_DATABASE":          "demo",
	"MONGODB_COLLECTION":        "diallo",
	"MONGODB_AGENTS_COLLECTION": "agents",
	"STORE_CONNECT_TIMEOUT":     "30s",
	"FFMPEG_BIN":                "ffmpeg",
	"FFMPEG_ARGS":               "",
	"TEMP_DIR":                  "",
	"RUBRIC_DIR":                "",
	"PROVIDER_TIMEOUT":          "120s",
	"MAX_UPLOAD_MB":             50,
}

var keys = []string{
	"PORT", "ENVIRONMENT", "LOG_LEVEL",
	"OPENAI_API_KEY", "GROQ_API_KEY", "DEEPGRAM_API_KEY",
	"OPENAI_BASE_URL", "GROQ_BASE_URL", "DEEPGRAM_BASE_URL", "ANALYSIS_MODEL",
	"MONGODB_URI", "MONGODB_DATABASE", "MONGODB_COLLECTION", "MONGODB_AGENTS_COLLECTION", "STORE_CONNECT_TIMEOUT",
	"FFMPEG_BIN", "FFMPEG_ARGS", "TEMP_DIR", "RUBRIC_DIR",
	"PROVIDER_TIMEOUT", "MAX_UPLOAD_MB",
}

// Load reads .env (when present) into the process environment and then
// builds the config from it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds and validates the config from environment variables only.
func FromEnv() (*Config, error) {
	v := viper.New()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, err
		}
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// MaxUploadBytes is the multipart memory limit derived from MAX_UPLOAD_MB.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
