package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	OpenAIAPIKey string `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel  string `mapstructure:"OPENAI_MODEL"`

	// Retry policy for the generation client. Delays are milliseconds.
	MaxRetries       int `mapstructure:"MAX_RETRIES"`
	BaseRetryDelayMS int `mapstructure:"BASE_RETRY_DELAY_MS"`
	MaxRetryDelayMS  int `mapstructure:"MAX_RETRY_DELAY_MS"`

	ClinicianToken  string `mapstructure:"CLINICIAN_TOKEN"`
	MaxMessageChars int    `mapstructure:"MAX_MESSAGE_CHARS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("BASE_RETRY_DELAY_MS", 1000)
	v.SetDefault("MAX_RETRY_DELAY_MS", 10000)
	v.SetDefault("CLINICIAN_TOKEN", "dev-token")
	v.SetDefault("MAX_MESSAGE_CHARS", 1200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("OPENAI_API_KEY")
	v.BindEnv("OPENAI_MODEL")
	v.BindEnv("MAX_RETRIES")
	v.BindEnv("BASE_RETRY_DELAY_MS")
	v.BindEnv("MAX_RETRY_DELAY_MS")
	v.BindEnv("CLINICIAN_TOKEN")
	v.BindEnv("MAX_MESSAGE_CHARS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. The generation
// client refuses to start without an API key so a misconfigured deployment
// fails at boot instead of on the first patient turn.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.MaxRetries)
	}
	if c.BaseRetryDelayMS <= 0 || c.MaxRetryDelayMS < c.BaseRetryDelayMS {
		return fmt.Errorf("retry delays misconfigured: base=%dms max=%dms", c.BaseRetryDelayMS, c.MaxRetryDelayMS)
	}
	if c.MaxMessageChars <= 0 {
		return fmt.Errorf("MAX_MESSAGE_CHARS must be positive, got %d", c.MaxMessageChars)
	}
	return nil
}
