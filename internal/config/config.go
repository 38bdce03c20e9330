package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	DaemonURLDefault string        `envconfig:"DAEMON_URL_DEFAULT" default:"http://127.0.0.1:8472"`
	DaemonTimeout    time.Duration `envconfig:"DAEMON_TIMEOUT" default:"30s"`

	DBPath             string   `envconfig:"DB_PATH" default:"netdout_relay.db"`
	LogLevel           string   `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL  string   `envconfig:"DISCORD_WEBHOOK_URL"`
	InterestExtensions []string `envconfig:"INTEREST_EXTENSIONS"`

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		ServiceName  string `split_words:"true" default:"netdout-relay"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"127.0.0.1:8473"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"60s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if strings.TrimSpace(cfg.DaemonURLDefault) == "" {
		return nil, fmt.Errorf("DAEMON_URL_DEFAULT must not be empty")
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
