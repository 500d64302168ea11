// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// DatabaseFile is the SQLite file name inside DataDir.
const DatabaseFile = "turnover.db"

// Config holds all configuration for the server.
type Config struct {
	ServerAddr string `mapstructure:"SERVER_ADDR"`
	DataDir    string `mapstructure:"DATA_DIR"`
	StaticDir  string `mapstructure:"STATIC_DIR"`

	ICalUserAgent       string `mapstructure:"ICAL_USER_AGENT"`
	ICalFetchTimeoutSec int    `mapstructure:"ICAL_FETCH_TIMEOUT_SEC"`
	ICalSyncSchedule    string `mapstructure:"ICAL_SYNC_SCHEDULE"`
	ICalSyncEnabled     bool   `mapstructure:"ICAL_SYNC_ENABLED"`

	PricingFile string `mapstructure:"PRICING_FILE"`

	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`

	MetricsEnabled bool   `mapstructure:"METRICS_ENABLED"`
	MetricsPath    string `mapstructure:"METRICS_PATH"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

var defaults = map[string]any{
	"SERVER_ADDR":            ":8099",
	"DATA_DIR":               "/data",
	"STATIC_DIR":             "",
	"ICAL_USER_AGENT":        "TurnoverCleaning-ICalSync/1.0",
	"ICAL_FETCH_TIMEOUT_SEC": 30,
	"ICAL_SYNC_SCHEDULE":     "@every 15m",
	"ICAL_SYNC_ENABLED":      true,
	"PRICING_FILE":           "",
	"RABBITMQ_URL":           "",
	"EVENTS_EXCHANGE":        "cleaning.events",
	"METRICS_ENABLED":        true,
	"METRICS_PATH":           "/metrics",
	"LOG_LEVEL":              "info",
	"LOG_FORMAT":             "json",
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return errors.New("SERVER_ADDR must not be empty")
	}
	if c.DataDir == "" {
		return errors.New("DATA_DIR must not be empty")
	}
	if c.ICalFetchTimeoutSec < 0 {
		return fmt.Errorf("ICAL_FETCH_TIMEOUT_SEC must not be negative, got %d", c.ICalFetchTimeoutSec)
	}
	if _, err := cron.ParseStandard(c.ICalSyncSchedule); err != nil {
		return fmt.Errorf("invalid ICAL_SYNC_SCHEDULE %q: %w", c.ICalSyncSchedule, err)
	}
	if c.MetricsEnabled && !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("METRICS_PATH must start with /, got %q", c.MetricsPath)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// DatabasePath returns the SQLite file location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, DatabaseFile)
}

// FetchTimeout returns the per-feed HTTP timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.ICalFetchTimeoutSec) * time.Second
}
