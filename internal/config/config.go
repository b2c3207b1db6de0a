package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName        string `mapstructure:"app_name"`
	Env            string `mapstructure:"app_env"`
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	DataDir        string `mapstructure:"data_dir"`
	AppConfigFile  string `mapstructure:"app_config_file"`
	PublishersFile string `mapstructure:"publishers_file"`
	SessionsDir    string `mapstructure:"sessions_dir"`
	ListenAddr     string `mapstructure:"listen_addr"`
	Schedule       string `mapstructure:"schedule"`

	StorageType string `mapstructure:"storage_type"`
	BBoltPath   string `mapstructure:"bbolt_path"`

	CloseBrowserOnFinish    bool  `mapstructure:"close_browser_on_finish"`
	SyncReadyTimeoutSeconds int64 `mapstructure:"sync_ready_timeout_seconds"`
	SyncReadyPollSeconds    int64 `mapstructure:"sync_ready_poll_seconds"`
	SyncSettleSeconds       int64 `mapstructure:"sync_settle_seconds"`
	ScrapeTimeoutSeconds    int64 `mapstructure:"scrape_timeout_seconds"`

	EnrichConcurrency int     `mapstructure:"enrich_concurrency"`
	EnrichRPS         float64 `mapstructure:"enrich_rps"`

	SyncReadyTimeout time.Duration `mapstructure:"-"`
	SyncReadyPoll    time.Duration `mapstructure:"-"`
	SyncSettle       time.Duration `mapstructure:"-"`
	ScrapeTimeout    time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "daily-digest")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("app_config_file", "")
	v.SetDefault("publishers_file", "")
	v.SetDefault("sessions_dir", "")
	v.SetDefault("listen_addr", ":3000")
	v.SetDefault("schedule", "0 21 * * *")
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "")
	v.SetDefault("close_browser_on_finish", true)
	v.SetDefault("sync_ready_timeout_seconds", 60)
	v.SetDefault("sync_ready_poll_seconds", 2)
	v.SetDefault("sync_settle_seconds", 5)
	v.SetDefault("scrape_timeout_seconds", 15)
	v.SetDefault("enrich_concurrency", 2)
	v.SetDefault("enrich_rps", 1.0)

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize fills derived paths and durations and validates numeric settings.
func (c *Config) normalize() error {
	if c.DataDir == "" {
		c.DataDir = "."
	}
	if c.AppConfigFile == "" {
		c.AppConfigFile = filepath.Join(c.DataDir, "config.json")
	}
	if c.SessionsDir == "" {
		c.SessionsDir = filepath.Join(c.DataDir, ".sessions")
	}
	if c.BBoltPath == "" {
		c.BBoltPath = filepath.Join(c.DataDir, "digest.db")
	}

	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "json":
		c.LogFormat = "json"
	case "console", "text":
		c.LogFormat = "console"
	default:
		return fmt.Errorf("invalid log_format %q (expected json or console)", c.LogFormat)
	}

	if c.SyncReadyTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid sync_ready_timeout_seconds (must be positive seconds)")
	}
	if c.SyncReadyPollSeconds <= 0 {
		return fmt.Errorf("invalid sync_ready_poll_seconds (must be positive seconds)")
	}
	if c.SyncSettleSeconds < 0 {
		return fmt.Errorf("invalid sync_settle_seconds (must not be negative)")
	}
	if c.ScrapeTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid scrape_timeout_seconds (must be positive seconds)")
	}
	if c.EnrichConcurrency <= 0 {
		c.EnrichConcurrency = 1
	}
	if c.EnrichRPS <= 0 {
		return fmt.Errorf("invalid enrich_rps (must be positive)")
	}

	c.SyncReadyTimeout = time.Duration(c.SyncReadyTimeoutSeconds) * time.Second
	c.SyncReadyPoll = time.Duration(c.SyncReadyPollSeconds) * time.Second
	c.SyncSettle = time.Duration(c.SyncSettleSeconds) * time.Second
	c.ScrapeTimeout = time.Duration(c.ScrapeTimeoutSeconds) * time.Second
	return nil
}
