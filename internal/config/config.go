package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Trend       TrendConfig       `yaml:"trend"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DatabaseConfig configures SQLite storage and retention.
type DatabaseConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// ScheduleConfig configures when ingestion cycles run.
type ScheduleConfig struct {
	Cron string `yaml:"cron"` // standard 5-field cron spec, UTC
}

// LeaderboardConfig configures the leaderboard fetcher.
type LeaderboardConfig struct {
	URL     string `yaml:"url"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// ParseTimeout returns the fetch timeout as time.Duration.
func (l LeaderboardConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(l.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// TrendConfig sizes the trend sets.
type TrendConfig struct {
	TopN         int `yaml:"top_n"`
	MoversLimit  int `yaml:"movers_limit"`
	SurgingLimit int `yaml:"surging_limit"`
	DetailsTopN  int `yaml:"details_top_n"` // how many top skills get enriched
}

// SummarizerConfig configures the optional LLM detail summarizer.
type SummarizerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Provider    string `yaml:"provider"` // "openai" or "anthropic"
	Model       string `yaml:"model"`
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"` // custom endpoint (optional)
	Concurrency int    `yaml:"concurrency"`
}

// AlertsConfig configures report destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook delivery.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook delivery.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook delivery.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:          "./data/skills.db",
			RetentionDays: 90,
		},
		Schedule: ScheduleConfig{Cron: "0 1 * * *"},
		Leaderboard: LeaderboardConfig{
			URL:     "https://skills.sh/trending",
			BaseURL: "https://skills.sh",
			Timeout: "30s",
		},
		Trend: TrendConfig{
			TopN:         20,
			MoversLimit:  5,
			SurgingLimit: 5,
			DetailsTopN:  20,
		},
		Summarizer: SummarizerConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Concurrency: 4,
		},
		Server:  ServerConfig{Port: 8080},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.RetentionDays < 0 {
		return fmt.Errorf("database.retention_days must not be negative, got %d", c.Database.RetentionDays)
	}
	for name, v := range map[string]int{
		"trend.top_n":         c.Trend.TopN,
		"trend.movers_limit":  c.Trend.MoversLimit,
		"trend.surging_limit": c.Trend.SurgingLimit,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if c.Trend.DetailsTopN < 0 {
		return fmt.Errorf("trend.details_top_n must not be negative, got %d", c.Trend.DetailsTopN)
	}
	switch c.Summarizer.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("summarizer.provider must be openai or anthropic, got %q", c.Summarizer.Provider)
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SKILLRADAR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SKILLRADAR_RETENTION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SKILLRADAR_RETENTION_DAYS %q: %w", v, err)
		}
		cfg.Database.RetentionDays = days
	}
	if v := os.Getenv("SKILLRADAR_SCHEDULE"); v != "" {
		cfg.Schedule.Cron = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("SKILLRADAR_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Webhook.URL = v
		cfg.Alerts.Webhook.Enabled = true
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Summarizer.APIKey = v
		cfg.Summarizer.Enabled = true
		cfg.Summarizer.Provider = "openai"
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Summarizer.APIKey = v
		cfg.Summarizer.Enabled = true
		cfg.Summarizer.Provider = "anthropic"
	}
	return nil
}
