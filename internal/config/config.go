// Package config provides YAML-based configuration loading for Taskline.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Taskline configuration, loaded from taskline.yaml.
type Config struct {
	Platform        string             `yaml:"platform"         env:"TASKLINE_PLATFORM"`
	DefaultTimezone string             `yaml:"default_timezone" env:"TASKLINE_DEFAULT_TIMEZONE"`
	DashboardURL    string             `yaml:"dashboard_url"    env:"TASKLINE_DASHBOARD_URL"`
	Database        DatabaseConfig     `yaml:"database"`
	WhatsApp        WhatsAppConfig     `yaml:"whatsapp"`
	Discord         DiscordConfig      `yaml:"discord"`
	Slack           SlackConfig        `yaml:"slack"`
	AI              AIConfig           `yaml:"ai"`
	Audio           AudioConfig        `yaml:"audio"`
	Conversation    ConversationConfig `yaml:"conversation"`
	Pending         PendingConfig      `yaml:"pending"`
	Scheduler       SchedulerConfig    `yaml:"scheduler"`
	Log             LogConfig          `yaml:"log"`
}

// DatabaseConfig holds connection settings. Driver "mysql" uses the
// host/port/user/password/name fields; driver "sqlite" uses Path.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"   env:"TASKLINE_DB_DRIVER"`
	Host     string `yaml:"host"     env:"TASKLINE_DB_HOST"`
	Port     int    `yaml:"port"     env:"TASKLINE_DB_PORT"`
	User     string `yaml:"user"     env:"TASKLINE_DB_USER"`
	Password string `yaml:"password" env:"TASKLINE_DB_PASSWORD"`
	Name     string `yaml:"name"     env:"TASKLINE_DB_NAME"`
	Path     string `yaml:"path"     env:"TASKLINE_DB_PATH"`
}

// WhatsAppConfig configures the WhatsApp multi-device adapter. The paired
// device session is kept in a sqlite file at SessionPath.
type WhatsAppConfig struct {
	SessionPath string `yaml:"session_path" env:"TASKLINE_WHATSAPP_SESSION_PATH"`
	// ListenAddr serves pairing status and the QR code; "off" disables it.
	ListenAddr string `yaml:"listen_addr" env:"TASKLINE_WHATSAPP_LISTEN_ADDR"`
}

// DiscordConfig configures the Discord DM adapter.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token" env:"TASKLINE_DISCORD_BOT_TOKEN"`
}

// SlackConfig configures the Slack socket mode adapter.
type SlackConfig struct {
	AppToken string `yaml:"app_token" env:"TASKLINE_SLACK_APP_TOKEN"`
	BotToken string `yaml:"bot_token" env:"TASKLINE_SLACK_BOT_TOKEN"`
}

// AIConfig selects the model provider used for extraction, vision and
// transcription.
type AIConfig struct {
	Provider           string `yaml:"provider"            env:"TASKLINE_AI_PROVIDER"`
	APIKey             string `yaml:"api_key"             env:"TASKLINE_AI_API_KEY"`
	BaseURL            string `yaml:"base_url"            env:"TASKLINE_AI_BASE_URL"`
	Model              string `yaml:"model"               env:"TASKLINE_AI_MODEL"`
	VisionModel        string `yaml:"vision_model"        env:"TASKLINE_AI_VISION_MODEL"`
	TranscriptionModel string `yaml:"transcription_model" env:"TASKLINE_AI_TRANSCRIPTION_MODEL"`
	Language           string `yaml:"language"`
	TimeoutSec         int    `yaml:"timeout_sec"`
}

// AudioConfig configures voice-note transcoding.
type AudioConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path" env:"TASKLINE_FFMPEG_PATH"`
	TempDir    string `yaml:"temp_dir"`
}

// ConversationConfig controls history windows and chat replies.
type ConversationConfig struct {
	HistoryLimit  int  `yaml:"history_limit"`
	PruneKeep     int  `yaml:"prune_keep"`
	MenuAfterChat bool `yaml:"menu_after_chat"`
}

// PendingConfig controls how long a staged suggestion waits for a vote.
type PendingConfig struct {
	TTLMinutes int `yaml:"ttl_minutes"`
}

// SchedulerConfig controls the reminder and daily summary sweeps.
type SchedulerConfig struct {
	Cron         string `yaml:"cron"`
	LookaheadSec int    `yaml:"lookahead_sec"`
	// Instance names this process for the scheduler lease. Set it when
	// several replicas share one database; empty disables the lease.
	Instance        string `yaml:"instance"          env:"TASKLINE_INSTANCE"`
	LeaseTimeoutSec int    `yaml:"lease_timeout_sec"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"TASKLINE_LOG_LEVEL"`
	Format string `yaml:"format" env:"TASKLINE_LOG_FORMAT"` // "json", "console", or "" (auto)
}

// Supported values.
var (
	validPlatforms = []string{"whatsapp", "discord", "slack"}
	validDrivers   = []string{"mysql", "sqlite"}
	validProviders = []string{"gemini", "openai"}
)

// Load reads a YAML config file from path, applies environment overrides
// and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config. Environment
// variables named in the env tags override values from the file.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PendingTTL returns the pending-action expiry window.
func (c *Config) PendingTTL() time.Duration {
	return time.Duration(c.Pending.TTLMinutes) * time.Minute
}

// Lookahead returns the reminder sweep lookahead window.
func (c *Config) Lookahead() time.Duration {
	return time.Duration(c.Scheduler.LookaheadSec) * time.Second
}

// LeaseTimeout returns how long a silent scheduler lease stays valid.
func (c *Config) LeaseTimeout() time.Duration {
	return time.Duration(c.Scheduler.LeaseTimeoutSec) * time.Second
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Platform == "" {
		c.Platform = "whatsapp"
	}
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = "America/Sao_Paulo"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "taskline.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "taskline"
		}
	}
	if c.WhatsApp.SessionPath == "" {
		c.WhatsApp.SessionPath = "whatsapp-session.db"
	}
	if c.WhatsApp.ListenAddr == "" {
		c.WhatsApp.ListenAddr = ":4000"
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "gemini"
	}
	if c.AI.Language == "" {
		c.AI.Language = "pt"
	}
	if c.AI.TimeoutSec == 0 {
		c.AI.TimeoutSec = 60
	}
	if c.Audio.FFmpegPath == "" {
		c.Audio.FFmpegPath = "ffmpeg"
	}
	if c.Conversation.HistoryLimit == 0 {
		c.Conversation.HistoryLimit = 30
	}
	if c.Pending.TTLMinutes == 0 {
		c.Pending.TTLMinutes = 15
	}
	if c.Scheduler.Cron == "" {
		c.Scheduler.Cron = "* * * * *"
	}
	if c.Scheduler.LookaheadSec == 0 {
		c.Scheduler.LookaheadSec = 60
	}
	if c.Scheduler.LeaseTimeoutSec == 0 {
		c.Scheduler.LeaseTimeoutSec = 90
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if !contains(validPlatforms, c.Platform) {
		errs = append(errs, fmt.Sprintf("platform %q is not one of %s", c.Platform, strings.Join(validPlatforms, ", ")))
	}
	if !contains(validDrivers, c.Database.Driver) {
		errs = append(errs, fmt.Sprintf("database.driver %q is not one of %s", c.Database.Driver, strings.Join(validDrivers, ", ")))
	}
	if !contains(validProviders, c.AI.Provider) {
		errs = append(errs, fmt.Sprintf("ai.provider %q is not one of %s", c.AI.Provider, strings.Join(validProviders, ", ")))
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Sprintf("default_timezone %q is not a valid IANA zone", c.DefaultTimezone))
	}
	switch c.Platform {
	case "whatsapp":
		if c.WhatsApp.SessionPath == c.Database.Path && c.Database.Driver == "sqlite" {
			errs = append(errs, "whatsapp.session_path must differ from database.path")
		}
	case "discord":
		if c.Discord.BotToken == "" {
			errs = append(errs, "discord.bot_token is required")
		}
	case "slack":
		if c.Slack.AppToken == "" {
			errs = append(errs, "slack.app_token is required")
		}
		if c.Slack.BotToken == "" {
			errs = append(errs, "slack.bot_token is required")
		}
	}
	if c.Conversation.HistoryLimit < 0 {
		errs = append(errs, "conversation.history_limit must be positive")
	}
	if c.Pending.TTLMinutes < 0 {
		errs = append(errs, "pending.ttl_minutes must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
