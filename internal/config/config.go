// Package config provides YAML-based configuration loading for Bruno.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Bruno configuration, loaded from bruno.yaml and
// overridden by environment variables.
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	LLM      LLMConfig      `yaml:"llm"`
	Database DatabaseConfig `yaml:"database"`
	Chat     ChatConfig     `yaml:"chat"`
	Session  SessionConfig  `yaml:"session"`
	Timers   TimersConfig   `yaml:"timers"`
	API      APIConfig      `yaml:"api"`
	Log      LogConfig      `yaml:"log"`
}

// AgentConfig describes the persona and generation parameters of the agent.
type AgentConfig struct {
	Name         string   `yaml:"name"`
	SystemPrompt string   `yaml:"system_prompt"`
	Temperature  *float64 `yaml:"temperature"` // nil until set; 0 is valid
	MaxTokens    int      `yaml:"max_tokens"`
	HistoryLimit int      `yaml:"history_limit"`
}

// LLMConfig holds model backend connection settings.
type LLMConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// DatabaseConfig selects the persistence driver and DSN.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "mysql"
	DSN    string `yaml:"dsn"`
}

// ChatConfig configures the chat-platform bot.
type ChatConfig struct {
	Platform      string        `yaml:"platform"` // "discord" or "slack"
	TriggerWord   string        `yaml:"trigger_word"`
	CooldownSec   int           `yaml:"cooldown_sec"`
	MaxMessageLen int           `yaml:"max_message_len"`
	Discord       DiscordConfig `yaml:"discord"`
	Slack         SlackConfig   `yaml:"slack"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
	ServerID string `yaml:"server_id"`
}

// SlackConfig holds Slack Socket Mode credentials.
type SlackConfig struct {
	AppToken string `yaml:"app_token"`
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// SessionConfig controls session expiry.
type SessionConfig struct {
	TTLMinutes int `yaml:"ttl_minutes"`
}

// TimersConfig controls the timer sweeper.
type TimersConfig struct {
	SweepCron      string `yaml:"sweep_cron"`
	WarningMinutes int    `yaml:"warning_minutes"`
}

// APIConfig configures the direct-caller HTTP API.
type APIConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultSystemPrompt is used when agent.system_prompt is empty.
const DefaultSystemPrompt = "You are Bruno, a helpful AI assistant."

// DefaultTemperature is used when agent.temperature is not set.
const DefaultTemperature = 0.7

// ConfigurationError reports missing or invalid settings. It is fatal at
// startup.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "config: validation failed: " + strings.Join(e.Problems, "; ")
}

// Load reads a YAML config file from path, applies environment overrides and
// returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return parse(data, os.LookupEnv)
}

// LoadOrEnv loads path when it exists and falls back to the environment
// alone when it does not.
func LoadOrEnv(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return FromEnv()
}

// FromEnv builds a validated Config from environment variables and defaults.
func FromEnv() (*Config, error) {
	return parse(nil, os.LookupEnv)
}

// Parse unmarshals YAML bytes into a validated Config without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	return parse(data, func(string) (string, bool) { return "", false })
}

func parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
	}
	cfg.applyEnv(lookup)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides file values with the environment variables the bot has
// always been deployed with.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Database.DSN, "DATABASE_URL")
	set(&c.Chat.Discord.BotToken, "DISCORD_TOKEN")
	set(&c.Chat.Discord.ServerID, "DISCORD_SERVER_ID")
	set(&c.Chat.Slack.AppToken, "SLACK_APP_TOKEN")
	set(&c.Chat.Slack.BotToken, "SLACK_BOT_TOKEN")
	set(&c.LLM.Provider, "LLM_PROVIDER")
	set(&c.LLM.Model, "LLM_MODEL")
	set(&c.LLM.BaseURL, "LLM_API_URL")

	// A mysql:// style URL implies the mysql driver.
	if c.Database.Driver == "" && strings.HasPrefix(c.Database.DSN, "mysql://") {
		c.Database.Driver = "mysql"
		c.Database.DSN = strings.TrimPrefix(c.Database.DSN, "mysql://")
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Agent.Name == "" {
		c.Agent.Name = "bruno"
	}
	if c.Agent.SystemPrompt == "" {
		c.Agent.SystemPrompt = DefaultSystemPrompt
	}
	if c.Agent.Temperature == nil {
		t := DefaultTemperature
		c.Agent.Temperature = &t
	}
	if c.Agent.MaxTokens == 0 {
		c.Agent.MaxTokens = 2000
	}
	if c.Agent.HistoryLimit == 0 {
		c.Agent.HistoryLimit = 10
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "ollama"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "mistral:7b"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "http://localhost:11434"
	}
	c.LLM.BaseURL = strings.TrimRight(c.LLM.BaseURL, "/")
	if c.LLM.TimeoutSec == 0 {
		c.LLM.TimeoutSec = 300
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "bruno.db"
	}
	if c.Chat.Platform == "" {
		c.Chat.Platform = "discord"
	}
	if c.Chat.TriggerWord == "" {
		c.Chat.TriggerWord = "bruno"
	}
	if c.Chat.CooldownSec == 0 {
		c.Chat.CooldownSec = 2
	}
	if c.Chat.MaxMessageLen == 0 {
		c.Chat.MaxMessageLen = 2000
	}
	if c.Session.TTLMinutes == 0 {
		c.Session.TTLMinutes = 30
	}
	if c.Timers.SweepCron == "" {
		c.Timers.SweepCron = "@every 15s"
	}
	if c.Timers.WarningMinutes == 0 {
		c.Timers.WarningMinutes = 3
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.LLM.Provider != "ollama" {
		errs = append(errs, fmt.Sprintf("llm.provider %q is not supported", c.LLM.Provider))
	}
	if t := c.Agent.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, "agent.temperature must be between 0 and 2")
	}
	if c.Agent.MaxTokens < 0 {
		errs = append(errs, "agent.max_tokens must be positive")
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, "database.dsn (or DATABASE_URL) is required")
	}
	switch c.Chat.Platform {
	case "discord", "slack":
	default:
		errs = append(errs, fmt.Sprintf("chat.platform %q is not supported", c.Chat.Platform))
	}
	if c.Chat.MaxMessageLen < 0 || c.Chat.MaxMessageLen > 2000 {
		errs = append(errs, "chat.max_message_len must be between 1 and 2000")
	}
	if len(errs) > 0 {
		return &ConfigurationError{Problems: errs}
	}
	return nil
}

// RequireChat checks the credentials needed to start the configured chat
// platform. It is only called by commands that connect to the platform.
func (c *Config) RequireChat() error {
	var errs []string
	switch c.Chat.Platform {
	case "discord":
		if c.Chat.Discord.BotToken == "" {
			errs = append(errs, "chat.discord.bot_token (or DISCORD_TOKEN) is required")
		}
	case "slack":
		if c.Chat.Slack.AppToken == "" {
			errs = append(errs, "chat.slack.app_token (or SLACK_APP_TOKEN) is required")
		}
		if c.Chat.Slack.BotToken == "" {
			errs = append(errs, "chat.slack.bot_token (or SLACK_BOT_TOKEN) is required")
		}
	}
	if len(errs) > 0 {
		return &ConfigurationError{Problems: errs}
	}
	return nil
}
