// Package config loads gepeto configuration from an optional YAML file and
// the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Chat platforms understood by the listener.
const (
	PlatformConsole = "console"
	PlatformDiscord = "discord"
	PlatformSlack   = "slack"
)

// Config is the top-level gepeto configuration.
type Config struct {
	MessageHistoryLimit int             `mapstructure:"message_history_limit"`
	DatabaseURL         string          `mapstructure:"database_url"`
	MaxSteps            int             `mapstructure:"max_steps"`
	TurnTimeout         time.Duration   `mapstructure:"turn_timeout"`
	Trigger             string          `mapstructure:"trigger"`
	SpeakerLabel        string          `mapstructure:"speaker_label"`
	PromptsFile         string          `mapstructure:"prompts_file"`
	LLM                 LLMConfig       `mapstructure:"llm"`
	Wiki                WikiConfig      `mapstructure:"wiki"`
	Chat                ChatConfig      `mapstructure:"chat"`
	Dashboard           DashboardConfig `mapstructure:"dashboard"`
	Log                 LogConfig       `mapstructure:"log"`
}

// LLMConfig selects the Gemini model backing every generation step.
type LLMConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
}

// WikiConfig controls the wiki search tool.
type WikiConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxChars  int           `mapstructure:"max_chars"`
	SkipChars int           `mapstructure:"skip_chars"`
}

// ChatConfig selects the chat transport relaying in-game chat.
type ChatConfig struct {
	Platform string        `mapstructure:"platform"`
	Channel  string        `mapstructure:"channel"`
	Discord  DiscordConfig `mapstructure:"discord"`
	Slack    SlackConfig   `mapstructure:"slack"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotToken string `mapstructure:"bot_token"`

	// AcceptWebhooks admits messages posted by a chat relay webhook, which
	// is how most servers mirror in-game chat into Discord.
	AcceptWebhooks bool `mapstructure:"accept_webhooks"`
}

// SlackConfig holds Slack Socket Mode credentials.
type SlackConfig struct {
	AppToken string `mapstructure:"app_token"`
	BotToken string `mapstructure:"bot_token"`
}

// DashboardConfig controls the read-only HTTP surface. Port 0 disables it.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// LogConfig controls the zerolog root logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration from path (a missing file is not an error) and
// overlays environment variables such as MESSAGE_HISTORY_LIMIT and
// DATABASE_URL.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}
	return decode(v)
}

// Parse reads configuration from YAML bytes, with the same defaults and
// environment overlay as Load.
func Parse(data []byte) (*Config, error) {
	v := newViper()
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("message_history_limit", 6)
	v.SetDefault("database_url", "sqlite://gepeto.db")
	v.SetDefault("max_steps", 6)
	v.SetDefault("turn_timeout", "60s")
	v.SetDefault("trigger", "@gpt")
	v.SetDefault("speaker_label", "<Gepeto>")
	v.SetDefault("prompts_file", "")

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0.2)

	v.SetDefault("wiki.base_url", "https://minecraft.wiki")
	v.SetDefault("wiki.timeout", "20s")
	v.SetDefault("wiki.max_chars", 10000)
	v.SetDefault("wiki.skip_chars", 200)

	v.SetDefault("chat.platform", PlatformConsole)
	v.SetDefault("chat.channel", "")
	v.SetDefault("chat.discord.bot_token", "")
	v.SetDefault("chat.discord.accept_webhooks", true)
	v.SetDefault("chat.slack.app_token", "")
	v.SetDefault("chat.slack.bot_token", "")

	v.SetDefault("dashboard.port", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// llm.api_key <-> LLM_API_KEY, database_url <-> DATABASE_URL.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Chat.Platform = strings.ToLower(strings.TrimSpace(cfg.Chat.Platform))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks that all fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.MessageHistoryLimit < 0 {
		errs = append(errs, "message_history_limit must be >= 0")
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, "database_url is required")
	}
	if c.MaxSteps <= 0 {
		errs = append(errs, "max_steps must be > 0")
	}
	if c.TurnTimeout <= 0 {
		errs = append(errs, "turn_timeout must be > 0")
	}
	if strings.TrimSpace(c.Trigger) == "" {
		errs = append(errs, "trigger is required")
	}
	if c.Wiki.MaxChars <= c.Wiki.SkipChars || c.Wiki.SkipChars < 0 {
		errs = append(errs, "wiki.max_chars must be greater than wiki.skip_chars >= 0")
	}
	switch c.Chat.Platform {
	case PlatformConsole:
	case PlatformDiscord:
		if c.Chat.Discord.BotToken == "" {
			errs = append(errs, "chat.discord.bot_token is required for discord")
		}
	case PlatformSlack:
		if c.Chat.Slack.AppToken == "" {
			errs = append(errs, "chat.slack.app_token is required for slack")
		}
		if c.Chat.Slack.BotToken == "" {
			errs = append(errs, "chat.slack.bot_token is required for slack")
		}
	default:
		errs = append(errs, fmt.Sprintf("chat.platform %q is not one of console, discord, slack", c.Chat.Platform))
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		errs = append(errs, "dashboard.port must be within 0-65535")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SetPlatform overrides chat.platform and re-validates, so a platform chosen
// on the command line still needs its tokens.
func (c *Config) SetPlatform(platform string) error {
	c.Chat.Platform = strings.ToLower(strings.TrimSpace(platform))
	return c.validate()
}

// RequireLLM reports whether the generation backend is configured. Only the
// listener needs it; history and import commands run without a key.
func (c *Config) RequireLLM() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return fmt.Errorf("config: llm.api_key is required (set LLM_API_KEY)")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return fmt.Errorf("config: llm.model is required")
	}
	return nil
}
