// Package config loads Compás runtime configuration from a TOML file, .env files and environment variables, exposing typed structs and accessors for all sections.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultLLMProfile      = "default"
	defaultTelegramChannel = "telegram"
)

// Config is the runtime configuration loaded from defaults, config.toml, and env vars.
type Config struct {
	// HomeDir is runtime-resolved from COMPAS_HOME and not read from config.
	HomeDir    string                       `mapstructure:"-"`
	Channels   map[string]ChannelConfig     `mapstructure:"channels"`
	LLM        map[string]LLMProviderConfig `mapstructure:"llm"`
	Server     ServerConfig                 `mapstructure:"server"`
	Coach      CoachConfig                  `mapstructure:"coach"`
	Session    SessionConfig                `mapstructure:"session"`
	Reflection ReflectionConfig             `mapstructure:"reflection"`
	Costs      CostsConfig                  `mapstructure:"costs"`
}

// ChannelConfig configures one inbound/outbound channel.
type ChannelConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Token        string  `mapstructure:"token"`
	AllowedUsers []int64 `mapstructure:"allowed_users"`
}

// LLMProviderConfig configures one LLM provider profile.
type LLMProviderConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Provider       string        `mapstructure:"provider"`
	Model          string        `mapstructure:"model"`
	BaseURL        string        `mapstructure:"base_url"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Temperature    float64       `mapstructure:"temperature"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
	// Passcode guards every route except /healthz when non-empty.
	Passcode string `mapstructure:"passcode"`
}

// CoachConfig names the two people the coach talks about and bounds lesson lookups.
type CoachConfig struct {
	UserName      string `mapstructure:"user_name"`
	PartnerName   string `mapstructure:"partner_name"`
	LessonsWindow int    `mapstructure:"lessons_window"`
}

// SessionConfig bounds in-process conversation history.
type SessionConfig struct {
	MaxSessions int           `mapstructure:"max_sessions"`
	TTL         time.Duration `mapstructure:"ttl"`
	MaxMessages int           `mapstructure:"max_messages"`
}

// ReflectionConfig schedules the evening reflection nudge and an optional
// kindness nudge. An empty KindnessCron leaves the kindness nudge off.
type ReflectionConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Cron         string `mapstructure:"cron"`
	KindnessCron string `mapstructure:"kindness_cron"`
	Channel      string `mapstructure:"channel"`
}

// CostsConfig defines soft USD spending limits.
type CostsConfig struct {
	DailyLimit   float64 `mapstructure:"daily_limit"`
	MonthlyLimit float64 `mapstructure:"monthly_limit"`
}

var defaultConfig = Config{
	Channels: map[string]ChannelConfig{
		defaultTelegramChannel: {
			Enabled: false,
			Token:   "$TELEGRAM_TOKEN",
		},
	},
	LLM: map[string]LLMProviderConfig{
		defaultLLMProfile: {
			APIKey:         "$OPENAI_API_KEY",
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			MaxTokens:      260,
			Temperature:    0.3,
			RequestTimeout: 30 * time.Second,
		},
	},
	Server: ServerConfig{
		Listen:   "127.0.0.1:5000",
		Passcode: "$PASSCODE",
	},
	Coach: CoachConfig{
		UserName:      "Miguel",
		PartnerName:   "Lisa",
		LessonsWindow: 200,
	},
	Session: SessionConfig{
		MaxSessions: 256,
		TTL:         12 * time.Hour,
		MaxMessages: 20,
	},
	Reflection: ReflectionConfig{
		Enabled: false,
		Cron:    "0 21 * * *",
		Channel: defaultTelegramChannel,
	},
}

// homeDir returns the Compás home directory.
// Uses COMPAS_HOME env var if set, otherwise defaults to ~/.compas.
func homeDir() (string, error) {
	if dir := os.Getenv("COMPAS_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return defaultHomePath(home), nil
}

// HomeDir returns the resolved Compás home directory.
func HomeDir() (string, error) {
	return homeDir()
}

// Load merges hardcoded defaults and config file values in that order.
// Dotenv files ($COMPAS_HOME/.env, then ./.env) are loaded first so that
// $VAR references in string values can resolve against them. Variables
// already present in the process environment win.
func Load() (*Config, error) {
	homeDir, err := homeDir()
	if err != nil {
		return nil, err
	}
	if err := loadDotenv(homeEnvPath(homeDir), ".env"); err != nil {
		return nil, err
	}

	v, err := readConfig(homeDir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		expandEnvStringHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	if err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = decodeHook
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.HomeDir = homeDir

	return &cfg, nil
}

// Write writes the merged configuration (defaults overlaid by user
// config) to w in TOML format. Values are written unexpanded.
func Write(w io.Writer) error {
	if w == nil {
		return errors.New("writer is required")
	}

	homeDir, err := homeDir()
	if err != nil {
		return err
	}
	v, err := readConfig(homeDir)
	if err != nil {
		return err
	}

	// Keep duration fields human-readable in generated TOML.
	v.Set("llm.default.request_timeout", v.GetDuration("llm.default.request_timeout").String())
	v.Set("session.ttl", v.GetDuration("session.ttl").String())

	if err := v.WriteConfigTo(w); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DefaultUserConfigTOML renders the minimal bootstrap user config as TOML.
func DefaultUserConfigTOML() (string, error) {
	v := viper.New()
	v.SetConfigType("toml")

	llm := defaultConfig.LLM[defaultLLMProfile]
	v.Set("llm.default.api_key", llm.APIKey)
	v.Set("llm.default.provider", llm.Provider)
	v.Set("llm.default.model", llm.Model)
	v.Set("llm.default.request_timeout", llm.RequestTimeout.String())
	v.Set("server.listen", defaultConfig.Server.Listen)
	v.Set("server.passcode", defaultConfig.Server.Passcode)
	v.Set("coach.user_name", defaultConfig.Coach.UserName)
	v.Set("coach.partner_name", defaultConfig.Coach.PartnerName)

	telegram := defaultConfig.Channels[defaultTelegramChannel]
	v.Set("channels.telegram.enabled", telegram.Enabled)
	v.Set("channels.telegram.token", telegram.Token)
	v.Set("channels.telegram.allowed_users", []int64{})

	var out bytes.Buffer
	if err := v.WriteConfigTo(&out); err != nil {
		return "", fmt.Errorf("write default user config: %w", err)
	}
	return out.String(), nil
}

func readConfig(homeDir string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(homeConfigPath(homeDir))
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

func loadDotenv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %q: %w", path, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	telegram := defaultConfig.Channels[defaultTelegramChannel]
	v.SetDefault("channels.telegram.enabled", telegram.Enabled)
	v.SetDefault("channels.telegram.token", telegram.Token)
	v.SetDefault("channels.telegram.allowed_users", []int64{})

	llm := defaultConfig.LLM[defaultLLMProfile]
	v.SetDefault("llm.default.api_key", llm.APIKey)
	v.SetDefault("llm.default.provider", llm.Provider)
	v.SetDefault("llm.default.model", llm.Model)
	v.SetDefault("llm.default.base_url", llm.BaseURL)
	v.SetDefault("llm.default.max_tokens", llm.MaxTokens)
	v.SetDefault("llm.default.temperature", llm.Temperature)
	v.SetDefault("llm.default.request_timeout", llm.RequestTimeout)

	v.SetDefault("server.listen", defaultConfig.Server.Listen)
	v.SetDefault("server.passcode", defaultConfig.Server.Passcode)

	v.SetDefault("coach.user_name", defaultConfig.Coach.UserName)
	v.SetDefault("coach.partner_name", defaultConfig.Coach.PartnerName)
	v.SetDefault("coach.lessons_window", defaultConfig.Coach.LessonsWindow)

	v.SetDefault("session.max_sessions", defaultConfig.Session.MaxSessions)
	v.SetDefault("session.ttl", defaultConfig.Session.TTL)
	v.SetDefault("session.max_messages", defaultConfig.Session.MaxMessages)

	v.SetDefault("reflection.enabled", defaultConfig.Reflection.Enabled)
	v.SetDefault("reflection.cron", defaultConfig.Reflection.Cron)
	v.SetDefault("reflection.kindness_cron", defaultConfig.Reflection.KindnessCron)
	v.SetDefault("reflection.channel", defaultConfig.Reflection.Channel)

	v.SetDefault("costs.daily_limit", defaultConfig.Costs.DailyLimit)
	v.SetDefault("costs.monthly_limit", defaultConfig.Costs.MonthlyLimit)
}

// DefaultLLM returns the default LLM profile with fallback defaults.
func (c *Config) DefaultLLM() LLMProviderConfig {
	if llm, ok := c.LLM[defaultLLMProfile]; ok {
		return llm
	}
	return defaultConfig.LLM[defaultLLMProfile]
}

// TelegramChannel returns Telegram channel config with fallback defaults.
func (c *Config) TelegramChannel() ChannelConfig {
	if ch, ok := c.Channels[defaultTelegramChannel]; ok {
		return ch
	}
	return defaultConfig.Channels[defaultTelegramChannel]
}

func expandEnvStringHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.String {
			return data, nil
		}
		value, ok := data.(string)
		if !ok {
			return data, nil
		}
		return os.ExpandEnv(value), nil
	}
}
