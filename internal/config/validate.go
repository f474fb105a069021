package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validatable is implemented by config sections that can self-validate.
type Validatable interface {
	Validate() error
}

// ValidationReport carries non-fatal startup findings.
type ValidationReport struct {
	Warnings []string
}

// Validate checks required LLM provider fields and provider-specific rules.
func (c LLMProviderConfig) Validate() error {
	if c.Provider == "" {
		return errors.New("provider is required")
	}
	if c.Model == "" {
		return errors.New("model is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be > 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %.2f out of range [0, 2]", c.Temperature)
	}

	switch c.Provider {
	case "anthropic", "openrouter":
		if c.APIKey == "" {
			return errors.New("api_key is required")
		}
	case "openai":
		// A base_url points at an OpenAI-compatible local server that may not need a key.
		if c.APIKey == "" && c.BaseURL == "" {
			return errors.New("api_key is required")
		}
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider)
	}
	return nil
}

// Validate checks required channel fields when the channel is enabled.
func (c ChannelConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Token == "" {
		return errors.New("token is required when enabled=true")
	}
	return nil
}

// Validate checks the listen address.
func (c ServerConfig) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("listen is required")
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	return nil
}

// Validate checks coach persona names and the lessons window.
func (c CoachConfig) Validate() error {
	if strings.TrimSpace(c.UserName) == "" {
		return errors.New("user_name is required")
	}
	if strings.TrimSpace(c.PartnerName) == "" {
		return errors.New("partner_name is required")
	}
	if c.LessonsWindow <= 0 {
		return errors.New("lessons_window must be > 0")
	}
	return nil
}

// Validate checks session store bounds.
func (c SessionConfig) Validate() error {
	if c.MaxSessions <= 0 {
		return errors.New("max_sessions must be > 0")
	}
	if c.TTL <= 0 {
		return errors.New("ttl must be > 0")
	}
	if c.MaxMessages < 0 {
		return errors.New("max_messages must be >= 0")
	}
	return nil
}

// Validate checks the cron expression when reflections are enabled.
func (c ReflectionConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, err := cron.ParseStandard(c.Cron); err != nil {
		return fmt.Errorf("invalid cron %q: %w", c.Cron, err)
	}
	if c.KindnessCron != "" {
		if _, err := cron.ParseStandard(c.KindnessCron); err != nil {
			return fmt.Errorf("invalid kindness_cron %q: %w", c.KindnessCron, err)
		}
	}
	if strings.TrimSpace(c.Channel) == "" {
		return errors.New("channel is required when enabled=true")
	}
	return nil
}

// Validate validates cost limits.
func (c CostsConfig) Validate() error {
	if c.DailyLimit < 0 || c.MonthlyLimit < 0 {
		return errors.New("limits must be >= 0")
	}
	return nil
}

// ValidateStartup validates startup configuration and returns warning messages.
func ValidateStartup(cfg *Config) (*ValidationReport, error) {
	var errs []error
	report := &ValidationReport{}

	if len(cfg.LLM) == 0 {
		errs = append(errs, errors.New("at least one llm.* profile is required"))
	}

	sections := []struct {
		name    string
		section Validatable
	}{
		{"server", cfg.Server},
		{"coach", cfg.Coach},
		{"session", cfg.Session},
		{"reflection", cfg.Reflection},
		{"costs", cfg.Costs},
	}
	for _, s := range sections {
		if err := s.section.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}

	for name, llmCfg := range cfg.LLM {
		if err := llmCfg.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("llm.%s: %w", name, err))
		}
	}
	for name, chCfg := range cfg.Channels {
		if err := chCfg.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("channels.%s: %w", name, err))
		}
		if name == defaultTelegramChannel && chCfg.Enabled && len(chCfg.AllowedUsers) == 0 {
			report.Warnings = append(report.Warnings, "channels.telegram.allowed_users is empty")
		}
	}

	if cfg.Reflection.Enabled {
		if ch, ok := cfg.Channels[cfg.Reflection.Channel]; !ok || !ch.Enabled {
			report.Warnings = append(report.Warnings, fmt.Sprintf("reflection channel %q is not enabled", cfg.Reflection.Channel))
		}
	}
	if cfg.Server.Passcode == "" && !isLoopback(cfg.Server.Listen) {
		report.Warnings = append(report.Warnings, "server.passcode is empty on a non-loopback listen address")
	}

	if len(errs) > 0 {
		return report, errors.Join(errs...)
	}
	return report, nil
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
