package provider

import (
	"fmt"
	"strings"

	"github.com/compas-coach/compas/internal/config"
)

func resolveMaxTokens(requestMaxTokens, configuredMaxTokens int) int {
	if requestMaxTokens > 0 {
		return requestMaxTokens
	}
	return configuredMaxTokens
}

func resolveTemperature(requestTemperature *float64, configured float64) float64 {
	if requestTemperature != nil {
		return *requestTemperature
	}
	return configured
}

// NewProviderFromConfig builds an LLM provider from the selected LLM profile.
func NewProviderFromConfig(cfg config.LLMProviderConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		return newOpenAIProvider(cfg)
	case "anthropic":
		return newAnthropicProvider(cfg)
	case "openrouter":
		return newOpenRouterProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
