package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/compas-coach/compas/internal/config"
)

type anthropicProvider struct {
	client      anthropic.Client
	model       anthropic.Model
	maxTokens   int
	temperature float64
}

func newAnthropicProvider(cfg config.LLMProviderConfig) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicProvider{
		client:      anthropic.NewClient(opts...),
		model:       anthropic.Model(cfg.Model),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func newAnthropicProviderForTest(apiKey, model string, maxTokens int, baseURL string, httpClient *http.Client) (Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}

	return &anthropicProvider{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}, nil
}

// Chat sends a provider-agnostic chat request to Anthropic and normalizes the response.
func (p *anthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	msgs, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	maxTokens := resolveMaxTokens(req.MaxTokens, p.maxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	body := anthropic.MessageNewParams{
		Model:       p.model,
		MaxTokens:   int64(maxTokens),
		Messages:    msgs,
		Temperature: anthropic.Float(resolveTemperature(req.Temperature, p.temperature)),
	}
	if req.SystemPrompt != "" {
		body.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	msg, err := p.client.Messages.New(ctx, body)
	if err != nil {
		return nil, classify("anthropic", err)
	}

	var contentParts []string
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.TextBlock); ok && v.Text != "" {
			contentParts = append(contentParts, v.Text)
		}
	}

	usage := TokenUsage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens

	return &ChatResponse{
		Content: strings.Join(contentParts, "\n"),
		Model:   string(msg.Model),
		Usage:   usage,
	}, nil
}

// toAnthropicMessages merges consecutive same-role turns, which the API rejects.
func toAnthropicMessages(messages []ChatMessage) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	var lastRole Role
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == lastRole && len(out) > 0 {
			out[len(out)-1].Content = append(out[len(out)-1].Content, block)
			continue
		}
		switch msg.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(block))
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(block))
		default:
			return nil, fmt.Errorf("unsupported message role %s", msg.Role)
		}
		lastRole = msg.Role
	}
	return out, nil
}
