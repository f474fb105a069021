package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/compas-coach/compas/internal/config"
)

const defaultOpenRouterURL = "https://openrouter.ai/api/v1/chat/completions"

type openRouterProvider struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	endpoint    string
	httpClient  *http.Client
}

func newOpenRouterProvider(cfg config.LLMProviderConfig) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openrouter api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("openrouter model is required")
	}
	endpoint := defaultOpenRouterURL
	if cfg.BaseURL != "" {
		endpoint = strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	}
	return &openRouterProvider{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		endpoint:    endpoint,
		httpClient:  http.DefaultClient,
	}, nil
}

func newOpenRouterProviderForTest(apiKey, model string, maxTokens int, endpoint string, httpClient *http.Client) (Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openrouter api key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("openrouter model is required")
	}
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("openrouter endpoint is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &openRouterProvider{
		apiKey:     apiKey,
		model:      model,
		maxTokens:  maxTokens,
		endpoint:   endpoint,
		httpClient: httpClient,
	}, nil
}

// Chat sends a provider-agnostic chat request to OpenRouter and normalizes the response.
func (p *openRouterProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	temperature := resolveTemperature(req.Temperature, p.temperature)
	payload := openRouterRequest{
		Model:       p.model,
		Messages:    toOpenRouterMessages(req.Messages),
		MaxTokens:   resolveMaxTokens(req.MaxTokens, p.maxTokens),
		Temperature: &temperature,
	}
	if req.SystemPrompt != "" {
		payload.Messages = append([]openRouterMessage{{
			Role:    "system",
			Content: req.SystemPrompt,
		}}, payload.Messages...)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal openrouter request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build openrouter request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Provider: "openrouter", Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &Error{Provider: "openrouter", Err: fmt.Errorf("read response: %w", err)}
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &Error{
			Provider:   "openrouter",
			StatusCode: httpResp.StatusCode,
			Code:       openRouterErrorCode(respBody),
			Err:        fmt.Errorf("%s: %s", httpResp.Status, strings.TrimSpace(string(respBody))),
		}
	}

	var parsed openRouterResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &Error{Provider: "openrouter", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &Error{Provider: "openrouter", Err: fmt.Errorf("response has no choices")}
	}

	return &ChatResponse{
		Content: parsed.Choices[0].Message.Content,
		Model:   parsed.Model,
		Usage: TokenUsage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
			CostUSD:      parseOptionalCost(parsed.Usage.Cost),
		},
	}, nil
}

type openRouterRequest struct {
	Model       string              `json:"model"`
	Messages    []openRouterMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message openRouterMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
		Cost             any `json:"cost"`
	} `json:"usage"`
}

// openRouterErrorCode pulls error.code out of an error body; OpenRouter
// sends it as either a number or a string.
func openRouterErrorCode(body []byte) string {
	var parsed struct {
		Error struct {
			Code any `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	switch v := parsed.Error.Code.(type) {
	case string:
		return v
	case float64:
		return strconv.Itoa(int(v))
	default:
		return ""
	}
}

func parseOptionalCost(raw any) *float64 {
	switch v := raw.(type) {
	case float64:
		out := v
		return &out
	case string:
		value := strings.TrimSpace(v)
		if value == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil
		}
		return &parsed
	default:
		return nil
	}
}

func toOpenRouterMessages(messages []ChatMessage) []openRouterMessage {
	out := make([]openRouterMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, openRouterMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return out
}
