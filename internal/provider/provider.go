// Package provider wraps the chat-completion backends the coach talks to behind one interface.
package provider

import "context"

// Provider sends chat requests to an LLM backend.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Role is the author role for a chat message.
type Role string

const (
	// RoleUser is a user-authored message.
	RoleUser Role = "user"
	// RoleAssistant is an assistant-authored message.
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single message in model conversation history.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TokenUsage reports provider token accounting for one response.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	// CostUSD is set when the backend reports the charge itself.
	CostUSD *float64
}

// ChatRequest is the provider-agnostic request payload. Zero MaxTokens or a
// nil Temperature fall back to the provider's configured values.
type ChatRequest struct {
	SystemPrompt string
	Messages     []ChatMessage
	MaxTokens    int
	Temperature  *float64
}

// ChatResponse is the provider-agnostic response payload.
type ChatResponse struct {
	Content string
	Model   string
	Usage   TokenUsage
}
