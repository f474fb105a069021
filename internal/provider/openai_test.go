package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIProviderChat_RequestAndResponse(t *testing.T) {
	var gotAuth string
	var gotReq map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"chatcmpl-1",
			"object":"chat.completion",
			"created":1700000000,
			"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"- bring tea\n- short walk"}}],
			"usage":{"prompt_tokens":40,"completion_tokens":12,"total_tokens":52}
		}`))
	}))
	defer srv.Close()

	p, err := newOpenAIProviderForTest("test-key", "gpt-4o-mini", 260, srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	temperature := 0.3
	resp, err := p.Chat(context.Background(), ChatRequest{
		SystemPrompt: "be concise",
		Temperature:  &temperature,
		Messages: []ChatMessage{
			{Role: RoleUser, Content: "we argued"},
			{Role: RoleAssistant, Content: "breathe"},
			{Role: RoleUser, Content: "ok"},
		},
	})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotReq["model"] != "gpt-4o-mini" {
		t.Fatalf("unexpected model: %#v", gotReq["model"])
	}
	if int(gotReq["max_tokens"].(float64)) != 260 {
		t.Fatalf("expected configured max_tokens, got %#v", gotReq["max_tokens"])
	}
	if gotReq["temperature"] != 0.3 {
		t.Fatalf("unexpected temperature: %#v", gotReq["temperature"])
	}
	msgs := gotReq["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if role := msgs[0].(map[string]any)["role"]; role != "system" {
		t.Fatalf("expected system first, got %v", role)
	}

	if resp.Content != "- bring tea\n- short walk" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if resp.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected model: %q", resp.Model)
	}
	if resp.Usage.InputTokens != 40 || resp.Usage.OutputTokens != 12 || resp.Usage.TotalTokens != 52 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestOpenAIProviderChat_InsufficientQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","param":null,"code":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	p, err := newOpenAIProviderForTest("test-key", "gpt-4o-mini", 0, srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	_, err = p.Chat(context.Background(), ChatRequest{Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}}})
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
	if perr.Provider != "openai" || perr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected error fields: %+v", perr)
	}
	if !perr.IsQuota() {
		t.Fatalf("expected quota classification")
	}
}

func TestOpenAIProviderChat_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	p, err := newOpenAIProviderForTest("test-key", "gpt-4o-mini", 0, srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	_, err = p.Chat(context.Background(), ChatRequest{Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if IsQuota(err) {
		t.Fatalf("500 must not classify as quota")
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Provider: "openai", StatusCode: 429, Code: "insufficient_quota", Err: errors.New("no credits")}
	want := "openai request failed (status 429) [insufficient_quota]: no credits"
	if err.Error() != want {
		t.Fatalf("unexpected message:\n got %q\nwant %q", err.Error(), want)
	}
}
