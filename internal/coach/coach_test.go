package coach

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/compas-coach/compas/internal/costs"
	"github.com/compas-coach/compas/internal/ledger"
	"github.com/compas-coach/compas/internal/memory"
	"github.com/compas-coach/compas/internal/provider"
	"github.com/compas-coach/compas/internal/runtime"
	"github.com/compas-coach/compas/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu       sync.Mutex
	requests []provider.ChatRequest
	replies  []string
	err      error
	block    bool
}

func (f *fakeProvider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	reply := "ok"
	f.mu.Lock()
	if len(f.replies) > 0 {
		reply = f.replies[0]
		f.replies = f.replies[1:]
	}
	f.mu.Unlock()
	return &provider.ChatResponse{
		Content: reply,
		Model:   "gpt-4o-mini",
		Usage:   provider.TokenUsage{InputTokens: 1000, OutputTokens: 100, TotalTokens: 1100},
	}, nil
}

func (f *fakeProvider) lastRequest(t *testing.T) provider.ChatRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

type testEnv struct {
	service  *Service
	provider *fakeProvider
	ledger   *ledger.Ledger
	facts    *memory.Store
	dir      string
}

func newTestEnv(t *testing.T, p *fakeProvider, mutate ...func(*Options)) *testEnv {
	t.Helper()
	dir := t.TempDir()

	l, err := ledger.Open(context.Background(), filepath.Join(dir, "compas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	facts := memory.New(filepath.Join(dir, "memory.json"), filepath.Join(dir, "profile.json"))
	opts := Options{
		Provider:     p,
		ProviderName: "openai",
		Model:        "gpt-4o-mini",
		Facts:        facts,
		Ledger:       l,
		Sessions:     session.NewLRU(8, time.Hour, 20),
		Costs:        costs.New(filepath.Join(dir, "costs.jsonl")),
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	return &testEnv{service: New(opts), provider: p, ledger: l, facts: facts, dir: dir}
}

func TestHandleChatTurnEmptyInput(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{})

	_, err := env.service.HandleChatTurn(context.Background(), "s1", "   ")
	require.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, env.provider.requests)
}

func TestHandleChatTurnRecordsSuggestions(t *testing.T) {
	p := &fakeProvider{replies: []string{"Breathe first.\n- bring tea\n- short walk at 6"}}
	env := newTestEnv(t, p)

	result, err := env.service.HandleChatTurn(context.Background(), "", "we had a big fight about the plan")
	require.NoError(t, err)

	assert.Equal(t, DefaultSessionID, result.SessionID)
	assert.Equal(t, ModeRepair, result.Mode)
	assert.Nil(t, result.ModelError)
	require.Len(t, result.Suggestions, 2)
	assert.Equal(t, "bring tea", result.Suggestions[0].Text)
	assert.Equal(t, ledger.KindPlan, result.Suggestions[0].Kind)
	assert.Less(t, result.Suggestions[0].ID, result.Suggestions[1].ID)

	req := p.lastRequest(t)
	assert.Contains(t, req.SystemPrompt, "Max 120 words")
	assert.Contains(t, req.SystemPrompt, "– (no prior wins yet)")
	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, DefaultTemperature, *req.Temperature)

	stored, err := env.ledger.Suggestion(context.Background(), result.Suggestions[0].ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"default","mode":"REPAIR"}`, stored.Context)
}

func TestFeedbackFeedsNextTurnLessons(t *testing.T) {
	p := &fakeProvider{replies: []string{"- bring tea", "Glad it helped."}}
	env := newTestEnv(t, p)
	ctx := context.Background()

	first, err := env.service.HandleChatTurn(ctx, "s1", "she seems tired")
	require.NoError(t, err)
	require.Len(t, first.Suggestions, 1)

	for _, outcome := range []string{"success", "success", "fail"} {
		require.NoError(t, env.service.HandleFeedback(ctx, first.Suggestions[0].ID, outcome, ""))
	}

	lessons, err := env.service.Lessons(ctx)
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.InDelta(t, 0.6, lessons[0].Score, 1e-9)

	_, err = env.service.HandleChatTurn(ctx, "s1", "what next?")
	require.NoError(t, err)
	assert.Contains(t, p.lastRequest(t).SystemPrompt, "– bring tea (worked before)")
}

func TestHandleChatTurnCarriesSessionHistory(t *testing.T) {
	p := &fakeProvider{replies: []string{"first reply", "second reply"}}
	env := newTestEnv(t, p)
	ctx := context.Background()

	_, err := env.service.HandleChatTurn(ctx, "s1", "hello")
	require.NoError(t, err)
	_, err = env.service.HandleChatTurn(ctx, "s1", "again")
	require.NoError(t, err)

	msgs := p.lastRequest(t).Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, provider.ChatMessage{Role: provider.RoleUser, Content: "hello"}, msgs[0])
	assert.Equal(t, provider.ChatMessage{Role: provider.RoleAssistant, Content: "first reply"}, msgs[1])
	assert.Equal(t, "again", msgs[2].Content)

	_, err = env.service.HandleChatTurn(ctx, "other", "separate")
	require.NoError(t, err)
	assert.Len(t, p.lastRequest(t).Messages, 1)
}

func TestHandleChatTurnModelFailureReturnsPlaceholder(t *testing.T) {
	p := &fakeProvider{err: errors.New("connection refused")}
	env := newTestEnv(t, p)
	ctx := context.Background()

	result, err := env.service.HandleChatTurn(ctx, "s1", "hello")
	require.NoError(t, err)
	require.NotNil(t, result.ModelError)
	assert.ErrorIs(t, result.ModelError, ErrModelUnavailable)
	assert.NotErrorIs(t, result.ModelError, ErrQuotaExceeded)
	assert.Equal(t, "model_unavailable", result.ModelError.Kind())
	assert.Equal(t, unavailableReply, result.Reply)
	assert.NotContains(t, result.Reply, "connection refused")
	assert.Empty(t, result.Suggestions)

	history, err := env.service.opts.Sessions.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHandleChatTurnQuotaFailure(t *testing.T) {
	p := &fakeProvider{err: &provider.Error{Provider: "openai", StatusCode: http.StatusTooManyRequests, Code: "insufficient_quota"}}
	env := newTestEnv(t, p)

	result, err := env.service.HandleChatTurn(context.Background(), "s1", "hello")
	require.NoError(t, err)
	require.NotNil(t, result.ModelError)
	assert.True(t, result.ModelError.Quota)
	assert.ErrorIs(t, result.ModelError, ErrQuotaExceeded)
	assert.ErrorIs(t, result.ModelError, ErrModelUnavailable)
	assert.Equal(t, quotaReply, result.Reply)
}

func TestHandleChatTurnTimeout(t *testing.T) {
	p := &fakeProvider{block: true}
	env := newTestEnv(t, p, func(o *Options) { o.Timeout = 20 * time.Millisecond })

	started := time.Now()
	result, err := env.service.HandleChatTurn(context.Background(), "s1", "hello")
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 2*time.Second)
	require.NotNil(t, result.ModelError)
	assert.True(t, result.ModelError.Timeout)
	assert.Equal(t, "timeout", result.ModelError.Kind())
}

func TestHandleChatTurnSpendLimitSkipsModel(t *testing.T) {
	p := &fakeProvider{}
	env := newTestEnv(t, p, func(o *Options) { o.Limits = costs.Limits{DailyUSD: 1} })
	tracker := costs.New(filepath.Join(env.dir, "costs.jsonl"))
	require.NoError(t, tracker.Append(context.Background(), costs.Record{Timestamp: time.Now(), CostUSD: 1}))

	result, err := env.service.HandleChatTurn(context.Background(), "s1", "hello")
	require.NoError(t, err)
	assert.Empty(t, p.requests)
	require.NotNil(t, result.ModelError)
	assert.ErrorIs(t, result.ModelError, ErrQuotaExceeded)
	assert.ErrorIs(t, result.ModelError, costs.ErrLimitReached)
}

func TestHandleChatTurnRecordsUsage(t *testing.T) {
	p := &fakeProvider{}
	env := newTestEnv(t, p)

	_, err := env.service.HandleChatTurn(context.Background(), "s1", "hello")
	require.NoError(t, err)

	spend, err := costs.New(filepath.Join(env.dir, "costs.jsonl")).Spend(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Greater(t, spend.TodayUSD, 0.0)
}

func TestHandleChatTurnDegradesOnCorruptStorage(t *testing.T) {
	p := &fakeProvider{}
	env := newTestEnv(t, p)
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "memory.json"), []byte("{oops"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "profile.json"), []byte("[not an object"), 0o644))

	result, err := env.service.HandleChatTurn(context.Background(), "s1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Reply)

	prompt := p.lastRequest(t).SystemPrompt
	assert.Contains(t, prompt, "Lisa Profile:\n{}")
	assert.Contains(t, prompt, `"facts": []`)
}

func TestHandleChatTurnIncludesFactsAndProfile(t *testing.T) {
	p := &fakeProvider{}
	env := newTestEnv(t, p)
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "profile.json"), []byte(`{"lisa":{"diet":"vegetarian"}}`), 0o644))
	_, _, err := env.facts.Add("Hates surprise parties")
	require.NoError(t, err)

	_, err = env.service.HandleChatTurn(context.Background(), "s1", "hello")
	require.NoError(t, err)

	prompt := p.lastRequest(t).SystemPrompt
	assert.Contains(t, prompt, `"diet": "vegetarian"`)
	assert.Contains(t, prompt, "Hates surprise parties")
}

func TestHandleFeedbackValidation(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{})
	ctx := context.Background()

	assert.ErrorIs(t, env.service.HandleFeedback(ctx, 1, "maybe", ""), ErrInvalidOutcome)
	assert.ErrorIs(t, env.service.HandleFeedback(ctx, 0, "success", ""), ErrMissingField)

	stats, err := env.ledger.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Feedback)
}

func TestHandleMemoryOp(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{})
	ctx := context.Background()

	added, err := env.service.HandleMemoryOp(ctx, MemoryOp{Cmd: MemoryAdd, Text: "Loves hedgehogs"})
	require.NoError(t, err)
	require.NotNil(t, added.Fact)
	assert.False(t, added.Duplicate)

	dup, err := env.service.HandleMemoryOp(ctx, MemoryOp{Cmd: "ADD", Text: "loves hedgehogs"})
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	assert.Equal(t, MemoryAdd, dup.Cmd)

	listed, err := env.service.HandleMemoryOp(ctx, MemoryOp{Cmd: " List "})
	require.NoError(t, err)
	require.Len(t, listed.Facts, 1)
	assert.Equal(t, MemoryList, listed.Cmd)

	deleted, err := env.service.HandleMemoryOp(ctx, MemoryOp{Cmd: MemoryDelete, Key: "HEDGE"})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted.Removed)

	_, err = env.service.HandleMemoryOp(ctx, MemoryOp{Cmd: MemoryAdd, Text: " "})
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = env.service.HandleMemoryOp(ctx, MemoryOp{Cmd: MemoryDelete})
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = env.service.HandleMemoryOp(ctx, MemoryOp{Cmd: "purge"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestResetSession(t *testing.T) {
	p := &fakeProvider{}
	env := newTestEnv(t, p)
	ctx := context.Background()

	_, err := env.service.HandleChatTurn(ctx, "", "hello")
	require.NoError(t, err)
	require.NoError(t, env.service.ResetSession(ctx, ""))

	_, err = env.service.HandleChatTurn(ctx, "", "hello again")
	require.NoError(t, err)
	assert.Len(t, p.lastRequest(t).Messages, 1)
}

func TestServiceGiftIdeasUsesPartnerName(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, func(o *Options) { o.Composer = Composer{PartnerName: "Alex"} })
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "profile.json"), []byte(`{"alex":{"diet":"veg"}}`), 0o644))

	ideas := env.service.GiftIdeas(context.Background())
	require.Len(t, ideas, 2)
	assert.Contains(t, ideas[0], "vegetarian")
}

type replyCapture struct {
	messages []string
	replies  []runtime.Reply
}

func (w *replyCapture) WriteMessage(_ context.Context, text string) error {
	w.messages = append(w.messages, text)
	return nil
}

func (w *replyCapture) WriteReply(_ context.Context, reply runtime.Reply) error {
	w.replies = append(w.replies, reply)
	return nil
}

func TestHandleMessageWritesReplyWithSuggestions(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{replies: []string{"Try this:\n- hug first"}})
	w := &replyCapture{}

	err := env.service.HandleMessage(context.Background(), w, &runtime.Message{Text: "I miss her", SessionID: "cli"})
	require.NoError(t, err)
	require.Len(t, w.replies, 1)
	assert.Equal(t, "Try this:\n- hug first", w.replies[0].Text)
	require.Len(t, w.replies[0].Suggestions, 1)
	assert.Equal(t, "hug first", w.replies[0].Suggestions[0].Text)
	assert.NotZero(t, w.replies[0].Suggestions[0].ID)
}

func TestHandleMessageBlankText(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{})
	w := &replyCapture{}

	require.NoError(t, env.service.HandleMessage(context.Background(), w, &runtime.Message{Text: "  "}))
	assert.Equal(t, []string{emptyMessageReply}, w.messages)
	assert.Empty(t, env.provider.requests)
}
