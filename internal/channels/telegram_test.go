package channels

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/compas-coach/compas/internal/commands"
	"github.com/compas-coach/compas/internal/ledger"
	"github.com/compas-coach/compas/internal/runtime"
)

func TestFormatTelegramMappings(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bold",
			input:    "**bold**",
			expected: "<b>bold</b>",
		},
		{
			name:     "italic",
			input:    "*italic*",
			expected: "<i>italic</i>",
		},
		{
			name:     "strikethrough",
			input:    "~~gone~~",
			expected: "<s>gone</s>",
		},
		{
			name:     "heading",
			input:    "# Title",
			expected: "<b>Title</b>\n",
		},
		{
			name:     "inline code",
			input:    "`echo hi`",
			expected: "<code>echo hi</code>",
		},
		{
			name:     "fenced code",
			input:    "```go\nfmt.Println(\"hi\")\n```",
			expected: "<pre><code>fmt.Println(&#34;hi&#34;)\n</code></pre>",
		},
		{
			name:     "link",
			input:    "[site](https://example.com)",
			expected: `<a href="https://example.com">site</a>`,
		},
		{
			name:     "list item",
			input:    "- one\n- two",
			expected: "- one\n- two\n",
		},
		{
			name:     "ordered list",
			input:    "1. one\n2. two",
			expected: "1. one\n2. two\n",
		},
		{
			name:     "escapes angle brackets",
			input:    "a < b & c",
			expected: "a &lt; b &amp; c",
		},
		{
			name:     "plain passthrough",
			input:    "hello world",
			expected: "hello world",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := formatTelegram(tt.input)
			if !ok {
				t.Fatalf("expected format success for input %q", tt.input)
			}
			if got != tt.expected {
				t.Fatalf("unexpected format output\ninput: %q\ngot: %q\nexpected: %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFormatTelegram_OmitsImagesAndRawHTML(t *testing.T) {
	got, ok := formatTelegram(`<b>raw</b> ![img](https://example.com/a.png)`)
	if !ok {
		t.Fatal("expected format success")
	}
	if strings.Contains(got, "<b>") || strings.Contains(got, "</b>") {
		t.Fatalf("expected raw html tags to be omitted, got %q", got)
	}
	if strings.Contains(got, "<img") {
		t.Fatalf("expected image tags to be omitted, got %q", got)
	}
}

func TestFormatTelegram_RenderErrorFallback(t *testing.T) {
	formatted, err := renderTelegram("hello", nil)
	if err == nil {
		t.Fatal("expected render error for nil parser")
	}
	if formatted != "" {
		t.Fatalf("expected empty formatted output on render failure, got %q", formatted)
	}
}

func TestTelegramWriterWriteMessage_UsesHTMLParseMode(t *testing.T) {
	listener := NewTelegram("token", nil, nil)
	api := newMockTelegramAPI()
	api.install(listener)

	writer := &telegramWriter{listener: listener, chatID: 42}
	if err := writer.WriteMessage(context.Background(), "**ok**"); err != nil {
		t.Fatalf("write message: %v", err)
	}

	sent := api.lastSend(t)
	if sent.ParseMode != models.ParseModeHTML {
		t.Fatalf("expected ParseModeHTML, got %q", sent.ParseMode)
	}
	if sent.Text != "<b>ok</b>" {
		t.Fatalf("unexpected formatted text: %q", sent.Text)
	}
	if sent.ReplyMarkup != nil {
		t.Fatalf("expected no keyboard on plain message, got %#v", sent.ReplyMarkup)
	}
}

func TestTelegramWriterWriteMessage_FormatterFailureFallsBackToPlain(t *testing.T) {
	original := telegramMarkdown
	telegramMarkdown = nil
	defer func() {
		telegramMarkdown = original
	}()

	listener := NewTelegram("token", nil, nil)
	api := newMockTelegramAPI()
	api.install(listener)

	writer := &telegramWriter{listener: listener, chatID: 42}
	if err := writer.WriteMessage(context.Background(), "**ok**"); err != nil {
		t.Fatalf("write message: %v", err)
	}

	sent := api.lastSend(t)
	if sent.ParseMode != "" {
		t.Fatalf("expected empty parse mode on formatter failure, got %q", sent.ParseMode)
	}
	if sent.Text != "**ok**" {
		t.Fatalf("expected plain fallback text, got %q", sent.Text)
	}
}

func TestTelegramWriterWriteReply_AttachesFeedbackKeyboard(t *testing.T) {
	listener := NewTelegram("token", []int64{111}, &fakeFeedback{})
	api := newMockTelegramAPI()
	api.install(listener)

	writer := &telegramWriter{listener: listener, chatID: 42}
	err := runtime.WriteReply(context.Background(), writer, runtime.Reply{
		Text:        "Try:\n- tea\n- walk",
		Suggestions: []runtime.Suggestion{{ID: 7, Text: "tea"}, {ID: 8, Text: "walk"}},
	})
	if err != nil {
		t.Fatalf("write reply: %v", err)
	}

	sent := api.lastSend(t)
	markup, ok := sent.ReplyMarkup.(*models.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline keyboard markup, got %T", sent.ReplyMarkup)
	}
	if len(markup.InlineKeyboard) != 2 || len(markup.InlineKeyboard[0]) != 3 {
		t.Fatalf("expected 2 rows of 3 buttons, got %#v", markup.InlineKeyboard)
	}
	if got := markup.InlineKeyboard[0][0].CallbackData; got != "fb:success:7" {
		t.Fatalf("unexpected first callback data %q", got)
	}
	if got := markup.InlineKeyboard[1][2].CallbackData; got != "fb:fail:8" {
		t.Fatalf("unexpected last callback data %q", got)
	}
	if got := markup.InlineKeyboard[1][0].Text; !strings.HasPrefix(got, "2 ") {
		t.Fatalf("expected second row numbered 2, got %q", got)
	}
}

func TestTelegramWriterWriteReply_NoKeyboardWithoutFeedback(t *testing.T) {
	listener := NewTelegram("token", []int64{111}, nil)
	api := newMockTelegramAPI()
	api.install(listener)

	writer := &telegramWriter{listener: listener, chatID: 42}
	if err := writer.WriteReply(context.Background(), runtime.Reply{
		Text:        "- tea",
		Suggestions: []runtime.Suggestion{{ID: 7, Text: "tea"}},
	}); err != nil {
		t.Fatalf("write reply: %v", err)
	}
	if sent := api.lastSend(t); sent.ReplyMarkup != nil {
		t.Fatalf("expected no keyboard, got %#v", sent.ReplyMarkup)
	}
}

func TestTelegramFeedbackCallback_RecordsOutcome(t *testing.T) {
	feedback := &fakeFeedback{}
	listener := NewTelegram("token", []int64{111}, feedback)
	api := newMockTelegramAPI()
	api.install(listener)

	listener.handleFeedbackCallback(context.Background(), &models.CallbackQuery{
		ID:   "cb-1",
		From: models.User{ID: 111},
		Data: "fb:neutral:12",
	})

	if len(feedback.calls) != 1 || feedback.calls[0].id != 12 || feedback.calls[0].outcome != "neutral" {
		t.Fatalf("unexpected feedback calls %#v", feedback.calls)
	}
	answers := api.answers()
	if len(answers) != 1 || answers[0].CallbackQueryID != "cb-1" || answers[0].Text != "Noted." {
		t.Fatalf("unexpected callback answers %#v", answers)
	}
}

func TestTelegramFeedbackCallback_IgnoresStrangersAndBadData(t *testing.T) {
	feedback := &fakeFeedback{}
	listener := NewTelegram("token", []int64{111}, feedback)
	api := newMockTelegramAPI()
	api.install(listener)

	listener.handleFeedbackCallback(context.Background(), &models.CallbackQuery{ID: "a", From: models.User{ID: 999}, Data: "fb:success:1"})
	listener.handleFeedbackCallback(context.Background(), &models.CallbackQuery{ID: "b", From: models.User{ID: 111}, Data: "fb:maybe:1"})
	listener.handleFeedbackCallback(context.Background(), &models.CallbackQuery{ID: "c", From: models.User{ID: 111}, Data: "fb:success:x"})

	if len(feedback.calls) != 0 {
		t.Fatalf("expected no feedback recorded, got %#v", feedback.calls)
	}
	if got := len(api.answers()); got != 3 {
		t.Fatalf("expected every callback answered, got %d", got)
	}
}

func TestTelegramFeedbackCallback_StorageFailure(t *testing.T) {
	listener := NewTelegram("token", []int64{111}, &fakeFeedback{err: errors.New("disk full")})
	api := newMockTelegramAPI()
	api.install(listener)

	listener.handleFeedbackCallback(context.Background(), &models.CallbackQuery{ID: "a", From: models.User{ID: 111}, Data: "fb:success:1"})
	answers := api.answers()
	if len(answers) != 1 || !strings.Contains(answers[0].Text, "Couldn't save") {
		t.Fatalf("unexpected answers %#v", answers)
	}
}

func TestParseFeedbackData(t *testing.T) {
	outcome, id, ok := parseFeedbackData(feedbackData(ledger.OutcomeFail, 99))
	if !ok || outcome != ledger.OutcomeFail || id != 99 {
		t.Fatalf("round trip failed: %q %d %v", outcome, id, ok)
	}
	for _, data := range []string{"", "fb:", "fb:success", "fb:success:0", "gift:1"} {
		if _, _, ok := parseFeedbackData(data); ok {
			t.Fatalf("expected %q rejected", data)
		}
	}
}

func TestTelegramListener_AllowedUserIsDispatchedWithChatSession(t *testing.T) {
	listener := NewTelegram("token", []int64{111}, nil)
	api := newMockTelegramAPI()
	api.install(listener)

	handler := &telegramTestHandler{done: make(chan *runtime.Message, 2)}
	dispatcher, stop := startTestDispatcher(t, handler)
	defer stop()

	listener.handleInboundMessage(context.Background(), dispatcher, &models.Message{
		From: &models.User{ID: 111, Username: "alice"},
		Chat: models.Chat{ID: 10},
		Text: "  hello  ",
	})

	select {
	case msg := <-handler.done:
		if msg.Text != "hello" || msg.SessionID != "telegram:10" || msg.Channel != "telegram" {
			t.Fatalf("unexpected dispatched message %#v", msg)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("expected authorized message to be dispatched")
	}
}

func TestTelegramListener_UnauthorizedUserIsDropped(t *testing.T) {
	listener := NewTelegram("token", []int64{222}, nil)
	api := newMockTelegramAPI()
	api.install(listener)

	handler := &telegramTestHandler{done: make(chan *runtime.Message, 2)}
	dispatcher, stop := startTestDispatcher(t, handler)
	defer stop()

	listener.handleInboundMessage(context.Background(), dispatcher, &models.Message{
		From: &models.User{ID: 111, Username: "alice"},
		Chat: models.Chat{ID: 10},
		Text: "hello",
	})

	select {
	case msg := <-handler.done:
		t.Fatalf("expected no handler call for unauthorized user, got %#v", msg)
	case <-time.After(80 * time.Millisecond):
	}
	if got := api.sends(); len(got) != 0 {
		t.Fatalf("expected no outbound messages, got %#v", got)
	}
}

func TestTelegramListener_HelpCommandHandledByCommandsHandler(t *testing.T) {
	listener := NewTelegram("token", []int64{111}, nil)
	api := newMockTelegramAPI()
	api.install(listener)

	next := &telegramTestHandler{done: make(chan *runtime.Message, 2)}
	router := commands.Router{
		Commands: commands.New(nil, nil),
		Next:     next,
	}
	dispatcher, stop := startTestDispatcher(t, router)
	defer stop()

	listener.handleInboundMessage(context.Background(), dispatcher, &models.Message{
		From: &models.User{ID: 111, Username: "alice"},
		Chat: models.Chat{ID: 10},
		Text: "/help",
	})

	sent := api.lastSend(t)
	select {
	case <-next.done:
		t.Fatal("expected /help to be handled before the coach")
	case <-time.After(80 * time.Millisecond):
	}
	if !strings.Contains(sent.Text, "Commands: /help") {
		t.Fatalf("unexpected /help response: %q", sent.Text)
	}
}

func TestTelegramTypingHandler_SendsTypingForNonSlash(t *testing.T) {
	slow := runtime.HandlerFunc(func(ctx context.Context, w runtime.ResponseWriter, _ *runtime.Message) error {
		time.Sleep(20 * time.Millisecond)
		return w.WriteMessage(ctx, "ok")
	})

	tests := []struct {
		text       string
		wantTyping bool
	}{
		{text: "hello", wantTyping: true},
		{text: "/facts", wantTyping: false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			listener := NewTelegram("token", []int64{111}, nil)
			api := newMockTelegramAPI()
			api.install(listener)

			handler := &telegramTypingHandler{listener: listener, handler: slow}
			writer := &telegramWriter{listener: listener, chatID: 10}
			if err := handler.HandleMessage(context.Background(), writer, &runtime.Message{Text: tt.text}); err != nil {
				t.Fatalf("handle: %v", err)
			}
			if got := api.typingCount() > 0; got != tt.wantTyping {
				t.Fatalf("typing sent = %v, want %v", got, tt.wantTyping)
			}
		})
	}
}

func TestTelegramBroadcastWriter_SendsToEveryAllowedUser(t *testing.T) {
	listener := NewTelegram("token", []int64{111, 222}, nil)
	api := newMockTelegramAPI()
	api.install(listener)

	if _, err := listener.BroadcastWriter().Write([]byte("Time to reflect")); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	chats := map[int64]bool{}
	for _, sent := range api.sends() {
		chats[chatIDFromAny(sent.ChatID)] = true
	}
	if !chats[111] || !chats[222] || len(chats) != 2 {
		t.Fatalf("expected sends to 111 and 222, got %#v", chats)
	}
}

func TestTelegramChannelWriter_NotConnected(t *testing.T) {
	listener := NewTelegram("token", nil, nil)
	if _, err := listener.ChannelWriter(42).Write([]byte("hi")); err == nil {
		t.Fatal("expected error before the bot is connected")
	}
}

func TestMessagePreview_TruncatesToLimit(t *testing.T) {
	if got := messagePreview("héllo world", 5); got != "héllo" {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := messagePreview("hi", 0); got != "" {
		t.Fatalf("expected empty preview for zero limit, got %q", got)
	}
}

type feedbackCall struct {
	id      int64
	outcome string
}

type fakeFeedback struct {
	calls []feedbackCall
	err   error
}

func (f *fakeFeedback) HandleFeedback(_ context.Context, id int64, outcome, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, feedbackCall{id: id, outcome: outcome})
	return nil
}

type telegramTestHandler struct {
	done chan *runtime.Message
}

func (h *telegramTestHandler) HandleMessage(ctx context.Context, w runtime.ResponseWriter, msg *runtime.Message) error {
	select {
	case h.done <- msg:
	default:
	}
	return w.WriteMessage(ctx, "ok")
}

func startTestDispatcher(t *testing.T, handler runtime.Handler) (*runtime.Dispatcher, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := runtime.NewDispatcher(handler, defaultDispatchQueue)
	if err := dispatcher.Start(ctx); err != nil {
		cancel()
		t.Fatalf("start dispatcher: %v", err)
	}
	return dispatcher, func() {
		cancel()
		dispatcher.Wait()
	}
}

type mockTelegramAPI struct {
	mu          sync.Mutex
	sendCalls   []*bot.SendMessageParams
	answerCalls []*bot.AnswerCallbackQueryParams
	typing      int
	sendSignal  chan struct{}
}

func newMockTelegramAPI() *mockTelegramAPI {
	return &mockTelegramAPI{
		sendSignal: make(chan struct{}, 10),
	}
}

func (m *mockTelegramAPI) install(listener *TelegramListener) {
	listener.sendMessage = m.sendMessage
	listener.answerCallbackQuery = m.answerCallback
	listener.sendChatAction = m.sendChatAction
}

func (m *mockTelegramAPI) sendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	m.mu.Lock()
	m.sendCalls = append(m.sendCalls, params)
	m.mu.Unlock()
	select {
	case m.sendSignal <- struct{}{}:
	default:
	}
	return &models.Message{
		ID:   1,
		Chat: models.Chat{ID: chatIDFromAny(params.ChatID)},
	}, nil
}

func (m *mockTelegramAPI) answerCallback(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	m.mu.Lock()
	m.answerCalls = append(m.answerCalls, params)
	m.mu.Unlock()
	return true, nil
}

func (m *mockTelegramAPI) sendChatAction(context.Context, *bot.SendChatActionParams) (bool, error) {
	m.mu.Lock()
	m.typing++
	m.mu.Unlock()
	return true, nil
}

func (m *mockTelegramAPI) lastSend(t *testing.T) *bot.SendMessageParams {
	t.Helper()
	select {
	case <-m.sendSignal:
	case <-time.After(300 * time.Millisecond):
		t.Fatal("timed out waiting for send message call")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendCalls[len(m.sendCalls)-1]
}

func (m *mockTelegramAPI) sends() []*bot.SendMessageParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*bot.SendMessageParams(nil), m.sendCalls...)
}

func (m *mockTelegramAPI) answers() []*bot.AnswerCallbackQueryParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*bot.AnswerCallbackQueryParams(nil), m.answerCalls...)
}

func (m *mockTelegramAPI) typingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.typing
}

func chatIDFromAny(chatID any) int64 {
	switch v := chatID.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
