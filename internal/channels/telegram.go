package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/compas-coach/compas/internal/ledger"
	"github.com/compas-coach/compas/internal/logging"
	"github.com/compas-coach/compas/internal/runtime"
)

const (
	telegramFeedbackPrefix = "fb:"
	telegramChannelName    = "telegram"
)

var feedbackButtons = []struct {
	outcome ledger.Outcome
	label   string
	ack     string
}{
	{ledger.OutcomeSuccess, "✅", "Glad it worked."},
	{ledger.OutcomeNeutral, "😐", "Noted."},
	{ledger.OutcomeFail, "❌", "Thanks, I'll adjust."},
}

// FeedbackRecorder stores the outcome a user reports for a suggestion.
type FeedbackRecorder interface {
	HandleFeedback(ctx context.Context, suggestionID int64, outcome, notes string) error
}

type telegramSendMessageFunc func(context.Context, *bot.SendMessageParams) (*models.Message, error)
type telegramAnswerCallbackQueryFunc func(context.Context, *bot.AnswerCallbackQueryParams) (bool, error)
type telegramSendChatActionFunc func(context.Context, *bot.SendChatActionParams) (bool, error)

// TelegramListener receives Telegram updates and dispatches messages from
// allowed users. Replies carry one row of rating buttons per suggestion.
type TelegramListener struct {
	token    string
	allowed  map[int64]struct{}
	feedback FeedbackRecorder

	sendMessage         telegramSendMessageFunc
	answerCallbackQuery telegramAnswerCallbackQueryFunc
	sendChatAction      telegramSendChatActionFunc
}

var _ runtime.Listener = (*TelegramListener)(nil)

// NewTelegram creates a Telegram listener over one bot token. Only users in
// allowedUsers are served. feedback may be nil, which hides rating buttons.
func NewTelegram(token string, allowedUsers []int64, feedback FeedbackRecorder) *TelegramListener {
	allowed := make(map[int64]struct{}, len(allowedUsers))
	for _, id := range allowedUsers {
		allowed[id] = struct{}{}
	}
	return &TelegramListener{
		token:    token,
		allowed:  allowed,
		feedback: feedback,
	}
}

// Listen starts long-polling Telegram and dispatches authorized messages.
func (t *TelegramListener) Listen(ctx context.Context, handler runtime.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	if len(t.allowed) == 0 {
		logging.Logger().Warn("No allowed Telegram users. Set channels.telegram.allowed_users in config.toml.")
	}

	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	dispatcher := runtime.NewDispatcher(&telegramTypingHandler{listener: t, handler: handler}, defaultDispatchQueue)
	defaultHandler := func(updateCtx context.Context, _ *bot.Bot, update *models.Update) {
		if update == nil || update.Message == nil || update.Message.From == nil {
			return
		}
		t.handleInboundMessage(updateCtx, dispatcher, update.Message)
	}

	b, err := t.connect(ctx, defaultHandler)
	if err != nil {
		cancelDispatch()
		return err
	}

	if err := dispatcher.Start(dispatchCtx); err != nil {
		cancelDispatch()
		return err
	}
	defer func() {
		cancelDispatch()
		dispatcher.Wait()
	}()

	go b.Start(ctx)
	<-ctx.Done()
	dispatcher.Stop()
	return nil
}

func (t *TelegramListener) connect(ctx context.Context, defaultHandler bot.HandlerFunc) (*bot.Bot, error) {
	if strings.TrimSpace(t.token) == "" {
		return nil, errors.New("telegram token is required")
	}
	options := []bot.Option{
		bot.WithCallbackQueryDataHandler(telegramFeedbackPrefix, bot.MatchTypePrefix, t.onFeedbackCallback),
	}
	if defaultHandler != nil {
		options = append(options, bot.WithDefaultHandler(defaultHandler))
	}
	b, err := bot.New(strings.TrimSpace(t.token), options...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	me, err := b.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch telegram bot profile: %w", err)
	}
	logging.Logger().Info(fmt.Sprintf("Connected to Telegram Bot @%s", strings.TrimSpace(me.Username)))

	t.sendMessage = b.SendMessage
	t.answerCallbackQuery = b.AnswerCallbackQuery
	t.sendChatAction = b.SendChatAction
	return b, nil
}

func (t *TelegramListener) handleInboundMessage(ctx context.Context, dispatcher *runtime.Dispatcher, msg *models.Message) {
	if msg == nil || msg.From == nil {
		return
	}

	userID := msg.From.ID
	username := strings.TrimSpace(msg.From.Username)
	logging.Logger().Info(
		"telegram inbound message",
		"user_id", userID,
		"username", username,
		"text", messagePreview(msg.Text, 100),
	)

	if !t.isAllowedUser(userID) {
		return
	}

	writer := &telegramWriter{listener: t, chatID: msg.Chat.ID}
	inbound := &runtime.Message{
		Text:      strings.TrimSpace(msg.Text),
		SessionID: telegramSessionID(msg.Chat.ID),
		Channel:   telegramChannelName,
	}
	if err := dispatcher.Enqueue(ctx, inbound, writer); err != nil {
		logging.Logger().Warn("telegram enqueue failed", "user_id", userID, "username", username, "err", err)
	}
}

func (t *TelegramListener) isAllowedUser(userID int64) bool {
	_, ok := t.allowed[userID]
	return ok
}

func telegramSessionID(chatID int64) string {
	return telegramChannelName + ":" + strconv.FormatInt(chatID, 10)
}

func (t *TelegramListener) onFeedbackCallback(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil || update.CallbackQuery == nil {
		return
	}
	t.handleFeedbackCallback(ctx, update.CallbackQuery)
}

func (t *TelegramListener) handleFeedbackCallback(ctx context.Context, callback *models.CallbackQuery) {
	answer := &bot.AnswerCallbackQueryParams{CallbackQueryID: callback.ID}
	defer func() {
		if _, err := t.answerTelegramCallback(ctx, answer); err != nil {
			logging.Logger().Warn("failed to answer feedback callback", "err", err)
		}
	}()

	if !t.isAllowedUser(callback.From.ID) || t.feedback == nil {
		return
	}
	outcome, suggestionID, ok := parseFeedbackData(callback.Data)
	if !ok {
		return
	}

	if err := t.feedback.HandleFeedback(ctx, suggestionID, string(outcome), ""); err != nil {
		logging.Logger().Warn("telegram feedback failed", "suggestion_id", suggestionID, "err", err)
		answer.Text = "Couldn't save that, try again later."
		return
	}
	for _, button := range feedbackButtons {
		if button.outcome == outcome {
			answer.Text = button.ack
		}
	}
}

// feedbackData encodes one rating button as "fb:<outcome>:<suggestion id>".
func feedbackData(outcome ledger.Outcome, suggestionID int64) string {
	return telegramFeedbackPrefix + string(outcome) + ":" + strconv.FormatInt(suggestionID, 10)
}

func parseFeedbackData(data string) (ledger.Outcome, int64, bool) {
	rest, ok := strings.CutPrefix(data, telegramFeedbackPrefix)
	if !ok {
		return "", 0, false
	}
	rawOutcome, rawID, ok := strings.Cut(rest, ":")
	if !ok {
		return "", 0, false
	}
	outcome, err := ledger.ParseOutcome(rawOutcome)
	if err != nil {
		return "", 0, false
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, false
	}
	return outcome, id, true
}

func feedbackKeyboard(suggestions []runtime.Suggestion) *models.InlineKeyboardMarkup {
	if len(suggestions) == 0 {
		return nil
	}
	rows := make([][]models.InlineKeyboardButton, 0, len(suggestions))
	for i, suggestion := range suggestions {
		row := make([]models.InlineKeyboardButton, 0, len(feedbackButtons))
		for _, button := range feedbackButtons {
			row = append(row, models.InlineKeyboardButton{
				Text:         fmt.Sprintf("%d %s", i+1, button.label),
				CallbackData: feedbackData(button.outcome, suggestion.ID),
			})
		}
		rows = append(rows, row)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

type telegramWriter struct {
	listener *TelegramListener
	chatID   int64
}

var _ runtime.ReplyWriter = (*telegramWriter)(nil)

func (w *telegramWriter) WriteMessage(ctx context.Context, text string) error {
	if w == nil || w.listener == nil {
		return errors.New("telegram sender is not configured")
	}
	return w.listener.sendFormattedMessage(ctx, w.chatID, text, nil)
}

// WriteReply sends the reply with rating buttons under it. Suggestion
// numbers on the buttons follow their order in the reply.
func (w *telegramWriter) WriteReply(ctx context.Context, reply runtime.Reply) error {
	if w == nil || w.listener == nil {
		return errors.New("telegram sender is not configured")
	}
	var markup models.ReplyMarkup
	if w.listener.feedback != nil {
		if keyboard := feedbackKeyboard(reply.Suggestions); keyboard != nil {
			markup = keyboard
		}
	}
	return w.listener.sendFormattedMessage(ctx, w.chatID, reply.Text, markup)
}

type telegramTypingHandler struct {
	listener *TelegramListener
	handler  runtime.Handler
}

func (h *telegramTypingHandler) HandleMessage(ctx context.Context, w runtime.ResponseWriter, msg *runtime.Message) error {
	if writer, ok := w.(*telegramWriter); ok && msg != nil && !strings.HasPrefix(strings.TrimSpace(msg.Text), "/") {
		typingCtx, stopTyping := context.WithCancel(ctx)
		defer stopTyping()
		go h.listener.runTypingIndicator(typingCtx, writer.chatID)
	}
	return h.handler.HandleMessage(ctx, w, msg)
}

func (t *TelegramListener) sendTelegramMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	send := t.sendMessage
	if send == nil {
		return nil, errors.New("telegram bot is not connected")
	}
	return send(ctx, params)
}

// sendFormattedMessage sends text as Telegram HTML, or as plain text when
// the markdown cannot be rendered.
func (t *TelegramListener) sendFormattedMessage(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) error {
	params := &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: markup,
	}
	if formatted, ok := formatTelegram(text); ok && strings.TrimSpace(formatted) != "" {
		params.Text = formatted
		params.ParseMode = models.ParseModeHTML
	}
	_, err := t.sendTelegramMessage(ctx, params)
	return err
}

// ChannelWriter returns an io.Writer that sends each write to chatID.
func (t *TelegramListener) ChannelWriter(chatID int64) io.Writer {
	return &telegramChannelWriter{listener: t, chatIDs: []int64{chatID}}
}

// BroadcastWriter returns an io.Writer that sends each write to every
// allowed user's private chat.
func (t *TelegramListener) BroadcastWriter() io.Writer {
	ids := make([]int64, 0, len(t.allowed))
	for id := range t.allowed {
		ids = append(ids, id)
	}
	return &telegramChannelWriter{listener: t, chatIDs: ids}
}

type telegramChannelWriter struct {
	listener *TelegramListener
	chatIDs  []int64
}

func (w *telegramChannelWriter) Write(p []byte) (int, error) {
	var errs []error
	for _, chatID := range w.chatIDs {
		if err := w.listener.sendFormattedMessage(context.Background(), chatID, string(p), nil); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *TelegramListener) answerTelegramCallback(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	answer := t.answerCallbackQuery
	if answer == nil {
		return false, errors.New("telegram bot is not connected")
	}
	return answer(ctx, params)
}

func (t *TelegramListener) runTypingIndicator(ctx context.Context, chatID int64) {
	t.sendTypingAction(ctx, chatID)

	ticker := time.NewTicker(4 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sendTypingAction(ctx, chatID)
		}
	}
}

func (t *TelegramListener) sendTypingAction(ctx context.Context, chatID int64) {
	send := t.sendChatAction
	if send == nil {
		return
	}
	send(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	})
}

func messagePreview(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
