// Package coach runs the coaching pipeline: classify the message, compose the
// system prompt from profile, facts and ranked lessons, call the model, and
// record the suggestions in its reply for later feedback.
package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/compas-coach/compas/internal/costs"
	"github.com/compas-coach/compas/internal/ledger"
	"github.com/compas-coach/compas/internal/logging"
	"github.com/compas-coach/compas/internal/memory"
	"github.com/compas-coach/compas/internal/provider"
	"github.com/compas-coach/compas/internal/session"
)

const (
	DefaultSessionID   = "default"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxTokens   = 260
	DefaultTemperature = 0.3

	unavailableReply = "(I couldn't reach the coaching model just now. Take a slow breath and try again in a minute.)"
	quotaReply       = "(The coaching model is over its usage limit right now. Try again later; meanwhile, one small kind step still counts.)"
)

// FactStore is the remembered-facts and profile store.
type FactStore interface {
	List() ([]memory.Fact, error)
	Add(text string) (memory.Fact, bool, error)
	Delete(key string) (int, error)
	Profile() (memory.Profile, error)
}

// Ledger records suggestions and feedback.
type Ledger interface {
	RecordBatch(ctx context.Context, texts []string, turnContext string, kind ledger.Kind) ([]ledger.Suggestion, error)
	RecordFeedback(ctx context.Context, suggestionID int64, outcome, notes string) error
	RecentJoined(ctx context.Context, limit int) ([]ledger.JoinedOutcome, error)
	Suggestion(ctx context.Context, id int64) (ledger.Suggestion, error)
}

// UsageTracker persists model usage and reports spend.
type UsageTracker interface {
	Append(ctx context.Context, rec costs.Record) error
	Spend(ctx context.Context, now time.Time) (costs.Spend, error)
}

// Options wires a Service. Provider, Facts, Ledger and Sessions are required.
type Options struct {
	Provider     provider.Provider
	ProviderName string
	Model        string

	Facts    FactStore
	Ledger   Ledger
	Sessions session.Store
	Costs    UsageTracker
	Limits   costs.Limits

	Composer      Composer
	LessonsWindow int
	Timeout       time.Duration
	MaxTokens     int
	Temperature   *float64
}

// Service handles chat turns, feedback and memory commands.
type Service struct {
	opts Options
	now  func() time.Time
}

// Suggestion is an extracted reply bullet with its ledger id.
type Suggestion struct {
	ID   int64       `json:"id"`
	Text string      `json:"text"`
	Kind ledger.Kind `json:"kind"`
}

// TurnResult is the outcome of one chat turn. ModelError is set when the
// reply is a placeholder because the model call failed.
type TurnResult struct {
	Reply       string       `json:"reply"`
	Suggestions []Suggestion `json:"suggestions"`
	SessionID   string       `json:"session_id"`
	Mode        Mode         `json:"mode"`
	ModelError  *ModelError  `json:"-"`
}

// New creates a Service, filling unset tuning options with defaults.
func New(opts Options) *Service {
	if opts.LessonsWindow <= 0 {
		opts.LessonsWindow = ledger.DefaultWindow
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Temperature == nil {
		temperature := DefaultTemperature
		opts.Temperature = &temperature
	}
	return &Service{opts: opts, now: time.Now}
}

// HandleChatTurn runs one message through the pipeline. A blank message is
// ErrEmptyInput. Model failures never surface as errors: the result carries
// a placeholder reply and a ModelError instead.
func (s *Service) HandleChatTurn(ctx context.Context, sessionID, message string) (*TurnResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyInput
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	logger := logging.Logger().With("session_id", sessionID)
	started := s.now()

	mode := Classify(message)
	profile, facts := s.loadMemory()
	lessons := s.rankedLessons(ctx)
	systemPrompt := s.opts.Composer.Compose(mode, profile, facts, lessons)

	history, err := s.opts.Sessions.Load(ctx, sessionID)
	if err != nil {
		logger.Warn("load session history", "err", err)
		history = nil
	}
	userMsg := provider.ChatMessage{Role: provider.RoleUser, Content: message}
	messages := append(history, userMsg)

	result := &TurnResult{
		SessionID:   sessionID,
		Mode:        mode,
		Suggestions: []Suggestion{},
	}

	resp, modelErr := s.callModel(ctx, sessionID, mode, systemPrompt, messages)
	if modelErr != nil {
		logger.Warn("model call failed", "mode", mode, "kind", modelErr.Kind(), "err", modelErr.Err)
		result.ModelError = modelErr
		result.Reply = unavailableReply
		if modelErr.Quota {
			result.Reply = quotaReply
		}
		return result, nil
	}
	result.Reply = resp.Content

	if texts := Extract(resp.Content); len(texts) > 0 {
		recorded, err := s.opts.Ledger.RecordBatch(ctx, texts, turnContext(sessionID, mode), ledger.KindPlan)
		if err != nil {
			logger.Error("record suggestions", "count", len(texts), "err", err)
		}
		for _, sug := range recorded {
			result.Suggestions = append(result.Suggestions, Suggestion{ID: sug.ID, Text: sug.Text, Kind: sug.Kind})
		}
	}

	assistantMsg := provider.ChatMessage{Role: provider.RoleAssistant, Content: resp.Content}
	if err := s.opts.Sessions.Append(ctx, sessionID, userMsg, assistantMsg); err != nil {
		logger.Warn("append session history", "err", err)
	}

	logger.Info(
		"chat turn",
		"mode", mode,
		"suggestions", len(result.Suggestions),
		"lessons", len(lessons),
		"duration", s.now().Sub(started).Round(time.Millisecond),
	)
	return result, nil
}

func (s *Service) callModel(ctx context.Context, sessionID string, mode Mode, systemPrompt string, messages []provider.ChatMessage) (*provider.ChatResponse, *ModelError) {
	if err := s.checkSpend(ctx); err != nil {
		return nil, &ModelError{Quota: true, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	resp, err := s.opts.Provider.Chat(callCtx, provider.ChatRequest{
		SystemPrompt: systemPrompt,
		Messages:     messages,
		MaxTokens:    s.opts.MaxTokens,
		Temperature:  s.opts.Temperature,
	})
	if err == nil && resp == nil {
		err = errors.New("provider returned no response")
	}
	if err != nil {
		return nil, &ModelError{
			Quota:   provider.IsQuota(err),
			Timeout: errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded),
			Err:     err,
		}
	}

	s.recordUsage(ctx, sessionID, mode, resp)
	return resp, nil
}

func (s *Service) checkSpend(ctx context.Context) error {
	if s.opts.Costs == nil || s.opts.Limits == (costs.Limits{}) {
		return nil
	}
	spend, err := s.opts.Costs.Spend(ctx, s.now())
	if err != nil {
		logging.Logger().Warn("read spend totals", "err", err)
		return nil
	}
	return s.opts.Limits.Check(spend)
}

func (s *Service) recordUsage(ctx context.Context, sessionID string, mode Mode, resp *provider.ChatResponse) {
	if s.opts.Costs == nil {
		return
	}
	model := resp.Model
	if model == "" {
		model = s.opts.Model
	}
	rec := costs.Record{
		Timestamp:    s.now(),
		Provider:     s.opts.ProviderName,
		Model:        model,
		SessionID:    sessionID,
		Mode:         string(mode),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	if resp.Usage.CostUSD != nil {
		rec.CostUSD = *resp.Usage.CostUSD
	} else if usd, ok := costs.EstimateUSD(s.opts.ProviderName, model, rec.InputTokens, rec.OutputTokens); ok {
		rec.CostUSD = usd
	}
	if err := s.opts.Costs.Append(ctx, rec); err != nil {
		logging.Logger().Warn("record usage", "err", err)
	}
}

// loadMemory reads profile and facts, substituting empty values when either
// store is unreadable.
func (s *Service) loadMemory() (memory.Profile, []memory.Fact) {
	profile, err := s.opts.Facts.Profile()
	if err != nil {
		logging.Logger().Warn("profile unavailable, using empty profile", "err", storageError("profile", err))
		profile = memory.Profile{}
	}
	facts, err := s.opts.Facts.List()
	if err != nil {
		logging.Logger().Warn("facts unavailable, using empty list", "err", storageError("facts", err))
		facts = []memory.Fact{}
	}
	return profile, facts
}

func (s *Service) rankedLessons(ctx context.Context) []Lesson {
	lessons, err := s.Lessons(ctx)
	if err != nil {
		logging.Logger().Warn("lessons unavailable, using placeholder", "err", err)
		return []Lesson{}
	}
	return lessons
}

// Lessons ranks the most recent feedback window.
func (s *Service) Lessons(ctx context.Context) ([]Lesson, error) {
	entries, err := s.opts.Ledger.RecentJoined(ctx, s.opts.LessonsWindow)
	if err != nil {
		return nil, storageError("ledger", err)
	}
	return Rank(entries), nil
}

// HandleFeedback records the outcome of acting on a suggestion.
func (s *Service) HandleFeedback(ctx context.Context, suggestionID int64, outcome, notes string) error {
	if err := s.opts.Ledger.RecordFeedback(ctx, suggestionID, outcome, strings.TrimSpace(notes)); err != nil {
		return err
	}
	// The suggestion id is a weak reference; feedback for an unknown id is kept.
	text := ""
	if suggestion, err := s.opts.Ledger.Suggestion(ctx, suggestionID); err == nil {
		text = suggestion.Text
	}
	logging.Logger().Info("feedback recorded", "suggestion_id", suggestionID, "outcome", strings.TrimSpace(outcome), "text", text)
	return nil
}

// MemoryCommand names a fact-store operation.
type MemoryCommand string

const (
	MemoryAdd    MemoryCommand = "add"
	MemoryList   MemoryCommand = "list"
	MemoryDelete MemoryCommand = "delete"
)

// MemoryOp is one fact-store request. Text is used by add, Key by delete.
type MemoryOp struct {
	Cmd  MemoryCommand
	Text string
	Key  string
}

// MemoryResult reports what a MemoryOp did. Cmd is the normalized command
// that ran.
type MemoryResult struct {
	Cmd       MemoryCommand `json:"-"`
	Facts     []memory.Fact `json:"facts,omitempty"`
	Fact      *memory.Fact  `json:"fact,omitempty"`
	Duplicate bool          `json:"duplicate,omitempty"`
	Removed   int           `json:"removed,omitempty"`
}

// HandleMemoryOp adds, lists or deletes remembered facts. Blank add text or
// delete key is ErrEmptyInput; any other command is ErrUnknownCommand.
func (s *Service) HandleMemoryOp(_ context.Context, op MemoryOp) (*MemoryResult, error) {
	cmd := NormalizeMemoryCommand(string(op.Cmd))
	switch cmd {
	case MemoryAdd:
		fact, added, err := s.opts.Facts.Add(op.Text)
		if errors.Is(err, memory.ErrEmptyText) {
			return nil, ErrEmptyInput
		}
		if err != nil {
			return nil, err
		}
		return &MemoryResult{Cmd: cmd, Fact: &fact, Duplicate: !added}, nil
	case MemoryList:
		facts, err := s.opts.Facts.List()
		if err != nil {
			logging.Logger().Warn("facts unavailable, listing none", "err", storageError("facts", err))
		}
		return &MemoryResult{Cmd: cmd, Facts: facts}, nil
	case MemoryDelete:
		removed, err := s.opts.Facts.Delete(op.Key)
		if errors.Is(err, memory.ErrEmptyKey) {
			return nil, ErrEmptyInput
		}
		if err != nil {
			return nil, err
		}
		return &MemoryResult{Cmd: cmd, Removed: removed}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, op.Cmd)
	}
}

// NormalizeMemoryCommand trims and lower-cases a command name.
func NormalizeMemoryCommand(raw string) MemoryCommand {
	return MemoryCommand(strings.ToLower(strings.TrimSpace(raw)))
}

// GiftIdeas suggests gifts for the partner from profile and facts.
func (s *Service) GiftIdeas(_ context.Context) []string {
	profile, facts := s.loadMemory()
	return GiftIdeas(profile, facts, orDefault(s.opts.Composer.PartnerName, DefaultPartnerName))
}

// Profile returns the profile document, empty when unreadable.
func (s *Service) Profile(_ context.Context) memory.Profile {
	profile, err := s.opts.Facts.Profile()
	if err != nil {
		logging.Logger().Warn("profile unavailable, using empty profile", "err", storageError("profile", err))
		return memory.Profile{}
	}
	return profile
}

// ResetSession drops the conversation history for sessionID.
func (s *Service) ResetSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	return s.opts.Sessions.Reset(ctx, sessionID)
}

func turnContext(sessionID string, mode Mode) string {
	raw, err := json.Marshal(map[string]string{"session_id": sessionID, "mode": string(mode)})
	if err != nil {
		return "{}"
	}
	return string(raw)
}
