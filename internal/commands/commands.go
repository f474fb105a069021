// Package commands provides channel-agnostic slash command handling.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"github.com/compas-coach/compas/internal/coach"
	"github.com/compas-coach/compas/internal/reflection"
	"github.com/compas-coach/compas/internal/runtime"
)

const (
	helpText = "Commands: /help, /reset, /remember <fact>, /facts, /forget <word>, /lessons, /gift, /reflect, /feedback <id> <success|neutral|fail> [notes]"

	rememberUsage = "Usage: /remember <fact>"
	forgetUsage   = "Usage: /forget <word>"
	feedbackUsage = "Usage: /feedback <id> <success|neutral|fail> [notes]"
)

// Coach is the part of coach.Service slash commands use.
type Coach interface {
	ResetSession(ctx context.Context, sessionID string) error
	HandleMemoryOp(ctx context.Context, op coach.MemoryOp) (*coach.MemoryResult, error)
	HandleFeedback(ctx context.Context, suggestionID int64, outcome, notes string) error
	Lessons(ctx context.Context) ([]coach.Lesson, error)
	GiftIdeas(ctx context.Context) []string
}

// Handler dispatches supported slash commands.
type Handler struct {
	coach Coach
	deck  *reflection.Deck
}

// New creates a new slash command handler. deck may be nil, which disables /reflect.
func New(c Coach, deck *reflection.Deck) *Handler {
	return &Handler{coach: c, deck: deck}
}

// Handle executes one command and reports whether it was handled. Unknown
// slash commands are not handled so they reach the coach as plain text.
func (h *Handler) Handle(ctx context.Context, msg *runtime.Message, w runtime.ResponseWriter) (handled bool, err error) {
	if w == nil {
		return false, errors.New("response writer is required")
	}
	if msg == nil {
		return false, errors.New("message is required")
	}

	name, rest := splitCommand(msg.Text)
	switch name {
	case "/help", "/commands", "/start":
		return true, w.WriteMessage(ctx, helpText)
	case "/new", "/reset":
		return true, h.handleReset(ctx, msg.SessionID, w)
	case "/remember":
		return true, h.handleRemember(ctx, rest, w)
	case "/facts":
		return true, h.handleFacts(ctx, w)
	case "/forget":
		return true, h.handleForget(ctx, rest, w)
	case "/lessons":
		return true, h.handleLessons(ctx, w)
	case "/gift":
		return true, h.handleGift(ctx, w)
	case "/reflect":
		return true, h.handleReflect(ctx, w)
	case "/feedback":
		return true, h.handleFeedback(ctx, rest, w)
	default:
		return false, nil
	}
}

func (h *Handler) handleReset(ctx context.Context, sessionID string, w runtime.ResponseWriter) error {
	if err := h.coach.ResetSession(ctx, sessionID); err != nil {
		return err
	}
	return w.WriteMessage(ctx, "Session cleared.")
}

func (h *Handler) handleRemember(ctx context.Context, text string, w runtime.ResponseWriter) error {
	result, err := h.coach.HandleMemoryOp(ctx, coach.MemoryOp{Cmd: coach.MemoryAdd, Text: text})
	if errors.Is(err, coach.ErrEmptyInput) {
		return w.WriteMessage(ctx, rememberUsage)
	}
	if err != nil {
		return err
	}
	if result.Duplicate {
		return w.WriteMessage(ctx, "I already know that.")
	}
	return w.WriteMessage(ctx, "Noted: "+result.Fact.Text)
}

func (h *Handler) handleFacts(ctx context.Context, w runtime.ResponseWriter) error {
	result, err := h.coach.HandleMemoryOp(ctx, coach.MemoryOp{Cmd: coach.MemoryList})
	if err != nil {
		return err
	}
	if len(result.Facts) == 0 {
		return w.WriteMessage(ctx, "No facts remembered yet.")
	}
	var b strings.Builder
	b.WriteString("Remembered facts:")
	for i, fact := range result.Facts {
		_, _ = fmt.Fprintf(&b, "\n%d. %s", i+1, fact.Text)
	}
	return w.WriteMessage(ctx, b.String())
}

func (h *Handler) handleForget(ctx context.Context, key string, w runtime.ResponseWriter) error {
	result, err := h.coach.HandleMemoryOp(ctx, coach.MemoryOp{Cmd: coach.MemoryDelete, Key: key})
	if errors.Is(err, coach.ErrEmptyInput) {
		return w.WriteMessage(ctx, forgetUsage)
	}
	if err != nil {
		return err
	}
	if result.Removed == 1 {
		return w.WriteMessage(ctx, "Forgot 1 fact.")
	}
	return w.WriteMessage(ctx, fmt.Sprintf("Forgot %d facts.", result.Removed))
}

func (h *Handler) handleLessons(ctx context.Context, w runtime.ResponseWriter) error {
	lessons, err := h.coach.Lessons(ctx)
	if err != nil {
		return err
	}
	return w.WriteMessage(ctx, coach.FormatLessons(lessons))
}

func (h *Handler) handleGift(ctx context.Context, w runtime.ResponseWriter) error {
	ideas := h.coach.GiftIdeas(ctx)
	var b strings.Builder
	b.WriteString("Gift ideas:")
	for _, idea := range ideas {
		b.WriteString("\n• ")
		b.WriteString(idea)
	}
	return w.WriteMessage(ctx, b.String())
}

func (h *Handler) handleReflect(ctx context.Context, w runtime.ResponseWriter) error {
	if h.deck == nil {
		return w.WriteMessage(ctx, "Reflection is not set up.")
	}
	var b strings.Builder
	b.WriteString("Tonight's reflection:")
	for i, prompt := range h.deck.Random() {
		_, _ = fmt.Fprintf(&b, "\n%d. %s", i+1, prompt.Text)
	}
	return w.WriteMessage(ctx, b.String())
}

func (h *Handler) handleFeedback(ctx context.Context, args string, w runtime.ResponseWriter) error {
	tokens, err := shlex.Split(args)
	if err != nil || len(tokens) < 2 {
		return w.WriteMessage(ctx, feedbackUsage)
	}
	id, err := strconv.ParseInt(tokens[0], 10, 64)
	if err != nil {
		return w.WriteMessage(ctx, feedbackUsage)
	}
	notes := strings.Join(tokens[2:], " ")

	err = h.coach.HandleFeedback(ctx, id, strings.ToLower(tokens[1]), notes)
	if errors.Is(err, coach.ErrInvalidOutcome) || errors.Is(err, coach.ErrMissingField) {
		return w.WriteMessage(ctx, feedbackUsage)
	}
	if err != nil {
		return err
	}
	return w.WriteMessage(ctx, "Thanks, noted.")
}

// Router dispatches slash commands before delegating to the next runtime.Handler.
type Router struct {
	Commands *Handler
	Next     runtime.Handler
}

// HandleMessage runs command dispatch first, then forwards non-command input.
func (r Router) HandleMessage(ctx context.Context, w runtime.ResponseWriter, msg *runtime.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	if r.Next == nil {
		return errors.New("next handler is required")
	}
	if r.Commands != nil {
		handled, err := r.Commands.Handle(ctx, msg, w)
		if handled || err != nil {
			return err
		}
	}
	return r.Next.HandleMessage(ctx, w, msg)
}

// splitCommand returns the lowercased command word, with any Telegram
// "@botname" suffix removed, and the untouched remainder. Non-command text
// yields an empty name.
func splitCommand(text string) (name, rest string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	name, rest, _ = strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name), strings.TrimSpace(rest)
}
