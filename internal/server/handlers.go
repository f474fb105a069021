package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/compas-coach/compas/internal/coach"
	"github.com/compas-coach/compas/internal/logging"
	"github.com/compas-coach/compas/internal/memory"
	"github.com/compas-coach/compas/internal/reflection"
)

// Handler holds the route handlers.
type Handler struct {
	opts Options
}

// NewHandler creates a Handler over opts.
func NewHandler(opts Options) *Handler {
	return &Handler{opts: opts}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type modelErrorBody struct {
	Kind string `json:"kind"`
}

type chatResponse struct {
	Reply       string             `json:"reply"`
	Suggestions []coach.Suggestion `json:"suggestions"`
	SessionID   string             `json:"session_id"`
	Mode        coach.Mode         `json:"mode"`
	ModelError  *modelErrorBody    `json:"model_error,omitempty"`
}

type feedbackRequest struct {
	SuggestionID int64  `json:"suggestion_id"`
	Outcome      string `json:"outcome"`
	Notes        string `json:"notes"`
}

type memoryRequest struct {
	Cmd  string `json:"cmd" binding:"required"`
	Text string `json:"text"`
	Key  string `json:"key"`
}

type reflectionRequest struct {
	User    string   `json:"user"`
	Answers []string `json:"answers"`
}

// Index returns the profile document.
func (h *Handler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"profile": h.opts.Coach.Profile(c.Request.Context())})
}

// Chat runs one coaching turn.
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	result, err := h.opts.Coach.HandleChatTurn(c.Request.Context(), req.SessionID, req.Message)
	if errors.Is(err, coach.ErrEmptyInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty message"})
		return
	}
	if err != nil {
		logging.Logger().Error("chat turn failed", "session_id", req.SessionID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := chatResponse{
		Reply:       result.Reply,
		Suggestions: result.Suggestions,
		SessionID:   result.SessionID,
		Mode:        result.Mode,
	}
	if resp.Suggestions == nil {
		resp.Suggestions = []coach.Suggestion{}
	}
	if result.ModelError != nil {
		resp.ModelError = &modelErrorBody{Kind: result.ModelError.Kind()}
	}
	c.JSON(http.StatusOK, resp)
}

// Feedback records a suggestion outcome.
func (h *Handler) Feedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid"})
		return
	}

	err := h.opts.Coach.HandleFeedback(c.Request.Context(), req.SuggestionID, req.Outcome, req.Notes)
	switch {
	case errors.Is(err, coach.ErrInvalidOutcome), errors.Is(err, coach.ErrMissingField):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid"})
	case err != nil:
		logging.Logger().Error("record feedback failed", "suggestion_id", req.SuggestionID, "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// Memory adds, lists or deletes remembered facts.
func (h *Handler) Memory(c *gin.Context) {
	var req memoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad cmd"})
		return
	}

	cmd := coach.NormalizeMemoryCommand(req.Cmd)
	result, err := h.opts.Coach.HandleMemoryOp(c.Request.Context(), coach.MemoryOp{
		Cmd:  cmd,
		Text: req.Text,
		Key:  req.Key,
	})
	switch {
	case errors.Is(err, coach.ErrEmptyInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty"})
		return
	case errors.Is(err, coach.ErrUnknownCommand):
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad cmd"})
		return
	case err != nil:
		logging.Logger().Error("memory op failed", "cmd", req.Cmd, "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}

	switch cmd {
	case coach.MemoryList:
		facts := result.Facts
		if facts == nil {
			facts = []memory.Fact{}
		}
		c.JSON(http.StatusOK, gin.H{"facts": facts})
	case coach.MemoryAdd:
		c.JSON(http.StatusOK, gin.H{"ok": true, "duplicate": result.Duplicate})
	case coach.MemoryDelete:
		c.JSON(http.StatusOK, gin.H{"ok": true, "removed": result.Removed})
	}
}

// Gift suggests gift ideas.
func (h *Handler) Gift(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ideas": h.opts.Coach.GiftIdeas(c.Request.Context())})
}

// Lessons lists the ranked lessons.
func (h *Handler) Lessons(c *gin.Context) {
	lessons, err := h.opts.Coach.Lessons(c.Request.Context())
	if err != nil {
		logging.Logger().Error("rank lessons failed", "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"lessons":   lessons,
		"formatted": coach.FormatLessons(lessons),
	})
}

// ReflectionPrompts draws tonight's prompts, plus a connection idea and a
// kindness starter when those documents exist.
func (h *Handler) ReflectionPrompts(c *gin.Context) {
	if h.opts.Deck == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "reflection disabled"})
		return
	}
	body := gin.H{"prompts": h.opts.Deck.Random()}
	if h.opts.ConnectionIdeasPath != "" {
		if idea, err := h.opts.Deck.ConnectionIdea(h.opts.ConnectionIdeasPath); err == nil {
			body["connection_idea"] = idea
		}
	}
	if h.opts.KindnessPath != "" {
		if starter, err := h.opts.Deck.KindnessStarter(h.opts.KindnessPath); err == nil {
			body["kindness"] = starter
		}
	}
	c.JSON(http.StatusOK, body)
}

// SaveReflection appends submitted answers to the reflection log.
func (h *Handler) SaveReflection(c *gin.Context) {
	if h.opts.Reflections == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "reflection disabled"})
		return
	}
	var req reflectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	entry, err := h.opts.Reflections.Save(req.User, req.Answers)
	if errors.Is(err, reflection.ErrNoAnswers) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty"})
		return
	}
	if err != nil {
		logging.Logger().Error("save reflection failed", "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "entry": entry})
}

// Health reports liveness and ledger counts. It never requires the passcode.
func (h *Handler) Health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.opts.Stats != nil {
		stats, err := h.opts.Stats.Stats(c.Request.Context())
		if err != nil {
			body["status"] = "degraded"
			body["error"] = "storage unavailable"
		} else {
			body["suggestions"] = stats.Suggestions
			body["feedback"] = stats.Feedback
		}
	}
	c.JSON(http.StatusOK, body)
}
