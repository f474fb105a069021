// Package session keeps per-session conversation history in process memory with bounded size and expiry.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/compas-coach/compas/internal/logging"
	"github.com/compas-coach/compas/internal/provider"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultMaxSessions = 256
	DefaultTTL         = 12 * time.Hour
	DefaultMaxMessages = 20
)

// ErrSessionIDRequired is returned for blank session ids.
var ErrSessionIDRequired = errors.New("session id is required")

// Store holds conversation history keyed by session id.
type Store interface {
	Load(ctx context.Context, id string) ([]provider.ChatMessage, error)
	Append(ctx context.Context, id string, messages ...provider.ChatMessage) error
	Reset(ctx context.Context, id string) error
	Len() int
}

// LRU is a Store that evicts the least recently used session once full and
// drops sessions idle for longer than the TTL.
type LRU struct {
	mu          sync.Mutex
	cache       *expirable.LRU[string, []provider.ChatMessage]
	maxMessages int
}

// NewLRU creates an in-memory store. Non-positive arguments take the defaults.
func NewLRU(maxSessions int, ttl time.Duration, maxMessages int) *LRU {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	onEvict := func(id string, history []provider.ChatMessage) {
		logging.Logger().Debug("session evicted", "session_id", id, "messages", len(history))
	}
	return &LRU{
		cache:       expirable.NewLRU[string, []provider.ChatMessage](maxSessions, onEvict, ttl),
		maxMessages: maxMessages,
	}
}

// Load returns a copy of the session's history. Unknown sessions are empty.
func (s *LRU) Load(ctx context.Context, id string) ([]provider.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrSessionIDRequired
	}

	history, ok := s.cache.Get(id)
	if !ok {
		return []provider.ChatMessage{}, nil
	}
	out := make([]provider.ChatMessage, len(history))
	copy(out, history)
	return out, nil
}

// Append adds messages to the session and trims it to the newest
// maxMessages, never leaving an assistant message first.
func (s *LRU) Append(ctx context.Context, id string, messages ...provider.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrSessionIDRequired
	}
	if len(messages) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, _ := s.cache.Get(id)
	history := make([]provider.ChatMessage, 0, len(existing)+len(messages))
	history = append(history, existing...)
	history = append(history, messages...)
	s.cache.Add(id, trimHistory(history, s.maxMessages))
	return nil
}

// Reset forgets the session.
func (s *LRU) Reset(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrSessionIDRequired
	}
	s.cache.Remove(id)
	return nil
}

// Len reports the number of live sessions.
func (s *LRU) Len() int {
	return s.cache.Len()
}

func trimHistory(history []provider.ChatMessage, max int) []provider.ChatMessage {
	if len(history) > max {
		history = history[len(history)-max:]
	}
	for len(history) > 0 && history[0].Role != provider.RoleUser {
		history = history[1:]
	}
	return history
}
