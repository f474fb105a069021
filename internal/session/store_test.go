package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/compas-coach/compas/internal/provider"
)

func turn(user, assistant string) []provider.ChatMessage {
	return []provider.ChatMessage{
		{Role: provider.RoleUser, Content: user},
		{Role: provider.RoleAssistant, Content: assistant},
	}
}

func TestAppendLoadRoundTrip(t *testing.T) {
	s := NewLRU(4, time.Hour, 10)
	ctx := context.Background()

	if err := s.Append(ctx, "a", turn("hi", "hello")...); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := s.Load(ctx, "a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0].Content != "hi" || got[1].Content != "hello" {
		t.Fatalf("unexpected history: %#v", got)
	}
}

func TestLoadUnknownIsEmpty(t *testing.T) {
	s := NewLRU(4, time.Hour, 10)

	got, err := s.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil history, got %#v", got)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	s := NewLRU(4, time.Hour, 10)
	ctx := context.Background()

	_ = s.Append(ctx, "a", turn("from a", "reply a")...)
	_ = s.Append(ctx, "b", turn("from b", "reply b")...)

	got, _ := s.Load(ctx, "a")
	if len(got) != 2 || got[0].Content != "from a" {
		t.Fatalf("session a leaked: %#v", got)
	}
}

func TestLoadReturnsCopy(t *testing.T) {
	s := NewLRU(4, time.Hour, 10)
	ctx := context.Background()
	_ = s.Append(ctx, "a", turn("hi", "hello")...)

	got, _ := s.Load(ctx, "a")
	got[0].Content = "mutated"

	again, _ := s.Load(ctx, "a")
	if again[0].Content != "hi" {
		t.Fatalf("store history was mutated through Load result")
	}
}

func TestAppendTrimsToMaxMessagesStartingWithUser(t *testing.T) {
	s := NewLRU(4, time.Hour, 3)
	ctx := context.Background()

	_ = s.Append(ctx, "a", turn("one", "r1")...)
	_ = s.Append(ctx, "a", turn("two", "r2")...)

	got, _ := s.Load(ctx, "a")
	// newest three are r1, two, r2; the leading assistant message is dropped.
	if len(got) != 2 || got[0].Content != "two" || got[1].Content != "r2" {
		t.Fatalf("unexpected trimmed history: %#v", got)
	}
}

func TestLeastRecentlyUsedSessionEvicted(t *testing.T) {
	s := NewLRU(2, time.Hour, 10)
	ctx := context.Background()

	_ = s.Append(ctx, "a", turn("a", "a")...)
	_ = s.Append(ctx, "b", turn("b", "b")...)
	_, _ = s.Load(ctx, "a")
	_ = s.Append(ctx, "c", turn("c", "c")...)

	if s.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", s.Len())
	}
	if got, _ := s.Load(ctx, "b"); len(got) != 0 {
		t.Fatalf("expected b evicted, got %#v", got)
	}
	if got, _ := s.Load(ctx, "a"); len(got) != 2 {
		t.Fatalf("expected a kept, got %#v", got)
	}
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	s := NewLRU(4, 50*time.Millisecond, 10)
	ctx := context.Background()
	_ = s.Append(ctx, "a", turn("hi", "hello")...)

	time.Sleep(120 * time.Millisecond)

	got, _ := s.Load(ctx, "a")
	if len(got) != 0 {
		t.Fatalf("expected expired session, got %#v", got)
	}
}

func TestReset(t *testing.T) {
	s := NewLRU(4, time.Hour, 10)
	ctx := context.Background()
	_ = s.Append(ctx, "a", turn("hi", "hello")...)

	if err := s.Reset(ctx, "a"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected no sessions after reset")
	}
}

func TestBlankIDRejected(t *testing.T) {
	s := NewLRU(4, time.Hour, 10)
	ctx := context.Background()

	if _, err := s.Load(ctx, " "); !errors.Is(err, ErrSessionIDRequired) {
		t.Fatalf("expected ErrSessionIDRequired from Load, got %v", err)
	}
	if err := s.Append(ctx, "", turn("x", "y")...); !errors.Is(err, ErrSessionIDRequired) {
		t.Fatalf("expected ErrSessionIDRequired from Append, got %v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	s := NewLRU(4, time.Hour, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Load(ctx, "a"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConcurrentAppendsKeepEveryMessage(t *testing.T) {
	s := NewLRU(4, time.Hour, 1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Append(ctx, "a", provider.ChatMessage{Role: provider.RoleUser, Content: fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()

	got, _ := s.Load(ctx, "a")
	if len(got) != 50 {
		t.Fatalf("expected 50 messages, got %d", len(got))
	}
}
