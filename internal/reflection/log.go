package reflection

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/compas-coach/compas/internal/logging"
	"github.com/compas-coach/compas/internal/store"
)

// ErrNoAnswers is returned when a reflection has no non-blank answers.
var ErrNoAnswers = errors.New("reflection answers are required")

// Entry is one saved reflection.
type Entry struct {
	Timestamp string   `json:"ts"`
	User      string   `json:"user"`
	Answers   []string `json:"answers"`
}

// Log appends reflections to a JSON array document.
type Log struct {
	path string
	now  func() time.Time
}

// NewLog creates a Log backed by path. The file is created on first save.
func NewLog(path string) *Log {
	return &Log{path: strings.TrimSpace(path), now: time.Now}
}

// Save appends the answers for user. Blank answers are dropped.
func (l *Log) Save(user string, answers []string) (Entry, error) {
	kept := make([]string, 0, len(answers))
	for _, answer := range answers {
		if answer = strings.TrimSpace(answer); answer != "" {
			kept = append(kept, answer)
		}
	}
	if len(kept) == 0 {
		return Entry{}, ErrNoAnswers
	}

	entry := Entry{
		Timestamp: l.now().Truncate(time.Second).Format(time.RFC3339),
		User:      strings.TrimSpace(user),
		Answers:   kept,
	}
	err := store.UpdateJSON(l.path, func(entries *[]Entry) error {
		*entries = append(*entries, entry)
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("save reflection: %w", err)
	}

	logging.Logger().Info("reflection saved", "user", entry.User, "answers", len(kept))
	return entry, nil
}

// Recent returns up to n entries, newest last. A missing log is empty.
func (l *Log) Recent(n int) ([]Entry, error) {
	var entries []Entry
	err := store.ReadJSON(l.path, &entries)
	if errors.Is(err, os.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reflection log: %w", err)
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
