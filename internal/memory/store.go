// Package memory manages the remembered-facts document and the read-only profile document the coach draws on.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/compas-coach/compas/internal/logging"
	"github.com/compas-coach/compas/internal/store"
)

const maxLoggedChars = 200

var (
	// ErrEmptyText is returned when a fact with no text is added.
	ErrEmptyText = errors.New("fact text is required")
	// ErrEmptyKey is returned when a delete has no key; an empty key would match every fact.
	ErrEmptyKey = errors.New("delete key is required")
)

// Fact is one remembered note about a person.
type Fact struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"ts"`
}

// Document is the on-disk shape of memory.json.
type Document struct {
	Facts []Fact `json:"facts"`
}

type rawFact struct {
	Text string `json:"text"`
	TS   string `json:"ts"`
}

// UnmarshalJSON accepts both the object form and bare string facts written
// by older versions. Any other shape decodes to an empty fact, which List
// skips.
func (f *rawFact) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*f = rawFact{Text: text}
		return nil
	}
	type plain rawFact
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		*f = rawFact{}
		return nil
	}
	*f = rawFact(obj)
	return nil
}

type rawDocument struct {
	Facts []rawFact `json:"facts"`
}

// Store reads and writes the facts document and reads the profile document.
type Store struct {
	memoryPath  string
	profilePath string
	now         func() time.Time
}

// New creates a Store over the given memory.json and profile.json paths.
// Neither file needs to exist yet.
func New(memoryPath, profilePath string) *Store {
	return &Store{
		memoryPath:  strings.TrimSpace(memoryPath),
		profilePath: strings.TrimSpace(profilePath),
		now:         time.Now,
	}
}

// List returns all facts in insertion order. A missing document is an empty
// list. A malformed document returns an empty list plus the decode error so
// callers can decide whether to degrade.
func (s *Store) List() ([]Fact, error) {
	var raw rawDocument
	err := store.ReadJSON(s.memoryPath, &raw)
	if errors.Is(err, os.ErrNotExist) {
		return []Fact{}, nil
	}
	if err != nil {
		return []Fact{}, fmt.Errorf("read facts: %w", err)
	}
	return decodeFacts(raw.Facts), nil
}

// Add appends a fact. Adding text that matches an existing fact after
// trimming and case folding is a no-op and reports added=false with the
// existing fact.
func (s *Store) Add(text string) (fact Fact, added bool, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Fact{}, false, ErrEmptyText
	}

	err = store.UpdateJSON(s.memoryPath, func(doc *rawDocument) error {
		for _, existing := range doc.Facts {
			if strings.EqualFold(strings.TrimSpace(existing.Text), text) {
				fact = decodeFact(existing)
				return nil
			}
		}
		fact = Fact{Text: text, Timestamp: s.now().UTC().Truncate(time.Second)}
		doc.Facts = append(doc.Facts, rawFact{Text: fact.Text, TS: fact.Timestamp.Format(time.RFC3339)})
		added = true
		return nil
	})
	if err != nil {
		return Fact{}, false, fmt.Errorf("add fact: %w", err)
	}

	logging.Logger().Debug(
		"memory write",
		"operation", "add_fact",
		"added", added,
		"entry", truncateForLog(text, maxLoggedChars),
	)
	return fact, added, nil
}

// Delete removes every fact whose text contains key, case-insensitively,
// and returns the number removed.
func (s *Store) Delete(key string) (int, error) {
	needle := strings.ToLower(strings.TrimSpace(key))
	if needle == "" {
		return 0, ErrEmptyKey
	}

	removed := 0
	err := store.UpdateJSON(s.memoryPath, func(doc *rawDocument) error {
		kept := make([]rawFact, 0, len(doc.Facts))
		for _, fact := range doc.Facts {
			if strings.Contains(strings.ToLower(fact.Text), needle) {
				removed++
				continue
			}
			kept = append(kept, fact)
		}
		doc.Facts = kept
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete facts: %w", err)
	}

	logging.Logger().Debug(
		"memory write",
		"operation", "delete_facts",
		"key", truncateForLog(key, maxLoggedChars),
		"removed", removed,
	)
	return removed, nil
}

// Profile loads the profile document. A missing file is an empty profile;
// a malformed one returns an empty profile plus the decode error.
func (s *Store) Profile() (Profile, error) {
	profile := Profile{}
	err := store.ReadJSON(s.profilePath, &profile)
	if errors.Is(err, os.ErrNotExist) {
		return Profile{}, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	return profile, nil
}

// MarshalFacts renders facts in the memory.json shape, always with a facts array.
func MarshalFacts(facts []Fact) ([]byte, error) {
	if facts == nil {
		facts = []Fact{}
	}
	return json.MarshalIndent(Document{Facts: facts}, "", "  ")
}

func decodeFacts(raw []rawFact) []Fact {
	facts := make([]Fact, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.Text) == "" {
			logging.Logger().Warn("skip malformed fact", "reason", "empty text")
			continue
		}
		facts = append(facts, decodeFact(r))
	}
	return facts
}

func decodeFact(r rawFact) Fact {
	fact := Fact{Text: strings.TrimSpace(r.Text)}
	if r.TS == "" {
		return fact
	}
	ts, err := time.Parse(time.RFC3339Nano, r.TS)
	if err != nil {
		// Older documents carry naive timestamps without a zone.
		ts, err = time.Parse("2006-01-02T15:04:05.999999", r.TS)
	}
	if err != nil {
		logging.Logger().Warn("fact timestamp unparseable", "ts", r.TS, "err", err)
		return fact
	}
	fact.Timestamp = ts.UTC()
	return fact
}

func truncateForLog(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars]) + "..."
}
