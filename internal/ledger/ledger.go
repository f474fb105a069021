// Package ledger is the append-only record of suggestions the coach gave and the feedback received about them, stored in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DefaultWindow is how many recent feedback rows ranking looks at.
	DefaultWindow = 200

	tsLayout = "2006-01-02T15:04:05.000000Z"
)

var (
	// ErrInvalidOutcome is returned for outcomes outside success, neutral and fail.
	ErrInvalidOutcome = errors.New("invalid outcome")
	// ErrMissingField is returned when a required identifier or text is absent.
	ErrMissingField = errors.New("missing field")
	// ErrNotFound is returned when a suggestion id has no row.
	ErrNotFound = errors.New("suggestion not found")
)

// Kind classifies a suggestion. Only plans are issued today.
type Kind string

const KindPlan Kind = "plan"

// Outcome is the reported result of acting on a suggestion.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeNeutral Outcome = "neutral"
	OutcomeFail    Outcome = "fail"
)

// ParseOutcome validates raw against the outcome enum.
func ParseOutcome(raw string) (Outcome, error) {
	switch o := Outcome(strings.TrimSpace(raw)); o {
	case OutcomeSuccess, OutcomeNeutral, OutcomeFail:
		return o, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, raw)
	}
}

// Suggestion is one issued suggestion row.
type Suggestion struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"ts"`
	Context   string    `json:"context"`
	Text      string    `json:"text"`
	Kind      Kind      `json:"kind"`
}

// JoinedOutcome pairs a suggestion's text with one feedback outcome.
type JoinedOutcome struct {
	Text    string  `db:"text"`
	Outcome Outcome `db:"outcome"`
}

// Stats counts ledger rows.
type Stats struct {
	Suggestions int `db:"suggestions" json:"suggestions"`
	Feedback    int `db:"feedback" json:"feedback"`
}

type suggestionRow struct {
	ID      int64          `db:"id"`
	TS      sql.NullString `db:"ts"`
	Context sql.NullString `db:"context"`
	Text    sql.NullString `db:"text"`
	Kind    sql.NullString `db:"kind"`
}

// Ledger wraps the SQLite database. Writers are serialized.
type Ledger struct {
	db  *sqlx.DB
	mu  sync.Mutex
	now func() time.Time
}

// Open connects to the SQLite file at path, creating it and its directory
// when missing, and applies pending migrations.
func Open(ctx context.Context, path string) (*Ledger, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to ledger: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure ledger (%s): %w", pragma, err)
		}
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, err
	}

	return &Ledger{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record inserts one suggestion and returns its id. turnContext is an
// opaque JSON blob describing the turn; blank becomes "{}".
func (l *Ledger) Record(ctx context.Context, text, turnContext string, kind Kind) (int64, error) {
	suggestions, err := l.RecordBatch(ctx, []string{text}, turnContext, kind)
	if err != nil {
		return 0, err
	}
	return suggestions[0].ID, nil
}

// RecordBatch inserts all texts in one transaction, in order. Blank texts
// fail the whole batch with ErrMissingField.
func (l *Ledger) RecordBatch(ctx context.Context, texts []string, turnContext string, kind Kind) ([]Suggestion, error) {
	if len(texts) == 0 {
		return []Suggestion{}, nil
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: suggestion text", ErrMissingField)
		}
	}
	if kind == "" {
		kind = KindPlan
	}
	if strings.TrimSpace(turnContext) == "" {
		turnContext = "{}"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	now := l.now().UTC()
	out := make([]Suggestion, 0, len(texts))
	for _, text := range texts {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO suggestions (ts, context, text, kind) VALUES (?, ?, ?, ?)`,
			now.Format(tsLayout), turnContext, text, string(kind),
		)
		if err != nil {
			return nil, fmt.Errorf("insert suggestion: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("read suggestion id: %w", err)
		}
		out = append(out, Suggestion{ID: id, Timestamp: now, Context: turnContext, Text: text, Kind: kind})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit suggestions: %w", err)
	}
	return out, nil
}

// RecordFeedback appends one feedback row. Nothing is written when
// validation fails. The suggestion id is not checked for existence.
func (l *Ledger) RecordFeedback(ctx context.Context, suggestionID int64, outcome, notes string) error {
	if suggestionID <= 0 {
		return fmt.Errorf("%w: suggestion_id", ErrMissingField)
	}
	parsed, err := ParseOutcome(outcome)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO feedback (suggestion_id, outcome, notes, ts) VALUES (?, ?, ?, ?)`,
		suggestionID, string(parsed), notes, l.now().UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// RecentJoined returns (text, outcome) pairs for the most recent feedback
// rows first. Feedback pointing at a missing suggestion is excluded.
func (l *Ledger) RecentJoined(ctx context.Context, limit int) ([]JoinedOutcome, error) {
	if limit <= 0 {
		limit = DefaultWindow
	}
	rows := []JoinedOutcome{}
	err := l.db.SelectContext(ctx, &rows, `
		SELECT COALESCE(suggestions.text, '') AS text, COALESCE(feedback.outcome, '') AS outcome
		FROM feedback
		JOIN suggestions ON feedback.suggestion_id = suggestions.id
		ORDER BY feedback.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent feedback: %w", err)
	}
	return rows, nil
}

// Suggestion looks up one suggestion by id.
func (l *Ledger) Suggestion(ctx context.Context, id int64) (Suggestion, error) {
	var row suggestionRow
	err := l.db.GetContext(ctx, &row, `SELECT id, ts, context, text, kind FROM suggestions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Suggestion{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return Suggestion{}, fmt.Errorf("query suggestion %d: %w", id, err)
	}

	s := Suggestion{
		ID:      row.ID,
		Context: row.Context.String,
		Text:    row.Text.String,
		Kind:    Kind(row.Kind.String),
	}
	if ts, err := time.Parse(time.RFC3339Nano, row.TS.String); err == nil {
		s.Timestamp = ts
	}
	return s, nil
}

// Stats returns row counts for both tables.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := l.db.GetContext(ctx, &stats, `
		SELECT
			(SELECT COUNT(*) FROM suggestions) AS suggestions,
			(SELECT COUNT(*) FROM feedback) AS feedback`)
	if err != nil {
		return Stats{}, fmt.Errorf("query ledger stats: %w", err)
	}
	return stats, nil
}
