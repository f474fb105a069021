package coach

import (
	"sort"
	"strings"

	"github.com/compas-coach/compas/internal/ledger"
)

const (
	// MaxLessons is how many ranked lessons reach the prompt.
	MaxLessons = 3

	noLessonsLine = "– (no prior wins yet)"
)

// Lesson is a past suggestion with its smoothed success rate.
type Lesson struct {
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
	Successes int     `json:"successes"`
	Total     int     `json:"total"`
}

// Rank groups feedback rows by trimmed suggestion text and scores each group
// with the Laplace-smoothed success rate (s+1)/(t+2). Groups keep the order
// they were first seen in entries, which breaks score ties, and at most
// MaxLessons are returned. No entries yields an empty, non-nil slice.
func Rank(entries []ledger.JoinedOutcome) []Lesson {
	index := map[string]int{}
	groups := make([]Lesson, 0)
	for _, entry := range entries {
		key := strings.TrimSpace(entry.Text)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Lesson{Text: key})
		}
		groups[i].Total++
		if entry.Outcome == ledger.OutcomeSuccess {
			groups[i].Successes++
		}
	}

	for i := range groups {
		groups[i].Score = float64(groups[i].Successes+1) / float64(groups[i].Total+2)
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].Score > groups[b].Score
	})

	if len(groups) > MaxLessons {
		groups = groups[:MaxLessons]
	}
	return groups
}

// FormatLessons renders lessons for the prompt, one per line. An empty slice
// renders the "no prior wins yet" placeholder so the slot is never blank.
func FormatLessons(lessons []Lesson) string {
	if len(lessons) == 0 {
		return noLessonsLine
	}
	lines := make([]string, 0, len(lessons))
	for _, lesson := range lessons {
		lines = append(lines, "– "+lesson.Text+" (worked before)")
	}
	return strings.Join(lines, "\n")
}
