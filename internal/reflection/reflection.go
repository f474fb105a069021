// Package reflection serves the evening reflection prompts, connection ideas
// and kindness starters, and keeps a log of submitted answers.
package reflection

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/compas-coach/compas/internal/store"
)

// Category groups reflection prompts. One prompt per category is asked.
type Category string

const (
	CategoryEmotion Category = "emotion"
	CategoryPartner Category = "partner"
	CategoryAction  Category = "action"
	CategoryReset   Category = "reset"
)

// Categories lists prompt categories in the order they are asked.
var Categories = []Category{CategoryEmotion, CategoryPartner, CategoryAction, CategoryReset}

const partnerPlaceholder = "{partner}"

var prompts = map[Category][]string{
	CategoryEmotion: {
		"How did you feel most of today: calm, tired, annoyed, or good? What caused it?",
		"Did anything make you smile today? Or tense up?",
		"Was there a moment you felt proud or frustrated? Why?",
	},
	CategoryPartner: {
		"How do you think {partner} felt today? What signs did you notice?",
		"Did you make {partner}'s day easier or harder? One small thing that helped or hurt?",
		"What's one thing {partner} did today you can say thanks for?",
	},
	CategoryAction: {
		"If today wasn't great, what could you do differently tomorrow?",
		"One thing you can do tonight or tomorrow to make {partner} feel supported?",
		"Did you give any compliment or warmth today? If not, start with one before bed.",
	},
	CategoryReset: {
		"No need to fix everything. What's one good thing about today you want to keep?",
		"Even on hard days, what went right between you two?",
		"What's one thing you can look forward to together this week?",
	},
}

// Prompt is one reflection question.
type Prompt struct {
	Category Category `json:"category"`
	Text     string   `json:"text"`
}

// Deck draws prompts and ideas. It is safe for concurrent use.
type Deck struct {
	partner string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewDeck creates a Deck that names partner in its prompts. A nil rng is
// seeded from the clock.
func NewDeck(partner string, rng *rand.Rand) *Deck {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &Deck{partner: strings.TrimSpace(partner), rng: rng}
}

// Random returns one prompt from each category, in category order.
func (d *Deck) Random() []Prompt {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Prompt, 0, len(Categories))
	for _, category := range Categories {
		options := prompts[category]
		out = append(out, Prompt{
			Category: category,
			Text:     d.personalize(options[d.rng.IntN(len(options))]),
		})
	}
	return out
}

// ConnectionIdea picks a random category from the ideas document at path,
// then a random idea in it. The document maps category names to idea lists.
func (d *Deck) ConnectionIdea(path string) (string, error) {
	var ideas map[string][]string
	if err := store.ReadJSON(path, &ideas); err != nil {
		return "", fmt.Errorf("read connection ideas: %w", err)
	}

	categories := make([]string, 0, len(ideas))
	for category, list := range ideas {
		if len(list) > 0 {
			categories = append(categories, category)
		}
	}
	if len(categories) == 0 {
		return "", errors.New("no connection ideas")
	}
	sort.Strings(categories)

	d.mu.Lock()
	defer d.mu.Unlock()
	list := ideas[categories[d.rng.IntN(len(categories))]]
	return d.personalize(list[d.rng.IntN(len(list))]), nil
}

// KindnessStarter picks a random entry from the "starters" list of the
// document at path.
func (d *Deck) KindnessStarter(path string) (string, error) {
	var doc struct {
		Starters []string `json:"starters"`
	}
	if err := store.ReadJSON(path, &doc); err != nil {
		return "", fmt.Errorf("read kindness starters: %w", err)
	}
	if len(doc.Starters) == 0 {
		return "", errors.New("no kindness starters")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.personalize(doc.Starters[d.rng.IntN(len(doc.Starters))]), nil
}

func (d *Deck) personalize(text string) string {
	name := d.partner
	if name == "" {
		name = "your partner"
	}
	return strings.ReplaceAll(text, partnerPlaceholder, name)
}
