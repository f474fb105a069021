package coach

import (
	"strings"

	"github.com/compas-coach/compas/internal/memory"
)

const maxGiftIdeas = 5

const handwrittenNote = "A handwritten 6–8 sentence note: one admiration, one apology, one plan for next week."

type giftRule struct {
	idea    string
	matches func(profile func(key string) string, facts string) bool
}

// giftRules are checked in order; each hit adds its idea once.
var giftRules = []giftRule{
	{
		idea: "Sponsor a rescue animal in their name + a handwritten note about why you chose it.",
		matches: func(profile func(string) string, facts string) bool {
			return strings.Contains(profile("values"), "animal") ||
				containsAny(facts, "cat", "pigeon", "hedgehog")
		},
	},
	{
		idea: "Quality secateurs + native bulbs kit, and block a morning to plant them together.",
		matches: func(profile func(string) string, facts string) bool {
			return strings.Contains(profile("interests"), "garden") || containsAny(facts, "garden", "bulb")
		},
	},
	{
		idea: "Booking at a great vegetarian spot + bring a small basil plant with a ribbon.",
		matches: func(profile func(string) string, _ string) bool {
			return strings.HasPrefix(profile("diet"), "veg")
		},
	},
	{
		idea: "Reusable stylish thermos + planned winter beach walk with hot drinks.",
		matches: func(profile func(string) string, _ string) bool {
			return strings.Contains(profile("identity"), "eco")
		},
	},
	{
		idea: "Half‑day road trip to a botanical garden or coastal trail; playlist + snacks ready.",
		matches: func(_ func(string) string, facts string) bool {
			return strings.Contains(facts, "road")
		},
	},
}

// GiftIdeas suggests gifts from the partner's profile and remembered facts.
// A handwritten note is appended as the fallback; at most five ideas are
// returned, so the note drops off when every rule matches.
func GiftIdeas(profile memory.Profile, facts []memory.Fact, partner string) []string {
	texts := make([]string, 0, len(facts))
	for _, fact := range facts {
		texts = append(texts, fact.Text)
	}
	likes := strings.ToLower(strings.Join(texts, " "))
	lookup := func(key string) string { return profile.Text(partner, key) }

	ideas := make([]string, 0, maxGiftIdeas)
	for _, rule := range giftRules {
		if rule.matches(lookup, likes) {
			ideas = append(ideas, rule.idea)
		}
	}
	ideas = append(ideas, handwrittenNote)
	if len(ideas) > maxGiftIdeas {
		ideas = ideas[:maxGiftIdeas]
	}
	return ideas
}

func containsAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
