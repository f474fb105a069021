package reflection

import (
	"fmt"
	"strings"
)

const fallbackKindness = "Say one specific thank-you to %s before bed."

// EveningNudge renders the scheduled reflection message: the four prompts,
// plus a connection idea when one is available at ideasPath.
func (d *Deck) EveningNudge(ideasPath string) string {
	var b strings.Builder
	b.WriteString("Evening check-in. Take two minutes:\n")
	for i, prompt := range d.Random() {
		fmt.Fprintf(&b, "%d. %s\n", i+1, prompt.Text)
	}
	if ideasPath != "" {
		if idea, err := d.ConnectionIdea(ideasPath); err == nil {
			fmt.Fprintf(&b, "\nIdea for tomorrow: %s\n", idea)
		}
	}
	b.WriteString("\nReply with /reflect to see these again.")
	return b.String()
}

// KindnessNudge renders a short kindness reminder. A missing or empty
// starters document falls back to a built-in suggestion.
func (d *Deck) KindnessNudge(path string) string {
	starter, err := d.KindnessStarter(path)
	if err != nil {
		starter = d.personalize(fmt.Sprintf(fallbackKindness, partnerPlaceholder))
	}
	return "Small kindness for today: " + starter
}
