package coach

import "strings"

// MaxSuggestions caps how many bullets one reply can turn into suggestions.
const MaxSuggestions = 5

var bulletMarkers = []string{"- ", "• "}

// Extract returns the text of bulleted lines in reply, in order. A line
// counts when, after trimming, it starts with "- " or "• ". Empty bullets are
// dropped and at most MaxSuggestions are kept.
func Extract(reply string) []string {
	out := make([]string, 0)
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		for _, marker := range bulletMarkers {
			if !strings.HasPrefix(line, marker) {
				continue
			}
			if text := strings.TrimSpace(strings.TrimPrefix(line, marker)); text != "" {
				out = append(out, text)
			}
			break
		}
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}
