package coach

import (
	"strings"
	"unicode"
)

// Mode is the conversational category that picks prompt rules and the word cap.
type Mode string

const (
	ModeRepair    Mode = "REPAIR"
	ModePlanning  Mode = "PLANNING"
	ModeAffection Mode = "AFFECTION"
	ModeCelebrate Mode = "CELEBRATE"
	ModeGeneral   Mode = "GENERAL"
)

// Classify maps free text to a Mode. Keyword sets are tried in priority
// order and the first hit wins, so conflict language beats planning or
// affection language in the same message. No hit, including empty input,
// is ModeGeneral.
func Classify(text string) Mode {
	normalized := normalizeWords(text)
	if normalized == "" {
		return ModeGeneral
	}
	for _, rules := range modeTable {
		for _, keyword := range rules.Keywords {
			if strings.Contains(normalized, " "+keyword+" ") {
				return rules.Mode
			}
		}
	}
	return ModeGeneral
}

// normalizeWords lower-cases text and reduces it to space-separated words
// with a leading and trailing space, so keywords only match whole words.
func normalizeWords(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	if len(fields) == 0 {
		return ""
	}
	return " " + strings.Join(fields, " ") + " "
}
