package coach

import (
	_ "embed"
	"strings"
	"text/template"

	"github.com/compas-coach/compas/internal/logging"
	"github.com/compas-coach/compas/internal/memory"
)

//go:embed templates/system_prompt.tmpl
var systemPromptTemplate string

var systemPrompt = template.Must(template.New("system_prompt").Parse(systemPromptTemplate))

const (
	DefaultUserName    = "Miguel"
	DefaultPartnerName = "Lisa"
)

// Composer builds the system instruction for one turn.
type Composer struct {
	UserName    string
	PartnerName string
}

type promptData struct {
	UserName    string
	PartnerName string
	Mode        Mode
	WordCap     int
	Rules       []string
	Examples    []string
	Profile     string
	Memory      string
	Lessons     string
}

// Compose renders the system instruction with the default names.
func Compose(mode Mode, profile memory.Profile, facts []memory.Fact, lessons []Lesson) string {
	return Composer{}.Compose(mode, profile, facts, lessons)
}

// Compose renders the system instruction for mode. Profile and facts are
// embedded as indented JSON; empty inputs still render a valid empty
// section and the lessons slot falls back to its placeholder.
func (c Composer) Compose(mode Mode, profile memory.Profile, facts []memory.Fact, lessons []Lesson) string {
	rules := RulesFor(mode)
	data := promptData{
		UserName:    orDefault(c.UserName, DefaultUserName),
		PartnerName: orDefault(c.PartnerName, DefaultPartnerName),
		Mode:        rules.Mode,
		WordCap:     rules.WordCap,
		Rules:       rules.Rules,
		Examples:    rules.Examples,
		Profile:     profile.JSON(),
		Memory:      factsJSON(facts),
		Lessons:     FormatLessons(lessons),
	}

	var b strings.Builder
	if err := systemPrompt.Execute(&b, data); err != nil {
		logging.Logger().Error("render system prompt", "mode", mode, "err", err)
	}
	return b.String()
}

func factsJSON(facts []memory.Fact) string {
	raw, err := memory.MarshalFacts(facts)
	if err != nil {
		return `{"facts": []}`
	}
	return string(raw)
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
