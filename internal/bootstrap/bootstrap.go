// Package bootstrap lays out the Compás home directory on first run.
package bootstrap

import (
	"fmt"
	"os"

	"github.com/compas-coach/compas/internal/config"
)

const defaultConnectionIdeas = `{
  "home": [
    "Cook a simple dinner together and put phones in another room",
    "Ask {partner} for one song that reminds them of a good year"
  ],
  "outside": [
    "Take a 20 minute walk after dinner",
    "Pick a cafe neither of you has tried"
  ],
  "talk": [
    "Ask {partner} what felt heavy this week and just listen",
    "Share one thing you appreciated about {partner} today"
  ]
}
`

const defaultKindnessExercises = `{
  "starters": [
    "Leave {partner} a short note saying one thing you admire",
    "Take one chore off {partner}'s list without being asked",
    "Send {partner} a message in the middle of the day that needs no reply"
  ]
}
`

// Initialize creates the expected Compás data tree if missing. Existing
// files are never overwritten.
func Initialize(cfg *config.Config) error {
	dirs := []string{
		cfg.HomeDir,
		cfg.DataDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	userConfig, err := config.DefaultUserConfigTOML()
	if err != nil {
		return err
	}

	files := []struct {
		path    string
		content string
	}{
		{path: cfg.ConfigPath(), content: userConfig},
		{path: cfg.ProfilePath(), content: "{}\n"},
		{path: cfg.MemoryPath(), content: "{\"facts\": []}\n"},
		{path: cfg.ReflectionLogPath(), content: "[]\n"},
		{path: cfg.ConnectionIdeasPath(), content: defaultConnectionIdeas},
		{path: cfg.KindnessPath(), content: defaultKindnessExercises},
		{path: cfg.CostsPath(), content: ""},
	}

	for _, file := range files {
		if err := writeFileIfMissing(file.path, file.content); err != nil {
			return err
		}
	}

	return nil
}

func writeFileIfMissing(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %q: %w", path, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write file %q: %w", path, err)
	}
	return nil
}
