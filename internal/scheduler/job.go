// Package scheduler runs the coach's recurring nudges on cron schedules.
package scheduler

import (
	"strings"

	"github.com/compas-coach/compas/internal/config"
)

// Action identifies which nudge a scheduled job sends.
type Action string

const (
	// ActionReflectionNudge sends the evening reflection prompts.
	ActionReflectionNudge Action = "reflection_nudge"
	// ActionKindnessNudge sends one kindness starter.
	ActionKindnessNudge Action = "kindness_nudge"
)

// Job is one scheduled nudge.
type Job struct {
	ID          string
	Description string
	Cron        string
	Action      Action
	ChannelID   string
}

// JobsFromConfig builds the nudge jobs enabled by cfg.
func JobsFromConfig(cfg config.ReflectionConfig) []Job {
	if !cfg.Enabled {
		return nil
	}
	jobs := []Job{{
		ID:          "reflection",
		Description: "evening reflection prompts",
		Cron:        cfg.Cron,
		Action:      ActionReflectionNudge,
		ChannelID:   cfg.Channel,
	}}
	if strings.TrimSpace(cfg.KindnessCron) != "" {
		jobs = append(jobs, Job{
			ID:          "kindness",
			Description: "daily kindness starter",
			Cron:        cfg.KindnessCron,
			Action:      ActionKindnessNudge,
			ChannelID:   cfg.Channel,
		})
	}
	return jobs
}
