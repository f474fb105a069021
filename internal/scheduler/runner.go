package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/compas-coach/compas/internal/logging"
)

// NudgeFunc writes one nudge to w and returns the text it sent.
type NudgeFunc func(ctx context.Context, w io.Writer) (string, error)

// ActionRunners holds concrete per-action execution functions used by NewRunner.
type ActionRunners struct {
	ReflectionNudge NudgeFunc
	KindnessNudge   NudgeFunc
}

// Runner executes scheduler jobs by dispatching to action-specific handlers.
type Runner struct {
	reflectionNudge NudgeFunc
	kindnessNudge   NudgeFunc
	writers         map[string]io.Writer
}

// NewRunner constructs a scheduler runner. writers maps channel ids to
// the outbound writer nudges for that channel go to.
func NewRunner(r ActionRunners, writers map[string]io.Writer) *Runner {
	return &Runner{
		reflectionNudge: r.ReflectionNudge,
		kindnessNudge:   r.KindnessNudge,
		writers:         writers,
	}
}

// Run executes one job action and returns the text it sent.
func (r *Runner) Run(ctx context.Context, job Job) (string, error) {
	var nudge NudgeFunc
	switch job.Action {
	case ActionReflectionNudge:
		nudge = r.reflectionNudge
	case ActionKindnessNudge:
		nudge = r.kindnessNudge
	default:
		return "", fmt.Errorf("unsupported action %q", job.Action)
	}
	if nudge == nil {
		return "", fmt.Errorf("%s runner is not configured", job.Action)
	}
	if r.writers == nil {
		return "", errors.New("writers registry is not configured")
	}
	writer, ok := r.writers[job.ChannelID]
	if !ok {
		logging.Logger().Warn(
			"scheduled nudge skipped: unknown channel",
			"job_id", job.ID,
			"channel_id", job.ChannelID,
		)
		return "", nil
	}
	return nudge(ctx, writer)
}

// WriteNudge adapts a text source into a NudgeFunc that writes the text
// as one message.
func WriteNudge(text func() string) NudgeFunc {
	return func(_ context.Context, w io.Writer) (string, error) {
		msg := text()
		if _, err := io.WriteString(w, msg); err != nil {
			return "", err
		}
		return msg, nil
	}
}
