package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newReflectCmd() *cobra.Command {
	var (
		answers []string
		sendJob string
	)

	cmd := &cobra.Command{
		Use:   "reflect",
		Short: "Show tonight's reflection prompts, or save answers with --answer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if jobID := strings.TrimSpace(sendJob); jobID != "" {
				// Manual runs ignore reflection.enabled and print here
				// instead of the configured channel.
				reflectionCfg := a.cfg.Reflection
				reflectionCfg.Enabled = true
				writers := map[string]io.Writer{reflectionCfg.Channel: out, "cli": out}
				text, err := newSchedulerService(a, reflectionCfg, writers).RunNow(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				if !strings.HasSuffix(text, "\n") {
					fmt.Fprintln(out)
				}
				return nil
			}
			if len(answers) > 0 {
				entry, err := a.reflections.Save(a.cfg.Coach.UserName, answers)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Saved %d answer(s) at %s.\n", len(entry.Answers), entry.Timestamp)
				return nil
			}

			fmt.Fprintln(out, a.deck.EveningNudge(a.cfg.ConnectionIdeasPath()))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&answers, "answer", "a", nil, "Reflection answer (repeatable)")
	cmd.Flags().StringVar(&sendJob, "send", "", "Run a nudge job (reflection or kindness) now and print it")
	return cmd
}
