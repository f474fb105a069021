package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/compas-coach/compas/internal/coach"
)

func newLessonsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lessons",
		Short: "Show what has worked best so far",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			lessons, err := a.coach.Lessons(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, coach.FormatLessons(lessons))
			if stats, err := a.ledger.Stats(cmd.Context()); err == nil {
				fmt.Fprintf(out, "(%d suggestions, %d ratings)\n", stats.Suggestions, stats.Feedback)
			}
			return nil
		},
	}
}
