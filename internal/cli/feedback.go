package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newFeedbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feedback <suggestion-id> <success|neutral|fail> [notes...]",
		Short: "Record how a suggestion went",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid suggestion id %q", args[0])
			}

			a, err := loadApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			notes := strings.Join(args[2:], " ")
			if err := a.coach.HandleFeedback(cmd.Context(), id, strings.ToLower(args[1]), notes); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Thanks, noted.")
			return nil
		},
	}
}
