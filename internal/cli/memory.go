package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/compas-coach/compas/internal/coach"
)

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Manage remembered facts about your partner",
	}
	cmd.AddCommand(
		newMemoryOpCmd("add <fact>", "Remember a fact", coach.MemoryAdd, cobra.MinimumNArgs(1)),
		newMemoryOpCmd("list", "List remembered facts", coach.MemoryList, cobra.NoArgs),
		newMemoryOpCmd("delete <word>", "Forget facts containing word", coach.MemoryDelete, cobra.ExactArgs(1)),
	)
	return cmd
}

func newMemoryOpCmd(use, short string, op coach.MemoryCommand, args cobra.PositionalArgs) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			text := strings.Join(args, " ")
			result, err := a.coach.HandleMemoryOp(cmd.Context(), coach.MemoryOp{Cmd: op, Text: text, Key: text})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch op {
			case coach.MemoryAdd:
				if result.Duplicate {
					fmt.Fprintln(out, "Already remembered.")
				} else {
					fmt.Fprintln(out, "Remembered.")
				}
			case coach.MemoryList:
				if len(result.Facts) == 0 {
					fmt.Fprintln(out, "No facts yet.")
				}
				for _, fact := range result.Facts {
					fmt.Fprintf(out, "- %s\n", fact.Text)
				}
			case coach.MemoryDelete:
				fmt.Fprintf(out, "Removed %d fact(s).\n", result.Removed)
			}
			return nil
		},
	}
}
