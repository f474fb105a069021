package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/compas-coach/compas/internal/channels"
	"github.com/compas-coach/compas/internal/runtime"
)

func newChatCmd() *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the coach (or send one message with -p)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			trimmedPrompt := strings.TrimSpace(prompt)
			if trimmedPrompt == "" {
				listener := channels.NewCLI(cmd.InOrStdin(), cmd.OutOrStdout())
				return listener.Listen(cmd.Context(), a.router())
			}
			if strings.HasPrefix(trimmedPrompt, "/") {
				return fmt.Errorf("slash commands are not supported in one-shot -p mode")
			}

			writer := channels.NewCLIWriter(cmd.OutOrStdout())
			return a.coach.HandleMessage(cmd.Context(), writer, &runtime.Message{
				Text:      trimmedPrompt,
				SessionID: channels.CLISessionID,
				Channel:   "cli",
			})
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt message")

	return cmd
}
