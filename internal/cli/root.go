// Package cli wires Cobra subcommands to application dependencies; it is a thin controller with no business logic.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/compas-coach/compas/internal/bootstrap"
	"github.com/compas-coach/compas/internal/config"
	"github.com/compas-coach/compas/internal/logging"
	"github.com/compas-coach/compas/internal/provider"
	"github.com/spf13/cobra"
)

var providerFactory = provider.NewProviderFromConfig

// exitFunc ends the process after first-run setup.
var exitFunc = os.Exit

// NewRootCmd creates the root command and registers all subcommands.
func NewRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "compas",
		Short: "Compás relationship coach",
		// Let main handle fatal error rendering through structured logs.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if verbose {
				logging.SetLevel(slog.LevelInfo)
			} else {
				logging.SetLevel(slog.LevelWarn)
			}

			// config and version only print and must not trigger first-run setup.
			if cmd.Name() == "config" || cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			configPath := cfg.ConfigPath()
			firstRun := false
			if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
				firstRun = true
			} else if err != nil {
				return fmt.Errorf("stat Compás config file %q: %w", configPath, err)
			}

			if err := bootstrap.Initialize(cfg); err != nil {
				return err
			}

			if firstRun {
				// First-run bootstrap is an onboarding path, not a fatal error.
				if _, err := fmt.Fprintf(
					cmd.ErrOrStderr(),
					"First run setup complete.\nEdit config file: %s\nThen run compas again.\n",
					configPath,
				); err != nil {
					return err
				}
				exitFunc(0)
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default to `compas serve` when no subcommand is provided.
			serveCmd, _, err := cmd.Find([]string{"serve"})
			if err != nil {
				return err
			}
			serveCmd.SetContext(cmd.Context())
			return serveCmd.RunE(serveCmd, args)
		},
	}

	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newMemoryCmd())
	root.AddCommand(newFeedbackCmd())
	root.AddCommand(newLessonsCmd())
	root.AddCommand(newReflectCmd())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging (info level)")

	return root
}
