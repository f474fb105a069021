package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/compas-coach/compas/internal/channels"
	"github.com/compas-coach/compas/internal/config"
	"github.com/compas-coach/compas/internal/logging"
	"github.com/compas-coach/compas/internal/scheduler"
	"github.com/compas-coach/compas/internal/server"
)

const schedulerStopTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, Telegram bot and reflection nudges",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.cfg
			if listen != "" {
				cfg.Server.Listen = listen
			}
			llm := cfg.DefaultLLM()
			logging.Logger().Info(
				"starting server",
				"listen", cfg.Server.Listen,
				"provider", llm.Provider,
				"model", llm.Model,
				"data_dir", cfg.DataDir(),
			)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			writers := map[string]io.Writer{"cli": cmd.OutOrStdout()}
			group, groupCtx := errgroup.WithContext(runCtx)

			if telegramCfg := cfg.TelegramChannel(); telegramCfg.Enabled {
				telegram := channels.NewTelegram(telegramCfg.Token, telegramCfg.AllowedUsers, a.coach)
				writers["telegram"] = telegram.BroadcastWriter()
				group.Go(func() error {
					return telegram.Listen(groupCtx, a.router())
				})
			}

			nudges := newSchedulerService(a, cfg.Reflection, writers)
			if err := nudges.Start(groupCtx); err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), schedulerStopTimeout)
				defer cancel()
				if err := nudges.Stop(stopCtx); err != nil {
					logging.Logger().Warn("scheduler stop failed", "err", err)
				}
			}()

			srv := server.New(server.Options{
				Listen:              cfg.Server.Listen,
				Passcode:            cfg.Server.Passcode,
				Coach:               a.coach,
				Stats:               a.ledger,
				Deck:                a.deck,
				Reflections:         a.reflections,
				ConnectionIdeasPath: cfg.ConnectionIdeasPath(),
				KindnessPath:        cfg.KindnessPath(),
			})
			group.Go(func() error {
				return srv.Run(groupCtx)
			})

			if err := group.Wait(); err != nil {
				return err
			}
			logging.Logger().Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Override server.listen")
	return cmd
}

func newSchedulerService(a *app, reflectionCfg config.ReflectionConfig, writers map[string]io.Writer) *scheduler.Service {
	cfg := a.cfg
	runner := scheduler.NewRunner(scheduler.ActionRunners{
		ReflectionNudge: scheduler.WriteNudge(func() string {
			return a.deck.EveningNudge(cfg.ConnectionIdeasPath())
		}),
		KindnessNudge: scheduler.WriteNudge(func() string {
			return a.deck.KindnessNudge(cfg.KindnessPath())
		}),
	}, writers)
	return scheduler.NewService(scheduler.JobsFromConfig(reflectionCfg), runner)
}
