package cli

import (
	"context"
	"fmt"

	"github.com/compas-coach/compas/internal/coach"
	"github.com/compas-coach/compas/internal/commands"
	"github.com/compas-coach/compas/internal/config"
	"github.com/compas-coach/compas/internal/costs"
	"github.com/compas-coach/compas/internal/ledger"
	"github.com/compas-coach/compas/internal/logging"
	"github.com/compas-coach/compas/internal/memory"
	"github.com/compas-coach/compas/internal/reflection"
	"github.com/compas-coach/compas/internal/session"
)

// app holds the long-lived dependencies every subcommand shares.
type app struct {
	cfg         *config.Config
	ledger      *ledger.Ledger
	coach       *coach.Service
	deck        *reflection.Deck
	reflections *reflection.Log
}

// newApp opens the ledger and wires the coach. withModel builds the LLM
// provider; commands that never call the model skip it so they work
// without an API key.
func newApp(ctx context.Context, cfg *config.Config, withModel bool) (*app, error) {
	llmCfg := cfg.DefaultLLM()
	opts := coach.Options{
		ProviderName: llmCfg.Provider,
		Model:        llmCfg.Model,
		Composer: coach.Composer{
			UserName:    cfg.Coach.UserName,
			PartnerName: cfg.Coach.PartnerName,
		},
		LessonsWindow: cfg.Coach.LessonsWindow,
		Timeout:       llmCfg.RequestTimeout,
		MaxTokens:     llmCfg.MaxTokens,
		Temperature:   &llmCfg.Temperature,
		Limits: costs.Limits{
			DailyUSD:   cfg.Costs.DailyLimit,
			MonthlyUSD: cfg.Costs.MonthlyLimit,
		},
	}
	if withModel {
		modelProvider, err := providerFactory(llmCfg)
		if err != nil {
			return nil, err
		}
		opts.Provider = modelProvider
	}

	db, err := ledger.Open(ctx, cfg.LedgerPath())
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	opts.Ledger = db
	opts.Facts = memory.New(cfg.MemoryPath(), cfg.ProfilePath())
	opts.Sessions = session.NewLRU(cfg.Session.MaxSessions, cfg.Session.TTL, cfg.Session.MaxMessages)
	opts.Costs = costs.New(cfg.CostsPath())

	return &app{
		cfg:         cfg,
		ledger:      db,
		coach:       coach.New(opts),
		deck:        reflection.NewDeck(cfg.Coach.PartnerName, nil),
		reflections: reflection.NewLog(cfg.ReflectionLogPath()),
	}, nil
}

// loadApp loads and validates config, then builds the app.
func loadApp(ctx context.Context, withModel bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if withModel {
		report, err := config.ValidateStartup(cfg)
		if err != nil {
			return nil, err
		}
		warnStartup(report)
	}
	return newApp(ctx, cfg, withModel)
}

// router sends slash commands to the command handler and everything else
// to the coach.
func (a *app) router() commands.Router {
	return commands.Router{
		Commands: commands.New(a.coach, a.deck),
		Next:     a.coach,
	}
}

func (a *app) Close() error {
	if a == nil || a.ledger == nil {
		return nil
	}
	return a.ledger.Close()
}

func warnStartup(report *config.ValidationReport) {
	if report == nil {
		return
	}
	for _, warning := range report.Warnings {
		logging.Logger().Warn(warning)
	}
}
