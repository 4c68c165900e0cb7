// Package app wires shared process bootstrap: env, logging, the chart of
// accounts, the engagement policy, and the pipeline orchestrator.
package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"valuation_workbench/pkg/config"
	"valuation_workbench/pkg/core/coa"
	"valuation_workbench/pkg/core/normalize"
	"valuation_workbench/pkg/core/pipeline"
	"valuation_workbench/pkg/core/provider"
	"valuation_workbench/pkg/core/validate"
)

// App is the shared bootstrap state for every entrypoint.
type App struct {
	Config       *config.Config
	Policy       *config.Policy
	Logger       *slog.Logger
	Provider     provider.MarketDataProvider
	Orchestrator *pipeline.Orchestrator
}

// Bootstrap loads configuration and builds the orchestrator. `.env` is
// optional and loaded first, matching local development workflow.
func Bootstrap() (*App, error) {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := coa.Init(cfg.COAPath); err != nil {
		return nil, fmt.Errorf("load chart of accounts: %w", err)
	}
	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}

	market, err := provider.New(cfg.ProviderKind, provider.Options{
		WebBaseURL:      cfg.ProviderBaseURL,
		Timeout:         cfg.ProviderTimeout,
		PitchBookAPIKey: cfg.PitchBookAPIKey,
	})
	if err != nil {
		return nil, err
	}

	var mapper normalize.LabelMapper
	if cfg.GeminiAPIKey != "" {
		mapper = normalize.NewGeminiMapper(cfg.GeminiAPIKey, cfg.GeminiModel, coa.Get())
	}
	normalizer, err := normalize.New(coa.Get(), mapper, normalize.Config{
		MaterialityAbs: decimal.NewFromFloat(cfg.ReconMaterialityAbs),
		MaterialityPct: decimal.NewFromFloat(cfg.ReconMaterialityPct),
		MinConfidence:  cfg.MinMapConfidence,
	})
	if err != nil {
		return nil, err
	}

	engine := validate.NewEngine(validate.Config{
		MarginLow:     policy.Validation.MarginLow,
		MarginHigh:    policy.Validation.MarginHigh,
		SwingMultiple: policy.Validation.SwingMultiple,
	})

	orch := pipeline.New(normalizer, engine, market, policy, logger)
	return &App{
		Config:       cfg,
		Policy:       policy,
		Logger:       logger,
		Provider:     market,
		Orchestrator: orch,
	}, nil
}
