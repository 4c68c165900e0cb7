package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"valuation_workbench/pkg/app"
	"valuation_workbench/pkg/core/store"
	"valuation_workbench/pkg/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Bootstrap()
	if err != nil {
		slog.Error("bootstrap failed", "error", err.Error())
		os.Exit(1)
	}

	if err := store.InitDB(ctx, a.Config.DatabaseURL); err != nil {
		a.Logger.Error("database init failed", "error", err.Error())
		os.Exit(1)
	}
	defer store.Close()

	worker := jobs.NewWorker(jobs.WorkerConfig{
		RedisAddr:    a.Config.RedisAddr,
		Orchestrator: a.Orchestrator,
		Statements:   store.NewStatementRepo(),
		Issues:       store.NewIssueRepo(),
		Runs:         store.NewRunRepo(),
		Logger:       a.Logger,
	})
	if err := worker.Run(ctx); err != nil {
		a.Logger.Error("worker stopped", "error", err.Error())
		os.Exit(1)
	}
}
