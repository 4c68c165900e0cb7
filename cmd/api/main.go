package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"valuation_workbench/pkg/api"
	valapi "valuation_workbench/pkg/api/valuation"
	"valuation_workbench/pkg/api/validation"
	"valuation_workbench/pkg/app"
	"valuation_workbench/pkg/core/store"
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

	queue := asynq.NewClient(asynq.RedisClientOpt{Addr: a.Config.RedisAddr})
	defer queue.Close()

	runs := store.NewRunRepo()
	statements := store.NewStatementRepo()
	issues := store.NewIssueRepo()

	router := api.NewRouter(api.Deps{
		Valuation:  valapi.NewHandler(queue, runs, statements, issues, a.Policy, a.Logger),
		Validation: validation.NewHandler(queue, issues, statements, a.Logger),
		Logger:     a.Logger,
	})

	srv := &http.Server{Addr: a.Config.HTTPAddr, Handler: router}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	a.Logger.Info("api listening", "addr", a.Config.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		a.Logger.Error("server stopped", "error", err.Error())
		os.Exit(1)
	}
}
