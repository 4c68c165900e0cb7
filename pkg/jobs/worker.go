package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"valuation_workbench/pkg/core/pipeline"
	"valuation_workbench/pkg/core/store"
	"valuation_workbench/pkg/core/valuation"
)

// Worker wraps the Asynq server and the pipeline handlers.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// WorkerConfig collects what the worker needs to run.
type WorkerConfig struct {
	RedisAddr    string
	Concurrency  int
	Orchestrator *pipeline.Orchestrator
	Statements   store.StatementRepository
	Issues       store.IssueRepository
	Runs         store.RunRepository
	Logger       *slog.Logger
}

// NewWorker builds the worker and registers the task handlers.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{QueueDefault: 1},
	})

	h := &handlers{
		orch:       cfg.Orchestrator,
		statements: cfg.Statements,
		issues:     cfg.Issues,
		runs:       cfg.Runs,
		log:        cfg.Logger,
	}
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypePrepare, h.handlePrepare)
	mux.HandleFunc(TaskTypeValuationRun, h.handleValuationRun)

	return &Worker{server: srv, mux: mux, logger: cfg.Logger}
}

// Run processes jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()
	w.logger.Info("worker started")
	return w.server.Run(w.mux)
}

type handlers struct {
	orch       *pipeline.Orchestrator
	statements store.StatementRepository
	issues     store.IssueRepository
	runs       store.RunRepository
	log        *slog.Logger
}

func (h *handlers) handlePrepare(ctx context.Context, t *asynq.Task) error {
	var payload PreparePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	res, err := h.orch.Prepare(ctx, payload.EngagementID, payload.Items)
	if err != nil {
		h.log.Error("prepare failed", "engagement_id", payload.EngagementID, "error", err.Error())
		return err
	}
	if err := h.statements.Save(ctx, res.Statement); err != nil {
		return err
	}
	return h.issues.SaveAll(ctx, payload.EngagementID, res.Issues)
}

func (h *handlers) handleValuationRun(ctx context.Context, t *asynq.Task) error {
	var payload ValuationRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	stmt, err := h.statements.Load(ctx, payload.EngagementID)
	if err != nil {
		return err
	}
	issues, err := h.issues.ListByEngagement(ctx, payload.EngagementID)
	if err != nil {
		return err
	}

	result, err := h.orch.RunValuation(ctx, pipeline.RunInput{
		RunID:        payload.RunID,
		Statement:    stmt,
		Issues:       issues,
		Assumptions:  payload.Assumptions,
		IndustryCode: payload.IndustryCode,
	})
	if err != nil {
		h.log.Error("valuation run failed", "run_id", payload.RunID, "error", err.Error())
		// Blocking issues and bad assumptions will not clear on retry;
		// anything else (a market data outage, the database) gets the
		// broker's backoff.
		if errors.Is(err, pipeline.ErrOpenBlockingIssues) || valuation.IsInvalidAssumptions(err) {
			return asynq.SkipRetry
		}
		return err
	}
	return h.runs.Save(ctx, payload.EngagementID, payload.Assumptions, result)
}
