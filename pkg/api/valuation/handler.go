// Package valuation serves the run lifecycle: start a run, poll its result,
// and download the workbook and summary artifacts.
package valuation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"valuation_workbench/pkg/config"
	"valuation_workbench/pkg/core/forecast"
	"valuation_workbench/pkg/core/statement"
	"valuation_workbench/pkg/core/store"
	val "valuation_workbench/pkg/core/valuation"
	"valuation_workbench/pkg/jobs"
	"valuation_workbench/pkg/report"
)

// Handler owns the valuation run endpoints.
type Handler struct {
	queue      *asynq.Client
	runs       store.RunRepository
	statements store.StatementRepository
	issues     store.IssueRepository
	policy     *config.Policy
	validate   *validator.Validate
	log        *slog.Logger
}

func NewHandler(queue *asynq.Client, runs store.RunRepository, statements store.StatementRepository, issues store.IssueRepository, policy *config.Policy, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		queue:      queue,
		runs:       runs,
		statements: statements,
		issues:     issues,
		policy:     policy,
		validate:   validator.New(),
		log:        log,
	}
}

type startRunRequest struct {
	Assumptions  val.Assumptions `json:"assumptions" validate:"required"`
	IndustryCode string          `json:"industry_code" validate:"required"`
}

// StartRun validates the assumptions and enqueues the valuation job. The
// run ID is minted here and returned immediately for polling.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	engagementID := chi.URLParam(r, "engagementID")

	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	// Structural assumption checks fail fast, before the queue.
	if err := req.Assumptions.Validate(); err != nil {
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	task, runID, err := jobs.NewValuationRunTask(engagementID, req.Assumptions, req.IndustryCode)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := h.queue.EnqueueContext(r.Context(), task); err != nil {
		httpError(w, http.StatusServiceUnavailable, "enqueue failed: "+err.Error())
		return
	}

	h.log.Info("valuation run queued", "engagement_id", engagementID, "run_id", runID)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "queued"})
}

// GetRun returns the stored run, or 404 while it is still in flight.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	rec, err := h.runs.Load(r.Context(), runID)
	if err != nil {
		httpError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListRuns returns the engagement's run history, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	engagementID := chi.URLParam(r, "engagementID")
	recs, err := h.runs.ListByEngagement(r.Context(), engagementID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// DownloadWorkbook streams the formula-linked workbook for a stored run.
func (h *Handler) DownloadWorkbook(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	rec, err := h.runs.Load(r.Context(), runID)
	if err != nil {
		httpError(w, http.StatusNotFound, err.Error())
		return
	}
	stmt, err := h.statements.Load(r.Context(), rec.EngagementID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	fcf, err := h.rebuildForecast(rec, stmt)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	f, err := report.BuildWorkbook(report.WorkbookInput{
		EngagementID: rec.EngagementID,
		CompanyName:  rec.EngagementID,
		Statement:    stmt,
		Assumptions:  rec.Assumptions,
		ForecastFCF:  fcf,
		Result:       rec.Result,
	})
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=valuation_%s.xlsx", runID))
	if err := f.Write(w); err != nil {
		h.log.Error("workbook stream failed", "run_id", runID, "error", err.Error())
	}
}

// GetSummary renders the HTML run summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	rec, err := h.runs.Load(r.Context(), runID)
	if err != nil {
		httpError(w, http.StatusNotFound, err.Error())
		return
	}
	issues, err := h.issues.ListByEngagement(r.Context(), rec.EngagementID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	html, err := report.RenderSummaryHTML(report.SummaryInput{
		EngagementID: rec.EngagementID,
		CompanyName:  rec.EngagementID,
		Result:       rec.Result,
		Issues:       issues,
	})
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

// rebuildForecast replays the policy forecast model against the stored
// statement so workbook cash flows match the run. Engines are deterministic,
// so the replay reproduces the run's series exactly.
func (h *Handler) rebuildForecast(rec *store.RunRecord, stmt *statement.NormalizedStatement) ([]float64, error) {
	if rec.Result == nil || rec.Result.DCF == nil {
		return nil, nil
	}
	model, err := h.policy.Forecast.New()
	if err != nil {
		return nil, err
	}
	metrics, err := stmt.LatestMetrics()
	if err != nil {
		return nil, err
	}
	return model.Forecast(forecast.Inputs{Base: metrics, Years: rec.Assumptions.ForecastYears})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
