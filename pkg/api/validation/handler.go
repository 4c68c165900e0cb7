// Package validation serves the issue-review workflow: upload raw
// statements for normalization, then work the resulting issue queue until
// nothing blocking remains open.
package validation

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"valuation_workbench/pkg/core/normalize"
	"valuation_workbench/pkg/core/store"
	"valuation_workbench/pkg/core/validate"
	"valuation_workbench/pkg/jobs"
)

// Handler owns the validation endpoints.
type Handler struct {
	queue      *asynq.Client
	issues     store.IssueRepository
	statements store.StatementRepository
	validate   *validator.Validate
	log        *slog.Logger
}

func NewHandler(queue *asynq.Client, issues store.IssueRepository, statements store.StatementRepository, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		queue:      queue,
		issues:     issues,
		statements: statements,
		validate:   validator.New(),
		log:        log,
	}
}

type uploadRequest struct {
	Items []normalize.RawLineItem `json:"items" validate:"required,min=1,dive"`
}

// UploadStatements accepts the extracted line items and queues the
// normalization job.
func (h *Handler) UploadStatements(w http.ResponseWriter, r *http.Request) {
	engagementID := chi.URLParam(r, "engagementID")

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	task, err := jobs.NewPrepareTask(jobs.PreparePayload{
		EngagementID: engagementID,
		Items:        req.Items,
	})
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := h.queue.EnqueueContext(r.Context(), task); err != nil {
		httpError(w, http.StatusServiceUnavailable, "enqueue failed: "+err.Error())
		return
	}

	h.log.Info("statements queued", "engagement_id", engagementID, "items", len(req.Items))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// ListIssues returns the engagement's issue log in display order.
func (h *Handler) ListIssues(w http.ResponseWriter, r *http.Request) {
	engagementID := chi.URLParam(r, "engagementID")
	issues, err := h.issues.ListByEngagement(r.Context(), engagementID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

type issueRef struct {
	RuleID     string `json:"rule_id" validate:"required"`
	Code       string `json:"canonical_code"`
	FiscalYear int    `json:"fiscal_year"`
}

type acceptRequest struct {
	issueRef
}

// AcceptIssue marks an open issue as reviewed and accepted.
func (h *Handler) AcceptIssue(w http.ResponseWriter, r *http.Request) {
	engagementID := chi.URLParam(r, "engagementID")

	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	issue, ok, err := h.findIssue(r, engagementID, req.issueRef)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		httpError(w, http.StatusNotFound, "issue not found")
		return
	}
	if err := issue.Accept(); err != nil {
		httpError(w, http.StatusConflict, err.Error())
		return
	}
	if err := h.issues.Update(r.Context(), engagementID, issue); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

type overrideRequest struct {
	issueRef
	Value decimal.Decimal `json:"value" validate:"required"`
	Note  string          `json:"note" validate:"required"`
}

// OverrideIssue records a replacement value with a mandatory note.
func (h *Handler) OverrideIssue(w http.ResponseWriter, r *http.Request) {
	engagementID := chi.URLParam(r, "engagementID")

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	issue, ok, err := h.findIssue(r, engagementID, req.issueRef)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		httpError(w, http.StatusNotFound, "issue not found")
		return
	}
	if err := issue.Override(&req.Value, req.Note); err != nil {
		httpError(w, http.StatusConflict, err.Error())
		return
	}

	// The override is only complete once the replacement value is on the
	// statement itself; the next run must value the corrected figure.
	if issue.Code != "" && issue.FiscalYear != 0 {
		stmt, err := h.statements.Load(r.Context(), engagementID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := stmt.ApplyCorrection(issue.FiscalYear, issue.Code, req.Value); err != nil {
			httpError(w, http.StatusConflict, err.Error())
			return
		}
		if err := h.statements.Save(r.Context(), stmt); err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	if err := h.issues.Update(r.Context(), engagementID, issue); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.log.Info("issue overridden",
		"engagement_id", engagementID,
		"rule_id", issue.RuleID,
		"code", issue.Code,
		"fiscal_year", issue.FiscalYear)
	writeJSON(w, http.StatusOK, issue)
}

func (h *Handler) findIssue(r *http.Request, engagementID string, ref issueRef) (validate.Issue, bool, error) {
	issues, err := h.issues.ListByEngagement(r.Context(), engagementID)
	if err != nil {
		return validate.Issue{}, false, err
	}
	for _, issue := range issues {
		if issue.RuleID == ref.RuleID && issue.Code == ref.Code && issue.FiscalYear == ref.FiscalYear {
			return issue, true, nil
		}
	}
	return validate.Issue{}, false, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
