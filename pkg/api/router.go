// Package api exposes the engagement workflow over HTTP: upload extracted
// financials, work the validation issue queue, launch valuation runs, and
// download the rendered artifacts.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	valapi "valuation_workbench/pkg/api/valuation"
	"valuation_workbench/pkg/api/validation"
)

// Deps carries the wired handlers.
type Deps struct {
	Valuation  *valapi.Handler
	Validation *validation.Handler
	Logger     *slog.Logger
}

// NewRouter builds the chi router with the standard middleware stack.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/engagements/{engagementID}", func(r chi.Router) {
			r.Post("/statements", d.Validation.UploadStatements)
			r.Get("/issues", d.Validation.ListIssues)
			r.Post("/issues/accept", d.Validation.AcceptIssue)
			r.Post("/issues/override", d.Validation.OverrideIssue)

			r.Post("/runs", d.Valuation.StartRun)
			r.Get("/runs", d.Valuation.ListRuns)
		})
		r.Route("/runs/{runID}", func(r chi.Router) {
			r.Get("/", d.Valuation.GetRun)
			r.Get("/workbook", d.Valuation.DownloadWorkbook)
			r.Get("/summary", d.Valuation.GetSummary)
		})
	})
	return r
}
