package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuation_workbench/pkg/config"
	"valuation_workbench/pkg/core/forecast"
	"valuation_workbench/pkg/core/pipeline"
	"valuation_workbench/pkg/core/provider"
	"valuation_workbench/pkg/core/statement"
	"valuation_workbench/pkg/core/store"
	"valuation_workbench/pkg/core/validate"
	"valuation_workbench/pkg/core/valuation"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubProvider struct {
	err error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) GetComparableCompanies(ctx context.Context, c provider.Criteria) (valuation.ComparableSet, error) {
	return valuation.ComparableSet{Items: []valuation.Comparable{
		{EntityID: "A", Multiples: map[string]float64{"EV/EBITDA": 10}},
	}}, s.err
}

func (s *stubProvider) GetTransactions(ctx context.Context, c provider.Criteria) (valuation.ComparableSet, error) {
	return valuation.ComparableSet{Items: []valuation.Comparable{
		{EntityID: "T", Multiples: map[string]float64{"EV/EBITDA": 9}},
	}}, s.err
}

func (s *stubProvider) GetRiskFreeRate(ctx context.Context) (float64, error) { return 0.04, s.err }

func (s *stubProvider) GetEquityRiskPremium(ctx context.Context) (float64, error) {
	return 0.05, s.err
}

func (s *stubProvider) GetIndustryBeta(ctx context.Context, industryCode string) (float64, error) {
	return 1.1, s.err
}

type stubStatements struct {
	stmt *statement.NormalizedStatement
}

func (s *stubStatements) Save(ctx context.Context, stmt *statement.NormalizedStatement) error {
	s.stmt = stmt
	return nil
}

func (s *stubStatements) Load(ctx context.Context, engagementID string) (*statement.NormalizedStatement, error) {
	return s.stmt, nil
}

type stubIssues struct {
	issues []validate.Issue
}

func (s *stubIssues) SaveAll(ctx context.Context, engagementID string, issues []validate.Issue) error {
	s.issues = issues
	return nil
}

func (s *stubIssues) ListByEngagement(ctx context.Context, engagementID string) ([]validate.Issue, error) {
	return s.issues, nil
}

func (s *stubIssues) Update(ctx context.Context, engagementID string, issue validate.Issue) error {
	return nil
}

type stubRuns struct {
	saved int
}

func (s *stubRuns) Save(ctx context.Context, engagementID string, a valuation.Assumptions, result *valuation.ValuationResult) error {
	s.saved++
	return nil
}

func (s *stubRuns) Load(ctx context.Context, runID string) (*store.RunRecord, error) {
	return nil, errors.New("not found")
}

func (s *stubRuns) ListByEngagement(ctx context.Context, engagementID string) ([]store.RunRecord, error) {
	return nil, nil
}

func workerFixture(t *testing.T, market provider.MarketDataProvider, issues []validate.Issue) (*handlers, *stubRuns) {
	t.Helper()
	stmt := statement.New("ENG-001")
	p := stmt.EnsurePeriod(2025)
	for code, v := range map[string]float64{
		"REV_001": 1000, "OPINC_001": 200, "DA_001": 50, "NI_001": 100,
		"ASSET_TOT": 2000, "EQUITY_TOT": 600, "CF_CAPEX_001": 60,
	} {
		p.Set(code, decimal.NewFromFloat(v))
	}

	policy := &config.Policy{
		MethodWeights: valuation.MethodWeights{"dcf": 0.5, "gpcm": 0.3, "gtm": 0.2},
		GPCM:          valuation.GPCMConfig{Multiples: []string{"EV/EBITDA"}},
		GTM:           valuation.GTMConfig{Multiples: []string{"EV/EBITDA"}},
		Forecast: forecast.Policy{
			Model:  "growth",
			Growth: forecast.GrowthModel{Rate: 0.03, TaxRate: 0.25},
		},
	}
	runs := &stubRuns{}
	return &handlers{
		orch:       pipeline.New(nil, nil, market, policy, nil),
		statements: &stubStatements{stmt: stmt},
		issues:     &stubIssues{issues: issues},
		runs:       runs,
	}, runs
}

func runTask(t *testing.T) *asynq.Task {
	t.Helper()
	g := 0.02
	task, _, err := NewValuationRunTask("ENG-001", valuation.Assumptions{
		CostOfDebt:         0.06,
		TaxRate:            0.25,
		EquityWeight:       0.7,
		DebtWeight:         0.3,
		ForecastYears:      3,
		TerminalGrowthRate: &g,
	}, "software")
	require.NoError(t, err)
	return task
}

func TestHandleValuationRunSaves(t *testing.T) {
	h, runs := workerFixture(t, &stubProvider{}, nil)
	h.log = discardLogger()

	require.NoError(t, h.handleValuationRun(context.Background(), runTask(t)))
	assert.Equal(t, 1, runs.saved)
}

func TestHandleValuationRunBlockedSkipsRetry(t *testing.T) {
	h, runs := workerFixture(t, &stubProvider{}, []validate.Issue{
		{RuleID: "RECON_IDENTITY", Severity: validate.SeverityError, Status: validate.StatusOpen},
	})
	h.log = discardLogger()

	err := h.handleValuationRun(context.Background(), runTask(t))
	require.Error(t, err)
	// Retrying cannot clear an open reviewer gate.
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, 0, runs.saved)
}

func TestHandleValuationRunProviderOutageRetries(t *testing.T) {
	h, runs := workerFixture(t, &stubProvider{err: provider.ErrProviderUnavailable}, nil)
	h.log = discardLogger()

	err := h.handleValuationRun(context.Background(), runTask(t))
	require.Error(t, err)
	// Transient market data failures must reach the broker's backoff.
	assert.False(t, errors.Is(err, asynq.SkipRetry))
	assert.ErrorIs(t, err, provider.ErrProviderUnavailable)
	assert.Equal(t, 0, runs.saved)
}
