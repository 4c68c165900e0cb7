package pipeline

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuation_workbench/pkg/config"
	"valuation_workbench/pkg/core/coa"
	"valuation_workbench/pkg/core/forecast"
	"valuation_workbench/pkg/core/normalize"
	"valuation_workbench/pkg/core/provider"
	"valuation_workbench/pkg/core/statement"
	"valuation_workbench/pkg/core/validate"
	"valuation_workbench/pkg/core/valuation"
)

// fakeProvider serves canned market data, with per-call error injection.
type fakeProvider struct {
	comps     valuation.ComparableSet
	deals     valuation.ComparableSet
	compsErr  error
	dealsErr  error
	ratesErr  error
	betaCalls []string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) GetComparableCompanies(ctx context.Context, c provider.Criteria) (valuation.ComparableSet, error) {
	return f.comps, f.compsErr
}

func (f *fakeProvider) GetTransactions(ctx context.Context, c provider.Criteria) (valuation.ComparableSet, error) {
	return f.deals, f.dealsErr
}

func (f *fakeProvider) GetRiskFreeRate(ctx context.Context) (float64, error) {
	return 0.04, f.ratesErr
}

func (f *fakeProvider) GetEquityRiskPremium(ctx context.Context) (float64, error) {
	return 0.05, f.ratesErr
}

func (f *fakeProvider) GetIndustryBeta(ctx context.Context, industryCode string) (float64, error) {
	f.betaCalls = append(f.betaCalls, industryCode)
	return 1.2, f.ratesErr
}

func testProvider() *fakeProvider {
	return &fakeProvider{
		comps: valuation.ComparableSet{
			Kind: valuation.KindPublicCompany,
			Items: []valuation.Comparable{
				{EntityID: "A", Multiples: map[string]float64{"EV/EBITDA": 8}},
				{EntityID: "B", Multiples: map[string]float64{"EV/EBITDA": 10}},
				{EntityID: "C", Multiples: map[string]float64{"EV/EBITDA": 12}},
			},
		},
		deals: valuation.ComparableSet{
			Kind: valuation.KindTransaction,
			Items: []valuation.Comparable{
				{EntityID: "T1", Multiples: map[string]float64{"EV/EBITDA": 9}},
			},
		},
	}
}

func testPolicy() *config.Policy {
	return &config.Policy{
		MethodWeights: valuation.MethodWeights{"dcf": 0.5, "gpcm": 0.3, "gtm": 0.2},
		GPCM:          valuation.GPCMConfig{Multiples: []string{"EV/EBITDA"}},
		GTM:           valuation.GTMConfig{Multiples: []string{"EV/EBITDA"}, ControlPremium: 0.10},
		Forecast: forecast.Policy{
			Model:  "growth",
			Growth: forecast.GrowthModel{Rate: 0.03, TaxRate: 0.25},
		},
		Sensitivity: config.SensitivityPolicy{WACCDelta: 0.01, GrowthDelta: 0.005, Steps: 1},
	}
}

func testStatement(t *testing.T) *statement.NormalizedStatement {
	t.Helper()
	stmt := statement.New("ENG-001")
	p := stmt.EnsurePeriod(2025)
	for code, v := range map[string]float64{
		"REV_001":        1000,
		"GP_001":         400,
		"OPINC_001":      200,
		"DA_001":         50,
		"NI_001":         100,
		"ASSET_TOT":      2000,
		"ASSET_CURR_001": 300,
		"LIAB_CURR_003":  200,
		"LIAB_LT_001":    400,
		"EQUITY_TOT":     600,
		"CF_CAPEX_001":   60,
	} {
		p.Set(code, decimal.NewFromFloat(v))
	}
	return stmt
}

func testAssumptions() valuation.Assumptions {
	g := 0.02
	return valuation.Assumptions{
		CostOfDebt:         0.06,
		TaxRate:            0.25,
		EquityWeight:       0.7,
		DebtWeight:         0.3,
		ForecastYears:      3,
		TerminalGrowthRate: &g,
	}
}

func newTestOrchestrator(p provider.MarketDataProvider) *Orchestrator {
	return New(nil, nil, p, testPolicy(), nil)
}

func TestRunValuationHappyPath(t *testing.T) {
	market := testProvider()
	orch := newTestOrchestrator(market)
	stmt := testStatement(t)

	res, err := orch.RunValuation(context.Background(), RunInput{
		RunID:        "run-1",
		Statement:    stmt,
		Assumptions:  testAssumptions(),
		IndustryCode: "software",
	})
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.True(t, stmt.Frozen())
	assert.Empty(t, res.MethodErrors)

	// Zero-valued capital-market inputs came from the provider.
	require.NotNil(t, res.WACC)
	assert.InDelta(t, 0.04+1.2*0.05, res.WACC.CostOfEquity, 1e-9)
	assert.InDelta(t, 0.0835, res.WACC.WACC, 1e-9)
	assert.Equal(t, []string{"software"}, market.betaCalls)

	require.NotNil(t, res.DCF)
	require.NotNil(t, res.DCF.Sensitivity)
	require.NotNil(t, res.GPCM)
	// EBITDA 250 at median multiple 10.
	assert.InDelta(t, 2500, res.GPCM.EVMedian, 1e-9)
	require.NotNil(t, res.GTM)
	assert.InDelta(t, 250*9*1.10, res.GTM.EVMedian, 1e-9)

	require.NotNil(t, res.Concluded)
	assert.InDelta(t, 1.0,
		res.Concluded.EffectiveWeights["dcf"]+
			res.Concluded.EffectiveWeights["gpcm"]+
			res.Concluded.EffectiveWeights["gtm"], 1e-9)
	// NetDebt 300 bridges EV to equity.
	assert.InDelta(t, res.Concluded.EnterpriseValue-300, res.Concluded.EquityValue, 1e-9)
}

func TestRunValuationBlockedByOpenErrors(t *testing.T) {
	orch := newTestOrchestrator(testProvider())
	stmt := testStatement(t)

	_, err := orch.RunValuation(context.Background(), RunInput{
		RunID:     "run-2",
		Statement: stmt,
		Issues: []validate.Issue{
			{RuleID: "RECON_IDENTITY", Severity: validate.SeverityError, Status: validate.StatusOpen},
		},
		Assumptions: testAssumptions(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOpenBlockingIssues)
	assert.False(t, stmt.Frozen())
}

func TestRunValuationAcceptedErrorsDoNotBlock(t *testing.T) {
	orch := newTestOrchestrator(testProvider())

	res, err := orch.RunValuation(context.Background(), RunInput{
		RunID:     "run-3",
		Statement: testStatement(t),
		Issues: []validate.Issue{
			{RuleID: "RECON_IDENTITY", Severity: validate.SeverityError, Status: validate.StatusAccepted},
			{RuleID: "MARGIN_RANGE", Severity: validate.SeverityWarning, Status: validate.StatusOpen},
		},
		Assumptions: testAssumptions(),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Concluded)
}

func TestRunValuationRedistributesOnProviderFailure(t *testing.T) {
	market := testProvider()
	market.compsErr = provider.ErrProviderUnavailable
	market.dealsErr = provider.ErrProviderUnavailable
	orch := newTestOrchestrator(market)

	res, err := orch.RunValuation(context.Background(), RunInput{
		RunID:       "run-4",
		Statement:   testStatement(t),
		Assumptions: testAssumptions(),
	})
	require.NoError(t, err)

	assert.Contains(t, res.MethodErrors, "gpcm")
	assert.Contains(t, res.MethodErrors, "gtm")
	assert.Nil(t, res.GPCM)
	assert.Nil(t, res.GTM)
	require.NotNil(t, res.Concluded)
	assert.InDelta(t, 1.0, res.Concluded.EffectiveWeights["dcf"], 1e-9)
	assert.InDelta(t, res.DCF.EnterpriseValue, res.Concluded.EnterpriseValue, 1e-9)
}

func TestRunValuationFailsWhenNoMethodSurvives(t *testing.T) {
	market := testProvider()
	market.compsErr = provider.ErrProviderUnavailable
	market.dealsErr = provider.ErrProviderUnavailable
	orch := newTestOrchestrator(market)

	// An impossible horizon sinks the DCF as well.
	a := testAssumptions()
	a.ForecastYears = 0

	_, err := orch.RunValuation(context.Background(), RunInput{
		RunID:       "run-5",
		Statement:   testStatement(t),
		Assumptions: a,
	})
	require.Error(t, err)
}

func TestRunValuationEmptyStatement(t *testing.T) {
	orch := newTestOrchestrator(testProvider())
	_, err := orch.RunValuation(context.Background(), RunInput{
		RunID:       "run-6",
		Statement:   statement.New("ENG-EMPTY"),
		Assumptions: testAssumptions(),
	})
	require.Error(t, err)
}

func TestPrepareNormalizesAndValidates(t *testing.T) {
	reg, err := coa.LoadFile("../../../resources/canonical_coa.hjson")
	require.NoError(t, err)
	norm, err := normalize.New(reg, nil, normalize.Config{
		MaterialityAbs: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	orch := New(norm, validate.NewEngine(validate.Config{
		MarginLow:     0.0,
		MarginHigh:    1.0,
		SwingMultiple: 3.0,
	}), testProvider(), testPolicy(), nil)

	d := func(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
	res, err := orch.Prepare(context.Background(), "ENG-001", []normalize.RawLineItem{
		{Label: "Total Revenue", FiscalYear: 2025, Value: d(1000), Statement: coa.StatementIncome},
		{Label: "Cost of Sales", FiscalYear: 2025, Value: d(600), Statement: coa.StatementIncome},
		{Label: "Mystery Accrual", FiscalYear: 2025, Value: d(5), Statement: coa.StatementIncome},
	})
	require.NoError(t, err)

	p := res.Statement.Period(2025)
	require.NotNil(t, p)
	v, ok := p.Value("REV_001")
	require.True(t, ok)
	assert.True(t, v.Equal(d(1000)))
	// Subtotal recomputed from mapped inputs.
	gp, ok := p.Value("GP_001")
	require.True(t, ok)
	assert.True(t, gp.Equal(d(400)))

	// Mapping warnings and rule findings arrive merged and ordered.
	require.NotEmpty(t, res.Issues)
	for i := 1; i < len(res.Issues); i++ {
		cur, prev := res.Issues[i], res.Issues[i-1]
		if prev.Severity == cur.Severity {
			continue
		}
		assert.NotEqual(t, validate.SeverityError, cur.Severity,
			"errors must sort before %s", prev.Severity)
	}
	var sawUnmapped bool
	for _, is := range res.Issues {
		if is.RuleID == "MAPPING_AMBIGUOUS" {
			sawUnmapped = true
		}
	}
	assert.True(t, sawUnmapped)
	require.Len(t, res.Statement.Unmapped, 1)
	assert.Equal(t, "Mystery Accrual", res.Statement.Unmapped[0].Label)
}
