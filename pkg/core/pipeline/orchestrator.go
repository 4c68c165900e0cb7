// Package pipeline wires the valuation stages end to end:
// normalize -> validate -> market data -> WACC -> forecast -> DCF ->
// comparable methods -> weighted conclusion.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/rotisserie/eris"

	"valuation_workbench/pkg/config"
	"valuation_workbench/pkg/core/forecast"
	"valuation_workbench/pkg/core/normalize"
	"valuation_workbench/pkg/core/provider"
	"valuation_workbench/pkg/core/statement"
	"valuation_workbench/pkg/core/validate"
	"valuation_workbench/pkg/core/valuation"
)

// Orchestrator manages the end-to-end engagement flow. Engines stay pure;
// the orchestrator owns all I/O, timeouts, and failure policy.
type Orchestrator struct {
	normalizer *normalize.Normalizer
	validator  *validate.Engine
	market     provider.MarketDataProvider
	policy     *config.Policy
	log        *slog.Logger
}

// New wires an orchestrator from its dependencies. A nil logger falls back
// to slog.Default.
func New(n *normalize.Normalizer, v *validate.Engine, m provider.MarketDataProvider, p *config.Policy, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{normalizer: n, validator: v, market: m, policy: p, log: log}
}

// PrepareResult is the output of the ingestion half of the pipeline.
type PrepareResult struct {
	Statement *statement.NormalizedStatement
	Issues    []validate.Issue
}

// Prepare normalizes raw extracted line items and runs the validation rule
// catalog over the result. The returned issues carry both mapping warnings
// and rule findings, already in display order.
func (o *Orchestrator) Prepare(ctx context.Context, engagementID string, raw []normalize.RawLineItem) (*PrepareResult, error) {
	start := time.Now()
	res, err := o.normalizer.Normalize(ctx, engagementID, raw)
	if err != nil {
		return nil, eris.Wrap(err, "normalize statements")
	}

	issues := append(res.Issues, o.validator.Run(res.Statement)...)
	validate.Sort(issues)

	o.log.Info("prepared engagement",
		"engagement_id", engagementID,
		"periods", len(res.Statement.Periods),
		"issues", len(issues),
		"elapsed", time.Since(start))
	return &PrepareResult{Statement: res.Statement, Issues: issues}, nil
}

// RunInput carries everything a valuation run needs. RunID is assigned by
// the caller at enqueue time so retries of the same job stay idempotent.
type RunInput struct {
	RunID        string
	Statement    *statement.NormalizedStatement
	Issues       []validate.Issue
	Assumptions  valuation.Assumptions
	IndustryCode string
}

// ErrOpenBlockingIssues rejects a valuation run while error-severity
// findings are still open.
var ErrOpenBlockingIssues = eris.New("open blocking validation issues; accept or override them before valuing")

// RunValuation executes the valuation half of the pipeline. Individual
// method failures are recorded and their weight redistributed; the run
// itself fails only when no weighted method survives.
func (o *Orchestrator) RunValuation(ctx context.Context, in RunInput) (*valuation.ValuationResult, error) {
	if validate.HasBlocking(in.Issues) {
		return nil, ErrOpenBlockingIssues
	}
	in.Statement.Freeze()

	metrics, err := in.Statement.LatestMetrics()
	if err != nil {
		return nil, eris.Wrap(err, "extract valuation metrics")
	}

	result := &valuation.ValuationResult{
		RunID:        in.RunID,
		MethodErrors: map[string]string{},
		Weights:      o.policy.MethodWeights,
	}

	assumptions, err := o.fillMarketData(ctx, in.Assumptions, in.IndustryCode)
	if err != nil {
		return nil, eris.Wrap(err, "resolve market data inputs")
	}

	// Income approach.
	dcf := o.runDCF(ctx, result, assumptions, metrics)

	// Market approaches.
	subject := valuation.SubjectMetrics{
		Revenue:     metrics.Revenue,
		EBITDA:      metrics.EBITDA,
		NetIncome:   metrics.NetIncome,
		GrossProfit: metrics.GrossProfit,
		BookValue:   metrics.BookValue,
	}
	gpcm := o.runGPCM(ctx, result, subject, in.IndustryCode)
	gtm := o.runGTM(ctx, result, subject, in.IndustryCode)

	concluded, err := valuation.Conclude(o.policy.MethodWeights, dcf, gpcm, gtm, metrics.NetDebt)
	if err != nil {
		return nil, eris.Wrap(err, "conclude valuation")
	}
	result.Concluded = concluded

	o.log.Info("valuation run complete",
		"run_id", in.RunID,
		"enterprise_value", concluded.EnterpriseValue,
		"equity_value", concluded.EquityValue,
		"method_failures", len(result.MethodErrors))
	return result, nil
}

// fillMarketData resolves zero-valued capital-market assumptions from the
// provider. Explicit analyst inputs always win.
func (o *Orchestrator) fillMarketData(ctx context.Context, a valuation.Assumptions, industryCode string) (valuation.Assumptions, error) {
	if a.RiskFreeRate == 0 {
		rf, err := o.market.GetRiskFreeRate(ctx)
		if err != nil {
			return a, eris.Wrap(err, "risk-free rate")
		}
		a.RiskFreeRate = rf
	}
	if a.EquityRiskPremium == 0 {
		erp, err := o.market.GetEquityRiskPremium(ctx)
		if err != nil {
			return a, eris.Wrap(err, "equity risk premium")
		}
		a.EquityRiskPremium = erp
	}
	if a.Beta == 0 {
		beta, err := o.market.GetIndustryBeta(ctx, industryCode)
		if err != nil {
			return a, eris.Wrap(err, "industry beta")
		}
		a.Beta = beta
	}
	return a, nil
}

func (o *Orchestrator) runDCF(ctx context.Context, result *valuation.ValuationResult, a valuation.Assumptions, metrics statement.Metrics) *valuation.DCFResult {
	wacc, err := valuation.CalculateWACC(a)
	if err != nil {
		o.methodFailed(result, "dcf", err)
		return nil
	}
	result.WACC = &wacc

	model, err := o.policy.Forecast.New()
	if err != nil {
		o.methodFailed(result, "dcf", err)
		return nil
	}
	fcf, err := model.Forecast(forecast.Inputs{Base: metrics, Years: a.ForecastYears})
	if err != nil {
		o.methodFailed(result, "dcf", err)
		return nil
	}

	dcfIn := valuation.DCFInput{
		ForecastFCF:    fcf,
		WACC:           wacc.WACC,
		NetDebt:        metrics.NetDebt,
		TerminalMetric: metrics.EBITDA,
	}
	dcf, err := valuation.CalculateDCF(a, dcfIn)
	if err != nil {
		o.methodFailed(result, "dcf", err)
		return nil
	}

	sens := o.policy.Sensitivity
	if sens.Steps > 0 {
		dcf.Sensitivity = valuation.Sensitivity(a, dcfIn, sens.WACCDelta, sens.GrowthDelta, sens.Steps)
	}
	result.DCF = dcf
	return dcf
}

func (o *Orchestrator) runGPCM(ctx context.Context, result *valuation.ValuationResult, subject valuation.SubjectMetrics, industryCode string) *valuation.MethodResult {
	set, err := o.market.GetComparableCompanies(ctx, provider.Criteria{IndustryCode: industryCode})
	if err != nil {
		o.methodFailed(result, "gpcm", err)
		return nil
	}
	gpcm, err := valuation.CalculateGPCM(subject, set, o.policy.GPCM)
	if err != nil {
		o.methodFailed(result, "gpcm", err)
		return nil
	}
	result.GPCM = gpcm
	return gpcm
}

func (o *Orchestrator) runGTM(ctx context.Context, result *valuation.ValuationResult, subject valuation.SubjectMetrics, industryCode string) *valuation.MethodResult {
	cfg := o.policy.GTM
	cfg.SubjectSize = subject.Revenue
	set, err := o.market.GetTransactions(ctx, provider.Criteria{
		IndustryCode: industryCode,
		After:        cfg.WindowStart,
		Before:       cfg.WindowEnd,
	})
	if err != nil {
		o.methodFailed(result, "gtm", err)
		return nil
	}
	gtm, err := valuation.CalculateGTM(subject, set, cfg)
	if err != nil {
		o.methodFailed(result, "gtm", err)
		return nil
	}
	result.GTM = gtm
	return gtm
}

func (o *Orchestrator) methodFailed(result *valuation.ValuationResult, method string, err error) {
	result.MethodErrors[method] = err.Error()
	o.log.Warn("valuation method failed", "run_id", result.RunID, "method", method, "error", err.Error())
}
