package valuation

import (
	"fmt"
	"math"
)

// TerminalMethod names how the terminal value was computed.
type TerminalMethod string

const (
	TerminalGordonGrowth TerminalMethod = "gordon_growth"
	TerminalExitMultiple TerminalMethod = "exit_multiple"
)

// DCFInput bundles what the DCF engine needs beyond the assumptions: the
// forecast FCF series from a pluggable model, the discount rate, and the
// subject's balance-sheet anchors.
type DCFInput struct {
	ForecastFCF []float64 // one entry per forecast year, year 1 first
	WACC        float64
	NetDebt     float64
	// TerminalMetric is the terminal-year metric (typically EBITDA) the
	// exit-multiple method capitalizes. Ignored under Gordon growth.
	TerminalMetric float64
}

// DCFResult is the immutable output of one DCF execution.
type DCFResult struct {
	EnterpriseValue float64        `json:"enterprise_value"`
	EquityValue     float64        `json:"equity_value"`
	PVForecastFCF   float64        `json:"pv_forecast_fcf"`
	PVTerminalValue float64        `json:"pv_terminal_value"`
	TerminalValue   float64        `json:"terminal_value"`
	TerminalMethod  TerminalMethod `json:"terminal_value_method"`

	// Per-year detail for the workbook: discount exponents, factors, PVs.
	Exponents       []float64 `json:"discount_exponents"`
	DiscountFactors []float64 `json:"discount_factors"`
	PVByYear        []float64 `json:"pv_by_year"`

	// Optional side table, attached after the base run.
	Sensitivity *SensitivityGrid `json:"sensitivity,omitempty"`
}

// CalculateDCF discounts the forecast series and a terminal value at WACC.
//
// Terminal value precedence: when both a terminal growth rate and an exit
// multiple are supplied, the Gordon-growth method wins and the exit multiple
// is ignored; TerminalMethod on the result records which path ran. Gordon
// growth requires WACC > g.
//
// Under the mid-year convention cash flows discount at exponent t-0.5; the
// terminal value discounts at the same exponent as the final forecast year.
func CalculateDCF(a Assumptions, in DCFInput) (*DCFResult, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if len(in.ForecastFCF) == 0 {
		return nil, invalidAssumptions("forecast produced no cash flows")
	}
	if in.WACC <= 0 {
		return nil, invalidAssumptions(fmt.Sprintf("WACC %.4f must be positive", in.WACC))
	}

	n := len(in.ForecastFCF)
	res := &DCFResult{
		Exponents:       make([]float64, n),
		DiscountFactors: make([]float64, n),
		PVByYear:        make([]float64, n),
	}

	for i, fcf := range in.ForecastFCF {
		t := float64(i + 1)
		if a.MidYearConvention {
			t -= 0.5
		}
		df := math.Pow(1+in.WACC, -t)
		res.Exponents[i] = t
		res.DiscountFactors[i] = df
		res.PVByYear[i] = fcf * df
		res.PVForecastFCF += res.PVByYear[i]
	}

	// Terminal value.
	switch {
	case a.TerminalGrowthRate != nil:
		g := *a.TerminalGrowthRate
		if in.WACC <= g {
			return nil, invalidAssumptions(fmt.Sprintf(
				"WACC %.4f must exceed terminal growth %.4f for the Gordon growth model", in.WACC, g))
		}
		finalFCF := in.ForecastFCF[n-1]
		res.TerminalValue = finalFCF * (1 + g) / (in.WACC - g)
		res.TerminalMethod = TerminalGordonGrowth
	case a.ExitMultiple != nil:
		res.TerminalValue = in.TerminalMetric * *a.ExitMultiple
		res.TerminalMethod = TerminalExitMultiple
	default:
		return nil, invalidAssumptions("either a terminal growth rate or an exit multiple is required")
	}

	res.PVTerminalValue = res.TerminalValue * res.DiscountFactors[n-1]
	res.EnterpriseValue = res.PVForecastFCF + res.PVTerminalValue
	res.EquityValue = res.EnterpriseValue - in.NetDebt
	return res, nil
}

// SensitivityGrid is the EV side-table across (WACC, terminal growth)
// perturbations. A nil cell marks an invalid combination (WACC <= g). The
// grid never mutates the base result; it is recomputed from scratch per cell.
type SensitivityGrid struct {
	WACCSteps   []float64    `json:"wacc_steps"`
	GrowthSteps []float64    `json:"growth_steps"`
	EV          [][]*float64 `json:"enterprise_values"` // [wacc][growth]
}

// Sensitivity recomputes enterprise value across a symmetric grid of
// WACC +/- delta and terminal growth +/- delta, with `steps` points each side
// of the base. Only meaningful under Gordon growth; for an exit-multiple run
// the growth axis degenerates and the function returns nil.
func Sensitivity(a Assumptions, in DCFInput, waccDelta, growthDelta float64, steps int) *SensitivityGrid {
	if a.TerminalGrowthRate == nil || steps < 1 {
		return nil
	}
	baseG := *a.TerminalGrowthRate

	grid := &SensitivityGrid{}
	for i := -steps; i <= steps; i++ {
		grid.WACCSteps = append(grid.WACCSteps, in.WACC+float64(i)*waccDelta)
		grid.GrowthSteps = append(grid.GrowthSteps, baseG+float64(i)*growthDelta)
	}

	grid.EV = make([][]*float64, len(grid.WACCSteps))
	for wi, w := range grid.WACCSteps {
		grid.EV[wi] = make([]*float64, len(grid.GrowthSteps))
		for gi, g := range grid.GrowthSteps {
			if w <= g || w <= 0 {
				continue // invalid cell stays nil
			}
			cellA := a
			gCopy := g
			cellA.TerminalGrowthRate = &gCopy
			cellIn := in
			cellIn.WACC = w
			res, err := CalculateDCF(cellA, cellIn)
			if err != nil {
				continue
			}
			ev := res.EnterpriseValue
			grid.EV[wi][gi] = &ev
		}
	}
	return grid
}
