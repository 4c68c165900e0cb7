package valuation

import "fmt"

// WeightTolerance bounds how far debt+equity weights may drift from 1.0
// before the assumptions are rejected.
const WeightTolerance = 0.01

// Assumptions is the full input set for a valuation run. Rates are decimals
// (0.045 = 4.5%). Exactly one terminal-value input should be populated; when
// both are set the Gordon-growth method takes precedence (see CalculateDCF).
type Assumptions struct {
	RiskFreeRate           float64 `json:"risk_free_rate" validate:"gte=0"`
	EquityRiskPremium      float64 `json:"equity_risk_premium" validate:"gte=0"`
	Beta                   float64 `json:"beta"`
	SizePremium            float64 `json:"size_premium"`
	CompanySpecificPremium float64 `json:"company_specific_premium"`
	CostOfDebt             float64 `json:"cost_of_debt" validate:"gte=0"`
	TaxRate                float64 `json:"tax_rate" validate:"gte=0,lt=1"`
	DebtWeight             float64 `json:"debt_weight"`
	EquityWeight           float64 `json:"equity_weight"`

	TerminalGrowthRate *float64 `json:"terminal_growth_rate,omitempty"`
	ExitMultiple       *float64 `json:"exit_multiple,omitempty"`
	ForecastYears      int      `json:"forecast_years" validate:"gte=1,lte=20"`
	MidYearConvention  bool     `json:"mid_year_convention"`
}

// Validate applies the structural checks shared by every engine: weights
// must be non-negative and sum to 1 within tolerance, and there must be a
// forecast horizon. Engines add their own checks (e.g. WACC > g in the DCF).
func (a Assumptions) Validate() error {
	var reasons []string
	if a.DebtWeight < 0 {
		reasons = append(reasons, fmt.Sprintf("debt weight %.4f is negative", a.DebtWeight))
	}
	if a.EquityWeight < 0 {
		reasons = append(reasons, fmt.Sprintf("equity weight %.4f is negative", a.EquityWeight))
	}
	if sum := a.DebtWeight + a.EquityWeight; sum < 1-WeightTolerance || sum > 1+WeightTolerance {
		reasons = append(reasons, fmt.Sprintf("debt and equity weights sum to %.4f, expected 1.0", sum))
	}
	if a.ForecastYears < 1 {
		reasons = append(reasons, "forecast horizon must be at least one year")
	}
	if a.TaxRate < 0 || a.TaxRate >= 1 {
		reasons = append(reasons, fmt.Sprintf("tax rate %.4f is outside [0, 1)", a.TaxRate))
	}
	if len(reasons) > 0 {
		return invalidAssumptions(reasons...)
	}
	return nil
}
