package valuation

// CostOfEquityComponents itemizes the CAPM build-up for audit display.
type CostOfEquityComponents struct {
	RiskFreeRate           float64 `json:"risk_free_rate"`
	BetaTimesERP           float64 `json:"beta_times_erp"`
	SizePremium            float64 `json:"size_premium"`
	CompanySpecificPremium float64 `json:"company_specific_premium"`
}

// WACCResult holds the blended discount rate and its build-up.
type WACCResult struct {
	CostOfEquity           float64                `json:"cost_of_equity"`
	CostOfEquityComponents CostOfEquityComponents `json:"cost_of_equity_components"`
	AfterTaxCostOfDebt     float64                `json:"after_tax_cost_of_debt"`
	WACC                   float64                `json:"wacc"`
	EquityWeight           float64                `json:"equity_weight"`
	DebtWeight             float64                `json:"debt_weight"`
}

// CalculateWACC computes the weighted average cost of capital.
//
//	Ke   = Rf + beta*ERP + size premium + company-specific premium
//	Kd'  = Kd * (1 - t)
//	WACC = We*Ke + Wd*Kd'
//
// Fails with InvalidAssumptions when the weights do not sum to 1 within
// tolerance or any weight is negative.
func CalculateWACC(a Assumptions) (WACCResult, error) {
	if err := a.Validate(); err != nil {
		return WACCResult{}, err
	}

	betaERP := a.Beta * a.EquityRiskPremium
	ke := a.RiskFreeRate + betaERP + a.SizePremium + a.CompanySpecificPremium
	kd := a.CostOfDebt * (1 - a.TaxRate)
	wacc := a.EquityWeight*ke + a.DebtWeight*kd

	return WACCResult{
		CostOfEquity: ke,
		CostOfEquityComponents: CostOfEquityComponents{
			RiskFreeRate:           a.RiskFreeRate,
			BetaTimesERP:           betaERP,
			SizePremium:            a.SizePremium,
			CompanySpecificPremium: a.CompanySpecificPremium,
		},
		AfterTaxCostOfDebt: kd,
		WACC:               wacc,
		EquityWeight:       a.EquityWeight,
		DebtWeight:         a.DebtWeight,
	}, nil
}

// LeverBeta relevers an asset beta with a capital structure (Hamada):
// BetaL = BetaU * (1 + (1-t)*(D/E)).
func LeverBeta(unleveredBeta, debtToEquity, taxRate float64) float64 {
	return unleveredBeta * (1 + (1-taxRate)*debtToEquity)
}

// UnleverBeta strips the capital structure from an equity beta:
// BetaU = BetaL / (1 + (1-t)*(D/E)). Used to normalize comparable betas
// before relevering with the subject's own structure.
func UnleverBeta(leveredBeta, debtToEquity, taxRate float64) float64 {
	return leveredBeta / (1 + (1-taxRate)*debtToEquity)
}
