package valuation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

func baseAssumptions() Assumptions {
	return Assumptions{
		RiskFreeRate:       0.04,
		EquityRiskPremium:  0.05,
		Beta:               1.2,
		SizePremium:        0.0,
		CostOfDebt:         0.06,
		TaxRate:            0.25,
		EquityWeight:       0.7,
		DebtWeight:         0.3,
		ForecastYears:      5,
		TerminalGrowthRate: fp(0.02),
	}
}

func TestCalculateWACC(t *testing.T) {
	res, err := CalculateWACC(baseAssumptions())
	require.NoError(t, err)

	// Ke = 0.04 + 1.2*0.05 = 0.10; Kd' = 0.06*0.75 = 0.045
	assert.InDelta(t, 0.10, res.CostOfEquity, 1e-9)
	assert.InDelta(t, 0.045, res.AfterTaxCostOfDebt, 1e-9)
	// WACC = 0.7*0.10 + 0.3*0.045 = 0.0835
	assert.InDelta(t, 0.0835, res.WACC, 1e-9)
	assert.InDelta(t, 0.06, res.CostOfEquityComponents.BetaTimesERP, 1e-9)
}

func TestCalculateWACCWithPremiums(t *testing.T) {
	a := baseAssumptions()
	a.SizePremium = 0.03
	a.CompanySpecificPremium = 0.02

	res, err := CalculateWACC(a)
	require.NoError(t, err)
	assert.InDelta(t, 0.15, res.CostOfEquity, 1e-9)
}

func TestCalculateWACCRejectsBadWeights(t *testing.T) {
	cases := []struct {
		name         string
		debt, equity float64
	}{
		{"sum below one", 0.2, 0.7},
		{"sum above one", 0.5, 0.6},
		{"negative debt weight", -0.1, 1.1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := baseAssumptions()
			a.DebtWeight = tc.debt
			a.EquityWeight = tc.equity
			_, err := CalculateWACC(a)
			require.Error(t, err)
			assert.True(t, IsInvalidAssumptions(err))
		})
	}
}

func TestWACCWeightsWithinTolerance(t *testing.T) {
	a := baseAssumptions()
	a.DebtWeight = 0.3
	a.EquityWeight = 0.705 // sum 1.005, inside the 1% band
	_, err := CalculateWACC(a)
	assert.NoError(t, err)
}

func TestHamadaRoundTrip(t *testing.T) {
	levered := LeverBeta(0.9, 0.5, 0.25)
	assert.InDelta(t, 0.9*(1+0.75*0.5), levered, 1e-9)
	assert.InDelta(t, 0.9, UnleverBeta(levered, 0.5, 0.25), 1e-9)
}
