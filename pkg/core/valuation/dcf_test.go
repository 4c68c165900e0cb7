package valuation

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dcfInput() DCFInput {
	return DCFInput{
		ForecastFCF:    []float64{100, 110, 120},
		WACC:           0.10,
		NetDebt:        200,
		TerminalMetric: 150,
	}
}

func TestCalculateDCFGordonGrowth(t *testing.T) {
	a := baseAssumptions()
	a.TerminalGrowthRate = fp(0.03)
	in := dcfInput()

	res, err := CalculateDCF(a, in)
	require.NoError(t, err)
	assert.Equal(t, TerminalGordonGrowth, res.TerminalMethod)

	// TV = 120 * 1.03 / (0.10 - 0.03) = 1765.714...
	assert.InDelta(t, 120*1.03/0.07, res.TerminalValue, 1e-6)

	wantPV := 100/1.1 + 110/math.Pow(1.1, 2) + 120/math.Pow(1.1, 3)
	assert.InDelta(t, wantPV, res.PVForecastFCF, 1e-9)
	assert.InDelta(t, res.TerminalValue/math.Pow(1.1, 3), res.PVTerminalValue, 1e-9)
	assert.InDelta(t, res.PVForecastFCF+res.PVTerminalValue, res.EnterpriseValue, 1e-9)
	assert.InDelta(t, res.EnterpriseValue-200, res.EquityValue, 1e-9)
}

func TestCalculateDCFMidYearConvention(t *testing.T) {
	a := baseAssumptions()
	a.MidYearConvention = true

	res, err := CalculateDCF(a, dcfInput())
	require.NoError(t, err)

	assert.Equal(t, []float64{0.5, 1.5, 2.5}, res.Exponents)
	assert.InDelta(t, 100/math.Pow(1.1, 0.5), res.PVByYear[0], 1e-9)
	// Terminal value discounts at the final-year exponent.
	assert.InDelta(t, res.TerminalValue/math.Pow(1.1, 2.5), res.PVTerminalValue, 1e-9)
}

func TestCalculateDCFExitMultiple(t *testing.T) {
	a := baseAssumptions()
	a.TerminalGrowthRate = nil
	a.ExitMultiple = fp(8)

	res, err := CalculateDCF(a, dcfInput())
	require.NoError(t, err)
	assert.Equal(t, TerminalExitMultiple, res.TerminalMethod)
	assert.InDelta(t, 1200, res.TerminalValue, 1e-9) // 150 * 8
}

func TestCalculateDCFGrowthPrecedence(t *testing.T) {
	a := baseAssumptions()
	a.TerminalGrowthRate = fp(0.02)
	a.ExitMultiple = fp(8)

	res, err := CalculateDCF(a, dcfInput())
	require.NoError(t, err)
	assert.Equal(t, TerminalGordonGrowth, res.TerminalMethod,
		"growth rate wins when both terminal inputs are set")
}

func TestCalculateDCFFailures(t *testing.T) {
	t.Run("WACC not above growth", func(t *testing.T) {
		a := baseAssumptions()
		a.TerminalGrowthRate = fp(0.12)
		_, err := CalculateDCF(a, dcfInput())
		require.Error(t, err)
		assert.True(t, IsInvalidAssumptions(err))
	})

	t.Run("no terminal input", func(t *testing.T) {
		a := baseAssumptions()
		a.TerminalGrowthRate = nil
		_, err := CalculateDCF(a, dcfInput())
		require.Error(t, err)
		assert.True(t, IsInvalidAssumptions(err))
	})

	t.Run("empty forecast", func(t *testing.T) {
		in := dcfInput()
		in.ForecastFCF = nil
		_, err := CalculateDCF(baseAssumptions(), in)
		assert.True(t, IsInvalidAssumptions(err))
	})

	t.Run("non-positive WACC", func(t *testing.T) {
		in := dcfInput()
		in.WACC = 0
		_, err := CalculateDCF(baseAssumptions(), in)
		assert.True(t, IsInvalidAssumptions(err))
	})
}

func TestSensitivityGrid(t *testing.T) {
	a := baseAssumptions()
	a.TerminalGrowthRate = fp(0.02)
	in := dcfInput()

	base, err := CalculateDCF(a, in)
	require.NoError(t, err)

	grid := Sensitivity(a, in, 0.01, 0.01, 2)
	require.NotNil(t, grid)
	require.Len(t, grid.WACCSteps, 5)
	require.Len(t, grid.GrowthSteps, 5)

	// Center cell equals the base run.
	center := grid.EV[2][2]
	require.NotNil(t, center)
	assert.InDelta(t, base.EnterpriseValue, *center, 1e-9)

	// EV decreases as WACC rises with growth fixed.
	lowWACC, highWACC := grid.EV[0][2], grid.EV[4][2]
	require.NotNil(t, lowWACC)
	require.NotNil(t, highWACC)
	assert.Greater(t, *lowWACC, *highWACC)

	// Base result is untouched by grid computation.
	again, err := CalculateDCF(a, in)
	require.NoError(t, err)
	assert.Equal(t, base.EnterpriseValue, again.EnterpriseValue)
}

func TestSensitivityMarksInvalidCells(t *testing.T) {
	a := baseAssumptions()
	a.TerminalGrowthRate = fp(0.06)
	in := dcfInput()
	in.WACC = 0.08

	grid := Sensitivity(a, in, 0.02, 0.02, 1)
	require.NotNil(t, grid)
	// WACC 0.06 vs growth 0.08: invalid, left nil.
	assert.Nil(t, grid.EV[0][2])
	// WACC 0.10 vs growth 0.04: valid.
	assert.NotNil(t, grid.EV[2][0])
}

func TestSensitivityNilWithoutGrowthRate(t *testing.T) {
	a := baseAssumptions()
	a.TerminalGrowthRate = nil
	a.ExitMultiple = fp(8)
	assert.Nil(t, Sensitivity(a, dcfInput(), 0.01, 0.01, 2))
}

func TestCalculateDCFDeterministic(t *testing.T) {
	a := baseAssumptions()
	in := dcfInput()
	first, err := CalculateDCF(a, in)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := CalculateDCF(a, in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

// randomAssumptions draws a valid assumption set. Weights sum to 1 and the
// rate build-up keeps WACC above the drawn terminal growth rate.
func randomAssumptions(rng *rand.Rand) (Assumptions, DCFInput) {
	we := 0.5 + 0.4*rng.Float64()
	years := 1 + rng.Intn(10)
	a := Assumptions{
		RiskFreeRate:      0.03 + 0.03*rng.Float64(),
		EquityRiskPremium: 0.04 + 0.03*rng.Float64(),
		Beta:              0.8 + 0.7*rng.Float64(),
		CostOfDebt:        0.04 + 0.04*rng.Float64(),
		TaxRate:           0.20 + 0.10*rng.Float64(),
		EquityWeight:      we,
		DebtWeight:        1 - we,
		ForecastYears:     years,
		MidYearConvention: rng.Intn(2) == 1,
	}
	if rng.Intn(2) == 1 {
		a.ExitMultiple = fp(4 + 8*rng.Float64())
	} else {
		a.TerminalGrowthRate = fp(0.03 * rng.Float64())
	}

	fcf := make([]float64, years)
	for i := range fcf {
		fcf[i] = 50 + 450*rng.Float64()
	}
	wacc, err := CalculateWACC(a)
	if err != nil {
		panic(err)
	}
	return a, DCFInput{
		ForecastFCF:    fcf,
		WACC:           wacc.WACC,
		NetDebt:        -500 + 1000*rng.Float64(),
		TerminalMetric: 100 + 200*rng.Float64(),
	}
}

func TestCalculateDCFDeterministicAcrossRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(94025))
	for trial := 0; trial < 50; trial++ {
		a, in := randomAssumptions(rng)

		first, err := CalculateDCF(a, in)
		require.NoError(t, err, "trial %d", trial)
		for rep := 0; rep < 3; rep++ {
			again, err := CalculateDCF(a, in)
			require.NoError(t, err, "trial %d", trial)
			assert.Equal(t, first, again, "trial %d", trial)
		}
		if a.TerminalGrowthRate != nil {
			grid := Sensitivity(a, in, 0.01, 0.005, 2)
			require.NotNil(t, grid, "trial %d", trial)
			assert.Equal(t, grid, Sensitivity(a, in, 0.01, 0.005, 2), "trial %d", trial)
		}
	}
}
