package forecast

import "fmt"

// GrowthModel grows the base year's free cash flow at a constant rate.
// Fallback for engagements without driver-level detail.
// Formula: FCF(t) = FCF(0) * (1 + Rate)^t, with
// FCF(0) = EBIT*(1 - TaxRate) + D&A - CapEx.
type GrowthModel struct {
	Rate    float64 `yaml:"rate"`
	TaxRate float64 `yaml:"tax_rate"`
}

func (m *GrowthModel) Name() string { return "growth" }

func (m *GrowthModel) Validate(in Inputs) error {
	if in.Years < 1 {
		return fmt.Errorf("forecast horizon must be at least 1 year")
	}
	if in.Base.EBIT == 0 {
		return fmt.Errorf("growth model requires a base-year operating income")
	}
	return nil
}

func (m *GrowthModel) Forecast(in Inputs) ([]float64, error) {
	if err := m.Validate(in); err != nil {
		return nil, err
	}
	da := in.Base.EBITDA - in.Base.EBIT
	base := in.Base.EBIT*(1-m.TaxRate) + da - in.Base.Capex
	out := make([]float64, in.Years)
	v := base
	for i := range out {
		v *= 1 + m.Rate
		out[i] = v
	}
	return out, nil
}

// DriverModel articulates each forecast year from revenue drivers:
//
//	Revenue(t) = Revenue(t-1) * (1 + RevenueGrowth)
//	EBIT(t)    = Revenue(t) * EBITMargin
//	FCF(t)     = EBIT(t)*(1-TaxRate) + D&A(t) - CapEx(t) - ΔWC(t)
//
// D&A and CapEx scale with revenue; working-capital change is a share of the
// revenue increment. Zero-valued ratios inherit the base year's observed
// ratio where one exists.
type DriverModel struct {
	RevenueGrowth float64 `yaml:"revenue_growth"`
	EBITMargin    float64 `yaml:"ebit_margin"`
	TaxRate       float64 `yaml:"tax_rate"`
	DAPctRevenue  float64 `yaml:"da_pct_revenue"`
	CapexPctRev   float64 `yaml:"capex_pct_revenue"`
	WCPctDelta    float64 `yaml:"wc_pct_delta"`
}

func (m *DriverModel) Name() string { return "driver" }

func (m *DriverModel) Validate(in Inputs) error {
	if in.Years < 1 {
		return fmt.Errorf("forecast horizon must be at least 1 year")
	}
	if in.Base.Revenue <= 0 {
		return fmt.Errorf("driver model requires positive base-year revenue")
	}
	return nil
}

func (m *DriverModel) Forecast(in Inputs) ([]float64, error) {
	if err := m.Validate(in); err != nil {
		return nil, err
	}

	margin := m.EBITMargin
	if margin == 0 {
		margin = in.Base.EBIT / in.Base.Revenue
	}
	daPct := m.DAPctRevenue
	if daPct == 0 {
		daPct = (in.Base.EBITDA - in.Base.EBIT) / in.Base.Revenue
	}
	capexPct := m.CapexPctRev
	if capexPct == 0 && in.Base.Capex != 0 {
		capexPct = in.Base.Capex / in.Base.Revenue
	}

	out := make([]float64, in.Years)
	rev := in.Base.Revenue
	for i := range out {
		prev := rev
		rev *= 1 + m.RevenueGrowth
		ebit := rev * margin
		da := rev * daPct
		capex := rev * capexPct
		deltaWC := (rev - prev) * m.WCPctDelta
		out[i] = ebit*(1-m.TaxRate) + da - capex - deltaWC
	}
	return out, nil
}
