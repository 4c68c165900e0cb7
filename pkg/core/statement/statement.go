// Package statement holds the normalized financial statement model: one
// ordered set of fiscal periods per engagement, with canonical-code values,
// reconciliation records, and the freeze/override lifecycle. Values use
// decimal arithmetic so subtotal recomputation is exact.
package statement

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Identity names a cross-statement accounting identity checked during
// normalization.
type Identity string

const (
	IdentityBalanceSheet Identity = "balance_sheet_equation" // Assets = Liabilities + Equity
	IdentityIncomeRollup Identity = "income_statement_rollup"
	IdentityCashFlowTie  Identity = "cash_flow_tie_to_cash"
)

// Period is one reporting year of canonical values. Values holds the
// normalized (post-recomputation) figures; Extracted preserves the source
// values that recomputation overwrote, for audit display. A code absent from
// Values is null pending mapping.
type Period struct {
	FiscalYear int                        `json:"fiscal_year"`
	PeriodEnd  time.Time                  `json:"fiscal_period_end"`
	Values     map[string]decimal.Decimal `json:"values"`
	Extracted  map[string]decimal.Decimal `json:"extracted,omitempty"`
}

// Value returns the normalized value for a canonical code.
func (p *Period) Value(code string) (decimal.Decimal, bool) {
	v, ok := p.Values[code]
	return v, ok
}

// Set records a normalized value, preserving any previously-set value in
// Extracted the first time it is overwritten.
func (p *Period) Set(code string, v decimal.Decimal) {
	if prev, ok := p.Values[code]; ok && !prev.Equal(v) {
		if _, kept := p.Extracted[code]; !kept {
			if p.Extracted == nil {
				p.Extracted = map[string]decimal.Decimal{}
			}
			p.Extracted[code] = prev
		}
	}
	p.Values[code] = v
}

// ReconciliationCheck records the outcome of one identity for one period.
type ReconciliationCheck struct {
	Identity   Identity        `json:"identity"`
	FiscalYear int             `json:"fiscal_year"`
	Holds      bool            `json:"holds"`
	Delta      decimal.Decimal `json:"delta"` // lhs - rhs
}

// UnmappedItem is a source label the normalizer could not place on the
// canonical schema. It is carried on the statement so a reviewer can map it
// by hand.
type UnmappedItem struct {
	Label      string          `json:"label"`
	FiscalYear int             `json:"fiscal_year"`
	Value      decimal.Decimal `json:"value"`
}

// NormalizedStatement is the full normalized view for one engagement.
// Once frozen (a valuation run has consumed it) no further mutation is
// allowed; corrections require a new normalization pass.
type NormalizedStatement struct {
	EngagementID   string                `json:"engagement_id"`
	Periods        []Period              `json:"periods"`
	Reconciliation []ReconciliationCheck `json:"reconciliation"`
	Unmapped       []UnmappedItem        `json:"unmapped,omitempty"`
	frozen         bool
}

// New creates an empty statement for an engagement.
func New(engagementID string) *NormalizedStatement {
	return &NormalizedStatement{EngagementID: engagementID}
}

// EnsurePeriod returns the period for a fiscal year, creating and ordering it
// if needed.
func (s *NormalizedStatement) EnsurePeriod(fiscalYear int) *Period {
	for i := range s.Periods {
		if s.Periods[i].FiscalYear == fiscalYear {
			return &s.Periods[i]
		}
	}
	s.Periods = append(s.Periods, Period{
		FiscalYear: fiscalYear,
		PeriodEnd:  time.Date(fiscalYear, 12, 31, 0, 0, 0, 0, time.UTC),
		Values:     map[string]decimal.Decimal{},
	})
	sort.Slice(s.Periods, func(i, j int) bool {
		return s.Periods[i].FiscalYear < s.Periods[j].FiscalYear
	})
	return s.Period(fiscalYear)
}

// Period returns the period for a fiscal year, or nil.
func (s *NormalizedStatement) Period(fiscalYear int) *Period {
	for i := range s.Periods {
		if s.Periods[i].FiscalYear == fiscalYear {
			return &s.Periods[i]
		}
	}
	return nil
}

// Latest returns the most recent period, or nil for an empty statement.
func (s *NormalizedStatement) Latest() *Period {
	if len(s.Periods) == 0 {
		return nil
	}
	return &s.Periods[len(s.Periods)-1]
}

// Freeze marks the statement immutable. A valuation run freezes its input so
// the audit trail stays coherent.
func (s *NormalizedStatement) Freeze() { s.frozen = true }

// Frozen reports whether the statement has been consumed by a valuation run.
func (s *NormalizedStatement) Frozen() bool { return s.frozen }

// ApplyCorrection writes a reviewer-supplied replacement value (the terminal
// step of an issue override). Rejected once the statement is frozen.
func (s *NormalizedStatement) ApplyCorrection(fiscalYear int, code string, v decimal.Decimal) error {
	if s.frozen {
		return fmt.Errorf("statement for engagement %s is frozen; corrections require a new normalization", s.EngagementID)
	}
	p := s.Period(fiscalYear)
	if p == nil {
		return fmt.Errorf("no period for fiscal year %d", fiscalYear)
	}
	p.Set(code, v)
	return nil
}

// Metrics is the float64 snapshot the valuation engines consume, taken from
// the latest period. Engines never read decimals directly.
type Metrics struct {
	Revenue     float64
	GrossProfit float64
	EBITDA      float64
	EBIT        float64
	NetIncome   float64
	TotalAssets float64
	Cash        float64
	TotalDebt   float64
	NetDebt     float64
	BookValue   float64
	Capex       float64
}

func f(p *Period, code string) float64 {
	if v, ok := p.Value(code); ok {
		res, _ := v.Float64()
		return res
	}
	return 0
}

// LatestMetrics extracts the valuation metric snapshot from the most recent
// period. EBITDA is operating income plus D&A; net debt is total debt less
// cash.
func (s *NormalizedStatement) LatestMetrics() (Metrics, error) {
	p := s.Latest()
	if p == nil {
		return Metrics{}, fmt.Errorf("statement for engagement %s has no periods", s.EngagementID)
	}
	m := Metrics{
		Revenue:     f(p, "REV_001"),
		GrossProfit: f(p, "GP_001"),
		EBIT:        f(p, "OPINC_001"),
		NetIncome:   f(p, "NI_001"),
		TotalAssets: f(p, "ASSET_TOT"),
		Cash:        f(p, "ASSET_CURR_001"),
		BookValue:   f(p, "EQUITY_TOT"),
		Capex:       f(p, "CF_CAPEX_001"),
	}
	m.EBITDA = m.EBIT + f(p, "DA_001")
	m.TotalDebt = f(p, "LIAB_CURR_003") + f(p, "LIAB_LT_001")
	m.NetDebt = m.TotalDebt - m.Cash
	return m, nil
}
