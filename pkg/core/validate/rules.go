package validate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"valuation_workbench/pkg/core/statement"
)

// Rule is one independently-evaluable check over a normalized statement.
// Rules never short-circuit each other; the engine runs the full catalog and
// concatenates the findings.
type Rule interface {
	ID() string
	Evaluate(s *statement.NormalizedStatement) []Issue
}

// Config carries the tunable thresholds of the rule catalog.
type Config struct {
	// MarginLow/MarginHigh bound the plausible gross margin range.
	MarginLow  float64 `yaml:"margin_low"`
	MarginHigh float64 `yaml:"margin_high"`
	// SwingMultiple flags period-over-period changes beyond value*multiple.
	SwingMultiple float64 `yaml:"swing_multiple"`
}

// DefaultConfig mirrors the thresholds used in review practice: a gross
// margin outside [-100%, 100%] is implausible, and a 3x year-over-year swing
// is worth a second look.
func DefaultConfig() Config {
	return Config{MarginLow: -1.0, MarginHigh: 1.0, SwingMultiple: 3.0}
}

// Engine evaluates the fixed rule catalog in registration order and returns
// deterministically ordered issues.
type Engine struct {
	rules []Rule
}

// NewEngine builds the engine with the full rule catalog. Unset thresholds
// fall back to DefaultConfig: a zero margin band would flag every statement
// and a zero swing multiple would flag every change.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MarginLow == 0 && cfg.MarginHigh == 0 {
		cfg.MarginLow, cfg.MarginHigh = def.MarginLow, def.MarginHigh
	}
	if cfg.SwingMultiple == 0 {
		cfg.SwingMultiple = def.SwingMultiple
	}
	return &Engine{rules: []Rule{
		balanceEquationRule{},
		signConstraintRule{},
		marginRangeRule{low: cfg.MarginLow, high: cfg.MarginHigh},
		missingCriticalRule{},
		periodSwingRule{multiple: cfg.SwingMultiple},
	}}
}

// Run evaluates every rule and returns the concatenated, sorted findings.
func (e *Engine) Run(s *statement.NormalizedStatement) []Issue {
	var issues []Issue
	for _, r := range e.rules {
		issues = append(issues, r.Evaluate(s)...)
	}
	Sort(issues)
	return issues
}

// -----------------------------------------------------------------------------
// Rule catalog
// -----------------------------------------------------------------------------

// balanceEquationRule surfaces reconciliation failures recorded by the
// normalizer as reviewer-facing issues.
type balanceEquationRule struct{}

func (balanceEquationRule) ID() string { return "RECON_IDENTITY" }

func (r balanceEquationRule) Evaluate(s *statement.NormalizedStatement) []Issue {
	var issues []Issue
	for _, check := range s.Reconciliation {
		if check.Holds {
			continue
		}
		issues = append(issues, Issue{
			RuleID:     r.ID(),
			Severity:   SeverityError,
			FiscalYear: check.FiscalYear,
			Message: fmt.Sprintf("%s violated in FY%d by %s",
				check.Identity, check.FiscalYear, check.Delta.StringFixed(2)),
			Status: StatusOpen,
		})
	}
	return issues
}

// signConstraintRule flags values that are structurally sign-invalid.
type signConstraintRule struct{}

func (signConstraintRule) ID() string { return "SIGN_INVALID" }

// nonNegativeCodes are line items that can never be negative in a coherent
// statement. Equity and net income legitimately go negative and are excluded.
var nonNegativeCodes = []string{"REV_001", "ASSET_TOT", "ASSET_CURR_004", "ASSET_CURR_001"}

func (r signConstraintRule) Evaluate(s *statement.NormalizedStatement) []Issue {
	var issues []Issue
	for pi := range s.Periods {
		p := &s.Periods[pi]
		for _, code := range nonNegativeCodes {
			v, ok := p.Value(code)
			if !ok || !v.IsNegative() {
				continue
			}
			abs := v.Abs()
			issues = append(issues, Issue{
				RuleID:       r.ID(),
				Severity:     SeverityError,
				FiscalYear:   p.FiscalYear,
				Code:         code,
				Message:      fmt.Sprintf("%s is negative (%s) in FY%d", code, v.StringFixed(2), p.FiscalYear),
				SuggestedFix: &abs,
				Status:       StatusOpen,
			})
		}
	}
	return issues
}

// marginRangeRule flags gross margins outside the plausible band.
type marginRangeRule struct {
	low, high float64
}

func (marginRangeRule) ID() string { return "MARGIN_RANGE" }

func (r marginRangeRule) Evaluate(s *statement.NormalizedStatement) []Issue {
	var issues []Issue
	for pi := range s.Periods {
		p := &s.Periods[pi]
		rev, okR := p.Value("REV_001")
		gp, okG := p.Value("GP_001")
		if !okR || !okG || rev.IsZero() {
			continue
		}
		margin, _ := gp.Div(rev).Float64()
		if margin < r.low || margin > r.high {
			issues = append(issues, Issue{
				RuleID:     r.ID(),
				Severity:   SeverityWarning,
				FiscalYear: p.FiscalYear,
				Code:       "GP_001",
				Message:    fmt.Sprintf("gross margin %.1f%% in FY%d is outside the plausible range", margin*100, p.FiscalYear),
				Status:     StatusOpen,
			})
		}
	}
	return issues
}

// missingCriticalRule requires revenue, total assets and net income to be
// present in at least one period.
type missingCriticalRule struct{}

func (missingCriticalRule) ID() string { return "MISSING_CRITICAL_ITEM" }

var criticalCodes = []string{"REV_001", "ASSET_TOT", "NI_001"}

func (r missingCriticalRule) Evaluate(s *statement.NormalizedStatement) []Issue {
	var issues []Issue
	for _, code := range criticalCodes {
		found := false
		for pi := range s.Periods {
			if _, ok := s.Periods[pi].Value(code); ok {
				found = true
				break
			}
		}
		if !found {
			issues = append(issues, Issue{
				RuleID:   r.ID(),
				Severity: SeverityError,
				Code:     code,
				Message:  fmt.Sprintf("critical line item %s is absent across all periods", code),
				Status:   StatusOpen,
			})
		}
	}
	return issues
}

// periodSwingRule flags period-over-period changes beyond a configured
// multiple of the prior value. Anomaly signal only, never blocking.
type periodSwingRule struct {
	multiple float64
}

func (periodSwingRule) ID() string { return "PERIOD_SWING" }

var swingCodes = []string{"REV_001", "OPINC_001", "NI_001", "ASSET_TOT"}

func (r periodSwingRule) Evaluate(s *statement.NormalizedStatement) []Issue {
	var issues []Issue
	limit := decimal.NewFromFloat(r.multiple)
	for pi := 1; pi < len(s.Periods); pi++ {
		prev, cur := &s.Periods[pi-1], &s.Periods[pi]
		for _, code := range swingCodes {
			pv, okP := prev.Value(code)
			cv, okC := cur.Value(code)
			if !okP || !okC || pv.IsZero() {
				continue
			}
			change := cv.Sub(pv).Abs()
			if change.GreaterThan(pv.Abs().Mul(limit)) {
				issues = append(issues, Issue{
					RuleID:     r.ID(),
					Severity:   SeverityWarning,
					FiscalYear: cur.FiscalYear,
					Code:       code,
					Message: fmt.Sprintf("%s moved from %s to %s between FY%d and FY%d, beyond %.1fx",
						code, pv.StringFixed(0), cv.StringFixed(0), prev.FiscalYear, cur.FiscalYear, r.multiple),
					Status: StatusOpen,
				})
			}
		}
	}
	return issues
}
