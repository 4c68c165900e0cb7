package normalize

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"valuation_workbench/pkg/core/coa"
	"valuation_workbench/pkg/core/statement"
	"valuation_workbench/pkg/core/validate"
)

// RawLineItem is one (label, value, period) triple from extraction. The
// statement type hint narrows matching and the AI prompt; it may be empty.
type RawLineItem struct {
	Label      string            `json:"label"`
	FiscalYear int               `json:"fiscal_year"`
	Value      decimal.Decimal   `json:"value"`
	Statement  coa.StatementType `json:"statement_type,omitempty"`
}

// Config holds normalization thresholds. Both materiality settings are
// required: reconciliation uses max(MaterialityAbs, MaterialityPct * total
// assets) per period, and there is deliberately no built-in default.
type Config struct {
	MaterialityAbs decimal.Decimal
	MaterialityPct decimal.Decimal
	// MinConfidence is the floor for accepting an AI mapping suggestion.
	MinConfidence float64
}

// Validate rejects a config with unset materiality. Zero for one of the two
// is allowed, zero for both is not.
func (c Config) Validate() error {
	if c.MaterialityAbs.IsZero() && c.MaterialityPct.IsZero() {
		return fmt.Errorf("reconciliation materiality threshold is required (absolute and/or percent of total assets)")
	}
	if c.MaterialityAbs.IsNegative() || c.MaterialityPct.IsNegative() {
		return fmt.Errorf("materiality thresholds must be non-negative")
	}
	return nil
}

// Result carries the normalized statement and the mapping-stage issues.
// Reconciliation outcomes live on the statement; the rule engine turns
// failures into reviewer-facing issues.
type Result struct {
	Statement *statement.NormalizedStatement
	Issues    []validate.Issue
}

// Normalizer maps raw triples to canonical periods. The mapper is optional;
// without one, unmatched labels go straight to the unmapped list.
type Normalizer struct {
	reg     *coa.Registry
	matcher *Matcher
	mapper  LabelMapper
	cfg     Config
}

// New builds a normalizer. Returns an error when the config lacks a
// materiality threshold.
func New(reg *coa.Registry, mapper LabelMapper, cfg Config) (*Normalizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Normalizer{reg: reg, matcher: NewMatcher(reg), mapper: mapper, cfg: cfg}, nil
}

// Normalize produces a NormalizedStatement for one engagement from raw
// triples. Pure apart from the optional AI mapping call; no persistence.
func (n *Normalizer) Normalize(ctx context.Context, engagementID string, items []RawLineItem) (*Result, error) {
	stmt := statement.New(engagementID)
	var issues []validate.Issue

	// Pass 1: deterministic matching. Unmatched labels are batched for the
	// mapper, keyed by statement hint so the prompt stays narrow.
	type pending struct {
		item RawLineItem
	}
	var unmatched []pending
	matchedCode := map[string]string{} // label -> code, includes AI results

	for _, item := range items {
		if code, ok := n.matcher.Match(item.Label); ok {
			matchedCode[item.Label] = code
			continue
		}
		unmatched = append(unmatched, pending{item: item})
	}

	// Pass 2: AI-suggested mapping for what exact/alias matching missed.
	if n.mapper != nil && len(unmatched) > 0 {
		byStmt := map[coa.StatementType][]string{}
		seen := map[string]bool{}
		for _, p := range unmatched {
			if seen[p.item.Label] {
				continue
			}
			seen[p.item.Label] = true
			byStmt[p.item.Statement] = append(byStmt[p.item.Statement], p.item.Label)
		}
		for stmtType, labels := range byStmt {
			sort.Strings(labels) // deterministic call order
			suggestions, err := n.mapper.MapLabels(ctx, labels, stmtType)
			if err != nil {
				// Mapping failures are recoverable: the labels stay unmapped
				// and the reviewer handles them.
				issues = append(issues, validate.Issue{
					RuleID:   "MAPPING_UNAVAILABLE",
					Severity: validate.SeverityWarning,
					Message:  fmt.Sprintf("AI mapping unavailable for %d label(s): %v", len(labels), err),
					Status:   validate.StatusOpen,
				})
				continue
			}
			for _, s := range suggestions {
				if s.Confidence < n.cfg.MinConfidence {
					continue
				}
				matchedCode[s.Label] = s.Code
			}
		}
	}

	// Pass 3: accumulate values per (period, code). Duplicate labels mapping
	// to the same code within a period are summed, as with source documents
	// that split a canonical item across rows.
	for _, item := range items {
		p := stmt.EnsurePeriod(item.FiscalYear)
		code, ok := matchedCode[item.Label]
		if !ok {
			stmt.Unmapped = append(stmt.Unmapped, statement.UnmappedItem{
				Label:      item.Label,
				FiscalYear: item.FiscalYear,
				Value:      item.Value,
			})
			issues = append(issues, validate.Issue{
				RuleID:     "MAPPING_AMBIGUOUS",
				Severity:   validate.SeverityWarning,
				FiscalYear: item.FiscalYear,
				Message:    fmt.Sprintf("label %q in FY%d could not be mapped to a canonical code", item.Label, item.FiscalYear),
				Status:     validate.StatusOpen,
			})
			continue
		}
		if li, known := n.reg.Lookup(code); known && li.Statement == coa.StatementRatio {
			// Ratios are derived, never taken from source.
			continue
		}
		if existing, exists := p.Values[code]; exists {
			p.Values[code] = existing.Add(item.Value)
		} else {
			p.Values[code] = item.Value
		}
	}

	n.recomputeSubtotals(stmt)
	n.deriveRatios(stmt)
	n.reconcile(stmt)

	validate.Sort(issues)
	return &Result{Statement: stmt, Issues: issues}, nil
}

// recomputeSubtotals evaluates every formula-bearing canonical item from its
// inputs, overwriting any extracted figure. Period.Set preserves the original
// extracted value for audit display. Schema declaration order resolves
// chained subtotals.
func (n *Normalizer) recomputeSubtotals(stmt *statement.NormalizedStatement) {
	subtotals := n.reg.Subtotals()
	for pi := range stmt.Periods {
		p := &stmt.Periods[pi]
		for _, li := range subtotals {
			sum := decimal.Zero
			any := false
			for _, term := range li.Terms() {
				v, ok := p.Value(term.Code)
				if !ok {
					continue
				}
				any = true
				if term.Negative {
					sum = sum.Sub(v)
				} else {
					sum = sum.Add(v)
				}
			}
			if any {
				p.Set(li.Code, sum)
			}
		}
	}
}

// deriveRatios fills ratio-type canonical items from normalized values.
func (n *Normalizer) deriveRatios(stmt *statement.NormalizedStatement) {
	for pi := range stmt.Periods {
		p := &stmt.Periods[pi]
		rev, okR := p.Value("REV_001")
		gp, okG := p.Value("GP_001")
		if okR && okG && !rev.IsZero() {
			p.Set("RATIO_GM", gp.Div(rev).Round(6))
		}
	}
}

// threshold returns the materiality bound for one period:
// max(absolute, pct * total assets).
func (n *Normalizer) threshold(p *statement.Period) decimal.Decimal {
	t := n.cfg.MaterialityAbs
	if assets, ok := p.Value("ASSET_TOT"); ok {
		rel := assets.Abs().Mul(n.cfg.MaterialityPct)
		if rel.GreaterThan(t) {
			t = rel
		}
	}
	return t
}

// reconcile checks the cross-statement identities per period and records the
// outcome on the statement. Identities over codes absent from the period are
// skipped rather than treated as violations.
func (n *Normalizer) reconcile(stmt *statement.NormalizedStatement) {
	for pi := range stmt.Periods {
		p := &stmt.Periods[pi]
		bound := n.threshold(p)

		// Assets = Liabilities + Equity
		if assets, ok := p.Value("ASSET_TOT"); ok {
			liab, okL := p.Value("LIAB_TOT")
			eq, okE := p.Value("EQUITY_TOT")
			if okL && okE {
				delta := assets.Sub(liab.Add(eq))
				stmt.Reconciliation = append(stmt.Reconciliation, statement.ReconciliationCheck{
					Identity:   statement.IdentityBalanceSheet,
					FiscalYear: p.FiscalYear,
					Holds:      delta.Abs().LessThanOrEqual(bound),
					Delta:      delta,
				})
			}
		}

		// Income statement roll-up: the recomputed NI_001 against the
		// extracted figure, when the source supplied one.
		if extracted, ok := p.Extracted["NI_001"]; ok {
			computed := p.Values["NI_001"]
			delta := computed.Sub(extracted)
			stmt.Reconciliation = append(stmt.Reconciliation, statement.ReconciliationCheck{
				Identity:   statement.IdentityIncomeRollup,
				FiscalYear: p.FiscalYear,
				Holds:      delta.Abs().LessThanOrEqual(bound),
				Delta:      delta,
			})
		}

		// Cash flow tie: CFO + CFI + CFF against the extracted net change.
		if extracted, ok := p.Extracted["CF_NET_001"]; ok {
			computed := p.Values["CF_NET_001"]
			delta := computed.Sub(extracted)
			stmt.Reconciliation = append(stmt.Reconciliation, statement.ReconciliationCheck{
				Identity:   statement.IdentityCashFlowTie,
				FiscalYear: p.FiscalYear,
				Holds:      delta.Abs().LessThanOrEqual(bound),
				Delta:      delta,
			})
		}
	}
}
