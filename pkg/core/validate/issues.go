// Package validate implements the rule engine that inspects a normalized
// statement and the reviewer-facing issue lifecycle. The engine is a pure
// function: same statement in, same ordered issues out.
package validate

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Severity of a validation issue. Errors block a valuation run until a
// reviewer accepts or overrides them.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// rank orders severities for deterministic sorting (error first).
func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// Status of an issue in the review workflow.
type Status string

const (
	StatusOpen       Status = "open"
	StatusAccepted   Status = "accepted"
	StatusOverridden Status = "overridden"
)

// Issue is one flagged finding against a normalized statement. Issues are
// recorded and returned to a reviewer; they are never raised as fatal errors.
type Issue struct {
	RuleID        string           `json:"rule_id"`
	Severity      Severity         `json:"severity"`
	FiscalYear    int              `json:"fiscal_year,omitempty"` // 0 = all periods
	Code          string           `json:"canonical_code,omitempty"`
	Message       string           `json:"message"`
	SuggestedFix  *decimal.Decimal `json:"suggested_fix,omitempty"`
	Status        Status           `json:"status"`
	OverrideValue *decimal.Decimal `json:"override_value,omitempty"`
	OverrideNote  string           `json:"override_note,omitempty"`
}

// Accept marks the issue as reviewed and accepted as-is.
func (i *Issue) Accept() error {
	if i.Status != StatusOpen {
		return fmt.Errorf("issue %s is %s, only open issues can be accepted", i.RuleID, i.Status)
	}
	i.Status = StatusAccepted
	return nil
}

// Override records a replacement value. Both the value and a note are
// mandatory; the transition is rejected without them.
func (i *Issue) Override(value *decimal.Decimal, note string) error {
	if i.Status != StatusOpen {
		return fmt.Errorf("issue %s is %s, only open issues can be overridden", i.RuleID, i.Status)
	}
	if value == nil {
		return fmt.Errorf("override of issue %s requires a replacement value", i.RuleID)
	}
	if note == "" {
		return fmt.Errorf("override of issue %s requires a note", i.RuleID)
	}
	i.Status = StatusOverridden
	i.OverrideValue = value
	i.OverrideNote = note
	return nil
}

// Sort orders issues deterministically: severity descending, then fiscal
// year, then canonical code, then rule id as a final tiebreak.
func Sort(issues []Issue) {
	sort.SliceStable(issues, func(a, b int) bool {
		ia, ib := issues[a], issues[b]
		if ia.Severity.rank() != ib.Severity.rank() {
			return ia.Severity.rank() < ib.Severity.rank()
		}
		if ia.FiscalYear != ib.FiscalYear {
			return ia.FiscalYear < ib.FiscalYear
		}
		if ia.Code != ib.Code {
			return ia.Code < ib.Code
		}
		return ia.RuleID < ib.RuleID
	})
}

// HasBlocking reports whether any error-severity issue is still open.
// Callers use this as the gate before freezing a statement for valuation.
func HasBlocking(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError && i.Status == StatusOpen {
			return true
		}
	}
	return false
}
