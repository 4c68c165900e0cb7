// Package coa defines the canonical chart of accounts: the fixed taxonomy of
// financial statement line items that every engagement is normalized against.
// The schema is loaded once at process start and is read-only afterwards.
package coa

import (
	"fmt"
	"strings"
)

// StatementType identifies which statement a canonical code belongs to.
type StatementType string

const (
	StatementIncome   StatementType = "income"
	StatementBalance  StatementType = "balance"
	StatementCashFlow StatementType = "cashflow"
	StatementRatio    StatementType = "ratio"
)

// LineItem is one entry in the canonical chart of accounts.
// Formula, when present, is a list of signed canonical codes
// (a leading '-' subtracts): ["REV_001", "-COGS_001"].
// Items with a formula are subtotals and are always recomputed from their
// inputs during normalization, never trusted from the source document.
type LineItem struct {
	Code        string        `json:"code"`
	Statement   StatementType `json:"statement_type"`
	DisplayName string        `json:"display_name"`
	Aliases     []string      `json:"aliases,omitempty"`
	IsSubtotal  bool          `json:"is_subtotal"`
	Formula     []string      `json:"formula,omitempty"`
}

// FormulaTerm is one resolved operand of a subtotal formula.
type FormulaTerm struct {
	Code     string
	Negative bool
}

// Terms parses the signed-code formula into structured operands.
func (li LineItem) Terms() []FormulaTerm {
	terms := make([]FormulaTerm, 0, len(li.Formula))
	for _, raw := range li.Formula {
		code := strings.TrimSpace(raw)
		neg := false
		if strings.HasPrefix(code, "-") {
			neg = true
			code = strings.TrimSpace(code[1:])
		}
		terms = append(terms, FormulaTerm{Code: code, Negative: neg})
	}
	return terms
}

// Registry is the immutable in-memory view of the canonical schema.
// Lookup maps are built once by Load; there is no mutation path.
type Registry struct {
	items   []LineItem
	byCode  map[string]LineItem
	byLabel map[string]string // normalized display name / alias -> code
}

// NormalizeLabel canonicalizes a raw line-item label for matching:
// lowercase, punctuation stripped, whitespace collapsed.
func NormalizeLabel(label string) string {
	var b strings.Builder
	prevSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevSpace = false
		case r == '&':
			b.WriteString("and")
			prevSpace = false
		default:
			if !prevSpace && b.Len() > 0 {
				b.WriteByte(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func newRegistry(items []LineItem) (*Registry, error) {
	r := &Registry{
		items:   items,
		byCode:  make(map[string]LineItem, len(items)),
		byLabel: make(map[string]string, len(items)*3),
	}
	for _, li := range items {
		if li.Code == "" {
			return nil, fmt.Errorf("canonical line item with empty code (display name %q)", li.DisplayName)
		}
		if _, dup := r.byCode[li.Code]; dup {
			return nil, fmt.Errorf("duplicate canonical code %s", li.Code)
		}
		r.byCode[li.Code] = li
		r.byLabel[NormalizeLabel(li.DisplayName)] = li.Code
		for _, alias := range li.Aliases {
			key := NormalizeLabel(alias)
			if existing, ok := r.byLabel[key]; ok && existing != li.Code {
				return nil, fmt.Errorf("alias %q maps to both %s and %s", alias, existing, li.Code)
			}
			r.byLabel[key] = li.Code
		}
	}
	// Subtotal formulas must reference known codes.
	for _, li := range items {
		for _, term := range li.Terms() {
			if _, ok := r.byCode[term.Code]; !ok {
				return nil, fmt.Errorf("formula for %s references unknown code %s", li.Code, term.Code)
			}
		}
	}
	return r, nil
}

// Items returns the schema in declaration order. Callers must not modify
// the returned slice.
func (r *Registry) Items() []LineItem {
	return r.items
}

// Lookup returns the line item for a canonical code.
func (r *Registry) Lookup(code string) (LineItem, bool) {
	li, ok := r.byCode[code]
	return li, ok
}

// MatchLabel resolves a raw label against display names and aliases.
func (r *Registry) MatchLabel(label string) (string, bool) {
	code, ok := r.byLabel[NormalizeLabel(label)]
	return code, ok
}

// Subtotals returns the formula-bearing items in declaration order. The
// schema file declares formula inputs before the subtotal that uses them, so
// evaluating in this order resolves chained subtotals in one pass.
func (r *Registry) Subtotals() []LineItem {
	var out []LineItem
	for _, li := range r.items {
		if len(li.Formula) > 0 {
			out = append(out, li)
		}
	}
	return out
}
