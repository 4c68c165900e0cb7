// Package normalize maps raw extracted line items onto the canonical chart
// of accounts, recomputes subtotal codes, and reconciles cross-statement
// identities. The normalizer performs no I/O of its own; persistence and the
// AI mapping collaborator are injected by callers.
package normalize

import (
	"context"

	"valuation_workbench/pkg/core/coa"
)

// Suggestion is one AI-proposed mapping for a label the deterministic matcher
// could not place.
type Suggestion struct {
	Label      string  `json:"source_label"`
	Code       string  `json:"canonical_code"`
	Confidence float64 `json:"confidence"`
}

// LabelMapper proposes canonical codes for unmatched labels. Implementations
// may call an LLM; the normalizer only requires that suggestions carry a
// confidence score it can threshold.
type LabelMapper interface {
	MapLabels(ctx context.Context, labels []string, stmt coa.StatementType) ([]Suggestion, error)
}

// Matcher resolves labels deterministically against the canonical schema:
// exact display-name match first, then aliases, all on normalized text.
type Matcher struct {
	reg *coa.Registry
}

// NewMatcher builds a matcher over a registry.
func NewMatcher(reg *coa.Registry) *Matcher {
	return &Matcher{reg: reg}
}

// Match returns the canonical code for a raw label, if the schema knows it.
func (m *Matcher) Match(label string) (string, bool) {
	return m.reg.MatchLabel(label)
}
