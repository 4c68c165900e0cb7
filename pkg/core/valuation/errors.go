// Package valuation implements the computation engines: WACC, DCF with
// sensitivity, and the comparable-multiple methods (GPCM/GTM), plus the
// weighted conclusion. Every engine is a pure function of its inputs — no
// clock, no randomness, no I/O — so identical inputs always produce
// identical results.
package valuation

import (
	"errors"
	"fmt"
	"strings"
)

// InvalidAssumptionsError reports malformed valuation inputs. Fatal to the
// run that supplied them; the reasons are structured so a UI can render them
// verbatim.
type InvalidAssumptionsError struct {
	Reasons []string
}

func (e *InvalidAssumptionsError) Error() string {
	return "invalid assumptions: " + strings.Join(e.Reasons, "; ")
}

// invalidAssumptions builds the error from reason strings.
func invalidAssumptions(reasons ...string) error {
	return &InvalidAssumptionsError{Reasons: reasons}
}

// IsInvalidAssumptions reports whether err is an assumptions failure.
func IsInvalidAssumptions(err error) bool {
	var target *InvalidAssumptionsError
	return errors.As(err, &target)
}

// ErrInsufficientComparables marks a comparable-multiple method whose
// filtered peer set came up empty. Fatal to that method only; the caller
// decides whether the conclusion proceeds on the remaining methods.
var ErrInsufficientComparables = errors.New("insufficient comparables")

// insufficientComparables wraps the sentinel with method context.
func insufficientComparables(method string) error {
	return fmt.Errorf("%s: %w", method, ErrInsufficientComparables)
}
