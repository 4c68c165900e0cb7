package provider

import (
	"context"
	"fmt"

	"valuation_workbench/pkg/core/valuation"
)

// PitchBook is the licensed-feed provider. Comparable and transaction
// queries require an active subscription; without an API key every call
// reports ErrProviderUnavailable so the pipeline can fall back or fail the
// affected methods.
//
// TODO: implement the authenticated comps/transactions endpoints once the
// data license covers API access.
type PitchBook struct {
	apiKey string
}

func NewPitchBook(apiKey string) *PitchBook {
	return &PitchBook{apiKey: apiKey}
}

func (p *PitchBook) Name() string { return "pitchbook" }

func (p *PitchBook) GetComparableCompanies(ctx context.Context, c Criteria) (valuation.ComparableSet, error) {
	return valuation.ComparableSet{}, p.unavailable("comparable companies")
}

func (p *PitchBook) GetTransactions(ctx context.Context, c Criteria) (valuation.ComparableSet, error) {
	return valuation.ComparableSet{}, p.unavailable("transactions")
}

func (p *PitchBook) GetRiskFreeRate(ctx context.Context) (float64, error) {
	return 0, p.unavailable("risk-free rate")
}

func (p *PitchBook) GetEquityRiskPremium(ctx context.Context) (float64, error) {
	return 0, p.unavailable("equity risk premium")
}

func (p *PitchBook) GetIndustryBeta(ctx context.Context, industryCode string) (float64, error) {
	return 0, p.unavailable("industry beta")
}

func (p *PitchBook) unavailable(what string) error {
	if p.apiKey == "" {
		return fmt.Errorf("%w: pitchbook %s requires an API key", ErrProviderUnavailable, what)
	}
	return fmt.Errorf("%w: pitchbook %s endpoint not yet enabled", ErrProviderUnavailable, what)
}
