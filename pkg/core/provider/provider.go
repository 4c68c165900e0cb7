// Package provider abstracts market-data sources behind one interface so
// the valuation pipeline never knows whether comparables came from a bundled
// dataset, a scraped public page, or a licensed feed.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"valuation_workbench/pkg/core/valuation"
)

// ErrProviderUnavailable signals a transient source failure. The pipeline
// maps it to a method failure rather than a run failure.
var ErrProviderUnavailable = errors.New("market data provider unavailable")

// Criteria narrows a comparable or transaction query.
type Criteria struct {
	IndustryCode string    `json:"industry_code"`
	MinSize      float64   `json:"min_size,omitempty"`
	MaxSize      float64   `json:"max_size,omitempty"`
	After        time.Time `json:"after,omitempty"`
	Before       time.Time `json:"before,omitempty"`
	Limit        int       `json:"limit,omitempty"`
}

// MarketDataProvider is the pluggable market-data source.
type MarketDataProvider interface {
	// Name returns the provider identifier used in configuration.
	Name() string

	// GetComparableCompanies returns guideline public companies.
	GetComparableCompanies(ctx context.Context, c Criteria) (valuation.ComparableSet, error)

	// GetTransactions returns precedent transactions.
	GetTransactions(ctx context.Context, c Criteria) (valuation.ComparableSet, error)

	// GetRiskFreeRate returns the current risk-free proxy (decimal).
	GetRiskFreeRate(ctx context.Context) (float64, error)

	// GetEquityRiskPremium returns the market equity risk premium (decimal).
	GetEquityRiskPremium(ctx context.Context) (float64, error)

	// GetIndustryBeta returns the unlevered industry beta.
	GetIndustryBeta(ctx context.Context, industryCode string) (float64, error)
}

// New builds the provider named in configuration.
func New(kind string, opts Options) (MarketDataProvider, error) {
	switch kind {
	case "damodaran", "":
		return NewDamodaranStatic(), nil
	case "web":
		return NewPublicWebProvider(opts.WebBaseURL, opts.Timeout), nil
	case "pitchbook":
		return NewPitchBook(opts.PitchBookAPIKey), nil
	}
	return nil, fmt.Errorf("unknown market data provider %q", kind)
}

// Options carries provider-specific construction settings.
type Options struct {
	WebBaseURL      string
	Timeout         time.Duration
	PitchBookAPIKey string
}
