package provider

import (
	"context"
	"strings"
	"time"

	"valuation_workbench/pkg/core/valuation"
)

// DamodaranStatic serves rates, premia, and betas from a bundled snapshot of
// the public Damodaran datasets, plus a small comparable and transaction
// sample. Deterministic and offline: the default for tests and for
// engagements without a licensed feed.
type DamodaranStatic struct {
	riskFreeRate float64
	erp          float64
	betas        map[string]float64
	comps        []valuation.Comparable
	deals        []valuation.Comparable
}

// NewDamodaranStatic builds the provider with the January snapshot baked in.
func NewDamodaranStatic() *DamodaranStatic {
	return &DamodaranStatic{
		riskFreeRate: 0.042,
		erp:          0.0455,
		betas: map[string]float64{
			"software":           1.18,
			"business_services":  0.93,
			"healthcare":         0.88,
			"retail":             1.02,
			"manufacturing":      0.95,
			"food_and_beverage":  0.71,
			"construction":       1.05,
			"transportation":     0.98,
			"financial_services": 0.82,
		},
		comps: []valuation.Comparable{
			{EntityID: "GPC-ALPHA", IndustryCode: "software", DealSize: 4200,
				Multiples: map[string]float64{"EV/Revenue": 5.6, "EV/EBITDA": 18.4, "P/E": 31.0}},
			{EntityID: "GPC-BRAVO", IndustryCode: "software", DealSize: 1850,
				Multiples: map[string]float64{"EV/Revenue": 4.1, "EV/EBITDA": 14.2, "P/E": 26.5}},
			{EntityID: "GPC-CHARLIE", IndustryCode: "software", DealSize: 760,
				Multiples: map[string]float64{"EV/Revenue": 3.3, "EV/EBITDA": 11.8, "P/E": 22.1}},
			{EntityID: "GPC-DELTA", IndustryCode: "business_services", DealSize: 980,
				Multiples: map[string]float64{"EV/Revenue": 1.9, "EV/EBITDA": 9.6, "P/E": 17.4}},
			{EntityID: "GPC-ECHO", IndustryCode: "business_services", DealSize: 450,
				Multiples: map[string]float64{"EV/Revenue": 1.4, "EV/EBITDA": 8.1, "P/E": 14.9}},
			{EntityID: "GPC-FOXTROT", IndustryCode: "manufacturing", DealSize: 1320,
				Multiples: map[string]float64{"EV/Revenue": 1.2, "EV/EBITDA": 7.4, "P/E": 13.2}},
		},
		deals: []valuation.Comparable{
			{EntityID: "TXN-2024-011", IndustryCode: "software", DealSize: 640,
				Date:      time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
				Multiples: map[string]float64{"EV/Revenue": 4.8, "EV/EBITDA": 15.9}},
			{EntityID: "TXN-2024-037", IndustryCode: "software", DealSize: 210,
				Date:      time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC),
				Multiples: map[string]float64{"EV/Revenue": 3.9, "EV/EBITDA": 12.7}},
			{EntityID: "TXN-2025-004", IndustryCode: "business_services", DealSize: 95,
				Date:      time.Date(2025, 1, 21, 0, 0, 0, 0, time.UTC),
				Multiples: map[string]float64{"EV/Revenue": 1.6, "EV/EBITDA": 8.8}},
			{EntityID: "TXN-2025-019", IndustryCode: "manufacturing", DealSize: 310,
				Date:      time.Date(2025, 5, 8, 0, 0, 0, 0, time.UTC),
				Multiples: map[string]float64{"EV/Revenue": 1.1, "EV/EBITDA": 6.9}},
		},
	}
}

func (p *DamodaranStatic) Name() string { return "damodaran" }

func (p *DamodaranStatic) GetComparableCompanies(ctx context.Context, c Criteria) (valuation.ComparableSet, error) {
	return filter(valuation.KindPublicCompany, p.comps, c), nil
}

func (p *DamodaranStatic) GetTransactions(ctx context.Context, c Criteria) (valuation.ComparableSet, error) {
	return filter(valuation.KindTransaction, p.deals, c), nil
}

func (p *DamodaranStatic) GetRiskFreeRate(ctx context.Context) (float64, error) {
	return p.riskFreeRate, nil
}

func (p *DamodaranStatic) GetEquityRiskPremium(ctx context.Context) (float64, error) {
	return p.erp, nil
}

// GetIndustryBeta falls back to 1.0 for industries outside the snapshot.
func (p *DamodaranStatic) GetIndustryBeta(ctx context.Context, industryCode string) (float64, error) {
	if b, ok := p.betas[strings.ToLower(industryCode)]; ok {
		return b, nil
	}
	return 1.0, nil
}

func filter(kind valuation.SetKind, items []valuation.Comparable, c Criteria) valuation.ComparableSet {
	out := valuation.ComparableSet{Kind: kind}
	for _, item := range items {
		if c.IndustryCode != "" && item.IndustryCode != c.IndustryCode {
			continue
		}
		if c.MinSize > 0 && item.DealSize < c.MinSize {
			continue
		}
		if c.MaxSize > 0 && item.DealSize > c.MaxSize {
			continue
		}
		if !c.After.IsZero() && !item.Date.IsZero() && item.Date.Before(c.After) {
			continue
		}
		if !c.Before.IsZero() && !item.Date.IsZero() && item.Date.After(c.Before) {
			continue
		}
		out.Items = append(out.Items, item)
		if c.Limit > 0 && len(out.Items) >= c.Limit {
			break
		}
	}
	return out
}
