package valuation

import (
	"fmt"
	"sort"
	"time"
)

// SetKind tags a comparable set by origin.
type SetKind string

const (
	KindPublicCompany SetKind = "public_company" // GPCM
	KindTransaction   SetKind = "transaction"    // GTM
)

// Comparable is one peer company or precedent transaction with
// pre-normalized valuation multiples (e.g. "EV/EBITDA" -> 8.2). Adjustment
// is an optional comparability factor applied multiplicatively to each
// multiple before aggregation (0 = none, 0.10 = +10%).
type Comparable struct {
	EntityID   string             `json:"entity_id"`
	Multiples  map[string]float64 `json:"multiples"`
	Adjustment float64            `json:"adjustment,omitempty"`

	// Transaction-only attributes used by the GTM pre-filter.
	Date         time.Time `json:"date,omitempty"`
	DealSize     float64   `json:"deal_size,omitempty"`
	IndustryCode string    `json:"industry_code,omitempty"`
}

// ComparableSet is an ordered peer or transaction set.
type ComparableSet struct {
	Kind  SetKind      `json:"kind"`
	Items []Comparable `json:"items"`
}

// SubjectMetrics are the subject company figures the multiples apply to.
type SubjectMetrics struct {
	Revenue     float64 `json:"revenue"`
	EBITDA      float64 `json:"ebitda"`
	NetIncome   float64 `json:"net_income"`
	GrossProfit float64 `json:"gross_profit"`
	BookValue   float64 `json:"book_value"`
}

// metricFor maps a multiple name to the subject metric it capitalizes.
func (m SubjectMetrics) metricFor(multiple string) (float64, bool) {
	switch multiple {
	case "EV/Revenue":
		return m.Revenue, m.Revenue != 0
	case "EV/EBITDA":
		return m.EBITDA, m.EBITDA != 0
	case "EV/GrossProfit":
		return m.GrossProfit, m.GrossProfit != 0
	case "P/E":
		return m.NetIncome, m.NetIncome != 0
	case "P/B":
		return m.BookValue, m.BookValue != 0
	}
	return 0, false
}

// MultipleDetail is the per-multiple aggregation detail kept for the
// workbook and reviewer display.
type MultipleDetail struct {
	Multiples     []float64 `json:"comparable_multiples"` // adjusted, sorted ascending
	Median        float64   `json:"median"`
	Mean          float64   `json:"mean"`
	SubjectMetric float64   `json:"subject_metric"`
	ImpliedMin    float64   `json:"implied_min"`
	ImpliedMedian float64   `json:"implied_median"`
	ImpliedMax    float64   `json:"implied_max"`
}

// MethodResult is the outcome of one comparable-multiple method: a value
// range rather than a point estimate.
type MethodResult struct {
	Method            string                    `json:"method"` // "gpcm" or "gtm"
	EVMin             float64                   `json:"ev_min"`
	EVMedian          float64                   `json:"ev_median"`
	EVMax             float64                   `json:"ev_max"`
	AppliedAdjustment float64                   `json:"applied_adjustment"` // signed; negative = discount
	ByMultiple        map[string]MultipleDetail `json:"by_multiple"`
	ComparablesUsed   int                       `json:"comparables_used"`
}

// GPCMConfig tunes the public-company method. LiquidityDiscount is the
// marketability discount applied multiplicatively to implied values
// (0.25 = 25% haircut); public peers are more liquid than a private subject.
type GPCMConfig struct {
	Multiples         []string `yaml:"multiples"`
	LiquidityDiscount float64  `yaml:"liquidity_discount"`
}

// GTMConfig tunes the transaction method. ControlPremium is signed: positive
// applies a premium, negative a discount, zero disables — direction is a
// policy choice, not hardcoded.
type GTMConfig struct {
	Multiples      []string `yaml:"multiples"`
	ControlPremium float64  `yaml:"control_premium"`
	// Pre-aggregation filter. Zero values are unbounded.
	WindowStart   time.Time `yaml:"window_start"`
	WindowEnd     time.Time `yaml:"window_end"`
	SizeBandLow   float64   `yaml:"size_band_low"`  // multiple of subject size
	SizeBandHigh  float64   `yaml:"size_band_high"` // multiple of subject size
	IndustryCodes []string  `yaml:"industry_codes"`
	SubjectSize   float64   `yaml:"-"` // filled by the caller from subject metrics
}

// CalculateGPCM derives the implied enterprise-value range from guideline
// public companies. Fails with InsufficientComparables when no comparable
// yields a usable multiple.
func CalculateGPCM(subject SubjectMetrics, set ComparableSet, cfg GPCMConfig) (*MethodResult, error) {
	res, err := aggregate("gpcm", subject, set.Items, cfg.Multiples, -cfg.LiquidityDiscount)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// FilterTransactions applies the GTM pre-aggregation filter: date window,
// size band relative to the subject, and industry codes. Zero-valued filter
// fields are unbounded.
func FilterTransactions(set ComparableSet, cfg GTMConfig) ComparableSet {
	out := ComparableSet{Kind: set.Kind}
	industries := map[string]bool{}
	for _, c := range cfg.IndustryCodes {
		industries[c] = true
	}
	for _, c := range set.Items {
		if !cfg.WindowStart.IsZero() && c.Date.Before(cfg.WindowStart) {
			continue
		}
		if !cfg.WindowEnd.IsZero() && c.Date.After(cfg.WindowEnd) {
			continue
		}
		if cfg.SubjectSize > 0 && c.DealSize > 0 {
			if cfg.SizeBandLow > 0 && c.DealSize < cfg.SubjectSize*cfg.SizeBandLow {
				continue
			}
			if cfg.SizeBandHigh > 0 && c.DealSize > cfg.SubjectSize*cfg.SizeBandHigh {
				continue
			}
		}
		if len(industries) > 0 && !industries[c.IndustryCode] {
			continue
		}
		out.Items = append(out.Items, c)
	}
	return out
}

// CalculateGTM filters the transaction set and derives the implied
// enterprise-value range, applying the configured control-premium
// adjustment. Fails with InsufficientComparables when the filtered set is
// empty.
func CalculateGTM(subject SubjectMetrics, set ComparableSet, cfg GTMConfig) (*MethodResult, error) {
	filtered := FilterTransactions(set, cfg)
	if len(filtered.Items) == 0 {
		return nil, insufficientComparables("gtm")
	}
	return aggregate("gtm", subject, filtered.Items, cfg.Multiples, cfg.ControlPremium)
}

// aggregate computes per-multiple statistics and the blended range.
// adjustment is signed: implied values scale by (1 + adjustment).
func aggregate(method string, subject SubjectMetrics, comps []Comparable, multiples []string, adjustment float64) (*MethodResult, error) {
	if len(comps) == 0 {
		return nil, insufficientComparables(method)
	}
	if len(multiples) == 0 {
		return nil, invalidAssumptions(fmt.Sprintf("%s: no multiples configured", method))
	}

	res := &MethodResult{
		Method:            method,
		AppliedAdjustment: adjustment,
		ByMultiple:        map[string]MultipleDetail{},
		ComparablesUsed:   len(comps),
	}
	factor := 1 + adjustment

	var blendMin, blendMed, blendMax []float64
	for _, name := range multiples {
		metric, ok := subject.metricFor(name)
		if !ok {
			continue
		}
		var vals []float64
		for _, c := range comps {
			m, has := c.Multiples[name]
			if !has || m <= 0 {
				continue
			}
			vals = append(vals, m*(1+c.Adjustment))
		}
		if len(vals) == 0 {
			continue
		}
		sort.Float64s(vals)

		detail := MultipleDetail{
			Multiples:     vals,
			Median:        median(vals),
			Mean:          mean(vals),
			SubjectMetric: metric,
		}
		detail.ImpliedMin = metric * vals[0] * factor
		detail.ImpliedMedian = metric * detail.Median * factor
		detail.ImpliedMax = metric * vals[len(vals)-1] * factor
		res.ByMultiple[name] = detail

		blendMin = append(blendMin, detail.ImpliedMin)
		blendMed = append(blendMed, detail.ImpliedMedian)
		blendMax = append(blendMax, detail.ImpliedMax)
	}

	if len(blendMed) == 0 {
		return nil, insufficientComparables(method)
	}
	res.EVMin = mean(blendMin)
	res.EVMedian = mean(blendMed)
	res.EVMax = mean(blendMax)
	return res, nil
}

// median over a sorted slice.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
