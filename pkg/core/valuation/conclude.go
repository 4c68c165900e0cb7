package valuation

import (
	"fmt"
	"math"
	"sort"
)

// MethodWeights maps method name ("dcf", "gpcm", "gtm") to its conclusion
// weight. Weights must be non-negative and sum to 1 within WeightTolerance.
type MethodWeights map[string]float64

// Validate checks the configured weights before any renormalization.
func (w MethodWeights) Validate() error {
	sum := 0.0
	for name, v := range w {
		if v < 0 {
			return invalidAssumptions(fmt.Sprintf("method weight %s is negative: %.4f", name, v))
		}
		sum += v
	}
	if math.Abs(sum-1) > WeightTolerance {
		return invalidAssumptions(fmt.Sprintf("method weights sum to %.4f, expected 1.0", sum))
	}
	return nil
}

// Conclusion is the weighted reconciliation of the method outcomes.
type Conclusion struct {
	EnterpriseValue  float64            `json:"enterprise_value"`
	EquityValue      float64            `json:"equity_value"`
	EffectiveWeights MethodWeights      `json:"effective_weights"` // after renormalization
	MethodValues     map[string]float64 `json:"method_values"`     // EV basis per method
}

// ValuationResult is the full output of one valuation run.
type ValuationResult struct {
	RunID        string            `json:"run_id"`
	WACC         *WACCResult       `json:"wacc,omitempty"`
	DCF          *DCFResult        `json:"dcf,omitempty"`
	GPCM         *MethodResult     `json:"gpcm,omitempty"`
	GTM          *MethodResult     `json:"gtm,omitempty"`
	MethodErrors map[string]string `json:"method_errors,omitempty"`
	Weights      MethodWeights     `json:"configured_weights"`
	Concluded    *Conclusion       `json:"concluded,omitempty"`
}

// Conclude blends the surviving method values. A method that failed drops
// out and its weight is redistributed pro rata across the survivors; the
// run only fails when every weighted method failed. NetDebt bridges the
// concluded enterprise value to equity.
func Conclude(weights MethodWeights, dcf *DCFResult, gpcm, gtm *MethodResult, netDebt float64) (*Conclusion, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	values := map[string]float64{}
	if dcf != nil {
		values["dcf"] = dcf.EnterpriseValue
	}
	if gpcm != nil {
		values["gpcm"] = gpcm.EVMedian
	}
	if gtm != nil {
		values["gtm"] = gtm.EVMedian
	}

	surviving := 0.0
	for name, w := range weights {
		if _, ok := values[name]; ok && w > 0 {
			surviving += w
		}
	}
	if surviving == 0 {
		return nil, invalidAssumptions("no weighted valuation method produced a result")
	}

	c := &Conclusion{
		EffectiveWeights: MethodWeights{},
		MethodValues:     values,
	}
	// Deterministic accumulation order.
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w := weights[name]
		v, ok := values[name]
		if !ok || w == 0 {
			continue
		}
		eff := w / surviving
		c.EffectiveWeights[name] = eff
		c.EnterpriseValue += eff * v
	}
	c.EquityValue = c.EnterpriseValue - netDebt
	return c, nil
}
