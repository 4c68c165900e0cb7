package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"valuation_workbench/pkg/core/validate"
	"valuation_workbench/pkg/core/valuation"
)

// SummaryInput bundles what the narrative summary covers.
type SummaryInput struct {
	EngagementID string
	CompanyName  string
	Result       *valuation.ValuationResult
	Issues       []validate.Issue
}

// BuildSummaryMarkdown writes the reviewer-facing run summary: concluded
// values, method detail, assumptions provenance, and the open-issue log.
func BuildSummaryMarkdown(in SummaryInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Valuation Summary: %s\n\n", in.CompanyName)
	fmt.Fprintf(&b, "Engagement `%s`", in.EngagementID)
	if in.Result != nil {
		fmt.Fprintf(&b, " — run `%s`", in.Result.RunID)
	}
	b.WriteString("\n\n")

	if in.Result != nil && in.Result.Concluded != nil {
		c := in.Result.Concluded
		b.WriteString("## Conclusion\n\n")
		fmt.Fprintf(&b, "- **Enterprise value:** %.0f\n", c.EnterpriseValue)
		fmt.Fprintf(&b, "- **Equity value:** %.0f\n\n", c.EquityValue)

		b.WriteString("| Method | Enterprise Value | Effective Weight |\n")
		b.WriteString("|---|---:|---:|\n")
		for _, m := range []string{"dcf", "gpcm", "gtm"} {
			v, ok := c.MethodValues[m]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "| %s | %.0f | %.1f%% |\n", strings.ToUpper(m), v, c.EffectiveWeights[m]*100)
		}
		b.WriteString("\n")
	}

	if in.Result != nil {
		writeMethodSections(&b, in.Result)
		if len(in.Result.MethodErrors) > 0 {
			b.WriteString("## Method Failures\n\n")
			for _, m := range []string{"dcf", "gpcm", "gtm"} {
				if msg, ok := in.Result.MethodErrors[m]; ok {
					fmt.Fprintf(&b, "- **%s:** %s (weight redistributed)\n", strings.ToUpper(m), msg)
				}
			}
			b.WriteString("\n")
		}
	}

	writeIssueLog(&b, in.Issues)
	return b.String()
}

func writeMethodSections(b *strings.Builder, r *valuation.ValuationResult) {
	if r.WACC != nil {
		b.WriteString("## Discount Rate\n\n")
		fmt.Fprintf(b, "- Cost of equity: %.2f%%\n", r.WACC.CostOfEquity*100)
		fmt.Fprintf(b, "- After-tax cost of debt: %.2f%%\n", r.WACC.AfterTaxCostOfDebt*100)
		fmt.Fprintf(b, "- **WACC: %.2f%%**\n\n", r.WACC.WACC*100)
	}
	if r.DCF != nil {
		b.WriteString("## Income Approach (DCF)\n\n")
		fmt.Fprintf(b, "- PV of forecast cash flows: %.0f\n", r.DCF.PVForecastFCF)
		fmt.Fprintf(b, "- PV of terminal value: %.0f (%s)\n", r.DCF.PVTerminalValue, r.DCF.TerminalMethod)
		fmt.Fprintf(b, "- Enterprise value: %.0f\n\n", r.DCF.EnterpriseValue)
	}
	for _, m := range []*valuation.MethodResult{r.GPCM, r.GTM} {
		if m == nil {
			continue
		}
		title := "Guideline Public Company Method"
		if m.Method == "gtm" {
			title = "Guideline Transaction Method"
		}
		fmt.Fprintf(b, "## %s\n\n", title)
		fmt.Fprintf(b, "- Comparables used: %d\n", m.ComparablesUsed)
		fmt.Fprintf(b, "- Applied adjustment: %+.1f%%\n", m.AppliedAdjustment*100)
		fmt.Fprintf(b, "- Indicated range: %.0f — %.0f (median %.0f)\n\n", m.EVMin, m.EVMax, m.EVMedian)
	}
}

func writeIssueLog(b *strings.Builder, issues []validate.Issue) {
	if len(issues) == 0 {
		return
	}
	b.WriteString("## Validation Issues\n\n")
	b.WriteString("| Severity | Rule | Item | Year | Status |\n")
	b.WriteString("|---|---|---|---:|---|\n")
	for _, is := range issues {
		fmt.Fprintf(b, "| %s | %s | %s | %d | %s |\n",
			is.Severity, is.RuleID, is.Code, is.FiscalYear, is.Status)
	}
	b.WriteString("\n")
}

// RenderSummaryHTML converts the markdown summary to HTML for the review
// portal.
func RenderSummaryHTML(in SummaryInput) ([]byte, error) {
	var out bytes.Buffer
	if err := goldmark.Convert([]byte(BuildSummaryMarkdown(in)), &out); err != nil {
		return nil, fmt.Errorf("render summary: %w", err)
	}
	return out.Bytes(), nil
}
