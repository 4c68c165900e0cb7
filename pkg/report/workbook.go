// Package report renders run artifacts for reviewers: a formula-linked
// Excel workbook and an HTML summary. The workbook is not a value dump;
// assumption cells are named ranges and every derived cell carries a live
// formula, so an analyst can flex inputs in Excel and watch the valuation
// move without re-running the engine.
package report

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"valuation_workbench/pkg/core/coa"
	"valuation_workbench/pkg/core/statement"
	"valuation_workbench/pkg/core/valuation"
)

// Workbook sheet names, in tab order.
const (
	sheetCover       = "Cover"
	sheetAssumptions = "Assumptions"
	sheetIncome      = "Income Statement"
	sheetBalance     = "Balance Sheet"
	sheetCashFlow    = "Cash Flow"
	sheetForecast    = "Forecast"
	sheetValuation   = "Valuation"
	sheetSensitivity = "Sensitivity"
)

// WorkbookInput bundles everything a workbook render needs.
type WorkbookInput struct {
	EngagementID string
	CompanyName  string
	Statement    *statement.NormalizedStatement
	Assumptions  valuation.Assumptions
	ForecastFCF  []float64
	Result       *valuation.ValuationResult
}

// BuildWorkbook renders the full engagement workbook.
func BuildWorkbook(in WorkbookInput) (*excelize.File, error) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", sheetCover)

	if err := writeCover(f, in); err != nil {
		return nil, err
	}
	if err := writeAssumptions(f, in); err != nil {
		return nil, err
	}
	reg := coa.Get()
	if err := writeStatementSheet(f, sheetIncome, coa.StatementIncome, reg, in.Statement); err != nil {
		return nil, err
	}
	if err := writeStatementSheet(f, sheetBalance, coa.StatementBalance, reg, in.Statement); err != nil {
		return nil, err
	}
	if err := writeStatementSheet(f, sheetCashFlow, coa.StatementCashFlow, reg, in.Statement); err != nil {
		return nil, err
	}
	if err := writeForecast(f, in); err != nil {
		return nil, err
	}
	if err := writeValuation(f, in); err != nil {
		return nil, err
	}
	if err := writeSensitivity(f, in); err != nil {
		return nil, err
	}
	return f, nil
}

func writeCover(f *excelize.File, in WorkbookInput) error {
	rows := [][]interface{}{
		{"Valuation Workbench"},
		{},
		{"Engagement", in.EngagementID},
		{"Company", in.CompanyName},
	}
	if in.Result != nil {
		rows = append(rows, []interface{}{"Run ID", in.Result.RunID})
		if c := in.Result.Concluded; c != nil {
			rows = append(rows,
				[]interface{}{"Concluded Enterprise Value", c.EnterpriseValue},
				[]interface{}{"Concluded Equity Value", c.EquityValue})
		}
	}
	return writeRows(f, sheetCover, rows)
}

// assumption cell layout on the Assumptions sheet; each value cell gets a
// workbook-scoped defined name so valuation formulas read naturally.
var assumptionNames = []struct {
	Label string
	Name  string
}{
	{"Risk-Free Rate", "RiskFreeRate"},
	{"Equity Risk Premium", "EquityRiskPremium"},
	{"Beta (levered)", "Beta"},
	{"Size Premium", "SizePremium"},
	{"Company-Specific Premium", "CompanyPremium"},
	{"Pre-Tax Cost of Debt", "CostOfDebt"},
	{"Tax Rate", "TaxRate"},
	{"Weight of Equity", "WeightEquity"},
	{"Weight of Debt", "WeightDebt"},
	{"Terminal Growth Rate", "TerminalGrowth"},
	{"Exit Multiple", "ExitMultiple"},
	{"Net Debt", "NetDebt"},
}

func writeAssumptions(f *excelize.File, in WorkbookInput) error {
	if _, err := f.NewSheet(sheetAssumptions); err != nil {
		return err
	}
	a := in.Assumptions
	values := map[string]float64{
		"RiskFreeRate":      a.RiskFreeRate,
		"EquityRiskPremium": a.EquityRiskPremium,
		"Beta":              a.Beta,
		"SizePremium":       a.SizePremium,
		"CompanyPremium":    a.CompanySpecificPremium,
		"CostOfDebt":        a.CostOfDebt,
		"TaxRate":           a.TaxRate,
		"WeightEquity":      a.EquityWeight,
		"WeightDebt":        a.DebtWeight,
		"NetDebt":           netDebt(in),
	}
	if a.TerminalGrowthRate != nil {
		values["TerminalGrowth"] = *a.TerminalGrowthRate
	}
	if a.ExitMultiple != nil {
		values["ExitMultiple"] = *a.ExitMultiple
	}

	if err := f.SetCellValue(sheetAssumptions, "A1", "Assumption"); err != nil {
		return err
	}
	if err := f.SetCellValue(sheetAssumptions, "B1", "Value"); err != nil {
		return err
	}
	for i, def := range assumptionNames {
		row := i + 2
		if err := f.SetCellValue(sheetAssumptions, fmt.Sprintf("A%d", row), def.Label); err != nil {
			return err
		}
		cell := fmt.Sprintf("B%d", row)
		if err := f.SetCellValue(sheetAssumptions, cell, values[def.Name]); err != nil {
			return err
		}
		err := f.SetDefinedName(&excelize.DefinedName{
			Name:     def.Name,
			RefersTo: fmt.Sprintf("'%s'!$B$%d", sheetAssumptions, row),
			Scope:    "Workbook",
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// writeStatementSheet lays out one financial statement: line items down,
// fiscal years across, subtotal rows as SUM-style formulas over their
// component rows so the statement stays live.
func writeStatementSheet(f *excelize.File, sheet string, st coa.StatementType, reg *coa.Registry, stmt *statement.NormalizedStatement) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	var items []coa.LineItem
	for _, it := range reg.Items() {
		if it.Statement == st {
			items = append(items, it)
		}
	}
	rowOf := map[string]int{}
	for i, it := range items {
		rowOf[it.Code] = i + 2
	}

	if err := f.SetCellValue(sheet, "A1", "Line Item"); err != nil {
		return err
	}
	for ci, p := range stmt.Periods {
		col, err := excelize.ColumnNumberToName(ci + 2)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, col+"1", p.FiscalYear); err != nil {
			return err
		}
		for _, it := range items {
			cell := fmt.Sprintf("%s%d", col, rowOf[it.Code])
			if it.IsSubtotal {
				formula := subtotalFormula(it, rowOf, col)
				if formula != "" {
					if err := f.SetCellFormula(sheet, cell, formula); err != nil {
						return err
					}
					continue
				}
			}
			if v, ok := p.Value(it.Code); ok {
				fv, _ := v.Float64()
				if err := f.SetCellValue(sheet, cell, fv); err != nil {
					return err
				}
			}
		}
	}
	for _, it := range items {
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", rowOf[it.Code]), it.DisplayName); err != nil {
			return err
		}
	}
	return nil
}

// subtotalFormula renders a formula's additive terms as cell references.
// Terms whose rows are missing from the sheet force a fallback to the
// computed value.
func subtotalFormula(it coa.LineItem, rowOf map[string]int, col string) string {
	terms := it.Terms()
	if len(terms) == 0 {
		return ""
	}
	out := "="
	for i, t := range terms {
		row, ok := rowOf[t.Code]
		if !ok {
			return ""
		}
		switch {
		case t.Negative:
			out += fmt.Sprintf("-%s%d", col, row)
		case i > 0:
			out += fmt.Sprintf("+%s%d", col, row)
		default:
			out += fmt.Sprintf("%s%d", col, row)
		}
	}
	return out
}

func writeForecast(f *excelize.File, in WorkbookInput) error {
	if _, err := f.NewSheet(sheetForecast); err != nil {
		return err
	}
	rows := [][]interface{}{{"Year", "Free Cash Flow", "Discount Factor", "Present Value"}}
	if err := writeRows(f, sheetForecast, rows); err != nil {
		return err
	}
	var dcf *valuation.DCFResult
	if in.Result != nil {
		dcf = in.Result.DCF
	}
	for i, fcf := range in.ForecastFCF {
		row := i + 2
		if err := f.SetCellValue(sheetForecast, fmt.Sprintf("A%d", row), i+1); err != nil {
			return err
		}
		if err := f.SetCellValue(sheetForecast, fmt.Sprintf("B%d", row), fcf); err != nil {
			return err
		}
		if dcf == nil || i >= len(dcf.Exponents) {
			continue
		}
		// Discount factor stays live against the WACC cell on Valuation.
		df := fmt.Sprintf("=1/POWER(1+'%s'!$B$2,%g)", sheetValuation, dcf.Exponents[i])
		if err := f.SetCellFormula(sheetForecast, fmt.Sprintf("C%d", row), df); err != nil {
			return err
		}
		pv := fmt.Sprintf("=B%d*C%d", row, row)
		if err := f.SetCellFormula(sheetForecast, fmt.Sprintf("D%d", row), pv); err != nil {
			return err
		}
	}
	return nil
}

func writeValuation(f *excelize.File, in WorkbookInput) error {
	if _, err := f.NewSheet(sheetValuation); err != nil {
		return err
	}
	if err := f.SetCellValue(sheetValuation, "A1", "Cost of Equity"); err != nil {
		return err
	}
	if err := f.SetCellFormula(sheetValuation, "B1",
		"=RiskFreeRate+Beta*EquityRiskPremium+SizePremium+CompanyPremium"); err != nil {
		return err
	}
	if err := f.SetCellValue(sheetValuation, "A2", "WACC"); err != nil {
		return err
	}
	if err := f.SetCellFormula(sheetValuation, "B2",
		"=WeightEquity*B1+WeightDebt*CostOfDebt*(1-TaxRate)"); err != nil {
		return err
	}

	n := len(in.ForecastFCF)
	if err := f.SetCellValue(sheetValuation, "A4", "PV of Forecast FCF"); err != nil {
		return err
	}
	if n > 0 {
		pvSum := fmt.Sprintf("=SUM('%s'!D2:D%d)", sheetForecast, n+1)
		if err := f.SetCellFormula(sheetValuation, "B4", pvSum); err != nil {
			return err
		}
	}

	if err := f.SetCellValue(sheetValuation, "A5", "Terminal Value"); err != nil {
		return err
	}
	if in.Result != nil && in.Result.DCF != nil && n > 0 {
		dcf := in.Result.DCF
		var tv string
		switch dcf.TerminalMethod {
		case valuation.TerminalGordonGrowth:
			tv = fmt.Sprintf("='%s'!B%d*(1+TerminalGrowth)/(B2-TerminalGrowth)", sheetForecast, n+1)
		case valuation.TerminalExitMultiple:
			if err := f.SetCellValue(sheetValuation, "C5", "exit multiple basis"); err != nil {
				return err
			}
			tv = fmt.Sprintf("=ExitMultiple*%g", dcf.TerminalValue/derefOr(in.Assumptions.ExitMultiple, 1))
		}
		if tv != "" {
			if err := f.SetCellFormula(sheetValuation, "B5", tv); err != nil {
				return err
			}
		}
		if err := f.SetCellValue(sheetValuation, "A6", "PV of Terminal Value"); err != nil {
			return err
		}
		lastExp := dcf.Exponents[len(dcf.Exponents)-1]
		pvTV := fmt.Sprintf("=B5/POWER(1+B2,%g)", lastExp)
		if err := f.SetCellFormula(sheetValuation, "B6", pvTV); err != nil {
			return err
		}
		if err := f.SetCellValue(sheetValuation, "A7", "Enterprise Value (DCF)"); err != nil {
			return err
		}
		if err := f.SetCellFormula(sheetValuation, "B7", "=B4+B6"); err != nil {
			return err
		}
		if err := f.SetCellValue(sheetValuation, "A8", "Equity Value (DCF)"); err != nil {
			return err
		}
		if err := f.SetCellFormula(sheetValuation, "B8", "=B7-NetDebt"); err != nil {
			return err
		}
	}

	return writeMethodSummary(f, in)
}

// writeMethodSummary lists each method's EV, its effective weight, and the
// weighted conclusion, formula-linked so a reviewer can flex the weights.
func writeMethodSummary(f *excelize.File, in WorkbookInput) error {
	if in.Result == nil || in.Result.Concluded == nil {
		return nil
	}
	c := in.Result.Concluded

	start := 10
	if err := f.SetCellValue(sheetValuation, fmt.Sprintf("A%d", start), "Method"); err != nil {
		return err
	}
	if err := f.SetCellValue(sheetValuation, fmt.Sprintf("B%d", start), "Enterprise Value"); err != nil {
		return err
	}
	if err := f.SetCellValue(sheetValuation, fmt.Sprintf("C%d", start), "Weight"); err != nil {
		return err
	}

	methods := make([]string, 0, len(c.MethodValues))
	for m := range c.MethodValues {
		methods = append(methods, m)
	}
	sort.Strings(methods)

	row := start
	for _, m := range methods {
		row++
		if err := f.SetCellValue(sheetValuation, fmt.Sprintf("A%d", row), m); err != nil {
			return err
		}
		if m == "dcf" {
			if err := f.SetCellFormula(sheetValuation, fmt.Sprintf("B%d", row), "=B7"); err != nil {
				return err
			}
		} else if err := f.SetCellValue(sheetValuation, fmt.Sprintf("B%d", row), c.MethodValues[m]); err != nil {
			return err
		}
		if err := f.SetCellValue(sheetValuation, fmt.Sprintf("C%d", row), c.EffectiveWeights[m]); err != nil {
			return err
		}
	}

	row++
	if err := f.SetCellValue(sheetValuation, fmt.Sprintf("A%d", row), "Concluded Enterprise Value"); err != nil {
		return err
	}
	conclusion := fmt.Sprintf("=SUMPRODUCT(B%d:B%d,C%d:C%d)", start+1, row-1, start+1, row-1)
	if err := f.SetCellFormula(sheetValuation, fmt.Sprintf("B%d", row), conclusion); err != nil {
		return err
	}
	row++
	if err := f.SetCellValue(sheetValuation, fmt.Sprintf("A%d", row), "Concluded Equity Value"); err != nil {
		return err
	}
	return f.SetCellFormula(sheetValuation, fmt.Sprintf("B%d", row), fmt.Sprintf("=B%d-NetDebt", row-1))
}

func writeSensitivity(f *excelize.File, in WorkbookInput) error {
	if in.Result == nil || in.Result.DCF == nil || in.Result.DCF.Sensitivity == nil {
		return nil
	}
	if _, err := f.NewSheet(sheetSensitivity); err != nil {
		return err
	}
	grid := in.Result.DCF.Sensitivity

	if err := f.SetCellValue(sheetSensitivity, "A1", "WACC \\ Terminal Growth"); err != nil {
		return err
	}
	for gi, g := range grid.GrowthSteps {
		col, err := excelize.ColumnNumberToName(gi + 2)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetSensitivity, col+"1", g); err != nil {
			return err
		}
	}
	for wi, w := range grid.WACCSteps {
		row := wi + 2
		if err := f.SetCellValue(sheetSensitivity, fmt.Sprintf("A%d", row), w); err != nil {
			return err
		}
		for gi := range grid.GrowthSteps {
			cell := grid.EV[wi][gi]
			col, err := excelize.ColumnNumberToName(gi + 2)
			if err != nil {
				return err
			}
			ref := fmt.Sprintf("%s%d", col, row)
			if cell == nil {
				if err := f.SetCellValue(sheetSensitivity, ref, "n/m"); err != nil {
					return err
				}
				continue
			}
			if err := f.SetCellValue(sheetSensitivity, ref, *cell); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for ri, row := range rows {
		for ci, v := range row {
			cell, err := excelize.CoordinatesToCellName(ci+1, ri+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func netDebt(in WorkbookInput) float64 {
	if in.Statement == nil {
		return 0
	}
	m, err := in.Statement.LatestMetrics()
	if err != nil {
		return 0
	}
	return m.NetDebt
}

func derefOr(p *float64, fallback float64) float64 {
	if p == nil || *p == 0 {
		return fallback
	}
	return *p
}
