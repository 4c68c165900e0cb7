// Offline runner: normalize a CSV of extracted line items, run the full
// valuation, and write the workbook and summary artifacts to disk. No
// database or queue; useful for engagements worked from a laptop.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"valuation_workbench/pkg/app"
	"valuation_workbench/pkg/core/coa"
	"valuation_workbench/pkg/core/forecast"
	"valuation_workbench/pkg/core/normalize"
	"valuation_workbench/pkg/core/pipeline"
	"valuation_workbench/pkg/core/valuation"
	"valuation_workbench/pkg/report"
)

func main() {
	var (
		engagementID = flag.String("engagement", "", "engagement identifier (required)")
		inputPath    = flag.String("input", "", "CSV of extracted line items: statement,label,fiscal_year,value (required)")
		assumptions  = flag.String("assumptions", "", "JSON file of valuation assumptions (required)")
		industry     = flag.String("industry", "", "subject industry code")
		outDir       = flag.String("out", "out", "artifact output directory")
	)
	flag.Parse()
	if *engagementID == "" || *inputPath == "" || *assumptions == "" {
		flag.Usage()
		os.Exit(2)
	}

	a, err := app.Bootstrap()
	if err != nil {
		slog.Error("bootstrap failed", "error", err.Error())
		os.Exit(1)
	}
	ctx := context.Background()

	items, err := readItems(*inputPath)
	if err != nil {
		a.Logger.Error("read input", "error", err.Error())
		os.Exit(1)
	}
	assum, err := readAssumptions(*assumptions)
	if err != nil {
		a.Logger.Error("read assumptions", "error", err.Error())
		os.Exit(1)
	}

	prep, err := a.Orchestrator.Prepare(ctx, *engagementID, items)
	if err != nil {
		a.Logger.Error("prepare failed", "error", err.Error())
		os.Exit(1)
	}
	for _, issue := range prep.Issues {
		fmt.Printf("[%s] %s %s: %s\n", issue.Severity, issue.RuleID, issue.Code, issue.Message)
	}

	result, err := a.Orchestrator.RunValuation(ctx, pipeline.RunInput{
		RunID:        uuid.NewString(),
		Statement:    prep.Statement,
		Issues:       prep.Issues,
		Assumptions:  assum,
		IndustryCode: *industry,
	})
	if err != nil {
		a.Logger.Error("valuation failed", "error", err.Error())
		os.Exit(1)
	}

	if err := writeArtifacts(a, *outDir, *engagementID, prep, assum, result); err != nil {
		a.Logger.Error("write artifacts", "error", err.Error())
		os.Exit(1)
	}
	if c := result.Concluded; c != nil {
		fmt.Printf("\nConcluded enterprise value: %.0f\nConcluded equity value: %.0f\n",
			c.EnterpriseValue, c.EquityValue)
	}
}

// readItems parses statement,label,fiscal_year,value rows. A header row is
// detected and skipped.
func readItems(path string) ([]normalize.RawLineItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	var items []normalize.RawLineItem
	for i, row := range rows {
		if len(row) < 4 {
			return nil, fmt.Errorf("row %d: expected 4 columns, got %d", i+1, len(row))
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(row[2]), "fiscal_year") {
			continue
		}
		year, err := strconv.Atoi(strings.TrimSpace(row[2]))
		if err != nil {
			return nil, fmt.Errorf("row %d: bad fiscal year %q", i+1, row[2])
		}
		value, err := decimal.NewFromString(strings.TrimSpace(row[3]))
		if err != nil {
			return nil, fmt.Errorf("row %d: bad value %q", i+1, row[3])
		}
		items = append(items, normalize.RawLineItem{
			Statement:  coa.StatementType(strings.TrimSpace(row[0])),
			Label:      strings.TrimSpace(row[1]),
			FiscalYear: year,
			Value:      value,
		})
	}
	return items, nil
}

func readAssumptions(path string) (valuation.Assumptions, error) {
	var a valuation.Assumptions
	raw, err := os.ReadFile(path)
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return a, fmt.Errorf("parse assumptions %s: %w", path, err)
	}
	return a, a.Validate()
}

func writeArtifacts(a *app.App, outDir, engagementID string, prep *pipeline.PrepareResult, assum valuation.Assumptions, result *valuation.ValuationResult) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	model, err := a.Policy.Forecast.New()
	if err != nil {
		return err
	}
	metrics, err := prep.Statement.LatestMetrics()
	if err != nil {
		return err
	}
	fcf, err := model.Forecast(forecast.Inputs{Base: metrics, Years: assum.ForecastYears})
	if err != nil {
		return err
	}

	wb, err := report.BuildWorkbook(report.WorkbookInput{
		EngagementID: engagementID,
		CompanyName:  engagementID,
		Statement:    prep.Statement,
		Assumptions:  assum,
		ForecastFCF:  fcf,
		Result:       result,
	})
	if err != nil {
		return err
	}
	xlsxPath := filepath.Join(outDir, fmt.Sprintf("valuation_%s.xlsx", result.RunID))
	if err := wb.SaveAs(xlsxPath); err != nil {
		return err
	}

	html, err := report.RenderSummaryHTML(report.SummaryInput{
		EngagementID: engagementID,
		CompanyName:  engagementID,
		Result:       result,
		Issues:       prep.Issues,
	})
	if err != nil {
		return err
	}
	htmlPath := filepath.Join(outDir, fmt.Sprintf("summary_%s.html", result.RunID))
	if err := os.WriteFile(htmlPath, html, 0644); err != nil {
		return err
	}

	a.Logger.Info("artifacts written", "workbook", xlsxPath, "summary", htmlPath)
	return nil
}
