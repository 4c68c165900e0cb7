package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"valuation_workbench/pkg/core/valuation"
)

const webUserAgent = "ValuationWorkbench research@valuation-workbench.dev"

// PublicWebProvider scrapes comparable multiples and market rates from
// published screener pages. Every request carries the caller's context, so
// the pipeline's timeout bounds the scrape.
type PublicWebProvider struct {
	baseURL string
	client  *http.Client
}

// NewPublicWebProvider targets the given screener base URL. A zero timeout
// defaults to 30 seconds.
func NewPublicWebProvider(baseURL string, timeout time.Duration) *PublicWebProvider {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &PublicWebProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *PublicWebProvider) Name() string { return "web" }

func (p *PublicWebProvider) GetComparableCompanies(ctx context.Context, c Criteria) (valuation.ComparableSet, error) {
	doc, err := p.fetch(ctx, fmt.Sprintf("%s/screener/companies?industry=%s", p.baseURL, c.IndustryCode))
	if err != nil {
		return valuation.ComparableSet{}, err
	}
	set := valuation.ComparableSet{Kind: valuation.KindPublicCompany}
	doc.Find("table.screener tbody tr").Each(func(_ int, row *goquery.Selection) {
		comp := valuation.Comparable{
			EntityID:     strings.TrimSpace(row.Find("td.ticker").Text()),
			IndustryCode: c.IndustryCode,
			Multiples:    map[string]float64{},
		}
		if v, ok := cellFloat(row, "td.ev-revenue"); ok {
			comp.Multiples["EV/Revenue"] = v
		}
		if v, ok := cellFloat(row, "td.ev-ebitda"); ok {
			comp.Multiples["EV/EBITDA"] = v
		}
		if v, ok := cellFloat(row, "td.pe"); ok {
			comp.Multiples["P/E"] = v
		}
		if comp.EntityID != "" && len(comp.Multiples) > 0 {
			set.Items = append(set.Items, comp)
		}
	})
	return applyLimit(set, c.Limit), nil
}

func (p *PublicWebProvider) GetTransactions(ctx context.Context, c Criteria) (valuation.ComparableSet, error) {
	doc, err := p.fetch(ctx, fmt.Sprintf("%s/screener/transactions?industry=%s", p.baseURL, c.IndustryCode))
	if err != nil {
		return valuation.ComparableSet{}, err
	}
	set := valuation.ComparableSet{Kind: valuation.KindTransaction}
	doc.Find("table.screener tbody tr").Each(func(_ int, row *goquery.Selection) {
		comp := valuation.Comparable{
			EntityID:     strings.TrimSpace(row.Find("td.deal-id").Text()),
			IndustryCode: c.IndustryCode,
			Multiples:    map[string]float64{},
		}
		if d, err := time.Parse("2006-01-02", strings.TrimSpace(row.Find("td.closed").Text())); err == nil {
			comp.Date = d
		}
		if v, ok := cellFloat(row, "td.deal-size"); ok {
			comp.DealSize = v
		}
		if v, ok := cellFloat(row, "td.ev-revenue"); ok {
			comp.Multiples["EV/Revenue"] = v
		}
		if v, ok := cellFloat(row, "td.ev-ebitda"); ok {
			comp.Multiples["EV/EBITDA"] = v
		}
		if comp.EntityID != "" && len(comp.Multiples) > 0 {
			set.Items = append(set.Items, comp)
		}
	})
	return applyLimit(set, c.Limit), nil
}

func (p *PublicWebProvider) GetRiskFreeRate(ctx context.Context) (float64, error) {
	return p.scrapeRate(ctx, "/rates/treasury-10y")
}

func (p *PublicWebProvider) GetEquityRiskPremium(ctx context.Context) (float64, error) {
	return p.scrapeRate(ctx, "/rates/equity-risk-premium")
}

func (p *PublicWebProvider) GetIndustryBeta(ctx context.Context, industryCode string) (float64, error) {
	return p.scrapeRate(ctx, "/betas/"+industryCode)
}

// scrapeRate reads a single percentage figure and returns it as a decimal.
func (p *PublicWebProvider) scrapeRate(ctx context.Context, path string) (float64, error) {
	doc, err := p.fetch(ctx, p.baseURL+path)
	if err != nil {
		return 0, err
	}
	raw := strings.TrimSpace(doc.Find("span.rate-value").First().Text())
	raw = strings.TrimSuffix(raw, "%")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unparseable rate %q at %s", ErrProviderUnavailable, raw, path)
	}
	if strings.Contains(path, "betas") {
		return v, nil
	}
	return v / 100, nil
}

func (p *PublicWebProvider) fetch(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", webUserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d from %s", ErrProviderUnavailable, resp.StatusCode, url)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return doc, nil
}

func cellFloat(row *goquery.Selection, selector string) (float64, bool) {
	raw := strings.TrimSpace(row.Find(selector).Text())
	raw = strings.ReplaceAll(raw, ",", "")
	raw = strings.TrimSuffix(raw, "x")
	if raw == "" || raw == "-" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func applyLimit(set valuation.ComparableSet, limit int) valuation.ComparableSet {
	if limit > 0 && len(set.Items) > limit {
		set.Items = set.Items[:limit]
	}
	return set
}
