package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"valuation_workbench/pkg/core/validate"
)

// IssueRepository persists the validation issue log per engagement. Issues
// are keyed by (engagement, rule, item, year); saving again replaces the
// issue body, which is how accept/override transitions are recorded.
type IssueRepository interface {
	SaveAll(ctx context.Context, engagementID string, issues []validate.Issue) error
	ListByEngagement(ctx context.Context, engagementID string) ([]validate.Issue, error)
	Update(ctx context.Context, engagementID string, issue validate.Issue) error
}

// IssueRepo is the Postgres-backed IssueRepository.
//
// Schema assumption (managed by migrations):
//
//	CREATE TABLE IF NOT EXISTS validation_issues (
//	  engagement_id TEXT NOT NULL,
//	  rule_id TEXT NOT NULL,
//	  canonical_code TEXT NOT NULL DEFAULT '',
//	  fiscal_year INT NOT NULL DEFAULT 0,
//	  issue JSONB NOT NULL,
//	  PRIMARY KEY (engagement_id, rule_id, canonical_code, fiscal_year)
//	);
type IssueRepo struct{}

func NewIssueRepo() *IssueRepo {
	return &IssueRepo{}
}

func (r *IssueRepo) SaveAll(ctx context.Context, engagementID string, issues []validate.Issue) error {
	pool := GetPool()
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}
	batch := &pgx.Batch{}
	query := `
		INSERT INTO validation_issues (engagement_id, rule_id, canonical_code, fiscal_year, issue)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (engagement_id, rule_id, canonical_code, fiscal_year)
		DO UPDATE SET issue = EXCLUDED.issue;
	`
	for _, issue := range issues {
		body, err := json.Marshal(issue)
		if err != nil {
			return fmt.Errorf("failed to marshal issue %s: %w", issue.RuleID, err)
		}
		batch.Queue(query, engagementID, issue.RuleID, issue.Code, issue.FiscalYear, body)
	}
	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for range issues {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save issues: %w", err)
		}
	}
	return nil
}

func (r *IssueRepo) ListByEngagement(ctx context.Context, engagementID string) ([]validate.Issue, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}
	rows, err := pool.Query(ctx,
		`SELECT issue FROM validation_issues WHERE engagement_id = $1;`, engagementID)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var out []validate.Issue
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		var issue validate.Issue
		if err := json.Unmarshal(body, &issue); err != nil {
			return nil, fmt.Errorf("failed to unmarshal issue: %w", err)
		}
		out = append(out, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	validate.Sort(out)
	return out, nil
}

func (r *IssueRepo) Update(ctx context.Context, engagementID string, issue validate.Issue) error {
	return r.SaveAll(ctx, engagementID, []validate.Issue{issue})
}
