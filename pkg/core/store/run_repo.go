package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"valuation_workbench/pkg/core/valuation"
)

// RunRepository persists valuation runs. Runs are append-only: a re-run gets
// a fresh run ID, never an update, so the audit trail stays intact.
type RunRepository interface {
	Save(ctx context.Context, engagementID string, assumptions valuation.Assumptions, result *valuation.ValuationResult) error
	Load(ctx context.Context, runID string) (*RunRecord, error)
	ListByEngagement(ctx context.Context, engagementID string) ([]RunRecord, error)
}

// RunRecord is one stored valuation run.
type RunRecord struct {
	RunID        string                     `json:"run_id"`
	EngagementID string                     `json:"engagement_id"`
	Assumptions  valuation.Assumptions      `json:"assumptions"`
	Result       *valuation.ValuationResult `json:"result"`
	CreatedAt    time.Time                  `json:"created_at"`
}

// RunRepo is the Postgres-backed RunRepository.
//
// Schema assumption (managed by migrations):
//
//	CREATE TABLE IF NOT EXISTS valuation_runs (
//	  run_id UUID PRIMARY KEY,
//	  engagement_id TEXT NOT NULL,
//	  assumptions JSONB NOT NULL,
//	  result JSONB NOT NULL,
//	  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX IF NOT EXISTS idx_valuation_runs_engagement
//	  ON valuation_runs (engagement_id, created_at DESC);
type RunRepo struct{}

func NewRunRepo() *RunRepo {
	return &RunRepo{}
}

func (r *RunRepo) Save(ctx context.Context, engagementID string, assumptions valuation.Assumptions, result *valuation.ValuationResult) error {
	pool := GetPool()
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}
	assumptionsJSON, err := json.Marshal(assumptions)
	if err != nil {
		return fmt.Errorf("failed to marshal assumptions: %w", err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		INSERT INTO valuation_runs (run_id, engagement_id, assumptions, result)
		VALUES ($1, $2, $3, $4);
	`
	if _, err := pool.Exec(ctx, query, result.RunID, engagementID, assumptionsJSON, resultJSON); err != nil {
		return fmt.Errorf("failed to save valuation run: %w", err)
	}
	return nil
}

func (r *RunRepo) Load(ctx context.Context, runID string) (*RunRecord, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}
	query := `
		SELECT run_id, engagement_id, assumptions, result, created_at
		FROM valuation_runs WHERE run_id = $1;
	`
	var rec RunRecord
	var assumptionsJSON, resultJSON []byte
	err := pool.QueryRow(ctx, query, runID).Scan(
		&rec.RunID, &rec.EngagementID, &assumptionsJSON, &resultJSON, &rec.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("valuation run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load valuation run: %w", err)
	}
	if err := json.Unmarshal(assumptionsJSON, &rec.Assumptions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assumptions: %w", err)
	}
	if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &rec, nil
}

func (r *RunRepo) ListByEngagement(ctx context.Context, engagementID string) ([]RunRecord, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}
	query := `
		SELECT run_id, engagement_id, assumptions, result, created_at
		FROM valuation_runs
		WHERE engagement_id = $1
		ORDER BY created_at DESC;
	`
	rows, err := pool.Query(ctx, query, engagementID)
	if err != nil {
		return nil, fmt.Errorf("failed to list valuation runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var assumptionsJSON, resultJSON []byte
		if err := rows.Scan(&rec.RunID, &rec.EngagementID, &assumptionsJSON, &resultJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan valuation run: %w", err)
		}
		if err := json.Unmarshal(assumptionsJSON, &rec.Assumptions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal assumptions: %w", err)
		}
		if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
