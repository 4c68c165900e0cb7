package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"valuation_workbench/pkg/core/statement"
)

// StatementRepository persists the normalized statement per engagement.
// One row per engagement: re-normalizing upserts so the valuation worker
// always loads the latest prepared data.
type StatementRepository interface {
	Save(ctx context.Context, stmt *statement.NormalizedStatement) error
	Load(ctx context.Context, engagementID string) (*statement.NormalizedStatement, error)
}

// StatementRepo is the Postgres-backed StatementRepository.
//
// Schema assumption (managed by migrations):
//
//	CREATE TABLE IF NOT EXISTS normalized_statements (
//	  engagement_id TEXT PRIMARY KEY,
//	  statement JSONB NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL
//	);
type StatementRepo struct{}

func NewStatementRepo() *StatementRepo {
	return &StatementRepo{}
}

func (r *StatementRepo) Save(ctx context.Context, stmt *statement.NormalizedStatement) error {
	pool := GetPool()
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}
	body, err := json.Marshal(stmt)
	if err != nil {
		return fmt.Errorf("failed to marshal statement: %w", err)
	}
	query := `
		INSERT INTO normalized_statements (engagement_id, statement, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (engagement_id)
		DO UPDATE SET statement = EXCLUDED.statement, updated_at = EXCLUDED.updated_at;
	`
	if _, err := pool.Exec(ctx, query, stmt.EngagementID, body, time.Now()); err != nil {
		return fmt.Errorf("failed to save statement: %w", err)
	}
	return nil
}

func (r *StatementRepo) Load(ctx context.Context, engagementID string) (*statement.NormalizedStatement, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}
	var body []byte
	err := pool.QueryRow(ctx,
		`SELECT statement FROM normalized_statements WHERE engagement_id = $1;`, engagementID).Scan(&body)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("no normalized statement for engagement %s", engagementID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load statement: %w", err)
	}
	var stmt statement.NormalizedStatement
	if err := json.Unmarshal(body, &stmt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal statement: %w", err)
	}
	return &stmt, nil
}
