// Package jobs runs the long valuation stages off the request path. The API
// enqueues, the worker executes; the run ID travels in the payload so a
// retried job writes the same run, not a duplicate.
package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"valuation_workbench/pkg/core/normalize"
	"valuation_workbench/pkg/core/valuation"
)

const (
	// QueueDefault is the queue all valuation jobs run on.
	QueueDefault = "default"
	// TaskTypePrepare normalizes and validates an engagement's raw extraction.
	TaskTypePrepare = "engagement:prepare"
	// TaskTypeValuationRun executes a full valuation run.
	TaskTypeValuationRun = "valuation:run"
)

// PreparePayload carries one engagement's raw extracted line items.
type PreparePayload struct {
	EngagementID string                  `json:"engagement_id"`
	Items        []normalize.RawLineItem `json:"items"`
}

// NewPrepareTask constructs the normalization task.
func NewPrepareTask(payload PreparePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePrepare, data, asynq.Queue(QueueDefault)), nil
}

// ValuationRunPayload carries everything a run needs. RunID is assigned here,
// at enqueue time, so the engines stay deterministic.
type ValuationRunPayload struct {
	RunID        string                `json:"run_id"`
	EngagementID string                `json:"engagement_id"`
	Assumptions  valuation.Assumptions `json:"assumptions"`
	IndustryCode string                `json:"industry_code"`
}

// NewValuationRunTask constructs a run task with a fresh run ID.
func NewValuationRunTask(engagementID string, assumptions valuation.Assumptions, industryCode string) (*asynq.Task, string, error) {
	payload := ValuationRunPayload{
		RunID:        uuid.NewString(),
		EngagementID: engagementID,
		Assumptions:  assumptions,
		IndustryCode: industryCode,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	// TaskID pins deduplication to the run, so a double-enqueue of the same
	// run is rejected by the broker.
	task := asynq.NewTask(TaskTypeValuationRun, data,
		asynq.Queue(QueueDefault), asynq.TaskID(payload.RunID))
	return task, payload.RunID, nil
}
