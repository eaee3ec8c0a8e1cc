package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coursebridge-io/equivalency-engine/pkg/apperrors"
	"github.com/coursebridge-io/equivalency-engine/pkg/database"
	"github.com/coursebridge-io/equivalency-engine/pkg/models"
)

// DecisionResultRepository provides data access for decision results. One
// result per decision run, written exactly once when the run completes.
type DecisionResultRepository interface {
	Create(ctx context.Context, result *models.DecisionResult) error
	GetByRunID(ctx context.Context, runID uuid.UUID) (*models.DecisionResult, error)
	// GetLatestByCase returns the result of the most recent completed
	// decision run for the case, or (nil, nil) when none exists.
	GetLatestByCase(ctx context.Context, caseID uuid.UUID) (*models.DecisionResult, error)
}

type decisionResultRepository struct {
	db *database.DB
}

// NewDecisionResultRepository creates a new DecisionResultRepository.
func NewDecisionResultRepository(db *database.DB) DecisionResultRepository {
	return &decisionResultRepository{db: db}
}

var _ DecisionResultRepository = (*decisionResultRepository)(nil)

func (r *decisionResultRepository) Create(ctx context.Context, result *models.DecisionResult) error {
	result.CreatedAt = time.Now()

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal decision result: %w", err)
	}
	var missing []byte
	if len(result.MissingFields) > 0 {
		if missing, err = json.Marshal(result.MissingFields); err != nil {
			return fmt.Errorf("failed to marshal missing fields: %w", err)
		}
	}

	_, err = r.db.Querier(ctx).Exec(ctx,
		`INSERT INTO decision_results (decision_run_id, result_json, needs_more_info, missing_fields, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		result.DecisionRunID, payload, result.NeedsMoreInfo, missing, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create decision result: %w", err)
	}
	return nil
}

func (r *decisionResultRepository) GetByRunID(ctx context.Context, runID uuid.UUID) (*models.DecisionResult, error) {
	row := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT result_json FROM decision_results WHERE decision_run_id = $1`, runID)
	result, err := scanDecisionResult(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("decision result for run %s: %w", runID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get decision result: %w", err)
	}
	return result, nil
}

func (r *decisionResultRepository) GetLatestByCase(ctx context.Context, caseID uuid.UUID) (*models.DecisionResult, error) {
	row := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT dr.result_json
		 FROM decision_results dr
		 JOIN decision_runs run ON run.decision_run_id = dr.decision_run_id
		 WHERE run.case_id = $1 AND run.status = $2
		 ORDER BY run.created_at DESC
		 LIMIT 1`, caseID, models.RunStatusCompleted)
	result, err := scanDecisionResult(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // no completed decision yet
		}
		return nil, fmt.Errorf("failed to get latest decision result: %w", err)
	}
	return result, nil
}

func scanDecisionResult(row pgx.Row) (*models.DecisionResult, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		return nil, err
	}
	var result models.DecisionResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision result: %w", err)
	}
	return &result, nil
}
