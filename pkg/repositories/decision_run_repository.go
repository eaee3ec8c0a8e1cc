package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coursebridge-io/equivalency-engine/pkg/apperrors"
	"github.com/coursebridge-io/equivalency-engine/pkg/database"
	"github.com/coursebridge-io/equivalency-engine/pkg/models"
)

// DecisionRunRepository provides data access for decision runs. Same
// forward-only lifecycle as extraction runs.
type DecisionRunRepository interface {
	Create(ctx context.Context, run *models.DecisionRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DecisionRun, error)
	GetLatestByCase(ctx context.Context, caseID uuid.UUID) (*models.DecisionRun, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.DecisionRun, error)
	ListByStatus(ctx context.Context, status models.RunStatus) ([]*models.DecisionRun, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
}

type decisionRunRepository struct {
	db *database.DB
}

// NewDecisionRunRepository creates a new DecisionRunRepository.
func NewDecisionRunRepository(db *database.DB) DecisionRunRepository {
	return &decisionRunRepository{db: db}
}

var _ DecisionRunRepository = (*decisionRunRepository)(nil)

const decisionRunColumns = `decision_run_id, case_id, status, error_message, decision_inputs, created_at, started_at, finished_at`

func (r *decisionRunRepository) Create(ctx context.Context, run *models.DecisionRun) error {
	if !models.IsValidRunStatus(run.Status) {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidStatus, run.Status)
	}

	run.CreatedAt = time.Now()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	query := `
		INSERT INTO decision_runs (` + decisionRunColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		run.ID, run.CaseID, run.Status, run.ErrorMessage, run.Inputs,
		run.CreatedAt, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to create decision run: %w", err)
	}
	return nil
}

func (r *decisionRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DecisionRun, error) {
	row := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT `+decisionRunColumns+` FROM decision_runs WHERE decision_run_id = $1`, id)
	run, err := scanDecisionRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("decision run %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get decision run: %w", err)
	}
	return run, nil
}

func (r *decisionRunRepository) GetLatestByCase(ctx context.Context, caseID uuid.UUID) (*models.DecisionRun, error) {
	row := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT `+decisionRunColumns+` FROM decision_runs
		 WHERE case_id = $1 ORDER BY created_at DESC LIMIT 1`, caseID)
	run, err := scanDecisionRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // no run yet
		}
		return nil, fmt.Errorf("failed to get latest decision run: %w", err)
	}
	return run, nil
}

func (r *decisionRunRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.DecisionRun, error) {
	rows, err := r.db.Querier(ctx).Query(ctx,
		`SELECT `+decisionRunColumns+` FROM decision_runs
		 WHERE case_id = $1 ORDER BY created_at ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decision runs: %w", err)
	}
	return collectDecisionRuns(rows)
}

func (r *decisionRunRepository) ListByStatus(ctx context.Context, status models.RunStatus) ([]*models.DecisionRun, error) {
	if !models.IsValidRunStatus(status) {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidStatus, status)
	}
	rows, err := r.db.Querier(ctx).Query(ctx,
		`SELECT `+decisionRunColumns+` FROM decision_runs
		 WHERE status = $1 ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list decision runs by status: %w", err)
	}
	return collectDecisionRuns(rows)
}

func (r *decisionRunRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE decision_runs SET status = $2, started_at = $3
		 WHERE decision_run_id = $1 AND status = $4`,
		id, models.RunStatusRunning, time.Now(), models.RunStatusQueued)
	if err != nil {
		return fmt.Errorf("failed to mark decision run running: %w", err)
	}
	return r.checkRunUpdated(ctx, tag.RowsAffected(), id)
}

func (r *decisionRunRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE decision_runs SET status = $2, finished_at = $3
		 WHERE decision_run_id = $1 AND status = $4`,
		id, models.RunStatusCompleted, time.Now(), models.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark decision run completed: %w", err)
	}
	return r.checkRunUpdated(ctx, tag.RowsAffected(), id)
}

func (r *decisionRunRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	tag, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE decision_runs SET status = $2, finished_at = $3, error_message = $4
		 WHERE decision_run_id = $1 AND status IN ($5, $6)`,
		id, models.RunStatusFailed, time.Now(), errorMessage, models.RunStatusQueued, models.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark decision run failed: %w", err)
	}
	return r.checkRunUpdated(ctx, tag.RowsAffected(), id)
}

func (r *decisionRunRepository) checkRunUpdated(ctx context.Context, affected int64, id uuid.UUID) error {
	if affected > 0 {
		return nil
	}
	run, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return fmt.Errorf("decision run %s is %s: %w", id, run.Status, apperrors.ErrRunFinalized)
	}
	return fmt.Errorf("decision run %s in status %s: %w", id, run.Status, apperrors.ErrConflict)
}

func scanDecisionRun(row pgx.Row) (*models.DecisionRun, error) {
	var run models.DecisionRun
	if err := row.Scan(&run.ID, &run.CaseID, &run.Status, &run.ErrorMessage,
		&run.Inputs, &run.CreatedAt, &run.StartedAt, &run.FinishedAt); err != nil {
		return nil, err
	}
	return &run, nil
}

func collectDecisionRuns(rows pgx.Rows) ([]*models.DecisionRun, error) {
	defer rows.Close()
	var runs []*models.DecisionRun
	for rows.Next() {
		run, err := scanDecisionRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
