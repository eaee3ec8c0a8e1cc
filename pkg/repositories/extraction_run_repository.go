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

// ExtractionRunRepository provides data access for extraction runs. Status
// moves forward only; a terminal run is immutable and a retry is a new row.
type ExtractionRunRepository interface {
	Create(ctx context.Context, run *models.ExtractionRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExtractionRun, error)
	GetLatestByCase(ctx context.Context, caseID uuid.UUID) (*models.ExtractionRun, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.ExtractionRun, error)
	ListByStatus(ctx context.Context, status models.RunStatus) ([]*models.ExtractionRun, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, manifestURI, manifestSHA256 *string) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
}

type extractionRunRepository struct {
	db *database.DB
}

// NewExtractionRunRepository creates a new ExtractionRunRepository.
func NewExtractionRunRepository(db *database.DB) ExtractionRunRepository {
	return &extractionRunRepository{db: db}
}

var _ ExtractionRunRepository = (*extractionRunRepository)(nil)

const extractionRunColumns = `extraction_run_id, case_id, status, error_message, manifest_uri, manifest_sha256, created_at, started_at, finished_at`

func (r *extractionRunRepository) Create(ctx context.Context, run *models.ExtractionRun) error {
	if !models.IsValidRunStatus(run.Status) {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidStatus, run.Status)
	}

	run.CreatedAt = time.Now()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	query := `
		INSERT INTO extraction_runs (` + extractionRunColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		run.ID, run.CaseID, run.Status, run.ErrorMessage,
		run.ManifestURI, run.ManifestSHA256, run.CreatedAt, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to create extraction run: %w", err)
	}
	return nil
}

func (r *extractionRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ExtractionRun, error) {
	row := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT `+extractionRunColumns+` FROM extraction_runs WHERE extraction_run_id = $1`, id)
	run, err := scanExtractionRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("extraction run %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get extraction run: %w", err)
	}
	return run, nil
}

func (r *extractionRunRepository) GetLatestByCase(ctx context.Context, caseID uuid.UUID) (*models.ExtractionRun, error) {
	row := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT `+extractionRunColumns+` FROM extraction_runs
		 WHERE case_id = $1 ORDER BY created_at DESC LIMIT 1`, caseID)
	run, err := scanExtractionRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // no run yet
		}
		return nil, fmt.Errorf("failed to get latest extraction run: %w", err)
	}
	return run, nil
}

func (r *extractionRunRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.ExtractionRun, error) {
	rows, err := r.db.Querier(ctx).Query(ctx,
		`SELECT `+extractionRunColumns+` FROM extraction_runs
		 WHERE case_id = $1 ORDER BY created_at ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list extraction runs: %w", err)
	}
	return collectExtractionRuns(rows)
}

func (r *extractionRunRepository) ListByStatus(ctx context.Context, status models.RunStatus) ([]*models.ExtractionRun, error) {
	if !models.IsValidRunStatus(status) {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidStatus, status)
	}
	rows, err := r.db.Querier(ctx).Query(ctx,
		`SELECT `+extractionRunColumns+` FROM extraction_runs
		 WHERE status = $1 ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list extraction runs by status: %w", err)
	}
	return collectExtractionRuns(rows)
}

func (r *extractionRunRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	tag, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE extraction_runs SET status = $2, started_at = $3
		 WHERE extraction_run_id = $1 AND status = $4`,
		id, models.RunStatusRunning, now, models.RunStatusQueued)
	if err != nil {
		return fmt.Errorf("failed to mark extraction run running: %w", err)
	}
	return r.checkRunUpdated(ctx, tag.RowsAffected(), id)
}

func (r *extractionRunRepository) MarkCompleted(ctx context.Context, id uuid.UUID, manifestURI, manifestSHA256 *string) error {
	now := time.Now()
	tag, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE extraction_runs
		 SET status = $2, finished_at = $3, manifest_uri = $4, manifest_sha256 = $5
		 WHERE extraction_run_id = $1 AND status = $6`,
		id, models.RunStatusCompleted, now, manifestURI, manifestSHA256, models.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark extraction run completed: %w", err)
	}
	return r.checkRunUpdated(ctx, tag.RowsAffected(), id)
}

func (r *extractionRunRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	now := time.Now()
	tag, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE extraction_runs SET status = $2, finished_at = $3, error_message = $4
		 WHERE extraction_run_id = $1 AND status IN ($5, $6)`,
		id, models.RunStatusFailed, now, errorMessage, models.RunStatusQueued, models.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark extraction run failed: %w", err)
	}
	return r.checkRunUpdated(ctx, tag.RowsAffected(), id)
}

// checkRunUpdated distinguishes "run missing" from "run already terminal"
// when a compare-and-set update touched no rows.
func (r *extractionRunRepository) checkRunUpdated(ctx context.Context, affected int64, id uuid.UUID) error {
	if affected > 0 {
		return nil
	}
	run, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return fmt.Errorf("extraction run %s is %s: %w", id, run.Status, apperrors.ErrRunFinalized)
	}
	return fmt.Errorf("extraction run %s in status %s: %w", id, run.Status, apperrors.ErrConflict)
}

func scanExtractionRun(row pgx.Row) (*models.ExtractionRun, error) {
	var run models.ExtractionRun
	if err := row.Scan(&run.ID, &run.CaseID, &run.Status, &run.ErrorMessage,
		&run.ManifestURI, &run.ManifestSHA256, &run.CreatedAt, &run.StartedAt, &run.FinishedAt); err != nil {
		return nil, err
	}
	return &run, nil
}

func collectExtractionRuns(rows pgx.Rows) ([]*models.ExtractionRun, error) {
	defer rows.Close()
	var runs []*models.ExtractionRun
	for rows.Next() {
		run, err := scanExtractionRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan extraction run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
