// Package repositories provides Postgres data access for the equivalency
// engine. Repositories resolve their querier from the context, so any method
// called inside database.DB.InTx joins the surrounding transaction.
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

// CaseRepository provides data access for cases.
type CaseRepository interface {
	Create(ctx context.Context, c *models.Case) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error)
	List(ctx context.Context, studentID string) ([]*models.Case, error)
	// UpdateStatus flips the case status with a compare-and-set on the
	// current value, so concurrent writers cannot both apply a transition
	// from the same starting state.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.CaseStatus) error
}

type caseRepository struct {
	db *database.DB
}

// NewCaseRepository creates a new CaseRepository.
func NewCaseRepository(db *database.DB) CaseRepository {
	return &caseRepository{db: db}
}

var _ CaseRepository = (*caseRepository)(nil)

func (r *caseRepository) Create(ctx context.Context, c *models.Case) error {
	if !models.IsValidCaseStatus(c.Status) {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidStatus, c.Status)
	}

	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	query := `
		INSERT INTO cases (case_id, student_id, student_name, course_requested, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		c.ID, c.StudentID, c.StudentName, c.CourseRequested, c.Status, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}
	return nil
}

func (r *caseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	query := `
		SELECT case_id, student_id, student_name, course_requested, status, created_at, updated_at
		FROM cases
		WHERE case_id = $1`

	row := r.db.Querier(ctx).QueryRow(ctx, query, id)
	c, err := scanCase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("case %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return c, nil
}

func (r *caseRepository) List(ctx context.Context, studentID string) ([]*models.Case, error) {
	query := `
		SELECT case_id, student_id, student_name, course_requested, status, created_at, updated_at
		FROM cases`
	args := []any{}
	if studentID != "" {
		query += ` WHERE student_id = $1`
		args = append(args, studentID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	var cases []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

func (r *caseRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.CaseStatus) error {
	if !models.IsValidCaseStatus(to) {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidStatus, to)
	}

	tag, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE cases SET status = $3, updated_at = $4 WHERE case_id = $1 AND status = $2`,
		id, from, to, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update case status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the case is gone or another writer moved it first.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("case %s no longer in status %s: %w", id, from, apperrors.ErrConflict)
	}
	return nil
}

func scanCase(row pgx.Row) (*models.Case, error) {
	var c models.Case
	if err := row.Scan(&c.ID, &c.StudentID, &c.StudentName, &c.CourseRequested,
		&c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
