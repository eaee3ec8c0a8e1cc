package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coursebridge-io/equivalency-engine/pkg/apperrors"
	"github.com/coursebridge-io/equivalency-engine/pkg/database"
	"github.com/coursebridge-io/equivalency-engine/pkg/models"
)

// ReviewRepository provides data access for the append-only review ledger.
type ReviewRepository interface {
	Create(ctx context.Context, action *models.ReviewAction) error
	// ListByCase returns actions in insertion order, which is the order
	// display verdicts are derived from.
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.ReviewAction, error)
}

type reviewRepository struct {
	db *database.DB
}

// NewReviewRepository creates a new ReviewRepository.
func NewReviewRepository(db *database.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

var _ ReviewRepository = (*reviewRepository)(nil)

func (r *reviewRepository) Create(ctx context.Context, action *models.ReviewAction) error {
	if !models.IsValidReviewActionType(action.Action) {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidAction, action.Action)
	}

	action.CreatedAt = time.Now()
	if action.ID == uuid.Nil {
		action.ID = uuid.New()
	}

	query := `
		INSERT INTO review_actions (review_action_id, case_id, reviewer_id, action, comment, decision_run_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq`

	row := r.db.Querier(ctx).QueryRow(ctx, query,
		action.ID, action.CaseID, action.ReviewerID, action.Action,
		action.Comment, action.DecisionRunID, action.CreatedAt)
	if err := row.Scan(&action.Seq); err != nil {
		return fmt.Errorf("failed to create review action: %w", err)
	}
	return nil
}

func (r *reviewRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.ReviewAction, error) {
	rows, err := r.db.Querier(ctx).Query(ctx,
		`SELECT review_action_id, seq, case_id, reviewer_id, action, comment, decision_run_id, created_at
		 FROM review_actions
		 WHERE case_id = $1
		 ORDER BY seq ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list review actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.ReviewAction
	for rows.Next() {
		var a models.ReviewAction
		if err := rows.Scan(&a.ID, &a.Seq, &a.CaseID, &a.ReviewerID, &a.Action,
			&a.Comment, &a.DecisionRunID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review action: %w", err)
		}
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}
