package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursebridge-io/equivalency-engine/pkg/apperrors"
	"github.com/coursebridge-io/equivalency-engine/pkg/database"
	"github.com/coursebridge-io/equivalency-engine/pkg/models"
	"github.com/coursebridge-io/equivalency-engine/pkg/repositories"
)

// RecordActionRequest is one reviewer decision on a case.
type RecordActionRequest struct {
	ReviewerID    string                  `json:"reviewer_id"`
	Action        models.ReviewActionType `json:"action"`
	Comment       string                  `json:"comment"`
	DecisionRunID *uuid.UUID              `json:"decision_run_id,omitempty"`
}

// ReviewService owns the append-only review ledger and the case transitions
// reviewer actions trigger.
type ReviewService interface {
	// RecordAction appends a ledger entry and applies the matching
	// transition: approve/deny close the case, request_info routes it back
	// to the student, override annotates an already-reviewed case.
	RecordAction(ctx context.Context, caseID uuid.UUID, req RecordActionRequest) (*models.ReviewAction, error)
	ListActions(ctx context.Context, caseID uuid.UUID) ([]*models.ReviewAction, error)
}

type reviewService struct {
	db         *database.DB
	caseRepo   repositories.CaseRepository
	reviewRepo repositories.ReviewRepository
	logger     *zap.Logger
}

// NewReviewService creates a new ReviewService.
func NewReviewService(
	db *database.DB,
	caseRepo repositories.CaseRepository,
	reviewRepo repositories.ReviewRepository,
	logger *zap.Logger,
) ReviewService {
	return &reviewService{
		db:         db,
		caseRepo:   caseRepo,
		reviewRepo: reviewRepo,
		logger:     logger.Named("review-service"),
	}
}

var _ ReviewService = (*reviewService)(nil)

func (s *reviewService) RecordAction(ctx context.Context, caseID uuid.UUID, req RecordActionRequest) (*models.ReviewAction, error) {
	if req.ReviewerID == "" {
		return nil, fmt.Errorf("reviewer_id is required")
	}
	if !models.IsValidReviewActionType(req.Action) {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidAction, req.Action)
	}
	if req.Action.RequiresComment() && strings.TrimSpace(req.Comment) == "" {
		return nil, fmt.Errorf("action %s: %w", req.Action, apperrors.ErrCommentRequired)
	}

	action := &models.ReviewAction{
		CaseID:        caseID,
		ReviewerID:    req.ReviewerID,
		Action:        req.Action,
		Comment:       req.Comment,
		DecisionRunID: req.DecisionRunID,
	}

	var newStatus models.CaseStatus
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		c, err := s.caseRepo.GetByID(ctx, caseID)
		if err != nil {
			return err
		}

		// Once a case is reviewed the only accepted action is an explicit
		// override; plain approve/deny/request_info are final-state errors.
		if c.Status == models.CaseStatusReviewed && req.Action != models.ReviewActionOverride {
			return fmt.Errorf("case %s: %w", caseID, apperrors.ErrCaseAlreadyReviewed)
		}

		newStatus = c.Status
		switch req.Action {
		case models.ReviewActionApprove, models.ReviewActionDeny:
			newStatus = models.CaseStatusReviewed
		case models.ReviewActionRequestInfo:
			newStatus = models.CaseStatusNeedsInfo
		case models.ReviewActionOverride:
			// Ledger entry only; reviewed is terminal.
			if c.Status != models.CaseStatusReviewed {
				return apperrors.NewInvalidTransition(string(c.Status), string(models.CaseStatusReviewed))
			}
		}

		if newStatus != c.Status {
			if !c.Status.CanTransitionTo(newStatus) {
				return apperrors.NewInvalidTransition(string(c.Status), string(newStatus))
			}
			if err := s.caseRepo.UpdateStatus(ctx, caseID, c.Status, newStatus); err != nil {
				return err
			}
		}

		return s.reviewRepo.Create(ctx, action)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Review action recorded",
		zap.String("event", "review_action_recorded"),
		zap.String("case_id", caseID.String()),
		zap.String("actor", req.ReviewerID),
		zap.String("action", string(req.Action)),
		zap.String("status", string(newStatus)))
	return action, nil
}

func (s *reviewService) ListActions(ctx context.Context, caseID uuid.UUID) ([]*models.ReviewAction, error) {
	return s.reviewRepo.ListByCase(ctx, caseID)
}
