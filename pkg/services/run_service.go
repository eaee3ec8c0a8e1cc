package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursebridge-io/equivalency-engine/pkg/apperrors"
	"github.com/coursebridge-io/equivalency-engine/pkg/database"
	"github.com/coursebridge-io/equivalency-engine/pkg/models"
	"github.com/coursebridge-io/equivalency-engine/pkg/repositories"
)

// ExtractionCompleteRequest is the payload the extraction pipeline reports
// when a run finishes. Evidence citations index into Chunks.
type ExtractionCompleteRequest struct {
	ManifestURI    *string         `json:"manifest_uri,omitempty"`
	ManifestSHA256 *string         `json:"manifest_sha256,omitempty"`
	Chunks         []ChunkInput    `json:"chunks"`
	Evidence       []EvidenceInput `json:"evidence"`
}

// RunService is the run tracker: it records lifecycle events reported by the
// external extraction and decision workers and applies the matching case
// transitions. The core never polls; workers call in.
type RunService interface {
	StartExtraction(ctx context.Context, runID uuid.UUID) error
	// CompleteExtraction persists the run's chunks and evidence, records the
	// manifest pointer, and moves the case to ready_for_decision, all
	// atomically.
	CompleteExtraction(ctx context.Context, runID uuid.UUID, req ExtractionCompleteRequest) error
	// FailExtraction records the error verbatim and routes the case to
	// needs_info so the student can resubmit; the failed run stays in the
	// audit trail and a retry is a new run.
	FailExtraction(ctx context.Context, runID uuid.UUID, errorMessage string) error

	// QueueDecision builds the decision inputs packet from the latest
	// grounded evidence and the course catalog, and creates a queued
	// decision run carrying it.
	QueueDecision(ctx context.Context, caseID uuid.UUID) (*models.DecisionRun, error)
	StartDecision(ctx context.Context, runID uuid.UUID) error
	// CompleteDecision persists the result and moves the case to
	// ai_recommendation, or to needs_info when the engine asked for more
	// information.
	CompleteDecision(ctx context.Context, runID uuid.UUID, result *models.DecisionResult) error
	FailDecision(ctx context.Context, runID uuid.UUID, errorMessage string) error
}

type runService struct {
	db             *database.DB
	caseRepo       repositories.CaseRepository
	extractionRepo repositories.ExtractionRunRepository
	decisionRepo   repositories.DecisionRunRepository
	resultRepo     repositories.DecisionResultRepository
	grounding      GroundingService
	packets        *DecisionPacketBuilder
	logger         *zap.Logger
}

// NewRunService creates a new RunService.
func NewRunService(
	db *database.DB,
	caseRepo repositories.CaseRepository,
	extractionRepo repositories.ExtractionRunRepository,
	decisionRepo repositories.DecisionRunRepository,
	resultRepo repositories.DecisionResultRepository,
	grounding GroundingService,
	packets *DecisionPacketBuilder,
	logger *zap.Logger,
) RunService {
	return &runService{
		db:             db,
		caseRepo:       caseRepo,
		extractionRepo: extractionRepo,
		decisionRepo:   decisionRepo,
		resultRepo:     resultRepo,
		grounding:      grounding,
		packets:        packets,
		logger:         logger.Named("run-service"),
	}
}

var _ RunService = (*runService)(nil)

func (s *runService) StartExtraction(ctx context.Context, runID uuid.UUID) error {
	var caseID uuid.UUID
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		run, err := s.extractionRepo.GetByID(ctx, runID)
		if err != nil {
			return err
		}
		caseID = run.CaseID
		if err := s.extractionRepo.MarkRunning(ctx, runID); err != nil {
			return err
		}

		c, err := s.caseRepo.GetByID(ctx, run.CaseID)
		if err != nil {
			return err
		}
		// The needs_info resubmission path already moved the case to
		// extracting when the documents arrived.
		if c.Status == models.CaseStatusExtracting {
			return nil
		}
		if !c.Status.CanTransitionTo(models.CaseStatusExtracting) {
			return apperrors.NewInvalidTransition(string(c.Status), string(models.CaseStatusExtracting))
		}
		return s.caseRepo.UpdateStatus(ctx, run.CaseID, c.Status, models.CaseStatusExtracting)
	})
	if err != nil {
		return err
	}

	s.logRunEvent("extraction_run_started", caseID, runID, string(models.RunStatusRunning))
	return nil
}

func (s *runService) CompleteExtraction(ctx context.Context, runID uuid.UUID, req ExtractionCompleteRequest) error {
	var caseID uuid.UUID
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		run, err := s.extractionRepo.GetByID(ctx, runID)
		if err != nil {
			return err
		}
		caseID = run.CaseID

		if err := s.extractionRepo.MarkCompleted(ctx, runID, req.ManifestURI, req.ManifestSHA256); err != nil {
			return err
		}

		chunkIDs := make([]uuid.UUID, len(req.Chunks))
		for i, in := range req.Chunks {
			chunk, err := s.grounding.RecordChunk(ctx, runID, in)
			if err != nil {
				return err
			}
			chunkIDs[i] = chunk.ID
		}

		for _, in := range req.Evidence {
			cited := make([]uuid.UUID, 0, len(in.Citations))
			for _, idx := range in.Citations {
				if idx < 0 || idx >= len(chunkIDs) {
					return fmt.Errorf("evidence %q cites chunk index %d out of range", in.FactType, idx)
				}
				cited = append(cited, chunkIDs[idx])
			}
			if _, err := s.grounding.RecordEvidence(ctx, run.CaseID, runID, in, cited); err != nil {
				return err
			}
		}

		return s.caseRepo.UpdateStatus(ctx, run.CaseID, models.CaseStatusExtracting, models.CaseStatusReadyForDecision)
	})
	if err != nil {
		s.logger.Error("Failed to complete extraction run",
			zap.String("run_id", runID.String()),
			zap.Error(err))
		return err
	}

	s.logRunEvent("extraction_run_completed", caseID, runID, string(models.RunStatusCompleted))
	return nil
}

func (s *runService) FailExtraction(ctx context.Context, runID uuid.UUID, errorMessage string) error {
	var caseID uuid.UUID
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		run, err := s.extractionRepo.GetByID(ctx, runID)
		if err != nil {
			return err
		}
		caseID = run.CaseID
		if err := s.extractionRepo.MarkFailed(ctx, runID, errorMessage); err != nil {
			return err
		}

		c, err := s.caseRepo.GetByID(ctx, run.CaseID)
		if err != nil {
			return err
		}
		// Failure must never advance the case; it routes back to needs_info
		// so the student can correct and resubmit.
		switch c.Status {
		case models.CaseStatusUploaded, models.CaseStatusExtracting:
			return s.caseRepo.UpdateStatus(ctx, run.CaseID, c.Status, models.CaseStatusNeedsInfo)
		default:
			return nil
		}
	})
	if err != nil {
		return err
	}

	s.logger.Warn("Extraction run failed",
		zap.String("event", "extraction_run_failed"),
		zap.String("case_id", caseID.String()),
		zap.String("run_id", runID.String()),
		zap.String("error_message", errorMessage))
	return nil
}

func (s *runService) QueueDecision(ctx context.Context, caseID uuid.UUID) (*models.DecisionRun, error) {
	run := &models.DecisionRun{CaseID: caseID, Status: models.RunStatusQueued}

	err := s.db.InTx(ctx, func(ctx context.Context) error {
		c, err := s.caseRepo.GetByID(ctx, caseID)
		if err != nil {
			return err
		}
		if c.Status != models.CaseStatusReadyForDecision {
			return apperrors.NewInvalidTransition(string(c.Status), string(models.CaseStatusAIRecommendation))
		}

		packet, err := s.packets.Build(ctx, c)
		if err != nil {
			return err
		}
		inputs, err := json.Marshal(packet)
		if err != nil {
			return fmt.Errorf("failed to marshal decision inputs: %w", err)
		}
		run.Inputs = inputs

		return s.decisionRepo.Create(ctx, run)
	})
	if err != nil {
		s.logger.Error("Failed to queue decision run",
			zap.String("case_id", caseID.String()),
			zap.Error(err))
		return nil, err
	}

	s.logRunEvent("decision_run_queued", caseID, run.ID, string(models.RunStatusQueued))
	return run, nil
}

func (s *runService) StartDecision(ctx context.Context, runID uuid.UUID) error {
	if err := s.decisionRepo.MarkRunning(ctx, runID); err != nil {
		return err
	}
	s.logger.Info("Decision run started",
		zap.String("event", "decision_run_started"),
		zap.String("run_id", runID.String()))
	return nil
}

func (s *runService) CompleteDecision(ctx context.Context, runID uuid.UUID, result *models.DecisionResult) error {
	if !models.IsValidDecisionVerdict(result.Verdict) {
		return fmt.Errorf("invalid verdict %q", result.Verdict)
	}
	if !models.IsValidConfidenceLevel(result.Confidence) {
		return fmt.Errorf("invalid confidence %q", result.Confidence)
	}

	var caseID uuid.UUID
	var next models.CaseStatus
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		run, err := s.decisionRepo.GetByID(ctx, runID)
		if err != nil {
			return err
		}
		caseID = run.CaseID

		if err := s.decisionRepo.MarkCompleted(ctx, runID); err != nil {
			return err
		}

		result.DecisionRunID = runID
		if err := s.resultRepo.Create(ctx, result); err != nil {
			return err
		}

		next = models.CaseStatusAIRecommendation
		if result.NeedsMoreInfo {
			next = models.CaseStatusNeedsInfo
		}
		return s.caseRepo.UpdateStatus(ctx, run.CaseID, models.CaseStatusReadyForDecision, next)
	})
	if err != nil {
		s.logger.Error("Failed to complete decision run",
			zap.String("run_id", runID.String()),
			zap.Error(err))
		return err
	}

	s.logger.Info("Decision run completed",
		zap.String("event", "decision_run_completed"),
		zap.String("case_id", caseID.String()),
		zap.String("run_id", runID.String()),
		zap.String("verdict", string(result.Verdict)),
		zap.String("status", string(next)))
	return nil
}

func (s *runService) FailDecision(ctx context.Context, runID uuid.UUID, errorMessage string) error {
	// The case never left ready_for_decision, so failure records the error
	// and leaves it there; a retry queues a new run.
	if err := s.decisionRepo.MarkFailed(ctx, runID, errorMessage); err != nil {
		return err
	}
	s.logger.Warn("Decision run failed",
		zap.String("event", "decision_run_failed"),
		zap.String("run_id", runID.String()),
		zap.String("error_message", errorMessage))
	return nil
}

func (s *runService) logRunEvent(event string, caseID, runID uuid.UUID, status string) {
	s.logger.Info("Run event",
		zap.String("event", event),
		zap.String("case_id", caseID.String()),
		zap.String("run_id", runID.String()),
		zap.String("status", status))
}
