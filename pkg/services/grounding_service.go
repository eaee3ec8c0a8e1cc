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

// ChunkInput is one verbatim text span reported by the extraction pipeline.
type ChunkInput struct {
	DocID     uuid.UUID `json:"doc_id"`
	PageNum   int       `json:"page_num"`
	SpanStart int       `json:"span_start"`
	SpanEnd   int       `json:"span_end"`
	FullText  string    `json:"full_text"`
}

// EvidenceInput is one extracted fact reported by the extraction pipeline.
// Citations index into the chunk list submitted alongside the fact.
type EvidenceInput struct {
	FactType  string          `json:"fact_type"`
	FactKey   *string         `json:"fact_key,omitempty"`
	FactValue *string         `json:"fact_value,omitempty"`
	FactJSON  json.RawMessage `json:"fact_json,omitempty"`
	Unknown   bool            `json:"unknown"`
	Notes     *string         `json:"notes,omitempty"`
	Citations []int           `json:"citations"`
}

// GroundingService owns the evidence ledger. Its single hard rule: a fact is
// either marked unknown or carries at least one verbatim citation. Nothing
// else in the system may write evidence.
type GroundingService interface {
	// RecordChunk persists a citation chunk, idempotently by content.
	// Re-recording identical content returns the existing chunk id.
	RecordChunk(ctx context.Context, runID uuid.UUID, input ChunkInput) (*models.CitationChunk, error)
	// RecordEvidence persists a fact and its citation links atomically.
	// A non-unknown fact with no chunk ids fails with UngroundedClaim.
	RecordEvidence(ctx context.Context, caseID, runID uuid.UUID, input EvidenceInput, chunkIDs []uuid.UUID) (*models.Evidence, error)
	GetCitationsFor(ctx context.Context, evidenceID uuid.UUID) ([]*models.CitationChunk, error)
}

type groundingService struct {
	db           *database.DB
	chunkRepo    repositories.ChunkRepository
	evidenceRepo repositories.EvidenceRepository
	logger       *zap.Logger
}

// NewGroundingService creates a new GroundingService.
func NewGroundingService(
	db *database.DB,
	chunkRepo repositories.ChunkRepository,
	evidenceRepo repositories.EvidenceRepository,
	logger *zap.Logger,
) GroundingService {
	return &groundingService{
		db:           db,
		chunkRepo:    chunkRepo,
		evidenceRepo: evidenceRepo,
		logger:       logger.Named("grounding-service"),
	}
}

var _ GroundingService = (*groundingService)(nil)

func (s *groundingService) RecordChunk(ctx context.Context, runID uuid.UUID, input ChunkInput) (*models.CitationChunk, error) {
	chunk := &models.CitationChunk{
		DocID:     input.DocID,
		RunID:     runID,
		PageNum:   input.PageNum,
		SpanStart: input.SpanStart,
		SpanEnd:   input.SpanEnd,
		Snippet:   models.Snippet(input.FullText),
		FullText:  input.FullText,
	}
	if err := s.chunkRepo.Upsert(ctx, chunk); err != nil {
		return nil, err
	}
	return chunk, nil
}

func (s *groundingService) RecordEvidence(ctx context.Context, caseID, runID uuid.UUID, input EvidenceInput, chunkIDs []uuid.UUID) (*models.Evidence, error) {
	if input.FactType == "" {
		return nil, fmt.Errorf("fact type is required")
	}
	if !input.Unknown && len(chunkIDs) == 0 {
		return nil, fmt.Errorf("fact %q has no citations: %w", input.FactType, apperrors.ErrUngroundedClaim)
	}

	ev := &models.Evidence{
		CaseID:    caseID,
		RunID:     runID,
		FactType:  input.FactType,
		FactKey:   input.FactKey,
		FactValue: input.FactValue,
		FactJSON:  input.FactJSON,
		Unknown:   input.Unknown,
		Notes:     input.Notes,
	}

	err := s.db.InTx(ctx, func(ctx context.Context) error {
		if err := s.evidenceRepo.Create(ctx, ev); err != nil {
			return err
		}
		for _, chunkID := range chunkIDs {
			if err := s.evidenceRepo.LinkChunk(ctx, ev.ID, chunkID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to record evidence",
			zap.String("case_id", caseID.String()),
			zap.String("fact_type", input.FactType),
			zap.Error(err))
		return nil, err
	}
	return ev, nil
}

func (s *groundingService) GetCitationsFor(ctx context.Context, evidenceID uuid.UUID) ([]*models.CitationChunk, error) {
	return s.chunkRepo.GetByEvidence(ctx, evidenceID)
}
