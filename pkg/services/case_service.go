package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursebridge-io/equivalency-engine/pkg/apperrors"
	"github.com/coursebridge-io/equivalency-engine/pkg/database"
	"github.com/coursebridge-io/equivalency-engine/pkg/models"
	"github.com/coursebridge-io/equivalency-engine/pkg/repositories"
)

// CreateCaseRequest carries everything needed to open a new case.
type CreateCaseRequest struct {
	StudentID       string                  `json:"student_id"`
	StudentName     *string                 `json:"student_name,omitempty"`
	CourseRequested *string                 `json:"course_requested,omitempty"`
	Documents       []models.DocumentUpload `json:"documents"`
}

// CaseSummary is one row of the case list view.
type CaseSummary struct {
	Case          *models.Case         `json:"case"`
	DisplayStatus models.DisplayStatus `json:"display_status"`
}

// EvidenceWithCitations pairs a fact with the verbatim chunks it rests on.
type EvidenceWithCitations struct {
	Evidence  *models.Evidence        `json:"evidence"`
	Citations []*models.CitationChunk `json:"citations"`
}

// CaseDetail is the full read model for one case: documents, the latest
// extraction's grounded evidence, the latest decision, the review ledger, and
// a merged chronological audit log.
type CaseDetail struct {
	Case            *models.Case            `json:"case"`
	DisplayStatus   models.DisplayStatus    `json:"display_status"`
	Documents       []*models.Document      `json:"documents"`
	Evidence        []EvidenceWithCitations `json:"evidence"`
	Decision        *models.DecisionResult  `json:"decision,omitempty"`
	ReviewActions   []*models.ReviewAction  `json:"review_actions"`
	ReviewerComment string                  `json:"reviewer_comment,omitempty"`
	AuditLog        []AuditEntry            `json:"audit_log"`
}

// AuditEntry is one event in a case's history: a run being created or
// finishing, or a reviewer acting. Entries are ordered by occurrence time,
// ties by insertion order within each source.
type AuditEntry struct {
	OccurredAt time.Time  `json:"occurred_at"`
	Kind       string     `json:"kind"`
	RunID      *uuid.UUID `json:"run_id,omitempty"`
	Status     string     `json:"status,omitempty"`
	Actor      string     `json:"actor,omitempty"`
	Action     string     `json:"action,omitempty"`
	Comment    string     `json:"comment,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// CaseService owns case creation, document intake and the read model.
type CaseService interface {
	// CreateCase opens a case in uploaded status with its initial documents
	// and queues the first extraction run, all in one transaction.
	CreateCase(ctx context.Context, req CreateCaseRequest) (*models.Case, error)
	// AddDocuments attaches documents to a case. Legal only while the case
	// is uploaded or needs_info; from needs_info it queues a fresh
	// extraction run and moves the case to extracting.
	AddDocuments(ctx context.Context, caseID uuid.UUID, uploads []models.DocumentUpload) (*models.Case, error)
	// AssignReviewer moves a case with a recommendation into review.
	AssignReviewer(ctx context.Context, caseID uuid.UUID, reviewerID string) error
	ListCases(ctx context.Context, studentID string) ([]CaseSummary, error)
	GetCaseDetail(ctx context.Context, caseID uuid.UUID) (*CaseDetail, error)
	// GetLatestDecision returns the newest completed decision result, or
	// (nil, nil) when the case exists but has no decision yet.
	GetLatestDecision(ctx context.Context, caseID uuid.UUID) (*models.DecisionResult, error)
}

type caseService struct {
	db             *database.DB
	caseRepo       repositories.CaseRepository
	documentRepo   repositories.DocumentRepository
	extractionRepo repositories.ExtractionRunRepository
	decisionRepo   repositories.DecisionRunRepository
	resultRepo     repositories.DecisionResultRepository
	reviewRepo     repositories.ReviewRepository
	evidenceRepo   repositories.EvidenceRepository
	chunkRepo      repositories.ChunkRepository
	logger         *zap.Logger
}

// NewCaseService creates a new CaseService.
func NewCaseService(
	db *database.DB,
	caseRepo repositories.CaseRepository,
	documentRepo repositories.DocumentRepository,
	extractionRepo repositories.ExtractionRunRepository,
	decisionRepo repositories.DecisionRunRepository,
	resultRepo repositories.DecisionResultRepository,
	reviewRepo repositories.ReviewRepository,
	evidenceRepo repositories.EvidenceRepository,
	chunkRepo repositories.ChunkRepository,
	logger *zap.Logger,
) CaseService {
	return &caseService{
		db:             db,
		caseRepo:       caseRepo,
		documentRepo:   documentRepo,
		extractionRepo: extractionRepo,
		decisionRepo:   decisionRepo,
		resultRepo:     resultRepo,
		reviewRepo:     reviewRepo,
		evidenceRepo:   evidenceRepo,
		chunkRepo:      chunkRepo,
		logger:         logger.Named("case-service"),
	}
}

var _ CaseService = (*caseService)(nil)

func validateUploads(uploads []models.DocumentUpload) error {
	if len(uploads) == 0 {
		return apperrors.ErrNoDocuments
	}
	for _, u := range uploads {
		if u.Filename == "" {
			return fmt.Errorf("document filename is required")
		}
		if u.SHA256 == "" {
			return fmt.Errorf("document %s: sha256 is required", u.Filename)
		}
		if u.ContentType != models.PDFContentType {
			return fmt.Errorf("document %s has content type %q: %w",
				u.Filename, u.ContentType, apperrors.ErrUnsupportedContentType)
		}
	}
	return nil
}

func (s *caseService) CreateCase(ctx context.Context, req CreateCaseRequest) (*models.Case, error) {
	if req.StudentID == "" {
		return nil, fmt.Errorf("student_id is required")
	}
	if err := validateUploads(req.Documents); err != nil {
		return nil, err
	}

	c := &models.Case{
		StudentID:       req.StudentID,
		StudentName:     req.StudentName,
		CourseRequested: req.CourseRequested,
		Status:          models.CaseStatusUploaded,
	}

	err := s.db.InTx(ctx, func(ctx context.Context) error {
		if err := s.caseRepo.Create(ctx, c); err != nil {
			return err
		}
		if err := s.insertDocuments(ctx, c.ID, req.Documents); err != nil {
			return err
		}
		run := &models.ExtractionRun{CaseID: c.ID, Status: models.RunStatusQueued}
		return s.extractionRepo.Create(ctx, run)
	})
	if err != nil {
		s.logger.Error("Failed to create case",
			zap.String("student_id", req.StudentID),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Case created",
		zap.String("event", "case_created"),
		zap.String("case_id", c.ID.String()),
		zap.String("student_id", c.StudentID),
		zap.Int("documents", len(req.Documents)))
	return c, nil
}

func (s *caseService) AddDocuments(ctx context.Context, caseID uuid.UUID, uploads []models.DocumentUpload) (*models.Case, error) {
	if err := validateUploads(uploads); err != nil {
		return nil, err
	}

	var c *models.Case
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.caseRepo.GetByID(ctx, caseID)
		if err != nil {
			return err
		}
		if c.Status != models.CaseStatusUploaded && c.Status != models.CaseStatusNeedsInfo {
			return apperrors.NewInvalidTransition(string(c.Status), string(models.CaseStatusExtracting))
		}
		if err := s.insertDocuments(ctx, caseID, uploads); err != nil {
			return err
		}
		if c.Status == models.CaseStatusNeedsInfo {
			// Resubmission starts a brand-new run so every upload cycle
			// keeps its own audit trail.
			run := &models.ExtractionRun{CaseID: caseID, Status: models.RunStatusQueued}
			if err := s.extractionRepo.Create(ctx, run); err != nil {
				return err
			}
			if err := s.caseRepo.UpdateStatus(ctx, caseID, models.CaseStatusNeedsInfo, models.CaseStatusExtracting); err != nil {
				return err
			}
			c.Status = models.CaseStatusExtracting
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Documents added",
		zap.String("event", "documents_added"),
		zap.String("case_id", caseID.String()),
		zap.String("status", string(c.Status)),
		zap.Int("documents", len(uploads)))
	return c, nil
}

// insertDocuments writes uploads inside the caller's transaction, flipping
// any prior active document with the same filename inactive first.
func (s *caseService) insertDocuments(ctx context.Context, caseID uuid.UUID, uploads []models.DocumentUpload) error {
	for _, u := range uploads {
		if err := s.documentRepo.DeactivatePrior(ctx, caseID, u.Filename); err != nil {
			return err
		}
		doc := &models.Document{
			CaseID:      caseID,
			Filename:    u.Filename,
			ContentType: u.ContentType,
			SHA256:      u.SHA256,
			StorageURI:  u.StorageURI,
			SizeBytes:   u.SizeBytes,
			IsActive:    true,
		}
		if err := s.documentRepo.Create(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *caseService) AssignReviewer(ctx context.Context, caseID uuid.UUID, reviewerID string) error {
	if reviewerID == "" {
		return fmt.Errorf("reviewer_id is required")
	}

	err := s.db.InTx(ctx, func(ctx context.Context) error {
		c, err := s.caseRepo.GetByID(ctx, caseID)
		if err != nil {
			return err
		}
		if !c.Status.CanTransitionTo(models.CaseStatusReviewPending) {
			return apperrors.NewInvalidTransition(string(c.Status), string(models.CaseStatusReviewPending))
		}
		return s.caseRepo.UpdateStatus(ctx, caseID, c.Status, models.CaseStatusReviewPending)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Reviewer assigned",
		zap.String("event", "reviewer_assigned"),
		zap.String("case_id", caseID.String()),
		zap.String("actor", reviewerID),
		zap.String("status", string(models.CaseStatusReviewPending)))
	return nil
}

func (s *caseService) ListCases(ctx context.Context, studentID string) ([]CaseSummary, error) {
	cases, err := s.caseRepo.List(ctx, studentID)
	if err != nil {
		return nil, err
	}

	summaries := make([]CaseSummary, 0, len(cases))
	for _, c := range cases {
		actions, err := s.reviewRepo.ListByCase(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, CaseSummary{
			Case:          c,
			DisplayStatus: models.DisplayStatusFor(c.Status, actions),
		})
	}
	return summaries, nil
}

func (s *caseService) GetCaseDetail(ctx context.Context, caseID uuid.UUID) (*CaseDetail, error) {
	c, err := s.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	docs, err := s.documentRepo.GetByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	extractionRuns, err := s.extractionRepo.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	decisionRuns, err := s.decisionRepo.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	actions, err := s.reviewRepo.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	decision, err := s.resultRepo.GetLatestByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	evidence, err := s.latestEvidence(ctx, caseID, extractionRuns)
	if err != nil {
		return nil, err
	}

	return &CaseDetail{
		Case:            c,
		DisplayStatus:   models.DisplayStatusFor(c.Status, actions),
		Documents:       docs,
		Evidence:        evidence,
		Decision:        decision,
		ReviewActions:   actions,
		ReviewerComment: models.LatestComment(actions),
		AuditLog:        buildAuditLog(extractionRuns, decisionRuns, actions),
	}, nil
}

func (s *caseService) GetLatestDecision(ctx context.Context, caseID uuid.UUID) (*models.DecisionResult, error) {
	if _, err := s.caseRepo.GetByID(ctx, caseID); err != nil {
		return nil, err
	}
	return s.resultRepo.GetLatestByCase(ctx, caseID)
}

// latestEvidence loads the grounded facts of the newest completed extraction
// run, each with its citations.
func (s *caseService) latestEvidence(ctx context.Context, caseID uuid.UUID, runs []*models.ExtractionRun) ([]EvidenceWithCitations, error) {
	var latest *models.ExtractionRun
	for _, run := range runs {
		if run.Status == models.RunStatusCompleted {
			latest = run
		}
	}
	if latest == nil {
		return nil, nil
	}

	facts, err := s.evidenceRepo.ListByCaseAndRun(ctx, caseID, latest.ID)
	if err != nil {
		return nil, err
	}

	out := make([]EvidenceWithCitations, 0, len(facts))
	for _, ev := range facts {
		citations, err := s.chunkRepo.GetByEvidence(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, EvidenceWithCitations{Evidence: ev, Citations: citations})
	}
	return out, nil
}

// buildAuditLog merges run history and reviewer actions into one chronology.
// Sources arrive pre-sorted by creation; the stable sort keeps insertion
// order among equal timestamps.
func buildAuditLog(extractionRuns []*models.ExtractionRun, decisionRuns []*models.DecisionRun, actions []*models.ReviewAction) []AuditEntry {
	entries := make([]auditEvent, 0, len(extractionRuns)+len(decisionRuns)+len(actions))

	for _, run := range extractionRuns {
		runID := run.ID
		e := AuditEntry{
			Kind:   "extraction_run",
			RunID:  &runID,
			Status: string(run.Status),
		}
		if run.ErrorMessage != nil {
			e.Error = *run.ErrorMessage
		}
		entries = append(entries, auditEvent{at: run.CreatedAt, entry: e})
	}
	for _, run := range decisionRuns {
		runID := run.ID
		e := AuditEntry{
			Kind:   "decision_run",
			RunID:  &runID,
			Status: string(run.Status),
		}
		if run.ErrorMessage != nil {
			e.Error = *run.ErrorMessage
		}
		entries = append(entries, auditEvent{at: run.CreatedAt, entry: e})
	}
	for _, a := range actions {
		e := AuditEntry{
			Kind:    "review_action",
			Actor:   a.ReviewerID,
			Action:  string(a.Action),
			Comment: a.Comment,
		}
		if a.DecisionRunID != nil {
			e.RunID = a.DecisionRunID
		}
		entries = append(entries, auditEvent{at: a.CreatedAt, entry: e})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].at.Before(entries[j].at)
	})

	log := make([]AuditEntry, len(entries))
	for i, e := range entries {
		e.entry.OccurredAt = e.at
		log[i] = e.entry
	}
	return log
}

type auditEvent struct {
	at    time.Time
	entry AuditEntry
}
