package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coursebridge-io/equivalency-engine/pkg/apperrors"
	"github.com/coursebridge-io/equivalency-engine/pkg/models"
)

// In-memory repository fakes shared by the service tests. They mirror the
// compare-and-set behavior of the Postgres implementations so the services'
// error paths are exercised for real.

type mockCaseRepo struct {
	cases     map[uuid.UUID]*models.Case
	createErr error
}

func newMockCaseRepo() *mockCaseRepo {
	return &mockCaseRepo{cases: make(map[uuid.UUID]*models.Case)}
}

func (m *mockCaseRepo) Create(_ context.Context, c *models.Case) error {
	if m.createErr != nil {
		return m.createErr
	}
	c.ID = uuid.New()
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	stored := *c
	m.cases[c.ID] = &stored
	return nil
}

func (m *mockCaseRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Case, error) {
	c, ok := m.cases[id]
	if !ok {
		return nil, fmt.Errorf("case %s: %w", id, apperrors.ErrNotFound)
	}
	copied := *c
	return &copied, nil
}

func (m *mockCaseRepo) List(_ context.Context, studentID string) ([]*models.Case, error) {
	var out []*models.Case
	for _, c := range m.cases {
		if studentID == "" || c.StudentID == studentID {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockCaseRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to models.CaseStatus) error {
	c, ok := m.cases[id]
	if !ok {
		return fmt.Errorf("case %s: %w", id, apperrors.ErrNotFound)
	}
	if c.Status != from {
		return fmt.Errorf("case %s no longer in status %s: %w", id, from, apperrors.ErrConflict)
	}
	c.Status = to
	c.UpdatedAt = time.Now()
	return nil
}

type mockDocumentRepo struct {
	docs []*models.Document
}

func (m *mockDocumentRepo) Create(_ context.Context, doc *models.Document) error {
	doc.ID = uuid.New()
	doc.CreatedAt = time.Now()
	stored := *doc
	m.docs = append(m.docs, &stored)
	return nil
}

func (m *mockDocumentRepo) GetByCase(_ context.Context, caseID uuid.UUID) ([]*models.Document, error) {
	var out []*models.Document
	for _, d := range m.docs {
		if d.CaseID == caseID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDocumentRepo) GetActiveByCase(_ context.Context, caseID uuid.UUID) ([]*models.Document, error) {
	var out []*models.Document
	for _, d := range m.docs {
		if d.CaseID == caseID && d.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDocumentRepo) DeactivatePrior(_ context.Context, caseID uuid.UUID, filename string) error {
	for _, d := range m.docs {
		if d.CaseID == caseID && d.Filename == filename {
			d.IsActive = false
		}
	}
	return nil
}

type mockExtractionRunRepo struct {
	runs []*models.ExtractionRun
}

func (m *mockExtractionRunRepo) Create(_ context.Context, run *models.ExtractionRun) error {
	run.ID = uuid.New()
	run.CreatedAt = time.Now()
	stored := *run
	m.runs = append(m.runs, &stored)
	return nil
}

func (m *mockExtractionRunRepo) GetByID(_ context.Context, id uuid.UUID) (*models.ExtractionRun, error) {
	for _, run := range m.runs {
		if run.ID == id {
			copied := *run
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("extraction run %s: %w", id, apperrors.ErrNotFound)
}

func (m *mockExtractionRunRepo) GetLatestByCase(_ context.Context, caseID uuid.UUID) (*models.ExtractionRun, error) {
	var latest *models.ExtractionRun
	for _, run := range m.runs {
		if run.CaseID == caseID {
			latest = run
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (m *mockExtractionRunRepo) ListByCase(_ context.Context, caseID uuid.UUID) ([]*models.ExtractionRun, error) {
	var out []*models.ExtractionRun
	for _, run := range m.runs {
		if run.CaseID == caseID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (m *mockExtractionRunRepo) ListByStatus(_ context.Context, status models.RunStatus) ([]*models.ExtractionRun, error) {
	var out []*models.ExtractionRun
	for _, run := range m.runs {
		if run.Status == status {
			out = append(out, run)
		}
	}
	return out, nil
}

func (m *mockExtractionRunRepo) find(id uuid.UUID) (*models.ExtractionRun, error) {
	for _, run := range m.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return nil, fmt.Errorf("extraction run %s: %w", id, apperrors.ErrNotFound)
}

func (m *mockExtractionRunRepo) MarkRunning(_ context.Context, id uuid.UUID) error {
	run, err := m.find(id)
	if err != nil {
		return err
	}
	if run.Status != models.RunStatusQueued {
		if run.Status.IsTerminal() {
			return fmt.Errorf("extraction run %s is %s: %w", id, run.Status, apperrors.ErrRunFinalized)
		}
		return fmt.Errorf("extraction run %s in status %s: %w", id, run.Status, apperrors.ErrConflict)
	}
	run.Status = models.RunStatusRunning
	now := time.Now()
	run.StartedAt = &now
	return nil
}

func (m *mockExtractionRunRepo) MarkCompleted(_ context.Context, id uuid.UUID, manifestURI, manifestSHA256 *string) error {
	run, err := m.find(id)
	if err != nil {
		return err
	}
	if run.Status != models.RunStatusRunning {
		if run.Status.IsTerminal() {
			return fmt.Errorf("extraction run %s is %s: %w", id, run.Status, apperrors.ErrRunFinalized)
		}
		return fmt.Errorf("extraction run %s in status %s: %w", id, run.Status, apperrors.ErrConflict)
	}
	run.Status = models.RunStatusCompleted
	run.ManifestURI = manifestURI
	run.ManifestSHA256 = manifestSHA256
	now := time.Now()
	run.FinishedAt = &now
	return nil
}

func (m *mockExtractionRunRepo) MarkFailed(_ context.Context, id uuid.UUID, errorMessage string) error {
	run, err := m.find(id)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return fmt.Errorf("extraction run %s is %s: %w", id, run.Status, apperrors.ErrRunFinalized)
	}
	run.Status = models.RunStatusFailed
	run.ErrorMessage = &errorMessage
	now := time.Now()
	run.FinishedAt = &now
	return nil
}

type mockDecisionRunRepo struct {
	runs []*models.DecisionRun
}

func (m *mockDecisionRunRepo) Create(_ context.Context, run *models.DecisionRun) error {
	run.ID = uuid.New()
	run.CreatedAt = time.Now()
	stored := *run
	m.runs = append(m.runs, &stored)
	return nil
}

func (m *mockDecisionRunRepo) GetByID(_ context.Context, id uuid.UUID) (*models.DecisionRun, error) {
	for _, run := range m.runs {
		if run.ID == id {
			copied := *run
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("decision run %s: %w", id, apperrors.ErrNotFound)
}

func (m *mockDecisionRunRepo) GetLatestByCase(_ context.Context, caseID uuid.UUID) (*models.DecisionRun, error) {
	var latest *models.DecisionRun
	for _, run := range m.runs {
		if run.CaseID == caseID {
			latest = run
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (m *mockDecisionRunRepo) ListByCase(_ context.Context, caseID uuid.UUID) ([]*models.DecisionRun, error) {
	var out []*models.DecisionRun
	for _, run := range m.runs {
		if run.CaseID == caseID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (m *mockDecisionRunRepo) ListByStatus(_ context.Context, status models.RunStatus) ([]*models.DecisionRun, error) {
	var out []*models.DecisionRun
	for _, run := range m.runs {
		if run.Status == status {
			out = append(out, run)
		}
	}
	return out, nil
}

func (m *mockDecisionRunRepo) find(id uuid.UUID) (*models.DecisionRun, error) {
	for _, run := range m.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return nil, fmt.Errorf("decision run %s: %w", id, apperrors.ErrNotFound)
}

func (m *mockDecisionRunRepo) MarkRunning(_ context.Context, id uuid.UUID) error {
	run, err := m.find(id)
	if err != nil {
		return err
	}
	if run.Status != models.RunStatusQueued {
		if run.Status.IsTerminal() {
			return fmt.Errorf("decision run %s is %s: %w", id, run.Status, apperrors.ErrRunFinalized)
		}
		return fmt.Errorf("decision run %s in status %s: %w", id, run.Status, apperrors.ErrConflict)
	}
	run.Status = models.RunStatusRunning
	now := time.Now()
	run.StartedAt = &now
	return nil
}

func (m *mockDecisionRunRepo) MarkCompleted(_ context.Context, id uuid.UUID) error {
	run, err := m.find(id)
	if err != nil {
		return err
	}
	if run.Status != models.RunStatusRunning {
		if run.Status.IsTerminal() {
			return fmt.Errorf("decision run %s is %s: %w", id, run.Status, apperrors.ErrRunFinalized)
		}
		return fmt.Errorf("decision run %s in status %s: %w", id, run.Status, apperrors.ErrConflict)
	}
	run.Status = models.RunStatusCompleted
	now := time.Now()
	run.FinishedAt = &now
	return nil
}

func (m *mockDecisionRunRepo) MarkFailed(_ context.Context, id uuid.UUID, errorMessage string) error {
	run, err := m.find(id)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return fmt.Errorf("decision run %s is %s: %w", id, run.Status, apperrors.ErrRunFinalized)
	}
	run.Status = models.RunStatusFailed
	run.ErrorMessage = &errorMessage
	now := time.Now()
	run.FinishedAt = &now
	return nil
}

type mockResultRepo struct {
	results []*models.DecisionResult
	runs    *mockDecisionRunRepo
}

func (m *mockResultRepo) Create(_ context.Context, result *models.DecisionResult) error {
	result.CreatedAt = time.Now()
	stored := *result
	m.results = append(m.results, &stored)
	return nil
}

func (m *mockResultRepo) GetByRunID(_ context.Context, runID uuid.UUID) (*models.DecisionResult, error) {
	for _, r := range m.results {
		if r.DecisionRunID == runID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("decision result for run %s: %w", runID, apperrors.ErrNotFound)
}

func (m *mockResultRepo) GetLatestByCase(_ context.Context, caseID uuid.UUID) (*models.DecisionResult, error) {
	if m.runs == nil {
		return nil, nil
	}
	var latest *models.DecisionResult
	for _, run := range m.runs.runs {
		if run.CaseID != caseID || run.Status != models.RunStatusCompleted {
			continue
		}
		for _, r := range m.results {
			if r.DecisionRunID == run.ID {
				latest = r
			}
		}
	}
	return latest, nil
}

type mockReviewRepo struct {
	actions []*models.ReviewAction
	nextSeq int64
}

func (m *mockReviewRepo) Create(_ context.Context, action *models.ReviewAction) error {
	if !models.IsValidReviewActionType(action.Action) {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidAction, action.Action)
	}
	action.ID = uuid.New()
	m.nextSeq++
	action.Seq = m.nextSeq
	action.CreatedAt = time.Now()
	stored := *action
	m.actions = append(m.actions, &stored)
	return nil
}

func (m *mockReviewRepo) ListByCase(_ context.Context, caseID uuid.UUID) ([]*models.ReviewAction, error) {
	var out []*models.ReviewAction
	for _, a := range m.actions {
		if a.CaseID == caseID {
			out = append(out, a)
		}
	}
	return out, nil
}

// mockGroundingStore implements both ChunkRepository and EvidenceRepository
// so the citation links line up the way they do in Postgres.
type mockGroundingStore struct {
	chunks   []*models.CitationChunk
	evidence []*models.Evidence
	links    map[uuid.UUID][]uuid.UUID // evidence id -> chunk ids
}

func newMockGroundingStore() *mockGroundingStore {
	return &mockGroundingStore{links: make(map[uuid.UUID][]uuid.UUID)}
}

func (m *mockGroundingStore) Upsert(_ context.Context, chunk *models.CitationChunk) error {
	if chunk.ContentID == "" {
		chunk.ContentID = models.ChunkContentID(chunk.DocID, chunk.RunID,
			chunk.PageNum, chunk.SpanStart, chunk.SpanEnd, chunk.FullText)
	}
	for _, existing := range m.chunks {
		if existing.ContentID == chunk.ContentID {
			chunk.ID = existing.ID
			chunk.CreatedAt = existing.CreatedAt
			return nil
		}
	}
	chunk.ID = uuid.New()
	chunk.CreatedAt = time.Now()
	stored := *chunk
	m.chunks = append(m.chunks, &stored)
	return nil
}

func (m *mockGroundingStore) GetByEvidence(_ context.Context, evidenceID uuid.UUID) ([]*models.CitationChunk, error) {
	var out []*models.CitationChunk
	for _, chunkID := range m.links[evidenceID] {
		for _, chunk := range m.chunks {
			if chunk.ID == chunkID {
				out = append(out, chunk)
			}
		}
	}
	return out, nil
}

func (m *mockGroundingStore) ListByRun(_ context.Context, runID uuid.UUID) ([]*models.CitationChunk, error) {
	var out []*models.CitationChunk
	for _, chunk := range m.chunks {
		if chunk.RunID == runID {
			out = append(out, chunk)
		}
	}
	return out, nil
}

func (m *mockGroundingStore) Create(_ context.Context, ev *models.Evidence) error {
	ev.ID = uuid.New()
	ev.CreatedAt = time.Now()
	stored := *ev
	m.evidence = append(m.evidence, &stored)
	return nil
}

func (m *mockGroundingStore) GetByID(_ context.Context, id uuid.UUID) (*models.Evidence, error) {
	for _, ev := range m.evidence {
		if ev.ID == id {
			return ev, nil
		}
	}
	return nil, fmt.Errorf("evidence %s: %w", id, apperrors.ErrNotFound)
}

func (m *mockGroundingStore) ListByCaseAndRun(_ context.Context, caseID, runID uuid.UUID) ([]*models.Evidence, error) {
	var out []*models.Evidence
	for _, ev := range m.evidence {
		if ev.CaseID == caseID && ev.RunID == runID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *mockGroundingStore) LinkChunk(_ context.Context, evidenceID, chunkID uuid.UUID) error {
	for _, existing := range m.links[evidenceID] {
		if existing == chunkID {
			return nil
		}
	}
	m.links[evidenceID] = append(m.links[evidenceID], chunkID)
	return nil
}

func (m *mockGroundingStore) CountCitations(_ context.Context, evidenceID uuid.UUID) (int, error) {
	return len(m.links[evidenceID]), nil
}
