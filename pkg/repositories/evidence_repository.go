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

// EvidenceRepository provides data access for grounded evidence facts and
// their citation links. Evidence rows are write-once.
type EvidenceRepository interface {
	Create(ctx context.Context, ev *models.Evidence) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Evidence, error)
	ListByCaseAndRun(ctx context.Context, caseID, runID uuid.UUID) ([]*models.Evidence, error)
	// LinkChunk ties a fact to a supporting chunk; duplicate links are
	// ignored via the join table's uniqueness constraint.
	LinkChunk(ctx context.Context, evidenceID, chunkID uuid.UUID) error
	CountCitations(ctx context.Context, evidenceID uuid.UUID) (int, error)
}

type evidenceRepository struct {
	db *database.DB
}

// NewEvidenceRepository creates a new EvidenceRepository.
func NewEvidenceRepository(db *database.DB) EvidenceRepository {
	return &evidenceRepository{db: db}
}

var _ EvidenceRepository = (*evidenceRepository)(nil)

const evidenceColumns = `evidence_id, case_id, extraction_run_id, fact_type, fact_key, fact_value, fact_json, unknown, notes, created_at`

func (r *evidenceRepository) Create(ctx context.Context, ev *models.Evidence) error {
	ev.CreatedAt = time.Now()
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}

	query := `
		INSERT INTO grounded_evidence (` + evidenceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		ev.ID, ev.CaseID, ev.RunID, ev.FactType, ev.FactKey,
		ev.FactValue, ev.FactJSON, ev.Unknown, ev.Notes, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create evidence: %w", err)
	}
	return nil
}

func (r *evidenceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Evidence, error) {
	row := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT `+evidenceColumns+` FROM grounded_evidence WHERE evidence_id = $1`, id)
	ev, err := scanEvidence(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("evidence %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get evidence: %w", err)
	}
	return ev, nil
}

func (r *evidenceRepository) ListByCaseAndRun(ctx context.Context, caseID, runID uuid.UUID) ([]*models.Evidence, error) {
	rows, err := r.db.Querier(ctx).Query(ctx,
		`SELECT `+evidenceColumns+` FROM grounded_evidence
		 WHERE case_id = $1 AND extraction_run_id = $2
		 ORDER BY created_at ASC`, caseID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	defer rows.Close()

	var out []*models.Evidence
	for rows.Next() {
		ev, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *evidenceRepository) LinkChunk(ctx context.Context, evidenceID, chunkID uuid.UUID) error {
	_, err := r.db.Querier(ctx).Exec(ctx,
		`INSERT INTO evidence_citations (evidence_id, chunk_id)
		 VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, evidenceID, chunkID)
	if err != nil {
		return fmt.Errorf("failed to link evidence citation: %w", err)
	}
	return nil
}

func (r *evidenceRepository) CountCitations(ctx context.Context, evidenceID uuid.UUID) (int, error) {
	var count int
	err := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM evidence_citations WHERE evidence_id = $1`, evidenceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count citations: %w", err)
	}
	return count, nil
}

func scanEvidence(row pgx.Row) (*models.Evidence, error) {
	var ev models.Evidence
	if err := row.Scan(&ev.ID, &ev.CaseID, &ev.RunID, &ev.FactType, &ev.FactKey,
		&ev.FactValue, &ev.FactJSON, &ev.Unknown, &ev.Notes, &ev.CreatedAt); err != nil {
		return nil, err
	}
	return &ev, nil
}
