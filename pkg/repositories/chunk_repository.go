package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coursebridge-io/equivalency-engine/pkg/database"
	"github.com/coursebridge-io/equivalency-engine/pkg/models"
)

// ChunkRepository provides data access for citation chunks.
type ChunkRepository interface {
	// Upsert writes a chunk keyed on its content-derived id. Re-extraction
	// over unchanged input hits the same id and refreshes the snippet
	// instead of inserting a duplicate row. The chunk's row id is set on
	// return either way.
	Upsert(ctx context.Context, chunk *models.CitationChunk) error
	GetByEvidence(ctx context.Context, evidenceID uuid.UUID) ([]*models.CitationChunk, error)
	ListByRun(ctx context.Context, runID uuid.UUID) ([]*models.CitationChunk, error)
}

type chunkRepository struct {
	db *database.DB
}

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(db *database.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

var _ ChunkRepository = (*chunkRepository)(nil)

const chunkColumns = `chunk_id, chunk_sha_id, doc_id, extraction_run_id, page_num, span_start, span_end, snippet_text, full_text, created_at`

func (r *chunkRepository) Upsert(ctx context.Context, chunk *models.CitationChunk) error {
	if chunk.ContentID == "" {
		chunk.ContentID = models.ChunkContentID(chunk.DocID, chunk.RunID,
			chunk.PageNum, chunk.SpanStart, chunk.SpanEnd, chunk.FullText)
	}
	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}
	chunk.CreatedAt = time.Now()

	query := `
		INSERT INTO citation_chunks (
			chunk_id, chunk_sha_id, doc_id, extraction_run_id,
			page_num, span_start, span_end, snippet_text, full_text, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (chunk_sha_id) DO UPDATE SET snippet_text = EXCLUDED.snippet_text
		RETURNING chunk_id, created_at`

	row := r.db.Querier(ctx).QueryRow(ctx, query,
		chunk.ID, chunk.ContentID, chunk.DocID, chunk.RunID,
		chunk.PageNum, chunk.SpanStart, chunk.SpanEnd, chunk.Snippet, chunk.FullText, chunk.CreatedAt)
	if err := row.Scan(&chunk.ID, &chunk.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}
	return nil
}

// GetByEvidence returns the chunks cited by one evidence fact, ordered by
// page then span start for stable citation-block rendering.
func (r *chunkRepository) GetByEvidence(ctx context.Context, evidenceID uuid.UUID) ([]*models.CitationChunk, error) {
	query := `
		SELECT c.chunk_id, c.chunk_sha_id, c.doc_id, c.extraction_run_id,
		       c.page_num, c.span_start, c.span_end, c.snippet_text, c.full_text, c.created_at
		FROM citation_chunks c
		JOIN evidence_citations ec ON ec.chunk_id = c.chunk_id
		WHERE ec.evidence_id = $1
		ORDER BY c.page_num ASC, c.span_start ASC`

	rows, err := r.db.Querier(ctx).Query(ctx, query, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get citations for evidence: %w", err)
	}
	return collectChunks(rows)
}

func (r *chunkRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]*models.CitationChunk, error) {
	rows, err := r.db.Querier(ctx).Query(ctx,
		`SELECT `+chunkColumns+` FROM citation_chunks
		 WHERE extraction_run_id = $1
		 ORDER BY page_num ASC, span_start ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	return collectChunks(rows)
}

func collectChunks(rows pgx.Rows) ([]*models.CitationChunk, error) {
	defer rows.Close()
	var chunks []*models.CitationChunk
	for rows.Next() {
		var c models.CitationChunk
		if err := rows.Scan(&c.ID, &c.ContentID, &c.DocID, &c.RunID,
			&c.PageNum, &c.SpanStart, &c.SpanEnd, &c.Snippet, &c.FullText, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}
