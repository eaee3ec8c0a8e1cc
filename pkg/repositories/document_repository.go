package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coursebridge-io/equivalency-engine/pkg/database"
	"github.com/coursebridge-io/equivalency-engine/pkg/models"
)

// DocumentRepository provides data access for uploaded document metadata.
// Rows are write-once except the is_active flag, which flips to false when a
// document is logically replaced.
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByCase(ctx context.Context, caseID uuid.UUID) ([]*models.Document, error)
	GetActiveByCase(ctx context.Context, caseID uuid.UUID) ([]*models.Document, error)
	// DeactivatePrior marks every active document on the case with the given
	// filename inactive. Called in the same transaction as the replacing
	// insert so the active set never holds two versions of one file.
	DeactivatePrior(ctx context.Context, caseID uuid.UUID, filename string) error
}

type documentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *database.DB) DocumentRepository {
	return &documentRepository{db: db}
}

var _ DocumentRepository = (*documentRepository)(nil)

func (r *documentRepository) Create(ctx context.Context, doc *models.Document) error {
	doc.CreatedAt = time.Now()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}

	query := `
		INSERT INTO documents (doc_id, case_id, filename, content_type, sha256, storage_uri, size_bytes, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		doc.ID, doc.CaseID, doc.Filename, doc.ContentType, doc.SHA256,
		doc.StorageURI, doc.SizeBytes, doc.IsActive, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (r *documentRepository) GetByCase(ctx context.Context, caseID uuid.UUID) ([]*models.Document, error) {
	return r.listByCase(ctx, caseID, false)
}

func (r *documentRepository) GetActiveByCase(ctx context.Context, caseID uuid.UUID) ([]*models.Document, error) {
	return r.listByCase(ctx, caseID, true)
}

func (r *documentRepository) listByCase(ctx context.Context, caseID uuid.UUID, activeOnly bool) ([]*models.Document, error) {
	query := `
		SELECT doc_id, case_id, filename, content_type, sha256, storage_uri, size_bytes, is_active, created_at
		FROM documents
		WHERE case_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.Querier(ctx).Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.CaseID, &d.Filename, &d.ContentType, &d.SHA256,
			&d.StorageURI, &d.SizeBytes, &d.IsActive, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

func (r *documentRepository) DeactivatePrior(ctx context.Context, caseID uuid.UUID, filename string) error {
	_, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE documents SET is_active = FALSE WHERE case_id = $1 AND filename = $2 AND is_active`,
		caseID, filename)
	if err != nil {
		return fmt.Errorf("failed to deactivate prior documents: %w", err)
	}
	return nil
}
