package models

import (
	"time"

	"github.com/google/uuid"
)

// PDFContentType is the only content type accepted for uploads. Non-PDF
// documents are rejected at the boundary before anything is persisted.
const PDFContentType = "application/pdf"

// Document records immutable metadata for one uploaded file. A document is
// never overwritten: re-upload of a logically-replaced file (same filename on
// the same case) inserts a new row and flips the prior row inactive, which
// preserves provenance across re-submissions.
type Document struct {
	ID          uuid.UUID `json:"doc_id"`
	CaseID      uuid.UUID `json:"case_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SHA256      string    `json:"sha256"`
	StorageURI  string    `json:"storage_uri"`
	SizeBytes   *int64    `json:"size_bytes,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsPDF reports whether the document carries the accepted content type.
func (d *Document) IsPDF() bool {
	return d.ContentType == PDFContentType
}

// DocumentUpload is the metadata for a file the student uploaded. The blob
// itself lives in external storage; the engine records hash and locator only.
type DocumentUpload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SHA256      string `json:"sha256"`
	StorageURI  string `json:"storage_uri"`
	SizeBytes   *int64 `json:"size_bytes,omitempty"`
}
