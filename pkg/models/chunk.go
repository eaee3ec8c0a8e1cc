package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnippetMaxLen caps the snippet stored alongside a chunk's full text.
const SnippetMaxLen = 200

// CitationChunk is a verbatim excerpt of a source document, produced by one
// extraction run. ContentID is derived from the chunk's identity and text, so
// re-running extraction over unchanged input reproduces the same id instead
// of duplicating rows.
type CitationChunk struct {
	ID        uuid.UUID `json:"chunk_id"`
	ContentID string    `json:"chunk_sha_id"`
	DocID     uuid.UUID `json:"doc_id"`
	RunID     uuid.UUID `json:"extraction_run_id"`
	PageNum   int       `json:"page_num"`
	SpanStart int       `json:"span_start"`
	SpanEnd   int       `json:"span_end"`
	Snippet   string    `json:"snippet_text"`
	FullText  string    `json:"full_text,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChunkContentID computes the deterministic identifier for a chunk:
// sha256 over "docID|runID|page|spanStart|spanEnd|fullText".
func ChunkContentID(docID, runID uuid.UUID, page, spanStart, spanEnd int, fullText string) string {
	basis := fmt.Sprintf("%s|%s|%d|%d|%d|%s", docID, runID, page, spanStart, spanEnd, fullText)
	sum := sha256.Sum256([]byte(basis))
	return hex.EncodeToString(sum[:])
}

// Snippet returns text truncated to the snippet length.
func Snippet(text string) string {
	if len(text) <= SnippetMaxLen {
		return text
	}
	return text[:SnippetMaxLen]
}
