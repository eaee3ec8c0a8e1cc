package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Evidence is a structured fact derived from a case's documents by one
// extraction run. Unknown distinguishes "we looked and found nothing" from
// "we have a value". The grounding invariant is enforced at write time by the
// grounding service: a non-unknown fact must link at least one citation
// chunk. Rows are write-once.
type Evidence struct {
	ID        uuid.UUID       `json:"evidence_id"`
	CaseID    uuid.UUID       `json:"case_id"`
	RunID     uuid.UUID       `json:"extraction_run_id"`
	FactType  string          `json:"fact_type"`
	FactKey   *string         `json:"fact_key,omitempty"`
	FactValue *string         `json:"fact_value,omitempty"`
	FactJSON  json.RawMessage `json:"fact_json,omitempty"`
	Unknown   bool            `json:"unknown"`
	Notes     *string         `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Grounded reports whether the fact satisfies the grounding invariant given
// its citation count: unknown facts need none, known facts need at least one.
func (e *Evidence) Grounded(citationCount int) bool {
	return e.Unknown || citationCount >= 1
}

// EvidenceCitation links one evidence fact to one supporting chunk. The
// (evidence, chunk) pair is unique; duplicate links are ignored on write.
type EvidenceCitation struct {
	EvidenceID uuid.UUID `json:"evidence_id"`
	ChunkID    uuid.UUID `json:"chunk_id"`
}
