package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Run Status
// ============================================================================

// RunStatus represents the lifecycle of one pipeline execution attempt.
// State machine:
//
//	queued → running → {completed, failed}
//
// Only forward transitions are permitted. A run that reaches completed or
// failed is immutable; retrying means creating a new run record, which keeps
// the history of every attempt intact for diagnosis.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ValidRunStatuses contains all valid run status values.
var ValidRunStatuses = []RunStatus{
	RunStatusQueued,
	RunStatusRunning,
	RunStatusCompleted,
	RunStatusFailed,
}

// IsValidRunStatus checks if the given status is valid.
func IsValidRunStatus(s RunStatus) bool {
	for _, v := range ValidRunStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the run can no longer change state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// CanTransitionTo returns true for forward transitions only.
func (s RunStatus) CanTransitionTo(target RunStatus) bool {
	switch s {
	case RunStatusQueued:
		return target == RunStatusRunning || target == RunStatusFailed
	case RunStatusRunning:
		return target == RunStatusCompleted || target == RunStatusFailed
	case RunStatusCompleted, RunStatusFailed:
		return false
	default:
		return false
	}
}

// ============================================================================
// Run Models
// ============================================================================

// ExtractionRun is one execution attempt of the external extraction pipeline
// over a case's active documents. One case accumulates many runs, one per
// upload cycle; re-submission after needs_info always starts a fresh run so
// each cycle carries its own audit trail.
type ExtractionRun struct {
	ID             uuid.UUID  `json:"extraction_run_id"`
	CaseID         uuid.UUID  `json:"case_id"`
	Status         RunStatus  `json:"status"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	ManifestURI    *string    `json:"manifest_uri,omitempty"`
	ManifestSHA256 *string    `json:"manifest_sha256,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// DecisionRun is one execution attempt of the external decision engine.
// Inputs holds the exact evidence packet the engine was given, so a decision
// is reproducible from the stored record alone.
type DecisionRun struct {
	ID           uuid.UUID       `json:"decision_run_id"`
	CaseID       uuid.UUID       `json:"case_id"`
	Status       RunStatus       `json:"status"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	Inputs       json.RawMessage `json:"decision_inputs,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}
