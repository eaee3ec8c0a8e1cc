// Package models contains domain types for the equivalency engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Case Status
// ============================================================================

// CaseStatus represents where a case sits in its review lifecycle.
// State machine:
//
//	uploaded → extracting → ready_for_decision → ai_recommendation → review_pending → reviewed
//	                                  ↓                                     ↓
//	                             needs_info ←───────────────────────────────┘
//	                                  ↓ (new documents)
//	                             extracting
//
// reviewed is terminal. Approved/denied are display projections computed from
// the review ledger, never stored.
type CaseStatus string

const (
	CaseStatusUploaded         CaseStatus = "uploaded"
	CaseStatusExtracting       CaseStatus = "extracting"
	CaseStatusReadyForDecision CaseStatus = "ready_for_decision"
	CaseStatusAIRecommendation CaseStatus = "ai_recommendation"
	CaseStatusReviewPending    CaseStatus = "review_pending"
	CaseStatusNeedsInfo        CaseStatus = "needs_info"
	CaseStatusReviewed         CaseStatus = "reviewed"
)

// ValidCaseStatuses contains all valid status values.
var ValidCaseStatuses = []CaseStatus{
	CaseStatusUploaded,
	CaseStatusExtracting,
	CaseStatusReadyForDecision,
	CaseStatusAIRecommendation,
	CaseStatusReviewPending,
	CaseStatusNeedsInfo,
	CaseStatusReviewed,
}

// IsValidCaseStatus checks if the given status is valid. Status values are a
// closed set; unrecognized strings are rejected at the store boundary rather
// than normalized on read.
func IsValidCaseStatus(s CaseStatus) bool {
	for _, v := range ValidCaseStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the status is terminal.
func (s CaseStatus) IsTerminal() bool {
	return s == CaseStatusReviewed
}

// CanTransitionTo returns true if transitioning from this status to the
// target is an edge of the state machine. Guards on individual edges (new
// documents present, comment non-blank) are enforced by the case service.
func (s CaseStatus) CanTransitionTo(target CaseStatus) bool {
	switch s {
	case CaseStatusUploaded:
		return target == CaseStatusExtracting
	case CaseStatusExtracting:
		return target == CaseStatusReadyForDecision
	case CaseStatusReadyForDecision:
		return target == CaseStatusAIRecommendation || target == CaseStatusNeedsInfo
	case CaseStatusAIRecommendation:
		return target == CaseStatusReviewPending
	case CaseStatusReviewPending:
		return target == CaseStatusReviewed || target == CaseStatusNeedsInfo
	case CaseStatusNeedsInfo:
		return target == CaseStatusExtracting
	case CaseStatusReviewed:
		return false
	default:
		return false
	}
}

// ============================================================================
// Display Status
// ============================================================================

// DisplayStatus is the student-facing status label. It is a read-time
// projection: reviewed cases surface the latest reviewer verdict, and
// ai_recommendation surfaces as DECIDED.
type DisplayStatus string

const (
	DisplayUploaded         DisplayStatus = "UPLOADED"
	DisplayExtracting       DisplayStatus = "EXTRACTING"
	DisplayReadyForDecision DisplayStatus = "READY_FOR_DECISION"
	DisplayDecided          DisplayStatus = "DECIDED"
	DisplayReviewPending    DisplayStatus = "REVIEW_PENDING"
	DisplayNeedsInfo        DisplayStatus = "NEEDS_INFO"
	DisplayReviewed         DisplayStatus = "REVIEWED"
	DisplayApproved         DisplayStatus = "APPROVED"
	DisplayDenied           DisplayStatus = "DENIED"
)

// DisplayStatusFor computes the student-facing label for a case. The actions
// slice must be in insertion order; for reviewed cases the last approve or
// deny entry wins (insertion order, not timestamp, breaks ties since two
// actions can share a timestamp at sub-second granularity).
func DisplayStatusFor(status CaseStatus, actions []*ReviewAction) DisplayStatus {
	switch status {
	case CaseStatusUploaded:
		return DisplayUploaded
	case CaseStatusExtracting:
		return DisplayExtracting
	case CaseStatusReadyForDecision:
		return DisplayReadyForDecision
	case CaseStatusAIRecommendation:
		return DisplayDecided
	case CaseStatusReviewPending:
		return DisplayReviewPending
	case CaseStatusNeedsInfo:
		return DisplayNeedsInfo
	case CaseStatusReviewed:
		switch LatestVerdict(actions) {
		case ReviewActionApprove:
			return DisplayApproved
		case ReviewActionDeny:
			return DisplayDenied
		default:
			return DisplayReviewed
		}
	default:
		return DisplayStatus(status)
	}
}

// ============================================================================
// Case Model
// ============================================================================

// Case is a single student's equivalency request, the root aggregate of the
// data model. Cases are never deleted; only Status and UpdatedAt are ever
// mutated, and only through the case service.
type Case struct {
	ID              uuid.UUID  `json:"case_id"`
	StudentID       string     `json:"student_id"`
	StudentName     *string    `json:"student_name,omitempty"`
	CourseRequested *string    `json:"course_requested,omitempty"`
	Status          CaseStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
