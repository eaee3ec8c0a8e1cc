package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReviewActionType represents what a reviewer did with a case.
type ReviewActionType string

const (
	ReviewActionApprove     ReviewActionType = "approve"
	ReviewActionDeny        ReviewActionType = "deny"
	ReviewActionRequestInfo ReviewActionType = "request_info"
	// ReviewActionOverride is the only action accepted on a reviewed case.
	ReviewActionOverride ReviewActionType = "override"
)

// ValidReviewActionTypes contains all valid action values.
var ValidReviewActionTypes = []ReviewActionType{
	ReviewActionApprove,
	ReviewActionDeny,
	ReviewActionRequestInfo,
	ReviewActionOverride,
}

// IsValidReviewActionType checks if the given action is valid.
func IsValidReviewActionType(a ReviewActionType) bool {
	for _, v := range ValidReviewActionTypes {
		if v == a {
			return true
		}
	}
	return false
}

// RequiresComment returns true if the action cannot be recorded without a
// non-blank comment.
func (a ReviewActionType) RequiresComment() bool {
	return a == ReviewActionRequestInfo
}

// ReviewAction is one append-only entry in the review ledger. DecisionRunID
// optionally ties the action to the decision run it responds to; the
// reference is nulled, not cascaded, if that run is ever deleted, so the
// action's existence survives the run's lifecycle.
type ReviewAction struct {
	ID            uuid.UUID        `json:"review_action_id"`
	Seq           int64            `json:"-"`
	CaseID        uuid.UUID        `json:"case_id"`
	ReviewerID    string           `json:"reviewer_id"`
	Action        ReviewActionType `json:"action"`
	Comment       string           `json:"comment"`
	DecisionRunID *uuid.UUID       `json:"decision_run_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// HasComment returns true if the comment carries any non-whitespace content.
func (r *ReviewAction) HasComment() bool {
	return strings.TrimSpace(r.Comment) != ""
}

// LatestVerdict scans actions in insertion order and returns the last
// approve or deny entry's action. Insertion order, not timestamp, breaks
// ties: two actions can share a timestamp at sub-second granularity.
// Returns "" when no verdict has been recorded.
func LatestVerdict(actions []*ReviewAction) ReviewActionType {
	var verdict ReviewActionType
	for _, a := range actions {
		if a.Action == ReviewActionApprove || a.Action == ReviewActionDeny {
			verdict = a.Action
		}
	}
	return verdict
}

// LatestComment returns the comment of the most recent action that has one,
// scanning in insertion order. Used to surface the case's current reviewer
// comment (e.g. what extra information was requested).
func LatestComment(actions []*ReviewAction) string {
	comment := ""
	for _, a := range actions {
		if a.HasComment() {
			comment = a.Comment
		}
	}
	return comment
}
