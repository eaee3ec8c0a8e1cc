package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Verdict / Confidence / Severity
// ============================================================================

// DecisionVerdict is the decision engine's recommendation for a case.
type DecisionVerdict string

const (
	VerdictApprove           DecisionVerdict = "APPROVE"
	VerdictDeny              DecisionVerdict = "DENY"
	VerdictNeedsMoreInfo     DecisionVerdict = "NEEDS_MORE_INFO"
	VerdictApproveWithBridge DecisionVerdict = "APPROVE_WITH_BRIDGE"
)

// ValidDecisionVerdicts contains all valid verdict values.
var ValidDecisionVerdicts = []DecisionVerdict{
	VerdictApprove,
	VerdictDeny,
	VerdictNeedsMoreInfo,
	VerdictApproveWithBridge,
}

// IsValidDecisionVerdict checks if the given verdict is valid.
func IsValidDecisionVerdict(v DecisionVerdict) bool {
	for _, d := range ValidDecisionVerdicts {
		if d == v {
			return true
		}
	}
	return false
}

// ConfidenceLevel grades how much the engine trusts its own recommendation.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceHigh   ConfidenceLevel = "HIGH"
)

// IsValidConfidenceLevel checks if the given level is valid.
func IsValidConfidenceLevel(c ConfidenceLevel) bool {
	return c == ConfidenceLow || c == ConfidenceMedium || c == ConfidenceHigh
}

// GapSeverity classifies a gap between source and target course.
type GapSeverity string

const (
	// GapHard cannot be remediated; it blocks approval.
	GapHard GapSeverity = "HARD"
	// GapFixable can be closed with a bridge requirement.
	GapFixable GapSeverity = "FIXABLE"
	// GapInfoMissing means the evidence needed to judge is absent.
	GapInfoMissing GapSeverity = "INFO_MISSING"
)

// IsValidGapSeverity checks if the given severity is valid.
func IsValidGapSeverity(s GapSeverity) bool {
	return s == GapHard || s == GapFixable || s == GapInfoMissing
}

// ============================================================================
// Decision Result
// ============================================================================

// CitationRef points a reason or gap back at the verbatim source text it
// rests on.
type CitationRef struct {
	DocID   uuid.UUID  `json:"doc_id"`
	ChunkID *uuid.UUID `json:"chunk_id,omitempty"`
	Page    *int       `json:"page,omitempty"`
	Span    *string    `json:"span,omitempty"`
	Snippet *string    `json:"snippet,omitempty"`
}

// ReasonItem is one cited argument in favor of the recommendation.
type ReasonItem struct {
	Text      string        `json:"text"`
	Citations []CitationRef `json:"citations"`
}

// GapItem is one cited shortfall between source and target course.
type GapItem struct {
	Text      string        `json:"text"`
	Severity  GapSeverity   `json:"severity"`
	Citations []CitationRef `json:"citations"`
}

// DecisionResult is the immutable output of one completed decision run.
// NeedsMoreInfo is the workflow signal the case state machine inspects: true
// routes the case to needs_info instead of ai_recommendation.
type DecisionResult struct {
	DecisionRunID       uuid.UUID       `json:"decision_run_id"`
	Verdict             DecisionVerdict `json:"decision"`
	EquivalencyScore    int             `json:"equivalency_score"`
	Confidence          ConfidenceLevel `json:"confidence"`
	Reasons             []ReasonItem    `json:"reasons"`
	Gaps                []GapItem       `json:"gaps"`
	BridgePlan          []string        `json:"bridge_plan"`
	MissingInfoRequests []string        `json:"missing_info_requests"`
	NeedsMoreInfo       bool            `json:"needs_more_info"`
	MissingFields       []string        `json:"missing_fields,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// ============================================================================
// Decision Inputs
// ============================================================================

// EvidenceField is one extracted value with its grounding: either a value
// with citations, or unknown.
type EvidenceField struct {
	Value     any           `json:"value,omitempty"`
	Unknown   bool          `json:"unknown"`
	Citations []CitationRef `json:"citations"`
}

// CourseEvidence is the grounded profile of the student's source course,
// assembled from the latest extraction run.
type CourseEvidence struct {
	Credits             EvidenceField `json:"credits"`
	ContactHoursLecture EvidenceField `json:"contact_hours_lecture"`
	ContactHoursLab     EvidenceField `json:"contact_hours_lab"`
	LabComponent        EvidenceField `json:"lab_component"`
	Topics              EvidenceField `json:"topics"`
	Outcomes            EvidenceField `json:"outcomes"`
	Assessments         EvidenceField `json:"assessments"`
}

// TargetCourseProfile describes the course the student wants credit for,
// loaded from the course catalog file.
type TargetCourseProfile struct {
	Course           string   `json:"course" yaml:"course"`
	TargetCredits    int      `json:"target_credits" yaml:"target_credits"`
	TargetLabReq     bool     `json:"target_lab_required" yaml:"target_lab_required"`
	RequiredTopics   []string `json:"required_topics" yaml:"required_topics"`
	RequiredOutcomes []string `json:"required_outcomes" yaml:"required_outcomes"`
}

// PolicyConfig holds the decision policy thresholds and needs-more-info
// triggers handed to the engine with every packet.
type PolicyConfig struct {
	ApproveThreshold       int  `json:"approve_threshold" yaml:"approve_threshold"`
	BridgeThreshold        int  `json:"bridge_threshold" yaml:"bridge_threshold"`
	RequireLabParity       bool `json:"require_lab_parity" yaml:"require_lab_parity"`
	RequireCreditsKnown    bool `json:"require_credits_known" yaml:"require_credits_known"`
	RequireTopicsOrOutcome bool `json:"require_topics_or_outcomes" yaml:"require_topics_or_outcomes"`
}

// DecisionInputsPacket is the full input snapshot handed to the decision
// engine and persisted on the decision run. The engine must be a pure
// function over this packet.
type DecisionInputsPacket struct {
	CaseID       uuid.UUID           `json:"case_id"`
	SourceCourse CourseEvidence      `json:"source_course"`
	TargetCourse TargetCourseProfile `json:"target_course"`
	Policy       PolicyConfig        `json:"policy"`
}
