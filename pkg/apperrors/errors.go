package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrUngroundedClaim        = errors.New("evidence without citations")
	ErrCommentRequired        = errors.New("comment required")
	ErrCaseAlreadyReviewed    = errors.New("case already reviewed")
	ErrRunFinalized           = errors.New("run already finalized")
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrNoDocuments            = errors.New("at least one document required")
	ErrInvalidStatus          = errors.New("unrecognized status value")
	ErrInvalidAction          = errors.New("unrecognized review action")
)

// InvalidTransitionError identifies the case status and the attempted event
// when a transition is rejected. It unwraps to ErrInvalidTransition so callers
// can match with errors.Is.
type InvalidTransitionError struct {
	Current   string
	Attempted string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: cannot %s while %s", e.Attempted, e.Current)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// NewInvalidTransition builds an InvalidTransitionError for the given current
// status and attempted event.
func NewInvalidTransition(current, attempted string) error {
	return &InvalidTransitionError{Current: current, Attempted: attempted}
}
