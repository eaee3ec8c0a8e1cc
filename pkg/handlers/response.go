package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/coursebridge-io/equivalency-engine/pkg/apperrors"
)

// ApiResponse wraps data in the format expected by the frontend.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// serviceError maps a service-layer error onto an HTTP status and stable
// error code.
func serviceError(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, apperrors.ErrCaseAlreadyReviewed):
		return http.StatusConflict, "case_already_reviewed"
	case errors.Is(err, apperrors.ErrRunFinalized):
		return http.StatusConflict, "run_finalized"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrCommentRequired):
		return http.StatusBadRequest, "comment_required"
	case errors.Is(err, apperrors.ErrUnsupportedContentType):
		return http.StatusBadRequest, "unsupported_content_type"
	case errors.Is(err, apperrors.ErrNoDocuments):
		return http.StatusBadRequest, "no_documents"
	case errors.Is(err, apperrors.ErrInvalidAction),
		errors.Is(err, apperrors.ErrInvalidStatus):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, apperrors.ErrUngroundedClaim):
		return http.StatusUnprocessableEntity, "ungrounded_claim"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// RespondServiceError translates err per serviceError and writes it.
func RespondServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, code := serviceError(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
	}
	if werr := ErrorResponse(w, status, code, err.Error()); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}
