package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/coursebridge-io/equivalency-engine/pkg/services"
)

// ReviewHandler handles reviewer-action HTTP requests.
type ReviewHandler struct {
	reviewService services.ReviewService
	logger        *zap.Logger
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(reviewService services.ReviewService, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{
		reviewService: reviewService,
		logger:        logger,
	}
}

// RegisterRoutes registers the review handler's routes on the given mux.
func (h *ReviewHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/cases/{caseId}/review", h.RecordAction)
	mux.HandleFunc("GET /api/cases/{caseId}/review", h.ListActions)
}

// RecordAction handles POST /api/cases/{caseId}/review
func (h *ReviewHandler) RecordAction(w http.ResponseWriter, r *http.Request) {
	caseID, ok := parseCaseID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.RecordActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	action, err := h.reviewService.RecordAction(r.Context(), caseID, req)
	if err != nil {
		RespondServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: action}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListActions handles GET /api/cases/{caseId}/review
func (h *ReviewHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	caseID, ok := parseCaseID(w, r, h.logger)
	if !ok {
		return
	}

	actions, err := h.reviewService.ListActions(r.Context(), caseID)
	if err != nil {
		RespondServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: actions}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
