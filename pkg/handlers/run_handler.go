package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursebridge-io/equivalency-engine/pkg/models"
	"github.com/coursebridge-io/equivalency-engine/pkg/services"
)

// RunHandler is the callback surface for the external extraction and
// decision workers. Workers report lifecycle events here; the core never
// polls them.
type RunHandler struct {
	runService services.RunService
	logger     *zap.Logger
}

// NewRunHandler creates a new run handler.
func NewRunHandler(runService services.RunService, logger *zap.Logger) *RunHandler {
	return &RunHandler{
		runService: runService,
		logger:     logger,
	}
}

// RegisterRoutes registers the run handler's routes on the given mux.
func (h *RunHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/runs/extraction/{runId}/start", h.StartExtraction)
	mux.HandleFunc("POST /api/runs/extraction/{runId}/complete", h.CompleteExtraction)
	mux.HandleFunc("POST /api/runs/extraction/{runId}/fail", h.FailExtraction)
	mux.HandleFunc("POST /api/runs/decision/{runId}/start", h.StartDecision)
	mux.HandleFunc("POST /api/runs/decision/{runId}/complete", h.CompleteDecision)
	mux.HandleFunc("POST /api/runs/decision/{runId}/fail", h.FailDecision)
}

func parseRunID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	runID, err := uuid.Parse(r.PathValue("runId"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_run_id", "Invalid run ID format"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return runID, true
}

type failRunRequest struct {
	ErrorMessage string `json:"error_message"`
}

// StartExtraction handles POST /api/runs/extraction/{runId}/start
func (h *RunHandler) StartExtraction(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.runService.StartExtraction(r.Context(), runID); err != nil {
		RespondServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Extraction run started"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// CompleteExtraction handles POST /api/runs/extraction/{runId}/complete
func (h *RunHandler) CompleteExtraction(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.ExtractionCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.runService.CompleteExtraction(r.Context(), runID, req); err != nil {
		RespondServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Extraction run completed"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// FailExtraction handles POST /api/runs/extraction/{runId}/fail
func (h *RunHandler) FailExtraction(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, r, h.logger)
	if !ok {
		return
	}

	var req failRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.runService.FailExtraction(r.Context(), runID, req.ErrorMessage); err != nil {
		RespondServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Extraction run failed"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// StartDecision handles POST /api/runs/decision/{runId}/start
func (h *RunHandler) StartDecision(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.runService.StartDecision(r.Context(), runID); err != nil {
		RespondServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Decision run started"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// CompleteDecision handles POST /api/runs/decision/{runId}/complete
func (h *RunHandler) CompleteDecision(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, r, h.logger)
	if !ok {
		return
	}

	var result models.DecisionResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.runService.CompleteDecision(r.Context(), runID, &result); err != nil {
		RespondServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Decision run completed"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// FailDecision handles POST /api/runs/decision/{runId}/fail
func (h *RunHandler) FailDecision(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, r, h.logger)
	if !ok {
		return
	}

	var req failRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.runService.FailDecision(r.Context(), runID, req.ErrorMessage); err != nil {
		RespondServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Decision run failed"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
