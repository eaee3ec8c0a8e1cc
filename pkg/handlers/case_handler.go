package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursebridge-io/equivalency-engine/pkg/models"
	"github.com/coursebridge-io/equivalency-engine/pkg/services"
)

// CaseHandler handles case lifecycle HTTP requests.
type CaseHandler struct {
	caseService services.CaseService
	runService  services.RunService
	logger      *zap.Logger
}

// NewCaseHandler creates a new case handler.
func NewCaseHandler(caseService services.CaseService, runService services.RunService, logger *zap.Logger) *CaseHandler {
	return &CaseHandler{
		caseService: caseService,
		runService:  runService,
		logger:      logger,
	}
}

// RegisterRoutes registers the case handler's routes on the given mux.
func (h *CaseHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/cases", h.CreateCase)
	mux.HandleFunc("GET /api/cases", h.ListCases)
	mux.HandleFunc("GET /api/cases/{caseId}", h.GetCase)
	mux.HandleFunc("POST /api/cases/{caseId}/documents", h.AddDocuments)
	mux.HandleFunc("POST /api/cases/{caseId}/assign", h.AssignReviewer)
	mux.HandleFunc("GET /api/cases/{caseId}/decision", h.GetDecision)
	mux.HandleFunc("POST /api/cases/{caseId}/decision", h.QueueDecision)
}

// parseCaseID reads the {caseId} path value; on failure it writes the error
// response and returns false.
func parseCaseID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	caseID, err := uuid.Parse(r.PathValue("caseId"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_case_id", "Invalid case ID format"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return caseID, true
}

// CreateCase handles POST /api/cases
func (h *CaseHandler) CreateCase(w http.ResponseWriter, r *http.Request) {
	var req services.CreateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	c, err := h.caseService.CreateCase(r.Context(), req)
	if err != nil {
		RespondServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: c}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListCases handles GET /api/cases?studentId=
func (h *CaseHandler) ListCases(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.caseService.ListCases(r.Context(), r.URL.Query().Get("studentId"))
	if err != nil {
		RespondServiceError(w, h.logger, err)
		return
	}
	if summaries == nil {
		summaries = make([]services.CaseSummary, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: summaries}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetCase handles GET /api/cases/{caseId}
func (h *CaseHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	caseID, ok := parseCaseID(w, r, h.logger)
	if !ok {
		return
	}

	detail, err := h.caseService.GetCaseDetail(r.Context(), caseID)
	if err != nil {
		RespondServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: detail}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type addDocumentsRequest struct {
	Documents []models.DocumentUpload `json:"documents"`
}

// AddDocuments handles POST /api/cases/{caseId}/documents
func (h *CaseHandler) AddDocuments(w http.ResponseWriter, r *http.Request) {
	caseID, ok := parseCaseID(w, r, h.logger)
	if !ok {
		return
	}

	var req addDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	c, err := h.caseService.AddDocuments(r.Context(), caseID, req.Documents)
	if err != nil {
		RespondServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: c}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type assignReviewerRequest struct {
	ReviewerID string `json:"reviewer_id"`
}

// AssignReviewer handles POST /api/cases/{caseId}/assign
func (h *CaseHandler) AssignReviewer(w http.ResponseWriter, r *http.Request) {
	caseID, ok := parseCaseID(w, r, h.logger)
	if !ok {
		return
	}

	var req assignReviewerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.caseService.AssignReviewer(r.Context(), caseID, req.ReviewerID); err != nil {
		RespondServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Reviewer assigned"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// decisionStatusResponse distinguishes "no decision yet" from an error.
type decisionStatusResponse struct {
	Decided  bool                   `json:"decided"`
	Decision *models.DecisionResult `json:"decision,omitempty"`
}

// GetDecision handles GET /api/cases/{caseId}/decision
func (h *CaseHandler) GetDecision(w http.ResponseWriter, r *http.Request) {
	caseID, ok := parseCaseID(w, r, h.logger)
	if !ok {
		return
	}

	decision, err := h.caseService.GetLatestDecision(r.Context(), caseID)
	if err != nil {
		RespondServiceError(w, h.logger, err)
		return
	}

	resp := decisionStatusResponse{Decided: decision != nil, Decision: decision}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: resp}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// QueueDecision handles POST /api/cases/{caseId}/decision
func (h *CaseHandler) QueueDecision(w http.ResponseWriter, r *http.Request) {
	caseID, ok := parseCaseID(w, r, h.logger)
	if !ok {
		return
	}

	run, err := h.runService.QueueDecision(r.Context(), caseID)
	if err != nil {
		RespondServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusAccepted, ApiResponse{Success: true, Data: run}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
