package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coursebridge-io/equivalency-engine/pkg/apperrors"
	"github.com/coursebridge-io/equivalency-engine/pkg/models"
	"github.com/coursebridge-io/equivalency-engine/pkg/services"
)

// mockCaseService implements services.CaseService with overridable funcs.
type mockCaseService struct {
	createCase        func(ctx context.Context, req services.CreateCaseRequest) (*models.Case, error)
	addDocuments      func(ctx context.Context, caseID uuid.UUID, uploads []models.DocumentUpload) (*models.Case, error)
	assignReviewer    func(ctx context.Context, caseID uuid.UUID, reviewerID string) error
	listCases         func(ctx context.Context, studentID string) ([]services.CaseSummary, error)
	getCaseDetail     func(ctx context.Context, caseID uuid.UUID) (*services.CaseDetail, error)
	getLatestDecision func(ctx context.Context, caseID uuid.UUID) (*models.DecisionResult, error)
}

func (m *mockCaseService) CreateCase(ctx context.Context, req services.CreateCaseRequest) (*models.Case, error) {
	return m.createCase(ctx, req)
}

func (m *mockCaseService) AddDocuments(ctx context.Context, caseID uuid.UUID, uploads []models.DocumentUpload) (*models.Case, error) {
	return m.addDocuments(ctx, caseID, uploads)
}

func (m *mockCaseService) AssignReviewer(ctx context.Context, caseID uuid.UUID, reviewerID string) error {
	return m.assignReviewer(ctx, caseID, reviewerID)
}

func (m *mockCaseService) ListCases(ctx context.Context, studentID string) ([]services.CaseSummary, error) {
	return m.listCases(ctx, studentID)
}

func (m *mockCaseService) GetCaseDetail(ctx context.Context, caseID uuid.UUID) (*services.CaseDetail, error) {
	return m.getCaseDetail(ctx, caseID)
}

func (m *mockCaseService) GetLatestDecision(ctx context.Context, caseID uuid.UUID) (*models.DecisionResult, error) {
	return m.getLatestDecision(ctx, caseID)
}

// mockRunService implements services.RunService with overridable funcs.
type mockRunService struct {
	startExtraction    func(ctx context.Context, runID uuid.UUID) error
	completeExtraction func(ctx context.Context, runID uuid.UUID, req services.ExtractionCompleteRequest) error
	failExtraction     func(ctx context.Context, runID uuid.UUID, errorMessage string) error
	queueDecision      func(ctx context.Context, caseID uuid.UUID) (*models.DecisionRun, error)
	startDecision      func(ctx context.Context, runID uuid.UUID) error
	completeDecision   func(ctx context.Context, runID uuid.UUID, result *models.DecisionResult) error
	failDecision       func(ctx context.Context, runID uuid.UUID, errorMessage string) error
}

func (m *mockRunService) StartExtraction(ctx context.Context, runID uuid.UUID) error {
	return m.startExtraction(ctx, runID)
}

func (m *mockRunService) CompleteExtraction(ctx context.Context, runID uuid.UUID, req services.ExtractionCompleteRequest) error {
	return m.completeExtraction(ctx, runID, req)
}

func (m *mockRunService) FailExtraction(ctx context.Context, runID uuid.UUID, errorMessage string) error {
	return m.failExtraction(ctx, runID, errorMessage)
}

func (m *mockRunService) QueueDecision(ctx context.Context, caseID uuid.UUID) (*models.DecisionRun, error) {
	return m.queueDecision(ctx, caseID)
}

func (m *mockRunService) StartDecision(ctx context.Context, runID uuid.UUID) error {
	return m.startDecision(ctx, runID)
}

func (m *mockRunService) CompleteDecision(ctx context.Context, runID uuid.UUID, result *models.DecisionResult) error {
	return m.completeDecision(ctx, runID, result)
}

func (m *mockRunService) FailDecision(ctx context.Context, runID uuid.UUID, errorMessage string) error {
	return m.failDecision(ctx, runID, errorMessage)
}

func newCaseTestServer(caseSvc services.CaseService, runSvc services.RunService) *httptest.Server {
	mux := http.NewServeMux()
	NewCaseHandler(caseSvc, runSvc, zap.NewNop()).RegisterRoutes(mux)
	return httptest.NewServer(mux)
}

func TestCaseHandler_CreateCase_Created(t *testing.T) {
	caseSvc := &mockCaseService{
		createCase: func(_ context.Context, req services.CreateCaseRequest) (*models.Case, error) {
			return &models.Case{
				ID:        uuid.New(),
				StudentID: req.StudentID,
				Status:    models.CaseStatusUploaded,
			}, nil
		},
	}
	srv := newCaseTestServer(caseSvc, &mockRunService{})
	defer srv.Close()

	body := `{"student_id":"student-1","documents":[{"filename":"syllabus.pdf","content_type":"application/pdf","sha256":"aaa","storage_uri":"file:///blobs/aaa"}]}`
	resp, err := http.Post(srv.URL+"/api/cases", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var out ApiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Success)
}

func TestCaseHandler_CreateCase_NonPDFRejected(t *testing.T) {
	caseSvc := &mockCaseService{
		createCase: func(_ context.Context, _ services.CreateCaseRequest) (*models.Case, error) {
			return nil, fmt.Errorf("document x: %w", apperrors.ErrUnsupportedContentType)
		},
	}
	srv := newCaseTestServer(caseSvc, &mockRunService{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/cases", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "unsupported_content_type", out["error"])
}

func TestCaseHandler_GetCase_NotFound(t *testing.T) {
	caseSvc := &mockCaseService{
		getCaseDetail: func(_ context.Context, caseID uuid.UUID) (*services.CaseDetail, error) {
			return nil, fmt.Errorf("case %s: %w", caseID, apperrors.ErrNotFound)
		},
	}
	srv := newCaseTestServer(caseSvc, &mockRunService{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/cases/" + uuid.NewString())
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCaseHandler_GetCase_InvalidID(t *testing.T) {
	srv := newCaseTestServer(&mockCaseService{}, &mockRunService{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/cases/not-a-uuid")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCaseHandler_GetDecision_NoDecisionYet(t *testing.T) {
	caseSvc := &mockCaseService{
		getLatestDecision: func(_ context.Context, _ uuid.UUID) (*models.DecisionResult, error) {
			return nil, nil
		},
	}
	srv := newCaseTestServer(caseSvc, &mockRunService{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/cases/" + uuid.NewString() + "/decision")
	require.NoError(t, err)
	defer resp.Body.Close()

	// Absence of a decision is a payload, not an error.
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Success bool `json:"success"`
		Data    struct {
			Decided bool `json:"decided"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Success)
	assert.False(t, out.Data.Decided)
}

func TestCaseHandler_QueueDecision_WrongState(t *testing.T) {
	runSvc := &mockRunService{
		queueDecision: func(_ context.Context, _ uuid.UUID) (*models.DecisionRun, error) {
			return nil, apperrors.NewInvalidTransition("extracting", "ai_recommendation")
		},
	}
	srv := newCaseTestServer(&mockCaseService{}, runSvc)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/cases/"+uuid.NewString()+"/decision", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "invalid_transition", out["error"])
}

func TestCaseHandler_ListCases_Empty(t *testing.T) {
	caseSvc := &mockCaseService{
		listCases: func(_ context.Context, studentID string) ([]services.CaseSummary, error) {
			assert.Equal(t, "student-9", studentID)
			return nil, nil
		},
	}
	srv := newCaseTestServer(caseSvc, &mockRunService{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/cases?studentId=student-9")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Data []services.CaseSummary `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotNil(t, out.Data)
	assert.Empty(t, out.Data)
}
