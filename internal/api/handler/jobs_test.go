package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/axwise/gateway/internal/api/handler"
	"github.com/axwise/gateway/internal/api/middleware"
	"github.com/axwise/gateway/internal/client"
	"github.com/axwise/gateway/internal/store"
	"github.com/axwise/gateway/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockJobService struct {
	triggerJob  *models.Job
	triggerErr  error
	gotType     string
	gotBody     []byte
	status      *models.JobStatus
	statusErr   error
	listJobs    []*models.Job
	listTotal   int
	listErr     error
	gotFilter   store.JobFilter
	triggerCnt  int
}

func (m *mockJobService) Trigger(_ context.Context, tenantID uuid.UUID, jobType string, body []byte, contentType string) (*models.Job, error) {
	m.triggerCnt++
	m.gotType = jobType
	m.gotBody = body
	if m.triggerErr != nil {
		return nil, m.triggerErr
	}
	return m.triggerJob, nil
}

func (m *mockJobService) Status(_ context.Context, tenantID uuid.UUID, jobID uuid.UUID) (*models.JobStatus, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return m.status, nil
}

func (m *mockJobService) List(_ context.Context, filter store.JobFilter) ([]*models.Job, int, error) {
	m.gotFilter = filter
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return m.listJobs, m.listTotal, nil
}

func authedRequest(method, target string, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := middleware.SetTenantID(req.Context(), uuid.New())
	return req.WithContext(ctx)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestTrigger_Accepted(t *testing.T) {
	svc := &mockJobService{triggerJob: &models.Job{
		ID:           uuid.New(),
		Type:         models.JobTypeAnalysis,
		Status:       models.JobStatePending,
		BackendJobID: "backend-7",
	}}
	h := handler.NewTriggerHandler(svc, models.JobTypeAnalysis)

	req := authedRequest("POST", "/api/v1/analyses", `{"text":"feedback"}`)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, models.JobTypeAnalysis, svc.gotType)
	assert.JSONEq(t, `{"text":"feedback"}`, string(svc.gotBody))

	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, models.JobStatePending, data["status"])
}

func TestTrigger_NoTenant(t *testing.T) {
	svc := &mockJobService{}
	h := handler.NewTriggerHandler(svc, models.JobTypeAnalysis)

	req := httptest.NewRequest("POST", "/api/v1/analyses", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, svc.triggerCnt)
}

func TestTrigger_BackendTimeout(t *testing.T) {
	svc := &mockJobService{triggerErr: client.ErrBackendTimeout}
	h := handler.NewTriggerHandler(svc, models.JobTypeSimulation)

	req := authedRequest("POST", "/api/v1/simulations", `{}`)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusRequestTimeout, w.Code)
	errObj := decodeBody(t, w)["error"].(map[string]any)
	assert.Equal(t, "BACKEND_TIMEOUT", errObj["code"])
	assert.Contains(t, strings.ToLower(errObj["message"].(string)), "timeout")
}

func TestTrigger_BackendUnreachable(t *testing.T) {
	svc := &mockJobService{triggerErr: client.ErrBackendUnreachable}
	h := handler.NewTriggerHandler(svc, models.JobTypeAnalysis)

	req := authedRequest("POST", "/api/v1/analyses", `{}`)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	errObj := decodeBody(t, w)["error"].(map[string]any)
	assert.Equal(t, "BACKEND_UNREACHABLE", errObj["code"])
}

func TestJobStatus_OK(t *testing.T) {
	jobID := uuid.New()
	svc := &mockJobService{status: &models.JobStatus{
		JobID:       jobID.String(),
		State:       models.JobStateCompleted,
		Payload:     json.RawMessage(`{"score":9}`),
		RetrievedAt: time.Now().UTC(),
	}}
	h := handler.NewJobStatusHandler(svc, func(*http.Request) string { return jobID.String() })

	req := authedRequest("GET", "/api/v1/jobs/"+jobID.String()+"/status", "")
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, models.JobStateCompleted, data["state"])
}

func TestJobStatus_BadID(t *testing.T) {
	svc := &mockJobService{}
	h := handler.NewJobStatusHandler(svc, func(*http.Request) string { return "not-a-uuid" })

	req := authedRequest("GET", "/api/v1/jobs/not-a-uuid/status", "")
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobStatus_NotFound(t *testing.T) {
	svc := &mockJobService{statusErr: store.ErrNotFound}
	h := handler.NewJobStatusHandler(svc, func(*http.Request) string { return uuid.NewString() })

	req := authedRequest("GET", "/api/v1/jobs/x/status", "")
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	errObj := decodeBody(t, w)["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", errObj["code"])
}

func TestJobStatus_BackendGone(t *testing.T) {
	svc := &mockJobService{statusErr: client.ErrJobNotFound}
	h := handler.NewJobStatusHandler(svc, func(*http.Request) string { return uuid.NewString() })

	req := authedRequest("GET", "/api/v1/jobs/x/status", "")
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListJobs_DefaultsAndMeta(t *testing.T) {
	svc := &mockJobService{
		listJobs:  []*models.Job{{ID: uuid.New(), Status: models.JobStatePending}},
		listTotal: 45,
	}
	h := handler.NewListJobsHandler(svc)

	req := authedRequest("GET", "/api/v1/jobs", "")
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.gotFilter.Page)
	assert.Equal(t, 20, svc.gotFilter.Limit)

	meta := decodeBody(t, w)["meta"].(map[string]any)
	assert.Equal(t, float64(45), meta["total"])
	assert.Equal(t, true, meta["has_next"])
}

func TestListJobs_Filters(t *testing.T) {
	svc := &mockJobService{}
	h := handler.NewListJobsHandler(svc)

	req := authedRequest("GET", "/api/v1/jobs?type=analysis&status=completed&page=2&limit=5&since=2026-08-01T00:00:00Z", "")
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.JobTypeAnalysis, svc.gotFilter.Type)
	assert.Equal(t, models.JobStateCompleted, svc.gotFilter.Status)
	assert.Equal(t, 2, svc.gotFilter.Page)
	assert.Equal(t, 5, svc.gotFilter.Limit)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), svc.gotFilter.Since)
}

func TestListJobs_BadSince(t *testing.T) {
	svc := &mockJobService{}
	h := handler.NewListJobsHandler(svc)

	req := authedRequest("GET", "/api/v1/jobs?since=yesterday", "")
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListJobs_EmptyResultIsArray(t *testing.T) {
	svc := &mockJobService{}
	h := handler.NewListJobsHandler(svc)

	req := authedRequest("GET", "/api/v1/jobs", "")
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}
