package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/axwise/gateway/internal/api/middleware"
	"github.com/axwise/gateway/internal/api/response"
	"github.com/axwise/gateway/internal/client"
	"github.com/axwise/gateway/internal/store"
	"github.com/axwise/gateway/pkg/models"
	"github.com/google/uuid"
)

// maxTriggerBody bounds the upload body forwarded on job submission.
const maxTriggerBody = 25 << 20

// JobService defines what the job handlers need from the jobs service.
type JobService interface {
	Trigger(ctx context.Context, tenantID uuid.UUID, jobType string, body []byte, contentType string) (*models.Job, error)
	Status(ctx context.Context, tenantID uuid.UUID, jobID uuid.UUID) (*models.JobStatus, error)
	List(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error)
}

// NewTriggerHandler returns an http.HandlerFunc that submits a job of the
// given type to the backend and records it, e.g. POST /api/v1/analyses.
// Responds 202 with the pending job record.
func NewTriggerHandler(svc JobService, jobType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := middleware.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxTriggerBody))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body", nil)
			return
		}

		job, err := svc.Trigger(r.Context(), tenantID, jobType, body, r.Header.Get("Content-Type"))
		if err != nil {
			writeBackendError(w, err)
			return
		}

		response.Accepted(w, job)
	}
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/status.
func NewJobStatusHandler(svc JobService, jobIDParam func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := middleware.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		jobID, err := uuid.Parse(jobIDParam(r))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job id must be a UUID", nil)
			return
		}

		status, err := svc.Status(r.Context(), tenantID, jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) || errors.Is(err, client.ErrJobNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
				return
			}
			writeBackendError(w, err)
			return
		}

		response.JSON(w, status)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := middleware.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		q := r.URL.Query()
		filter := store.JobFilter{
			TenantID: tenantID,
			Type:     q.Get("type"),
			Status:   q.Get("status"),
			Page:     intParam(q.Get("page"), 1),
			Limit:    intParam(q.Get("limit"), 20),
		}
		if since := q.Get("since"); since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "since must be a valid RFC3339 timestamp", nil)
				return
			}
			filter.Since = t
		}

		jobList, total, err := svc.List(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list jobs", nil)
			return
		}
		if jobList == nil {
			jobList = []*models.Job{}
		}

		response.Collection(w, jobList, response.PaginationMeta{
			Page:    filter.Page,
			Limit:   filter.Limit,
			Total:   total,
			HasNext: filter.Page*filter.Limit < total,
		})
	}
}

// writeBackendError maps backend client failures onto the gateway's error
// taxonomy: timeout is distinguishable and retryable, everything else is a
// generic upstream failure.
func writeBackendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, client.ErrBackendTimeout):
		response.Error(w, http.StatusRequestTimeout, "BACKEND_TIMEOUT",
			"Backend timeout; the job may still be running, retry the status endpoint", nil)
	case errors.Is(err, client.ErrBackendUnreachable):
		response.Error(w, http.StatusBadGateway, "BACKEND_UNREACHABLE",
			"Failed to reach the analysis backend", nil)
	case errors.Is(err, client.ErrJobSubmit), errors.Is(err, client.ErrStatusQuery):
		response.Error(w, http.StatusBadGateway, "BACKEND_ERROR",
			"The analysis backend rejected the request", err.Error())
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

func intParam(v string, defaultVal int) int {
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}
