// Package jobs orchestrates the gateway-side lifecycle of asynchronous
// backend jobs: submission, status refresh, and result caching.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/axwise/gateway/internal/cache"
	"github.com/axwise/gateway/internal/client"
	"github.com/axwise/gateway/internal/config"
	"github.com/axwise/gateway/internal/poller"
	"github.com/axwise/gateway/internal/store"
	"github.com/axwise/gateway/pkg/models"
	"github.com/google/uuid"
)

// statusTTL bounds how long job state lives in Redis. The in-memory result
// cache has no TTL; Redis is the persisted subset.
const statusTTL = 30 * time.Minute

// Service coordinates the backend client, the job record store, and the two
// cache tiers (process-local results, Redis-persisted status).
type Service struct {
	backend client.Client
	store   store.Store
	cache   cache.Cache
	results *cache.Memory
	poll    config.PollConfig
}

// NewService creates a job Service.
func NewService(backend client.Client, st store.Store, ca cache.Cache, results *cache.Memory, poll config.PollConfig) *Service {
	return &Service{
		backend: backend,
		store:   st,
		cache:   ca,
		results: results,
		poll:    poll,
	}
}

// Trigger submits a job of the given type to the backend and records it.
// The returned Job is pending; callers poll Status until it is terminal.
func (s *Service) Trigger(ctx context.Context, tenantID uuid.UUID, jobType string, body []byte, contentType string) (*models.Job, error) {
	path, err := backendPath(jobType)
	if err != nil {
		return nil, err
	}

	backendID, err := s.backend.StartJob(ctx, path, body, contentType)
	if err != nil {
		return nil, fmt.Errorf("starting %s job: %w", jobType, err)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Type:         jobType,
		Status:       models.JobStatePending,
		BackendJobID: backendID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("recording job: %w", err)
	}

	_ = s.cache.SetJobStatus(ctx, job.ID.String(), models.JobStatePending, statusTTL)

	go s.track(job)

	return job, nil
}

// track polls the backend in the background until the job is terminal,
// writing each observed state through the record store and caches. This
// keeps the history view fresh even when no browser is polling the status
// endpoint.
func (s *Service) track(job *models.Job) {
	ctx := context.Background()

	errLimit := s.poll.MaxConsecutiveErrors
	if errLimit <= 0 {
		// Server-side tracking must not retry forever; the Status path
		// still refreshes on demand if tracking gives up.
		errLimit = 30
	}

	p := poller.New(s.backend.JobStatus, poller.Options{
		Interval:             s.poll.Interval,
		MaxConsecutiveErrors: errLimit,
		OnSuccess: func(backendStatus *models.JobStatus) {
			mapped := *backendStatus
			mapped.JobID = job.ID.String()
			s.refresh(ctx, job, &mapped)
		},
		OnError: func(err error) {
			slog.Warn("job tracking fetch failed",
				"job_id", job.ID, "backend_job_id", job.BackendJobID, "error", err)
		},
	})

	if err := p.Start(ctx, job.BackendJobID); err != nil {
		slog.Error("job tracking not started", "job_id", job.ID, "error", err)
		return
	}
	<-p.Done()
}

// Status returns the latest known state of a job. Terminal results are
// served from the record/result cache without re-fetching; otherwise the
// backend is queried and every layer is refreshed with what it reports.
func (s *Service) Status(ctx context.Context, tenantID uuid.UUID, jobID uuid.UUID) (*models.JobStatus, error) {
	job, err := s.store.GetJob(ctx, jobID, tenantID)
	if err != nil {
		return nil, err
	}

	id := job.ID.String()

	if status, ok := s.cachedTerminal(job, id); ok {
		return status, nil
	}

	backendStatus, err := s.backend.JobStatus(ctx, job.BackendJobID)
	if err != nil {
		return nil, err
	}

	status := &models.JobStatus{
		JobID:        id,
		State:        backendStatus.State,
		Payload:      backendStatus.Payload,
		ErrorMessage: backendStatus.ErrorMessage,
		RetrievedAt:  backendStatus.RetrievedAt,
	}

	s.refresh(ctx, job, status)
	return status, nil
}

// List returns the tenant's job history.
func (s *Service) List(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error) {
	return s.store.ListJobs(ctx, filter)
}

// cachedTerminal rebuilds a terminal JobStatus from the stored record and
// result cache, so re-rendering a finished job never re-fetches.
func (s *Service) cachedTerminal(job *models.Job, id string) (*models.JobStatus, bool) {
	switch job.Status {
	case models.JobStateCompleted:
		payload, ok := s.results.Get(id)
		if !ok {
			if len(job.Result) == 0 {
				return nil, false
			}
			payload = json.RawMessage(job.Result)
			s.results.Set(id, payload)
		}
		return &models.JobStatus{
			JobID:       id,
			State:       models.JobStateCompleted,
			Payload:     payload,
			RetrievedAt: job.UpdatedAt,
		}, true
	case models.JobStateFailed:
		return &models.JobStatus{
			JobID:        id,
			State:        models.JobStateFailed,
			ErrorMessage: job.ErrorMessage,
			RetrievedAt:  job.UpdatedAt,
		}, true
	default:
		return nil, false
	}
}

// refresh writes a freshly fetched status through the record store and both
// cache tiers. Cache writes are best-effort; the store update is the source
// of truth for history.
func (s *Service) refresh(ctx context.Context, job *models.Job, status *models.JobStatus) {
	id := job.ID.String()
	_ = s.cache.SetJobStatus(ctx, id, status.State, statusTTL)

	switch status.State {
	case models.JobStateCompleted:
		s.results.Set(id, status.Payload)
		_ = s.cache.SetJobResult(ctx, id, status.Payload, statusTTL)
		_ = s.store.UpdateJobStatus(ctx, job.ID, models.JobStateCompleted,
			store.WithResult(status.Payload))
	case models.JobStateFailed:
		msg := "job failed"
		if status.ErrorMessage != nil {
			msg = *status.ErrorMessage
		}
		_ = s.store.UpdateJobStatus(ctx, job.ID, models.JobStateFailed,
			store.WithErrorMessage(msg))
	default:
		if status.State != job.Status {
			_ = s.store.UpdateJobStatus(ctx, job.ID, status.State)
		}
	}
}

func backendPath(jobType string) (string, error) {
	switch jobType {
	case models.JobTypeAnalysis:
		return "/api/analyses", nil
	case models.JobTypeSimulation:
		return "/api/simulations", nil
	case models.JobTypePersonaPipeline:
		return "/api/persona-pipelines", nil
	default:
		return "", fmt.Errorf("unknown job type %q", jobType)
	}
}
