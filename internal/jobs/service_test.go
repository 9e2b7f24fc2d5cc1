package jobs_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/axwise/gateway/internal/cache"
	"github.com/axwise/gateway/internal/client"
	"github.com/axwise/gateway/internal/config"
	"github.com/axwise/gateway/internal/jobs"
	"github.com/axwise/gateway/internal/store"
	"github.com/axwise/gateway/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	mu       sync.Mutex
	startID  string
	startErr error
	statuses []*models.JobStatus
	statusI  int
	calls    int
}

func (m *mockBackend) StartJob(ctx context.Context, path string, body []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return "", m.startErr
	}
	return m.startID, nil
}

func (m *mockBackend) JobStatus(ctx context.Context, jobID string) (*models.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.statuses) == 0 {
		return nil, client.ErrStatusQuery
	}
	s := m.statuses[m.statusI]
	if m.statusI < len(m.statuses)-1 {
		m.statusI++
	}
	return s, nil
}

func (m *mockBackend) Ready(ctx context.Context) error { return nil }

type mockStore struct {
	store.Store // panic on anything not overridden

	mu      sync.Mutex
	jobs    map[uuid.UUID]*models.Job
	updates []string
}

func newMockStore() *mockStore {
	return &mockStore{jobs: make(map[uuid.UUID]*models.Job)}
}

func (m *mockStore) CreateJob(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *mockStore) GetJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *mockStore) ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Job
	for _, j := range m.jobs {
		if j.TenantID == filter.TenantID {
			out = append(out, j)
		}
	}
	return out, len(out), nil
}

func (m *mockStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	m.updates = append(m.updates, status)
	return nil
}

func (m *mockStore) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.updates)
}

type mockCache struct {
	mu       sync.Mutex
	statuses map[string]string
	results  map[string][]byte
}

func newMockCache() *mockCache {
	return &mockCache{statuses: make(map[string]string), results: make(map[string][]byte)}
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error { return nil }
func (m *mockCache) Ping(ctx context.Context) error               { return nil }

func (m *mockCache) SetJobStatus(ctx context.Context, jobID string, status string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[jobID] = status
	return nil
}

func (m *mockCache) GetJobStatus(ctx context.Context, jobID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[jobID]
	return s, ok, nil
}

func (m *mockCache) SetJobResult(ctx context.Context, jobID string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[jobID] = payload
	return nil
}

func (m *mockCache) GetJobResult(ctx context.Context, jobID string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.results[jobID]
	return p, ok, nil
}

func (m *mockCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*mockCache)(nil)

func newService(backend *mockBackend, st *mockStore, ca *mockCache) (*jobs.Service, *cache.Memory) {
	results := cache.NewMemory()
	svc := jobs.NewService(backend, st, ca, results, config.PollConfig{Interval: 10 * time.Millisecond})
	return svc, results
}

func TestTrigger_RecordsPendingJob(t *testing.T) {
	backend := &mockBackend{
		startID: "backend-7",
		statuses: []*models.JobStatus{
			{JobID: "backend-7", State: models.JobStateCompleted, Payload: json.RawMessage(`{"score":9}`)},
		},
	}
	st := newMockStore()
	ca := newMockCache()
	svc, _ := newService(backend, st, ca)
	tenantID := uuid.New()

	job, err := svc.Trigger(context.Background(), tenantID, models.JobTypeAnalysis, []byte(`{}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatePending, job.Status)
	assert.Equal(t, "backend-7", job.BackendJobID)
	assert.Equal(t, tenantID, job.TenantID)

	got, ok, err := ca.GetJobStatus(context.Background(), job.ID.String())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.JobStatePending, got)
}

func TestTrigger_UnknownJobType(t *testing.T) {
	svc, _ := newService(&mockBackend{}, newMockStore(), newMockCache())

	_, err := svc.Trigger(context.Background(), uuid.New(), "mystery", nil, "")
	assert.Error(t, err)
}

func TestTrigger_BackendRejection(t *testing.T) {
	backend := &mockBackend{startErr: client.ErrJobSubmit}
	svc, _ := newService(backend, newMockStore(), newMockCache())

	_, err := svc.Trigger(context.Background(), uuid.New(), models.JobTypeAnalysis, nil, "")
	assert.ErrorIs(t, err, client.ErrJobSubmit)
}

func TestTrigger_TrackingReachesTerminalState(t *testing.T) {
	backend := &mockBackend{
		startID: "backend-7",
		statuses: []*models.JobStatus{
			{JobID: "backend-7", State: models.JobStateRunning},
			{JobID: "backend-7", State: models.JobStateCompleted, Payload: json.RawMessage(`{"score":9}`)},
		},
	}
	st := newMockStore()
	ca := newMockCache()
	svc, results := newService(backend, st, ca)

	job, err := svc.Trigger(context.Background(), uuid.New(), models.JobTypeAnalysis, nil, "")
	require.NoError(t, err)

	id := job.ID.String()
	require.Eventually(t, func() bool {
		s, ok, _ := ca.GetJobStatus(context.Background(), id)
		return ok && s == models.JobStateCompleted
	}, 3*time.Second, 20*time.Millisecond)

	payload, ok := results.Get(id)
	require.True(t, ok)
	assert.JSONEq(t, `{"score":9}`, string(payload))
	assert.GreaterOrEqual(t, st.updateCount(), 1)
}

func TestStatus_ServesTerminalFromRecord(t *testing.T) {
	st := newMockStore()
	tenantID := uuid.New()
	jobID := uuid.New()
	st.jobs[jobID] = &models.Job{
		ID:        jobID,
		TenantID:  tenantID,
		Type:      models.JobTypeAnalysis,
		Status:    models.JobStateCompleted,
		Result:    []byte(`{"score":9}`),
		UpdatedAt: time.Now().UTC(),
	}
	backend := &mockBackend{}
	svc, results := newService(backend, st, newMockCache())

	status, err := svc.Status(context.Background(), tenantID, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCompleted, status.State)
	assert.JSONEq(t, `{"score":9}`, string(status.Payload))
	assert.Zero(t, backend.calls, "terminal record must not re-fetch")

	// stored result is re-seeded into the memory tier
	_, ok := results.Get(jobID.String())
	assert.True(t, ok)
}

func TestStatus_FailedFromRecord(t *testing.T) {
	st := newMockStore()
	tenantID := uuid.New()
	jobID := uuid.New()
	msg := "backend exploded"
	st.jobs[jobID] = &models.Job{
		ID:           jobID,
		TenantID:     tenantID,
		Status:       models.JobStateFailed,
		ErrorMessage: &msg,
		UpdatedAt:    time.Now().UTC(),
	}
	backend := &mockBackend{}
	svc, _ := newService(backend, st, newMockCache())

	status, err := svc.Status(context.Background(), tenantID, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateFailed, status.State)
	require.NotNil(t, status.ErrorMessage)
	assert.Equal(t, "backend exploded", *status.ErrorMessage)
	assert.Zero(t, backend.calls)
}

func TestStatus_RefreshesNonTerminalFromBackend(t *testing.T) {
	st := newMockStore()
	tenantID := uuid.New()
	jobID := uuid.New()
	st.jobs[jobID] = &models.Job{
		ID:           jobID,
		TenantID:     tenantID,
		Status:       models.JobStatePending,
		BackendJobID: "backend-7",
	}
	backend := &mockBackend{
		statuses: []*models.JobStatus{
			{JobID: "backend-7", State: models.JobStateRunning},
		},
	}
	ca := newMockCache()
	svc, _ := newService(backend, st, ca)

	status, err := svc.Status(context.Background(), tenantID, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateRunning, status.State)
	assert.Equal(t, jobID.String(), status.JobID)

	cached, ok, _ := ca.GetJobStatus(context.Background(), jobID.String())
	require.True(t, ok)
	assert.Equal(t, models.JobStateRunning, cached)

	got, _ := st.GetJob(context.Background(), jobID, tenantID)
	assert.Equal(t, models.JobStateRunning, got.Status)
}

func TestStatus_UnknownJob(t *testing.T) {
	svc, _ := newService(&mockBackend{}, newMockStore(), newMockCache())

	_, err := svc.Status(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStatus_WrongTenant(t *testing.T) {
	st := newMockStore()
	jobID := uuid.New()
	st.jobs[jobID] = &models.Job{ID: jobID, TenantID: uuid.New(), Status: models.JobStatePending}
	svc, _ := newService(&mockBackend{}, st, newMockCache())

	_, err := svc.Status(context.Background(), uuid.New(), jobID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStatus_BackendErrorDoesNotMaskRecord(t *testing.T) {
	st := newMockStore()
	tenantID := uuid.New()
	jobID := uuid.New()
	st.jobs[jobID] = &models.Job{
		ID:           jobID,
		TenantID:     tenantID,
		Status:       models.JobStateRunning,
		BackendJobID: "backend-7",
	}
	svc, _ := newService(&mockBackend{}, st, newMockCache())

	_, err := svc.Status(context.Background(), tenantID, jobID)
	assert.ErrorIs(t, err, client.ErrStatusQuery)
}

func TestList(t *testing.T) {
	st := newMockStore()
	tenantID := uuid.New()
	for i := 0; i < 3; i++ {
		id := uuid.New()
		st.jobs[id] = &models.Job{ID: id, TenantID: tenantID, Status: models.JobStatePending}
	}
	otherID := uuid.New()
	st.jobs[otherID] = &models.Job{ID: otherID, TenantID: uuid.New(), Status: models.JobStatePending}

	svc, _ := newService(&mockBackend{}, st, newMockCache())

	listed, total, err := svc.List(context.Background(), store.JobFilter{TenantID: tenantID})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, listed, 3)
}
