package store

import (
	"context"
	"errors"
	"time"

	"github.com/axwise/gateway/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Job, error)
	GetJobByBackendID(ctx context.Context, backendJobID string, tenantID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
}

type JobFilter struct {
	TenantID uuid.UUID
	Type     string
	Status   string
	Since    time.Time
	Page     int
	Limit    int
}

type jobUpdateParams struct {
	ErrorMessage *string
	Result       []byte
	BackendJobID *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithResult(payload []byte) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Result = payload
	}
}

func WithBackendJobID(id string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.BackendJobID = &id
	}
}
