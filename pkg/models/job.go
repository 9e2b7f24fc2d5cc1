package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobTypeAnalysis        = "analysis"
	JobTypeSimulation      = "simulation"
	JobTypePersonaPipeline = "persona_pipeline"
)

// Job is the gateway-side record of an asynchronous backend job. The API
// returns a job record on POST /api/v1/analyses; clients poll
// GET /api/v1/jobs/{job_id}/status until the status is completed or failed.
// BackendJobID is the opaque identifier assigned by the Python backend.
type Job struct {
	ID           uuid.UUID `db:"id"             json:"id"`
	TenantID     uuid.UUID `db:"tenant_id"      json:"tenant_id"`
	Type         string    `db:"type"           json:"type"`
	Status       string    `db:"status"         json:"status"`
	BackendJobID string    `db:"backend_job_id" json:"backend_job_id"`
	ErrorMessage *string   `db:"error_message"  json:"error_message,omitempty"`
	Result       []byte    `db:"result"         json:"result,omitempty"`
	CreatedAt    time.Time `db:"created_at"     json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"     json:"updated_at"`
}
