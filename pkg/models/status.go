package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	JobStatePending   = "pending"
	JobStateRunning   = "running"
	JobStateCompleted = "completed"
	JobStateFailed    = "failed"
)

// JobStatus is the latest known state of an asynchronous backend job, as
// reported by the backend's status endpoint. RetrievedAt is stamped by the
// caller at fetch time and is not backend-authoritative.
type JobStatus struct {
	JobID        string          `json:"job_id"`
	State        string          `json:"state"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	RetrievedAt  time.Time       `json:"retrieved_at"`
}

// Terminal reports whether the job has reached a final state.
func (s *JobStatus) Terminal() bool {
	return s.State == JobStateCompleted || s.State == JobStateFailed
}

// Validate checks the payload/error exclusivity invariant: once a job leaves
// pending/running, exactly one of Payload or ErrorMessage must be set.
func (s *JobStatus) Validate() error {
	if s.JobID == "" {
		return fmt.Errorf("job status missing job_id")
	}
	switch s.State {
	case JobStatePending, JobStateRunning:
		return nil
	case JobStateCompleted:
		if len(s.Payload) == 0 {
			return fmt.Errorf("completed job %s has no payload", s.JobID)
		}
		if s.ErrorMessage != nil {
			return fmt.Errorf("completed job %s carries an error message", s.JobID)
		}
	case JobStateFailed:
		if s.ErrorMessage == nil {
			return fmt.Errorf("failed job %s has no error message", s.JobID)
		}
		if len(s.Payload) > 0 {
			return fmt.Errorf("failed job %s carries a payload", s.JobID)
		}
	default:
		return fmt.Errorf("job %s has unknown state %q", s.JobID, s.State)
	}
	return nil
}

// TerminalPredicate is the default stop predicate for job watchers.
func TerminalPredicate(s *JobStatus) bool {
	return s != nil && s.Terminal()
}
