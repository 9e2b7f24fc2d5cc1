// Package client talks to the AxWise analysis backend's job status endpoint
// and watches jobs until they reach a terminal state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/axwise/gateway/pkg/models"
)

// Sentinel errors for backend status queries.
var (
	ErrBackendUnreachable = errors.New("backend unreachable")
	ErrBackendTimeout     = errors.New("backend status timeout")
	ErrStatusQuery        = errors.New("backend status query error")
	ErrJobSubmit          = errors.New("backend job submission error")
	ErrJobNotFound        = errors.New("job not found")
)

// Client is the interface for submitting backend jobs and querying their status.
type Client interface {
	StartJob(ctx context.Context, path string, body []byte, contentType string) (string, error)
	JobStatus(ctx context.Context, jobID string) (*models.JobStatus, error)
	Ready(ctx context.Context) error
}

// HTTPClient implements Client against the backend's REST API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a backend status client. token is sent as a bearer
// credential on every request.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// StartJob POSTs body to the backend path and returns the job id the backend
// assigned. The backend replies with {"job_id": "..."} (older deployments
// use "id"); either is accepted.
func (c *HTTPClient) StartJob(ctx context.Context, path string, body []byte, contentType string) (string, error) {
	u := c.baseURL + path

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrJobSubmit, resp.StatusCode)
	}

	var submitted struct {
		JobID string `json:"job_id"`
		ID    string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return "", fmt.Errorf("decoding submission response: %w", err)
	}
	if submitted.JobID == "" {
		submitted.JobID = submitted.ID
	}
	if submitted.JobID == "" {
		return "", fmt.Errorf("%w: response carried no job id", ErrJobSubmit)
	}
	return submitted.JobID, nil
}

func (c *HTTPClient) JobStatus(ctx context.Context, jobID string) (*models.JobStatus, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: empty job id", ErrStatusQuery)
	}

	u := fmt.Sprintf("%s/api/jobs/%s/status", c.baseURL, jobID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrStatusQuery, resp.StatusCode)
	}

	var status models.JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decoding status response: %w", err)
	}
	if status.JobID == "" {
		status.JobID = jobID
	}
	status.RetrievedAt = time.Now().UTC()

	return &status, nil
}

func (c *HTTPClient) Ready(ctx context.Context) error {
	u := fmt.Sprintf("%s/health", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: backend not ready (status %d)", ErrBackendUnreachable, resp.StatusCode)
	}

	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
