package client

import (
	"context"
	"errors"
	"sync"

	"github.com/axwise/gateway/internal/cache"
	"github.com/axwise/gateway/internal/config"
	"github.com/axwise/gateway/internal/poller"
	"github.com/axwise/gateway/pkg/models"
)

// ErrWatchAborted is returned when a watch ends before the job reaches a
// terminal state (context cancellation or the consecutive-error threshold).
var ErrWatchAborted = errors.New("job watch aborted before terminal state")

// Watcher composes a Poller with the shared result cache: every payload
// observed while polling is seeded into the cache, so a later lookup for the
// same job does not need another fetch.
type Watcher struct {
	client  Client
	results *cache.Memory
	cfg     config.PollConfig
}

// NewWatcher creates a Watcher. results is shared process-wide; the watcher
// is its only writer besides explicit cache-seeding calls.
func NewWatcher(c Client, results *cache.Memory, cfg config.PollConfig) *Watcher {
	return &Watcher{client: c, results: results, cfg: cfg}
}

// Results exposes the shared result cache.
func (w *Watcher) Results() *cache.Memory {
	return w.results
}

// Watch polls jobID until it reaches a terminal state, seeding the result
// cache with each payload observed, and returns the final status. It blocks
// until the session ends; cancel ctx to abandon the watch.
func (w *Watcher) Watch(ctx context.Context, jobID string) (*models.JobStatus, error) {
	return w.watch(ctx, jobID, models.TerminalPredicate)
}

// WatchUntil is Watch with a caller-supplied stop predicate.
func (w *Watcher) WatchUntil(ctx context.Context, jobID string, stop func(*models.JobStatus) bool) (*models.JobStatus, error) {
	return w.watch(ctx, jobID, stop)
}

func (w *Watcher) watch(ctx context.Context, jobID string, stop func(*models.JobStatus) bool) (*models.JobStatus, error) {
	var (
		mu      sync.Mutex
		last    *models.JobStatus
		lastErr error
	)

	p := poller.New(w.client.JobStatus, poller.Options{
		Interval:             w.cfg.Interval,
		MaxConsecutiveErrors: w.cfg.MaxConsecutiveErrors,
		StopWhen:             stop,
		OnSuccess: func(s *models.JobStatus) {
			mu.Lock()
			last = s
			lastErr = nil
			mu.Unlock()
			if len(s.Payload) > 0 {
				w.results.Set(s.JobID, s.Payload)
			}
		},
		OnError: func(err error) {
			mu.Lock()
			lastErr = err
			mu.Unlock()
		},
	})

	if err := p.Start(ctx, jobID); err != nil {
		return nil, err
	}
	<-p.Done()

	mu.Lock()
	defer mu.Unlock()
	if last != nil && stop(last) {
		return last, nil
	}
	if lastErr != nil {
		return last, lastErr
	}
	return last, ErrWatchAborted
}
