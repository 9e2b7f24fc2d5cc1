// Package poller implements interval-based status polling for asynchronous
// backend jobs. A Poller issues a caller-supplied fetch once immediately and
// then on every tick until a stop predicate accepts the latest result, the
// caller stops it, or the owning context is cancelled.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/axwise/gateway/pkg/models"
)

const defaultInterval = 2 * time.Second

// FetchFunc retrieves the current status of a job. The poller has no opinion
// about transport; any HTTP client (or stub) can sit behind it.
type FetchFunc func(ctx context.Context, jobID string) (*models.JobStatus, error)

// Options configures a polling session.
type Options struct {
	// Interval between status fetches. Defaults to 2s.
	Interval time.Duration

	// OnSuccess receives every successfully fetched status, including the
	// one that triggers the stop predicate, so the caller always observes
	// the final state before teardown.
	OnSuccess func(*models.JobStatus)

	// OnError receives fetch failures. The session keeps polling through
	// transient errors unless MaxConsecutiveErrors terminates it.
	OnError func(error)

	// StopWhen is evaluated against each successful result; the session
	// stops once it returns true. Defaults to models.TerminalPredicate.
	StopWhen func(*models.JobStatus) bool

	// MaxConsecutiveErrors stops the session after this many fetch failures
	// in a row. Zero disables the threshold and retries indefinitely.
	MaxConsecutiveErrors int
}

// Poller runs at most one polling session at a time. Starting while a session
// is active is a warn-level no-op, so exactly one timer exists per session.
// All methods are safe for concurrent use.
type Poller struct {
	fetch FetchFunc
	opts  Options

	mu        sync.Mutex
	alive     bool
	cancel    context.CancelFunc
	done      chan struct{}
	errStreak int
}

// New creates a Poller around fetch. Zero-value options get defaults.
func New(fetch FetchFunc, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.StopWhen == nil {
		opts.StopWhen = models.TerminalPredicate
	}
	return &Poller{fetch: fetch, opts: opts}
}

// Start begins a polling session for jobID. An empty jobID is rejected and
// logged without issuing any fetch. Starting while a session is already
// active warns and leaves the existing timer untouched.
func (p *Poller) Start(ctx context.Context, jobID string) error {
	if jobID == "" {
		slog.Warn("poll start rejected: empty job id")
		return fmt.Errorf("poller: job id must not be empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.alive {
		slog.Warn("poll start ignored: session already active", "job_id", jobID)
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.alive = true
	p.cancel = cancel
	p.done = make(chan struct{})
	p.errStreak = 0

	go p.run(runCtx, jobID, p.done)
	return nil
}

// Stop tears the session down: the timer is cleared and the liveness flag
// dropped, so any fetch still in flight is ignored when it resolves. Safe to
// call from within a callback or when no session is active.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if !p.alive {
		return
	}
	p.alive = false
	p.cancel()
}

// Active reports whether a session is currently polling.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

// Done returns a channel closed when the current session's goroutine exits.
// Returns nil if Start has never been called.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *Poller) run(ctx context.Context, jobID string, done chan struct{}) {
	defer close(done)
	defer func() {
		p.mu.Lock()
		p.stopLocked()
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	// First fetch fires immediately, not after one interval.
	if stop := p.tick(ctx, jobID); stop {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stop := p.tick(ctx, jobID); stop {
				return
			}
		}
	}
}

// tick performs one fetch and delivers the outcome. Returns true when the
// session should end. The liveness flag is re-checked after the fetch
// resolves so a result arriving after teardown mutates nothing.
func (p *Poller) tick(ctx context.Context, jobID string) bool {
	status, err := p.fetch(ctx, jobID)

	p.mu.Lock()
	if !p.alive {
		p.mu.Unlock()
		return true
	}

	if err != nil {
		p.errStreak++
		streak := p.errStreak
		max := p.opts.MaxConsecutiveErrors
		p.mu.Unlock()

		if p.opts.OnError != nil {
			p.opts.OnError(err)
		}
		if max > 0 && streak >= max {
			slog.Warn("poll session terminated: error threshold reached",
				"job_id", jobID, "consecutive_errors", streak)
			p.Stop()
			return true
		}
		return false
	}

	p.errStreak = 0
	p.mu.Unlock()

	if status.RetrievedAt.IsZero() {
		status.RetrievedAt = time.Now().UTC()
	}

	// OnSuccess runs unconditionally before the predicate is consulted, so
	// the caller observes the stop-triggering status.
	if p.opts.OnSuccess != nil {
		p.opts.OnSuccess(status)
	}
	if p.opts.StopWhen(status) {
		p.Stop()
		return true
	}
	return false
}
