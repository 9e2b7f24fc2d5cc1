// Package forwarder relays gateway requests to the AxWise analysis backend:
// one parameterized forward/relay path instead of a proxy handler per
// endpoint. It attaches a bearer credential, bounds wall-clock time with an
// abort timeout, and classifies every outcome into success, backend error,
// timeout, or network error.
package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/axwise/gateway/internal/config"
	"github.com/go-chi/chi/v5"
)

// Fixed CORS header set attached to every proxied response.
const (
	corsAllowOrigin  = "*"
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization"
)

// Sentinel errors for outbound request failures.
var (
	ErrBackendTimeout     = errors.New("backend timeout")
	ErrBackendUnreachable = errors.New("backend unreachable")
)

// AuthMode selects how the outbound Authorization header is sourced.
type AuthMode int

const (
	// AuthPassthrough relays the caller's bearer token when present and
	// falls back to the configured development token otherwise.
	AuthPassthrough AuthMode = iota
	// AuthDevToken always substitutes the development token.
	AuthDevToken
	// AuthNone strips credentials from the outbound request.
	AuthNone
)

// Route describes one forwarded endpoint. BackendPath may contain chi-style
// placeholders ("/api/jobs/{jobID}/status") resolved from the inbound route.
// A zero Timeout uses the forwarder's default request timeout.
type Route struct {
	BackendPath string
	Auth        AuthMode
	Timeout     time.Duration
}

// Forwarder relays inbound requests to the configured backend origin.
type Forwarder struct {
	baseURL        string
	devToken       string
	defaultTimeout time.Duration
	client         *http.Client
}

// New creates a Forwarder for the given backend. The underlying http.Client
// carries no timeout of its own; each request is bounded by its route's
// abort window via context cancellation.
func New(cfg config.BackendConfig) *Forwarder {
	return &Forwarder{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		devToken:       cfg.DevToken,
		defaultTimeout: cfg.RequestTimeout,
		client:         &http.Client{},
	}
}

// Handler returns an http.HandlerFunc forwarding to route. Every response,
// including failures, carries the fixed CORS header set and a JSON body; no
// error escapes the handler.
func (f *Forwarder) Handler(route Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeCORS(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		timeout := route.Timeout
		if timeout <= 0 {
			timeout = f.defaultTimeout
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		outURL := f.baseURL + resolvePath(r, route.BackendPath)
		if r.URL.RawQuery != "" {
			outURL += "?" + r.URL.RawQuery
		}

		out, err := http.NewRequestWithContext(ctx, r.Method, outURL, r.Body)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "invalid backend request", "")
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "" {
			out.Header.Set("Content-Type", ct)
		}
		f.setAuth(out, r, route.Auth)

		resp, err := f.client.Do(out)
		if err != nil {
			f.relayFailure(w, r, classifyError(err))
			return
		}
		defer resp.Body.Close()

		f.relay(w, resp)
	}
}

// Preflight answers CORS preflight requests locally with the fixed header set.
func Preflight() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeCORS(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

// setAuth attaches the Authorization header per the route's auth mode. The
// development-token fallback is an explicit dev-mode convenience, not a
// security boundary; real credentials come from the caller.
func (f *Forwarder) setAuth(out *http.Request, in *http.Request, mode AuthMode) {
	switch mode {
	case AuthNone:
		return
	case AuthDevToken:
		out.Header.Set("Authorization", "Bearer "+f.devToken)
	case AuthPassthrough:
		if auth := in.Header.Get("Authorization"); auth != "" {
			out.Header.Set("Authorization", auth)
			return
		}
		out.Header.Set("Authorization", "Bearer "+f.devToken)
	}
}

// relay copies the backend response back to the caller. Non-2xx bodies are
// wrapped in the error envelope with the original status code preserved.
func (f *Forwarder) relay(w http.ResponseWriter, resp *http.Response) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to read backend response", "")
		return
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.WriteHeader(resp.StatusCode)
		w.Write(body)
		return
	}

	writeError(w, resp.StatusCode,
		fmt.Sprintf("backend returned status %d", resp.StatusCode),
		strings.TrimSpace(string(body)))
}

// relayFailure turns a transport-level failure into the matching gateway
// response. A timeout is not a generic failure: the backend may still finish
// the job after the HTTP call is abandoned, so the caller gets a 408 with
// retry guidance rather than a 500.
func (f *Forwarder) relayFailure(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrBackendTimeout) {
		slog.Warn("backend request timeout", "method", r.Method, "path", r.URL.Path)
		writeError(w, http.StatusRequestTimeout, "backend timeout",
			"the operation may still be running; retry the job status endpoint, or reduce the workload size")
		return
	}
	slog.Error("backend unreachable", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "failed to reach backend", "")
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

// resolvePath substitutes chi-style {param} placeholders in path with the
// corresponding URL parameters of the inbound request.
func resolvePath(r *http.Request, path string) string {
	if !strings.Contains(path, "{") {
		return path
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name := seg[1 : len(seg)-1]
			if v := chi.URLParam(r, name); v != "" {
				segments[i] = v
			}
		}
	}
	return strings.Join(segments, "/")
}

type errorEnvelope struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{Error: msg, Details: details})
}

func writeCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", corsAllowOrigin)
	h.Set("Access-Control-Allow-Methods", corsAllowMethods)
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
}
