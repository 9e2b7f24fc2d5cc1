// Package main implements axwisectl, a small CLI for watching AxWise backend
// jobs from a terminal: it polls the job status endpoint until the job
// reaches a terminal state and prints the final status as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/axwise/gateway/internal/cache"
	"github.com/axwise/gateway/internal/client"
	"github.com/axwise/gateway/internal/config"
	"github.com/axwise/gateway/pkg/models"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "axwisectl:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		backendURL = flag.String("backend", envOr("BACKEND_BASE_URL", "http://localhost:8000"), "backend base URL")
		token      = flag.String("token", envOr("BACKEND_DEV_TOKEN", "dev-token"), "bearer token")
		jobID      = flag.String("job", "", "backend job id to watch (required)")
		interval   = flag.Duration("interval", 2*time.Second, "polling interval")
		timeout    = flag.Duration("timeout", 30*time.Minute, "give up after this long")
		maxErrors  = flag.Int("max-errors", 10, "stop after this many consecutive fetch failures (0 = never)")
		summary    = flag.Bool("summary", false, "print a readable theme/sentiment summary instead of raw JSON (analysis jobs)")
	)
	flag.Parse()

	if *jobID == "" {
		flag.Usage()
		return fmt.Errorf("-job is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	backend := client.NewHTTPClient(*backendURL, *token, 30*time.Second)
	watcher := client.NewWatcher(backend, cache.NewMemory(), config.PollConfig{
		Interval:             *interval,
		MaxConsecutiveErrors: *maxErrors,
	})

	status, err := watcher.Watch(ctx, *jobID)
	if err != nil {
		return err
	}

	if *summary && status.State == models.JobStateCompleted {
		return printSummary(status)
	}

	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	fmt.Println(string(out))

	if status.State == models.JobStateFailed {
		os.Exit(2)
	}
	return nil
}

func printSummary(status *models.JobStatus) error {
	res, err := status.DecodeAnalysis()
	if err != nil {
		return err
	}

	fmt.Printf("job %s: %d themes\n", status.JobID, len(res.Themes))
	for _, th := range res.Themes {
		fmt.Printf("  %-30s confidence %.2f  %s\n", th.Name, th.Confidence, th.Summary)
	}
	fmt.Printf("sentiment: %.0f%% positive / %.0f%% neutral / %.0f%% negative\n",
		res.Sentiment.Positive*100, res.Sentiment.Neutral*100, res.Sentiment.Negative*100)
	for _, p := range res.Personas {
		fmt.Printf("persona: %s (%s)\n", p.Name, p.Role)
	}
	return nil
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
