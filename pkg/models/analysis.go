package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// AnalysisResult is the structured payload of a completed interview analysis
// job: extracted themes, an overall sentiment breakdown, and generated
// personas. It is the typed shape of JobStatus.Payload for analysis jobs.
type AnalysisResult struct {
	Themes    []Theme          `json:"themes"`
	Sentiment SentimentSummary `json:"sentiment"`
	Personas  []Persona        `json:"personas,omitempty"`
	Model     string           `json:"model,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Theme is a recurring topic extracted from interview transcripts.
type Theme struct {
	Name       string   `json:"name"`
	Summary    string   `json:"summary"`
	Confidence float64  `json:"confidence"`
	Quotes     []string `json:"quotes,omitempty"`
}

// SentimentSummary aggregates per-statement sentiment over an analysis run.
type SentimentSummary struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// Persona is a synthesized customer archetype, either derived from real
// interview data or generated by the synthetic-persona simulation pipeline.
type Persona struct {
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Description string   `json:"description"`
	Goals       []string `json:"goals,omitempty"`
	PainPoints  []string `json:"pain_points,omitempty"`
}

// DecodeAnalysis interprets the status payload of a completed analysis job
// as an AnalysisResult.
func (s *JobStatus) DecodeAnalysis() (*AnalysisResult, error) {
	if s.State != JobStateCompleted {
		return nil, fmt.Errorf("job %s is %s, not completed", s.JobID, s.State)
	}
	var res AnalysisResult
	if err := json.Unmarshal(s.Payload, &res); err != nil {
		return nil, fmt.Errorf("decoding analysis payload for job %s: %w", s.JobID, err)
	}
	return &res, nil
}
