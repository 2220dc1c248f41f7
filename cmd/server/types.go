package main

import (
	"fmt"
	"strconv"

	"github.com/himanishpuri/RhythmDNA/pkg/models"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/timeline"
)

// Upload limits for POST /api/replay
const (
	MaxReplayUploadBytes = 100 << 20
	MaxPatternBytes      = 1 << 20
)

// TimelineRequest is the request body for POST /api/timeline
type TimelineRequest struct {
	Pattern timeline.Pattern `json:"pattern"`

	// Mode is "controller" (default) or "mic"
	Mode string `json:"mode,omitempty"`
}

// Validate checks the pattern and resolves the build mode
func (r *TimelineRequest) Validate() (timeline.Mode, error) {
	mode, err := parseMode(r.Mode)
	if err != nil {
		return 0, err
	}
	if err := r.Pattern.Validate(); err != nil {
		return 0, err
	}
	return mode, nil
}

func parseMode(mode string) (timeline.Mode, error) {
	switch models.Source(mode) {
	case "", models.SourceController:
		return timeline.ModeController, nil
	case models.SourceMic:
		return timeline.ModeMicrophone, nil
	}
	return 0, fmt.Errorf("unknown mode %q (want %q or %q)", mode, models.SourceController, models.SourceMic)
}

// NoteDTO represents one expected note in API responses
type NoteDTO struct {
	Index    int            `json:"index"`
	TimeMs   float64        `json:"time_ms"`
	Voice    models.Voice   `json:"voice"`
	Dynamic  models.Dynamic `json:"dynamic"`
	Sticking string         `json:"sticking,omitempty"`
}

// TimelineResponse is the response for POST /api/timeline
type TimelineResponse struct {
	Name        string    `json:"name"`
	BPM         float64   `json:"bpm"`
	Steps       int       `json:"steps"`
	DurationMs  float64   `json:"duration_ms"`
	Fingerprint string    `json:"fingerprint"`
	Notes       []NoteDTO `json:"notes"`
	Count       int       `json:"count"`
}

func newTimelineResponse(tl *timeline.Timeline) TimelineResponse {
	notes := tl.Notes()
	dtos := make([]NoteDTO, len(notes))
	for i, n := range notes {
		dtos[i] = NoteDTO{
			Index:    n.SequenceIndex,
			TimeMs:   n.TimeMs,
			Voice:    n.Voice,
			Dynamic:  n.Dynamic,
			Sticking: n.Sticking,
		}
	}
	return TimelineResponse{
		Name:        tl.Name(),
		BPM:         tl.BPM(),
		Steps:       tl.StepCount(),
		DurationMs:  tl.DurationMs(),
		Fingerprint: tl.Fingerprint(),
		Notes:       dtos,
		Count:       len(dtos),
	}
}

// replayForm reads the optional tuning fields of a replay upload on top of
// the default session config.
func replayForm(get func(string) string) (rhythmdna.SessionConfig, error) {
	cfg := rhythmdna.DefaultSessionConfig()
	if algo := get("algorithm"); algo != "" {
		cfg.Algorithm = algo
	}

	fields := []struct {
		name string
		dst  *float64
	}{
		{"sensitivity", &cfg.Sensitivity},
		{"min_interval_ms", &cfg.MinIntervalMs},
		{"tolerance_window_ms", &cfg.ToleranceWindowMs},
		{"perfect_threshold_ms", &cfg.PerfectThresholdMs},
		{"latency_adjustment_ms", &cfg.LatencyAdjustmentMs},
	}
	for _, f := range fields {
		raw := get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %q", f.name, raw)
		}
		*f.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ListSessionsResponse is the response for GET /api/sessions
type ListSessionsResponse struct {
	Sessions []models.SessionSummary `json:"sessions"`
	Count    int                     `json:"count"`
}

// SessionHitsResponse is the response for GET /api/sessions/{id}/hits
type SessionHitsResponse struct {
	SessionID string             `json:"session_id"`
	Hits      []models.ScoredHit `json:"hits"`
	Count     int                `json:"count"`
}

// DeleteSessionResponse is the response for DELETE /api/sessions/{id}
type DeleteSessionResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// MetricsResponse provides server health and database metrics
type MetricsResponse struct {
	Status         string `json:"status"`
	DatabasePath   string `json:"database_path"`
	StoredSessions int64  `json:"stored_sessions"`
	ActiveSessions int64  `json:"active_sessions"`
	SampleRate     int    `json:"sample_rate"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
