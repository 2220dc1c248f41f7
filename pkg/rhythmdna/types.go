package rhythmdna

import (
	"errors"
	"fmt"
	"math"

	"github.com/himanishpuri/RhythmDNA/pkg/models"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/matcher"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/onset"
)

var (
	ErrInvalidConfig     = errors.New("invalid session config")
	ErrWrongInput        = errors.New("input does not match the session's input mode")
	ErrSessionRunning    = errors.New("session is running")
	ErrSessionNotStarted = errors.New("session has not been started")
	ErrSessionStopped    = errors.New("session is stopped")
)

const (
	DefaultQueueSize = 256
	DefaultHitBuffer = 64
)

// SessionConfig is what a caller chooses when starting a practice session.
// Zero SampleRate, FrameSize, QueueSize and HitBuffer take service defaults.
type SessionConfig struct {
	Sensitivity         float64       `json:"sensitivity"`
	MinIntervalMs       float64       `json:"min_interval_ms"`
	ToleranceWindowMs   float64       `json:"tolerance_window_ms"`
	LatencyAdjustmentMs float64       `json:"latency_adjustment_ms"`
	PerfectThresholdMs  float64       `json:"perfect_threshold_ms"`
	Algorithm           string        `json:"algorithm"`
	Input               models.Source `json:"input"`
	SampleRate          int           `json:"sample_rate,omitempty"`
	FrameSize           int           `json:"frame_size,omitempty"`
	QueueSize           int           `json:"queue_size,omitempty"`
	HitBuffer           int           `json:"hit_buffer,omitempty"`
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Sensitivity:        onset.DefaultSensitivity,
		MinIntervalMs:      onset.DefaultMinIntervalMs,
		ToleranceWindowMs:  matcher.DefaultToleranceWindowMs,
		PerfectThresholdMs: matcher.DefaultPerfectThresholdMs,
		Algorithm:          onset.AlgorithmRMS,
		Input:              models.SourceMic,
		FrameSize:          onset.DefaultFrameSize,
		QueueSize:          DefaultQueueSize,
		HitBuffer:          DefaultHitBuffer,
	}
}

func (c SessionConfig) Validate() error {
	bad := func(name string, v any) error {
		return fmt.Errorf("%w: %s %v", ErrInvalidConfig, name, v)
	}
	switch {
	case c.Input != models.SourceMic && c.Input != models.SourceController:
		return bad("input", c.Input)
	case c.Input == models.SourceMic && c.Algorithm != onset.AlgorithmRMS && c.Algorithm != onset.AlgorithmFlux:
		return bad("algorithm", c.Algorithm)
	case c.Sensitivity < 0 || math.IsNaN(c.Sensitivity):
		return bad("sensitivity", c.Sensitivity)
	case c.MinIntervalMs < 0 || math.IsNaN(c.MinIntervalMs):
		return bad("min interval", c.MinIntervalMs)
	case !(c.ToleranceWindowMs > 0) || math.IsInf(c.ToleranceWindowMs, 0):
		return bad("tolerance window", c.ToleranceWindowMs)
	case c.PerfectThresholdMs < 0 || math.IsNaN(c.PerfectThresholdMs):
		return bad("perfect threshold", c.PerfectThresholdMs)
	case math.IsNaN(c.LatencyAdjustmentMs) || math.IsInf(c.LatencyAdjustmentMs, 0):
		return bad("latency adjustment", c.LatencyAdjustmentMs)
	case c.SampleRate < 0:
		return bad("sample rate", c.SampleRate)
	case c.FrameSize < 0:
		return bad("frame size", c.FrameSize)
	case c.QueueSize < 0:
		return bad("queue size", c.QueueSize)
	case c.HitBuffer < 0:
		return bad("hit buffer", c.HitBuffer)
	}
	return nil
}

func (c SessionConfig) withDefaults(sampleRate int) SessionConfig {
	if c.SampleRate == 0 {
		c.SampleRate = sampleRate
	}
	if c.FrameSize == 0 {
		c.FrameSize = onset.DefaultFrameSize
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.HitBuffer == 0 {
		c.HitBuffer = DefaultHitBuffer
	}
	return c
}

func (c SessionConfig) detectorConfig() onset.Config {
	dc := onset.DefaultConfig(c.SampleRate)
	dc.Algorithm = c.Algorithm
	dc.FrameSize = c.FrameSize
	dc.Sensitivity = c.Sensitivity
	dc.MinIntervalMs = c.MinIntervalMs
	return dc
}

func (c SessionConfig) matcherConfig() matcher.Config {
	mc := matcher.DefaultConfig()
	mc.ToleranceWindowMs = c.ToleranceWindowMs
	mc.PerfectThresholdMs = c.PerfectThresholdMs
	mc.LatencyAdjustmentMs = c.LatencyAdjustmentMs
	return mc
}

// SessionStats counts hits lost at the two bounded hand-offs of a session.
type SessionStats struct {
	Queued       int    `json:"queued"`
	QueueDropped uint64 `json:"queue_dropped"`
	FeedDropped  uint64 `json:"feed_dropped"`
	Matched      int64  `json:"matched"`
	Scored       int64  `json:"scored"`
}

// ServiceStats is reported by the health endpoint.
type ServiceStats struct {
	StoredSessions int64 `json:"stored_sessions"`
	ActiveSessions int64 `json:"active_sessions"`
	SampleRate     int   `json:"sample_rate"`
}
