// Package matcher assigns live hits to the expected notes of a timeline.
package matcher

import (
	"errors"
	"fmt"
	"math"

	"github.com/himanishpuri/RhythmDNA/pkg/models"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/timeline"
)

const (
	DefaultToleranceWindowMs  = 50
	DefaultPerfectThresholdMs = 15
	DefaultGhostMaxVelocity   = 45
	DefaultAccentMinVelocity  = 100

	// searchFactor widens the tolerance to find the closest plausible note
	// for an off-time hit.
	searchFactor = 3
)

var (
	ErrNotActive   = errors.New("matcher is not active")
	ErrNoTimeline  = errors.New("no timeline loaded")
	ErrInvalidArgs = errors.New("invalid matcher configuration")
)

// State is the matcher lifecycle position.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Config struct {
	ToleranceWindowMs   float64
	PerfectThresholdMs  float64
	LatencyAdjustmentMs float64
	GhostMaxVelocity    uint8
	AccentMinVelocity   uint8
}

func DefaultConfig() Config {
	return Config{
		ToleranceWindowMs:  DefaultToleranceWindowMs,
		PerfectThresholdMs: DefaultPerfectThresholdMs,
		GhostMaxVelocity:   DefaultGhostMaxVelocity,
		AccentMinVelocity:  DefaultAccentMinVelocity,
	}
}

func (c Config) Validate() error {
	if !(c.ToleranceWindowMs > 0) || math.IsInf(c.ToleranceWindowMs, 0) {
		return fmt.Errorf("%w: tolerance window %v", ErrInvalidArgs, c.ToleranceWindowMs)
	}
	if c.PerfectThresholdMs < 0 || math.IsNaN(c.PerfectThresholdMs) {
		return fmt.Errorf("%w: perfect threshold %v", ErrInvalidArgs, c.PerfectThresholdMs)
	}
	if math.IsNaN(c.LatencyAdjustmentMs) || math.IsInf(c.LatencyAdjustmentMs, 0) {
		return fmt.Errorf("%w: latency adjustment %v", ErrInvalidArgs, c.LatencyAdjustmentMs)
	}
	if c.GhostMaxVelocity >= c.AccentMinVelocity || c.AccentMinVelocity > 127 {
		return fmt.Errorf("%w: ghost max %d must be below accent min %d", ErrInvalidArgs,
			c.GhostMaxVelocity, c.AccentMinVelocity)
	}
	return nil
}

// Matcher holds the per-pass match state. It is owned by a single
// goroutine and is not safe for concurrent use.
type Matcher struct {
	cfg     Config
	state   State
	startMs float64
	notes   []models.ExpectedNote
	hits    []models.ScoredHit
}

func New(cfg Config) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{cfg: cfg}, nil
}

// Load installs a fresh copy of the timeline's notes and returns to Idle.
// Previous hits and matched flags are discarded.
func (m *Matcher) Load(tl *timeline.Timeline) {
	m.notes = tl.Notes()
	m.hits = m.hits[:0]
	m.startMs = 0
	m.state = StateIdle
}

// Arm fixes the pass start time.
func (m *Matcher) Arm(startMs float64) error {
	if m.notes == nil {
		return ErrNoTimeline
	}
	if m.state != StateIdle && m.state != StateArmed {
		return fmt.Errorf("cannot arm from state %s", m.state)
	}
	m.startMs = startMs
	m.state = StateArmed
	return nil
}

// Activate starts accepting hits.
func (m *Matcher) Activate() error {
	if m.state != StateArmed {
		return fmt.Errorf("cannot activate from state %s", m.state)
	}
	m.state = StateActive
	return nil
}

// Begin arms and activates in one step.
func (m *Matcher) Begin(startMs float64) error {
	if err := m.Arm(startMs); err != nil {
		return err
	}
	return m.Activate()
}

func (m *Matcher) End() {
	m.state = StateEnded
}

func (m *Matcher) State() State     { return m.state }
func (m *Matcher) StartMs() float64 { return m.startMs }

// Match scores one hit. Hits must be fed in arrival order.
//
// The closest unmatched note within three tolerance windows is the
// candidate. It is claimed only when the hit lands within one tolerance
// window; otherwise the hit is recorded against it as a near miss and the
// note stays open for a later hit.
func (m *Matcher) Match(hit models.HitEvent) (models.ScoredHit, error) {
	if m.state != StateActive {
		return models.ScoredHit{}, ErrNotActive
	}

	t := hit.TimeMs - m.startMs - m.cfg.LatencyAdjustmentMs
	scored := models.ScoredHit{
		TimeMs:        t,
		SequenceIndex: -1,
		Voice:         hit.Voice,
		Source:        hit.Source,
	}

	idx := m.candidate(t, hit)
	if idx < 0 {
		scored.IsExtraHit = true
		m.hits = append(m.hits, scored)
		return scored, nil
	}

	note := &m.notes[idx]
	raw := t - note.TimeMs
	abs := math.Abs(raw)
	tol := m.cfg.ToleranceWindowMs

	scored.ExpectedTimeMs = note.TimeMs
	scored.SequenceIndex = note.SequenceIndex
	scored.RawTimingError = raw
	scored.TimingError = abs
	scored.Perfect = abs <= math.Min(m.cfg.PerfectThresholdMs, tol/4)
	scored.Matched = abs <= tol
	if scored.Matched {
		note.Matched = true
	}

	if note.Dynamic == models.DynamicGhost || note.Dynamic == models.DynamicAccent {
		scored.ExpectedDynamic = note.Dynamic
		if hit.HasVelocity {
			scored.Dynamic = m.classify(hit.Velocity)
			scored.HasDynamicData = true
			scored.DynamicMatch = scored.Dynamic == note.Dynamic
		}
	}

	m.hits = append(m.hits, scored)
	return scored, nil
}

// candidate returns the index of the closest open note, or -1. Ties keep
// the lowest index.
func (m *Matcher) candidate(t float64, hit models.HitEvent) int {
	window := m.cfg.ToleranceWindowMs * searchFactor
	best := -1
	bestDist := math.Inf(1)
	for i := range m.notes {
		n := &m.notes[i]
		if n.Matched {
			continue
		}
		if hit.Source == models.SourceController && n.Voice != models.VoiceAny && n.Voice != hit.Voice {
			continue
		}
		d := math.Abs(n.TimeMs - t)
		if d < window && d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func (m *Matcher) classify(velocity uint8) models.Dynamic {
	switch {
	case velocity <= m.cfg.GhostMaxVelocity:
		return models.DynamicGhost
	case velocity >= m.cfg.AccentMinVelocity:
		return models.DynamicAccent
	default:
		return models.DynamicNormal
	}
}

// Notes returns a copy of the notes with their matched flags.
func (m *Matcher) Notes() []models.ExpectedNote {
	out := make([]models.ExpectedNote, len(m.notes))
	copy(out, m.notes)
	return out
}

// Hits returns a copy of every scored hit in arrival order.
func (m *Matcher) Hits() []models.ScoredHit {
	out := make([]models.ScoredHit, len(m.hits))
	copy(out, m.hits)
	return out
}
