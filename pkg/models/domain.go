package models

import "time"

// Voice identifies the drum or instrument a note is played on.
type Voice string

const (
	VoiceKick     Voice = "kick"
	VoiceSnare    Voice = "snare"
	VoiceHiHat    Voice = "hihat"
	VoiceOpenHat  Voice = "openhat"
	VoiceTom1     Voice = "tom1"
	VoiceTom2     Voice = "tom2"
	VoiceFloorTom Voice = "floortom"
	VoiceCrash    Voice = "crash"
	VoiceRide     Voice = "ride"
	VoiceOther    Voice = "other"
	// VoiceAny matches a hit from any voice. Microphone timelines use it exclusively.
	VoiceAny Voice = "any"
)

// Dynamic is the intended loudness class of a note.
type Dynamic string

const (
	DynamicGhost  Dynamic = "ghost"
	DynamicNormal Dynamic = "normal"
	DynamicAccent Dynamic = "accent"
)

// Source is the input path a hit arrived on.
type Source string

const (
	SourceMic        Source = "mic"
	SourceController Source = "controller"
)

// HitEvent is a detected or decoded hit, the unit carried on the hit queue.
type HitEvent struct {
	TimeMs      float64 // monotonic time of the hit in ms
	Voice       Voice   // VoiceAny for microphone hits
	Velocity    uint8   // 0-127, valid when HasVelocity is set
	HasVelocity bool
	Level       float64 // normalized amplitude 0..1 (microphone only)
	Source      Source
}

// ExpectedNote is one note the player is supposed to hit during a practice pass.
type ExpectedNote struct {
	TimeMs        float64 // offset from pattern start
	Voice         Voice
	SequenceIndex int
	Matched       bool
	Dynamic       Dynamic
	Sticking      string
}

// ScoredHit is the matcher's verdict on a single incoming hit.
type ScoredHit struct {
	TimeMs          float64 `json:"time_ms"`
	ExpectedTimeMs  float64 `json:"expected_time_ms"`
	SequenceIndex   int     `json:"sequence_index"` // -1 when no candidate was found
	TimingError     float64 `json:"timing_error"`
	RawTimingError  float64 `json:"raw_timing_error"` // negative means early
	Matched         bool    `json:"matched"`
	Perfect         bool    `json:"perfect"`
	Dynamic         Dynamic `json:"dynamic,omitempty"`
	ExpectedDynamic Dynamic `json:"expected_dynamic,omitempty"`
	HasDynamicData  bool    `json:"has_dynamic_data"`
	DynamicMatch    bool    `json:"dynamic_match"`
	IsExtraHit      bool    `json:"is_extra_hit"`
	Voice           Voice   `json:"voice"`
	Source          Source  `json:"source"`
}

// Early reports whether a matched hit landed ahead of its note, perfect hits excluded.
func (h ScoredHit) Early() bool {
	return h.Matched && !h.Perfect && h.RawTimingError < 0
}

// Late reports whether a matched hit landed behind its note, perfect hits excluded.
func (h ScoredHit) Late() bool {
	return h.Matched && !h.Perfect && h.RawTimingError >= 0
}

// SessionSummary is the result of one practice session.
type SessionSummary struct {
	ID                     string    `json:"id"`
	PatternName            string    `json:"pattern_name"`
	BPM                    float64   `json:"bpm"`
	InputMode              Source    `json:"input_mode"`
	Algorithm              string    `json:"algorithm,omitempty"`
	StartTime              time.Time `json:"start_time"`
	EndTime                time.Time `json:"end_time"`
	DurationSeconds        float64   `json:"duration_seconds"`
	TotalNotes             int       `json:"total_notes"`
	MatchedCount           int       `json:"matched_count"`
	MissedCount            int       `json:"missed_count"`
	ExtraCount             int       `json:"extra_count"`
	AccuracyPercent        float64   `json:"accuracy_percent"`
	TimingAverageMs        float64   `json:"timing_average_ms"`
	PerfectCount           int       `json:"perfect_count"`
	EarlyCount             int       `json:"early_count"`
	LateCount              int       `json:"late_count"`
	DynamicAccuracyPercent *float64  `json:"dynamic_accuracy_percent"` // nil without dynamic data
}
