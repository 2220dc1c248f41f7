package matcher

import (
	"errors"
	"math"
	"testing"

	"github.com/himanishpuri/RhythmDNA/pkg/models"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/timeline"
)

func buildTimeline(t *testing.T, seg timeline.Segment, mode timeline.Mode) *timeline.Timeline {
	t.Helper()
	tl, err := timeline.Build(timeline.Pattern{
		Name:     "test",
		BPM:      120,
		Segments: []timeline.Segment{seg},
	}, mode)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return tl
}

// newActive returns a matcher running "K S K S" (notes at 0, 250, 500, 750).
func newActive(t *testing.T, cfg Config, mode timeline.Mode, startMs float64) *Matcher {
	t.Helper()
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	m.Load(buildTimeline(t, timeline.Segment{
		TimeSignature: "4/4", Subdivision: 8, Voicing: "K S K S", Repeat: 1,
	}, mode))
	if err := m.Begin(startMs); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	return m
}

func micHit(ms float64) models.HitEvent {
	return models.HitEvent{TimeMs: ms, Voice: models.VoiceAny, Source: models.SourceMic}
}

func padHit(ms float64, voice models.Voice, vel uint8) models.HitEvent {
	return models.HitEvent{TimeMs: ms, Voice: voice, Velocity: vel, HasVelocity: true, Source: models.SourceController}
}

func mustMatch(t *testing.T, m *Matcher, hit models.HitEvent) models.ScoredHit {
	t.Helper()
	s, err := m.Match(hit)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	return s
}

func TestScenarioSixtyPercent(t *testing.T) {
	m := newActive(t, DefaultConfig(), timeline.ModeMicrophone, 0)

	for _, ms := range []float64{2, 248, 505, 900} {
		mustMatch(t, m, micHit(ms))
	}
	hits := m.Hits()

	for i := 0; i < 3; i++ {
		if !hits[i].Matched || hits[i].SequenceIndex != i {
			t.Errorf("Hit %d: expected match of note %d, got %+v", i, i, hits[i])
		}
	}
	if !hits[3].IsExtraHit || hits[3].SequenceIndex != -1 {
		t.Errorf("Hit at 900ms should be extra, got %+v", hits[3])
	}
	if notes := m.Notes(); notes[3].Matched {
		t.Error("Note 4 should remain unmatched")
	}
	if hits[1].RawTimingError != -2 || !hits[1].Early() {
		t.Errorf("Hit at 248ms should be 2ms early, got %+v", hits[1])
	}
}

func TestExactTimesArePerfect(t *testing.T) {
	m := newActive(t, DefaultConfig(), timeline.ModeMicrophone, 1000)

	for _, n := range m.Notes() {
		s := mustMatch(t, m, micHit(1000+n.TimeMs))
		if !s.Matched || !s.Perfect || s.RawTimingError != 0 {
			t.Errorf("Note %d: expected perfect zero-error match, got %+v", n.SequenceIndex, s)
		}
	}
	for _, n := range m.Notes() {
		if !n.Matched {
			t.Errorf("Note %d left unmatched", n.SequenceIndex)
		}
	}
}

func TestToleranceBoundaryInclusive(t *testing.T) {
	m := newActive(t, DefaultConfig(), timeline.ModeMicrophone, 0)
	if s := mustMatch(t, m, micHit(50)); !s.Matched {
		t.Errorf("Hit exactly 50ms off should match, got %+v", s)
	}

	m = newActive(t, DefaultConfig(), timeline.ModeMicrophone, 0)
	s := mustMatch(t, m, micHit(51))
	if s.Matched {
		t.Errorf("Hit 51ms off should not match, got %+v", s)
	}
	if s.IsExtraHit || s.SequenceIndex != 0 {
		t.Errorf("Hit 51ms off should be a near miss on note 0, got %+v", s)
	}
}

func TestPerfectThresholdUsesQuarterTolerance(t *testing.T) {
	m := newActive(t, DefaultConfig(), timeline.ModeMicrophone, 0)

	// min(15, 50/4) = 12.5
	if s := mustMatch(t, m, micHit(-12)); !s.Perfect {
		t.Errorf("12ms early should be perfect, got %+v", s)
	}
	s := mustMatch(t, m, micHit(263))
	if s.Perfect || !s.Late() {
		t.Errorf("13ms late should be late, not perfect, got %+v", s)
	}
}

func TestNoDoubleMatch(t *testing.T) {
	m := newActive(t, DefaultConfig(), timeline.ModeMicrophone, 0)
	mustMatch(t, m, micHit(0))
	s := mustMatch(t, m, micHit(5))
	if s.Matched || !s.IsExtraHit {
		t.Errorf("Second hit on a claimed note should be extra, got %+v", s)
	}

	matched := 0
	for _, n := range m.Notes() {
		if n.Matched {
			matched++
		}
	}
	if matched != 1 {
		t.Errorf("Expected 1 matched note, got %d", matched)
	}
}

func TestNearMissLeavesNoteOpen(t *testing.T) {
	m := newActive(t, DefaultConfig(), timeline.ModeMicrophone, 1000)

	miss := mustMatch(t, m, micHit(920))
	if miss.Matched || miss.IsExtraHit || miss.SequenceIndex != 0 || miss.ExpectedTimeMs != 0 {
		t.Fatalf("Expected near miss on note 0, got %+v", miss)
	}
	if m.Notes()[0].Matched {
		t.Fatal("Near miss must not claim the note")
	}

	claim := mustMatch(t, m, micHit(1010))
	if !claim.Matched || claim.SequenceIndex != 0 {
		t.Errorf("Later hit should claim note 0, got %+v", claim)
	}
}

func TestEquidistantHitClaimsLowestIndex(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ToleranceWindowMs = 130
	m := newActive(t, cfg, timeline.ModeMicrophone, 0)

	// 125ms sits halfway between notes 0 and 1.
	s := mustMatch(t, m, micHit(125))
	if !s.Matched || s.SequenceIndex != 0 || s.RawTimingError != 125 {
		t.Errorf("Expected tie to go to note 0, got %+v", s)
	}
	if notes := m.Notes(); notes[1].Matched {
		t.Error("Note 1 must stay open after a tie")
	}

	s = mustMatch(t, m, micHit(125))
	if !s.Matched || s.SequenceIndex != 1 || s.RawTimingError != -125 {
		t.Errorf("Second equidistant hit should take note 1, got %+v", s)
	}
}

func TestArrivalOrderDecidesClaims(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ToleranceWindowMs = 130

	tests := []struct {
		name      string
		order     []float64
		claimedBy float64
	}{
		{"early hit first", []float64{10, 100}, 10},
		{"late hit first", []float64{100, 10}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newActive(t, cfg, timeline.ModeMicrophone, 0)
			for _, ms := range tt.order {
				mustMatch(t, m, micHit(ms))
			}
			hits := m.Hits()

			first, second := hits[0], hits[1]
			if !first.Matched || first.SequenceIndex != 0 || first.TimeMs != tt.claimedBy {
				t.Errorf("First arrival should claim note 0, got %+v", first)
			}
			// The later hit finds note 0 taken and falls back to note 1,
			// which is outside the tolerance from either position.
			if second.Matched || second.IsExtraHit || second.SequenceIndex != 1 {
				t.Errorf("Second arrival should be a near miss on note 1, got %+v", second)
			}
		})
	}
}

func TestLatencyAdjustment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LatencyAdjustmentMs = 20
	m := newActive(t, cfg, timeline.ModeMicrophone, 1000)

	s := mustMatch(t, m, micHit(1270))
	if s.SequenceIndex != 1 || s.RawTimingError != 0 {
		t.Errorf("Expected compensated zero-error hit on note 1, got %+v", s)
	}
}

func TestControllerVoiceFilter(t *testing.T) {
	m := newActive(t, DefaultConfig(), timeline.ModeController, 0)

	s := mustMatch(t, m, padHit(0, models.VoiceSnare, 90))
	if !s.IsExtraHit {
		t.Errorf("Snare on a kick note should be extra, got %+v", s)
	}
	s = mustMatch(t, m, padHit(3, models.VoiceKick, 90))
	if !s.Matched || s.SequenceIndex != 0 {
		t.Errorf("Kick should match note 0, got %+v", s)
	}
	s = mustMatch(t, m, padHit(240, models.VoiceSnare, 90))
	if !s.Matched || s.SequenceIndex != 1 {
		t.Errorf("Snare should match note 1, got %+v", s)
	}
}

func TestDynamicsClassification(t *testing.T) {
	m, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	// note 1 ghost (lowercase), note 3 accent (annotation)
	m.Load(buildTimeline(t, timeline.Segment{
		TimeSignature: "4/4", Subdivision: 8, Voicing: "K s K S", Dynamics: "---a", Repeat: 1,
	}, timeline.ModeController))
	if err := m.Begin(0); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	plain := mustMatch(t, m, padHit(0, models.VoiceKick, 80))
	if plain.HasDynamicData {
		t.Errorf("Normal note should carry no dynamic data, got %+v", plain)
	}

	ghost := mustMatch(t, m, padHit(250, models.VoiceSnare, 30))
	if !ghost.HasDynamicData || !ghost.DynamicMatch || ghost.Dynamic != models.DynamicGhost {
		t.Errorf("Soft hit on ghost note should match dynamics, got %+v", ghost)
	}

	mustMatch(t, m, padHit(500, models.VoiceKick, 80))

	accent := mustMatch(t, m, padHit(750, models.VoiceSnare, 70))
	if !accent.HasDynamicData || accent.DynamicMatch || accent.ExpectedDynamic != models.DynamicAccent {
		t.Errorf("Medium hit on accent note should miss dynamics, got %+v", accent)
	}
	if accent.Dynamic != models.DynamicNormal {
		t.Errorf("Velocity 70 should classify normal, got %s", accent.Dynamic)
	}
}

func TestMatchRequiresActive(t *testing.T) {
	m, _ := New(DefaultConfig())
	if _, err := m.Match(micHit(0)); !errors.Is(err, ErrNotActive) {
		t.Errorf("Expected ErrNotActive before Begin, got %v", err)
	}
	if err := m.Arm(0); !errors.Is(err, ErrNoTimeline) {
		t.Errorf("Expected ErrNoTimeline, got %v", err)
	}

	m = newActive(t, DefaultConfig(), timeline.ModeMicrophone, 0)
	m.End()
	if m.State() != StateEnded {
		t.Fatalf("Expected ended state, got %s", m.State())
	}
	if _, err := m.Match(micHit(0)); !errors.Is(err, ErrNotActive) {
		t.Errorf("Expected ErrNotActive after End, got %v", err)
	}
}

func TestLoadResets(t *testing.T) {
	m := newActive(t, DefaultConfig(), timeline.ModeMicrophone, 0)
	mustMatch(t, m, micHit(0))

	m.Load(buildTimeline(t, timeline.Segment{
		TimeSignature: "4/4", Subdivision: 8, Voicing: "K S K S", Repeat: 1,
	}, timeline.ModeMicrophone))
	if m.State() != StateIdle {
		t.Errorf("Expected idle after Load, got %s", m.State())
	}
	if len(m.Hits()) != 0 {
		t.Errorf("Expected no hits after Load, got %d", len(m.Hits()))
	}
	for _, n := range m.Notes() {
		if n.Matched {
			t.Errorf("Note %d still matched after Load", n.SequenceIndex)
		}
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tolerance", func(c *Config) { c.ToleranceWindowMs = 0 }},
		{"NaN tolerance", func(c *Config) { c.ToleranceWindowMs = math.NaN() }},
		{"negative perfect", func(c *Config) { c.PerfectThresholdMs = -1 }},
		{"infinite latency", func(c *Config) { c.LatencyAdjustmentMs = math.Inf(1) }},
		{"ghost above accent", func(c *Config) { c.GhostMaxVelocity = 110 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg); !errors.Is(err, ErrInvalidArgs) {
				t.Errorf("Expected ErrInvalidArgs, got %v", err)
			}
		})
	}
}
