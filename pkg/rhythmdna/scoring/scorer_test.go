package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/himanishpuri/RhythmDNA/pkg/models"
)

func notes(matched ...bool) []models.ExpectedNote {
	out := make([]models.ExpectedNote, len(matched))
	for i, m := range matched {
		out[i] = models.ExpectedNote{TimeMs: float64(i) * 250, SequenceIndex: i, Matched: m}
	}
	return out
}

func TestScoreScenario(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Second)

	hits := []models.ScoredHit{
		{SequenceIndex: 0, RawTimingError: 2, TimingError: 2, Matched: true, Perfect: true},
		{SequenceIndex: 1, RawTimingError: -2, TimingError: 2, Matched: true, Perfect: true},
		{SequenceIndex: 2, RawTimingError: 5, TimingError: 5, Matched: true, Perfect: true},
		{SequenceIndex: -1, IsExtraHit: true},
	}
	s := Score(notes(true, true, true, false), hits, start, end)

	if s.MatchedCount != 3 || s.MissedCount != 1 || s.ExtraCount != 1 {
		t.Errorf("Unexpected counts: matched=%d missed=%d extra=%d", s.MatchedCount, s.MissedCount, s.ExtraCount)
	}
	if math.Abs(s.AccuracyPercent-60) > 1e-9 {
		t.Errorf("Expected 60%% accuracy, got %v", s.AccuracyPercent)
	}
	if math.Abs(s.TimingAverageMs-3) > 1e-9 {
		t.Errorf("Expected 3ms average error, got %v", s.TimingAverageMs)
	}
	if s.DurationSeconds != 2 {
		t.Errorf("Expected 2s duration, got %v", s.DurationSeconds)
	}
	if s.DynamicAccuracyPercent != nil {
		t.Errorf("Expected no dynamic accuracy, got %v", *s.DynamicAccuracyPercent)
	}
}

func TestScorePartitionsMatchedHits(t *testing.T) {
	hits := []models.ScoredHit{
		{Matched: true, Perfect: true, RawTimingError: 3},
		{Matched: true, RawTimingError: -20},
		{Matched: true, RawTimingError: 30},
		{Matched: true, RawTimingError: 40},
		{Matched: false, SequenceIndex: 0, RawTimingError: 80}, // near miss
	}
	s := Score(notes(true, true, true, true), hits, time.Time{}, time.Time{})

	if s.PerfectCount != 1 || s.EarlyCount != 1 || s.LateCount != 2 {
		t.Errorf("Expected 1/1/2 perfect/early/late, got %d/%d/%d", s.PerfectCount, s.EarlyCount, s.LateCount)
	}
	if s.PerfectCount+s.EarlyCount+s.LateCount != s.MatchedCount {
		t.Error("Perfect, early and late must partition matched hits")
	}
	if s.ExtraCount != 0 {
		t.Errorf("Near miss is not an extra hit, got %d extra", s.ExtraCount)
	}
	if math.Abs(s.TimingAverageMs-93.0/4) > 1e-9 {
		t.Errorf("Near miss must not affect the average, got %v", s.TimingAverageMs)
	}
}

func TestScoreDynamicAccuracy(t *testing.T) {
	hits := []models.ScoredHit{
		{Matched: true, HasDynamicData: true, DynamicMatch: true},
		{Matched: true, HasDynamicData: true, DynamicMatch: false},
		{Matched: true},
	}
	s := Score(notes(true, true, true), hits, time.Time{}, time.Time{})
	if s.DynamicAccuracyPercent == nil {
		t.Fatal("Expected dynamic accuracy")
	}
	if *s.DynamicAccuracyPercent != 50 {
		t.Errorf("Expected 50%%, got %v", *s.DynamicAccuracyPercent)
	}
}

func TestScoreEmpty(t *testing.T) {
	s := Score(nil, nil, time.Time{}, time.Time{})
	if s.AccuracyPercent != 0 || s.TimingAverageMs != 0 || s.MissedCount != 0 {
		t.Errorf("Expected zero summary, got %+v", s)
	}
}
