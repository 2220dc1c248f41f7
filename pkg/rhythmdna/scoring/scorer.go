// Package scoring aggregates a finished pass into a session summary.
package scoring

import (
	"math"
	"time"

	"github.com/himanishpuri/RhythmDNA/pkg/models"
)

// Score summarizes the final note states and every scored hit of a pass.
// Identity fields (ID, pattern, input mode) are left for the caller.
//
// Accuracy counts extra hits against the player:
// matched / (notes + extra) * 100.
func Score(notes []models.ExpectedNote, hits []models.ScoredHit, start, end time.Time) models.SessionSummary {
	s := models.SessionSummary{
		StartTime:  start,
		EndTime:    end,
		TotalNotes: len(notes),
	}
	if end.After(start) {
		s.DurationSeconds = end.Sub(start).Seconds()
	}

	for _, n := range notes {
		if n.Matched {
			s.MatchedCount++
		}
	}
	s.MissedCount = s.TotalNotes - s.MatchedCount

	var (
		errSum       float64
		matchedHits  int
		dynamicTotal int
		dynamicHits  int
	)
	for _, h := range hits {
		if h.IsExtraHit {
			s.ExtraCount++
		}
		if h.HasDynamicData {
			dynamicTotal++
			if h.DynamicMatch {
				dynamicHits++
			}
		}
		if !h.Matched {
			continue
		}
		matchedHits++
		errSum += math.Abs(h.RawTimingError)
		switch {
		case h.Perfect:
			s.PerfectCount++
		case h.Early():
			s.EarlyCount++
		default:
			s.LateCount++
		}
	}

	if denom := s.TotalNotes + s.ExtraCount; denom > 0 {
		s.AccuracyPercent = float64(s.MatchedCount) / float64(denom) * 100
	}
	if matchedHits > 0 {
		s.TimingAverageMs = errSum / float64(matchedHits)
	}
	if dynamicTotal > 0 {
		pct := float64(dynamicHits) / float64(dynamicTotal) * 100
		s.DynamicAccuracyPercent = &pct
	}
	return s
}
