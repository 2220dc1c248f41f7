package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/himanishpuri/RhythmDNA/pkg/models"
)

var styles = struct {
	title   lipgloss.Style
	perfect lipgloss.Style
	early   lipgloss.Style
	late    lipgloss.Style
	bad     lipgloss.Style
	dim     lipgloss.Style
}{
	title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")),
	perfect: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
	early:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	late:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	bad:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
}

// verdict names the outcome of a scored hit.
func verdict(h models.ScoredHit) string {
	switch {
	case h.IsExtraHit:
		return "EXTRA"
	case !h.Matched:
		return "MISS"
	case h.Perfect:
		return "PERFECT"
	case h.Early():
		return "EARLY"
	default:
		return "LATE"
	}
}

// formatHit renders one scored hit as a plain line.
func formatHit(h models.ScoredHit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%8.1fms  %-7s", h.TimeMs, verdict(h))
	if h.SequenceIndex >= 0 {
		fmt.Fprintf(&b, "  note #%-3d %+6.1fms", h.SequenceIndex, h.RawTimingError)
	}
	if h.Voice != "" && h.Voice != models.VoiceAny {
		fmt.Fprintf(&b, "  %s", h.Voice)
	}
	if h.HasDynamicData {
		mark := "✓"
		if !h.DynamicMatch {
			mark = "✗"
		}
		fmt.Fprintf(&b, "  %s→%s %s", h.ExpectedDynamic, h.Dynamic, mark)
	}
	return b.String()
}

func renderHit(h models.ScoredHit) string {
	line := formatHit(h)
	switch verdict(h) {
	case "PERFECT":
		return styles.perfect.Render(line)
	case "EARLY":
		return styles.early.Render(line)
	case "LATE":
		return styles.late.Render(line)
	default:
		return styles.bad.Render(line)
	}
}

func printSummary(s models.SessionSummary) {
	fmt.Println()
	fmt.Println(styles.title.Render(fmt.Sprintf("📊 %s @ %.0f BPM", s.PatternName, s.BPM)))
	fmt.Printf("   ID:        %s\n", s.ID)
	fmt.Printf("   Played:    %s (%s, %.1fs)\n", humanize.Time(s.StartTime), s.InputMode, s.DurationSeconds)
	if s.Algorithm != "" {
		fmt.Printf("   Detector:  %s\n", s.Algorithm)
	}
	fmt.Printf("   Accuracy:  %s\n", accuracyStyle(s.AccuracyPercent).Render(fmt.Sprintf("%.1f%%", s.AccuracyPercent)))
	fmt.Printf("   Notes:     %d matched, %d missed, %d extra of %d\n", s.MatchedCount, s.MissedCount, s.ExtraCount, s.TotalNotes)
	fmt.Printf("   Timing:    %s perfect, %s early, %s late, mean error %.1fms\n",
		styles.perfect.Render(fmt.Sprint(s.PerfectCount)),
		styles.early.Render(fmt.Sprint(s.EarlyCount)),
		styles.late.Render(fmt.Sprint(s.LateCount)),
		s.TimingAverageMs)
	if s.DynamicAccuracyPercent != nil {
		fmt.Printf("   Dynamics:  %.1f%%\n", *s.DynamicAccuracyPercent)
	}
}

func accuracyStyle(pct float64) lipgloss.Style {
	switch {
	case pct >= 90:
		return styles.perfect
	case pct >= 70:
		return styles.late
	default:
		return styles.bad
	}
}

// splitArgs separates leading positional arguments from trailing flags.
func splitArgs(args []string) (positional, flags []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			return positional, args[i:]
		}
		positional = append(positional, arg)
	}
	return positional, nil
}
