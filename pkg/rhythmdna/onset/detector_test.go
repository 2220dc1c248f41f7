package onset

import (
	"errors"
	"math"
	"testing"
)

const testSampleRate = 48000

// signal is a synthetic mono recording built up in milliseconds.
type signal []float32

func silence(ms float64) signal {
	return make(signal, int(ms*testSampleRate/1000))
}

func tone(ms, freq, amp float64) signal {
	n := int(ms * testSampleRate / 1000)
	out := make(signal, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/testSampleRate))
	}
	return out
}

// click is a percussive burst: a sine with a sharp attack and fast decay.
func click(ms, amp float64) signal {
	n := int(ms * testSampleRate / 1000)
	out := make(signal, n)
	for i := range out {
		t := float64(i) / testSampleRate
		out[i] = float32(amp * math.Exp(-t/0.004) * math.Sin(2*math.Pi*1000*t))
	}
	return out
}

func concat(parts ...signal) signal {
	var out signal
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// run feeds sig to d in frames of frameSize samples and collects events.
func run(t *testing.T, d Detector, sig signal, frameSize int) []Event {
	t.Helper()
	var events []Event
	for start := 0; start < len(sig); start += frameSize {
		end := start + frameSize
		if end > len(sig) {
			end = len(sig)
		}
		if ev, ok := d.Process(sig[start:end]); ok {
			events = append(events, ev)
		}
	}
	return events
}

func newTestDetector(t *testing.T, algorithm string) Detector {
	t.Helper()
	cfg := DefaultConfig(testSampleRate)
	cfg.Algorithm = algorithm
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%s) failed: %v", algorithm, err)
	}
	if d.Algorithm() != algorithm {
		t.Fatalf("Expected algorithm %s, got %s", algorithm, d.Algorithm())
	}
	return d
}

func TestRMSSustainedToneFiresOnce(t *testing.T) {
	d := newTestDetector(t, AlgorithmRMS)
	sig := concat(silence(100), tone(500, 440, 0.5))

	events := run(t, d, sig, DefaultFrameSize)
	if len(events) != 1 {
		t.Fatalf("Expected exactly 1 hit for a sustained tone, got %d", len(events))
	}
	if events[0].TimeMs < 100 || events[0].TimeMs > 100+3 {
		t.Errorf("Expected hit at onset (~100ms), got %.2fms", events[0].TimeMs)
	}
	if events[0].Level <= 0 || events[0].Level > 1 {
		t.Errorf("Level out of range: %v", events[0].Level)
	}
	if events[0].Algorithm != AlgorithmRMS {
		t.Errorf("Expected algorithm rms, got %s", events[0].Algorithm)
	}
}

func TestRMSSeparatedBursts(t *testing.T) {
	d := newTestDetector(t, AlgorithmRMS)
	sig := concat(
		silence(100),
		click(20, 0.8), silence(230),
		click(20, 0.8), silence(230),
		click(20, 0.8), silence(100),
	)

	events := run(t, d, sig, DefaultFrameSize)
	if len(events) != 3 {
		t.Fatalf("Expected 3 hits, got %d", len(events))
	}
	for i, want := range []float64{100, 350, 600} {
		if math.Abs(events[i].TimeMs-want) > 5 {
			t.Errorf("Hit %d: expected ~%.0fms, got %.2fms", i, want, events[i].TimeMs)
		}
	}
}

func TestRMSMinimumInterval(t *testing.T) {
	d := newTestDetector(t, AlgorithmRMS)
	// Second burst arrives 15ms after the first, well inside the 40ms interval.
	sig := concat(
		silence(100),
		tone(5, 440, 0.5), silence(10),
		tone(5, 440, 0.5), silence(200),
		tone(5, 440, 0.5), silence(100),
	)

	events := run(t, d, sig, DefaultFrameSize)
	if len(events) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(events))
	}
	if events[1].TimeMs-events[0].TimeMs < DefaultMinIntervalMs {
		t.Errorf("Hits closer than the minimum interval: %.2f and %.2f", events[0].TimeMs, events[1].TimeMs)
	}
}

func TestSilenceProducesNoHits(t *testing.T) {
	for _, algo := range []string{AlgorithmRMS, AlgorithmFlux} {
		d := newTestDetector(t, algo)
		if events := run(t, d, silence(1000), DefaultFrameSize); len(events) != 0 {
			t.Errorf("%s: expected no hits on silence, got %d", algo, len(events))
		}
	}
}

func TestMuteWindowSuppressesHits(t *testing.T) {
	for _, algo := range []string{AlgorithmRMS, AlgorithmFlux} {
		t.Run(algo, func(t *testing.T) {
			d := newTestDetector(t, algo)
			d.Mute(100)

			sig := concat(silence(110), click(20, 0.8), silence(270), click(20, 0.8), silence(100))
			events := run(t, d, sig, DefaultFrameSize)
			if len(events) != 1 {
				t.Fatalf("Expected 1 hit after the mute window, got %d", len(events))
			}
			if events[0].TimeMs < 390 {
				t.Errorf("Hit inside mute window leaked through at %.2fms", events[0].TimeMs)
			}
		})
	}
}

func TestFluxDetectsClicks(t *testing.T) {
	d := newTestDetector(t, AlgorithmFlux)

	onsets := []float64{100, 350, 600, 850}
	var parts []signal
	parts = append(parts, silence(100))
	for range onsets {
		parts = append(parts, click(20, 0.8), silence(230))
	}
	events := run(t, d, concat(parts...), DefaultFrameSize)

	if len(events) != len(onsets) {
		t.Fatalf("Expected %d hits, got %d", len(onsets), len(events))
	}
	for i, ev := range events {
		if ev.TimeMs < onsets[i] || ev.TimeMs > onsets[i]+15 {
			t.Errorf("Hit %d: expected within 15ms after %.0fms, got %.2fms", i, onsets[i], ev.TimeMs)
		}
		if ev.Flux <= 0 || ev.Score <= 0 {
			t.Errorf("Hit %d: expected positive flux and score, got flux=%v score=%v", i, ev.Flux, ev.Score)
		}
		if ev.Algorithm != AlgorithmFlux {
			t.Errorf("Hit %d: expected algorithm flux, got %s", i, ev.Algorithm)
		}
	}
}

func TestFluxOddFrameSizes(t *testing.T) {
	d := newTestDetector(t, AlgorithmFlux)
	sig := concat(silence(100), click(20, 0.8), silence(230), click(20, 0.8), silence(100))

	// Frames that do not line up with the hop still see every hop.
	events := run(t, d, sig, 100)
	if len(events) != 2 {
		t.Fatalf("Expected 2 hits with 100-sample frames, got %d", len(events))
	}
}

func TestResetRestartsClock(t *testing.T) {
	for _, algo := range []string{AlgorithmRMS, AlgorithmFlux} {
		d := newTestDetector(t, algo)
		sig := concat(silence(100), click(20, 0.8), silence(100))

		first := run(t, d, sig, DefaultFrameSize)
		d.Reset()
		second := run(t, d, sig, DefaultFrameSize)

		if len(first) != 1 || len(second) != 1 {
			t.Fatalf("%s: expected one hit per run, got %d and %d", algo, len(first), len(second))
		}
		if first[0].TimeMs != second[0].TimeMs {
			t.Errorf("%s: expected identical times after reset, got %.2f and %.2f", algo, first[0].TimeMs, second[0].TimeMs)
		}
	}
}

func TestCorruptSamplesAreIgnored(t *testing.T) {
	d := newTestDetector(t, AlgorithmRMS)
	frame := make([]float32, DefaultFrameSize)
	for i := range frame {
		frame[i] = float32(math.NaN())
	}
	for i := 0; i < 10; i++ {
		if _, ok := d.Process(frame); ok {
			t.Fatal("NaN frame produced a hit")
		}
	}
	events := run(t, d, concat(silence(50), click(20, 0.8)), DefaultFrameSize)
	if len(events) != 1 {
		t.Errorf("Expected detector to recover after corrupt frames, got %d hits", len(events))
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown algorithm", func(c *Config) { c.Algorithm = "energy" }},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"negative sensitivity", func(c *Config) { c.Sensitivity = -1 }},
		{"zero min threshold", func(c *Config) { c.MinThreshold = 0 }},
		{"decay ratio one", func(c *Config) { c.DecayRatio = 1 }},
		{"tiny history", func(c *Config) { c.HistorySize = 1 }},
		{"window not power of two", func(c *Config) { c.Algorithm = AlgorithmFlux; c.WindowSize = 500 }},
		{"hop larger than window", func(c *Config) { c.Algorithm = AlgorithmFlux; c.HopSize = 1024 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(testSampleRate)
			tt.mutate(&cfg)
			if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestHistoryThreshold(t *testing.T) {
	h := newHistory(4)
	if got := h.threshold(0.1, 2); got != 0.1 {
		t.Errorf("Empty history should return the floor, got %v", got)
	}
	for _, v := range []float64{1, 1, 1, 1, 5} {
		h.push(v)
	}
	// Ring holds 5, 1, 1, 1 after wrapping.
	if h.count != 4 {
		t.Fatalf("Expected 4 stored values, got %d", h.count)
	}
	got := h.threshold(0.1, 0)
	if math.Abs(got-2) > 1e-9 {
		t.Errorf("Expected mean 2 with k=0, got %v", got)
	}
}
