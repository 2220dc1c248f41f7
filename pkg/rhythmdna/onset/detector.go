package onset

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

const (
	AlgorithmRMS  = "rms"
	AlgorithmFlux = "flux"
)

const (
	DefaultFrameSize     = 128
	DefaultHistorySize   = 100
	DefaultSensitivity   = 1.5
	DefaultMinThreshold  = 0.01
	DefaultMinIntervalMs = 40
	DefaultDecayRatio    = 0.5
	DefaultMuteWindowMs  = 40
	DefaultWindowSize    = 512
	DefaultHopSize       = 128
)

var ErrInvalidConfig = errors.New("invalid onset detector config")

// Event is a single detected onset.
type Event struct {
	TimeMs    float64 // end of the frame or hop that fired, ms since the first sample
	Level     float64 // peak amplitude of that frame, clamped to 0..1
	RMS       float64
	Flux      float64 // flux algorithm only
	HFC       float64 // flux algorithm only
	Threshold float64 // RMS threshold, or flux threshold for the flux algorithm
	Score     float64 // combined detection score, flux algorithm only
	Algorithm string
}

// Detector turns fixed-size audio frames into onset events. Process is meant
// for the real-time audio callback: it never blocks and does not allocate.
// Mute may be called from any goroutine.
type Detector interface {
	Process(frame []float32) (Event, bool)
	Mute(atMs float64)
	Reset()
	Algorithm() string
}

type Config struct {
	Algorithm     string
	SampleRate    int
	FrameSize     int
	Sensitivity   float64 // standard deviations above the running mean
	MinThreshold  float64
	MinIntervalMs float64
	DecayRatio    float64
	HistorySize   int
	MuteWindowMs  float64
	WindowSize    int // flux analysis window, power of two
	HopSize       int
}

func DefaultConfig(sampleRate int) Config {
	return Config{
		Algorithm:     AlgorithmRMS,
		SampleRate:    sampleRate,
		FrameSize:     DefaultFrameSize,
		Sensitivity:   DefaultSensitivity,
		MinThreshold:  DefaultMinThreshold,
		MinIntervalMs: DefaultMinIntervalMs,
		DecayRatio:    DefaultDecayRatio,
		HistorySize:   DefaultHistorySize,
		MuteWindowMs:  DefaultMuteWindowMs,
		WindowSize:    DefaultWindowSize,
		HopSize:       DefaultHopSize,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Algorithm != AlgorithmRMS && c.Algorithm != AlgorithmFlux:
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, c.Algorithm)
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, c.SampleRate)
	case c.FrameSize <= 0:
		return fmt.Errorf("%w: frame size %d", ErrInvalidConfig, c.FrameSize)
	case c.Sensitivity < 0:
		return fmt.Errorf("%w: sensitivity %v", ErrInvalidConfig, c.Sensitivity)
	case c.MinThreshold <= 0:
		return fmt.Errorf("%w: min threshold %v", ErrInvalidConfig, c.MinThreshold)
	case c.MinIntervalMs < 0:
		return fmt.Errorf("%w: min interval %v", ErrInvalidConfig, c.MinIntervalMs)
	case c.DecayRatio <= 0 || c.DecayRatio >= 1:
		return fmt.Errorf("%w: decay ratio %v", ErrInvalidConfig, c.DecayRatio)
	case c.HistorySize < 2:
		return fmt.Errorf("%w: history size %d", ErrInvalidConfig, c.HistorySize)
	case c.MuteWindowMs < 0:
		return fmt.Errorf("%w: mute window %v", ErrInvalidConfig, c.MuteWindowMs)
	}
	if c.Algorithm == AlgorithmFlux {
		if c.WindowSize < 4 || c.WindowSize&(c.WindowSize-1) != 0 {
			return fmt.Errorf("%w: window size %d is not a power of two", ErrInvalidConfig, c.WindowSize)
		}
		if c.HopSize <= 0 || c.HopSize > c.WindowSize {
			return fmt.Errorf("%w: hop size %d", ErrInvalidConfig, c.HopSize)
		}
	}
	return nil
}

// New builds the detector selected by cfg.Algorithm. All buffers are
// allocated here.
func New(cfg Config) (Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Algorithm {
	case AlgorithmFlux:
		return newFluxDetector(cfg), nil
	default:
		return newRMSDetector(cfg), nil
	}
}

// gate holds the trigger policy both algorithms share: sample clock,
// decay latch, minimum interval and the mute window.
type gate struct {
	sampleRate    float64
	minIntervalMs float64
	muteWindowMs  float64

	samples      int64
	lastHitMs    float64
	requireDecay bool
	mutedAt      atomic.Uint64 // float64 bits, NaN when never muted
}

func (g *gate) init(cfg Config) {
	g.sampleRate = float64(cfg.SampleRate)
	g.minIntervalMs = cfg.MinIntervalMs
	g.muteWindowMs = cfg.MuteWindowMs
	g.reset()
}

func (g *gate) reset() {
	g.samples = 0
	g.lastHitMs = math.Inf(-1)
	g.requireDecay = false
	g.mutedAt.Store(math.Float64bits(math.NaN()))
}

func (g *gate) advance(n int) float64 {
	g.samples += int64(n)
	return float64(g.samples) * 1000 / g.sampleRate
}

func (g *gate) mute(atMs float64) {
	g.mutedAt.Store(math.Float64bits(atMs))
}

func (g *gate) muted(nowMs float64) bool {
	at := math.Float64frombits(g.mutedAt.Load())
	if math.IsNaN(at) {
		return false
	}
	return nowMs >= at && nowMs-at < g.muteWindowMs
}

// release clears the decay latch once the signal has dropped below the
// decay level.
func (g *gate) release(decayed bool) {
	if decayed {
		g.requireDecay = false
	}
}

// fire applies the latch, interval and mute policies to a candidate onset
// and records the hit when it passes. A candidate inside the mute window
// engages the latch without recording a hit, so speaker bleed has to decay
// before the detector re-arms.
func (g *gate) fire(nowMs float64) bool {
	if g.requireDecay {
		return false
	}
	if nowMs-g.lastHitMs < g.minIntervalMs {
		return false
	}
	if g.muted(nowMs) {
		g.requireDecay = true
		return false
	}
	g.lastHitMs = nowMs
	g.requireDecay = true
	return true
}

func peakLevel(frame []float32) float64 {
	var peak float64
	for _, s := range frame {
		v := math.Abs(float64(s))
		if v > peak {
			peak = v
		}
	}
	return math.Min(1, peak)
}

func frameRMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// finite maps NaN and Inf input to silence so a corrupt frame cannot poison
// the running statistics.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
