package onset

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Detection function weights for the combined score.
const (
	fluxWeight = 0.5
	hfcWeight  = 0.3
	rmsWeight  = 0.2

	// fast transients: relative flux jump and the share of the flux
	// threshold the absolute flux must still reach
	fluxJumpRatio     = 1.5
	fluxJumpThreshold = 0.5
)

// fluxDetector combines spectral flux, high-frequency content and RMS over a
// sliding analysis window.
type fluxDetector struct {
	gate
	sensitivity float64
	decayRatio  float64
	rmsFloor    float64
	fluxFloor   float64
	hfcFloor    float64

	windowSize int
	hopSize    int
	buf        []float64 // circular, pos is the oldest sample
	pos        int
	sinceHop   int

	win     []float64
	winNorm float64
	work    []float64
	coeffs  []complex128
	mag     []float64
	prevMag []float64
	fft     *fourier.FFT

	prevFlux float64
	fluxHist history
	hfcHist  history
	rmsHist  history
}

func newFluxDetector(cfg Config) *fluxDetector {
	n := cfg.WindowSize
	bins := n/2 + 1

	win := window.Hann(n)
	var sum float64
	for _, w := range win {
		sum += w
	}

	d := &fluxDetector{
		sensitivity: cfg.Sensitivity,
		decayRatio:  cfg.DecayRatio,
		rmsFloor:    cfg.MinThreshold,
		fluxFloor:   cfg.MinThreshold * 5,
		hfcFloor:    cfg.MinThreshold,
		windowSize:  n,
		hopSize:     cfg.HopSize,
		buf:         make([]float64, n),
		win:         win,
		winNorm:     2 / sum,
		work:        make([]float64, n),
		coeffs:      make([]complex128, bins),
		mag:         make([]float64, bins),
		prevMag:     make([]float64, bins),
		fft:         fourier.NewFFT(n),
		fluxHist:    newHistory(cfg.HistorySize),
		hfcHist:     newHistory(cfg.HistorySize),
		rmsHist:     newHistory(cfg.HistorySize),
	}
	d.gate.init(cfg)
	return d
}

func (d *fluxDetector) Algorithm() string { return AlgorithmFlux }

func (d *fluxDetector) Mute(atMs float64) { d.mute(atMs) }

func (d *fluxDetector) Reset() {
	d.gate.reset()
	for i := range d.buf {
		d.buf[i] = 0
	}
	for i := range d.prevMag {
		d.prevMag[i] = 0
	}
	d.pos = 0
	d.sinceHop = 0
	d.prevFlux = 0
	d.fluxHist.reset()
	d.hfcHist.reset()
	d.rmsHist.reset()
}

// Process buffers the frame and analyzes every completed hop. When a frame
// completes several hops only the first onset is reported.
func (d *fluxDetector) Process(frame []float32) (Event, bool) {
	var (
		first Event
		found bool
	)
	for _, s := range frame {
		d.buf[d.pos] = finite(float64(s))
		d.pos = (d.pos + 1) % d.windowSize
		d.samples++
		d.sinceHop++
		if d.sinceHop < d.hopSize {
			continue
		}
		d.sinceHop = 0
		now := float64(d.samples) * 1000 / d.sampleRate
		if ev, ok := d.analyze(now); ok && !found {
			first, found = ev, true
		}
	}
	if found {
		first.Level = peakLevel(frame)
	}
	return first, found
}

func (d *fluxDetector) analyze(now float64) (Event, bool) {
	var energy float64
	for i := 0; i < d.windowSize; i++ {
		s := d.buf[(d.pos+i)%d.windowSize]
		energy += s * s
		d.work[i] = s * d.win[i]
	}
	rms := math.Sqrt(energy / float64(d.windowSize))

	d.coeffs = d.fft.Coefficients(d.coeffs, d.work)

	var flux, hfc float64
	for k, c := range d.coeffs {
		m := cmplx.Abs(c) * d.winNorm
		d.mag[k] = m
		if diff := m - d.prevMag[k]; diff > 0 {
			flux += diff
		}
		hfc += float64(k) * m * m
	}
	hfc /= float64(len(d.coeffs))
	d.mag, d.prevMag = d.prevMag, d.mag

	fluxThr := d.fluxHist.threshold(d.fluxFloor, d.sensitivity)
	hfcThr := d.hfcHist.threshold(d.hfcFloor, d.sensitivity)
	rmsThr := d.rmsHist.threshold(d.rmsFloor, d.sensitivity)
	d.fluxHist.push(flux)
	d.hfcHist.push(hfc)
	d.rmsHist.push(rms)

	score := fluxWeight*flux/fluxThr + hfcWeight*hfc/hfcThr + rmsWeight*rms/rmsThr
	jump := flux > fluxJumpRatio*d.prevFlux && flux > fluxJumpThreshold*fluxThr
	d.prevFlux = flux

	d.release(score < d.decayRatio)
	if !(score > 1 || jump) || !d.fire(now) {
		return Event{}, false
	}

	return Event{
		TimeMs:    now,
		RMS:       rms,
		Flux:      flux,
		HFC:       hfc,
		Threshold: fluxThr,
		Score:     score,
		Algorithm: AlgorithmFlux,
	}, true
}
