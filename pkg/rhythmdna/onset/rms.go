package onset

// rmsDetector fires on rising edges of frame RMS against an adaptive threshold.
type rmsDetector struct {
	gate
	sensitivity  float64
	minThreshold float64
	decayRatio   float64
	hist         history
}

func newRMSDetector(cfg Config) *rmsDetector {
	d := &rmsDetector{
		sensitivity:  cfg.Sensitivity,
		minThreshold: cfg.MinThreshold,
		decayRatio:   cfg.DecayRatio,
		hist:         newHistory(cfg.HistorySize),
	}
	d.gate.init(cfg)
	return d
}

func (d *rmsDetector) Algorithm() string { return AlgorithmRMS }

func (d *rmsDetector) Mute(atMs float64) { d.mute(atMs) }

func (d *rmsDetector) Reset() {
	d.gate.reset()
	d.hist.reset()
}

func (d *rmsDetector) Process(frame []float32) (Event, bool) {
	if len(frame) == 0 {
		return Event{}, false
	}
	now := d.advance(len(frame))
	rms := finite(frameRMS(frame))

	threshold := d.hist.threshold(d.minThreshold, d.sensitivity)
	decay := threshold * d.decayRatio
	d.hist.push(rms)

	d.release(rms < decay)
	if rms < threshold || !d.fire(now) {
		return Event{}, false
	}

	return Event{
		TimeMs:    now,
		Level:     peakLevel(frame),
		RMS:       rms,
		Threshold: threshold,
		Algorithm: AlgorithmRMS,
	}, true
}
