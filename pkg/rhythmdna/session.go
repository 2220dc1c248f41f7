package rhythmdna

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/himanishpuri/RhythmDNA/pkg/models"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/controller"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/hitqueue"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/matcher"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/onset"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/scoring"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/timeline"
)

type sessionState int

const (
	sessionIdle sessionState = iota
	sessionRunning
	sessionStopped
)

// Session is one practice pass over a pattern.
//
// Exactly one producer feeds it: the audio callback through ProcessAudio,
// or the controller listener through ProcessController. Hits cross to a
// matcher goroutine on a lock-free queue and come back out, scored, on the
// Hits channel. Stop drains the queue, scores the pass and persists it.
type Session struct {
	cfg     SessionConfig
	pattern timeline.Pattern
	log     Logger
	store   Storage
	onStart func()
	onStop  func()

	tl       atomic.Pointer[timeline.Timeline]
	detector onset.Detector
	decoder  *controller.Decoder
	queue    *hitqueue.Ring[models.HitEvent]
	matcher  *matcher.Matcher

	intake      atomic.Bool
	resetInput  atomic.Bool // consumed by the producer before its next input
	dropBase    atomic.Uint64
	feedDropped atomic.Uint64
	scored      atomic.Int64
	matched     atomic.Int64

	mu        sync.Mutex
	id        string
	state     sessionState
	startWall time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	hits      chan models.ScoredHit
	feedOnce  *sync.Once
	summary   *models.SessionSummary
	aborted   bool
}

func newSession(pattern timeline.Pattern, cfg SessionConfig, store Storage, log Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:     cfg,
		pattern: pattern,
		log:     log,
		store:   store,
	}

	if err := s.loadTimeline(pattern); err != nil {
		return nil, err
	}

	var err error
	switch cfg.Input {
	case models.SourceMic:
		s.detector, err = onset.New(cfg.detectorConfig())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	case models.SourceController:
		s.decoder, err = controller.NewDecoder(controller.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	s.queue, err = hitqueue.New[models.HitEvent](cfg.QueueSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	s.matcher, err = matcher.New(cfg.matcherConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	s.matcher.Load(s.tl.Load())

	s.reset()
	return s, nil
}

func (s *Session) loadTimeline(pattern timeline.Pattern) error {
	mode := timeline.ModeMicrophone
	if s.cfg.Input == models.SourceController {
		mode = timeline.ModeController
	}
	tl, err := timeline.Build(pattern, mode)
	if err != nil {
		return err
	}
	s.tl.Store(tl)
	return nil
}

// reset prepares a fresh pass. The caller holds mu or owns s exclusively.
func (s *Session) reset() {
	s.id = uuid.NewString()
	s.state = sessionIdle
	s.summary = nil
	s.aborted = false
	s.done = nil
	s.cancel = nil
	s.hits = make(chan models.ScoredHit, s.cfg.HitBuffer)
	s.feedOnce = &sync.Once{}
	s.dropBase.Store(s.queue.Dropped())
	s.feedDropped.Store(0)
	s.scored.Store(0)
	s.matched.Store(0)
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) Config() SessionConfig { return s.cfg }

// Timeline returns the expected notes currently being practiced.
func (s *Session) Timeline() *timeline.Timeline { return s.tl.Load() }

// ProcessAudio runs one frame through the onset detector. It is safe to
// call from an audio callback: it never blocks and never fails. Frames are
// ignored unless the session is a running microphone session.
func (s *Session) ProcessAudio(frame []float32) {
	if s.detector == nil || !s.intake.Load() {
		return
	}
	if s.resetInput.CompareAndSwap(true, false) {
		s.detector.Reset()
	}
	ev, ok := s.detector.Process(frame)
	if !ok {
		return
	}
	s.queue.TryPush(models.HitEvent{
		TimeMs: ev.TimeMs,
		Voice:  models.VoiceAny,
		Level:  ev.Level,
		Source: models.SourceMic,
	})
}

// ProcessController decodes one raw message received at atMs. Malformed
// messages are logged and returned; the session keeps running.
func (s *Session) ProcessController(msg []byte, atMs float64) error {
	if s.decoder == nil {
		return ErrWrongInput
	}
	if !s.intake.Load() {
		return nil
	}
	if s.resetInput.CompareAndSwap(true, false) {
		s.decoder.Reset()
	}
	hit, ok, err := s.decoder.Decode(msg, atMs)
	if err != nil {
		s.log.Warnf("skipping controller message % X: %v", msg, err)
		return err
	}
	if ok {
		s.queue.TryPush(hit)
	}
	return nil
}

// Mute suppresses microphone hits for a short window after atMs, measured
// on the same clock as detector events.
func (s *Session) Mute(atMs float64) {
	if s.detector != nil {
		s.detector.Mute(atMs)
	}
}

// Hits is the live feed of scored hits for the current pass. It is closed
// when the pass stops. Publishing never blocks; when the reader falls
// behind, hits are dropped from the feed but still scored.
func (s *Session) Hits() <-chan models.ScoredHit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits
}

// Start begins the pass with the first expected note at startMs. For a
// microphone session the clock is the detector's sample clock, which starts
// at zero with the first frame after Start.
func (s *Session) Start(ctx context.Context, startMs float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case sessionRunning:
		return ErrSessionRunning
	case sessionStopped:
		return ErrSessionStopped
	}
	if err := s.matcher.Begin(startMs); err != nil {
		return fmt.Errorf("starting matcher: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.startWall = time.Now()
	s.state = sessionRunning
	s.intake.Store(true)
	if s.onStart != nil {
		s.onStart()
	}

	go s.consume(runCtx, s.done, s.hits)

	s.log.Infof("session %s: started %q (%d notes, %s input)", s.id, s.pattern.Name, s.tl.Load().Len(), s.cfg.Input)
	return nil
}

// consume owns the matcher until done is closed.
func (s *Session) consume(ctx context.Context, done chan<- struct{}, feed chan<- models.ScoredHit) {
	defer close(done)
	for {
		s.drain(feed)
		select {
		case <-s.queue.Ready():
		case <-ctx.Done():
			s.drain(feed)
			return
		}
	}
}

func (s *Session) drain(feed chan<- models.ScoredHit) {
	for {
		hit, ok := s.queue.TryPop()
		if !ok {
			return
		}
		scored, err := s.matcher.Match(hit)
		if err != nil {
			s.log.Debugf("dropping hit at %.1fms: %v", hit.TimeMs, err)
			continue
		}
		s.scored.Add(1)
		if scored.Matched {
			s.matched.Add(1)
		}
		select {
		case feed <- scored:
		default:
			s.feedDropped.Add(1)
		}
	}
}

// Stop ends the pass: intake closes, queued hits are matched, and the
// summary is scored and persisted. Calling Stop again returns the same
// summary. If persisting fails the summary is still returned along with the
// error, and a later Stop retries the save.
func (s *Session) Stop(ctx context.Context) (models.SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.summary != nil {
		return *s.summary, nil
	}
	if s.aborted {
		return models.SessionSummary{}, ErrSessionStopped
	}
	if s.state == sessionIdle {
		return models.SessionSummary{}, ErrSessionNotStarted
	}
	if err := s.halt(ctx); err != nil {
		return models.SessionSummary{}, err
	}

	notes := s.matcher.Notes()
	hits := s.matcher.Hits()
	summary := scoring.Score(notes, hits, s.startWall, time.Now())
	summary.ID = s.id
	summary.PatternName = s.pattern.Name
	summary.BPM = s.pattern.BPM
	summary.InputMode = s.cfg.Input
	if s.cfg.Input == models.SourceMic {
		summary.Algorithm = s.cfg.Algorithm
	}

	if dropped := s.queue.Dropped() - s.dropBase.Load(); dropped > 0 {
		s.log.Warnf("session %s: %d hits lost to a full queue", s.id, dropped)
	}

	if s.store != nil {
		if _, err := s.store.SaveSession(summary, hits); err != nil {
			s.log.Errorf("session %s: saving summary: %v", s.id, err)
			return summary, fmt.Errorf("saving session: %w", err)
		}
	}

	s.summary = &summary
	s.log.Infof("session %s: stopped, %d/%d matched, %d extra, accuracy %.1f%%",
		s.id, summary.MatchedCount, summary.TotalNotes, summary.ExtraCount, summary.AccuracyPercent)
	return summary, nil
}

// halt closes intake and waits for the matcher goroutine to finish. The
// caller holds mu.
func (s *Session) halt(ctx context.Context) error {
	if s.state != sessionRunning {
		return nil
	}
	s.intake.Store(false)
	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for matcher: %w", ctx.Err())
	}
	// The consumer may have exited early on a cancelled context.
	s.drain(s.hits)
	s.feedOnce.Do(func() { close(s.hits) })
	s.matcher.End()
	s.state = sessionStopped
	if s.onStop != nil {
		s.onStop()
	}
	return nil
}

// abort ends a running pass without scoring or saving it. Stop on an
// aborted pass returns ErrSessionStopped until Restart.
func (s *Session) abort(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary != nil || s.state != sessionRunning {
		return nil
	}
	if err := s.halt(ctx); err != nil {
		return err
	}
	s.aborted = true
	s.log.Infof("session %s: aborted, nothing saved", s.id)
	return nil
}

// Restart loads a new pattern (or the same one again) and resets the
// session for another pass. It fails while the session is running.
func (s *Session) Restart(pattern timeline.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == sessionRunning {
		return ErrSessionRunning
	}
	if err := s.loadTimeline(pattern); err != nil {
		return err
	}
	s.pattern = pattern

	for {
		if _, ok := s.queue.TryPop(); !ok {
			break
		}
	}
	// The detector and decoder belong to the producer goroutine, which may
	// still be inside a call that passed the intake check before Stop. It
	// resets them itself on its next input.
	s.resetInput.Store(true)
	s.matcher.Load(s.tl.Load())
	s.reset()
	return nil
}

// Results returns the final notes and scored hits of a stopped pass.
func (s *Session) Results() ([]models.ExpectedNote, []models.ScoredHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != sessionStopped {
		return nil, nil, errors.New("session results are only available after Stop")
	}
	return s.matcher.Notes(), s.matcher.Hits(), nil
}

func (s *Session) Stats() SessionStats {
	return SessionStats{
		Queued:       s.queue.Len(),
		QueueDropped: s.queue.Dropped() - s.dropBase.Load(),
		FeedDropped:  s.feedDropped.Load(),
		Matched:      s.matched.Load(),
		Scored:       s.scored.Load(),
	}
}
