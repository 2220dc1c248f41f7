package rhythmdna

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/himanishpuri/RhythmDNA/pkg/logger"
	"github.com/himanishpuri/RhythmDNA/pkg/models"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/audio"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/timeline"
)

// rhythmService is the default implementation of the Service interface.
type rhythmService struct {
	storage Storage
	log     Logger
	config  *Config
	active  atomic.Int64
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, cfg.SampleRate)
	}

	// Set default logger if none provided
	if cfg.Logger == nil {
		cfg.Logger = logger.Named("rhythmdna")
	}

	var stor Storage
	var err error
	if cfg.Storage != nil {
		stor = cfg.Storage
	} else {
		stor, err = NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	return &rhythmService{
		storage: stor,
		log:     cfg.Logger,
		config:  cfg,
	}, nil
}

// NewSession builds the timeline for pattern and prepares a session that
// persists its summary through the service's storage when stopped.
func (s *rhythmService) NewSession(pattern timeline.Pattern, cfg SessionConfig) (*Session, error) {
	cfg = cfg.withDefaults(s.config.SampleRate)
	sess, err := newSession(pattern, cfg, s.storage, s.log)
	if err != nil {
		return nil, err
	}
	sess.onStart = func() { s.active.Add(1) }
	sess.onStop = func() { s.active.Add(-1) }
	return sess, nil
}

// ReplayFile scores a recorded take as if it were played live into the
// microphone, with the first expected note at the start of the recording.
func (s *rhythmService) ReplayFile(ctx context.Context, audioPath string, pattern timeline.Pattern, cfg SessionConfig) (models.SessionSummary, error) {
	s.log.Infof("Replaying %s against %q", audioPath, pattern.Name)

	wavPath := audioPath
	if !audio.IsWAV(audioPath) {
		converted, err := audio.ConvertToMonoWAV(ctx, audioPath, s.config.TempDir, audio.ConvertWAVConfig{
			SampleRate: s.config.SampleRate,
		})
		if err != nil {
			return models.SessionSummary{}, fmt.Errorf("audio conversion failed: %w", err)
		}
		defer os.Remove(converted)
		wavPath = converted
	}

	reader, err := audio.OpenWAV(wavPath)
	if err != nil {
		return models.SessionSummary{}, err
	}
	defer reader.Close()

	cfg.Input = models.SourceMic
	cfg.SampleRate = reader.SampleRate()
	// Size the queue for every hit the recording could hold, since replay
	// runs faster than real time.
	if limit := maxHits(reader.Duration(), cfg.MinIntervalMs); limit > cfg.QueueSize {
		cfg.QueueSize = limit
	}

	sess, err := s.NewSession(pattern, cfg)
	if err != nil {
		return models.SessionSummary{}, err
	}
	if err := sess.Start(ctx, 0); err != nil {
		return models.SessionSummary{}, err
	}

	samples, err := audio.Replay(ctx, reader, sess, sess.Config().FrameSize)
	if err != nil {
		// A partial take is not a result; release the matcher without saving.
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if abortErr := sess.abort(stopCtx); abortErr != nil {
			s.log.Warnf("Replay of %s: %v", audioPath, abortErr)
		}
		return models.SessionSummary{}, err
	}
	s.log.Debugf("Replayed %d samples at %d Hz", samples, reader.SampleRate())

	return sess.Stop(ctx)
}

func maxHits(d time.Duration, minIntervalMs float64) int {
	if minIntervalMs < 1 {
		minIntervalMs = 1
	}
	return int(float64(d.Milliseconds())/minIntervalMs) + 1
}

func (s *rhythmService) SaveSession(summary models.SessionSummary, hits []models.ScoredHit) (string, error) {
	return s.storage.SaveSession(summary, hits)
}

func (s *rhythmService) ListSessions() ([]models.SessionSummary, error) {
	return s.storage.ListSessions()
}

func (s *rhythmService) GetSession(id string) (models.SessionSummary, error) {
	return s.storage.GetSession(id)
}

func (s *rhythmService) GetSessionHits(id string) ([]models.ScoredHit, error) {
	if _, err := s.storage.GetSession(id); err != nil {
		return nil, err
	}
	return s.storage.GetHits(id)
}

// DeleteSession removes a session and all its hits.
func (s *rhythmService) DeleteSession(id string) error {
	return s.storage.DeleteSession(id)
}

func (s *rhythmService) Stats() (ServiceStats, error) {
	n, err := s.storage.CountSessions()
	if err != nil {
		return ServiceStats{}, err
	}
	return ServiceStats{
		StoredSessions: n,
		ActiveSessions: s.active.Load(),
		SampleRate:     s.config.SampleRate,
	}, nil
}

// Close releases all resources held by the service.
func (s *rhythmService) Close() error {
	return s.storage.Close()
}
