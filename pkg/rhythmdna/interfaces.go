package rhythmdna

import (
	"context"

	"github.com/himanishpuri/RhythmDNA/pkg/models"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/timeline"
)

type Service interface {
	NewSession(pattern timeline.Pattern, cfg SessionConfig) (*Session, error)
	ReplayFile(ctx context.Context, audioPath string, pattern timeline.Pattern, cfg SessionConfig) (models.SessionSummary, error)
	SaveSession(summary models.SessionSummary, hits []models.ScoredHit) (string, error)
	ListSessions() ([]models.SessionSummary, error)
	GetSession(id string) (models.SessionSummary, error)
	GetSessionHits(id string) ([]models.ScoredHit, error)
	DeleteSession(id string) error
	Stats() (ServiceStats, error)
	Close() error
}

type Storage interface {
	SaveSession(summary models.SessionSummary, hits []models.ScoredHit) (string, error)
	GetSession(id string) (models.SessionSummary, error)
	ListSessions() ([]models.SessionSummary, error)
	GetHits(sessionID string) ([]models.ScoredHit, error)
	DeleteSession(id string) error
	CountSessions() (int64, error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
