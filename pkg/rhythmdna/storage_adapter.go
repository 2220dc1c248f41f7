package rhythmdna

import (
	"github.com/himanishpuri/RhythmDNA/pkg/models"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/storage"
)

// storageAdapter adapts the storage.DBClient to implement the Storage interface.
type storageAdapter struct {
	db *storage.DBClient
}

// NewSQLiteStorage creates a new SQLite storage backend.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		return nil, err
	}
	return &storageAdapter{db: db}, nil
}

func (s *storageAdapter) SaveSession(summary models.SessionSummary, hits []models.ScoredHit) (string, error) {
	return s.db.SaveSession(summary, hits)
}

func (s *storageAdapter) GetSession(id string) (models.SessionSummary, error) {
	return s.db.GetSession(id)
}

func (s *storageAdapter) ListSessions() ([]models.SessionSummary, error) {
	return s.db.ListSessions()
}

func (s *storageAdapter) GetHits(sessionID string) ([]models.ScoredHit, error) {
	return s.db.GetHits(sessionID)
}

func (s *storageAdapter) DeleteSession(id string) error {
	return s.db.DeleteSession(id)
}

func (s *storageAdapter) CountSessions() (int64, error) {
	return s.db.CountSessions()
}

func (s *storageAdapter) Close() error {
	return s.db.Close()
}
