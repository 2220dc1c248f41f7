package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/RhythmDNA/pkg/models"
)

const DefaultDBFile = "rhythmdna.sqlite3"
const errDBClientNil = "db client is nil"

// ErrSessionNotFound is returned when no session has the requested ID.
var ErrSessionNotFound = errors.New("session not found")

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// PracticeSession is one persisted session summary.
type PracticeSession struct {
	ID                     string `gorm:"primaryKey;type:varchar(36)"`
	PatternName            string `gorm:"index:idx_pattern"`
	BPM                    float64
	InputMode              string
	Algorithm              string
	StartTime              time.Time `gorm:"index:idx_start"`
	EndTime                time.Time
	DurationSeconds        float64
	TotalNotes             int
	MatchedCount           int
	MissedCount            int
	ExtraCount             int
	AccuracyPercent        float64
	TimingAverageMs        float64
	PerfectCount           int
	EarlyCount             int
	LateCount              int
	DynamicAccuracyPercent *float64
	CreatedAt              time.Time
}

// Hit is one scored hit of a session, kept in arrival order by Position.
type Hit struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	SessionID       string `gorm:"type:varchar(36);index:idx_session_pos,priority:1"`
	Position        int    `gorm:"index:idx_session_pos,priority:2"`
	TimeMs          float64
	ExpectedTimeMs  float64
	SequenceIndex   int
	TimingError     float64
	RawTimingError  float64
	Matched         bool
	Perfect         bool
	Dynamic         string
	ExpectedDynamic string
	HasDynamicData  bool
	DynamicMatch    bool
	IsExtraHit      bool
	Voice           string
	Source          string
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("RHYTHM_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=foreign_keys(1)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&PracticeSession{}, &Hit{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// SaveSession writes a summary and its hits in one transaction and returns
// the session ID, generating one when the summary has none. Saving an
// existing ID replaces its hits.
func (c *DBClient) SaveSession(summary models.SessionSummary, hits []models.ScoredHit) (string, error) {
	if c == nil || c.DB == nil {
		return "", errors.New(errDBClientNil)
	}
	if summary.ID == "" {
		summary.ID = uuid.NewString()
	} else if _, err := uuid.Parse(summary.ID); err != nil {
		return "", fmt.Errorf("invalid session id %q: %w", summary.ID, err)
	}

	row := toRow(summary)
	entries := make([]Hit, 0, len(hits))
	for i, h := range hits {
		entries = append(entries, toHitRow(summary.ID, i, h))
	}

	err := c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
		if err := tx.Where("session_id = ?", summary.ID).Delete(&Hit{}).Error; err != nil {
			return fmt.Errorf("clearing hits: %w", err)
		}
		if len(entries) > 0 {
			if err := tx.CreateInBatches(entries, 500).Error; err != nil {
				return fmt.Errorf("batch insert hits: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return summary.ID, nil
}

func (c *DBClient) GetSession(id string) (models.SessionSummary, error) {
	if c == nil || c.DB == nil {
		return models.SessionSummary{}, errors.New(errDBClientNil)
	}
	var row PracticeSession
	if err := c.DB.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.SessionSummary{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return models.SessionSummary{}, fmt.Errorf("querying session: %w", err)
	}
	return fromRow(row), nil
}

// ListSessions returns every summary, newest first.
func (c *DBClient) ListSessions() ([]models.SessionSummary, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []PracticeSession
	if err := c.DB.Order("start_time DESC").Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	out := make([]models.SessionSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}

// GetHits returns the hits of a session in arrival order.
func (c *DBClient) GetHits(sessionID string) ([]models.ScoredHit, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []Hit
	if err := c.DB.Where("session_id = ?", sessionID).Order("position").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying hits: %w", err)
	}
	out := make([]models.ScoredHit, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromHitRow(r))
	}
	return out, nil
}

func (c *DBClient) DeleteSession(id string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&Hit{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&PracticeSession{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil
	})
}

func (c *DBClient) CountSessions() (int64, error) {
	if c == nil || c.DB == nil {
		return 0, errors.New(errDBClientNil)
	}
	var n int64
	if err := c.DB.Model(&PracticeSession{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}

func toRow(s models.SessionSummary) PracticeSession {
	return PracticeSession{
		ID:                     s.ID,
		PatternName:            s.PatternName,
		BPM:                    s.BPM,
		InputMode:              string(s.InputMode),
		Algorithm:              s.Algorithm,
		StartTime:              s.StartTime,
		EndTime:                s.EndTime,
		DurationSeconds:        s.DurationSeconds,
		TotalNotes:             s.TotalNotes,
		MatchedCount:           s.MatchedCount,
		MissedCount:            s.MissedCount,
		ExtraCount:             s.ExtraCount,
		AccuracyPercent:        s.AccuracyPercent,
		TimingAverageMs:        s.TimingAverageMs,
		PerfectCount:           s.PerfectCount,
		EarlyCount:             s.EarlyCount,
		LateCount:              s.LateCount,
		DynamicAccuracyPercent: s.DynamicAccuracyPercent,
	}
}

func fromRow(r PracticeSession) models.SessionSummary {
	return models.SessionSummary{
		ID:                     r.ID,
		PatternName:            r.PatternName,
		BPM:                    r.BPM,
		InputMode:              models.Source(r.InputMode),
		Algorithm:              r.Algorithm,
		StartTime:              r.StartTime,
		EndTime:                r.EndTime,
		DurationSeconds:        r.DurationSeconds,
		TotalNotes:             r.TotalNotes,
		MatchedCount:           r.MatchedCount,
		MissedCount:            r.MissedCount,
		ExtraCount:             r.ExtraCount,
		AccuracyPercent:        r.AccuracyPercent,
		TimingAverageMs:        r.TimingAverageMs,
		PerfectCount:           r.PerfectCount,
		EarlyCount:             r.EarlyCount,
		LateCount:              r.LateCount,
		DynamicAccuracyPercent: r.DynamicAccuracyPercent,
	}
}

func toHitRow(sessionID string, pos int, h models.ScoredHit) Hit {
	return Hit{
		SessionID:       sessionID,
		Position:        pos,
		TimeMs:          h.TimeMs,
		ExpectedTimeMs:  h.ExpectedTimeMs,
		SequenceIndex:   h.SequenceIndex,
		TimingError:     h.TimingError,
		RawTimingError:  h.RawTimingError,
		Matched:         h.Matched,
		Perfect:         h.Perfect,
		Dynamic:         string(h.Dynamic),
		ExpectedDynamic: string(h.ExpectedDynamic),
		HasDynamicData:  h.HasDynamicData,
		DynamicMatch:    h.DynamicMatch,
		IsExtraHit:      h.IsExtraHit,
		Voice:           string(h.Voice),
		Source:          string(h.Source),
	}
}

func fromHitRow(r Hit) models.ScoredHit {
	return models.ScoredHit{
		TimeMs:          r.TimeMs,
		ExpectedTimeMs:  r.ExpectedTimeMs,
		SequenceIndex:   r.SequenceIndex,
		TimingError:     r.TimingError,
		RawTimingError:  r.RawTimingError,
		Matched:         r.Matched,
		Perfect:         r.Perfect,
		Dynamic:         models.Dynamic(r.Dynamic),
		ExpectedDynamic: models.Dynamic(r.ExpectedDynamic),
		HasDynamicData:  r.HasDynamicData,
		DynamicMatch:    r.DynamicMatch,
		IsExtraHit:      r.IsExtraHit,
		Voice:           models.Voice(r.Voice),
		Source:          models.Source(r.Source),
	}
}
