package rhythmdna

import (
	"os"

	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/audio"
)

const DefaultDBFile = "rhythmdna.sqlite3"

type Config struct {
	DBPath     string
	TempDir    string
	SampleRate int
	Logger     Logger
	Storage    Storage
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

// WithTempDir sets where converted recordings are written before replay.
func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

// WithSampleRate sets the default rate for sessions and conversions.
func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:     DefaultDBFile,
		TempDir:    os.TempDir(),
		SampleRate: audio.DefaultSampleRate,
		Logger:     nil,
	}
}
