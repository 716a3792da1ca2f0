package soundmatch

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/himanishpuri/soundmatch/pkg/models"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch/query"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch/storage"
)

type Config struct {
	DBPath      string
	Fingerprint models.FingerprintConfiguration
	Query       models.QueryConfiguration
	Logger      Logger
	Storage     Storage
	Registerer  prometheus.Registerer
	Coverage    query.CoverageCalculator
	Confidence  query.ConfidenceCalculator
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithFingerprintConfig(cfg models.FingerprintConfiguration) Option {
	return func(c *Config) {
		c.Fingerprint = cfg
	}
}

func WithQueryConfig(cfg models.QueryConfiguration) Option {
	return func(c *Config) {
		c.Query = cfg
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithStorage replaces the SQLite database opened from DBPath.
func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

// WithRegisterer registers the service metrics with reg instead of a
// private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registerer = reg
	}
}

func WithCoverageCalculator(calc query.CoverageCalculator) Option {
	return func(c *Config) {
		c.Coverage = calc
	}
}

func WithConfidenceCalculator(calc query.ConfidenceCalculator) Option {
	return func(c *Config) {
		c.Confidence = calc
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:      storage.DefaultDBFile,
		Fingerprint: models.DefaultFingerprintConfiguration(),
		Query:       models.DefaultQueryConfiguration(),
	}
}
