// Package config loads the YAML settings file shared by the soundmatch
// commands.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/himanishpuri/soundmatch/pkg/models"
)

// PathEnv names the settings file when no --config flag is given.
const PathEnv = "SOUNDMATCH_CONFIG"

// File is the optional YAML configuration. Missing sections and keys keep
// their defaults.
//
//	log_level: debug
//	fingerprint:
//	  hash_tables: 25
//	  hash_keys_per_table: 4
//	query:
//	  threshold_votes: 4
//	  max_wait: 10
type File struct {
	LogLevel    string                          `yaml:"log_level"`
	Fingerprint models.FingerprintConfiguration `yaml:"fingerprint"`
	Query       models.QueryConfiguration       `yaml:"query"`
}

func Default() File {
	return File{
		Fingerprint: models.DefaultFingerprintConfiguration(),
		Query:       models.DefaultQueryConfiguration(),
	}
}

// Load reads path, or returns the defaults when path is empty.
func Load(path string) (File, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Fingerprint.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: fingerprint: %w", path, err)
	}
	if err := cfg.Query.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: query: %w", path, err)
	}
	return cfg, nil
}

func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
