package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"kuanb/gosm-matcher/hmm"
	"kuanb/gosm-matcher/osm"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// maxFileSize caps configuration files at 1MB
const maxFileSize = 1 * 1024 * 1024

// Config holds the matcher parameters. The JSON schema is the one accepted by
// LoadConfig; omitted keys keep their Default values.
type Config struct {
	// Emission kernel
	Sigma float64 `json:"sigma"` // GPS measurement noise (meters)
	My    float64 `json:"my"`    // mean offset of the emission distribution (meters)

	// Candidate search
	MaxDistance   float64 `json:"max_distance"`   // search radius (meters)
	MaxCandidates int     `json:"max_candidates"` // nearest edges kept per observation, 0 keeps all

	// Transition kernel
	Beta                 float64 `json:"beta"` // detour scale (meters)
	NormalizeTransitions bool    `json:"normalize_transitions"`

	// Execution
	Workers        int `json:"workers"`
	RouteCacheSize int `json:"route_cache_size"`

	// Network
	Highways []string `json:"highways,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Sigma:          4.07, // typical GPS noise
		My:             0,
		MaxDistance:    35.0, // max 35m from GPS point
		MaxCandidates:  0,
		Beta:           3.0,
		Workers:        1,
		RouteCacheSize: 256,
		Highways:       append([]string(nil), osm.DefaultHighways...),
	}
}

// LoadConfig reads a JSON configuration file on top of Default.
// The file must have a .json extension and stay under 1MB.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges of all parameters.
func (c *Config) Validate() error {
	if !(c.Sigma > 0) {
		return fmt.Errorf("%w: sigma must be positive, got %v", ErrInvalid, c.Sigma)
	}
	if !(c.MaxDistance > 0) {
		return fmt.Errorf("%w: max_distance must be positive, got %v", ErrInvalid, c.MaxDistance)
	}
	if c.MaxCandidates < 0 {
		return fmt.Errorf("%w: max_candidates must be non-negative, got %d", ErrInvalid, c.MaxCandidates)
	}
	if !(c.Beta > 0) {
		return fmt.Errorf("%w: beta must be positive, got %v", ErrInvalid, c.Beta)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalid, c.Workers)
	}
	if c.RouteCacheSize < 0 {
		return fmt.Errorf("%w: route_cache_size must be non-negative, got %d", ErrInvalid, c.RouteCacheSize)
	}
	return nil
}

// Params returns the run parameters handed to the matcher.
func (c *Config) Params() hmm.Params {
	return hmm.Params{Sigma: c.Sigma, My: c.My, MaxDistance: c.MaxDistance}
}
