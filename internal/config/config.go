// Package config loads the JSON run configuration of the intersection
// simulator. Fields omitted from the file fall back to the defaults returned
// by the Get* accessors.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is where the CLI looks for a run configuration when no
// -config flag is given.
const DefaultConfigPath = "configs/sim.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Clock modes accepted by the mode field.
const (
	ModeRealTime    = "realtime"
	ModeAccelerated = "accelerated"
)

// RunConfig is the root of the run configuration file.
type RunConfig struct {
	CatalogPath      *string  `json:"catalog_path,omitempty"`
	Tick             *string  `json:"tick,omitempty"`     // duration string like "100ms"
	Duration         *string  `json:"duration,omitempty"` // simulated run length, "0s" runs until interrupted
	Mode             *string  `json:"mode,omitempty"`
	SpawnProbability *float64 `json:"spawn_probability,omitempty"`
	MaxAgents        *int     `json:"max_agents,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`

	// NumSubsegments, when set, must match the catalog's value.
	NumSubsegments *int `json:"num_subsegments,omitempty"`
}

func ptrString(v string) *string { return &v }

// Load reads a RunConfig from a JSON file. The path must have a .json
// extension and the file must be under 1MB.
func Load(path string) (*RunConfig, error) {
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

	cfg := &RunConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Relative catalog paths are resolved against the config file.
	if cfg.CatalogPath != nil && *cfg.CatalogPath != "" && !filepath.IsAbs(*cfg.CatalogPath) {
		cfg.CatalogPath = ptrString(filepath.Join(filepath.Dir(cleanPath), *cfg.CatalogPath))
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *RunConfig) Validate() error {
	if c.Tick != nil && *c.Tick != "" {
		d, err := time.ParseDuration(*c.Tick)
		if err != nil {
			return fmt.Errorf("invalid tick '%s': %w", *c.Tick, err)
		}
		if d <= 0 {
			return fmt.Errorf("tick must be positive, got %s", d)
		}
	}
	if c.Duration != nil && *c.Duration != "" {
		d, err := time.ParseDuration(*c.Duration)
		if err != nil {
			return fmt.Errorf("invalid duration '%s': %w", *c.Duration, err)
		}
		if d < 0 {
			return fmt.Errorf("duration must be non-negative, got %s", d)
		}
	}
	if c.Mode != nil {
		switch *c.Mode {
		case ModeRealTime, ModeAccelerated:
		default:
			return fmt.Errorf("mode must be %q or %q, got %q", ModeRealTime, ModeAccelerated, *c.Mode)
		}
	}
	if c.SpawnProbability != nil {
		if *c.SpawnProbability < 0 || *c.SpawnProbability > 1 {
			return fmt.Errorf("spawn_probability must be between 0 and 1, got %f", *c.SpawnProbability)
		}
	}
	if c.MaxAgents != nil && *c.MaxAgents < 0 {
		return fmt.Errorf("max_agents must be non-negative, got %d", *c.MaxAgents)
	}
	if c.NumSubsegments != nil && *c.NumSubsegments <= 0 {
		return fmt.Errorf("num_subsegments must be positive, got %d", *c.NumSubsegments)
	}
	return nil
}

// CheckCatalog reports a mismatch between the configured sub-segment count
// and the one the catalog's conflict table was built for.
func (c *RunConfig) CheckCatalog(numSubsegments int) error {
	if c.NumSubsegments != nil && *c.NumSubsegments != numSubsegments {
		return fmt.Errorf("config expects %d sub-segments, catalog has %d", *c.NumSubsegments, numSubsegments)
	}
	return nil
}

// GetCatalogPath returns the catalog path or the example catalog.
func (c *RunConfig) GetCatalogPath() string {
	if c.CatalogPath == nil || *c.CatalogPath == "" {
		return "configs/catalog.example.json"
	}
	return *c.CatalogPath
}

// GetTick parses and returns the tick as a time.Duration.
func (c *RunConfig) GetTick() time.Duration {
	if c.Tick == nil || *c.Tick == "" {
		return 100 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.Tick)
	if err != nil || d <= 0 {
		return 100 * time.Millisecond
	}
	return d
}

// GetDuration returns the simulated run length; zero means unbounded.
func (c *RunConfig) GetDuration() time.Duration {
	if c.Duration == nil || *c.Duration == "" {
		return 60 * time.Second
	}
	d, err := time.ParseDuration(*c.Duration)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

func (c *RunConfig) GetMode() string {
	if c.Mode == nil {
		return ModeAccelerated
	}
	return *c.Mode
}

// GetSpawnProbability returns the per-tick probability of spawning an agent.
func (c *RunConfig) GetSpawnProbability() float64 {
	if c.SpawnProbability == nil {
		return 0.2
	}
	return *c.SpawnProbability
}

// GetMaxAgents returns the cap on agents alive at once; zero means no cap.
func (c *RunConfig) GetMaxAgents() int {
	if c.MaxAgents == nil {
		return 50
	}
	return *c.MaxAgents
}

func (c *RunConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}
