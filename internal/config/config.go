package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Config holds the chunk tool configuration.
type Config struct {
	Protocol  int32  `json:"protocol"`
	Dimension string `json:"dimension"` // "overworld", "the_nether" or "the_end"

	Workers         int `json:"workers"`           // decode workers
	DecodeTimeoutMS int `json:"decode_timeout_ms"` // per chunk update, 0 = no timeout
	MaxChunks       int `json:"max_chunks"`        // index limit (0 = unbounded)
	CacheEntries    int `json:"cache_entries"`     // decoded payload cache (0 = disabled)

	CacheDir string `json:"cache_dir"` // where fetched captures are stored
	Capture  string `json:"capture"`   // capture file path or go-getter source
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Protocol:        340,
		Dimension:       "overworld",
		Workers:         4,
		DecodeTimeoutMS: 2000,
		MaxChunks:       4096,
		CacheEntries:    256,
		CacheDir:        "./captures",
		LogLevel:        "info",
	}
}

// DecodeTimeout returns the per-update decode timeout.
func (c *Config) DecodeTimeout() time.Duration {
	return time.Duration(c.DecodeTimeoutMS) * time.Millisecond
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Validate reports settings the tool cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	case c.DecodeTimeoutMS < 0:
		return fmt.Errorf("decode timeout must not be negative, got %d", c.DecodeTimeoutMS)
	case c.MaxChunks < 0:
		return fmt.Errorf("max chunks must not be negative, got %d", c.MaxChunks)
	case c.CacheEntries < 0:
		return fmt.Errorf("cache entries must not be negative, got %d", c.CacheEntries)
	}
	return nil
}

// Load reads a JSON config file on top of the defaults. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Merge applies file-loaded config values into cfg, but only for fields
// that were NOT explicitly set via CLI flags. explicitFlags contains the
// flag names that were explicitly provided on the command line.
func Merge(cfg *Config, fromFile *Config, explicitFlags map[string]bool) {
	if !explicitFlags["protocol"] {
		cfg.Protocol = fromFile.Protocol
	}
	if !explicitFlags["dimension"] {
		cfg.Dimension = fromFile.Dimension
	}
	if !explicitFlags["workers"] {
		cfg.Workers = fromFile.Workers
	}
	if !explicitFlags["decode-timeout-ms"] {
		cfg.DecodeTimeoutMS = fromFile.DecodeTimeoutMS
	}
	if !explicitFlags["max-chunks"] {
		cfg.MaxChunks = fromFile.MaxChunks
	}
	if !explicitFlags["cache-entries"] {
		cfg.CacheEntries = fromFile.CacheEntries
	}
	if !explicitFlags["cache-dir"] {
		cfg.CacheDir = fromFile.CacheDir
	}
	if !explicitFlags["capture"] {
		cfg.Capture = fromFile.Capture
	}
	if !explicitFlags["log-level"] {
		cfg.LogLevel = fromFile.LogLevel
	}
}
