package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg != *DefaultConfig() {
		t.Errorf("Load = %+v, want defaults", cfg)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"protocol": 757, "dimension": "the_end", "workers": 8}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Protocol != 757 || cfg.Dimension != "the_end" || cfg.Workers != 8 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.MaxChunks != DefaultConfig().MaxChunks {
		t.Errorf("MaxChunks = %d, want default", cfg.MaxChunks)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestMerge(t *testing.T) {
	fromFile := &Config{
		Protocol:        393,
		Dimension:       "the_nether",
		Workers:         2,
		DecodeTimeoutMS: 50,
		MaxChunks:       10,
		CacheEntries:    0,
		CacheDir:        "/tmp/c",
		Capture:         "file.json",
		LogLevel:        "debug",
	}

	tests := []struct {
		name     string
		explicit map[string]bool
		check    func(t *testing.T, cfg *Config)
	}{
		{
			name:     "no_flags",
			explicit: map[string]bool{},
			check: func(t *testing.T, cfg *Config) {
				if *cfg != *fromFile {
					t.Errorf("cfg = %+v, want file values", cfg)
				}
			},
		},
		{
			name:     "flags_win",
			explicit: map[string]bool{"protocol": true, "workers": true, "capture": true},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Protocol != 340 || cfg.Workers != 16 || cfg.Capture != "cli.json" {
					t.Errorf("explicit flags overwritten: %+v", cfg)
				}
				if cfg.Dimension != "the_nether" || cfg.MaxChunks != 10 || cfg.LogLevel != "debug" {
					t.Errorf("file values not applied: %+v", cfg)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Workers = 16
			cfg.Capture = "cli.json"
			Merge(cfg, fromFile, tt.explicit)
			tt.check(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero_workers", func(c *Config) { c.Workers = 0 }},
		{"negative_timeout", func(c *Config) { c.DecodeTimeoutMS = -1 }},
		{"negative_max_chunks", func(c *Config) { c.MaxChunks = -1 }},
		{"negative_cache", func(c *Config) { c.CacheEntries = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDerivedValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DecodeTimeout() != 2*time.Second {
		t.Errorf("DecodeTimeout = %v", cfg.DecodeTimeout())
	}
	cfg.LogLevel = "warn"
	if cfg.Level() != slog.LevelWarn {
		t.Errorf("Level = %v, want warn", cfg.Level())
	}
	cfg.LogLevel = "loud"
	if cfg.Level() != slog.LevelInfo {
		t.Errorf("Level = %v, want info fallback", cfg.Level())
	}
}
