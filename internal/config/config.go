package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/HyphaGroup/parker/internal/checkpoint"
	"github.com/HyphaGroup/parker/internal/search"
)

// ConfigFileName is the configuration file looked up by FindConfigPath
const ConfigFileName = "parker.jsonc"

// Search modes
const (
	ModeSession = "session" // producer + session facade, pause/resume and backpressure
	ModeShared  = "shared"  // workers share one generator behind a lock
)

// ErrConfigNotFound is returned when no parker.jsonc exists in any candidate location
var ErrConfigNotFound = errors.New("parker.jsonc not found")

// Config is the parker.jsonc file format
type Config struct {
	Search     SearchSection     `json:"search"`
	Checkpoint CheckpointSection `json:"checkpoint"`
	Server     ServerSection     `json:"server"`
	Log        LogSection        `json:"log"`
	DataDir    string            `json:"data_dir"`

	// Directory the file was loaded from; empty for built-in defaults
	ConfigDir string `json:"-"`
}

// SearchSection configures the enumeration and the checker
type SearchSection struct {
	Ceiling        uint64  `json:"ceiling"`         // exclusive upper bound on x
	BufferCapacity int     `json:"buffer_capacity"` // max triples held by the producer
	BatchSize      int     `json:"batch_size"`
	Workers        int     `json:"workers"`
	Mode           string  `json:"mode"`
	PollEvery      int     `json:"poll_every"`
	RetryPerSecond float64 `json:"retry_per_second"`
}

// CheckpointSection configures periodic progress saves
type CheckpointSection struct {
	Cron string `json:"cron"`
}

// ServerSection configures the control surface
type ServerSection struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// LogSection configures logging
type LogSection struct {
	JSON  bool   `json:"json"`
	Level string `json:"level"` // debug, info, warn, error
	Dir   string `json:"dir"`
}

// SlogLevel returns the configured minimum level, defaulting to info
func (l LogSection) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// FindConfigPath returns the path to parker.jsonc using precedence:
// 1. configDir + /parker.jsonc (if configDir specified)
// 2. ./config/parker.jsonc (project-local)
// 3. ~/.parker/config/parker.jsonc (user global)
func FindConfigPath(configDir string) (string, error) {
	if configDir != "" {
		path := filepath.Join(configDir, ConfigFileName)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w in %s", ErrConfigNotFound, configDir)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return path, nil
		}
		return abs, nil
	}

	candidates := []string{
		filepath.Join("config", ConfigFileName),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".parker", "config", ConfigFileName))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("%w; tried: %v", ErrConfigNotFound, candidates)
}

// Load finds and loads parker.jsonc. A missing file in the default locations
// yields the built-in defaults; a missing file in an explicit configDir is an error.
func Load(configDir string) (*Config, error) {
	path, err := FindConfigPath(configDir)
	if err != nil {
		if configDir == "" && errors.Is(err, ErrConfigNotFound) {
			return Default(), nil
		}
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a single parker.jsonc file
func LoadFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}

	var cfg Config
	if err := json.Unmarshal(StripJSONComments(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configPath, err)
	}
	cfg.ConfigDir = filepath.Dir(configPath)

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Search.Ceiling == 0 {
		cfg.Search.Ceiling = 100_000_000
	}
	if cfg.Search.BufferCapacity == 0 {
		cfg.Search.BufferCapacity = 4096
	}
	if cfg.Search.BatchSize == 0 {
		cfg.Search.BatchSize = 1024
		if cfg.Search.BatchSize > cfg.Search.BufferCapacity {
			cfg.Search.BatchSize = cfg.Search.BufferCapacity
		}
	}
	if cfg.Search.Workers == 0 {
		cfg.Search.Workers = runtime.NumCPU()
	}
	if cfg.Search.Mode == "" {
		cfg.Search.Mode = ModeSession
	}
	if cfg.Search.PollEvery == 0 {
		cfg.Search.PollEvery = 4096
	}
	if cfg.Search.RetryPerSecond == 0 {
		cfg.Search.RetryPerSecond = 20
	}

	if cfg.Checkpoint.Cron == "" {
		cfg.Checkpoint.Cron = "@every 1m"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8090"
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Dir == "" {
		cfg.Log.Dir = filepath.Join(cfg.DataDir, "logs")
	}
}

// Validate checks that the configuration describes a runnable search
func (c *Config) Validate() error {
	s := c.Search
	if s.Ceiling > search.MaxCeiling {
		return fmt.Errorf("search.ceiling %d exceeds maximum %d", s.Ceiling, uint64(search.MaxCeiling))
	}
	if s.BufferCapacity <= 0 {
		return fmt.Errorf("search.buffer_capacity must be positive, got %d", s.BufferCapacity)
	}
	if s.BatchSize <= 0 || s.BatchSize > s.BufferCapacity {
		return fmt.Errorf("search.batch_size must be between 1 and buffer_capacity (%d), got %d", s.BufferCapacity, s.BatchSize)
	}
	if s.Workers <= 0 {
		return fmt.Errorf("search.workers must be positive, got %d", s.Workers)
	}
	if s.Mode != ModeSession && s.Mode != ModeShared {
		return fmt.Errorf("search.mode must be %q or %q, got %q", ModeSession, ModeShared, s.Mode)
	}
	if s.PollEvery <= 0 {
		return fmt.Errorf("search.poll_every must be positive, got %d", s.PollEvery)
	}
	if s.RetryPerSecond <= 0 {
		return fmt.Errorf("search.retry_per_second must be positive, got %v", s.RetryPerSecond)
	}
	if err := checkpoint.ValidateSpec(c.Checkpoint.Cron); err != nil {
		return fmt.Errorf("checkpoint.cron: %w", err)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}
