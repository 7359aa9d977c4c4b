// Package config loads the shiksha YAML configuration.
//
// Every field has a default, so an empty or missing file is a valid
// configuration. Unknown keys are rejected to catch typos.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/shiksha/internal/cache"
	"github.com/roach88/shiksha/internal/engine"
	"github.com/roach88/shiksha/internal/remote"
)

// Config is the on-disk configuration.
type Config struct {
	// Database is the SQLite file path. ":memory:" keeps everything in memory.
	Database string `yaml:"database"`

	// TimeZone is the IANA zone whose calendar days define streaks.
	TimeZone string `yaml:"time_zone"`

	// Rules is an optional CUE file replacing the built-in unlock and
	// achievement rules. Relative paths resolve against the config file.
	Rules string `yaml:"rules,omitempty"`

	Sync   Sync   `yaml:"sync"`
	Remote Remote `yaml:"remote"`
	Cache  Cache  `yaml:"cache"`
}

// Sync configures the scheduler.
type Sync struct {
	Interval     Duration `yaml:"interval"`
	GraceTimeout Duration `yaml:"grace_timeout"`
	Retention    Duration `yaml:"retention"`

	// SessionRetention is how long game sessions are kept. 0 = forever.
	SessionRetention Duration `yaml:"session_retention"`

	// MaxAttempts makes items permanent after this many failures. 0 = never.
	MaxAttempts int `yaml:"max_attempts"`
	BatchSize   int `yaml:"batch_size"`
}

// Remote configures the HTTP adapter and the reachability probe.
type Remote struct {
	// BaseURL empty means the device never syncs.
	BaseURL string   `yaml:"base_url"`
	Token   string   `yaml:"token,omitempty"`
	Timeout Duration `yaml:"timeout"`

	// ProbeURL defaults to BaseURL.
	ProbeURL      string   `yaml:"probe_url,omitempty"`
	ProbeInterval Duration `yaml:"probe_interval"`
}

// Cache configures the asset and curriculum cache.
type Cache struct {
	MaxBytes         int64    `yaml:"max_bytes"`
	EvictRatio       float64  `yaml:"evict_ratio"`
	PrioritySubjects []string `yaml:"priority_subjects"`
	Concurrency      int      `yaml:"concurrency"`
}

// Duration is a time.Duration written as "30s", "2m", "24h" in YAML.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: "shiksha.db",
		TimeZone: "UTC",
		Sync: Sync{
			Interval:         Duration(engine.DefaultSyncInterval),
			GraceTimeout:     Duration(engine.DefaultGraceTimeout),
			Retention:        Duration(engine.DefaultRetention),
			SessionRetention: Duration(engine.DefaultSessionRetention),
			BatchSize:        engine.DefaultBatchSize,
		},
		Remote: Remote{
			Timeout:       Duration(remote.DefaultTimeout),
			ProbeInterval: Duration(15 * time.Second),
		},
		Cache: Cache{
			MaxBytes:         cache.DefaultMaxBytes,
			EvictRatio:       cache.DefaultEvictRatio,
			PrioritySubjects: []string{},
			Concurrency:      cache.DefaultConcurrency,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := decode(data, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Rules != "" && !filepath.IsAbs(cfg.Rules) {
		cfg.Rules = filepath.Join(filepath.Dir(path), cfg.Rules)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse reads YAML over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decode(data, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// Validate checks ranges and that the time zone exists.
func (c Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("time_zone: %w", err))
	}
	if c.Sync.Interval.Std() < time.Second {
		errs = append(errs, errors.New("sync.interval must be at least 1s"))
	}
	if c.Sync.GraceTimeout.Std() <= 0 {
		errs = append(errs, errors.New("sync.grace_timeout must be positive"))
	}
	if c.Sync.Retention.Std() < 0 {
		errs = append(errs, errors.New("sync.retention must not be negative"))
	}
	if c.Sync.SessionRetention.Std() < 0 {
		errs = append(errs, errors.New("sync.session_retention must not be negative"))
	}
	if c.Sync.MaxAttempts < 0 {
		errs = append(errs, errors.New("sync.max_attempts must not be negative"))
	}
	if c.Sync.BatchSize <= 0 {
		errs = append(errs, errors.New("sync.batch_size must be positive"))
	}
	if c.Remote.Timeout.Std() <= 0 {
		errs = append(errs, errors.New("remote.timeout must be positive"))
	}
	if c.Cache.MaxBytes <= 0 {
		errs = append(errs, errors.New("cache.max_bytes must be positive"))
	}
	if c.Cache.EvictRatio <= 0 || c.Cache.EvictRatio > 1 {
		errs = append(errs, errors.New("cache.evict_ratio must be in (0, 1]"))
	}
	if c.Cache.Concurrency <= 0 {
		errs = append(errs, errors.New("cache.concurrency must be positive"))
	}
	return errors.Join(errs...)
}

// Location returns the configured time zone. Call Validate first.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// EngineOptions translates the configuration into engine options.
func (c Config) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithLocation(c.Location()),
		engine.WithSyncInterval(c.Sync.Interval.Std()),
		engine.WithGraceTimeout(c.Sync.GraceTimeout.Std()),
		engine.WithRetention(c.Sync.Retention.Std()),
		engine.WithSessionRetention(c.Sync.SessionRetention.Std()),
		engine.WithMaxAttempts(c.Sync.MaxAttempts),
		engine.WithBatchSize(c.Sync.BatchSize),
		engine.WithCacheOptions(
			cache.WithMaxBytes(c.Cache.MaxBytes),
			cache.WithEvictRatio(c.Cache.EvictRatio),
			cache.WithPrioritySubjects(c.Cache.PrioritySubjects...),
			cache.WithConcurrency(c.Cache.Concurrency),
		),
	}
}

// Write encodes the configuration as YAML.
func (c Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
