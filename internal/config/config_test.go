package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval.Std())
	assert.Equal(t, 2*time.Minute, cfg.Sync.GraceTimeout.Std())
	assert.Equal(t, 24*time.Hour, cfg.Sync.Retention.Std())
	assert.Equal(t, int64(100<<20), cfg.Cache.MaxBytes)
	assert.Equal(t, 0.8, cfg.Cache.EvictRatio)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
database: /var/lib/shiksha/device.db
time_zone: Asia/Kolkata
sync:
  interval: 1m
  max_attempts: 8
  session_retention: 72h
remote:
  base_url: https://sync.example.org
  timeout: 10s
cache:
  max_bytes: 52428800
  priority_subjects: [Maths, Odissi]
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/shiksha/device.db", cfg.Database)
	assert.Equal(t, "Asia/Kolkata", cfg.Location().String())
	assert.Equal(t, time.Minute, cfg.Sync.Interval.Std())
	assert.Equal(t, 8, cfg.Sync.MaxAttempts)
	assert.Equal(t, 72*time.Hour, cfg.Sync.SessionRetention.Std())
	assert.Equal(t, 2*time.Minute, cfg.Sync.GraceTimeout.Std(), "unset keys keep defaults")
	assert.Equal(t, "https://sync.example.org", cfg.Remote.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Remote.Timeout.Std())
	assert.Equal(t, int64(50<<20), cfg.Cache.MaxBytes)
	assert.Equal(t, []string{"Maths", "Odissi"}, cfg.Cache.PrioritySubjects)
	assert.Len(t, cfg.EngineOptions(), 8)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "sync:\n  intervall: 1m\n", "intervall"},
		{"bad duration", "sync:\n  interval: soon\n", "invalid duration"},
		{"short interval", "sync:\n  interval: 100ms\n", "sync.interval"},
		{"bad ratio", "cache:\n  evict_ratio: 1.5\n", "evict_ratio"},
		{"bad zone", "time_zone: Mars/Olympus\n", "time_zone"},
		{"negative attempts", "sync:\n  max_attempts: -1\n", "max_attempts"},
		{"negative session retention", "sync:\n  session_retention: -1h\n", "session_retention"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(dir, "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("rules resolve against the config file", func(t *testing.T) {
		path := filepath.Join(dir, "shiksha.yaml")
		require.NoError(t, os.WriteFile(path, []byte("rules: rules/custom.cue\n"), 0o644))
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "rules", "custom.cue"), cfg.Rules)
	})
}

func TestWrite_RoundTrips(t *testing.T) {
	cfg := Default()
	cfg.Cache.PrioritySubjects = []string{"maths"}
	cfg.Sync.Interval = Duration(45 * time.Second)

	var buf bytes.Buffer
	require.NoError(t, cfg.Write(&buf))
	assert.Contains(t, buf.String(), "interval: 45s")

	back, err := Parse(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
