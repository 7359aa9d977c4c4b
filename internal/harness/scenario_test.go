package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "One completion"
catalog:
  - id: maths-addition
    subject: maths
    class_level: 6
    difficulty: BEGINNER
    base_xp_reward: 100
    time_estimate_sec: 300
steps:
  - student: asha
    entry: maths-addition
    score: 80
`

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "streak_unlock.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "streak_unlock", scenario.Name)
	assert.Len(t, scenario.Catalog, 2)
	assert.Len(t, scenario.Steps, 3)
	assert.Len(t, scenario.Assertions, 8)
	assert.Equal(t, 48*time.Hour, scenario.Steps[2].advance)
	require.NotNil(t, scenario.Steps[0].Expect)
	assert.Equal(t, int64(181), *scenario.Steps[0].Expect.XPEarned)
	assert.Equal(t, []string{}, scenario.Steps[0].Expect.NewlyUnlocked)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_ResolvesRulesPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario+"rules: custom.cue\n"), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "custom.cue"), scenario.Rules)
}

func TestParseScenario_Minimal(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	assert.True(t, scenario.Start.IsZero())
	assert.Nil(t, scenario.Steps[0].Expect)
	assert.Equal(t, int64(100), scenario.Catalog[0].catalogEntry().BaseXPReward)
	assert.Equal(t, int64(1), scenario.Catalog[0].catalogEntry().Version)
}

func TestParseScenario_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", minimalScenario + "assertion: []\n", "assertion"},
		{"missing name", "description: x\ncatalog: []\nsteps: []\n", "name is required"},
		{"missing description", "name: x\n", "description is required"},
		{"empty catalog", "name: x\ndescription: y\n", "catalog list"},
		{"bad zone", minimalScenario + "time_zone: Mars/Olympus\n", "time_zone"},
		{"bad advance", minimalScenario + "  - advance: tomorrow\n    student: asha\n    entry: maths-addition\n", "advance"},
		{"negative advance", minimalScenario + "  - advance: -1h\n    student: asha\n    entry: maths-addition\n", "negative"},
		{"step without entry", minimalScenario + "  - student: asha\n", "student and entry"},
		{"bad difficulty", "name: x\ndescription: y\ncatalog:\n  - id: a\n    difficulty: HARD\nsteps:\n  - student: s\n    entry: a\n", "catalog[0]"},
		{"duplicate entry", "name: x\ndescription: y\ncatalog:\n  - id: a\n    difficulty: BEGINNER\n  - id: a\n    difficulty: BEGINNER\nsteps:\n  - student: s\n    entry: a\n", "duplicate id"},
		{"unknown assertion", minimalScenario + "assertions:\n  - type: vibes\n", "unknown type"},
		{"mastery without subject", minimalScenario + "assertions:\n  - type: mastery\n    student: asha\n", "requires student and subject"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
