package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/shiksha/internal/model"
)

// DefaultStart is the clock start of scenarios that do not set one.
var DefaultStart = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

// Scenario defines a progression scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the fake clock's initial time. Zero means DefaultStart.
	Start time.Time `yaml:"start,omitempty"`

	// TimeZone defines calendar days for streaks. Empty means UTC.
	TimeZone string `yaml:"time_zone,omitempty"`

	// Rules is an optional CUE rules file replacing the built-in rules.
	// Relative paths are resolved against the scenario file.
	Rules string `yaml:"rules,omitempty"`

	// Catalog is seeded before the first step.
	Catalog []EntrySpec `yaml:"catalog"`

	// Steps are completions recorded in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final snapshots.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// EntrySpec is a catalog entry as written in a scenario.
type EntrySpec struct {
	ID              string            `yaml:"id"`
	Title           string            `yaml:"title,omitempty"`
	Subject         string            `yaml:"subject"`
	ClassLevel      int               `yaml:"class_level"`
	GameType        string            `yaml:"game_type,omitempty"`
	Difficulty      string            `yaml:"difficulty"`
	BaseXPReward    int64             `yaml:"base_xp_reward"`
	TimeEstimateSec int               `yaml:"time_estimate_sec"`
	Requirements    []RequirementSpec `yaml:"requirements,omitempty"`
}

// RequirementSpec is an unlock requirement as written in a scenario.
type RequirementSpec struct {
	Type    string `yaml:"type"`
	Value   int    `yaml:"value"`
	Subject string `yaml:"subject,omitempty"`
}

// Step records one completion.
type Step struct {
	// Advance moves the clock forward before the completion ("24h", "90m").
	Advance string `yaml:"advance,omitempty"`

	// ID fixes the record id; reusing an id replays the completion.
	ID string `yaml:"id,omitempty"`

	Student      string `yaml:"student"`
	Entry        string `yaml:"entry"`
	Score        int    `yaml:"score"`
	TimeSpentSec int    `yaml:"time_spent_sec,omitempty"`
	HintsUsed    int    `yaml:"hints_used,omitempty"`
	Mistakes     int    `yaml:"mistakes,omitempty"`

	// Expect checks the outcome of this completion. Nil checks nothing.
	Expect *Expect `yaml:"expect,omitempty"`

	advance time.Duration
}

// Expect lists the checked outcomes of a step. Unset fields are not checked;
// an empty list checks that nothing was added.
type Expect struct {
	XPEarned        *int64   `yaml:"xp_earned,omitempty"`
	Level           *int     `yaml:"level,omitempty"`
	LeveledUp       *bool    `yaml:"leveled_up,omitempty"`
	CurrentStreak   *int     `yaml:"current_streak,omitempty"`
	NewlyUnlocked   []string `yaml:"newly_unlocked,omitempty"`
	NewAchievements []string `yaml:"new_achievements,omitempty"`
	Duplicate       *bool    `yaml:"duplicate,omitempty"`

	// Error is a substring of the expected error. The step must fail.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates a final snapshot.
type Assertion struct {
	Type        string `yaml:"type"`
	Student     string `yaml:"student,omitempty"`
	Entry       string `yaml:"entry,omitempty"`
	Subject     string `yaml:"subject,omitempty"`
	Achievement string `yaml:"achievement,omitempty"`
	Value       int64  `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertLevel          = "level"
	AssertTotalXP        = "total_xp"
	AssertCurrentStreak  = "current_streak"
	AssertLongestStreak  = "longest_streak"
	AssertGamesCompleted = "games_completed"
	AssertMastery        = "mastery"
	AssertUnlocked       = "unlocked"
	AssertLocked         = "locked"
	AssertAchievement    = "achievement"
	AssertOutbox         = "outbox"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return parseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML. Relative rules paths resolve against
// the working directory.
func ParseScenario(data []byte) (*Scenario, error) {
	return parseScenario(data, "")
}

func parseScenario(data []byte, basePath string) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Rules != "" && !filepath.IsAbs(scenario.Rules) && basePath != "" {
		scenario.Rules = filepath.Join(basePath, scenario.Rules)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and parses step durations.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Catalog) == 0 {
		return fmt.Errorf("catalog list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.TimeZone != "" {
		if _, err := time.LoadLocation(s.TimeZone); err != nil {
			return fmt.Errorf("time_zone: %w", err)
		}
	}

	seen := map[string]bool{}
	for i, e := range s.Catalog {
		if e.ID == "" {
			return fmt.Errorf("catalog[%d]: id is required", i)
		}
		if seen[e.ID] {
			return fmt.Errorf("catalog[%d]: duplicate id %q", i, e.ID)
		}
		seen[e.ID] = true
		if _, err := model.ParseDifficulty(e.Difficulty); err != nil {
			return fmt.Errorf("catalog[%d]: %w", i, err)
		}
	}

	for i := range s.Steps {
		st := &s.Steps[i]
		if st.Student == "" || st.Entry == "" {
			return fmt.Errorf("steps[%d]: student and entry are required", i)
		}
		if st.Advance != "" {
			d, err := time.ParseDuration(st.Advance)
			if err != nil {
				return fmt.Errorf("steps[%d]: advance: %w", i, err)
			}
			if d < 0 {
				return fmt.Errorf("steps[%d]: advance must not be negative", i)
			}
			st.advance = d
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertLevel, AssertTotalXP, AssertCurrentStreak, AssertLongestStreak, AssertGamesCompleted:
			if a.Student == "" {
				return fmt.Errorf("assertions[%d]: %s requires student", i, a.Type)
			}
		case AssertMastery:
			if a.Student == "" || a.Subject == "" {
				return fmt.Errorf("assertions[%d]: mastery requires student and subject", i)
			}
		case AssertUnlocked, AssertLocked:
			if a.Student == "" || a.Entry == "" {
				return fmt.Errorf("assertions[%d]: %s requires student and entry", i, a.Type)
			}
		case AssertAchievement:
			if a.Student == "" || a.Achievement == "" {
				return fmt.Errorf("assertions[%d]: achievement requires student and achievement", i)
			}
		case AssertOutbox:
		default:
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
	}
	return nil
}

// catalogEntry converts e into a version 1 catalog entry.
func (e EntrySpec) catalogEntry() model.CatalogEntry {
	d, _ := model.ParseDifficulty(e.Difficulty)
	entry := model.CatalogEntry{
		ID:              e.ID,
		Title:           e.Title,
		Subject:         e.Subject,
		ClassLevel:      e.ClassLevel,
		GameType:        e.GameType,
		Difficulty:      d,
		BaseXPReward:    e.BaseXPReward,
		TimeEstimateSec: e.TimeEstimateSec,
		Version:         1,
	}
	for _, r := range e.Requirements {
		entry.Requirements = append(entry.Requirements, model.Requirement{
			Type:    model.RequirementType(r.Type),
			Value:   r.Value,
			Subject: r.Subject,
		})
	}
	return entry
}
