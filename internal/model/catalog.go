package model

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Difficulty is the tier of a catalog entry.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "BEGINNER"
	DifficultyIntermediate Difficulty = "INTERMEDIATE"
	DifficultyAdvanced     Difficulty = "ADVANCED"
)

// ParseDifficulty accepts any casing of the three known tiers.
func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(strings.ToUpper(strings.TrimSpace(s))) {
	case DifficultyBeginner:
		return DifficultyBeginner, nil
	case DifficultyIntermediate:
		return DifficultyIntermediate, nil
	case DifficultyAdvanced:
		return DifficultyAdvanced, nil
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

// Multiplier returns the XP multiplier for the tier. Unknown tiers count as beginner.
func (d Difficulty) Multiplier() float64 {
	switch d {
	case DifficultyIntermediate:
		return 1.3
	case DifficultyAdvanced:
		return 1.6
	default:
		return 1.0
	}
}

// RequirementType names the statistic an unlock requirement is checked against.
type RequirementType string

const (
	RequireLevel          RequirementType = "level"
	RequireGamesCompleted RequirementType = "games_completed"
	RequireSubjectMastery RequirementType = "subject_mastery"
	RequireStreak         RequirementType = "streak"
	RequireScoreAverage   RequirementType = "score_average"
)

// Requirement is one declarative unlock condition.
// Subject is only meaningful for subject_mastery; empty means the subject of
// the entry that declares the requirement.
type Requirement struct {
	Type        RequirementType `json:"type"`
	Value       int             `json:"value"`
	Subject     string          `json:"subject,omitempty"`
	Description string          `json:"description,omitempty"`
}

// AssetRef describes an asset that belongs to a catalog entry.
type AssetRef struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	SizeBytes int64  `json:"size_bytes"`
}

// CatalogEntry is a playable unit (game or lesson).
//
// Entries are immutable once cached; a newer Version with the same ID
// supersedes the cached one.
type CatalogEntry struct {
	ID              string        `json:"id"`
	Title           string        `json:"title,omitempty"`
	Subject         string        `json:"subject"`
	ClassLevel      int           `json:"class_level"`
	GameType        string        `json:"game_type,omitempty"`
	Difficulty      Difficulty    `json:"difficulty"`
	BaseXPReward    int64         `json:"base_xp_reward"`
	TimeEstimateSec int           `json:"time_estimate_sec"`
	Version         int64         `json:"version"`
	Requirements    []Requirement `json:"requirements,omitempty"`
	Assets          []AssetRef    `json:"assets,omitempty"`

	// Local bookkeeping, not part of the remote representation.
	Essential      bool      `json:"-"`
	AssetsComplete bool      `json:"-"`
	UpdatedAt      time.Time `json:"-"`
}

// NormalizeSubject returns the lookup key for a subject name.
// Subjects arrive from several sources (catalog, curriculum, config) with
// inconsistent casing and Unicode composition. A Caser is stateful, so a
// fresh one is built per call.
func NormalizeSubject(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}
