package progression

// Diff describes what changed between two snapshots of the same student.
// Presentation layers use it to show XP gains, level-ups and new badges.
type Diff struct {
	XPGained        int64    `json:"xp_gained"`
	PreviousLevel   int      `json:"previous_level"`
	Level           int      `json:"level"`
	LeveledUp       bool     `json:"leveled_up"`
	NewlyUnlocked   []string `json:"newly_unlocked"`
	NewAchievements []string `json:"new_achievements"`
	StreakChanged   bool     `json:"streak_changed"`
	CurrentStreak   int      `json:"current_streak"`
}

// Compare returns the changes from prev to next.
// Newly unlocked entries and achievements are sorted.
func Compare(prev, next Snapshot) Diff {
	return Diff{
		XPGained:        next.TotalXP - prev.TotalXP,
		PreviousLevel:   prev.Level,
		Level:           next.Level,
		LeveledUp:       next.Level > prev.Level,
		NewlyUnlocked:   added(prev.Unlocked, next.Unlocked),
		NewAchievements: added(prev.Achievements, next.Achievements),
		StreakChanged:   prev.CurrentStreak != next.CurrentStreak,
		CurrentStreak:   next.CurrentStreak,
	}
}

// Empty reports whether nothing observable changed.
func (d Diff) Empty() bool {
	return d.XPGained == 0 && !d.LeveledUp && !d.StreakChanged &&
		len(d.NewlyUnlocked) == 0 && len(d.NewAchievements) == 0
}

// added returns the elements of next missing from prev. Both must be sorted.
func added(prev, next []string) []string {
	out := []string{}
	i := 0
	for _, s := range next {
		for i < len(prev) && prev[i] < s {
			i++
		}
		if i < len(prev) && prev[i] == s {
			continue
		}
		out = append(out, s)
	}
	return out
}
