package harness

import (
	"slices"
	"strings"
)

// checkExpect compares a step's outcome with its expect clause.
func checkExpect(r *Result, i int, step Step, sr StepResult) {
	exp := step.Expect
	if exp == nil {
		if sr.Error != "" {
			r.AddError("steps[%d]: unexpected error: %s", i, sr.Error)
		}
		return
	}

	if exp.Error != "" {
		switch {
		case sr.Error == "":
			r.AddError("steps[%d]: expected error containing %q, got success", i, exp.Error)
		case !strings.Contains(sr.Error, exp.Error):
			r.AddError("steps[%d]: expected error containing %q, got %q", i, exp.Error, sr.Error)
		}
		return
	}
	if sr.Error != "" {
		r.AddError("steps[%d]: unexpected error: %s", i, sr.Error)
		return
	}

	if exp.XPEarned != nil && *exp.XPEarned != sr.XPEarned {
		r.AddError("steps[%d]: xp_earned = %d, want %d", i, sr.XPEarned, *exp.XPEarned)
	}
	if exp.Level != nil && *exp.Level != sr.Level {
		r.AddError("steps[%d]: level = %d, want %d", i, sr.Level, *exp.Level)
	}
	if exp.LeveledUp != nil && *exp.LeveledUp != sr.LeveledUp {
		r.AddError("steps[%d]: leveled_up = %t, want %t", i, sr.LeveledUp, *exp.LeveledUp)
	}
	if exp.CurrentStreak != nil && *exp.CurrentStreak != sr.CurrentStreak {
		r.AddError("steps[%d]: current_streak = %d, want %d", i, sr.CurrentStreak, *exp.CurrentStreak)
	}
	if exp.Duplicate != nil && *exp.Duplicate != sr.Duplicate {
		r.AddError("steps[%d]: duplicate = %t, want %t", i, sr.Duplicate, *exp.Duplicate)
	}
	if exp.NewlyUnlocked != nil && !sameSet(exp.NewlyUnlocked, sr.NewlyUnlocked) {
		r.AddError("steps[%d]: newly_unlocked = %v, want %v", i, sr.NewlyUnlocked, exp.NewlyUnlocked)
	}
	if exp.NewAchievements != nil && !sameSet(exp.NewAchievements, sr.NewAchievements) {
		r.AddError("steps[%d]: new_achievements = %v, want %v", i, sr.NewAchievements, exp.NewAchievements)
	}
}

// evaluateAssertion checks one assertion against the final snapshots.
func evaluateAssertion(r *Result, i int, a Assertion) {
	if a.Type == AssertOutbox {
		if int64(r.Outbox) != a.Value {
			r.AddError("assertions[%d]: outbox = %d, want %d", i, r.Outbox, a.Value)
		}
		return
	}

	snap, ok := r.snapshots[a.Student]
	if !ok {
		r.AddError("assertions[%d]: student %q recorded nothing", i, a.Student)
		return
	}

	compare := func(name string, got int64) {
		if got != a.Value {
			r.AddError("assertions[%d]: %s of %s = %d, want %d", i, name, a.Student, got, a.Value)
		}
	}
	switch a.Type {
	case AssertLevel:
		compare("level", int64(snap.Level))
	case AssertTotalXP:
		compare("total_xp", snap.TotalXP)
	case AssertCurrentStreak:
		compare("current_streak", int64(snap.CurrentStreak))
	case AssertLongestStreak:
		compare("longest_streak", int64(snap.LongestStreak))
	case AssertGamesCompleted:
		compare("games_completed", int64(snap.GamesCompleted))
	case AssertMastery:
		compare("mastery("+a.Subject+")", int64(snap.Mastery(a.Subject)))
	case AssertUnlocked:
		if !snap.IsUnlocked(a.Entry) {
			r.AddError("assertions[%d]: %s is locked for %s", i, a.Entry, a.Student)
		}
	case AssertLocked:
		if snap.IsUnlocked(a.Entry) {
			r.AddError("assertions[%d]: %s is unlocked for %s", i, a.Entry, a.Student)
		}
	case AssertAchievement:
		if !snap.HasAchievement(a.Achievement) {
			r.AddError("assertions[%d]: %s has not earned %s", i, a.Student, a.Achievement)
		}
	}
}

func sameSet(want, got []string) bool {
	w := slices.Clone(want)
	g := slices.Clone(got)
	slices.Sort(w)
	slices.Sort(g)
	return slices.Equal(w, g)
}
