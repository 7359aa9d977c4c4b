package progression

import "github.com/roach88/shiksha/internal/model"

// Completion describes a finished attempt for XP purposes.
type Completion struct {
	Score        int // percent, clamped to [0, 100]
	TimeSpentSec int
	HintsUsed    int

	// FirstCompletion is true when the student never finished this entry before.
	FirstCompletion bool

	// Streak is the student's current streak before this completion.
	Streak int
}

// AwardXP computes the XP of one completion:
//
//	base*mult*(1 + score/100*0.5)*(1 + timeBonus*0.25)
//	  - hints*base*0.05 + first*0.2*base + min(2*streak, 50)
//
// floored, with a minimum of 1. timeBonus is the unused fraction of the
// entry's time estimate. The arithmetic is done on integers over a common
// denominator so the floor is exact.
func AwardXP(e model.CatalogEntry, c Completion) int64 {
	base := e.BaseXPReward
	if base < 0 {
		base = 0
	}
	score := int64(clamp(c.Score, 0, 100))
	hints := int64(max(c.HintsUsed, 0))

	limit := int64(e.TimeEstimateSec)
	spent := int64(max(c.TimeSpentSec, 0))
	if limit <= 0 {
		// No estimate, no time bonus.
		limit, spent = 1, 1
	}
	unused := max(limit-spent, 0)

	// Denominator: 10 (mult tenths) * 200 (score) * 4 (time) * limit.
	den := 8000 * limit
	num := base * multiplierTenths(e.Difficulty) * (200 + score) * (4*limit + unused)
	num -= hints * base * 400 * limit
	if c.FirstCompletion {
		num += base * 1600 * limit
	}
	num += streakBonus(c.Streak) * den

	xp := floorDiv(num, den)
	if xp < 1 {
		return 1
	}
	return xp
}

func streakBonus(streak int) int64 {
	return int64(clamp(2*streak, 0, 50))
}

// multiplierTenths is Difficulty.Multiplier scaled by 10.
func multiplierTenths(d model.Difficulty) int64 {
	switch d {
	case model.DifficultyIntermediate:
		return 13
	case model.DifficultyAdvanced:
		return 16
	default:
		return 10
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
