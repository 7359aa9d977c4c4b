package progression

import (
	"sort"
	"time"

	"github.com/roach88/shiksha/internal/model"
)

// dayNumber returns the calendar day of t in loc as a day count.
func dayNumber(t time.Time, loc *time.Location) int64 {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// activeDays returns the distinct calendar days with a completion, newest first.
func activeDays(history []model.ProgressRecord, loc *time.Location) []int64 {
	seen := make(map[int64]bool, len(history))
	days := make([]int64, 0, len(history))
	for _, p := range history {
		d := dayNumber(p.CompletedAt, loc)
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i] > days[j] })
	return days
}

// Streaks returns the current and longest runs of consecutive active days.
//
// The current streak walks newest-first from the newest active day: a step of
// one calendar day continues it, anything longer ends it. Several completions
// on one day count once.
//
// When asOf is non-zero the current streak is 0 if the newest active day is
// more than one day before asOf, since the run has been broken.
func Streaks(history []model.ProgressRecord, loc *time.Location, asOf time.Time) (current, longest int) {
	if loc == nil {
		loc = time.UTC
	}
	days := activeDays(history, loc)
	if len(days) == 0 {
		return 0, 0
	}

	run := 1
	currentDone := false
	for i := 1; i < len(days); i++ {
		if days[i-1]-days[i] == 1 {
			run++
			continue
		}
		if !currentDone {
			current, currentDone = run, true
		}
		longest = max(longest, run)
		run = 1
	}
	if !currentDone {
		current = run
	}
	longest = max(longest, run)

	if !asOf.IsZero() && dayNumber(asOf, loc)-days[0] > 1 {
		current = 0
	}
	return current, longest
}
