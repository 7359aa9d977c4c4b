package model

import "time"

// ProgressRecord is one completion attempt by a student on a catalog entry.
//
// Records are created at completion time and never mutated. XPEarned is
// computed once at creation and stored; everything else derived from history
// (level, totals, mastery, unlocks) is recomputed on read.
type ProgressRecord struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"student_id"`
	EntryID      string    `json:"entry_id"`
	Score        int       `json:"score"`
	TimeSpentSec int       `json:"time_spent_sec"`
	HintsUsed    int       `json:"hints_used"`
	Mistakes     int       `json:"mistakes"`
	XPEarned     int64     `json:"xp_earned"`
	CompletedAt  time.Time `json:"completed_at"`
}

// AchievementEvent records that a student earned an achievement.
// The ID is content-addressed (see AchievementEventID) so deriving the same
// unlock twice yields the same event.
type AchievementEvent struct {
	ID            string    `json:"id"`
	StudentID     string    `json:"student_id"`
	AchievementID string    `json:"achievement_id"`
	XPReward      int64     `json:"xp_reward"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}
