// Package progression computes a student's derived state from progress
// history: level, XP, streaks, per-subject mastery, unlocked catalog entries
// and earned achievements.
//
// Everything here is a pure function of (history, catalog, rules). Nothing is
// stored, nothing does I/O, and identical inputs always yield an identical
// Snapshot: every list in a snapshot is sorted. Derived values can therefore be
// recomputed on any device instead of merged.
//
// The one value computed at write time is the XP award of a completion
// (AwardXP), which is then stored on the immutable progress record.
package progression
