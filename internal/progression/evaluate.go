package progression

import (
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/shiksha/internal/model"
)

// Snapshot is the derived progression state of one student.
// All slices are non-nil and sorted.
type Snapshot struct {
	TotalXP        int64    `json:"total_xp"`
	Level          int      `json:"level"`
	Title          string   `json:"title"`
	XPIntoLevel    int64    `json:"xp_into_level"`
	XPToNextLevel  int64    `json:"xp_to_next_level"`
	Benefits       []string `json:"benefits"`
	GamesCompleted int      `json:"games_completed"`
	UniqueEntries  int      `json:"unique_entries"`
	ScoreAverage   int      `json:"score_average"`
	CurrentStreak  int      `json:"current_streak"`
	LongestStreak  int      `json:"longest_streak"`

	// Subjects is ordered by subject key.
	Subjects []SubjectProgress `json:"subjects"`

	// Unlocked lists entry ids whose requirements all hold.
	Unlocked []string `json:"unlocked"`

	// Locked lists the remaining entries with their unmet requirements.
	Locked []LockedEntry `json:"locked"`

	// Achievements lists earned achievement ids.
	Achievements []string `json:"achievements"`

	// Completed lists entry ids finished at least once.
	Completed []string `json:"completed"`
}

// SubjectProgress is the per-subject breakdown of a snapshot.
type SubjectProgress struct {
	Subject        string `json:"subject"`
	GamesCompleted int    `json:"games_completed"`
	XP             int64  `json:"xp"`
	Level          int    `json:"level"`
	ScoreAverage   int    `json:"score_average"`
	Mastery        int    `json:"mastery"`
}

// LockedEntry is a catalog entry the student cannot play yet.
type LockedEntry struct {
	EntryID string              `json:"entry_id"`
	Unmet   []model.Requirement `json:"unmet"`
}

// SubjectXPPerLevel is the XP per level within one subject.
const SubjectXPPerLevel = 50

// Evaluator evaluates histories against a rule table.
// An Evaluator is immutable and safe for concurrent use.
type Evaluator struct {
	rules  *Rules
	loc    *time.Location
	logger *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLocation sets the time zone that defines calendar days for streaks.
func WithLocation(loc *time.Location) Option {
	return func(e *Evaluator) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithLogger sets the logger for history anomalies.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEvaluator creates an evaluator. A nil rules uses DefaultRules.
func NewEvaluator(rules *Rules, opts ...Option) *Evaluator {
	if rules == nil {
		rules = DefaultRules()
	}
	e := &Evaluator{rules: rules, loc: time.UTC, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the evaluator's rule table.
func (ev *Evaluator) Rules() *Rules {
	return ev.rules
}

// Location returns the time zone used for calendar days.
func (ev *Evaluator) Location() *time.Location {
	return ev.loc
}

// Evaluate derives a snapshot with the default evaluator.
func Evaluate(history []model.ProgressRecord, catalog []model.CatalogEntry) Snapshot {
	return NewEvaluator(nil).Evaluate(history, catalog)
}

// Evaluate derives a snapshot from history and catalog. The current streak
// is measured from the newest completion.
func (ev *Evaluator) Evaluate(history []model.ProgressRecord, catalog []model.CatalogEntry) Snapshot {
	return ev.EvaluateAt(history, catalog, time.Time{})
}

// EvaluateAt is Evaluate with the current streak measured as of asOf.
//
// History entries that reference an entry missing from catalog, or that carry
// out-of-range values, are skipped and logged. They never fail evaluation.
func (ev *Evaluator) EvaluateAt(history []model.ProgressRecord, catalog []model.CatalogEntry, asOf time.Time) Snapshot {
	byID := indexCatalog(catalog)

	valid := ev.validHistory(history, byID)
	snap := Snapshot{
		Benefits:     []string{},
		Subjects:     []SubjectProgress{},
		Unlocked:     []string{},
		Locked:       []LockedEntry{},
		Achievements: []string{},
		Completed:    []string{},
	}

	var (
		allScores     []int
		subjectScores = map[string][]int{}
		subjectStats  = map[string]*SubjectProgress{}
		completed     = map[string]bool{}
	)
	for _, p := range valid {
		snap.TotalXP += p.XPEarned
		allScores = append(allScores, p.Score)
		completed[p.EntryID] = true

		key := model.NormalizeSubject(byID[p.EntryID].Subject)
		sp := subjectStats[key]
		if sp == nil {
			sp = &SubjectProgress{Subject: key}
			subjectStats[key] = sp
		}
		sp.GamesCompleted++
		sp.XP += p.XPEarned
		subjectScores[key] = append(subjectScores[key], p.Score)
	}

	snap.Level = LevelFor(snap.TotalXP)
	snap.Title = Title(snap.Level)
	snap.XPIntoLevel, snap.XPToNextLevel = XPIntoLevel(snap.TotalXP)
	snap.Benefits = Benefits(snap.Level)
	snap.GamesCompleted = len(valid)
	snap.UniqueEntries = len(completed)
	snap.ScoreAverage = roundedMean(allScores)
	snap.CurrentStreak, snap.LongestStreak = Streaks(valid, ev.loc, asOf)

	for key, sp := range subjectStats {
		sp.Level = int(sp.XP/SubjectXPPerLevel) + 1
		sp.ScoreAverage = roundedMean(subjectScores[key])
		sp.Mastery = Mastery(subjectScores[key])
		snap.Subjects = append(snap.Subjects, *sp)
	}
	sort.Slice(snap.Subjects, func(i, j int) bool {
		return snap.Subjects[i].Subject < snap.Subjects[j].Subject
	})

	for id := range completed {
		snap.Completed = append(snap.Completed, id)
	}
	sort.Strings(snap.Completed)

	for _, e := range sortedCatalog(byID) {
		unmet := ev.unmet(snap, ev.rules.RequirementsFor(e), e.Subject)
		if len(unmet) == 0 {
			snap.Unlocked = append(snap.Unlocked, e.ID)
		} else {
			snap.Locked = append(snap.Locked, LockedEntry{EntryID: e.ID, Unmet: unmet})
		}
	}

	for _, a := range ev.rules.Achievements {
		if len(ev.unmet(snap, a.Requirements, "")) == 0 {
			snap.Achievements = append(snap.Achievements, a.ID)
		}
	}
	sort.Strings(snap.Achievements)

	return snap
}

// validHistory drops records that cannot be evaluated.
func (ev *Evaluator) validHistory(history []model.ProgressRecord, byID map[string]model.CatalogEntry) []model.ProgressRecord {
	out := make([]model.ProgressRecord, 0, len(history))
	for _, p := range history {
		if _, ok := byID[p.EntryID]; !ok {
			ev.logger.Warn("progress references unknown catalog entry",
				"event", "catalog_anomaly",
				"progress_id", p.ID,
				"entry_id", p.EntryID,
			)
			continue
		}
		if p.Score < 0 || p.Score > 100 || p.XPEarned < 0 {
			ev.logger.Warn("progress record out of range",
				"event", "progress_anomaly",
				"progress_id", p.ID,
				"score", p.Score,
				"xp_earned", p.XPEarned,
			)
			continue
		}
		out = append(out, p)
	}
	return out
}

// Unlocked reports whether entry e is unlocked in snap.
func (ev *Evaluator) Unlocked(snap Snapshot, e model.CatalogEntry) bool {
	return len(ev.unmet(snap, ev.rules.RequirementsFor(e), e.Subject)) == 0
}

// unmet returns the requirements that do not hold, in declaration order.
// ownSubject resolves subject_mastery requirements without a subject.
func (ev *Evaluator) unmet(snap Snapshot, reqs []model.Requirement, ownSubject string) []model.Requirement {
	var out []model.Requirement
	for _, r := range reqs {
		if !Holds(snap, r, ownSubject) {
			out = append(out, r)
		}
	}
	return out
}

// Holds evaluates one requirement against a snapshot.
// Unknown requirement types never hold.
func Holds(snap Snapshot, r model.Requirement, ownSubject string) bool {
	switch r.Type {
	case model.RequireLevel:
		return snap.Level >= r.Value
	case model.RequireGamesCompleted:
		return snap.GamesCompleted >= r.Value
	case model.RequireSubjectMastery:
		subject := r.Subject
		if subject == "" {
			subject = ownSubject
		}
		return snap.Mastery(subject) >= r.Value
	case model.RequireStreak:
		return snap.CurrentStreak >= r.Value
	case model.RequireScoreAverage:
		return snap.ScoreAverage >= r.Value
	}
	return false
}

// Mastery returns the mastery of a subject, 0 if never played.
func (s Snapshot) Mastery(subject string) int {
	key := model.NormalizeSubject(subject)
	for _, sp := range s.Subjects {
		if sp.Subject == key {
			return sp.Mastery
		}
	}
	return 0
}

// IsUnlocked reports whether entryID is in the unlocked list.
func (s Snapshot) IsUnlocked(entryID string) bool {
	i := sort.SearchStrings(s.Unlocked, entryID)
	return i < len(s.Unlocked) && s.Unlocked[i] == entryID
}

// HasAchievement reports whether id has been earned.
func (s Snapshot) HasAchievement(id string) bool {
	i := sort.SearchStrings(s.Achievements, id)
	return i < len(s.Achievements) && s.Achievements[i] == id
}

// indexCatalog keys entries by id. When an id repeats the highest version wins.
func indexCatalog(catalog []model.CatalogEntry) map[string]model.CatalogEntry {
	byID := make(map[string]model.CatalogEntry, len(catalog))
	for _, e := range catalog {
		if cur, ok := byID[e.ID]; ok && cur.Version >= e.Version {
			continue
		}
		byID[e.ID] = e
	}
	return byID
}

func sortedCatalog(byID map[string]model.CatalogEntry) []model.CatalogEntry {
	out := make([]model.CatalogEntry, 0, len(byID))
	for _, e := range byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
