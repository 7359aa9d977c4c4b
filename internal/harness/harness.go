package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/shiksha/internal/connectivity"
	"github.com/roach88/shiksha/internal/engine"
	"github.com/roach88/shiksha/internal/progression"
	"github.com/roach88/shiksha/internal/store"
	"github.com/roach88/shiksha/internal/testutil"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Steps has one entry per scenario step, in order.
	Steps []StepResult `json:"steps"`

	// Final summarizes each student's snapshot after the last step.
	Final []StudentSummary `json:"final"`

	// Outbox is the number of queued outbox items after the last step.
	Outbox int `json:"outbox"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors"`

	snapshots map[string]progression.Snapshot
}

// StepResult is what one completion produced.
type StepResult struct {
	Student         string   `json:"student"`
	Entry           string   `json:"entry"`
	RecordID        string   `json:"record_id,omitempty"`
	XPEarned        int64    `json:"xp_earned"`
	Duplicate       bool     `json:"duplicate,omitempty"`
	Level           int      `json:"level"`
	LeveledUp       bool     `json:"leveled_up"`
	CurrentStreak   int      `json:"current_streak"`
	NewlyUnlocked   []string `json:"newly_unlocked"`
	NewAchievements []string `json:"new_achievements"`
	Error           string   `json:"error,omitempty"`
}

// StudentSummary is the golden-file view of a snapshot.
type StudentSummary struct {
	Student        string   `json:"student"`
	TotalXP        int64    `json:"total_xp"`
	Level          int      `json:"level"`
	Title          string   `json:"title"`
	GamesCompleted int      `json:"games_completed"`
	CurrentStreak  int      `json:"current_streak"`
	LongestStreak  int      `json:"longest_streak"`
	Unlocked       []string `json:"unlocked"`
	Achievements   []string `json:"achievements"`
}

func newResult() *Result {
	return &Result{
		Pass:      true,
		Steps:     []StepResult{},
		Final:     []StudentSummary{},
		Errors:    []string{},
		snapshots: map[string]progression.Snapshot{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Snapshot returns a student's final snapshot.
func (r *Result) Snapshot(studentID string) (progression.Snapshot, bool) {
	s, ok := r.snapshots[studentID]
	return s, ok
}

// Run executes a scenario on a fresh in-memory engine.
//
// Execution flow:
//  1. Open an in-memory store and seed the catalog
//  2. Build an offline engine on a fake clock with sequential ids
//  3. Record each step's completion, checking its expect clause
//  4. Snapshot every student and evaluate the assertions
//
// A returned error means the scenario could not run; failed expectations are
// reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.OpenMemory(store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	start := scenario.Start
	if start.IsZero() {
		start = DefaultStart
	}
	clock := testutil.NewFakeClock(start)

	for _, spec := range scenario.Catalog {
		if _, err := st.UpsertCatalogEntry(ctx, spec.catalogEntry(), start); err != nil {
			return nil, fmt.Errorf("seed catalog %s: %w", spec.ID, err)
		}
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithNow(clock.Now),
		engine.WithIDGenerator(testutil.NewSequentialIDs("rec")),
	}
	if scenario.TimeZone != "" {
		loc, err := time.LoadLocation(scenario.TimeZone)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithLocation(loc))
	}
	if scenario.Rules != "" {
		rules, err := progression.LoadRules(scenario.Rules)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithRules(rules))
	}

	eng, err := engine.New(st, nil, connectivity.NewManual(false), opts...)
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	result := newResult()
	students := map[string]bool{}
	for i, step := range scenario.Steps {
		clock.Advance(step.advance)
		students[step.Student] = true
		sr := runStep(ctx, eng, step)
		checkExpect(result, i, step, sr)
		result.Steps = append(result.Steps, sr)
	}

	ids := make([]string, 0, len(students))
	for id := range students {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		snap, err := eng.Snapshot(ctx, id)
		if err != nil {
			return nil, err
		}
		result.snapshots[id] = snap
		result.Final = append(result.Final, summarize(id, snap))
	}

	counts, err := st.OutboxCounts(ctx, "")
	if err != nil {
		return nil, err
	}
	result.Outbox = counts.Unsynced()

	for i, a := range scenario.Assertions {
		evaluateAssertion(result, i, a)
	}
	return result, nil
}

func runStep(ctx context.Context, eng *engine.Engine, step Step) StepResult {
	sr := StepResult{
		Student:         step.Student,
		Entry:           step.Entry,
		NewlyUnlocked:   []string{},
		NewAchievements: []string{},
	}
	res, err := eng.RecordCompletion(ctx, engine.Completion{
		ID:           step.ID,
		StudentID:    step.Student,
		EntryID:      step.Entry,
		Score:        step.Score,
		TimeSpentSec: step.TimeSpentSec,
		HintsUsed:    step.HintsUsed,
		Mistakes:     step.Mistakes,
	})
	if err != nil {
		sr.Error = err.Error()
		return sr
	}
	sr.RecordID = res.Record.ID
	sr.XPEarned = res.Record.XPEarned
	sr.Duplicate = res.Duplicate
	sr.Level = res.Snapshot.Level
	sr.LeveledUp = res.Diff.LeveledUp
	sr.CurrentStreak = res.Snapshot.CurrentStreak
	sr.NewlyUnlocked = res.Diff.NewlyUnlocked
	sr.NewAchievements = res.Diff.NewAchievements
	return sr
}

func summarize(studentID string, snap progression.Snapshot) StudentSummary {
	return StudentSummary{
		Student:        studentID,
		TotalXP:        snap.TotalXP,
		Level:          snap.Level,
		Title:          snap.Title,
		GamesCompleted: snap.GamesCompleted,
		CurrentStreak:  snap.CurrentStreak,
		LongestStreak:  snap.LongestStreak,
		Unlocked:       snap.Unlocked,
		Achievements:   snap.Achievements,
	}
}
