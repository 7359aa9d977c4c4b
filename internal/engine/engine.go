package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/shiksha/internal/cache"
	"github.com/roach88/shiksha/internal/connectivity"
	"github.com/roach88/shiksha/internal/model"
	"github.com/roach88/shiksha/internal/progression"
	"github.com/roach88/shiksha/internal/remote"
	"github.com/roach88/shiksha/internal/store"
)

// Engine is the host-facing service. It holds everything a completion, a
// snapshot or a sync pass needs; there is no package-level state.
//
// Thread-safety: all methods are safe for concurrent use. Writes are
// serialized by the store's single connection.
type Engine struct {
	store  *store.Store
	remote remote.Adapter
	port   connectivity.Port
	eval   *progression.Evaluator
	cache  *cache.Manager
	sched  *Scheduler
	ids    IDGenerator
	now    func() time.Time
	logger *slog.Logger

	// writeMu serializes RecordCompletion so the prior snapshot it diffs
	// against is the one its own write follows.
	writeMu sync.Mutex

	subsMu  sync.Mutex
	subs    []subscriber
	nextSub int
}

type subscriber struct {
	id int
	fn func(studentID string, d progression.Diff)
}

// New builds an engine over an open store. remote may be nil for a device
// that never syncs; port may be nil, which means always online.
func New(s *store.Store, r remote.Adapter, port connectivity.Port, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	if port == nil {
		port = connectivity.NewManual(true)
	}

	rules := cfg.rules
	if rules == nil {
		rules = progression.DefaultRules()
	}
	evalOpts := []progression.Option{progression.WithLogger(cfg.logger)}
	if cfg.location != nil {
		evalOpts = append(evalOpts, progression.WithLocation(cfg.location))
	}

	var src cache.Source
	if r != nil {
		src = r
	}
	cacheOpts := append([]cache.Option{
		cache.WithQuotaSource(port),
		cache.WithLogger(cfg.logger),
		cache.WithNow(cfg.now),
	}, cfg.cacheOpts...)

	e := &Engine{
		store:  s,
		remote: r,
		port:   port,
		eval:   progression.NewEvaluator(rules, evalOpts...),
		cache:  cache.New(s, src, cacheOpts...),
		ids:    cfg.ids,
		now:    cfg.now,
		logger: cfg.logger,
	}
	e.sched = newScheduler(s, r, port, e.cache, cfg)
	return e, nil
}

// Store returns the underlying store.
func (e *Engine) Store() *store.Store { return e.store }

// Cache returns the cache manager.
func (e *Engine) Cache() *cache.Manager { return e.cache }

// Scheduler returns the sync scheduler.
func (e *Engine) Scheduler() *Scheduler { return e.sched }

// Evaluator returns the progression evaluator.
func (e *Engine) Evaluator() *progression.Evaluator { return e.eval }

// Completion is a finished attempt as reported by the host.
type Completion struct {
	// ID is the client-generated record id. Empty means generate one.
	// Reporting the same id twice records the completion once.
	ID           string
	StudentID    string
	EntryID      string
	Score        int
	TimeSpentSec int
	HintsUsed    int
	Mistakes     int

	// CompletedAt defaults to now.
	CompletedAt time.Time
}

// Result is the outcome of RecordCompletion.
type Result struct {
	Record model.ProgressRecord `json:"record"`

	// Duplicate is true when the record id was already stored. Record is then
	// the stored record and Diff is empty.
	Duplicate bool `json:"duplicate"`

	Diff     progression.Diff     `json:"diff"`
	Snapshot progression.Snapshot `json:"snapshot"`

	// Achievements are the unlock events recorded by this call.
	Achievements []model.AchievementEvent `json:"achievements"`
}

// RecordCompletion computes the XP of c, appends the progress record and its
// outbox item atomically, records newly earned achievements and notifies
// subscribers of what changed.
func (e *Engine) RecordCompletion(ctx context.Context, c Completion) (Result, error) {
	if c.StudentID == "" || c.EntryID == "" {
		return Result{}, newInvalidInputError("student id and entry id are required")
	}
	if c.Score < 0 || c.Score > 100 {
		return Result{}, newInvalidInputError("score %d out of range [0, 100]", c.Score)
	}
	if c.TimeSpentSec < 0 || c.HintsUsed < 0 || c.Mistakes < 0 {
		return Result{}, newInvalidInputError("negative time, hints or mistakes")
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	now := e.now()
	if c.ID != "" {
		existing, ok, err := e.store.Progress(ctx, c.ID)
		if err != nil {
			return Result{}, err
		}
		if ok {
			snap, err := e.Snapshot(ctx, existing.StudentID)
			if err != nil {
				return Result{}, err
			}
			return Result{Record: existing, Duplicate: true, Diff: progression.Compare(snap, snap), Snapshot: snap, Achievements: []model.AchievementEvent{}}, nil
		}
	}

	entry, ok, err := e.store.CatalogEntry(ctx, c.EntryID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, newUnknownEntryError(c.StudentID, c.EntryID)
	}
	history, err := e.store.ProgressByStudent(ctx, c.StudentID)
	if err != nil {
		return Result{}, err
	}
	catalog, err := e.store.CatalogEntries(ctx)
	if err != nil {
		return Result{}, err
	}

	completedAt := c.CompletedAt
	if completedAt.IsZero() {
		completedAt = now
	}
	prev := e.eval.EvaluateAt(history, catalog, completedAt)

	first := !slices.ContainsFunc(history, func(r model.ProgressRecord) bool {
		return r.EntryID == c.EntryID
	})
	streak, _ := progression.Streaks(history, e.eval.Location(), completedAt)

	rec := model.ProgressRecord{
		ID:           c.ID,
		StudentID:    c.StudentID,
		EntryID:      c.EntryID,
		Score:        c.Score,
		TimeSpentSec: c.TimeSpentSec,
		HintsUsed:    c.HintsUsed,
		Mistakes:     c.Mistakes,
		CompletedAt:  completedAt,
		XPEarned: progression.AwardXP(entry, progression.Completion{
			Score:           c.Score,
			TimeSpentSec:    c.TimeSpentSec,
			HintsUsed:       c.HintsUsed,
			FirstCompletion: first,
			Streak:          streak,
		}),
	}
	if rec.ID == "" {
		rec.ID = e.ids.NewID()
	}

	if _, err := e.store.RecordCompletion(ctx, rec, now); err != nil {
		return Result{}, fmt.Errorf("record completion: %w", err)
	}
	// Read back so the snapshot sees the stored (millisecond) timestamp.
	stored, ok, err := e.store.Progress(ctx, rec.ID)
	switch {
	case err != nil:
		e.logger.Warn("read back of recorded completion failed",
			"event", "completion_readback_error",
			"record_id", rec.ID,
			"error", err,
		)
	case ok:
		rec = stored
	}

	next := e.eval.EvaluateAt(append(history, rec), catalog, completedAt)
	diff := progression.Compare(prev, next)

	unlocked, err := e.recordAchievements(ctx, c.StudentID, next, completedAt, now)
	if err != nil {
		return Result{}, err
	}

	e.logger.Info("completion recorded",
		"event", "completion_recorded",
		"record_id", rec.ID,
		"student_id", rec.StudentID,
		"entry_id", rec.EntryID,
		"xp_earned", rec.XPEarned,
		"level", next.Level,
		"leveled_up", diff.LeveledUp,
	)

	if !diff.Empty() {
		e.notify(c.StudentID, diff)
	}
	e.sched.Trigger()

	return Result{Record: rec, Diff: diff, Snapshot: next, Achievements: unlocked}, nil
}

// recordAchievements stores an unlock event for every achievement the
// snapshot holds that the store does not. Events are content-addressed, so a
// crash between the progress write and this call is repaired by the next
// completion.
func (e *Engine) recordAchievements(ctx context.Context, studentID string, snap progression.Snapshot, at, now time.Time) ([]model.AchievementEvent, error) {
	recorded := []model.AchievementEvent{}
	if len(snap.Achievements) == 0 {
		return recorded, nil
	}
	stored, err := e.store.AchievementsByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(stored))
	for _, ev := range stored {
		have[ev.AchievementID] = true
	}

	for _, id := range snap.Achievements {
		if have[id] {
			continue
		}
		def, _ := e.eval.Rules().Achievement(id)
		ev := model.AchievementEvent{
			ID:            model.AchievementEventID(studentID, id),
			StudentID:     studentID,
			AchievementID: id,
			XPReward:      def.XPReward,
			UnlockedAt:    at,
		}
		inserted, err := e.store.RecordAchievement(ctx, ev, now)
		if err != nil {
			return nil, fmt.Errorf("record achievement %s: %w", id, err)
		}
		if inserted {
			e.logger.Info("achievement unlocked",
				"event", "achievement_unlocked",
				"student_id", studentID,
				"achievement_id", id,
			)
			recorded = append(recorded, ev)
		}
	}
	return recorded, nil
}

// Snapshot derives the student's progression from stored history as of now.
func (e *Engine) Snapshot(ctx context.Context, studentID string) (progression.Snapshot, error) {
	history, err := e.store.ProgressByStudent(ctx, studentID)
	if err != nil {
		return progression.Snapshot{}, err
	}
	catalog, err := e.store.CatalogEntries(ctx)
	if err != nil {
		return progression.Snapshot{}, err
	}
	return e.eval.EvaluateAt(history, catalog, e.now()), nil
}

// Recommend ranks unlocked, not yet completed entries for the student.
// classLevel 0 means any class.
func (e *Engine) Recommend(ctx context.Context, studentID string, classLevel, limit int) ([]progression.Recommendation, error) {
	history, err := e.store.ProgressByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	catalog, err := e.store.CatalogEntries(ctx)
	if err != nil {
		return nil, err
	}
	snap := e.eval.EvaluateAt(history, catalog, e.now())
	return e.eval.Recommend(snap, history, catalog, classLevel, limit), nil
}

// Subscribe registers fn to receive the Diff of every completion that
// changed something. fn runs synchronously on the recording goroutine and
// must not call back into RecordCompletion. The returned func unsubscribes;
// calling it more than once is harmless.
func (e *Engine) Subscribe(fn func(studentID string, d progression.Diff)) func() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	e.nextSub++
	id := e.nextSub
	e.subs = append(e.subs, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			e.subsMu.Lock()
			defer e.subsMu.Unlock()
			e.subs = slices.DeleteFunc(e.subs, func(s subscriber) bool { return s.id == id })
		})
	}
}

func (e *Engine) notify(studentID string, d progression.Diff) {
	e.subsMu.Lock()
	subs := slices.Clone(e.subs)
	e.subsMu.Unlock()
	for _, s := range subs {
		s.fn(studentID, d)
	}
}

// SyncNow runs a sync pass and returns its result. A call that arrives while
// a pass is running is coalesced into that pass's follow-up.
func (e *Engine) SyncNow(ctx context.Context) (PassResult, error) {
	return e.sched.RunPass(ctx)
}

// Close detaches the engine from the connectivity port. The store is owned
// by the caller and stays open.
func (e *Engine) Close() {
	e.sched.Close()
}

// Run drives the scheduler until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	return e.sched.Run(ctx)
}

// Status reports connectivity, scheduler state and outbox counts.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	return e.sched.Status(ctx)
}

// FailedItems lists failed outbox items, permanent ones included.
func (e *Engine) FailedItems(ctx context.Context) ([]model.OutboxItem, error) {
	return e.store.FailedOutbox(ctx)
}

// RetryFailed hands a failed item back to the queue with a fresh attempt
// budget and nudges the scheduler.
func (e *Engine) RetryFailed(ctx context.Context, id string) error {
	if err := e.store.RetryFailed(ctx, id, e.now()); err != nil {
		return err
	}
	e.logger.Info("outbox item retried", "event", "outbox_retry", "item_id", id)
	e.sched.Trigger()
	return nil
}
